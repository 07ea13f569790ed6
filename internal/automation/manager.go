//go:build !no_automation

package automation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
)

// Scripts are plain .lua files with a comment header:
//
//	-- @name Evening warm
//	-- @desc Warm white after sunset
//	-- @disabled
//
// Scripts without a @disabled line are enabled. The header keeps the
// files hand-editable over SSH without breaking the API round trip.

// validScriptID checks that a script ID is safe as a filename stem.
func validScriptID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return false
	}
	return true
}

// Manager loads, saves, and lists automation scripts on disk.
type Manager struct {
	dir string
	mu  sync.RWMutex
}

// NewManager creates a script manager rooted at dir, creating the
// directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// List returns all scripts found in the directory.
func (m *Manager) List() ([]*Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var scripts []*Script
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		s, err := m.parseFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			continue // skip unreadable scripts
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// Get returns a single script by ID (filename stem).
func (m *Manager) Get(id string) (*Script, error) {
	if !validScriptID(id) {
		return nil, fmt.Errorf("invalid script id: %q", id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.parseFile(filepath.Join(m.dir, id+".lua"))
}

// Save writes a script to disk atomically. A script without an ID gets
// one generated from its name. Returns the (possibly updated) script.
func (m *Manager) Save(s *Script) (*Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = slugify(s.Meta.Name)
		if s.ID == "" {
			s.ID = "script"
		}
		base := s.ID
		for i := 1; ; i++ {
			if _, err := os.Stat(filepath.Join(m.dir, s.ID+".lua")); os.IsNotExist(err) {
				break
			}
			s.ID = fmt.Sprintf("%s_%d", base, i)
		}
	}
	if !validScriptID(s.ID) {
		return nil, fmt.Errorf("invalid script id: %q", s.ID)
	}

	s.FilePath = filepath.Join(m.dir, s.ID+".lua")
	content := serializeScript(s)

	// Atomic rename so a crash mid-write never leaves a truncated
	// script that the engine would then fail to load.
	if err := atomic.WriteFile(s.FilePath, strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	return s, nil
}

// Delete removes a script file by ID.
func (m *Manager) Delete(id string) error {
	if !validScriptID(id) {
		return fmt.Errorf("invalid script id: %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(filepath.Join(m.dir, id+".lua")); err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	return nil
}

// parseFile reads a .lua file and splits the @-header from the code.
func (m *Manager) parseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s := &Script{
		ID:       strings.TrimSuffix(filepath.Base(path), ".lua"),
		FilePath: path,
		Meta:     ScriptMeta{Enabled: true},
	}

	lines := strings.Split(string(data), "\n")
	body := 0
	for _, line := range lines {
		key, rest, ok := headerLine(line)
		if !ok {
			break
		}
		body++
		switch key {
		case "name":
			s.Meta.Name = rest
		case "desc":
			s.Meta.Description = rest
		case "disabled":
			s.Meta.Enabled = false
		}
	}

	code := lines[body:]
	for len(code) > 0 && strings.TrimSpace(code[0]) == "" {
		code = code[1:]
	}
	s.LuaCode = strings.TrimRight(strings.Join(code, "\n"), "\n")
	return s, nil
}

// headerLine parses one "-- @key value" line.
func headerLine(line string) (key, rest string, ok bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "-- @") {
		return "", "", false
	}
	t = strings.TrimPrefix(t, "-- @")
	key, rest, _ = strings.Cut(t, " ")
	return key, strings.TrimSpace(rest), true
}

// serializeScript reassembles a script file from meta and code.
func serializeScript(s *Script) string {
	var b strings.Builder

	if s.Meta.Name != "" {
		b.WriteString("-- @name ")
		b.WriteString(s.Meta.Name)
		b.WriteString("\n")
	}
	if s.Meta.Description != "" {
		b.WriteString("-- @desc ")
		b.WriteString(s.Meta.Description)
		b.WriteString("\n")
	}
	if !s.Meta.Enabled {
		b.WriteString("-- @disabled\n")
	}

	if s.LuaCode != "" {
		b.WriteString("\n")
		b.WriteString(s.LuaCode)
		if !strings.HasSuffix(s.LuaCode, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
