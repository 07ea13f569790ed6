//go:build !no_automation

package automation

// ScriptMeta holds the user-editable metadata kept in a script's
// comment header.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is a single Lua automation stored on disk.
type Script struct {
	ID       string     `json:"id"` // filename stem (no .lua)
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"` // source without the header
	FilePath string     `json:"-"`
}
