package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveGetAttribute(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveAttribute(1, 0x0006, 0x0000, []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAttribute(1, 0x0300, 0x0007, []byte{0x72, 0x01}); err != nil {
		t.Fatal(err)
	}

	data, err := s.GetAttribute(1, 0x0006, 0x0000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0x01}) {
		t.Errorf("data = % X, want 01", data)
	}

	data, err = s.GetAttribute(1, 0x0300, 0x0007)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0x72, 0x01}) {
		t.Errorf("data = % X, want 72 01", data)
	}
}

func TestGetAttributeNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAttribute(1, 0x0006, 0x0000)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveAttributeOverwrites(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveAttribute(1, 0x0008, 0x0000, []byte{0x40}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAttribute(1, 0x0008, 0x0000, []byte{0xFE}); err != nil {
		t.Fatal(err)
	}

	data, err := s.GetAttribute(1, 0x0008, 0x0000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0xFE}) {
		t.Errorf("data = % X, want FE", data)
	}
}

func TestListAttributes(t *testing.T) {
	s := newTestStore(t)

	saved := map[[3]uint16][]byte{
		{1, 0x0006, 0x0000}: {0x01},
		{1, 0x0008, 0x0000}: {0x80},
		{1, 0x0300, 0x0007}: {0x72, 0x01},
	}
	for k, v := range saved {
		if err := s.SaveAttribute(uint8(k[0]), k[1], k[2], v); err != nil {
			t.Fatal(err)
		}
	}

	seen := make(map[[3]uint16][]byte)
	err := s.ListAttributes(func(ep uint8, cluster, attr uint16, data []byte) error {
		seen[[3]uint16{uint16(ep), cluster, attr}] = data
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(seen) != len(saved) {
		t.Fatalf("listed %d attributes, want %d", len(seen), len(saved))
	}
	for k, want := range saved {
		if !bytes.Equal(seen[k], want) {
			t.Errorf("attr %v = % X, want % X", k, seen[k], want)
		}
	}
}

func TestDeleteAttributes(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveAttribute(1, 0x0006, 0x0000, []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAttributes(); err != nil {
		t.Fatal(err)
	}

	_, err := s.GetAttribute(1, 0x0006, 0x0000)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}

	// Bucket must be usable again.
	if err := s.SaveAttribute(1, 0x0006, 0x0000, []byte{0x00}); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureNodeInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}

	info, err := s.EnsureNodeInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.UniqueID == "" {
		t.Fatal("empty unique ID on first boot")
	}
	if info.BootCount != 1 {
		t.Errorf("boot count = %d, want 1", info.BootCount)
	}
	if info.FirstBoot.IsZero() {
		t.Error("first boot time not set")
	}

	// Reopen: identity survives, boot counter advances.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	again, err := s.EnsureNodeInfo()
	if err != nil {
		t.Fatal(err)
	}
	if again.UniqueID != info.UniqueID {
		t.Errorf("unique ID changed across restart: %q != %q", again.UniqueID, info.UniqueID)
	}
	if again.BootCount != 2 {
		t.Errorf("boot count = %d, want 2", again.BootCount)
	}
}

func TestGetNodeInfoNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetNodeInfo()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAttrKeyRoundTrip(t *testing.T) {
	key := attrKey(1, 0x0300, 0x4010)
	ep, cluster, attr, err := parseAttrKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if ep != 1 || cluster != 0x0300 || attr != 0x4010 {
		t.Errorf("parsed %d/0x%04X/0x%04X, want 1/0x0300/0x4010", ep, cluster, attr)
	}

	if _, _, _, err := parseAttrKey([]byte("garbage")); err == nil {
		t.Error("expected error for malformed key")
	}
}
