package node

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"lampd/internal/store"
	"lampd/internal/zcl"
	"lampd/internal/zcl/clusters"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestNodeWithStore(t *testing.T, st store.Store) *Node {
	t.Helper()
	logger := testLogger()
	registry := zcl.NewRegistry(logger)
	for _, c := range clusters.Standard() {
		registry.Register(c)
	}
	events := NewEventBus(logger)
	n := New(Info{
		Name:         "Test Lamp",
		Manufacturer: "lampd",
		Model:        "lampd-one",
		SWVersion:    "test",
		UniqueID:     "0000-test",
	}, []Endpoint{LampEndpoint()}, registry, st, events, logger)
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	return n
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return newTestNodeWithStore(t, st)
}

func TestDefaultsSeeded(t *testing.T) {
	n := newTestNode(t)

	tests := []struct {
		name    string
		cluster uint16
		attr    uint16
		want    interface{}
	}{
		{"OnOff", clusters.IDOnOff, clusters.AttrOnOff, false},
		{"CurrentLevel", clusters.IDLevelControl, clusters.AttrCurrentLevel, uint8(128)},
		{"ColorTemperatureMireds", clusters.IDColorControl, clusters.AttrColorTemperatureMireds, uint16(370)},
		{"ColorMode", clusters.IDColorControl, clusters.AttrColorMode, uint8(2)},
		{"StartUpOnOff", clusters.IDOnOff, clusters.AttrStartUpOnOff, uint8(0xFF)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.ReadAttribute(1, tt.cluster, tt.attr)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestSeedInfo(t *testing.T) {
	n := newTestNode(t)

	got, err := n.ReadAttribute(1, clusters.IDBasic, clusters.AttrModelIdentifier)
	if err != nil {
		t.Fatal(err)
	}
	if got != "lampd-one" {
		t.Errorf("ModelIdentifier = %v, want lampd-one", got)
	}

	got, _ = n.ReadAttribute(1, clusters.IDBasic, clusters.AttrSerialNumber)
	if got != "0000-test" {
		t.Errorf("SerialNumber = %v, want 0000-test", got)
	}
}

func TestSetAndReadAttribute(t *testing.T) {
	n := newTestNode(t)

	if err := n.SetAttribute(1, clusters.IDOnOff, clusters.AttrOnOff, true, "test"); err != nil {
		t.Fatal(err)
	}
	got, err := n.ReadAttribute(1, clusters.IDOnOff, clusters.AttrOnOff)
	if err != nil {
		t.Fatal(err)
	}
	if got != true {
		t.Errorf("OnOff = %v, want true", got)
	}
}

func TestWriteAttributeReadOnly(t *testing.T) {
	n := newTestNode(t)

	// External writes cannot touch reportable state directly.
	err := n.WriteAttribute(1, clusters.IDOnOff, clusters.AttrOnOff, true, "web")
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}

	// Config attributes are writable.
	if err := n.WriteAttribute(1, clusters.IDOnOff, clusters.AttrStartUpOnOff, 1, "web"); err != nil {
		t.Fatal(err)
	}
}

func TestWriteErrors(t *testing.T) {
	n := newTestNode(t)

	err := n.SetAttribute(1, 0x9999, 0x0000, true, "test")
	if !errors.Is(err, ErrUnsupportedCluster) {
		t.Errorf("unknown cluster: err = %v, want ErrUnsupportedCluster", err)
	}

	err = n.SetAttribute(2, clusters.IDOnOff, clusters.AttrOnOff, true, "test")
	if !errors.Is(err, ErrUnsupportedCluster) {
		t.Errorf("unknown endpoint: err = %v, want ErrUnsupportedCluster", err)
	}

	err = n.SetAttribute(1, clusters.IDOnOff, 0x7777, true, "test")
	if !errors.Is(err, ErrUnsupportedAttribute) {
		t.Errorf("unknown attribute: err = %v, want ErrUnsupportedAttribute", err)
	}

	err = n.SetAttribute(1, clusters.IDLevelControl, clusters.AttrCurrentLevel, "fast", "test")
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("bad value: err = %v, want ErrInvalidValue", err)
	}
}

func TestChangeHookFiresOnChangeOnly(t *testing.T) {
	n := newTestNode(t)

	var calls int
	n.OnAttributeChange(func(ep uint8, cluster, attr uint16, value interface{}) {
		if cluster == clusters.IDOnOff && attr == clusters.AttrOnOff {
			calls++
		}
	})

	for i := 0; i < 3; i++ {
		if err := n.SetAttribute(1, clusters.IDOnOff, clusters.AttrOnOff, true, "test"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("hook calls = %d, want 1 (unchanged writes must not fire)", calls)
	}

	if err := n.SetAttribute(1, clusters.IDOnOff, clusters.AttrOnOff, false, "test"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("hook calls = %d, want 2", calls)
	}
}

func TestAttributeChangedEvent(t *testing.T) {
	n := newTestNode(t)

	var got Event
	n.Events().On(EventAttributeChanged, func(ev Event) { got = ev })

	if err := n.SetAttribute(1, clusters.IDLevelControl, clusters.AttrCurrentLevel, 200, "test"); err != nil {
		t.Fatal(err)
	}

	data, ok := got.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("event data is %T, want map", got.Data)
	}
	if data["name"] != "CurrentLevel" {
		t.Errorf("name = %v, want CurrentLevel", data["name"])
	}
	if data["value"] != uint8(200) {
		t.Errorf("value = %v, want 200", data["value"])
	}
	if data["source"] != "test" {
		t.Errorf("source = %v, want test", data["source"])
	}
}

func TestPersistAndRestore(t *testing.T) {
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	n := newTestNodeWithStore(t, st)
	if err := n.SetAttribute(1, clusters.IDOnOff, clusters.AttrOnOff, true, "test"); err != nil {
		t.Fatal(err)
	}
	if err := n.SetAttribute(1, clusters.IDLevelControl, clusters.AttrCurrentLevel, 42, "test"); err != nil {
		t.Fatal(err)
	}
	if err := n.SetAttribute(1, clusters.IDColorControl, clusters.AttrColorTemperatureMireds, 250, "test"); err != nil {
		t.Fatal(err)
	}

	// A second node over the same store sees the previous state
	// (StartUpOnOff defaults to "previous").
	n2 := newTestNodeWithStore(t, st)

	got, _ := n2.ReadAttribute(1, clusters.IDOnOff, clusters.AttrOnOff)
	if got != true {
		t.Errorf("restored OnOff = %v, want true", got)
	}
	got, _ = n2.ReadAttribute(1, clusters.IDLevelControl, clusters.AttrCurrentLevel)
	if got != uint8(42) {
		t.Errorf("restored CurrentLevel = %v, want 42", got)
	}
	got, _ = n2.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorTemperatureMireds)
	if got != uint16(250) {
		t.Errorf("restored ColorTemperatureMireds = %v, want 250", got)
	}
}

func TestStartUpOnOff(t *testing.T) {
	tests := []struct {
		name    string
		startup uint8
		before  bool
		want    bool
	}{
		{"force off", 0x00, true, false},
		{"force on", 0x01, false, true},
		{"toggle from on", 0x02, true, false},
		{"toggle from off", 0x02, false, true},
		{"previous on", 0xFF, true, true},
		{"previous off", 0xFF, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { st.Close() })

			n := newTestNodeWithStore(t, st)
			if err := n.SetAttribute(1, clusters.IDOnOff, clusters.AttrOnOff, tt.before, "test"); err != nil {
				t.Fatal(err)
			}
			if err := n.WriteAttribute(1, clusters.IDOnOff, clusters.AttrStartUpOnOff, tt.startup, "test"); err != nil {
				t.Fatal(err)
			}

			n2 := newTestNodeWithStore(t, st)
			got, _ := n2.ReadAttribute(1, clusters.IDOnOff, clusters.AttrOnOff)
			if got != tt.want {
				t.Errorf("OnOff after restart = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartUpLevelAndColorTemp(t *testing.T) {
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	n := newTestNodeWithStore(t, st)
	if err := n.WriteAttribute(1, clusters.IDLevelControl, clusters.AttrStartUpCurrentLevel, 200, "test"); err != nil {
		t.Fatal(err)
	}
	// Below the physical minimum of 153 mireds: must clamp.
	if err := n.WriteAttribute(1, clusters.IDColorControl, clusters.AttrStartUpColorTemperatureMireds, 100, "test"); err != nil {
		t.Fatal(err)
	}

	n2 := newTestNodeWithStore(t, st)

	got, _ := n2.ReadAttribute(1, clusters.IDLevelControl, clusters.AttrCurrentLevel)
	if got != uint8(200) {
		t.Errorf("CurrentLevel after restart = %v, want 200", got)
	}
	got, _ = n2.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorTemperatureMireds)
	if got != uint16(153) {
		t.Errorf("ColorTemperatureMireds after restart = %v, want 153 (clamped)", got)
	}
	got, _ = n2.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorMode)
	if got != uint8(2) {
		t.Errorf("ColorMode after restart = %v, want 2", got)
	}
}

func TestAttributesSnapshot(t *testing.T) {
	n := newTestNode(t)

	attrs := n.Attributes(1)
	if len(attrs) == 0 {
		t.Fatal("empty snapshot")
	}

	var onOff *AttributeValue
	for i := range attrs {
		if attrs[i].Cluster == clusters.IDOnOff && attrs[i].ID == clusters.AttrOnOff {
			onOff = &attrs[i]
		}
	}
	if onOff == nil {
		t.Fatal("OnOff missing from snapshot")
	}
	if onOff.Writable {
		t.Error("OnOff reported writable")
	}
	if onOff.Type != "bool" {
		t.Errorf("OnOff type = %q, want bool", onOff.Type)
	}
	if onOff.ClusterName != "On/Off" {
		t.Errorf("cluster name = %q", onOff.ClusterName)
	}

	if n.Attributes(9) != nil {
		t.Error("snapshot for unknown endpoint should be nil")
	}
}
