package adapter

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lampd/internal/driver"
	"lampd/internal/node"
	"lampd/internal/store"
	"lampd/internal/zcl"
	"lampd/internal/zcl/clusters"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testRig struct {
	node    *node.Node
	driver  *driver.Driver
	backend *driver.VirtualBackend
	adapter *Adapter
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	logger := testLogger()

	registry := zcl.NewRegistry(logger)
	for _, c := range clusters.Standard() {
		registry.Register(c)
	}
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	n := node.New(node.Info{Name: "Test", Manufacturer: "lampd", Model: "lampd-one", SWVersion: "test", UniqueID: "rig"},
		[]node.Endpoint{node.LampEndpoint()}, registry, st, node.NewEventBus(logger), logger)

	backend := driver.NewVirtualBackend(logger)
	d := driver.New(backend, driver.State{}, logger)
	t.Cleanup(func() { d.Close() })

	a := Bind(n, d, 1, logger)
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	if err := a.Sync(); err != nil {
		t.Fatal(err)
	}
	return &testRig{node: n, driver: d, backend: backend, adapter: a}
}

func (r *testRig) invoke(t *testing.T, cluster uint16, cmd uint8, payload map[string]interface{}) {
	t.Helper()
	if err := r.node.Invoke(1, cluster, cmd, payload, "test"); err != nil {
		t.Fatalf("invoke 0x%04X/0x%02X: %v", cluster, cmd, err)
	}
}

func TestSyncPushesDefaults(t *testing.T) {
	r := newTestRig(t)

	st := r.driver.State()
	if st.On {
		t.Error("lamp on after sync of default state")
	}
	if st.Level != 128 {
		t.Errorf("level = %d, want 128", st.Level)
	}
	// Default 370 mireds is 2702 K.
	if st.ColorTempK != 2702 {
		t.Errorf("kelvin = %d, want 2702", st.ColorTempK)
	}
	if st.Mode != driver.ModeColorTemp {
		t.Errorf("mode = %v, want color_temp", st.Mode)
	}
}

func TestPowerDispatch(t *testing.T) {
	r := newTestRig(t)

	r.invoke(t, clusters.IDOnOff, clusters.CmdOn, nil)
	if !r.driver.State().On {
		t.Fatal("driver still off after On command")
	}
	if !r.backend.Last().On {
		t.Fatal("backend never saw the lamp turn on")
	}

	r.invoke(t, clusters.IDOnOff, clusters.CmdOff, nil)
	if r.driver.State().On {
		t.Fatal("driver still on after Off command")
	}
}

func TestLevelDispatch(t *testing.T) {
	r := newTestRig(t)

	r.invoke(t, clusters.IDLevelControl, clusters.CmdMoveToLevel, map[string]interface{}{"level": 200})
	if got := r.driver.State().Level; got != 200 {
		t.Errorf("driver level = %d, want 200", got)
	}
}

func TestHueDispatchRemaps(t *testing.T) {
	r := newTestRig(t)

	r.invoke(t, clusters.IDColorControl, clusters.CmdMoveToHue, map[string]interface{}{"hue": 127})

	st := r.driver.State()
	if st.Hue != 179 {
		t.Errorf("driver hue = %d, want 179 (127 remapped to degrees)", st.Hue)
	}
	if st.Mode != driver.ModeHueSat {
		t.Errorf("mode = %v, want hue_sat", st.Mode)
	}

	// The attribute keeps its own range; no echo rewrites it.
	v, err := r.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrCurrentHue)
	if err != nil {
		t.Fatal(err)
	}
	if v != uint8(127) {
		t.Errorf("CurrentHue = %v, want 127", v)
	}
}

func TestSaturationDispatchRemaps(t *testing.T) {
	r := newTestRig(t)

	r.invoke(t, clusters.IDColorControl, clusters.CmdMoveToSaturation, map[string]interface{}{"saturation": 254})
	if got := r.driver.State().Saturation; got != 100 {
		t.Errorf("driver saturation = %d, want 100", got)
	}
}

func TestColorTempDispatchConverts(t *testing.T) {
	r := newTestRig(t)

	r.invoke(t, clusters.IDColorControl, clusters.CmdMoveToColorTemperature, map[string]interface{}{"mireds": 250})

	st := r.driver.State()
	if st.ColorTempK != 4000 {
		t.Errorf("driver kelvin = %d, want 4000", st.ColorTempK)
	}
	if st.Mode != driver.ModeColorTemp {
		t.Errorf("mode = %v, want color_temp", st.Mode)
	}
}

func TestZeroMiredsGuard(t *testing.T) {
	r := newTestRig(t)

	// Force the stored attribute to zero; the conversion must not
	// divide by zero and the driver clamps the huge kelvin result.
	if err := r.node.SetAttribute(1, clusters.IDColorControl, clusters.AttrColorTemperatureMireds, 0, "test"); err != nil {
		t.Fatal(err)
	}
	if got := r.driver.State().ColorTempK; got != driver.KelvinMax {
		t.Errorf("driver kelvin = %d, want clamp at %d", got, driver.KelvinMax)
	}
}

func TestDriverReportWritesAttributes(t *testing.T) {
	r := newTestRig(t)
	src := r.driver.RegisterSource("button")

	if err := src.SetPower(true); err != nil {
		t.Fatal(err)
	}
	v, _ := r.node.ReadAttribute(1, clusters.IDOnOff, clusters.AttrOnOff)
	if v != true {
		t.Errorf("OnOff = %v after driver report, want true", v)
	}

	if err := src.SetLevel(42); err != nil {
		t.Fatal(err)
	}
	v, _ = r.node.ReadAttribute(1, clusters.IDLevelControl, clusters.AttrCurrentLevel)
	if v != uint8(42) {
		t.Errorf("CurrentLevel = %v after driver report, want 42", v)
	}
}

func TestDriverHueReportRemapsBack(t *testing.T) {
	r := newTestRig(t)
	src := r.driver.RegisterSource("remote")

	if err := src.SetHue(359); err != nil {
		t.Fatal(err)
	}
	v, _ := r.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrCurrentHue)
	if v != uint8(254) {
		t.Errorf("CurrentHue = %v, want 254", v)
	}

	if err := src.SetColorTemp(4000); err != nil {
		t.Fatal(err)
	}
	v, _ = r.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorTemperatureMireds)
	if v != uint16(250) {
		t.Errorf("ColorTemperatureMireds = %v, want 250", v)
	}
}

func TestPropertyUpdateEvent(t *testing.T) {
	r := newTestRig(t)

	var got node.Event
	r.node.Events().On(node.EventPropertyUpdate, func(ev node.Event) { got = ev })

	r.invoke(t, clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff, map[string]interface{}{"level": 200})

	props, ok := got.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("property event data is %T, want map", got.Data)
	}
	if props["state"] != true {
		t.Errorf("state = %v, want true", props["state"])
	}
	if props["brightness"] != uint8(200) {
		t.Errorf("brightness = %v, want 200", props["brightness"])
	}
	if props["color_mode"] != "color_temp" {
		t.Errorf("color_mode = %v", props["color_mode"])
	}
}

func TestIdentifyBlinksAndClears(t *testing.T) {
	r := newTestRig(t)

	if err := r.node.Invoke(1, clusters.IDIdentify, clusters.CmdIdentify, map[string]interface{}{"time": 1}, "test"); err != nil {
		t.Fatal(err)
	}
	v, _ := r.node.ReadAttribute(1, clusters.IDIdentify, clusters.AttrIdentifyTime)
	if v != uint16(1) {
		t.Fatalf("IdentifyTime = %v, want 1", v)
	}

	// The adapter clears the attribute when the blink ends, so the
	// same identify duration can fire again later.
	deadline := time.Now().Add(3 * time.Second)
	for {
		v, _ = r.node.ReadAttribute(1, clusters.IDIdentify, clusters.AttrIdentifyTime)
		if v == uint16(0) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("IdentifyTime still %v after blink", v)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestUnhandledClusterIgnored(t *testing.T) {
	r := newTestRig(t)
	before := r.backend.Applies()

	// Basic cluster attributes never reach the driver.
	if err := r.node.SetAttribute(1, clusters.IDBasic, clusters.AttrManufacturerName, "other", "test"); err != nil {
		t.Fatal(err)
	}
	if got := r.backend.Applies(); got != before {
		t.Errorf("backend applies went %d -> %d on a basic attribute", before, got)
	}
}
