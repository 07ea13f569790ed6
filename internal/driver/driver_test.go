package driver

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDriver(t *testing.T) (*Driver, *VirtualBackend) {
	t.Helper()
	backend := NewVirtualBackend(testLogger())
	d := New(backend, State{Level: 128, Hue: 0, Saturation: 100, ColorTempK: 2700, Mode: ModeColorTemp}, testLogger())
	t.Cleanup(func() { d.Close() })
	return d, backend
}

func TestUnchangedValueSkipsBackend(t *testing.T) {
	d, backend := newTestDriver(t)
	src := d.RegisterSource("test")

	if err := src.SetPower(true); err != nil {
		t.Fatal(err)
	}
	if err := src.SetPower(true); err != nil {
		t.Fatal(err)
	}

	if got := backend.Applies(); got != 1 {
		t.Errorf("applies = %d, want 1", got)
	}
	if !backend.Last().On {
		t.Error("backend state is off")
	}
}

func TestReportSkipsOriginator(t *testing.T) {
	d, _ := newTestDriver(t)
	a := d.RegisterSource("a")
	b := d.RegisterSource("b")

	var aCalls, bCalls int
	a.OnLevel = func(uint8) { aCalls++ }
	b.OnLevel = func(uint8) { bCalls++ }

	if err := a.SetLevel(200); err != nil {
		t.Fatal(err)
	}

	if aCalls != 0 {
		t.Errorf("originator notified %d times", aCalls)
	}
	if bCalls != 1 {
		t.Errorf("other source notified %d times, want 1", bCalls)
	}
}

func TestCallbackMayWriteBack(t *testing.T) {
	d, backend := newTestDriver(t)
	a := d.RegisterSource("a")
	b := d.RegisterSource("b")

	// b echoes every level back into the driver, like the node does
	// after a remap. The equality check must stop the cycle.
	b.OnLevel = func(level uint8) {
		if err := b.SetLevel(level); err != nil {
			t.Error(err)
		}
	}

	if err := a.SetLevel(77); err != nil {
		t.Fatal(err)
	}
	if got := d.State().Level; got != 77 {
		t.Errorf("level = %d, want 77", got)
	}
	if got := backend.Applies(); got != 1 {
		t.Errorf("applies = %d, want 1", got)
	}
}

func TestHueSwitchesColorMode(t *testing.T) {
	d, backend := newTestDriver(t)
	src := d.RegisterSource("test")

	if err := src.SetHue(120); err != nil {
		t.Fatal(err)
	}
	st := d.State()
	if st.Mode != ModeHueSat {
		t.Errorf("mode = %v, want hue_sat", st.Mode)
	}
	if st.Hue != 120 {
		t.Errorf("hue = %d, want 120", st.Hue)
	}

	before := backend.Applies()
	if err := src.SetHue(120); err != nil {
		t.Fatal(err)
	}
	if backend.Applies() != before {
		t.Error("unchanged hue reached the backend")
	}

	if err := src.SetColorTemp(4000); err != nil {
		t.Fatal(err)
	}
	if d.State().Mode != ModeColorTemp {
		t.Error("color temperature did not switch the mode back")
	}

	// Same hue again, but the mode moved away: must apply.
	if err := src.SetHue(120); err != nil {
		t.Fatal(err)
	}
	if d.State().Mode != ModeHueSat {
		t.Error("equal hue with different mode was dropped")
	}
}

func TestClamping(t *testing.T) {
	d, _ := newTestDriver(t)
	src := d.RegisterSource("test")

	if err := src.SetLevel(0); err != nil {
		t.Fatal(err)
	}
	if got := d.State().Level; got != LevelMin {
		t.Errorf("level = %d, want %d", got, LevelMin)
	}

	if err := src.SetHue(400); err != nil {
		t.Fatal(err)
	}
	if got := d.State().Hue; got != HueMax {
		t.Errorf("hue = %d, want %d", got, HueMax)
	}

	if err := src.SetSaturation(150); err != nil {
		t.Fatal(err)
	}
	if got := d.State().Saturation; got != SaturationMax {
		t.Errorf("saturation = %d, want %d", got, SaturationMax)
	}

	if err := src.SetColorTemp(1000); err != nil {
		t.Fatal(err)
	}
	if got := d.State().ColorTempK; got != KelvinMin {
		t.Errorf("kelvin = %d, want %d", got, KelvinMin)
	}

	if err := src.SetColorTemp(9000); err != nil {
		t.Fatal(err)
	}
	if got := d.State().ColorTempK; got != KelvinMax {
		t.Errorf("kelvin = %d, want %d", got, KelvinMax)
	}
}

func TestBlinkRestoresState(t *testing.T) {
	d, backend := newTestDriver(t)
	src := d.RegisterSource("test")
	if err := src.SetPower(true); err != nil {
		t.Fatal(err)
	}
	before := d.State()

	// Shorter than the blink period: only the restore write happens.
	d.Blink(50 * time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	if got := d.State(); got != before {
		t.Errorf("state after blink = %+v, want %+v", got, before)
	}
	if got := backend.Last(); got != before {
		t.Errorf("backend after blink = %+v, want %+v", got, before)
	}
}
