// Package driver controls the lamp output hardware and the local button.
// Backends: PWM on GPIO, an external controller over serial, or virtual.
package driver

import (
	"log/slog"
	"sync"
	"time"
)

// Value ranges of the driver state. Hue is in degrees, saturation in
// percent, color temperature in kelvin. Level shares the 1..254 range
// of the lighting clusters.
const (
	LevelMin      uint8  = 1
	LevelMax      uint8  = 254
	HueMax        uint16 = 359
	SaturationMax uint8  = 100
	KelvinMin     uint16 = 2000
	KelvinMax     uint16 = 6535
)

// ColorMode selects which color fields of State drive the output.
type ColorMode uint8

const (
	ModeHueSat    ColorMode = 0
	ModeColorTemp ColorMode = 2
)

func (m ColorMode) String() string {
	if m == ModeColorTemp {
		return "color_temp"
	}
	return "hue_sat"
}

// State is the full output state of the lamp in driver units.
type State struct {
	On         bool
	Level      uint8
	Hue        uint16
	Saturation uint8
	ColorTempK uint16
	Mode       ColorMode
}

// Source is a handle for one originator of state changes (the node,
// the physical button). Changes made through a source are reported to
// every other source but never echoed back to the originator. Set the
// On* callbacks before the first change flows through the driver.
type Source struct {
	name string
	d    *Driver

	OnPower      func(on bool)
	OnLevel      func(level uint8)
	OnHue        func(hue uint16)
	OnSaturation func(sat uint8)
	OnColorTemp  func(kelvin uint16)
}

func (s *Source) Name() string { return s.name }

func (s *Source) SetPower(on bool) error          { return s.d.setPower(on, s.name) }
func (s *Source) SetLevel(level uint8) error      { return s.d.setLevel(level, s.name) }
func (s *Source) SetHue(hue uint16) error         { return s.d.setHue(hue, s.name) }
func (s *Source) SetSaturation(sat uint8) error   { return s.d.setSaturation(sat, s.name) }
func (s *Source) SetColorTemp(kelvin uint16) error { return s.d.setColorTemp(kelvin, s.name) }

// Driver owns the lamp state and pushes every accepted change to the
// backend. Unchanged values are dropped early so write/report cycles
// between the node and the hardware settle instead of ping-ponging.
type Driver struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	sources []*Source

	done      chan struct{}
	closeOnce sync.Once
}

func New(backend Backend, initial State, logger *slog.Logger) *Driver {
	return &Driver{
		backend: backend,
		logger:  logger,
		state:   initial,
		done:    make(chan struct{}),
	}
}

// RegisterSource adds a named originator. Names must be unique; they
// appear in logs and decide who is skipped during reporting.
func (d *Driver) RegisterSource(name string) *Source {
	s := &Source{name: name, d: d}
	d.mu.Lock()
	d.sources = append(d.sources, s)
	d.mu.Unlock()
	return s
}

// State returns a snapshot of the current output state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Apply pushes the current state to the backend. Called once at
// bring-up after the node state has been synced in.
func (d *Driver) Apply() error {
	return d.backend.Apply(d.State())
}

// Close stops any running identify effect and shuts the backend down.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return d.backend.Close()
}

func (d *Driver) setPower(on bool, origin string) error {
	d.mu.Lock()
	if d.state.On == on {
		d.mu.Unlock()
		return nil
	}
	d.state.On = on
	st := d.state
	d.mu.Unlock()

	d.logger.Debug("power", "on", on, "origin", origin)
	err := d.backend.Apply(st)
	d.report(origin, func(s *Source) {
		if s.OnPower != nil {
			s.OnPower(on)
		}
	})
	return err
}

func (d *Driver) setLevel(level uint8, origin string) error {
	level = clampLevel(level)
	d.mu.Lock()
	if d.state.Level == level {
		d.mu.Unlock()
		return nil
	}
	d.state.Level = level
	st := d.state
	d.mu.Unlock()

	d.logger.Debug("level", "level", level, "origin", origin)
	err := d.backend.Apply(st)
	d.report(origin, func(s *Source) {
		if s.OnLevel != nil {
			s.OnLevel(level)
		}
	})
	return err
}

func (d *Driver) setHue(hue uint16, origin string) error {
	if hue > HueMax {
		hue = HueMax
	}
	d.mu.Lock()
	if d.state.Hue == hue && d.state.Mode == ModeHueSat {
		d.mu.Unlock()
		return nil
	}
	d.state.Hue = hue
	d.state.Mode = ModeHueSat
	st := d.state
	d.mu.Unlock()

	d.logger.Debug("hue", "hue", hue, "origin", origin)
	err := d.backend.Apply(st)
	d.report(origin, func(s *Source) {
		if s.OnHue != nil {
			s.OnHue(hue)
		}
	})
	return err
}

func (d *Driver) setSaturation(sat uint8, origin string) error {
	if sat > SaturationMax {
		sat = SaturationMax
	}
	d.mu.Lock()
	if d.state.Saturation == sat && d.state.Mode == ModeHueSat {
		d.mu.Unlock()
		return nil
	}
	d.state.Saturation = sat
	d.state.Mode = ModeHueSat
	st := d.state
	d.mu.Unlock()

	d.logger.Debug("saturation", "saturation", sat, "origin", origin)
	err := d.backend.Apply(st)
	d.report(origin, func(s *Source) {
		if s.OnSaturation != nil {
			s.OnSaturation(sat)
		}
	})
	return err
}

func (d *Driver) setColorTemp(kelvin uint16, origin string) error {
	kelvin = clampKelvin(kelvin)
	d.mu.Lock()
	if d.state.ColorTempK == kelvin && d.state.Mode == ModeColorTemp {
		d.mu.Unlock()
		return nil
	}
	d.state.ColorTempK = kelvin
	d.state.Mode = ModeColorTemp
	st := d.state
	d.mu.Unlock()

	d.logger.Debug("color temperature", "kelvin", kelvin, "origin", origin)
	err := d.backend.Apply(st)
	d.report(origin, func(s *Source) {
		if s.OnColorTemp != nil {
			s.OnColorTemp(kelvin)
		}
	})
	return err
}

// report runs fn for every source except the originator. Callbacks run
// outside the state lock; they are allowed to call back into the
// driver (the equality check stops the recursion).
func (d *Driver) report(origin string, fn func(*Source)) {
	d.mu.Lock()
	targets := make([]*Source, 0, len(d.sources))
	for _, s := range d.sources {
		if s.name != origin {
			targets = append(targets, s)
		}
	}
	d.mu.Unlock()
	for _, s := range targets {
		fn(s)
	}
}

const blinkPeriod = 500 * time.Millisecond

// Blink runs the identify effect: the output toggles at a fixed period
// for the given duration and the real state is restored afterwards.
// The lamp state itself is not modified.
func (d *Driver) Blink(duration time.Duration) {
	d.logger.Info("identify blink", "duration", duration)
	go func() {
		ticker := time.NewTicker(blinkPeriod)
		defer ticker.Stop()
		deadline := time.NewTimer(duration)
		defer deadline.Stop()

		inverted := false
		for {
			select {
			case <-ticker.C:
				inverted = !inverted
				st := d.State()
				if inverted {
					st.On = !st.On
				}
				if err := d.backend.Apply(st); err != nil {
					d.logger.Warn("blink apply", "err", err)
				}
			case <-deadline.C:
				if err := d.backend.Apply(d.State()); err != nil {
					d.logger.Warn("blink restore", "err", err)
				}
				return
			case <-d.done:
				return
			}
		}
	}()
}

func clampLevel(v uint8) uint8 {
	if v < LevelMin {
		return LevelMin
	}
	if v > LevelMax {
		return LevelMax
	}
	return v
}

func clampKelvin(v uint16) uint16 {
	if v < KelvinMin {
		return KelvinMin
	}
	if v > KelvinMax {
		return KelvinMax
	}
	return v
}
