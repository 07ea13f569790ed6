package driver

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

const (
	buttonPollInterval = 10 * time.Millisecond
	buttonDebounce     = 2 // consecutive identical samples
	longPressAfter     = 500 * time.Millisecond
	rampInterval       = 100 * time.Millisecond
	rampStep           = 8
)

// ButtonConfig describes the local push button wiring.
type ButtonConfig struct {
	Pin       uint8 `yaml:"pin"`
	ActiveLow bool  `yaml:"active_low"`
}

// Button polls a GPIO push button. A short press toggles power, a
// long press ramps brightness. The ramp direction alternates between
// long presses.
type Button struct {
	pin       rpio.Pin
	activeLow bool
	source    *Source
	driver    *Driver
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewButton(cfg ButtonConfig, d *Driver, logger *slog.Logger) (*Button, error) {
	if err := gpioOpen(); err != nil {
		return nil, fmt.Errorf("button: open gpio: %w", err)
	}
	pin := rpio.Pin(cfg.Pin)
	pin.Input()
	if cfg.ActiveLow {
		pin.PullUp()
	} else {
		pin.PullDown()
	}

	b := &Button{
		pin:       pin,
		activeLow: cfg.ActiveLow,
		source:    d.RegisterSource("button"),
		driver:    d,
		logger:    logger,
		done:      make(chan struct{}),
	}
	b.wg.Add(1)
	go b.poll()
	logger.Info("button ready", "pin", cfg.Pin, "active_low", cfg.ActiveLow)
	return b, nil
}

func (b *Button) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	b.wg.Wait()
	return gpioClose()
}

func (b *Button) pressed() bool {
	return (b.pin.Read() == rpio.Low) == b.activeLow
}

func (b *Button) poll() {
	defer b.wg.Done()

	ticker := time.NewTicker(buttonPollInterval)
	defer ticker.Stop()

	var (
		stable     bool // debounced state
		raw        bool
		rawCount   int
		pressedAt  time.Time
		ramping    bool
		rampUp     bool
		lastRampAt time.Time
	)

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
		}

		sample := b.pressed()
		if sample != raw {
			raw = sample
			rawCount = 1
			continue
		}
		if rawCount < buttonDebounce {
			rawCount++
			continue
		}

		if raw != stable {
			stable = raw
			if stable {
				pressedAt = time.Now()
				ramping = false
			} else {
				if ramping {
					b.logger.Debug("button ramp finished", "level", b.driver.State().Level)
				} else if time.Since(pressedAt) < longPressAfter {
					on := !b.driver.State().On
					b.logger.Info("button toggle", "on", on)
					if err := b.source.SetPower(on); err != nil {
						b.logger.Error("button toggle", "err", err)
					}
				}
			}
			continue
		}

		if !stable {
			continue
		}

		// Held down. Past the long press threshold the button ramps
		// brightness until release.
		if !ramping && time.Since(pressedAt) >= longPressAfter {
			ramping = true
			rampUp = !rampUp
			lastRampAt = time.Time{}
			if !b.driver.State().On {
				rampUp = true
				if err := b.source.SetPower(true); err != nil {
					b.logger.Error("button ramp power", "err", err)
				}
			}
			b.logger.Debug("button ramp start", "up", rampUp)
		}
		if ramping && time.Since(lastRampAt) >= rampInterval {
			lastRampAt = time.Now()
			b.rampOnce(rampUp)
		}
	}
}

func (b *Button) rampOnce(up bool) {
	level := b.driver.State().Level
	var next uint8
	if up {
		if level > LevelMax-rampStep {
			next = LevelMax
		} else {
			next = level + rampStep
		}
	} else {
		if level < LevelMin+rampStep {
			next = LevelMin
		} else {
			next = level - rampStep
		}
	}
	if next == level {
		return
	}
	if err := b.source.SetLevel(next); err != nil {
		b.logger.Error("button ramp", "err", err)
	}
}
