package driver

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// Software PWM: 50 Hz with 32 duty slices per period. The Pi has only
// two hardware PWM channels, the lamp needs five.
const (
	pwmSlices = 32
	pwmTick   = time.Second / (50 * pwmSlices)
)

// PWMPins holds the BCM pin numbers of the five LED channels.
type PWMPins struct {
	Red   uint8 `yaml:"red"`
	Green uint8 `yaml:"green"`
	Blue  uint8 `yaml:"blue"`
	Warm  uint8 `yaml:"warm"`
	Cool  uint8 `yaml:"cool"`
}

// PWMBackend drives an RGB+CCT LED lamp directly from GPIO.
type PWMBackend struct {
	logger *slog.Logger
	pins   [5]rpio.Pin

	mu     sync.Mutex
	duties [5]uint8 // 0..pwmSlices per channel

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewPWMBackend(pins PWMPins, logger *slog.Logger) (*PWMBackend, error) {
	if err := gpioOpen(); err != nil {
		return nil, fmt.Errorf("pwm: open gpio: %w", err)
	}
	p := &PWMBackend{
		logger: logger,
		pins: [5]rpio.Pin{
			rpio.Pin(pins.Red),
			rpio.Pin(pins.Green),
			rpio.Pin(pins.Blue),
			rpio.Pin(pins.Warm),
			rpio.Pin(pins.Cool),
		},
		done: make(chan struct{}),
	}
	for _, pin := range p.pins {
		pin.Output()
		pin.Low()
	}
	p.wg.Add(1)
	go p.run()
	logger.Info("pwm backend ready",
		"red", pins.Red, "green", pins.Green, "blue", pins.Blue,
		"warm", pins.Warm, "cool", pins.Cool)
	return p, nil
}

func (p *PWMBackend) Apply(st State) error {
	duties := stateDuties(st)
	p.mu.Lock()
	p.duties = duties
	p.mu.Unlock()
	p.logger.Debug("pwm apply",
		"r", duties[0], "g", duties[1], "b", duties[2],
		"ww", duties[3], "cw", duties[4])
	return nil
}

func (p *PWMBackend) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	for _, pin := range p.pins {
		pin.Low()
	}
	return gpioClose()
}

func (p *PWMBackend) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		duties := p.duties
		p.mu.Unlock()

		for slice := uint8(0); slice < pwmSlices; slice++ {
			for i, pin := range p.pins {
				if duties[i] > slice {
					pin.High()
				} else {
					pin.Low()
				}
			}
			select {
			case <-p.done:
				return
			case <-time.After(pwmTick):
			}
		}
	}
}

// stateDuties converts a lamp state into per-channel duty slices.
// Color temperature mode mixes the two white channels, hue/sat mode
// uses the RGB channels.
func stateDuties(st State) [5]uint8 {
	var d [5]uint8
	if !st.On {
		return d
	}
	v := float64(st.Level) / float64(LevelMax)

	if st.Mode == ModeColorTemp {
		cool := kelvinFraction(st.ColorTempK)
		d[3] = duty(v * (1 - cool))
		d[4] = duty(v * cool)
		return d
	}

	r, g, b := hsvToRGB(st.Hue, float64(st.Saturation)/float64(SaturationMax), v)
	d[0] = duty(r)
	d[1] = duty(g)
	d[2] = duty(b)
	return d
}

// kelvinFraction maps the supported kelvin range onto 0 (full warm)
// to 1 (full cool).
func kelvinFraction(kelvin uint16) float64 {
	if kelvin <= KelvinMin {
		return 0
	}
	if kelvin >= KelvinMax {
		return 1
	}
	return float64(kelvin-KelvinMin) / float64(KelvinMax-KelvinMin)
}

func duty(x float64) uint8 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return pwmSlices
	}
	return uint8(math.Round(x * pwmSlices))
}

// hsvToRGB converts hue (degrees), saturation and value (0..1) into
// RGB components in 0..1.
func hsvToRGB(hue uint16, s, v float64) (r, g, b float64) {
	if s <= 0 {
		return v, v, v
	}
	h := float64(hue%360) / 60
	sector := int(h)
	f := h - float64(sector)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch sector {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
