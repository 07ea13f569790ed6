// Package circadian drifts the lamp's white point with the sun: warm
// below the horizon, cooler as the sun climbs.
package circadian

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"

	"lampd/internal/adapter"
	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

// Config holds the controller settings.
type Config struct {
	Latitude  float64
	Longitude float64
	MinKelvin uint32        // color temperature with the sun below the horizon
	MaxKelvin uint32        // color temperature at solar noon
	Interval  time.Duration // update cadence
	Override  time.Duration // pause after a manual color change
}

// Controller periodically retargets the lamp's color temperature. A
// manual color command from any other source pauses it for the
// configured override window.
type Controller struct {
	node   *node.Node
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	overrideUntil time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	unsub    func()
}

// New creates a controller. Zero config fields get defaults; the only
// required settings are latitude and longitude.
func New(n *node.Node, cfg Config, logger *slog.Logger) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Override <= 0 {
		cfg.Override = time.Hour
	}
	if cfg.MinKelvin == 0 {
		cfg.MinKelvin = 2200
	}
	if cfg.MaxKelvin == 0 {
		cfg.MaxKelvin = 5500
	}
	if cfg.MaxKelvin < cfg.MinKelvin {
		cfg.MaxKelvin = cfg.MinKelvin
	}

	return &Controller{
		node:   n,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start applies the current target once and then follows the sun on
// the configured interval.
func (c *Controller) Start() {
	c.unsub = c.node.Events().On(node.EventCommand, c.onCommand)
	c.wg.Add(1)
	go c.run()
	c.logger.Info("circadian controller started",
		"lat", c.cfg.Latitude, "lon", c.cfg.Longitude,
		"range", [2]uint32{c.cfg.MinKelvin, c.cfg.MaxKelvin},
		"interval", c.cfg.Interval)
}

// Stop halts the update loop.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if c.unsub != nil {
			c.unsub()
		}
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Controller) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.apply(time.Now())
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.apply(now)
		}
	}
}

// apply moves the lamp to the sun-derived color temperature. It backs
// off while the override window is open, while the lamp is off, and
// while the lamp is showing a hue/sat color.
func (c *Controller) apply(now time.Time) {
	if c.paused(now) {
		return
	}

	on, err := c.node.ReadAttribute(1, clusters.IDOnOff, clusters.AttrOnOff)
	if err != nil {
		return
	}
	if isOn, _ := on.(bool); !isOn {
		return
	}
	if mode, err := c.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorMode); err == nil {
		if m, ok := mode.(uint8); ok && m == clusters.ColorModeHueSat {
			return
		}
	}

	mireds := adapter.KelvinToMireds(c.kelvinNow(now))
	if cur, err := c.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorTemperatureMireds); err == nil {
		if m, ok := cur.(uint16); ok && m == mireds {
			return
		}
	}

	err = c.node.Invoke(1, clusters.IDColorControl, clusters.CmdMoveToColorTemperature,
		map[string]interface{}{"mireds": mireds}, "circadian")
	if err != nil {
		c.logger.Warn("circadian update", "err", err)
		return
	}
	c.logger.Debug("circadian update", "mireds", mireds)
}

func (c *Controller) kelvinNow(t time.Time) uint32 {
	pos := suncalc.GetPosition(t, c.cfg.Latitude, c.cfg.Longitude)
	return kelvinForAltitude(pos.Altitude, c.cfg.MinKelvin, c.cfg.MaxKelvin)
}

// kelvinForAltitude maps solar altitude in radians to a color
// temperature. The ramp follows the sine of the altitude, so it is
// steep around sunrise and flat near noon.
func kelvinForAltitude(altitude float64, minK, maxK uint32) uint32 {
	if altitude <= 0 {
		return minK
	}
	frac := math.Sin(altitude)
	return minK + uint32(float64(maxK-minK)*frac+0.5)
}

// onCommand pauses the controller when any other source changes the
// lamp's color.
func (c *Controller) onCommand(ev node.Event) {
	data, ok := ev.Data.(map[string]interface{})
	if !ok {
		return
	}
	source, _ := data["source"].(string)
	if source == "circadian" || source == "startup" {
		return
	}
	cluster, ok := data["cluster"].(uint16)
	if !ok || cluster != clusters.IDColorControl {
		return
	}

	until := time.Now().Add(c.cfg.Override)
	c.mu.Lock()
	c.overrideUntil = until
	c.mu.Unlock()
	c.logger.Debug("circadian paused by manual color change", "source", source, "until", until.Format(time.TimeOnly))
}

func (c *Controller) paused(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.overrideUntil)
}
