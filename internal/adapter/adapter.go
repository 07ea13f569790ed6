// Package adapter bridges the node's cluster attributes and the lamp
// driver. Attribute changes dispatch into driver setters, driver
// reports write attributes back, and every change surfaces as a
// property_update event for the front-ends.
package adapter

import (
	"log/slog"
	"sync"
	"time"

	"lampd/internal/driver"
	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

type Adapter struct {
	node     *node.Node
	driver   *driver.Driver
	source   *driver.Source
	endpoint uint8
	logger   *slog.Logger

	mu            sync.Mutex
	identifyTimer *time.Timer
}

// Bind wires the adapter between node and driver: it registers the
// attribute-change hook and the "node" driver source. Call before the
// node starts accepting external writes.
func Bind(n *node.Node, d *driver.Driver, endpoint uint8, logger *slog.Logger) *Adapter {
	a := &Adapter{
		node:     n,
		driver:   d,
		endpoint: endpoint,
		logger:   logger,
	}

	a.source = d.RegisterSource("node")
	a.source.OnPower = a.reportPower
	a.source.OnLevel = a.reportLevel
	a.source.OnHue = a.reportHue
	a.source.OnSaturation = a.reportSaturation
	a.source.OnColorTemp = a.reportColorTemp

	n.OnAttributeChange(a.dispatch)
	return a
}

// Sync pushes the node's restored attribute state into the driver.
// Runs once at bring-up; the "node" origin keeps the writes from
// echoing back into the attribute store.
func (a *Adapter) Sync() error {
	on := a.boolAttr(clusters.IDOnOff, clusters.AttrOnOff)
	level := a.uint8Attr(clusters.IDLevelControl, clusters.AttrCurrentLevel, 128)
	hue := a.uint8Attr(clusters.IDColorControl, clusters.AttrCurrentHue, 0)
	sat := a.uint8Attr(clusters.IDColorControl, clusters.AttrCurrentSaturation, 0)
	mireds := a.uint16Attr(clusters.IDColorControl, clusters.AttrColorTemperatureMireds, 370)
	mode := a.uint8Attr(clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeColorTemp)

	// The color setter invoked last decides the driver's color mode,
	// so the active mode goes last.
	if mode == clusters.ColorModeHueSat {
		a.setColorTemp(mireds)
		a.setHue(hue)
		a.setSaturation(sat)
	} else {
		a.setHue(hue)
		a.setSaturation(sat)
		a.setColorTemp(mireds)
	}
	if err := a.source.SetLevel(level); err != nil {
		return err
	}
	if err := a.source.SetPower(on); err != nil {
		return err
	}

	a.logger.Info("driver synced",
		"on", on, "level", level,
		"hue", hue, "saturation", sat, "mireds", mireds)
	return a.driver.Apply()
}

// dispatch routes one attribute change into the matching driver
// setter. Changes the driver already knows about come back here once
// more after the node write; the driver drops them as unchanged.
func (a *Adapter) dispatch(ep uint8, cluster, attr uint16, value interface{}) {
	if ep != a.endpoint {
		return
	}

	switch cluster {
	case clusters.IDOnOff:
		switch attr {
		case clusters.AttrOnOff:
			on, ok := value.(bool)
			if !ok {
				return
			}
			if err := a.source.SetPower(on); err != nil {
				a.logger.Error("set power", "err", err)
			}
		case clusters.AttrStartUpOnOff:
			return // config only
		default:
			a.logger.Warn("unknown on/off attribute", "attr", attr)
			return
		}

	case clusters.IDLevelControl:
		switch attr {
		case clusters.AttrCurrentLevel:
			level, ok := value.(uint8)
			if !ok {
				return
			}
			if err := a.source.SetLevel(level); err != nil {
				a.logger.Error("set level", "err", err)
			}
		case clusters.AttrRemainingTime, clusters.AttrOnLevel, clusters.AttrStartUpCurrentLevel:
			return // config only
		default:
			a.logger.Warn("unknown level attribute", "attr", attr)
			return
		}

	case clusters.IDColorControl:
		switch attr {
		case clusters.AttrCurrentHue:
			hue, ok := value.(uint8)
			if !ok {
				return
			}
			a.setHue(hue)
		case clusters.AttrCurrentSaturation:
			sat, ok := value.(uint8)
			if !ok {
				return
			}
			a.setSaturation(sat)
		case clusters.AttrColorTemperatureMireds:
			// Convert from the stored attribute, not the callback
			// value: concurrent writes leave the store authoritative.
			a.setColorTemp(a.uint16Attr(clusters.IDColorControl, clusters.AttrColorTemperatureMireds, 370))
		case clusters.AttrColorMode:
			// Follows the color setters implicitly.
		case clusters.AttrOptions, clusters.AttrColorCapabilities,
			clusters.AttrColorTempPhysicalMinMireds, clusters.AttrColorTempPhysicalMaxMireds,
			clusters.AttrStartUpColorTemperatureMireds:
			return // config only
		default:
			a.logger.Warn("unknown color attribute", "attr", attr)
			return
		}

	case clusters.IDIdentify:
		if attr == clusters.AttrIdentifyTime {
			secs, ok := value.(uint16)
			if ok && secs > 0 {
				a.startIdentify(secs)
			}
		}
		return

	default:
		return
	}

	a.emitProperties()
}

func (a *Adapter) setHue(hue254 uint8) {
	if err := a.source.SetHue(uint16(RemapRange(uint32(hue254), attrHueMax, uint32(driver.HueMax)))); err != nil {
		a.logger.Error("set hue", "err", err)
	}
}

func (a *Adapter) setSaturation(sat254 uint8) {
	if err := a.source.SetSaturation(uint8(RemapRange(uint32(sat254), attrSatMax, uint32(driver.SaturationMax)))); err != nil {
		a.logger.Error("set saturation", "err", err)
	}
}

func (a *Adapter) setColorTemp(mireds uint16) {
	kelvin := MiredsToKelvin(mireds)
	if kelvin > uint32(driver.KelvinMax) {
		kelvin = uint32(driver.KelvinMax)
	}
	if err := a.source.SetColorTemp(uint16(kelvin)); err != nil {
		a.logger.Error("set color temperature", "err", err)
	}
}

// startIdentify runs the blink effect and arms a timer that clears
// IdentifyTime once the effect ends, so the next identify with the
// same duration is not swallowed by the store's equality check.
func (a *Adapter) startIdentify(secs uint16) {
	duration := time.Duration(secs) * time.Second
	a.driver.Blink(duration)

	a.mu.Lock()
	if a.identifyTimer != nil {
		a.identifyTimer.Stop()
	}
	a.identifyTimer = time.AfterFunc(duration, func() {
		if err := a.node.SetAttribute(a.endpoint, clusters.IDIdentify, clusters.AttrIdentifyTime, uint16(0), "node"); err != nil {
			a.logger.Error("clear identify time", "err", err)
		}
	})
	a.mu.Unlock()
}

// --- driver -> node ---

func (a *Adapter) reportPower(on bool) {
	if err := a.node.SetAttribute(a.endpoint, clusters.IDOnOff, clusters.AttrOnOff, on, "node"); err != nil {
		a.logger.Error("report power", "err", err)
	}
}

func (a *Adapter) reportLevel(level uint8) {
	if err := a.node.SetAttribute(a.endpoint, clusters.IDLevelControl, clusters.AttrCurrentLevel, level, "node"); err != nil {
		a.logger.Error("report level", "err", err)
	}
}

func (a *Adapter) reportHue(hue uint16) {
	v := uint8(RemapRange(uint32(hue), uint32(driver.HueMax), attrHueMax))
	if err := a.node.SetAttribute(a.endpoint, clusters.IDColorControl, clusters.AttrCurrentHue, v, "node"); err != nil {
		a.logger.Error("report hue", "err", err)
	}
}

func (a *Adapter) reportSaturation(sat uint8) {
	v := uint8(RemapRange(uint32(sat), uint32(driver.SaturationMax), attrSatMax))
	if err := a.node.SetAttribute(a.endpoint, clusters.IDColorControl, clusters.AttrCurrentSaturation, v, "node"); err != nil {
		a.logger.Error("report saturation", "err", err)
	}
}

func (a *Adapter) reportColorTemp(kelvin uint16) {
	if err := a.node.SetAttribute(a.endpoint, clusters.IDColorControl, clusters.AttrColorTemperatureMireds, KelvinToMireds(uint32(kelvin)), "node"); err != nil {
		a.logger.Error("report color temperature", "err", err)
	}
}

// --- properties ---

// Properties returns the lamp state in domain units, the shape every
// front-end shares.
func (a *Adapter) Properties() map[string]interface{} {
	hue254 := a.uint8Attr(clusters.IDColorControl, clusters.AttrCurrentHue, 0)
	sat254 := a.uint8Attr(clusters.IDColorControl, clusters.AttrCurrentSaturation, 0)
	mode := "color_temp"
	if a.uint8Attr(clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeColorTemp) == clusters.ColorModeHueSat {
		mode = "hs"
	}
	return map[string]interface{}{
		"state":      a.boolAttr(clusters.IDOnOff, clusters.AttrOnOff),
		"brightness": a.uint8Attr(clusters.IDLevelControl, clusters.AttrCurrentLevel, 128),
		"color": map[string]interface{}{
			"h": RemapRange(uint32(hue254), attrHueMax, uint32(driver.HueMax)),
			"s": RemapRange(uint32(sat254), attrSatMax, uint32(driver.SaturationMax)),
		},
		"color_temp": a.uint16Attr(clusters.IDColorControl, clusters.AttrColorTemperatureMireds, 370),
		"color_mode": mode,
	}
}

func (a *Adapter) emitProperties() {
	a.node.Events().Emit(node.Event{Type: node.EventPropertyUpdate, Data: a.Properties()})
}

func (a *Adapter) boolAttr(cluster, attr uint16) bool {
	v, err := a.node.ReadAttribute(a.endpoint, cluster, attr)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (a *Adapter) uint8Attr(cluster, attr uint16, fallback uint8) uint8 {
	v, err := a.node.ReadAttribute(a.endpoint, cluster, attr)
	if err != nil {
		return fallback
	}
	if u, ok := v.(uint8); ok {
		return u
	}
	return fallback
}

func (a *Adapter) uint16Attr(cluster, attr uint16, fallback uint16) uint16 {
	v, err := a.node.ReadAttribute(a.endpoint, cluster, attr)
	if err != nil {
		return fallback
	}
	if u, ok := v.(uint16); ok {
		return u
	}
	return fallback
}
