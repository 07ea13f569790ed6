package node

import (
	"fmt"

	"lampd/internal/zcl/clusters"
)

// Invoke dispatches a cluster command to the node. Payload keys depend
// on the command ("level", "hue", "saturation", "mireds", "mode",
// "step", "time", "transition"). Transition times are accepted and
// applied immediately; RemainingTime stays 0.
func (n *Node) Invoke(endpoint uint8, cluster uint16, command uint8, payload map[string]interface{}, source string) error {
	ep := n.endpoint(endpoint)
	if ep == nil || !ep.HasCluster(cluster) {
		return fmt.Errorf("endpoint %d cluster 0x%04X: %w", endpoint, cluster, ErrUnsupportedCluster)
	}
	cdef := n.registry.Get(cluster)
	if cdef == nil {
		return fmt.Errorf("cluster 0x%04X: %w", cluster, ErrUnsupportedCluster)
	}
	cmd := cdef.FindCommand(command)
	if cmd == nil {
		return fmt.Errorf("cluster %s command 0x%02X: %w", cdef.Name, command, ErrUnsupportedCommand)
	}

	var err error
	switch cluster {
	case clusters.IDIdentify:
		err = n.identifyCommand(endpoint, command, payload, source)
	case clusters.IDOnOff:
		err = n.onOffCommand(endpoint, command, source)
	case clusters.IDLevelControl:
		err = n.levelCommand(endpoint, command, payload, source)
	case clusters.IDColorControl:
		err = n.colorCommand(endpoint, command, payload, source)
	default:
		err = fmt.Errorf("cluster %s: %w", cdef.Name, ErrUnsupportedCluster)
	}
	if err != nil {
		return err
	}

	n.logger.Debug("command dispatched", "cluster", cdef.Name, "command", cmd.Name, "source", source)
	n.events.Emit(Event{Type: EventCommand, Data: map[string]interface{}{
		"endpoint": endpoint,
		"cluster":  cluster,
		"command":  cmd.Name,
		"id":       command,
		"source":   source,
		"payload":  payload,
	}})
	return nil
}

func (n *Node) identifyCommand(ep uint8, command uint8, payload map[string]interface{}, source string) error {
	switch command {
	case clusters.CmdIdentify:
		secs, ok := payloadUint(payload, "time")
		if !ok {
			return fmt.Errorf("identify needs time: %w", ErrInvalidPayload)
		}
		if err := n.SetAttribute(ep, clusters.IDIdentify, clusters.AttrIdentifyTime, secs, source); err != nil {
			return err
		}
		n.events.Emit(Event{Type: EventIdentify, Data: map[string]interface{}{
			"endpoint": ep,
			"seconds":  secs,
			"source":   source,
		}})
		return nil
	case clusters.CmdIdentifyQuery:
		remaining, _ := n.ReadAttribute(ep, clusters.IDIdentify, clusters.AttrIdentifyTime)
		n.logger.Info("identify query", "remaining", remaining)
		return nil
	}
	return ErrUnsupportedCommand
}

func (n *Node) onOffCommand(ep uint8, command uint8, source string) error {
	switch command {
	case clusters.CmdOff:
		return n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, false, source)
	case clusters.CmdOn:
		return n.turnOn(ep, source)
	case clusters.CmdToggle:
		cur, err := n.ReadAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff)
		if err != nil {
			return err
		}
		if on, _ := cur.(bool); on {
			return n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, false, source)
		}
		return n.turnOn(ep, source)
	}
	return ErrUnsupportedCommand
}

// turnOn applies the OnLevel semantics: an OnLevel other than 0xFF
// replaces the current level whenever the lamp turns on by command.
func (n *Node) turnOn(ep uint8, source string) error {
	if onLevel := n.uint8Attr(ep, clusters.IDLevelControl, clusters.AttrOnLevel, 0xFF); onLevel != 0xFF {
		if err := n.SetAttribute(ep, clusters.IDLevelControl, clusters.AttrCurrentLevel, clampLevel(uint64(onLevel)), source); err != nil {
			return err
		}
	}
	return n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, true, source)
}

func (n *Node) levelCommand(ep uint8, command uint8, payload map[string]interface{}, source string) error {
	switch command {
	case clusters.CmdMoveToLevel, clusters.CmdMoveToLevelWithOnOff:
		level, ok := payloadUint(payload, "level")
		if !ok {
			return fmt.Errorf("move to level needs level: %w", ErrInvalidPayload)
		}
		withOnOff := command == clusters.CmdMoveToLevelWithOnOff
		// Level 0 with on/off means dim to nothing: the lamp turns off
		// and the level parks at the minimum.
		if withOnOff && level == 0 {
			if err := n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, false, source); err != nil {
				return err
			}
			return n.SetAttribute(ep, clusters.IDLevelControl, clusters.AttrCurrentLevel, uint8(1), source)
		}
		if err := n.SetAttribute(ep, clusters.IDLevelControl, clusters.AttrCurrentLevel, clampLevel(level), source); err != nil {
			return err
		}
		if withOnOff {
			return n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, true, source)
		}
		return nil

	case clusters.CmdStep, clusters.CmdStepWithOnOff:
		size, ok := payloadUint(payload, "step")
		if !ok {
			return fmt.Errorf("step needs step size: %w", ErrInvalidPayload)
		}
		down, ok := payloadStepDown(payload)
		if !ok {
			return fmt.Errorf("step needs mode up or down: %w", ErrInvalidPayload)
		}
		withOnOff := command == clusters.CmdStepWithOnOff
		cur := uint64(n.uint8Attr(ep, clusters.IDLevelControl, clusters.AttrCurrentLevel, 1))

		var target uint8
		bottomed := false
		if down {
			if size >= cur {
				target = 1
				bottomed = true
			} else {
				target = clampLevel(cur - size)
			}
		} else {
			target = clampLevel(cur + size)
		}
		if err := n.SetAttribute(ep, clusters.IDLevelControl, clusters.AttrCurrentLevel, target, source); err != nil {
			return err
		}
		// Stepping up with on/off lights the lamp and stepping down
		// past the bottom turns it off. A partial step down leaves
		// power alone.
		if withOnOff {
			if !down {
				return n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, true, source)
			}
			if bottomed {
				return n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, false, source)
			}
		}
		return nil
	}
	return ErrUnsupportedCommand
}

func (n *Node) colorCommand(ep uint8, command uint8, payload map[string]interface{}, source string) error {
	switch command {
	case clusters.CmdMoveToHue:
		hue, ok := payloadUint(payload, "hue")
		if !ok {
			return fmt.Errorf("move to hue needs hue: %w", ErrInvalidPayload)
		}
		if err := n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrCurrentHue, clampHueSat(hue), source); err != nil {
			return err
		}
		return n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeHueSat, source)

	case clusters.CmdMoveToSaturation:
		sat, ok := payloadUint(payload, "saturation")
		if !ok {
			return fmt.Errorf("move to saturation needs saturation: %w", ErrInvalidPayload)
		}
		if err := n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrCurrentSaturation, clampHueSat(sat), source); err != nil {
			return err
		}
		return n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeHueSat, source)

	case clusters.CmdMoveToHueAndSaturation:
		hue, hok := payloadUint(payload, "hue")
		sat, sok := payloadUint(payload, "saturation")
		if !hok || !sok {
			return fmt.Errorf("move to hue and saturation needs hue and saturation: %w", ErrInvalidPayload)
		}
		if err := n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrCurrentHue, clampHueSat(hue), source); err != nil {
			return err
		}
		if err := n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrCurrentSaturation, clampHueSat(sat), source); err != nil {
			return err
		}
		return n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeHueSat, source)

	case clusters.CmdMoveToColorTemperature:
		mireds, ok := payloadUint(payload, "mireds")
		if !ok {
			return fmt.Errorf("move to color temperature needs mireds: %w", ErrInvalidPayload)
		}
		minM := n.uint16Attr(ep, clusters.IDColorControl, clusters.AttrColorTempPhysicalMinMireds, 1)
		maxM := n.uint16Attr(ep, clusters.IDColorControl, clusters.AttrColorTempPhysicalMaxMireds, 0xFEFF)
		target := uint16(mireds)
		if mireds < uint64(minM) {
			target = minM
		} else if mireds > uint64(maxM) {
			target = maxM
		}
		if err := n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorTemperatureMireds, target, source); err != nil {
			return err
		}
		return n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeColorTemp, source)
	}
	return ErrUnsupportedCommand
}

// uint8Attr reads an attribute, falling back when unset.
func (n *Node) uint8Attr(ep uint8, cluster, attr uint16, fallback uint8) uint8 {
	v, err := n.ReadAttribute(ep, cluster, attr)
	if err != nil {
		return fallback
	}
	if u, ok := v.(uint8); ok {
		return u
	}
	return fallback
}

func (n *Node) uint16Attr(ep uint8, cluster, attr uint16, fallback uint16) uint16 {
	v, err := n.ReadAttribute(ep, cluster, attr)
	if err != nil {
		return fallback
	}
	if u, ok := v.(uint16); ok {
		return u
	}
	return fallback
}

// clampLevel bounds a level to the lighting range 1..254.
func clampLevel(v uint64) uint8 {
	if v < 1 {
		return 1
	}
	if v > 254 {
		return 254
	}
	return uint8(v)
}

// clampHueSat bounds hue and saturation attribute values to 0..254.
func clampHueSat(v uint64) uint8 {
	if v > 254 {
		return 254
	}
	return uint8(v)
}

func payloadUint(payload map[string]interface{}, key string) (uint64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint64:
		return v, true
	}
	return 0, false
}

// payloadStepDown reads the step direction: "up"/"down" or the ZCL
// enum values 0 (up) and 1 (down).
func payloadStepDown(payload map[string]interface{}) (down bool, ok bool) {
	if payload == nil {
		return false, false
	}
	switch v := payload["mode"].(type) {
	case string:
		switch v {
		case "up":
			return false, true
		case "down":
			return true, true
		}
	case float64:
		return v == 1, v == 0 || v == 1
	case int:
		return v == 1, v == 0 || v == 1
	}
	return false, false
}
