package node

import "lampd/internal/zcl/clusters"

// StartUpOnOff values
const (
	startUpOff      uint8 = 0x00
	startUpOn       uint8 = 0x01
	startUpToggle   uint8 = 0x02
	startUpPrevious uint8 = 0xFF
)

// applyStartUp applies the StartUp* attribute semantics after restore:
// the persisted value is "previous", everything else overrides it.
func (n *Node) applyStartUp() {
	for _, ep := range n.endpoints {
		if ep.HasCluster(clusters.IDOnOff) {
			n.applyStartUpOnOff(ep.ID)
		}
		if ep.HasCluster(clusters.IDLevelControl) {
			n.applyStartUpLevel(ep.ID)
		}
		if ep.HasCluster(clusters.IDColorControl) {
			n.applyStartUpColorTemp(ep.ID)
		}
	}
}

func (n *Node) applyStartUpOnOff(ep uint8) {
	switch n.uint8Attr(ep, clusters.IDOnOff, clusters.AttrStartUpOnOff, startUpPrevious) {
	case startUpOff:
		n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, false, "startup")
	case startUpOn:
		n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, true, "startup")
	case startUpToggle:
		cur, _ := n.ReadAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff)
		on, _ := cur.(bool)
		n.SetAttribute(ep, clusters.IDOnOff, clusters.AttrOnOff, !on, "startup")
	}
}

func (n *Node) applyStartUpLevel(ep uint8) {
	startLevel := n.uint8Attr(ep, clusters.IDLevelControl, clusters.AttrStartUpCurrentLevel, 0xFF)
	if startLevel == 0xFF {
		return // previous
	}
	// 0x00 means minimum level.
	n.SetAttribute(ep, clusters.IDLevelControl, clusters.AttrCurrentLevel, clampLevel(uint64(startLevel)), "startup")
}

func (n *Node) applyStartUpColorTemp(ep uint8) {
	startMireds := n.uint16Attr(ep, clusters.IDColorControl, clusters.AttrStartUpColorTemperatureMireds, 0xFFFF)
	if startMireds == 0xFFFF {
		return // previous
	}
	minM := n.uint16Attr(ep, clusters.IDColorControl, clusters.AttrColorTempPhysicalMinMireds, 1)
	maxM := n.uint16Attr(ep, clusters.IDColorControl, clusters.AttrColorTempPhysicalMaxMireds, 0xFEFF)
	if startMireds < minM {
		startMireds = minM
	} else if startMireds > maxM {
		startMireds = maxM
	}
	n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorTemperatureMireds, startMireds, "startup")
	n.SetAttribute(ep, clusters.IDColorControl, clusters.AttrColorMode, clusters.ColorModeColorTemp, "startup")
}
