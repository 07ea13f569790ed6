package clusters

import "lampd/internal/zcl"

// StartUpOnOff values per ZCL: 0=off, 1=on, 2=toggle, 0xFF=previous.
var OnOff = zcl.ClusterDef{
	ID:   0x0006,
	Name: "On/Off",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "OnOff", Type: zcl.TypeBool, Access: zcl.AccessRead | zcl.AccessReport, Default: false, Persist: true},
		{ID: 0x4003, Name: "StartUpOnOff", Type: zcl.TypeEnum8, Access: zcl.AccessRead | zcl.AccessWrite, Default: uint8(0xFF), Persist: true},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "Off"},
		{ID: 0x01, Name: "On"},
		{ID: 0x02, Name: "Toggle"},
	},
}
