package clusters

import "lampd/internal/zcl"

var Identify = zcl.ClusterDef{
	ID:   0x0003,
	Name: "Identify",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "IdentifyTime", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite, Default: uint16(0)},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "Identify"},
		{ID: 0x01, Name: "IdentifyQuery"},
	},
}
