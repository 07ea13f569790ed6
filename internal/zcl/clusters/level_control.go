package clusters

import "lampd/internal/zcl"

// OnLevel 0xFF means "use previous level"; StartUpCurrentLevel 0xFF
// means "restore previous", 0x00 means minimum.
var LevelControl = zcl.ClusterDef{
	ID:   0x0008,
	Name: "Level Control",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "CurrentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport, Default: uint8(128), Persist: true},
		{ID: 0x0001, Name: "RemainingTime", Type: zcl.TypeUint16, Access: zcl.AccessRead, Default: uint16(0)},
		{ID: 0x0011, Name: "OnLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessWrite, Default: uint8(0xFF), Persist: true},
		{ID: 0x4000, Name: "StartUpCurrentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessWrite, Default: uint8(0xFF), Persist: true},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "MoveToLevel"},
		{ID: 0x02, Name: "Step"},
		{ID: 0x04, Name: "MoveToLevelWithOnOff"},
		{ID: 0x06, Name: "StepWithOnOff"},
	},
}
