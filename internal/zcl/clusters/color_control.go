package clusters

import "lampd/internal/zcl"

// ColorMode: 0=hue/saturation, 2=color temperature. ColorCapabilities
// 0x0011 = hue/saturation + color temperature.
var ColorControl = zcl.ClusterDef{
	ID:   0x0300,
	Name: "Color Control",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "CurrentHue", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport, Default: uint8(0), Persist: true},
		{ID: 0x0001, Name: "CurrentSaturation", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport, Default: uint8(0), Persist: true},
		{ID: 0x0007, Name: "ColorTemperatureMireds", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport, Default: uint16(370), Persist: true},
		{ID: 0x0008, Name: "ColorMode", Type: zcl.TypeEnum8, Access: zcl.AccessRead, Default: uint8(2), Persist: true},
		{ID: 0x000F, Name: "Options", Type: zcl.TypeBitmap8, Access: zcl.AccessRead | zcl.AccessWrite, Default: uint8(0), Persist: true},
		{ID: 0x400A, Name: "ColorCapabilities", Type: zcl.TypeBitmap16, Access: zcl.AccessRead, Default: uint16(0x0011)},
		{ID: 0x400B, Name: "ColorTempPhysicalMinMireds", Type: zcl.TypeUint16, Access: zcl.AccessRead, Default: uint16(153)},
		{ID: 0x400C, Name: "ColorTempPhysicalMaxMireds", Type: zcl.TypeUint16, Access: zcl.AccessRead, Default: uint16(500)},
		{ID: 0x4010, Name: "StartUpColorTemperatureMireds", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite, Default: uint16(0xFFFF), Persist: true},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "MoveToHue"},
		{ID: 0x03, Name: "MoveToSaturation"},
		{ID: 0x06, Name: "MoveToHueAndSaturation"},
		{ID: 0x0A, Name: "MoveToColorTemperature"},
	},
}
