package clusters

// Cluster IDs
const (
	IDBasic        uint16 = 0x0000
	IDIdentify     uint16 = 0x0003
	IDOnOff        uint16 = 0x0006
	IDLevelControl uint16 = 0x0008
	IDColorControl uint16 = 0x0300
)

// Attribute IDs referenced across packages.
const (
	AttrManufacturerName uint16 = 0x0004
	AttrModelIdentifier  uint16 = 0x0005
	AttrSWBuildID        uint16 = 0x4000
	AttrSerialNumber     uint16 = 0x4001

	AttrIdentifyTime uint16 = 0x0000

	AttrOnOff        uint16 = 0x0000
	AttrStartUpOnOff uint16 = 0x4003

	AttrCurrentLevel        uint16 = 0x0000
	AttrRemainingTime       uint16 = 0x0001
	AttrOnLevel             uint16 = 0x0011
	AttrStartUpCurrentLevel uint16 = 0x4000

	AttrCurrentHue                    uint16 = 0x0000
	AttrCurrentSaturation             uint16 = 0x0001
	AttrColorTemperatureMireds        uint16 = 0x0007
	AttrColorMode                     uint16 = 0x0008
	AttrOptions                       uint16 = 0x000F
	AttrColorCapabilities             uint16 = 0x400A
	AttrColorTempPhysicalMinMireds    uint16 = 0x400B
	AttrColorTempPhysicalMaxMireds    uint16 = 0x400C
	AttrStartUpColorTemperatureMireds uint16 = 0x4010
)

// Command IDs
const (
	CmdIdentify      uint8 = 0x00
	CmdIdentifyQuery uint8 = 0x01

	CmdOff    uint8 = 0x00
	CmdOn     uint8 = 0x01
	CmdToggle uint8 = 0x02

	CmdMoveToLevel          uint8 = 0x00
	CmdStep                 uint8 = 0x02
	CmdMoveToLevelWithOnOff uint8 = 0x04
	CmdStepWithOnOff        uint8 = 0x06

	CmdMoveToHue              uint8 = 0x00
	CmdMoveToSaturation       uint8 = 0x03
	CmdMoveToHueAndSaturation uint8 = 0x06
	CmdMoveToColorTemperature uint8 = 0x0A
)

// ColorMode values
const (
	ColorModeHueSat    uint8 = 0
	ColorModeColorTemp uint8 = 2
)
