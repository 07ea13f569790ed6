package adapter

// Attribute range bounds used by the remaps. Hue and saturation live
// in 0..254 on the cluster side and in degrees / percent on the
// driver side.
const (
	attrHueMax = 254
	attrSatMax = 254
)

// RemapRange rescales v from the range 0..fromMax to 0..toMax,
// preserving the relative position. Plain integer arithmetic, so the
// mapping loses up to one unit per direction.
func RemapRange(v, fromMax, toMax uint32) uint32 {
	return v * toMax / fromMax
}

// MiredsToKelvin converts a mireds attribute value to kelvins.
// Zero mireds is treated as one so the division is always defined.
func MiredsToKelvin(mireds uint16) uint32 {
	if mireds == 0 {
		mireds = 1
	}
	return 1_000_000 / uint32(mireds)
}

// KelvinToMireds converts kelvins to a mireds value that fits the
// u16 color temperature attribute. Kelvins below 16 (including zero)
// are raised to 16, and the result is clamped to 1..0xFEFF.
func KelvinToMireds(kelvin uint32) uint16 {
	if kelvin < 16 {
		kelvin = 16
	}
	mireds := 1_000_000 / kelvin
	if mireds > 0xFEFF {
		mireds = 0xFEFF
	}
	if mireds < 1 {
		mireds = 1
	}
	return uint16(mireds)
}
