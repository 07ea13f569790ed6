package node

// ZCL HA profile device types relevant to lighting.
const (
	DeviceTypeOnOffLight         uint16 = 0x0100
	DeviceTypeDimmableLight      uint16 = 0x0101
	DeviceTypeColorTempLight     uint16 = 0x010C
	DeviceTypeExtendedColorLight uint16 = 0x010D
)

// Endpoint groups the clusters one logical device exposes.
type Endpoint struct {
	ID         uint8    `json:"id"`
	DeviceType uint16   `json:"device_type"`
	Clusters   []uint16 `json:"clusters"`
}

// HasCluster reports whether the endpoint carries a cluster.
func (e *Endpoint) HasCluster(id uint16) bool {
	for _, c := range e.Clusters {
		if c == id {
			return true
		}
	}
	return false
}

// LampEndpoint returns the standard endpoint composition for the lamp:
// endpoint 1 as an extended color light.
func LampEndpoint() Endpoint {
	return Endpoint{
		ID:         1,
		DeviceType: DeviceTypeExtendedColorLight,
		Clusters:   []uint16{0x0000, 0x0003, 0x0006, 0x0008, 0x0300},
	}
}
