//go:build !no_mqtt

package mqtt

import (
	"fmt"

	"lampd/internal/node"
)

// discoveryMsg is one retained Home Assistant discovery publication.
type discoveryMsg struct {
	Topic   string
	Payload []byte
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// haDiscovery is the Home Assistant MQTT light config in JSON schema.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	Schema              string   `json:"schema"`
	CommandTopic        string   `json:"command_topic"`
	StateTopic          string   `json:"state_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Brightness          bool     `json:"brightness"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	MinMireds           uint16   `json:"min_mireds,omitempty"`
	MaxMireds           uint16   `json:"max_mireds,omitempty"`
	Device              haDevice `json:"device"`
}

// buildDiscovery builds the single light entity announcement for this
// lamp. The payload is retained so Home Assistant restarts pick it up.
func buildDiscovery(info node.Info, prefix string, minMireds, maxMireds uint16) discoveryMsg {
	cfg := haDiscovery{
		Name:              info.Name,
		UniqueID:          info.UniqueID + "_light",
		Schema:            "json",
		CommandTopic:      prefix + "/set",
		StateTopic:        prefix,
		AvailabilityTopic: prefix + "/availability",
		Brightness:        true,
		BrightnessScale:   254,
		SupportedColorModes: []string{
			"hs",
			"color_temp",
		},
		MinMireds: minMireds,
		MaxMireds: maxMireds,
		Device: haDevice{
			Identifiers:  []string{info.UniqueID},
			Manufacturer: info.Manufacturer,
			Model:        info.Model,
			Name:         info.Name,
			SWVersion:    info.SWVersion,
		},
	}

	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/light/%s/light/config", info.UniqueID),
		Payload: mustJSON(cfg),
	}
}
