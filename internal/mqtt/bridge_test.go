//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"testing"

	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

func TestDiscoveryLight(t *testing.T) {
	info := node.Info{
		Name:         "Desk Lamp",
		Manufacturer: "lampd",
		Model:        "lampd-one",
		SWVersion:    "1.2.0",
		UniqueID:     "lampd-0a1b2c",
	}

	msg := buildDiscovery(info, "lampd/desk", 153, 500)

	if msg.Topic != "homeassistant/light/lampd-0a1b2c/light/config" {
		t.Errorf("topic = %q", msg.Topic)
	}

	var payload haDiscovery
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if payload.Name != "Desk Lamp" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.UniqueID != "lampd-0a1b2c_light" {
		t.Errorf("unique_id = %q", payload.UniqueID)
	}
	if payload.Schema != "json" {
		t.Errorf("schema = %q, want %q", payload.Schema, "json")
	}
	if payload.CommandTopic != "lampd/desk/set" {
		t.Errorf("command_topic = %q", payload.CommandTopic)
	}
	if payload.StateTopic != "lampd/desk" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.AvailabilityTopic != "lampd/desk/availability" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}
	if !payload.Brightness || payload.BrightnessScale != 254 {
		t.Errorf("brightness = %v scale = %d", payload.Brightness, payload.BrightnessScale)
	}
	if len(payload.SupportedColorModes) != 2 ||
		payload.SupportedColorModes[0] != "hs" ||
		payload.SupportedColorModes[1] != "color_temp" {
		t.Errorf("supported_color_modes = %v", payload.SupportedColorModes)
	}
	if payload.MinMireds != 153 || payload.MaxMireds != 500 {
		t.Errorf("mireds range = %d..%d", payload.MinMireds, payload.MaxMireds)
	}
	if payload.Device.Manufacturer != "lampd" {
		t.Errorf("device.manufacturer = %q", payload.Device.Manufacturer)
	}
	if len(payload.Device.Identifiers) != 1 || payload.Device.Identifiers[0] != "lampd-0a1b2c" {
		t.Errorf("device.identifiers = %v", payload.Device.Identifiers)
	}
	if payload.Device.SWVersion != "1.2.0" {
		t.Errorf("device.sw_version = %q", payload.Device.SWVersion)
	}
}

func TestSetInvocations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []invocation
	}{
		{
			name:    "state on",
			payload: `{"state":"ON"}`,
			want:    []invocation{{clusters.IDOnOff, clusters.CmdOn, nil}},
		},
		{
			name:    "state off lowercase",
			payload: `{"state":"off"}`,
			want:    []invocation{{clusters.IDOnOff, clusters.CmdOff, nil}},
		},
		{
			name:    "toggle",
			payload: `{"state":"TOGGLE"}`,
			want:    []invocation{{clusters.IDOnOff, clusters.CmdToggle, nil}},
		},
		{
			name:    "brightness",
			payload: `{"brightness":200}`,
			want: []invocation{{clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff,
				map[string]interface{}{"level": uint8(200)}}},
		},
		{
			name:    "brightness overflow clamps",
			payload: `{"brightness":300}`,
			want: []invocation{{clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff,
				map[string]interface{}{"level": uint8(254)}}},
		},
		{
			name:    "hue and saturation",
			payload: `{"color":{"h":359,"s":100}}`,
			want: []invocation{{clusters.IDColorControl, clusters.CmdMoveToHueAndSaturation,
				map[string]interface{}{"hue": uint8(254), "saturation": uint8(254)}}},
		},
		{
			name:    "hue only",
			payload: `{"color":{"h":180}}`,
			want: []invocation{{clusters.IDColorControl, clusters.CmdMoveToHue,
				map[string]interface{}{"hue": uint8(127)}}},
		},
		{
			name:    "saturation only",
			payload: `{"color":{"s":50}}`,
			want: []invocation{{clusters.IDColorControl, clusters.CmdMoveToSaturation,
				map[string]interface{}{"saturation": uint8(127)}}},
		},
		{
			name:    "color temperature",
			payload: `{"color_temp":250}`,
			want: []invocation{{clusters.IDColorControl, clusters.CmdMoveToColorTemperature,
				map[string]interface{}{"mireds": uint16(250)}}},
		},
		{
			name:    "zero color temperature ignored",
			payload: `{"color_temp":0}`,
			want:    nil,
		},
		{
			name:    "unknown keys ignored",
			payload: `{"effect":"rainbow"}`,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd map[string]interface{}
			if err := json.Unmarshal([]byte(tt.payload), &cmd); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			got := setInvocations(cmd)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d invocations, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Cluster != tt.want[i].Cluster {
					t.Errorf("[%d] cluster = 0x%04X, want 0x%04X", i, got[i].Cluster, tt.want[i].Cluster)
				}
				if got[i].Command != tt.want[i].Command {
					t.Errorf("[%d] command = 0x%02X, want 0x%02X", i, got[i].Command, tt.want[i].Command)
				}
				for k, v := range tt.want[i].Payload {
					if got[i].Payload[k] != v {
						t.Errorf("[%d] payload[%q] = %v, want %v", i, k, got[i].Payload[k], v)
					}
				}
			}
		})
	}
}

func TestSetInvocationsCombined(t *testing.T) {
	// A single HA message can carry state, brightness and color at
	// once. Power must come first so the level change lands on a lit
	// lamp.
	var cmd map[string]interface{}
	payload := `{"state":"ON","brightness":128,"color":{"h":30,"s":80},"color_temp":300}`
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatal(err)
	}

	got := setInvocations(cmd)
	if len(got) != 4 {
		t.Fatalf("got %d invocations, want 4", len(got))
	}
	if got[0].Cluster != clusters.IDOnOff || got[0].Command != clusters.CmdOn {
		t.Errorf("first invocation = %+v, want On", got[0])
	}
	if got[1].Cluster != clusters.IDLevelControl {
		t.Errorf("second invocation cluster = 0x%04X, want level", got[1].Cluster)
	}
	if got[2].Command != clusters.CmdMoveToHueAndSaturation {
		t.Errorf("third invocation = %+v, want hue+saturation", got[2])
	}
	if got[3].Command != clusters.CmdMoveToColorTemperature {
		t.Errorf("fourth invocation = %+v, want color temperature", got[3])
	}
}

func TestSetInvocationsTransition(t *testing.T) {
	var cmd map[string]interface{}
	if err := json.Unmarshal([]byte(`{"brightness":100,"transition":2}`), &cmd); err != nil {
		t.Fatal(err)
	}

	got := setInvocations(cmd)
	if len(got) != 1 {
		t.Fatalf("got %d invocations, want 1", len(got))
	}
	if got[0].Payload["transition"] != float64(2) {
		t.Errorf("transition = %v, want 2", got[0].Payload["transition"])
	}
}

func TestHueSatToAttr(t *testing.T) {
	tests := []struct {
		degrees float64
		percent float64
		wantHue uint8
		wantSat uint8
	}{
		{0, 0, 0, 0},
		{359, 100, 254, 254},
		{180, 50, 127, 127},
		{400, 150, 254, 254}, // out of range clamps
		{-10, -5, 0, 0},
	}

	for _, tt := range tests {
		if got := hueToAttr(tt.degrees); got != tt.wantHue {
			t.Errorf("hueToAttr(%v) = %d, want %d", tt.degrees, got, tt.wantHue)
		}
		if got := satToAttr(tt.percent); got != tt.wantSat {
			t.Errorf("satToAttr(%v) = %d, want %d", tt.percent, got, tt.wantSat)
		}
	}
}

func TestStatePayload(t *testing.T) {
	props := map[string]interface{}{
		"state":      true,
		"brightness": uint8(200),
		"color_mode": "color_temp",
	}

	out := statePayload(props)
	if out["state"] != "ON" {
		t.Errorf("state = %v, want ON", out["state"])
	}
	if out["brightness"] != uint8(200) {
		t.Errorf("brightness = %v", out["brightness"])
	}

	// Source map must not be mutated.
	if props["state"] != true {
		t.Errorf("input map mutated: state = %v", props["state"])
	}

	out = statePayload(map[string]interface{}{"state": false})
	if out["state"] != "OFF" {
		t.Errorf("state = %v, want OFF", out["state"])
	}
}

func TestToFloat64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{float64(1.5), 1.5, true},
		{int(42), 42, true},
		{uint8(200), 200, true},
		{uint16(370), 370, true},
		{"nope", 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := toFloat64(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("toFloat64(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMustJSON(t *testing.T) {
	result := mustJSON(map[string]string{"hello": "world"})
	var parsed map[string]string
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("mustJSON output not valid JSON: %v", err)
	}
	if parsed["hello"] != "world" {
		t.Errorf("parsed value = %q", parsed["hello"])
	}
}
