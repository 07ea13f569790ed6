//go:build !no_mqtt

// Package mqtt publishes the lamp state over MQTT and accepts command
// payloads, with Home Assistant autodiscovery.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"lampd/internal/adapter"
	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Bridge connects the lamp to an MQTT broker. State is retained under
// the topic prefix, commands arrive on <prefix>/set.
type Bridge struct {
	client  pahomqtt.Client
	node    *node.Node
	adapter *adapter.Adapter
	prefix  string
	logger  *slog.Logger
	unsub   func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(n *node.Node, a *adapter.Adapter, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		node:    n,
		adapter: a,
		prefix:  cfg.TopicPrefix,
		logger:  logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("lampd").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/availability", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
			b.emitConnectivity(false)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to lamp events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.node.Events().On(node.EventPropertyUpdate, func(node.Event) {
		b.publishState()
	})
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline availability, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.prefix+"/availability", []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs on every (re)connect: the broker may have restarted,
// so availability, discovery and state are announced again.
func (b *Bridge) onConnect() {
	b.logger.Info("MQTT connected")
	b.logHeap()

	b.publish(b.prefix+"/availability", []byte("online"), true)
	b.publishDiscovery()
	b.publishState()

	b.client.Subscribe(b.prefix+"/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleSet(msg.Payload())
	})
	b.client.Subscribe(b.prefix+"/get", 1, func(_ pahomqtt.Client, _ pahomqtt.Message) {
		b.publishState()
	})

	b.emitConnectivity(true)
}

func (b *Bridge) emitConnectivity(connected bool) {
	b.node.Events().Emit(node.Event{Type: node.EventConnectivity, Data: map[string]interface{}{
		"transport": "mqtt",
		"connected": connected,
	}})
}

// logHeap records memory use on connectivity transitions, the easiest
// place to catch slow leaks on a long-running lamp.
func (b *Bridge) logHeap() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	b.logger.Debug("runtime stats",
		"heap_alloc", m.HeapAlloc,
		"heap_sys", m.HeapSys,
		"goroutines", runtime.NumGoroutine())
}

func (b *Bridge) publishDiscovery() {
	minM := uint16(153)
	maxM := uint16(500)
	if v, err := b.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorTempPhysicalMinMireds); err == nil {
		if u, ok := v.(uint16); ok {
			minM = u
		}
	}
	if v, err := b.node.ReadAttribute(1, clusters.IDColorControl, clusters.AttrColorTempPhysicalMaxMireds); err == nil {
		if u, ok := v.(uint16); ok {
			maxM = u
		}
	}

	msg := buildDiscovery(b.node.Info(), b.prefix, minM, maxM)
	b.publish(msg.Topic, msg.Payload, true)
	b.logger.Info("published HA discovery", "topic", msg.Topic)
}

func (b *Bridge) publishState() {
	state := statePayload(b.adapter.Properties())
	state["uptime"] = int64(b.node.Uptime().Seconds())
	b.publish(b.prefix, mustJSON(state), true)
}

func (b *Bridge) handleSet(payload []byte) {
	var cmd map[string]interface{}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid command JSON", "err", err)
		return
	}

	for _, inv := range setInvocations(cmd) {
		if err := b.node.Invoke(1, inv.Cluster, inv.Command, inv.Payload, "mqtt"); err != nil {
			b.logger.Warn("mqtt command failed",
				"cluster", fmt.Sprintf("0x%04X", inv.Cluster),
				"command", inv.Command,
				"err", err)
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// invocation is one cluster command derived from a /set payload.
type invocation struct {
	Cluster uint16
	Command uint8
	Payload map[string]interface{}
}

// setInvocations translates a Home Assistant JSON light command into
// cluster commands. Domain units (degrees, percent) are remapped to
// the attribute ranges here.
func setInvocations(cmd map[string]interface{}) []invocation {
	var out []invocation

	if state, ok := cmd["state"].(string); ok {
		switch strings.ToUpper(state) {
		case "ON":
			out = append(out, invocation{clusters.IDOnOff, clusters.CmdOn, nil})
		case "OFF":
			out = append(out, invocation{clusters.IDOnOff, clusters.CmdOff, nil})
		case "TOGGLE":
			out = append(out, invocation{clusters.IDOnOff, clusters.CmdToggle, nil})
		}
	}

	if brightness, ok := toFloat64(cmd["brightness"]); ok {
		level := uint8(254)
		switch {
		case brightness < 0:
			level = 0
		case brightness < 254:
			level = uint8(brightness)
		}
		payload := map[string]interface{}{"level": level}
		if t, ok := toFloat64(cmd["transition"]); ok {
			payload["transition"] = t
		}
		out = append(out, invocation{clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff, payload})
	}

	if color, ok := cmd["color"].(map[string]interface{}); ok {
		h, hok := toFloat64(color["h"])
		s, sok := toFloat64(color["s"])
		switch {
		case hok && sok:
			out = append(out, invocation{clusters.IDColorControl, clusters.CmdMoveToHueAndSaturation, map[string]interface{}{
				"hue":        hueToAttr(h),
				"saturation": satToAttr(s),
			}})
		case hok:
			out = append(out, invocation{clusters.IDColorControl, clusters.CmdMoveToHue, map[string]interface{}{
				"hue": hueToAttr(h),
			}})
		case sok:
			out = append(out, invocation{clusters.IDColorControl, clusters.CmdMoveToSaturation, map[string]interface{}{
				"saturation": satToAttr(s),
			}})
		}
	}

	if mireds, ok := toFloat64(cmd["color_temp"]); ok && mireds > 0 {
		if mireds > 0xFFFF {
			mireds = 0xFFFF
		}
		out = append(out, invocation{clusters.IDColorControl, clusters.CmdMoveToColorTemperature, map[string]interface{}{
			"mireds": uint16(mireds),
		}})
	}

	return out
}

func hueToAttr(degrees float64) uint8 {
	if degrees < 0 {
		degrees = 0
	}
	if degrees > 359 {
		degrees = 359
	}
	return uint8(adapter.RemapRange(uint32(degrees), 359, 254))
}

func satToAttr(percent float64) uint8 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return uint8(adapter.RemapRange(uint32(percent), 100, 254))
}

// statePayload converts the adapter property map into the published
// shape: Home Assistant wants ON/OFF strings.
func statePayload(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	if on, ok := out["state"].(bool); ok {
		if on {
			out["state"] = "ON"
		} else {
			out["state"] = "OFF"
		}
	}
	return out
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	default:
		return 0, false
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
