//go:build no_mqtt

package main

import (
	"log/slog"

	"lampd/internal/adapter"
	"lampd/internal/node"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *node.Node, _ *adapter.Adapter, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
