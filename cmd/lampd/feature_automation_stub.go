//go:build no_automation

package main

import (
	"log/slog"

	"lampd/internal/adapter"
	"lampd/internal/node"
	"lampd/internal/notify"
	"lampd/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *node.Node, _ *adapter.Adapter, _ *notify.Bot, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
