//go:build !no_automation

package main

import (
	"log/slog"
	"time"

	"lampd/internal/adapter"
	"lampd/internal/automation"
	"lampd/internal/node"
	"lampd/internal/notify"
	"lampd/internal/web"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(n *node.Node, a *adapter.Adapter, bot *notify.Bot, cfg *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}, nil
	}

	execTimeout := 10 * time.Second
	if cfg.Exec.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Exec.Timeout); err == nil {
			execTimeout = d
		} else {
			logger.Warn("invalid exec.timeout, using default", "value", cfg.Exec.Timeout, "default", execTimeout)
		}
	}

	// A nil *notify.Bot wrapped in the interface would dodge the
	// engine's nil check, so convert only when the bot exists.
	var notifier automation.Notifier
	if bot != nil {
		notifier = bot
	}

	engine := automation.NewEngine(n, a, scriptMgr, notifier, logger,
		automation.SystemConfig{
			ExecAllowlist: cfg.Exec.Allowlist,
			ExecTimeout:   execTimeout,
		})
	engine.Start()

	opts := []web.ServerOption{
		web.WithAutomation(engine, scriptMgr),
	}
	return &autoStopper{engine: engine}, opts
}
