package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"lampd/internal/adapter"
	"lampd/internal/circadian"
	"lampd/internal/driver"
	"lampd/internal/node"
	"lampd/internal/notify"
	"lampd/internal/store"
	"lampd/internal/web"
	"lampd/internal/zcl"
	"lampd/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Device struct {
		Name         string `yaml:"name"`
		Manufacturer string `yaml:"manufacturer"`
		Model        string `yaml:"model"`
		MinKelvin    uint32 `yaml:"min_kelvin"`
		MaxKelvin    uint32 `yaml:"max_kelvin"`
	} `yaml:"device"`
	Driver struct {
		Backend string         `yaml:"backend"` // "pwm", "serial" or "virtual"
		PWM     driver.PWMPins `yaml:"pwm"`
		Serial  struct {
			Port string `yaml:"port"`
			Baud int    `yaml:"baud"`
		} `yaml:"serial"`
		Button struct {
			Enabled   bool  `yaml:"enabled"`
			Pin       uint8 `yaml:"pin"`
			ActiveLow bool  `yaml:"active_low"`
		} `yaml:"button"`
	} `yaml:"driver"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Telegram struct {
		BotToken string  `yaml:"bot_token"`
		ChatIDs  []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`
	Circadian struct {
		Enabled   bool    `yaml:"enabled"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
		MinKelvin uint32  `yaml:"min_kelvin"`
		MaxKelvin uint32  `yaml:"max_kelvin"`
		Interval  string  `yaml:"interval"`
		Override  string  `yaml:"override"`
	} `yaml:"circadian"`
	Exec struct {
		Allowlist []string `yaml:"allowlist"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"exec"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	switch c.Driver.Backend {
	case "pwm", "serial", "virtual":
	default:
		return fmt.Errorf("unknown driver.backend: %q (supported: pwm, serial, virtual)", c.Driver.Backend)
	}
	if c.Driver.Backend == "serial" && c.Driver.Serial.Port == "" {
		return fmt.Errorf("driver.serial.port is required for the serial backend")
	}
	if c.Device.MinKelvin >= c.Device.MaxKelvin {
		return fmt.Errorf("device.min_kelvin must be below device.max_kelvin, got %d..%d", c.Device.MinKelvin, c.Device.MaxKelvin)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Circadian.Enabled {
		if c.Circadian.Latitude == 0 && c.Circadian.Longitude == 0 {
			return fmt.Errorf("circadian.latitude and circadian.longitude are required when circadian is enabled")
		}
		if c.Circadian.Latitude < -90 || c.Circadian.Latitude > 90 {
			return fmt.Errorf("circadian.latitude must be -90..90, got %v", c.Circadian.Latitude)
		}
		if c.Circadian.Longitude < -180 || c.Circadian.Longitude > 180 {
			return fmt.Errorf("circadian.longitude must be -180..180, got %v", c.Circadian.Longitude)
		}
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		cfgPath     string
		logLevel    string
		showVersion bool
	)
	pflag.StringVarP(&cfgPath, "config", "c", "config.yaml", "path to config file")
	pflag.StringVar(&logLevel, "log-level", "", "override log.level from the config (debug, info, warn, error)")
	pflag.BoolVar(&showVersion, "version", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println("lampd " + version)
		return
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Create configured logger.
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("lampd starting", "version", version)

	// Initialize ZCL registry with the clusters the lamp implements.
	// The fixture's physical color range goes in first: the earliest
	// registration of an attribute wins the merge, so these defaults
	// override the standard definition's.
	registry := zcl.NewRegistry(logger)
	registry.Register(zcl.ClusterDef{
		ID:   clusters.IDColorControl,
		Name: "Color Control",
		Attributes: []zcl.AttributeDef{
			{ID: clusters.AttrColorTempPhysicalMinMireds, Name: "ColorTempPhysicalMinMireds",
				Type: zcl.TypeUint16, Access: zcl.AccessRead, Default: adapter.KelvinToMireds(cfg.Device.MaxKelvin)},
			{ID: clusters.AttrColorTempPhysicalMaxMireds, Name: "ColorTempPhysicalMaxMireds",
				Type: zcl.TypeUint16, Access: zcl.AccessRead, Default: adapter.KelvinToMireds(cfg.Device.MinKelvin)},
		},
	})
	for _, c := range clusters.Standard() {
		registry.Register(c)
	}
	logger.Info("ZCL registry initialized", "clusters", len(registry.All()))

	// Open store
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stable identity across reboots; generated on first boot.
	ident, err := db.EnsureNodeInfo()
	if err != nil {
		logger.Error("node identity", "err", err)
		os.Exit(1)
	}
	logger.Info("node identity", "unique_id", ident.UniqueID, "boot_count", ident.BootCount)

	// Create light backend based on config
	backend, err := createBackend(cfg, logger)
	if err != nil {
		logger.Error("create light backend", "err", err)
		os.Exit(1)
	}

	d := driver.New(backend, driver.State{}, logger)

	n := node.New(node.Info{
		Name:         cfg.Device.Name,
		Manufacturer: cfg.Device.Manufacturer,
		Model:        cfg.Device.Model,
		SWVersion:    version,
		UniqueID:     ident.UniqueID,
	}, []node.Endpoint{node.LampEndpoint()}, registry, db, node.NewEventBus(logger), logger)

	// Bind before Start so the adapter sees every attribute write,
	// including the restore of persisted state.
	a := adapter.Bind(n, d, 1, logger)

	if err := n.Start(); err != nil {
		logger.Error("start node", "err", err)
		d.Close()
		os.Exit(1)
	}

	// Push the restored attribute state down to the hardware.
	if err := a.Sync(); err != nil {
		logger.Error("sync lamp state", "err", err)
		d.Close()
		os.Exit(1)
	}

	// Telegram bot is optional; a boot must not hang on an unreachable API.
	var bot *notify.Bot
	if cfg.Telegram.BotToken != "" {
		b, err := notify.New(notify.Config{
			BotToken: cfg.Telegram.BotToken,
			ChatIDs:  cfg.Telegram.ChatIDs,
		}, n, a, logger)
		if err != nil {
			logger.Error("telegram bot", "err", err)
		} else {
			bot = b
		}
	}

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(n, a, bot, cfg, logger)

	// Start web server
	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)

	webServer := web.NewServer(n, a, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(n, a, cfg, logger)

	// Physical button, if wired.
	var button *driver.Button
	if cfg.Driver.Button.Enabled {
		btn, err := driver.NewButton(driver.ButtonConfig{
			Pin:       cfg.Driver.Button.Pin,
			ActiveLow: cfg.Driver.Button.ActiveLow,
		}, d, logger)
		if err != nil {
			logger.Error("button", "err", err)
		} else {
			button = btn
		}
	}

	// Circadian white-point controller.
	var sun *circadian.Controller
	if cfg.Circadian.Enabled {
		sun = circadian.New(n, circadian.Config{
			Latitude:  cfg.Circadian.Latitude,
			Longitude: cfg.Circadian.Longitude,
			MinKelvin: cfg.Circadian.MinKelvin,
			MaxKelvin: cfg.Circadian.MaxKelvin,
			Interval:  parseDuration(cfg.Circadian.Interval, "circadian.interval", logger),
			Override:  parseDuration(cfg.Circadian.Override, "circadian.override", logger),
		}, logger)
		sun.Start()
	}

	if bot != nil {
		bot.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if sun != nil {
		sun.Stop()
	}
	if button != nil {
		if err := button.Close(); err != nil {
			logger.Error("close button", "err", err)
		}
	}
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	if bot != nil {
		bot.Stop()
	}
	if err := d.Close(); err != nil {
		logger.Error("close driver", "err", err)
	}

	logger.Info("goodbye")
}

func createBackend(cfg *Config, logger *slog.Logger) (driver.Backend, error) {
	switch cfg.Driver.Backend {
	case "pwm":
		logger.Info("using PWM backend", "pins", cfg.Driver.PWM)
		return driver.NewPWMBackend(cfg.Driver.PWM, logger)
	case "serial":
		logger.Info("using serial backend", "port", cfg.Driver.Serial.Port, "baud", cfg.Driver.Serial.Baud)
		return driver.NewSerialBackend(cfg.Driver.Serial.Port, cfg.Driver.Serial.Baud, logger)
	default:
		logger.Info("using virtual backend")
		return driver.NewVirtualBackend(logger), nil
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Device.Name == "" {
		cfg.Device.Name = "Lamp"
	}
	if cfg.Device.Manufacturer == "" {
		cfg.Device.Manufacturer = "lampd"
	}
	if cfg.Device.Model == "" {
		cfg.Device.Model = "lampd-one"
	}
	if cfg.Device.MinKelvin == 0 {
		cfg.Device.MinKelvin = 2000
	}
	if cfg.Device.MaxKelvin == 0 {
		cfg.Device.MaxKelvin = 6500
	}
	if cfg.Driver.Backend == "" {
		cfg.Driver.Backend = "virtual"
	}
	if cfg.Driver.Serial.Baud == 0 {
		cfg.Driver.Serial.Baud = 115200
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "lampd.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "lampd"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func parseDuration(value, option string, logger *slog.Logger) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "option", option, "value", value)
		return 0
	}
	return d
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
