// Package config manages jkbled daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables. This is a
// distinct concern from internal/protocol's Definition: that package
// parses the wire protocol description directly with gopkg.in/yaml.v3,
// while this package layers daemon runtime settings (listen addresses,
// log level, device list) from multiple sources with defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete jkbled configuration.
type Config struct {
	Health  HealthConfig   `koanf:"health"`
	Metrics MetricsConfig  `koanf:"metrics"`
	Log     LogConfig      `koanf:"log"`
	Session SessionDefault `koanf:"session"`
	Devices []DeviceConfig `koanf:"devices"`
}

// HealthConfig holds the ConnectRPC health-check server configuration.
type HealthConfig struct {
	// Addr is the HTTP/2 (h2c) listen address, e.g. ":8090".
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint, e.g. ":9100".
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint, e.g. "/metrics".
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionDefault holds the reconnect/backoff settings applied to every
// configured device; there is no per-device override.
type SessionDefault struct {
	// ReconnectBackoff is the delay between a lost connection (or a
	// failed attempt) and the next connection attempt.
	ReconnectBackoff time.Duration `koanf:"reconnect_backoff"`
}

// DeviceConfig describes one BMS the daemon should maintain a Device
// Session for. Each entry is connected to on daemon startup.
type DeviceConfig struct {
	// ID is the transport-level device identifier (e.g. BLE MAC
	// address). It labels the device's log lines and is handed to the
	// transport factory; reconnects reuse the identity the session
	// itself reported after its last successful connect.
	ID string `koanf:"id"`

	// Name is a human-friendly label for logs.
	Name string `koanf:"name"`

	// ProtocolFile points at the YAML protocol definition this device
	// speaks (see internal/protocol.Definition).
	ProtocolFile string `koanf:"protocol_file"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Health: HealthConfig{
			Addr: ":8090",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionDefault{
			ReconnectBackoff: 5 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for jkbled configuration.
// Variables are named JKBLE_<section>_<key>, e.g. JKBLE_HEALTH_ADDR.
const envPrefix = "JKBLE_"

// Load reads configuration from a YAML file at path, overlays
// environment variable overrides (JKBLE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	JKBLE_HEALTH_ADDR   -> health.addr
//	JKBLE_METRICS_ADDR  -> metrics.addr
//	JKBLE_METRICS_PATH  -> metrics.path
//	JKBLE_LOG_LEVEL     -> log.level
//	JKBLE_LOG_FORMAT    -> log.format
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms JKBLE_HEALTH_ADDR -> health.addr: strips the
// prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"health.addr":               defaults.Health.Addr,
		"metrics.addr":              defaults.Metrics.Addr,
		"metrics.path":              defaults.Metrics.Path,
		"log.level":                 defaults.Log.Level,
		"log.format":                defaults.Log.Format,
		"session.reconnect_backoff": defaults.Session.ReconnectBackoff.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHealthAddr indicates the health server listen address is empty.
	ErrEmptyHealthAddr = errors.New("health.addr must not be empty")

	// ErrInvalidReconnectBackoff indicates the reconnect backoff is non-positive.
	ErrInvalidReconnectBackoff = errors.New("session.reconnect_backoff must be > 0")

	// ErrEmptyDeviceID indicates a device entry has no ID.
	ErrEmptyDeviceID = errors.New("device id must not be empty")

	// ErrEmptyProtocolFile indicates a device entry has no protocol file.
	ErrEmptyProtocolFile = errors.New("device protocol_file must not be empty")

	// ErrDuplicateDeviceID indicates two devices share the same ID.
	ErrDuplicateDeviceID = errors.New("duplicate device id")
)

// Validate checks the configuration for logical errors. Returns the
// first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Health.Addr == "" {
		return ErrEmptyHealthAddr
	}

	if cfg.Session.ReconnectBackoff <= 0 {
		return ErrInvalidReconnectBackoff
	}

	return validateDevices(cfg.Devices)
}

func validateDevices(devices []DeviceConfig) error {
	seen := make(map[string]struct{}, len(devices))

	for i, dc := range devices {
		if dc.ID == "" {
			return fmt.Errorf("devices[%d]: %w", i, ErrEmptyDeviceID)
		}
		if dc.ProtocolFile == "" {
			return fmt.Errorf("devices[%d]: %w", i, ErrEmptyProtocolFile)
		}
		if _, dup := seen[dc.ID]; dup {
			return fmt.Errorf("devices[%d] id %q: %w", i, dc.ID, ErrDuplicateDeviceID)
		}
		seen[dc.ID] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
