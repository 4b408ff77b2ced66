// Package devserver is a self-contained development stand-in for the Pulse
// backend: SQLite-backed users, tokens and metrics, the HTTP surface the
// client probes during boot, and a websocket feed pushing metric updates.
// It exists so the whole client, including the cold-start path, can be
// exercised without the real platform.
package devserver

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is read from PULSE_DEV_* environment variables.
type Config struct {
	Port     int
	DBPath   string
	SeedPath string
	// WakeDelay holds the health endpoints at 503 for this long after
	// process start, simulating a platform cold start.
	WakeDelay time.Duration
	TokenTTL  time.Duration
	// PushInterval is how often the feed nudges the metrics and broadcasts
	// an update. Zero disables pushing.
	PushInterval time.Duration
	LogLevel     string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:         envInt("PULSE_DEV_PORT", 8787),
		DBPath:       envStr("PULSE_DEV_DB_PATH", "./pulse-dev.db"),
		SeedPath:     envStr("PULSE_DEV_SEED", ""),
		WakeDelay:    envDuration("PULSE_DEV_WAKE_DELAY", 0),
		TokenTTL:     envDuration("PULSE_DEV_TOKEN_TTL", 12*time.Hour),
		PushInterval: envDuration("PULSE_DEV_PUSH_INTERVAL", 20*time.Second),
		LogLevel:     envStr("PULSE_DEV_LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PULSE_DEV_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("PULSE_DEV_DB_PATH must not be empty")
	}
	if c.WakeDelay < 0 {
		return fmt.Errorf("PULSE_DEV_WAKE_DELAY must not be negative, got %s", c.WakeDelay)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("PULSE_DEV_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.PushInterval < 0 {
		return fmt.Errorf("PULSE_DEV_PUSH_INTERVAL must not be negative, got %s", c.PushInterval)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
