package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the client configuration, read from ~/.pulse/config.json and
// overridable per-key through PULSE_* environment variables. The API base URL
// may legitimately be absent; the boot gate reports that as a configuration
// failure instead of this package erroring out.
type Config struct {
	APIBaseURL  string `json:"api_base_url,omitempty"`
	DataDir     string `json:"data_dir,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
	LiveUpdates *bool  `json:"live_updates,omitempty"`

	// Poll budget overrides. Zero means use the built-in default.
	WakeBudget     Duration `json:"wake_budget,omitempty"`
	ReadyBudget    Duration `json:"ready_budget,omitempty"`
	FallbackBudget Duration `json:"fallback_budget,omitempty"`
}

// Duration marshals as a Go duration string ("45s") in the config file.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// configDir returns the config directory path (~/.pulse)
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pulse"), nil
}

// configPath returns the config file path (~/.pulse/config.json)
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file if one exists, fills defaults, and applies
// environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	cfg := &Config{}

	path, err := configPath()
	if err == nil {
		if data, err := os.ReadFile(path); err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		if dir, err := configDir(); err == nil {
			cfg.DataDir = dir
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = envStr("PULSE_API_BASE_URL", c.APIBaseURL)
	c.DataDir = envStr("PULSE_DATA_DIR", c.DataDir)
	c.LogLevel = envStr("PULSE_LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("PULSE_LIVE_UPDATES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LiveUpdates = &b
		}
	}
	c.WakeBudget = envDuration("PULSE_WAKE_BUDGET", c.WakeBudget)
	c.ReadyBudget = envDuration("PULSE_READY_BUDGET", c.ReadyBudget)
	c.FallbackBudget = envDuration("PULSE_FALLBACK_BUDGET", c.FallbackBudget)
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	for name, d := range map[string]Duration{
		"wake_budget":     c.WakeBudget,
		"ready_budget":    c.ReadyBudget,
		"fallback_budget": c.FallbackBudget,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, time.Duration(d))
		}
	}
	return nil
}

// LiveUpdatesEnabled reports whether the live event feed should be started.
// Defaults to true when unset.
func (c *Config) LiveUpdatesEnabled() bool {
	if c.LiveUpdates == nil {
		return true
	}
	return *c.LiveUpdates
}

// DBPath returns the client database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "pulse.db")
}

// LogPath returns the log file path under the data directory. The terminal
// itself belongs to the alt-screen UI, so logs go to a file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "pulse.log")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
