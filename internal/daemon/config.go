// Package daemon manages the Janus daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	API        APIConfig        `toml:"api"`
	Governance GovernanceConfig `toml:"governance"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Logging    LoggingConfig    `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// GovernanceConfig controls the governance engine.
type GovernanceConfig struct {
	FounderID     string `toml:"founder_id"`
	FounderTokens int    `toml:"founder_tokens"`

	// SweepInterval is how often the daemon executes due actions, e.g. "1m".
	SweepInterval string `toml:"sweep_interval"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := janusHome()
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Governance: GovernanceConfig{
			FounderID:     "founder",
			FounderTokens: 10,
			SweepInterval: "1m",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "janus.log"),
		},
	}
}

// LoadConfig reads config from ~/.janus/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(janusHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.janus/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(janusHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// SweepIntervalDuration parses the configured action sweep interval.
func (c GovernanceConfig) SweepIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// janusHome returns the Janus data directory.
func janusHome() string {
	if env := os.Getenv("JANUS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".janus")
}

// JanusHome is exported for use by other packages.
func JanusHome() string {
	return janusHome()
}
