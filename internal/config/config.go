// Package config loads and validates the wasend YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ndomo/wasend/internal/pacing"
)

// Config is the main configuration structure
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Pacing   pacing.Config  `yaml:"pacing"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig contains the WhatsApp gateway credentials.
type ProviderConfig struct {
	InstanceID string `yaml:"instance_id"`
	Token      string `yaml:"token"`
	BaseURL    string `yaml:"base_url"` // Default: https://api.ultramsg.com
	// TestNumber receives the connectivity check message, if set.
	TestNumber string `yaml:"test_number,omitempty"`
}

// StorageConfig contains filesystem layout settings.
type StorageConfig struct {
	// DataDir holds the ledger, session files and usage counters.
	DataDir string `yaml:"data_dir"` // Default: ./data
	// SessionMaxAge prunes session files older than this on startup.
	// Zero keeps them forever.
	SessionMaxAge time.Duration `yaml:"session_max_age"`
}

// APIConfig contains the control API settings.
type APIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ListenAddr   string        `yaml:"listen_addr"` // Default: 127.0.0.1:8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Load reads configuration from a YAML file. Pacing fields the file does
// not set keep their conservative defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Pacing: pacing.DefaultConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file exists.
// Provider credentials stay empty and must come from flags or the file.
func Default() *Config {
	cfg := &Config{Pacing: pacing.DefaultConfig()}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.ultramsg.com"
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.Pacing.Validate(); err != nil {
		return fmt.Errorf("invalid pacing configuration: %w", err)
	}

	if c.Storage.SessionMaxAge < 0 {
		return fmt.Errorf("storage.session_max_age must not be negative")
	}

	return nil
}

// RequireProvider checks that gateway credentials are present. Commands
// that talk to the gateway call this; local-only commands do not.
func (c *Config) RequireProvider() error {
	if c.Provider.InstanceID == "" {
		return fmt.Errorf("provider.instance_id is required")
	}
	if c.Provider.Token == "" {
		return fmt.Errorf("provider.token is required")
	}
	return nil
}
