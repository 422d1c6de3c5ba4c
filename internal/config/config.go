package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults match the intervals the web client shipped with.
const (
	DefaultServerURL           = "http://127.0.0.1:5001"
	DefaultPollIntervalMS      = 3000
	DefaultHeartbeatIntervalMS = 7000
)

// Config represents the global ~/.stegochat/config.toml.
type Config struct {
	ServerURL           string `toml:"server_url"`
	DisplayName         string `toml:"display_name"`
	PollIntervalMS      int    `toml:"poll_interval_ms"`
	HeartbeatIntervalMS int    `toml:"heartbeat_interval_ms"`
}

// ApplyDefaults fills in any unset fields.
func (c *Config) ApplyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = DefaultPollIntervalMS
	}
	if c.HeartbeatIntervalMS <= 0 {
		c.HeartbeatIntervalMS = DefaultHeartbeatIntervalMS
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to a default config
// when the file does not exist. Defaults are applied either way.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
