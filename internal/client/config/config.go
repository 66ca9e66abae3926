// Package config holds the settings of the zkvault CLI.
package config

import "time"

// Config holds runtime settings for the zkvault CLI.
//
// Fields:
//   - ServerURL: base URL of the zkvault HTTP API.
//   - RequestTimeout: upper bound for a single API call.
//   - DeviceName: label reported to the server for sessions opened here.
type Config struct {
	ServerURL      string
	RequestTimeout time.Duration
	DeviceName     string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 10 * time.Second
	c.DeviceName = "zkvault-cli"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
