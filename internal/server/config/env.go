package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/timex"
	"github.com/ilyakaznacheev/cleanenv"
)

// envDurations carries the duration variables as raw strings so they go
// through timex.ParseDuration like the JSON file does.
type envDurations struct {
	AccessTokenTTL      string `env:"ZKV_ACCESS_TOKEN_TTL"`
	SessionTTL          string `env:"ZKV_SESSION_TTL"`
	CleanupInterval     string `env:"ZKV_CLEANUP_INTERVAL"`
	HealthProbeInterval string `env:"ZKV_HEALTH_PROBE_INTERVAL"`
}

// parseEnv overlays ZKV_* environment variables onto config. Variables that
// are not set leave the current value untouched. Malformed values panic, the
// same way malformed JSON or flags do.
func parseEnv(config *Config) {
	if err := readEnv(config); err != nil {
		panic(err)
	}
}

func readEnv(config *Config) error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return err
	}

	var d envDurations
	if err := cleanenv.ReadEnv(&d); err != nil {
		return err
	}

	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ZKV_ACCESS_TOKEN_TTL", d.AccessTokenTTL, &config.AccessTokenTTL},
		{"ZKV_SESSION_TTL", d.SessionTTL, &config.SessionTTL},
		{"ZKV_CLEANUP_INTERVAL", d.CleanupInterval, &config.CleanupInterval},
		{"ZKV_HEALTH_PROBE_INTERVAL", d.HealthProbeInterval, &config.HealthProbeInterval},
	} {
		if f.raw == "" {
			continue
		}
		v, err := timex.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}
