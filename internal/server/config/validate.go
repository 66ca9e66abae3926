package config

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/zkvault/internal/common"
)

// placeholderSecrets are values that ship in sample configs and must never
// sign real tokens.
var placeholderSecrets = []string{
	"secret",
	"secretkey",
	"changeme",
	"change-me",
	"your-secret-key",
	"your-jwt-secret",
	"your_jwt_secret",
}

// IsPlaceholderSecret reports whether s is empty or a well-known sample value.
func IsPlaceholderSecret(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return true
	}
	for _, p := range placeholderSecrets {
		if v == p {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is usable. Every failure wraps
// common.ErrInvalidConfig so callers can exit with a configuration error.
func (c *Config) Validate() error {
	if IsPlaceholderSecret(c.SecretKey) {
		return fmt.Errorf("%w: secret key is missing or a placeholder", common.ErrInvalidConfig)
	}
	if c.AdminPassword != "" && IsPlaceholderSecret(c.AdminPassword) {
		return fmt.Errorf("%w: admin password is a placeholder", common.ErrInvalidConfig)
	}
	if c.EndpointAddrHTTP == "" {
		return fmt.Errorf("%w: http address is empty", common.ErrInvalidConfig)
	}
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%w: database dsn is empty", common.ErrInvalidConfig)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("%w: unknown storage %q", common.ErrInvalidConfig, c.Storage)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("%w: redis address is empty", common.ErrInvalidConfig)
	}
	if c.AccessTokenTTL <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", common.ErrInvalidConfig)
	}
	if c.MaxDevices < 1 {
		return fmt.Errorf("%w: max devices must be at least 1", common.ErrInvalidConfig)
	}
	if c.CleanupInterval <= 0 || c.HealthProbeInterval <= 0 {
		return fmt.Errorf("%w: cleanup and health probe intervals must be positive", common.ErrInvalidConfig)
	}
	return nil
}
