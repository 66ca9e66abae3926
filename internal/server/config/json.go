package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/zkvault/internal/flagx"
	"github.com/dmitrijs2005/zkvault/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Duration fields accept
// the compact grammar ("15m", "7d") as well as Go duration strings.
// Absent keys keep whatever value the Config already had.
type JsonConfig struct {
	EndpointAddrHTTP    *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC    *string         `json:"endpoint_addr_grpc"`
	Storage             *string         `json:"storage"`
	DatabaseDSN         *string         `json:"database_dsn"`
	RedisAddr           *string         `json:"redis_addr"`
	RedisPassword       *string         `json:"redis_password"`
	RedisDB             *int            `json:"redis_db"`
	SecretKey           *string         `json:"secret_key"`
	AccessTokenTTL      *timex.Duration `json:"access_token_ttl"`
	SessionTTL          *timex.Duration `json:"session_ttl"`
	MaxDevices          *int            `json:"max_devices"`
	CORSOrigins         []string        `json:"cors_origins"`
	InviteCodes         []string        `json:"invite_codes"`
	AdminPassword       *string         `json:"admin_password"`
	CleanupInterval     *timex.Duration `json:"cleanup_interval"`
	HealthProbeInterval *timex.Duration `json:"health_probe_interval"`
	LogBackend          *string         `json:"log_backend"`
}

// parseJson loads configuration values from the file named by -c/-config
// (or $ZKV_CONFIG) into config. Without a file it does nothing. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.AdminPassword, c.AdminPassword)
	setString(&config.LogBackend, c.LogBackend)

	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.MaxDevices != nil {
		config.MaxDevices = *c.MaxDevices
	}
	if c.AccessTokenTTL != nil {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.CleanupInterval != nil {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	if c.HealthProbeInterval != nil {
		config.HealthProbeInterval = c.HealthProbeInterval.Duration
	}
	if c.CORSOrigins != nil {
		config.CORSOrigins = c.CORSOrigins
	}
	if c.InviteCodes != nil {
		config.InviteCodes = c.InviteCodes
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
