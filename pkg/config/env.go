package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/multierr"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfigDir          = "HUBLINK_CONFIG_DIR"
	EnvHubURL             = "HUBLINK_HUB_URL"
	EnvHubTimeout         = "HUBLINK_HUB_TIMEOUT"
	EnvInstanceID         = "HUBLINK_INSTANCE_ID"
	EnvPrivateKeySeed     = "HUBLINK_PRIVATE_KEY_SEED"
	EnvPublicKeyMultibase = "HUBLINK_PUBLIC_KEY_MULTIBASE"
	EnvRatePerMinute      = "HUBLINK_RATE_PER_MINUTE"
	EnvRatePerHour        = "HUBLINK_RATE_PER_HOUR"
	EnvRateBurst          = "HUBLINK_RATE_BURST"
	EnvMonitorHTTP        = "HUBLINK_MONITOR_HTTP_ADDRESS"
	EnvMonitorGRPC        = "HUBLINK_MONITOR_GRPC_ADDRESS"
)

// LoadFromEnv builds a config from the defaults and the environment alone.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any HUBLINK_* variables that are set.
func ApplyEnv(cfg *Config) error {
	cfg.Hub.BaseURL = getEnv(EnvHubURL, cfg.Hub.BaseURL)
	cfg.Hub.Timeout = getEnv(EnvHubTimeout, cfg.Hub.Timeout)
	cfg.Identity.InstanceID = getEnv(EnvInstanceID, cfg.Identity.InstanceID)
	cfg.Identity.PrivateKeySeed = getEnv(EnvPrivateKeySeed, cfg.Identity.PrivateKeySeed)
	cfg.Identity.PublicKeyMultibase = getEnv(EnvPublicKeyMultibase, cfg.Identity.PublicKeyMultibase)
	cfg.Monitor.HTTPAddress = getEnv(EnvMonitorHTTP, cfg.Monitor.HTTPAddress)
	cfg.Monitor.GRPCAddress = getEnv(EnvMonitorGRPC, cfg.Monitor.GRPCAddress)

	var errs error
	errs = multierr.Append(errs, getEnvInt(EnvRatePerMinute, &cfg.RateLimit.PerMinute))
	errs = multierr.Append(errs, getEnvInt(EnvRatePerHour, &cfg.RateLimit.PerHour))
	errs = multierr.Append(errs, getEnvInt(EnvRateBurst, &cfg.RateLimit.Burst))
	return errs
}

// GetConfigDir returns the hublink configuration directory.
func GetConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hublink")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".hublink"
	}
	return filepath.Join(home, ".hublink")
}

// GetConfigPath returns the path to the default config file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
