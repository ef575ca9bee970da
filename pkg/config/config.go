package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"hublink/pkg/identity"
	"hublink/pkg/ratelimit"
	"hublink/pkg/utils"
)

type Config struct {
	Hub       HubConfig       `json:"hub" yaml:"hub"`
	Identity  IdentityConfig  `json:"identity" yaml:"identity"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Monitor   MonitorConfig   `json:"monitor" yaml:"monitor"`
}

type HubConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	CacheSize int    `json:"cache_size" yaml:"cache_size"`
	CacheTTL  string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// MaxResponseSize caps response bodies, e.g. "8MiB".
	MaxResponseSize string `json:"max_response_size,omitempty" yaml:"max_response_size,omitempty"`
}

// IdentityConfig is the instance's signing identity. All three values are
// required for authenticated calls.
type IdentityConfig struct {
	InstanceID         string `json:"instance_id" yaml:"instance_id"`
	PrivateKeySeed     string `json:"private_key_seed" yaml:"private_key_seed"`
	PublicKeyMultibase string `json:"public_key_multibase" yaml:"public_key_multibase"`
}

type RateLimitConfig struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour" yaml:"per_hour"`
	Burst     int `json:"burst" yaml:"burst"`
	// Users maps a per-user category to its cap.
	Users map[string]RuleConfig `json:"users,omitempty" yaml:"users,omitempty"`
}

type RuleConfig struct {
	Limit  int    `json:"limit" yaml:"limit"`
	Window string `json:"window" yaml:"window"`
}

type MonitorConfig struct {
	HTTPAddress   string `json:"http_address" yaml:"http_address"`
	GRPCAddress   string `json:"grpc_address" yaml:"grpc_address"`
	CheckInterval string `json:"check_interval,omitempty" yaml:"check_interval,omitempty"`
}

const (
	defaultTimeout       = 30 * time.Second
	defaultCacheTTL      = 5 * time.Minute
	defaultCheckInterval = 15 * time.Second
	defaultMaxResponse   = 8 * utils.MegaByte
)

// Default returns a config with every documented default filled in: 60
// calls per minute, 1000 per hour and 10 per 10 seconds against the hub, and
// per-user caps of 10 joins per hour, 5 posts and 30 searches per minute and
// 5 ring creations per day.
func Default() *Config {
	users := make(map[string]RuleConfig)
	for cat, rule := range ratelimit.DefaultRules() {
		users[string(cat)] = RuleConfig{Limit: rule.Limit, Window: rule.Window.String()}
	}
	global := ratelimit.DefaultGlobalLimits()

	return &Config{
		Hub: HubConfig{
			Timeout:   defaultTimeout.String(),
			CacheSize: 256,
			CacheTTL:  defaultCacheTTL.String(),

			MaxResponseSize: utils.FormatSize(defaultMaxResponse),
		},
		RateLimit: RateLimitConfig{
			PerMinute: global.PerMinute,
			PerHour:   global.PerHour,
			Burst:     global.Burst,
			Users:     users,
		},
		Monitor: MonitorConfig{
			HTTPAddress:   ":9464",
			GRPCAddress:   ":9465",
			CheckInterval: defaultCheckInterval.String(),
		},
	}
}

// LoadConfig reads a JSON or YAML file, chosen by extension, over the
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return cfg, nil
}

// Load resolves the config for a CLI invocation: the file at path, or the
// default config file when path is empty and it exists, then environment
// overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if candidate := GetConfigPath(); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config, readable only by the owner. Like LoadConfig it
// picks YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var errs error

	if c.Hub.BaseURL != "" {
		u, err := url.Parse(c.Hub.BaseURL)
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("hub.base_url: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = multierr.Append(errs, fmt.Errorf("hub.base_url: scheme must be http or https, got %q", u.Scheme))
		case u.Host == "":
			errs = multierr.Append(errs, errors.New("hub.base_url: missing host"))
		}
	}
	errs = multierr.Append(errs, checkDuration("hub.timeout", c.Hub.Timeout))
	errs = multierr.Append(errs, checkDuration("hub.cache_ttl", c.Hub.CacheTTL))
	errs = multierr.Append(errs, checkDuration("monitor.check_interval", c.Monitor.CheckInterval))
	if c.Hub.MaxResponseSize != "" {
		if n, err := utils.ParseSize(c.Hub.MaxResponseSize); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("hub.max_response_size: %w", err))
		} else if n <= 0 {
			errs = multierr.Append(errs, errors.New("hub.max_response_size: must be positive"))
		}
	}
	if c.Hub.CacheSize < 0 {
		errs = multierr.Append(errs, errors.New("hub.cache_size: must not be negative"))
	}

	rl := c.RateLimit
	if rl.PerMinute < 0 || rl.PerHour < 0 || rl.Burst < 0 {
		errs = multierr.Append(errs, errors.New("rate_limit: global caps must not be negative"))
	}
	if _, err := c.UserRules(); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// GlobalLimits returns the hub-wide caps.
func (c *Config) GlobalLimits() ratelimit.GlobalLimits {
	return ratelimit.GlobalLimits{
		PerMinute: c.RateLimit.PerMinute,
		PerHour:   c.RateLimit.PerHour,
		Burst:     c.RateLimit.Burst,
	}
}

// UserRules converts the per-user caps. Categories left out of the config
// keep their defaults.
func (c *Config) UserRules() (map[ratelimit.Category]ratelimit.Rule, error) {
	rules := ratelimit.DefaultRules()
	var errs error
	for name, rc := range c.RateLimit.Users {
		cat := ratelimit.Category(name)
		if _, known := rules[cat]; !known {
			errs = multierr.Append(errs, fmt.Errorf("rate_limit.users.%s: %w", name, ratelimit.ErrUnknownCategory))
			continue
		}
		window, err := time.ParseDuration(rc.Window)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rate_limit.users.%s.window: %w", name, err))
			continue
		}
		if rc.Limit <= 0 || window <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("rate_limit.users.%s: limit and window must be positive", name))
			continue
		}
		if window > ratelimit.RetentionWindow {
			errs = multierr.Append(errs, fmt.Errorf("rate_limit.users.%s.window: longer than %s", name, ratelimit.RetentionWindow))
			continue
		}
		rules[cat] = ratelimit.Rule{Limit: rc.Limit, Window: window}
	}
	if errs != nil {
		return nil, errs
	}
	return rules, nil
}

// HubTimeout returns the per-request timeout.
func (c *Config) HubTimeout() time.Duration {
	return durationOr(c.Hub.Timeout, defaultTimeout)
}

// CacheTTL returns how long ring lookups stay cached.
func (c *Config) CacheTTL() time.Duration {
	return durationOr(c.Hub.CacheTTL, defaultCacheTTL)
}

// MaxResponseBytes returns the response body cap in bytes.
func (c *Config) MaxResponseBytes() int64 {
	if n, err := utils.ParseSize(c.Hub.MaxResponseSize); err == nil && n > 0 {
		return n
	}
	return defaultMaxResponse
}

// CheckInterval returns how often the health monitor samples state.
func (c *Config) CheckInterval() time.Duration {
	return durationOr(c.Monitor.CheckInterval, defaultCheckInterval)
}

// BuildIdentity returns the configured signing identity. When identity
// material is missing it returns identity.ErrNotConfigured, unless
// allowPublic is set, in which case an unsigned public identity is used.
func (c *Config) BuildIdentity(allowPublic bool) (identity.Identity, error) {
	id := c.Identity
	auth, err := identity.New(id.InstanceID, id.PrivateKeySeed, id.PublicKeyMultibase)
	if err == nil {
		return auth, nil
	}
	if errors.Is(err, identity.ErrNotConfigured) && allowPublic {
		instance := id.InstanceID
		if instance == "" {
			instance = c.Hub.BaseURL
		}
		return identity.NewPublic(instance), nil
	}
	return nil, err
}

func checkDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive", field)
	}
	return nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return fallback
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
