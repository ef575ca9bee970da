package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hublink/pkg/config"
	"hublink/pkg/hub"
	"hublink/pkg/identity"
	"hublink/pkg/monitor"
	"hublink/pkg/ratelimit"
)

var (
	configFile string
	verbose    bool
	hubURL     string
	public     bool
	jsonOutput bool
	actingUser string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hublink",
		Short: "Signed client for a federated ring hub",
		Long: `hublink talks to a federated ring hub as this instance.
Requests are signed with the instance's Ed25519 key where the hub requires it,
and all traffic is held to the configured rate limits.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&hubURL, "hub", "", "hub base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&public, "public", false, "make unsigned requests when no identity is configured")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")
	rootCmd.PersistentFlags().StringVar(&actingUser, "as", "local", "user id charged for per-user limits")

	rootCmd.AddCommand(
		keygenCmd(),
		signCmd(),
		verifyCmd(),
		ringCmd(),
		statsCmd(),
		myCmd(),
		limitsCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is everything a hub command needs, built from config and flags.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *hub.Client
	gate     *hub.UserGate
	global   *ratelimit.GlobalLimiter
	users    *ratelimit.UserLimiter
	metrics  *monitor.Metrics
	registry *prometheus.Registry
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if hubURL != "" {
		cfg.Hub.BaseURL = hubURL
	}
	return cfg, nil
}

func newApp() (*app, error) {
	logger := setupLogger(verbose)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Hub.BaseURL == "" {
		return nil, fmt.Errorf("hub URL is required (set hub.base_url, %s or --hub)", config.EnvHubURL)
	}

	id, err := cfg.BuildIdentity(public)
	if err != nil {
		if errors.Is(err, identity.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: run 'hublink keygen' or pass --public for unsigned access", err)
		}
		return nil, fmt.Errorf("invalid identity: %w", err)
	}

	warnKeyMismatch(id, logger)

	rules, err := cfg.UserRules()
	if err != nil {
		return nil, err
	}
	users, err := ratelimit.NewUserLimiter(rules, nil, logger)
	if err != nil {
		return nil, err
	}
	global := ratelimit.NewGlobalLimiter(cfg.GlobalLimits(), nil)

	registry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(registry)

	client, err := hub.NewClient(cfg.Hub.BaseURL, id, hub.Options{
		HTTPClient: &http.Client{Timeout: cfg.HubTimeout()},
		Limiter:    global,
		Logger:     logger,
		Observer:   metrics,
		UserAgent:  cfg.Hub.UserAgent,
		CacheSize:  cfg.Hub.CacheSize,
		CacheTTL:   cfg.CacheTTL(),

		MaxResponseBytes: cfg.MaxResponseBytes(),
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Hub client ready",
		zap.String("hub", client.BaseURL()),
		zap.String("instance", id.InstanceID()),
		zap.Bool("signed", isAuthenticated(id)))

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		gate:     hub.NewUserGate(client, users, logger),
		global:   global,
		users:    users,
		metrics:  metrics,
		registry: registry,
	}, nil
}

func (a *app) close() {
	a.users.Stop()
	_ = a.logger.Sync()
}

// warnKeyMismatch logs when the configured public key is not the public half
// of the seed. The hub verifies against the published key, so every signed
// call would be rejected or silently unauthenticated.
func warnKeyMismatch(id identity.Identity, logger *zap.Logger) bool {
	auth, ok := id.(*identity.Authenticated)
	if !ok || auth.MatchesPublicKey() {
		return false
	}
	logger.Warn("Configured public key does not match the private key seed",
		zap.String("instance", auth.InstanceID()),
		zap.String("public_key", auth.PublicKeyMultibase()))
	return true
}

func isAuthenticated(id identity.Identity) bool {
	_, ok := id.(*identity.Authenticated)
	return ok
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hublink v%s\n", hub.Version)
		},
	}
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
