// Package main is the entry point for the avkeyd daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/config"
	"github.com/vyrodovalexey/avkeyd/internal/event"
	"github.com/vyrodovalexey/avkeyd/internal/health"
	"github.com/vyrodovalexey/avkeyd/internal/identity"
	"github.com/vyrodovalexey/avkeyd/internal/middleware"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/secrets"
	"github.com/vyrodovalexey/avkeyd/internal/server"
	"github.com/vyrodovalexey/avkeyd/internal/service"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runDaemon(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVKEYD_CONFIG_PATH", "configs/keyd.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVKEYD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVKEYD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avkeyd version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting avkeyd",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.Address),
		observability.String("store", cfg.Store.Backend),
		observability.String("auth_mode", cfg.Auth.Mode),
		observability.Bool("metrics", cfg.Metrics.Enabled),
		observability.Bool("tracing", cfg.Tracing.Enabled),
	)

	return cfg
}

// application holds all application components.
type application struct {
	server         *server.Server
	store          store.Store
	bus            *event.Bus
	sinks          []event.Sink
	secrets        secrets.Provider
	checker        *health.Checker
	controlLimiter *middleware.RateLimiter
	verifyLimiter  *middleware.RateLimiter
	metrics        *observability.Metrics
	tracer         *observability.Tracer
	config         *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	ctx := context.Background()

	metrics := observability.NewMetrics("avkeyd")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	tracer := initTracer(cfg, logger)

	provider, err := secrets.New(ctx, secretsProviderConfig(cfg.Secrets), logger,
		secrets.NewMetrics(metrics.Registry()))
	if err != nil {
		logger.Fatal("failed to initialize secrets provider", observability.Error(err))
	}

	resolver := secrets.ResolverFor(provider, logger)
	if err := resolveConfigSecrets(ctx, cfg, resolver); err != nil {
		logger.Fatal("failed to resolve secret references", observability.Error(err))
	}

	st, err := initStore(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("failed to initialize store", observability.Error(err))
	}

	clk := clock.NewSystemClock(
		clock.WithEpoch(time.Unix(cfg.Clock.Epoch, 0)),
		clock.WithSlotDuration(time.Duration(cfg.Clock.SlotMillis)*time.Millisecond),
	)

	eventMetrics := event.NewMetrics(metrics.Registry())
	sinks, hub, err := initSinks(cfg, logger, eventMetrics)
	if err != nil {
		logger.Fatal("failed to initialize event sinks", observability.Error(err))
	}

	bus := event.NewBus(&event.BusConfig{
		BufferSize: cfg.Events.QueueSize,
		Logger:     logger,
		Metrics:    eventMetrics,
	}, sinks...)

	authenticator, err := initAuthenticator(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("failed to initialize authenticator", observability.Error(err))
	}

	svc, err := service.New(&service.Config{
		Store:   st,
		Clock:   clk,
		Bus:     bus,
		Logger:  logger,
		Metrics: service.NewMetrics(metrics.Registry()),
	})
	if err != nil {
		logger.Fatal("failed to initialize service", observability.Error(err))
	}

	checker := health.NewChecker(version, logger)
	registerHealthChecks(checker, st, provider, bus)

	controlLimiter, verifyLimiter := initLimiters(cfg, logger, metrics)

	var stream http.Handler
	if hub != nil {
		stream = hub
	}

	srv, err := server.New(server.Config{
		Address:        cfg.Server.Address,
		ReadTimeout:    cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:   cfg.Server.WriteTimeout.Duration(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Service:        svc,
		Authenticator:  authenticator,
		Stream:         stream,
		Checker:        checker,
		ControlLimiter: controlLimiter,
		VerifyLimiter:  verifyLimiter,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		logger.Fatal("failed to create server", observability.Error(err))
	}

	return &application{
		server:         srv,
		store:          st,
		bus:            bus,
		sinks:          sinks,
		secrets:        provider,
		checker:        checker,
		controlLimiter: controlLimiter,
		verifyLimiter:  verifyLimiter,
		metrics:        metrics,
		tracer:         tracer,
		config:         cfg,
	}
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	}
	if tracerCfg.ServiceName == "" {
		tracerCfg.ServiceName = "avkeyd"
	}

	tracer, err := observability.NewTracer(tracerCfg)
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}

	return tracer
}

// secretsProviderConfig maps the daemon configuration onto the secrets
// package configuration.
func secretsProviderConfig(cfg config.SecretsConfig) secrets.Config {
	return secrets.Config{
		Provider: cfg.Provider,
		Env: secrets.EnvConfig{
			Prefix: cfg.Env.Prefix,
		},
		File: secrets.FileConfig{
			Path: cfg.File.Path,
		},
		Vault: secrets.VaultConfig{
			Address:    cfg.Vault.Address,
			AuthMethod: cfg.Vault.AuthMethod,
			Token:      cfg.Vault.Token,
			RoleID:     cfg.Vault.RoleID,
			SecretID:   cfg.Vault.SecretID,
			Mount:      cfg.Vault.Mount,
			Timeout:    cfg.Vault.Timeout.Duration(),
		},
	}
}

// resolveConfigSecrets expands secret references in configuration
// values before any component reads them.
func resolveConfigSecrets(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver) error {
	var err error

	if cfg.Store.Redis.Password, err = resolver.Resolve(ctx, cfg.Store.Redis.Password); err != nil {
		return fmt.Errorf("store.redis.password: %w", err)
	}

	for i := range cfg.Auth.Tokens {
		if cfg.Auth.Tokens[i].Token, err = resolver.Resolve(ctx, cfg.Auth.Tokens[i].Token); err != nil {
			return fmt.Errorf("auth.tokens[%d].token: %w", i, err)
		}
	}

	if cfg.Auth.JWT.Secret, err = resolver.Resolve(ctx, cfg.Auth.JWT.Secret); err != nil {
		return fmt.Errorf("auth.jwt.secret: %w", err)
	}

	if cfg.Events.Webhook.Secret, err = resolver.Resolve(ctx, cfg.Events.Webhook.Secret); err != nil {
		return fmt.Errorf("events.webhook.secret: %w", err)
	}

	return nil
}

// initStore initializes the configured store backend.
func initStore(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreRedis:
		return store.NewRedis(&store.RedisConfig{
			Address:      cfg.Store.Redis.Address,
			Password:     cfg.Store.Redis.Password,
			DB:           cfg.Store.Redis.DB,
			Prefix:       cfg.Store.Redis.Prefix,
			PoolSize:     cfg.Store.Redis.PoolSize,
			MinIdleConns: cfg.Store.Redis.MinIdleConns,
			MaxRetries:   cfg.Store.Redis.MaxRetries,
			DialTimeout:  cfg.Store.Redis.DialTimeout.Duration(),
			ReadTimeout:  cfg.Store.Redis.ReadTimeout.Duration(),
			WriteTimeout: cfg.Store.Redis.WriteTimeout.Duration(),
			Logger:       logger,
			Metrics:      store.NewMetrics(metrics.Registry()),
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// initSinks builds the configured event sinks. The returned hub is nil
// unless the websocket stream is enabled.
func initSinks(cfg *config.Config, logger observability.Logger, eventMetrics *event.Metrics) ([]event.Sink, *event.Hub, error) {
	var sinks []event.Sink

	if cfg.Events.Log.Enabled {
		sinks = append(sinks, event.NewLogSink(logger))
	}

	if cfg.Events.Webhook.Enabled {
		webhook, err := event.NewWebhookSink(&event.WebhookConfig{
			URL:              cfg.Events.Webhook.URL,
			Secret:           cfg.Events.Webhook.Secret,
			Timeout:          cfg.Events.Webhook.Timeout.Duration(),
			Template:         cfg.Events.Webhook.Template,
			Headers:          cfg.Events.Webhook.Headers,
			MaxRetries:       cfg.Events.Webhook.MaxRetries,
			BreakerThreshold: cfg.Events.Webhook.BreakerThreshold,
			BreakerTimeout:   cfg.Events.Webhook.BreakerTimeout.Duration(),
			Logger:           logger,
			Metrics:          eventMetrics,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("webhook sink: %w", err)
		}
		sinks = append(sinks, webhook)
	}

	var hub *event.Hub
	if cfg.Events.WebSocket.Enabled {
		hub = event.NewHub(logger, eventMetrics)
		sinks = append(sinks, hub)
	}

	return sinks, hub, nil
}

// initAuthenticator builds the configured control-plane authenticator.
func initAuthenticator(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) (identity.Authenticator, error) {
	authMetrics := identity.NewMetrics(metrics.Registry())

	switch cfg.Auth.Mode {
	case identity.MethodToken:
		return identity.NewTokenAuthenticator(cfg.Auth.Tokens,
			identity.WithTokenLogger(logger),
			identity.WithTokenMetrics(authMetrics),
		)
	case identity.MethodJWT:
		return identity.NewJWTAuthenticator(identity.JWTConfig{
			Secret:    cfg.Auth.JWT.Secret,
			Issuer:    cfg.Auth.JWT.Issuer,
			Audience:  cfg.Auth.JWT.Audience,
			ClockSkew: cfg.Auth.JWT.ClockSkew.Duration(),
		},
			identity.WithJWTLogger(logger),
			identity.WithJWTMetrics(authMetrics),
		)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// registerHealthChecks wires dependency probes into the checker.
func registerHealthChecks(checker *health.Checker, st store.Store, provider secrets.Provider, bus *event.Bus) {
	checker.RegisterCheck("store", func(ctx context.Context) health.Check {
		if err := st.Ping(ctx); err != nil {
			return health.Check{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.Check{Status: health.StatusHealthy}
	})

	// Secrets are read at startup and on reload, so a failing provider
	// degrades the daemon without making it unable to serve.
	checker.RegisterCheck("secrets", func(ctx context.Context) health.Check {
		if err := provider.HealthCheck(ctx); err != nil {
			return health.Check{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.Check{Status: health.StatusHealthy}
	})

	// A full queue means events are being dropped.
	checker.RegisterCheck("events", func(_ context.Context) health.Check {
		if depth, capacity := bus.Depth(), bus.Capacity(); depth >= capacity {
			return health.Check{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("event queue full (%d buffered)", depth),
			}
		}
		return health.Check{Status: health.StatusHealthy}
	})
}

// initLimiters builds the request limiters. Verification traffic gets
// its own limiter so key checks are not starved by control churn.
func initLimiters(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) (*middleware.RateLimiter, *middleware.RateLimiter) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}

	control := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		ClientTTL:         cfg.RateLimit.ClientTTL.Duration(),
		Logger:            logger,
		Metrics:           metrics,
	})
	verify := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.VerifyRequestsPerSecond,
		Burst:             cfg.RateLimit.VerifyBurst,
		ClientTTL:         cfg.RateLimit.ClientTTL.Duration(),
		Logger:            logger,
		Metrics:           metrics,
	})

	control.StartAutoCleanup()
	verify.StartAutoCleanup()

	return control, verify
}

// runDaemon runs the daemon and handles shutdown.
func runDaemon(app *application, configPath string, logger observability.Logger) {
	ctx := context.Background()

	serverErr := make(chan error, 1)
	go func() {
		if err := app.server.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	startMetricsServerIfEnabled(app, logger)
	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, serverErr, logger)
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	if !app.config.Metrics.Enabled {
		return
	}

	go startMetricsServer(app.config.Metrics.Address, app.metrics, app.checker, logger)
}

// startConfigWatcher starts the configuration watcher. Only the log
// level and transport rate limits apply live; listener and store
// changes need a restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		applyReloadableConfig(app, newCfg, logger)
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// applyReloadableConfig applies the configuration fields that take
// effect without a restart.
func applyReloadableConfig(app *application, newCfg *config.Config, logger observability.Logger) {
	if err := logger.SetLevel(newCfg.Log.Level); err != nil {
		logger.Error("failed to apply reloaded log level", observability.Error(err))
		return
	}

	if newCfg.RateLimit.Enabled && app.controlLimiter != nil {
		app.controlLimiter.SetLimits(newCfg.RateLimit.RequestsPerSecond, newCfg.RateLimit.Burst)
		app.verifyLimiter.SetLimits(newCfg.RateLimit.VerifyRequestsPerSecond, newCfg.RateLimit.VerifyBurst)
	}

	logger.Info("configuration reloaded",
		observability.String("log_level", newCfg.Log.Level))
}

// waitForShutdown waits for a shutdown signal or a server failure and
// performs graceful shutdown.
func waitForShutdown(app *application, watcher *config.Watcher, serverErr <-chan error, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server failed", observability.Error(err))
	}

	app.checker.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.controlLimiter != nil {
		app.controlLimiter.Stop()
	}
	if app.verifyLimiter != nil {
		app.verifyLimiter.Stop()
	}

	// The bus drains buffered events before Close returns, so sinks
	// close only after their last delivery.
	if err := app.bus.Close(); err != nil {
		logger.Error("failed to close event bus", observability.Error(err))
	}
	for _, sink := range app.sinks {
		if err := sink.Close(); err != nil {
			logger.Error("failed to close event sink", observability.Error(err))
		}
	}

	if err := app.store.Close(); err != nil {
		logger.Error("failed to close store", observability.Error(err))
	}

	if err := app.secrets.Close(); err != nil {
		logger.Error("failed to close secrets provider", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("avkeyd stopped")
}

// startMetricsServer starts the metrics HTTP server.
func startMetricsServer(
	address string,
	metrics *observability.Metrics,
	checker *health.Checker,
	logger observability.Logger,
) {
	engine := gin.New()
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	checker.Register(engine)

	logger.Info("starting metrics server", observability.String("address", address))

	srv := &http.Server{
		Addr:              address,
		Handler:           engine,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
