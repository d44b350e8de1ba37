package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/marinova/oceanmeter/pkg/api"
	"github.com/marinova/oceanmeter/pkg/config"
	"github.com/marinova/oceanmeter/pkg/generation"
	"github.com/marinova/oceanmeter/pkg/identity"
	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/metering"
	"github.com/marinova/oceanmeter/pkg/middleware"
	"github.com/marinova/oceanmeter/pkg/observability"
	"github.com/marinova/oceanmeter/pkg/plans"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	observability.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("oceanmeter exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		if err := metrics.EnableOTel(); err != nil {
			logger.WithError(err).Warn("OTel metric instruments unavailable")
		}
	}

	catalog := plans.DefaultCatalog()
	if cfg.Storage.CatalogFile != "" {
		catalog, err = plans.LoadFile(cfg.Storage.CatalogFile)
		if err != nil {
			return err
		}
		logger.WithField("file", cfg.Storage.CatalogFile).Info("plan catalog loaded")
	}

	health := observability.NewHealthChecker(version)
	var closers []namedCloser

	store, sqlStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if sqlStore != nil {
		if err := sqlStore.Migrate(ctx); err != nil {
			return err
		}
		health.AddCheck("database", true, observability.DatabaseCheck(sqlStore.DB()))
		closers = append(closers, namedCloser{"database", func(context.Context) error { return sqlStore.DB().Close() }})
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = newRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		health.AddCheck("redis", false, observability.RedisCheck(redisClient))
		closers = append(closers, namedCloser{"redis", func(context.Context) error { return redisClient.Close() }})
	}

	if sqlStore != nil {
		store = ledger.NewCachedStore(store, redisClient, ledger.CacheConfig{
			L1Size:   cfg.Redis.L1Size,
			L1TTL:    cfg.Redis.L1TTL,
			RedisTTL: cfg.Redis.CacheTTL,
		}, logger, metrics)
	}

	engine := metering.NewEngine(store, catalog,
		metering.WithMetrics(metrics),
		metering.WithLogger(logger),
	)

	provider, err := generation.NewOpenRouterProvider(generation.OpenRouterOptions{
		APIKey:  cfg.AI.OpenRouterAPIKey,
		BaseURL: cfg.AI.BaseURL,
		Referer: cfg.AI.Referer,
		Title:   cfg.AI.Title,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		return err
	}

	authenticator, err := newAuthenticator(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	shutdownCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()

	opts := api.Options{
		Engine:         engine,
		Catalog:        catalog,
		Generator:      generation.NewService(provider, metrics),
		Authenticator:  authenticator,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		Metrics:        metrics,
		Health:         health,
	}
	if cfg.Observability.MetricsEnabled {
		opts.Registry = registry
	}
	if cfg.RateLimit.Enabled {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.RateLimit.Burst,
		}
		opts.RateLimitWindow = limitCfg.WindowDuration
		if redisClient != nil {
			opts.RateLimiter = middleware.NewDistributedRateLimiter(redisClient, limitCfg, "")
			opts.RateLimiterName = "redis"
		} else {
			limiter := middleware.NewRateLimiter(limitCfg)
			limiter.StartCleanup(shutdownCtx)
			opts.RateLimiter = limiter
			opts.RateLimiterName = "memory"
		}
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	for _, c := range closers {
		shutdown.Register(c.name, c.fn)
	}
	if providers != nil {
		shutdown.Register("otel", providers.Shutdown)
	}
	shutdown.Register("background", func(context.Context) error {
		cancelBackground()
		return nil
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":       server.Addr,
			"storage":    cfg.Storage.Type,
			"auth":       cfg.Auth.Mode,
			"rate_limit": opts.RateLimiterName,
			"version":    version,
		}).Info("oceanmeter listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err, ok := <-serveErr; ok {
			logger.WithError(err).Error("HTTP server failed")
			stopWaiting()
		}
	}()

	return shutdown.Wait(waitCtx)
}

type namedCloser struct {
	name string
	fn   observability.ShutdownFunc
}

// openStore returns the ledger store and, for SQL backends, the SQL store
// behind it.
func openStore(ctx context.Context, cfg config.StorageConfig) (ledger.Store, *ledger.SQLStore, error) {
	switch cfg.Type {
	case config.StorageSQLite:
		s, err := ledger.OpenSQLite(ctx, cfg.SQLitePath)
		return s, s, err
	case config.StoragePostgres:
		s, err := ledger.OpenPostgres(ctx, cfg.PostgresURL, cfg.PostgresMaxConns)
		return s, s, err
	default:
		return ledger.NewMemoryStore(), nil, nil
	}
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

func newAuthenticator(ctx context.Context, cfg config.AuthConfig) (identity.Authenticator, error) {
	if cfg.Mode == config.AuthOIDC {
		return identity.NewOIDCAuthenticator(ctx, identity.OIDCConfig{
			IssuerURL: cfg.OIDCIssuerURL,
			ClientID:  cfg.OIDCClientID,
		})
	}
	return identity.NewJWTAuthenticator(cfg.JWTSecret)
}
