package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AhmedPho/blazer/internal/adapter"
	"github.com/AhmedPho/blazer/internal/api"
	"github.com/AhmedPho/blazer/internal/audit"
	"github.com/AhmedPho/blazer/internal/auth"
	"github.com/AhmedPho/blazer/internal/cache"
	"github.com/AhmedPho/blazer/internal/checks"
	"github.com/AhmedPho/blazer/internal/config"
	"github.com/AhmedPho/blazer/internal/engine"
	"github.com/AhmedPho/blazer/internal/observability"
	"github.com/AhmedPho/blazer/internal/storage"
)

func main() {
	cfg, err := config.LoadFromEnv("blazer-server")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		cacheStore = cache.NewRedis(client)
	default:
		cacheStore = cache.NewMemory()
	}

	eng := &engine.Engine{
		Cache:  cacheStore,
		Logger: logger,
	}

	if cfg.Storage.DSN != "" {
		storageDB, err := storage.Open(context.Background(), storage.DBConfig{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxIdleTime: cfg.Storage.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open storage db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = storageDB.Close() }()

		if cfg.Engine.AuditEnabled {
			eng.Audit = audit.NewStore(storageDB)
		}
		eng.Checks = checks.NewService(storageDB)
	} else if cfg.Engine.AuditEnabled {
		logger.Warn("auditing enabled without a storage dsn; audit entries will be dropped")
		eng.Audit = audit.Nop{}
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to build data source registry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = registry.Close() }()

	deps := api.Dependencies{
		Logger:   logger,
		Engine:   eng,
		Registry: registry,
		Readiness: api.CombineReadinessChecks(
			api.CheckStorageDSN(cfg),
			api.CheckDataSources(registry),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func buildRegistry(cfg config.Config, logger *slog.Logger) (*engine.Registry, error) {
	entries, err := config.LoadDataSources(cfg.Engine.DataSourcesFile)
	if err != nil {
		return nil, err
	}

	sources := make([]*engine.DataSource, 0, len(entries))
	for _, entry := range entries {
		family, err := adapter.Parse(entry.Adapter)
		if err != nil {
			return nil, err
		}
		mode, err := engine.ParseCacheMode(entry.Cache.Mode)
		if err != nil {
			return nil, err
		}
		ds, err := engine.NewDataSource(engine.DataSourceConfig{
			ID:             entry.ID,
			Name:           entry.Name,
			Adapter:        family,
			URL:            entry.URL,
			Timeout:        entry.Timeout(),
			Schemas:        entry.Schemas,
			Database:       entry.Database,
			UseTransaction: entry.UseTransaction,
			CacheMode:      mode,
			CacheExpiry:    entry.CacheExpiry(),
			SlowThreshold:  entry.SlowThreshold(),
			MaxOpenConns:   entry.MaxOpenConns,
			MaxIdleConns:   entry.MaxIdleConns,
			AllowEmptyURL:  cfg.Profile == config.ProfileDev,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("registered data source",
			slog.String("id", ds.ID()),
			slog.String("adapter", ds.Family().String()),
			slog.String("cache_mode", string(ds.CacheSettings().Mode)),
		)
		sources = append(sources, ds)
	}
	return engine.NewRegistry(sources...)
}
