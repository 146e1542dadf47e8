// Package app wires the store, caches and services shared by the api and
// worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/db/memdb"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricehistory"
	"github.com/noah-isme/backend-kasir/internal/promo"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

// Dependencies enumerates core services shared across binaries.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      db.Store
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Validator  *validator.Validate
	Catalog    *catalog.Service
	Promo      *promo.Service
	Sales      *sale.Service
	TaskClient *asynq.Client

	closers []func() error
}

// Build opens the configured store and Redis, then assembles the services.
// Redis is optional; without it caching, idempotency and background impact
// refreshes are disabled.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger, Validator: common.NewValidator()}

	store, pool, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.Store, d.Pool = store, pool
	if pool != nil {
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
	} else {
		logger.Warn().Str("env", cfg.AppEnv).Msg("in-memory store: data is process-local and lost on restart")
	}

	if cfg.RedisEnabled() {
		client, err := OpenRedis(ctx, cfg, logger)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.Redis = client
		d.closers = append(d.closers, client.Close)

		connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("parse redis url for tasks: %w", err)
		}
		d.TaskClient = asynq.NewClient(connOpt)
		d.closers = append(d.closers, d.TaskClient.Close)
	}

	d.Catalog = catalog.NewService(catalog.ServiceConfig{
		Queries: store.Queries(),
		Cache:   catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		Logger:  logger.With().Str("component", "catalog").Logger(),
	})
	recorder := pricehistory.NewRecorder(nil)

	var scheduler promo.ImpactScheduler
	if d.TaskClient != nil {
		scheduler = promo.TaskScheduler{Client: d.TaskClient, Queue: cfg.WorkerQueue, MaxRetry: 5}
	}
	d.Promo = promo.NewService(promo.ServiceConfig{
		Store:        store,
		Catalog:      d.Catalog,
		Recorder:     recorder,
		Scheduler:    scheduler,
		Validator:    d.Validator,
		Logger:       logger.With().Str("component", "promo").Logger(),
		HistoryLimit: cfg.PriceHistoryLimit,
	})
	d.Sales = sale.NewService(sale.ServiceConfig{
		Store:        store,
		Catalog:      d.Catalog,
		Recorder:     recorder,
		Validator:    d.Validator,
		Logger:       logger.With().Str("component", "sale").Logger(),
		NumberPrefix: cfg.SaleNumberPrefix,
		MaxAttempts:  cfg.SaleMaxAttempts,
		Backoff:      cfg.SaleRetryBackoff,
	})
	return d, nil
}

// Close releases connections in reverse order of opening.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// OpenStore returns the store selected by STORE_DRIVER. The pool is nil for
// the in-memory driver.
func OpenStore(ctx context.Context, cfg *config.Config) (db.Store, *pgxpool.Pool, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return memdb.New(), nil, nil
	}
	if cfg.DatabaseAutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "kasir-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return db.NewPoolStore(pool), pool, nil
}

// OpenRedis connects to REDIS_URL. Tracing and pool metrics are attached when
// tracing is enabled.
func OpenRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
