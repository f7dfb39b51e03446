package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/allensfl/coachingspace-app-sub001/internal/config"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/clock"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/kvstore"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/notify"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/persist"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"go.uber.org/zap"
)

// app holds what every command needs: configuration, logging and a loaded
// store.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	kv      port.KVStore
	feed    *notify.Feed
	store   *service.Store
}

func newApp(ctx context.Context) (*app, error) {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// --- Config ---
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Key-value store ---
	kv, err := kvstore.Open(ctx, kvstore.Options{
		Driver:        cfg.StoreDriver,
		SQLitePath:    cfg.SQLitePath,
		RedisURL:      cfg.RedisURL,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	logger.Info("store opened", zap.String("driver", cfg.StoreDriver))

	// --- Application state ---
	feed := notify.New(notify.DefaultCapacity, logger)
	repos := service.NewRepositories(persist.New(kv, logger, metrics))
	store := service.NewStore(repos, feed, clock.New(), metrics, logger)
	if err := store.Load(ctx); err != nil {
		kv.Close()
		logger.Sync()
		return nil, fmt.Errorf("load state: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		kv:      kv,
		feed:    feed,
		store:   store,
	}, nil
}

func (a *app) close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	a.logger.Sync()
}
