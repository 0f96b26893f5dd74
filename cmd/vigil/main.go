package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vigil/internal/api"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/logging"
	"vigil/internal/market"
	"vigil/internal/monitoring"
	"vigil/internal/store"
	"vigil/internal/ws"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logger.Infof("starting %s %s", cfg.App.Name, cfg.App.Version)

	metrics := monitoring.NewMetrics()

	// The backend stays up when a store is down: the affected channels
	// degrade and recover on their own once the store returns.
	redisStore, err := store.NewRedisStore(&cfg.Redis, cfg.ZScore.WindowSize)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, state and health channels degraded")
		redisStore = nil
	}

	var db *database.DB
	var alertStore *store.AlertStore
	db, err = database.NewConnection(&cfg.Database)
	if err != nil {
		logger.WithError(err).Warn("postgres unavailable, alerts channel degraded")
		db = nil
	} else {
		alertStore = store.NewAlertStore(db)
	}

	registry := ws.NewRegistry()

	var zscores *market.ZScoreEstimator
	if redisStore != nil {
		zscores = market.NewZScoreEstimator(redisStore, cfg.ZScore.MinSamples, cfg.ZScore.MinStd)
	}

	broadcaster := ws.NewBroadcaster(
		registry,
		snapshotSource(redisStore),
		alertSource(alertStore),
		healthSource(redisStore),
		zscores,
		ws.Universe{
			Exchanges:   cfg.Universe.Exchanges,
			Instruments: cfg.Universe.Instruments,
		},
		ws.BroadcasterConfig{
			Interval:     cfg.Broadcast.Interval,
			ReadTimeout:  cfg.Broadcast.ReadTimeout,
			DepthLevels:  cfg.Broadcast.DepthLevels,
			WarmupMetric: cfg.Broadcast.WarmupMetric,
		},
		logger,
		metrics,
	)

	deps := api.Deps{
		Registry: registry,
		ZScores:  zscores,
		Metrics:  metrics,
		Log:      logger,
	}
	if redisStore != nil {
		deps.Snapshots = redisStore
		deps.Health = redisStore
		deps.RedisHealth = redisStore
	}
	if alertStore != nil {
		deps.Alerts = alertStore
	}
	if db != nil {
		deps.DBHealth = db
	}
	server := api.NewServer(cfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go broadcaster.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received signal %v, shutting down", sig)
		cancel()
		if err := <-errCh; err != nil {
			logger.WithError(err).Error("server shutdown failed")
		}
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server failed")
		}
		cancel()
	}

	if redisStore != nil {
		redisStore.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("stopped")
}

// The broadcaster takes interfaces; a nil *RedisStore must stay a nil
// interface value so its channel is skipped rather than dereferenced.

func snapshotSource(s *store.RedisStore) ws.SnapshotSource {
	if s == nil {
		return nil
	}
	return s
}

func alertSource(s *store.AlertStore) ws.AlertSource {
	if s == nil {
		return nil
	}
	return s
}

func healthSource(s *store.RedisStore) ws.HealthSource {
	if s == nil {
		return nil
	}
	return s
}
