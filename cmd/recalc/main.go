package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/milltrack/milltrack-backend/internal/dispatch"
	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/production"
	"github.com/milltrack/milltrack-backend/internal/recalc"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/config"
	"github.com/milltrack/milltrack-backend/pkg/db"
	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/metrics"
	"github.com/milltrack/milltrack-backend/pkg/migrate"
	"github.com/milltrack/milltrack-backend/pkg/redis"
)

const rebuildLockName = "inventory-rebuild"

func main() {
	logg := logger.New(logger.Options{ServiceName: "recalc-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "recalc-worker"

	logg = logger.New(logger.Options{
		ServiceName: "recalc-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	rebuilder, err := recalc.NewRebuilder(
		dbClient,
		inventory.NewRepository(conn),
		production.NewRepository(conn),
		dispatch.NewRepository(conn),
		orders.NewRepository(conn),
		units.NewRepository(conn),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create rebuilder", err)
		os.Exit(1)
	}

	lock, err := recalc.NewRedisLock(redisClient, redisClient.LockKey(rebuildLockName), cfg.Recalc.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create rebuild lock", err)
		os.Exit(1)
	}

	worker, err := recalc.NewWorker(recalc.WorkerParams{
		Logger:   logg,
		Builder:  rebuilder,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Recalc.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rebuild worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	metricsServer := &http.Server{
		Addr:    ":" + cfg.Recalc.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	defer func() {
		if err := metricsServer.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "metrics server shutdown error", err)
		}
	}()

	if cfg.Recalc.RunOnce {
		logg.Info(ctx, "running one rebuild cycle")
		if err := worker.RunOnce(ctx); err != nil {
			logg.Error(ctx, "rebuild failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting rebuild worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "rebuild worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "rebuild worker shutting down gracefully")
}
