package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/milltrack/milltrack-backend/api/routes"
	"github.com/milltrack/milltrack-backend/internal/dispatch"
	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/masterdata"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/production"
	"github.com/milltrack/milltrack-backend/internal/recalc"
	"github.com/milltrack/milltrack-backend/internal/stock"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/config"
	"github.com/milltrack/milltrack-backend/pkg/db"
	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/migrate"
	"github.com/milltrack/milltrack-backend/pkg/redis"
)

const rebuildLockName = "inventory-rebuild"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	inventoryRepo := inventory.NewRepository(conn)
	unitRepo := units.NewRepository(conn)
	movementRepo := inventory.NewMovementRepository(conn)
	masterdataRepo := masterdata.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	dispatchRepo := dispatch.NewRepository(conn)
	productionRepo := production.NewRepository(conn)

	validator, err := stock.NewValidator(inventoryRepo, unitRepo, masterdataRepo)
	requireService(logg, "stock validator", err)
	allocator, err := stock.NewAllocator(inventoryRepo, unitRepo, movementRepo, logg)
	requireService(logg, "stock allocator", err)
	tracker, err := orders.NewTracker(orderRepo, logg)
	requireService(logg, "order tracker", err)

	dispatchService, err := dispatch.NewService(dbClient, dispatchRepo, orderRepo, validator, allocator, tracker, logg)
	requireService(logg, "dispatch service", err)
	unitService, err := units.NewService(unitRepo, logg)
	requireService(logg, "unit service", err)
	productionService, err := production.NewService(dbClient, productionRepo, inventoryRepo, unitRepo, movementRepo, logg)
	requireService(logg, "production service", err)
	rebuilder, err := recalc.NewRebuilder(dbClient, inventoryRepo, productionRepo, dispatchRepo, orderRepo, unitRepo, logg)
	requireService(logg, "rebuilder", err)
	rebuildLock, err := recalc.NewRedisLock(redisClient, redisClient.LockKey(rebuildLockName), cfg.Recalc.LockTTL)
	requireService(logg, "rebuild lock", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:            cfg,
			Logger:            logg,
			DBPinger:          dbClient,
			RedisClient:       redisClient,
			StockValidator:    validator,
			MovementRepo:      movementRepo,
			DispatchService:   dispatchService,
			UnitService:       unitService,
			OrderRepo:         orderRepo,
			ProductionService: productionService,
			Rebuilder:         rebuilder,
			RebuildLock:       rebuildLock,
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		graceCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name, err)
	os.Exit(1)
}
