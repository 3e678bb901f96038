package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/milltrack/milltrack-backend/api/controllers"
	"github.com/milltrack/milltrack-backend/api/middleware"
	"github.com/milltrack/milltrack-backend/internal/dispatch"
	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/production"
	"github.com/milltrack/milltrack-backend/internal/recalc"
	"github.com/milltrack/milltrack-backend/internal/stock"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/config"
	"github.com/milltrack/milltrack-backend/pkg/db"
	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/redis"
)

// Deps carries everything the router wires into its handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DBPinger    db.Pinger
	RedisClient *redis.Client

	StockValidator    *stock.Validator
	MovementRepo      *inventory.MovementRepository
	DispatchService   *dispatch.Service
	UnitService       *units.Service
	OrderRepo         *orders.Repository
	ProductionService *production.Service
	Rebuilder         *recalc.Rebuilder
	RebuildLock       recalc.Lock
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	var redisPinger redis.Pinger
	if deps.RedisClient != nil {
		redisPinger = deps.RedisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.DBPinger, redisPinger))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	var idempotencyStore redis.IdempotencyStore
	if deps.RedisClient != nil {
		idempotencyStore = deps.RedisClient
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, deps.Config.Dispatch.IdempotencyTTL, deps.Logger))

		r.Post("/stock/validate", controllers.StockValidate(deps.StockValidator, deps.Logger))
		r.Get("/stock/qualities/{qualityId}", controllers.StockQualitySummary(deps.StockValidator, deps.Logger))
		r.Get("/stock/movements", controllers.StockMovementList(deps.MovementRepo, deps.Logger))

		r.Post("/dispatch-notes", controllers.DispatchNoteCreate(deps.DispatchService, deps.Logger))
		r.Get("/dispatch-notes/{dispatchNoteId}", controllers.DispatchNoteDetail(deps.DispatchService, deps.Logger))

		r.Get("/orders", controllers.OpenOrderList(deps.OrderRepo, deps.Logger))
		r.Get("/orders/{orderId}", controllers.OrderDetail(deps.OrderRepo, deps.Logger))

		r.Get("/units", controllers.UnitList(deps.UnitService, deps.Logger))
		r.Patch("/units/{unitId}/status", controllers.UnitSetStatus(deps.UnitService, deps.Logger))

		r.Post("/production-events", controllers.ProductionEventCreate(deps.ProductionService, deps.Logger))
		r.Post("/recalculate", controllers.Recalculate(deps.Rebuilder, deps.RebuildLock, deps.Logger))
	})

	return r
}
