package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/api/validators"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

func OrderDetail(repo *orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := repo.FindByID(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderDTO(order))
	}
}

type orderListResponse struct {
	Orders []orderDTO `json:"orders"`
}

// OpenOrderList returns the orders still reserving stock.
func OpenOrderList(repo *orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		open, err := repo.ListOpen(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload := orderListResponse{Orders: make([]orderDTO, 0, len(open))}
		for i := range open {
			payload.Orders = append(payload.Orders, *newOrderDTO(&open[i]))
		}
		responses.WriteSuccess(w, payload)
	}
}
