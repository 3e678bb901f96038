package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/api/validators"
	"github.com/milltrack/milltrack-backend/internal/dispatch"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

type dispatchCreateRequest struct {
	OrderID uuid.UUID      `json:"orderId" validate:"required"`
	Remarks *string        `json:"remarks" validate:"omitempty,max=500"`
	Items   []lineItemBody `json:"items" validate:"required,min=1,dive"`
}

// DispatchNoteCreate validates stock, persists the note, deducts and updates
// the order in one transaction. Covered by the idempotency middleware.
func DispatchNoteCreate(service *dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req dispatchCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := toLineItems(req.Items)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		note, err := service.Create(ctx, dispatch.CreateInput{
			OrderID: req.OrderID,
			Remarks: req.Remarks,
			Items:   items,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newDispatchNoteDTO(note))
	}
}

func DispatchNoteDetail(service *dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := validators.ParsePathUUID(chi.URLParam(r, "dispatchNoteId"), "dispatchNoteId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		note, err := service.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newDispatchNoteDTO(note))
	}
}
