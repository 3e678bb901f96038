package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/api/validators"
	"github.com/milltrack/milltrack-backend/internal/stock"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

type stockValidateRequest struct {
	Items []lineItemBody `json:"items" validate:"required,min=1,dive"`
}

// StockValidate answers whether the requested lines are covered by the
// aggregate available stock. Read-only; a passing answer here is revalidated
// inside the dispatch transaction.
func StockValidate(validator *stock.Validator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req stockValidateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := toLineItems(req.Items)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := validator.Validate(ctx, items)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate stock"))
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// StockQualitySummary reports one quality's stock position: bulk per
// factory, count-measured per color group, all net of reservations.
func StockQualitySummary(validator *stock.Validator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		qualityID, err := validators.ParsePathUUID(chi.URLParam(r, "qualityId"), "qualityId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		summary, err := validator.QualitySummary(ctx, qualityID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
