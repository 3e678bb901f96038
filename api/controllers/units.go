package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/api/validators"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/pagination"
)

type unitListResponse struct {
	Units      []unitDTO `json:"units"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

func UnitList(service *units.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		qualityID, err := validators.ParseQueryUUID(r, "quality_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		designID, err := validators.ParseQueryUUID(r, "design_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		factoryID, err := validators.ParseQueryUUID(r, "factory_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := service.ListAvailable(ctx, units.ListFilters{
			QualityID: qualityID,
			DesignID:  designID,
			FactoryID: factoryID,
		}, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload := unitListResponse{Units: make([]unitDTO, 0, len(list.Units)), NextCursor: list.NextCursor}
		for i := range list.Units {
			payload.Units = append(payload.Units, newUnitDTO(&list.Units[i]))
		}
		responses.WriteSuccess(w, payload)
	}
}

type unitStatusRequest struct {
	Status         string     `json:"status" validate:"required"`
	DispatchNoteID *uuid.UUID `json:"dispatchNoteId"`
}

// UnitSetStatus applies a manual status correction to one unit.
func UnitSetStatus(service *units.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := validators.ParsePathUUID(chi.URLParam(r, "unitId"), "unitId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req unitStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := enums.ParseUnitStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit status"))
			return
		}

		unit, err := service.SetStatus(ctx, id, status, req.DispatchNoteID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newUnitDTO(unit))
	}
}
