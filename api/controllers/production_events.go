package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/api/validators"
	"github.com/milltrack/milltrack-backend/internal/production"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

type productionUnitBody struct {
	UnitNumber string          `json:"unitNumber" validate:"required,max=40"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type productionPieceBody struct {
	ColorGroupID uuid.UUID `json:"colorGroupId" validate:"required"`
	SubCut       *string   `json:"subCut"`
	PieceQty     int       `json:"pieceQty" validate:"required,min=1"`
}

type productionCreateRequest struct {
	ItemClass string     `json:"itemClass" validate:"required"`
	QualityID uuid.UUID  `json:"qualityId" validate:"required"`
	DesignID  *uuid.UUID `json:"designId"`
	FactoryID uuid.UUID  `json:"factoryId" validate:"required"`

	BulkQty decimal.Decimal       `json:"bulkQty"`
	Units   []productionUnitBody  `json:"units" validate:"dive"`
	Pieces  []productionPieceBody `json:"pieces" validate:"dive"`
}

// ProductionEventCreate records stock entering a factory and bumps the
// inventory counters. Covered by the idempotency middleware.
func ProductionEventCreate(service *production.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req productionCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		itemClass, err := enums.ParseItemClass(req.ItemClass)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid production event"))
			return
		}

		input := production.RecordInput{
			ItemClass: itemClass,
			QualityID: req.QualityID,
			DesignID:  req.DesignID,
			FactoryID: req.FactoryID,
			BulkQty:   req.BulkQty,
		}
		for _, unit := range req.Units {
			input.Units = append(input.Units, production.UnitInput{
				UnitNumber: unit.UnitNumber,
				Quantity:   unit.Quantity,
			})
		}
		for _, piece := range req.Pieces {
			input.Pieces = append(input.Pieces, production.PieceInput{
				ColorGroupID: piece.ColorGroupID,
				SubCut:       piece.SubCut,
				PieceQty:     piece.PieceQty,
			})
		}

		event, err := service.Record(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newProductionEventDTO(event))
	}
}
