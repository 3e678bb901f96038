package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/api/validators"
	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

type movementDTO struct {
	ID           uuid.UUID          `json:"id"`
	ItemClass    enums.ItemClass    `json:"itemClass"`
	QualityID    uuid.UUID          `json:"qualityId"`
	DesignID     *uuid.UUID         `json:"designId,omitempty"`
	FactoryID    uuid.UUID          `json:"factoryId"`
	ColorGroupID *uuid.UUID         `json:"colorGroupId,omitempty"`
	SubCut       *string            `json:"subCut,omitempty"`
	BulkDelta    decimal.Decimal    `json:"bulkDelta"`
	UnitDelta    int                `json:"unitDelta"`
	PieceDelta   int                `json:"pieceDelta"`
	DocType      enums.MovementType `json:"docType"`
	DocID        uuid.UUID          `json:"docId"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func newMovementDTO(movement models.StockMovement) movementDTO {
	return movementDTO{
		ID:           movement.ID,
		ItemClass:    movement.ItemClass,
		QualityID:    movement.QualityID,
		DesignID:     movement.DesignID,
		FactoryID:    movement.FactoryID,
		ColorGroupID: movement.ColorGroupID,
		SubCut:       movement.SubCut,
		BulkDelta:    movement.BulkDelta,
		UnitDelta:    movement.UnitDelta,
		PieceDelta:   movement.PieceDelta,
		DocType:      movement.DocType,
		DocID:        movement.DocID,
		CreatedAt:    movement.CreatedAt,
	}
}

type movementListResponse struct {
	Movements []movementDTO `json:"movements"`
}

// StockMovementList returns the ledger rows recorded against one source
// document, oldest first.
func StockMovementList(movements *inventory.MovementRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		docType, err := enums.ParseMovementType(r.URL.Query().Get("doc_type"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid doc_type"))
			return
		}
		docID, err := validators.ParseQueryUUID(r, "doc_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if docID == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "doc_id is required"))
			return
		}

		rows, err := movements.ListByDoc(ctx, docType, *docID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		dtos := make([]movementDTO, 0, len(rows))
		for _, row := range rows {
			dtos = append(dtos, newMovementDTO(row))
		}
		responses.WriteSuccess(w, movementListResponse{Movements: dtos})
	}
}
