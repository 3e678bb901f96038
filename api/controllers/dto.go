package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milltrack/milltrack-backend/internal/stock"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// pieceRequestBody is one color-group sub-request on a count line.
type pieceRequestBody struct {
	ColorGroupID uuid.UUID `json:"colorGroupId" validate:"required"`
	SubCut       *string   `json:"subCut"`
	PieceQty     int       `json:"pieceQty" validate:"required,min=1"`
}

// lineItemBody is the wire form shared by stock validation and dispatch
// creation. Bulk lines carry bulkQty or unitIds; count lines carry pieces.
type lineItemBody struct {
	LineIndex int                `json:"lineIndex" validate:"min=0"`
	ItemClass string             `json:"itemClass" validate:"required"`
	QualityID uuid.UUID          `json:"qualityId" validate:"required"`
	DesignID  *uuid.UUID         `json:"designId"`
	BulkQty   decimal.Decimal    `json:"bulkQty"`
	UnitIDs   []uuid.UUID        `json:"unitIds"`
	Pieces    []pieceRequestBody `json:"pieces" validate:"dive"`
}

func toLineItems(bodies []lineItemBody) ([]stock.LineItem, error) {
	items := make([]stock.LineItem, 0, len(bodies))
	for _, body := range bodies {
		itemClass, err := enums.ParseItemClass(body.ItemClass)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line item")
		}
		item := stock.LineItem{
			LineIndex: body.LineIndex,
			ItemClass: itemClass,
			QualityID: body.QualityID,
			DesignID:  body.DesignID,
			BulkQty:   body.BulkQty,
			UnitIDs:   body.UnitIDs,
		}
		for _, piece := range body.Pieces {
			item.Pieces = append(item.Pieces, stock.PieceRequest{
				ColorGroupID: piece.ColorGroupID,
				SubCut:       piece.SubCut,
				PieceQty:     piece.PieceQty,
			})
		}
		items = append(items, item)
	}
	return items, nil
}

type dispatchPieceDTO struct {
	ColorGroupID uuid.UUID `json:"colorGroupId"`
	SubCut       *string   `json:"subCut,omitempty"`
	PieceQty     int       `json:"pieceQty"`
}

type dispatchLineDTO struct {
	LineIndex int                `json:"lineIndex"`
	ItemClass enums.ItemClass    `json:"itemClass"`
	QualityID uuid.UUID          `json:"qualityId"`
	DesignID  *uuid.UUID         `json:"designId,omitempty"`
	BulkQty   decimal.Decimal    `json:"bulkQty"`
	UnitCount int                `json:"unitCount"`
	Pieces    []dispatchPieceDTO `json:"pieces,omitempty"`
}

type dispatchNoteDTO struct {
	ID         uuid.UUID         `json:"id"`
	NoteNumber string            `json:"noteNumber"`
	OrderID    uuid.UUID         `json:"orderId"`
	Remarks    *string           `json:"remarks,omitempty"`
	LineItems  []dispatchLineDTO `json:"lineItems"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func newDispatchNoteDTO(note *models.DispatchNote) *dispatchNoteDTO {
	dto := &dispatchNoteDTO{
		ID:         note.ID,
		NoteNumber: note.NoteNumber,
		OrderID:    note.OrderID,
		Remarks:    note.Remarks,
		LineItems:  []dispatchLineDTO{},
		CreatedAt:  note.CreatedAt,
	}
	for _, line := range note.LineItems {
		lineDTO := dispatchLineDTO{
			LineIndex: line.LineIndex,
			ItemClass: line.ItemClass,
			QualityID: line.QualityID,
			DesignID:  line.DesignID,
			BulkQty:   line.BulkQty,
			UnitCount: line.UnitCount,
		}
		for _, piece := range line.Pieces {
			lineDTO.Pieces = append(lineDTO.Pieces, dispatchPieceDTO{
				ColorGroupID: piece.ColorGroupID,
				SubCut:       piece.SubCut,
				PieceQty:     piece.PieceQty,
			})
		}
		dto.LineItems = append(dto.LineItems, lineDTO)
	}
	return dto
}

type orderPieceDTO struct {
	ColorGroupID  uuid.UUID `json:"colorGroupId"`
	SubCut        *string   `json:"subCut,omitempty"`
	PieceQty      int       `json:"pieceQty"`
	DispatchedQty int       `json:"dispatchedQty"`
}

type orderLineDTO struct {
	LineIndex     int             `json:"lineIndex"`
	ItemClass     enums.ItemClass `json:"itemClass"`
	QualityID     uuid.UUID       `json:"qualityId"`
	DesignID      *uuid.UUID      `json:"designId,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	DispatchedQty decimal.Decimal `json:"dispatchedQty"`
	Pieces        []orderPieceDTO `json:"pieces,omitempty"`
}

type orderDTO struct {
	ID             uuid.UUID            `json:"id"`
	OrderNumber    string               `json:"orderNumber"`
	Status         enums.OrderStatus    `json:"status"`
	DispatchStatus enums.DispatchStatus `json:"dispatchStatus"`
	LineItems      []orderLineDTO       `json:"lineItems"`
	CreatedAt      time.Time            `json:"createdAt"`
}

func newOrderDTO(order *models.Order) *orderDTO {
	dto := &orderDTO{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		DispatchStatus: order.DispatchStatus,
		LineItems:      []orderLineDTO{},
		CreatedAt:      order.CreatedAt,
	}
	for _, line := range order.LineItems {
		lineDTO := orderLineDTO{
			LineIndex:     line.LineIndex,
			ItemClass:     line.ItemClass,
			QualityID:     line.QualityID,
			DesignID:      line.DesignID,
			Quantity:      line.Quantity,
			DispatchedQty: line.DispatchedQty,
		}
		for _, piece := range line.Pieces {
			lineDTO.Pieces = append(lineDTO.Pieces, orderPieceDTO{
				ColorGroupID:  piece.ColorGroupID,
				SubCut:        piece.SubCut,
				PieceQty:      piece.PieceQty,
				DispatchedQty: piece.DispatchedQty,
			})
		}
		dto.LineItems = append(dto.LineItems, lineDTO)
	}
	return dto
}

type unitDTO struct {
	ID             uuid.UUID        `json:"id"`
	UnitNumber     string           `json:"unitNumber"`
	QualityID      uuid.UUID        `json:"qualityId"`
	DesignID       *uuid.UUID       `json:"designId,omitempty"`
	FactoryID      uuid.UUID        `json:"factoryId"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Status         enums.UnitStatus `json:"status"`
	DispatchNoteID *uuid.UUID       `json:"dispatchNoteId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func newUnitDTO(unit *models.FabricUnit) unitDTO {
	return unitDTO{
		ID:             unit.ID,
		UnitNumber:     unit.UnitNumber,
		QualityID:      unit.QualityID,
		DesignID:       unit.DesignID,
		FactoryID:      unit.FactoryID,
		Quantity:       unit.Quantity,
		Status:         unit.Status,
		DispatchNoteID: unit.DispatchNoteID,
		CreatedAt:      unit.CreatedAt,
	}
}

type productionPieceDTO struct {
	ColorGroupID uuid.UUID `json:"colorGroupId"`
	SubCut       *string   `json:"subCut,omitempty"`
	PieceQty     int       `json:"pieceQty"`
}

type productionEventDTO struct {
	ID        uuid.UUID            `json:"id"`
	ItemClass enums.ItemClass      `json:"itemClass"`
	QualityID uuid.UUID            `json:"qualityId"`
	DesignID  *uuid.UUID           `json:"designId,omitempty"`
	FactoryID uuid.UUID            `json:"factoryId"`
	BulkQty   decimal.Decimal      `json:"bulkQty"`
	UnitCount int                  `json:"unitCount"`
	Pieces    []productionPieceDTO `json:"pieces,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

func newProductionEventDTO(event *models.ProductionEvent) *productionEventDTO {
	dto := &productionEventDTO{
		ID:        event.ID,
		ItemClass: event.ItemClass,
		QualityID: event.QualityID,
		DesignID:  event.DesignID,
		FactoryID: event.FactoryID,
		BulkQty:   event.BulkQty,
		UnitCount: event.UnitCount,
		CreatedAt: event.CreatedAt,
	}
	for _, piece := range event.Pieces {
		dto.Pieces = append(dto.Pieces, productionPieceDTO{
			ColorGroupID: piece.ColorGroupID,
			SubCut:       piece.SubCut,
			PieceQty:     piece.PieceQty,
		})
	}
	return dto
}
