package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// DispatchNote (challan) records goods leaving inventory against an order.
type DispatchNote struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	NoteNumber string    `gorm:"column:note_number;size:40;not null;uniqueIndex"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Remarks    *string   `gorm:"column:remarks;size:500"`

	LineItems []DispatchLineItem `gorm:"foreignKey:DispatchNoteID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (d *DispatchNote) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DispatchLineItem is one partition's share of a dispatch note. LineIndex
// ties bulk lines back to the originating order line. BulkQty stores the
// resolved required quantity (explicit amount or the sum over the selected
// units) so the reconciliation replay does not depend on unit rows.
type DispatchLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DispatchNoteID uuid.UUID `gorm:"column:dispatch_note_id;type:uuid;not null;index"`
	LineIndex      int       `gorm:"column:line_index;not null"`

	ItemClass enums.ItemClass `gorm:"column:item_class;type:varchar(10);not null"`
	QualityID uuid.UUID       `gorm:"column:quality_id;type:uuid;not null;index"`
	DesignID  *uuid.UUID      `gorm:"column:design_id;type:uuid"`

	BulkQty   decimal.Decimal `gorm:"column:bulk_qty;type:decimal(20,4);not null;default:0"`
	UnitCount int             `gorm:"column:unit_count;not null;default:0"`

	Pieces []DispatchPiece `gorm:"foreignKey:DispatchLineItemID"`
}

func (d *DispatchLineItem) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DispatchPiece is one color-group sub-request on a count-measured line.
type DispatchPiece struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DispatchLineItemID uuid.UUID `gorm:"column:dispatch_line_item_id;type:uuid;not null;index"`

	ColorGroupID uuid.UUID `gorm:"column:color_group_id;type:uuid;not null"`
	SubCut       *string   `gorm:"column:sub_cut;size:40"`
	PieceQty     int       `gorm:"column:piece_qty;not null"`
}

func (d *DispatchPiece) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
