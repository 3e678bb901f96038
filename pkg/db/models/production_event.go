package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// ProductionEvent is an immutable record of stock entering a factory. Bulk
// events carry a total quantity plus the units created; count events carry
// per color-group piece rows.
type ProductionEvent struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ItemClass enums.ItemClass `gorm:"column:item_class;type:varchar(10);not null"`
	QualityID uuid.UUID       `gorm:"column:quality_id;type:uuid;not null;index"`
	DesignID  *uuid.UUID      `gorm:"column:design_id;type:uuid;index"`
	FactoryID uuid.UUID       `gorm:"column:factory_id;type:uuid;not null;index"`

	BulkQty   decimal.Decimal `gorm:"column:bulk_qty;type:decimal(20,4);not null;default:0"`
	UnitCount int             `gorm:"column:unit_count;not null;default:0"`

	Pieces []ProductionPiece `gorm:"foreignKey:ProductionEventID"`
	Units  []FabricUnit      `gorm:"foreignKey:ProductionEventID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (p *ProductionEvent) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductionPiece is one color-group slice of a count-measured production.
type ProductionPiece struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductionEventID uuid.UUID `gorm:"column:production_event_id;type:uuid;not null;index"`

	ColorGroupID uuid.UUID `gorm:"column:color_group_id;type:uuid;not null"`
	SubCut       *string   `gorm:"column:sub_cut;size:40"`
	PieceQty     int       `gorm:"column:piece_qty;not null"`
}

func (p *ProductionPiece) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
