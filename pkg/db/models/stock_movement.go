package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// StockMovement is one append-only quantity delta against a partition,
// keyed by the source document. The reconciliation job treats the source
// tables as ground truth; movements exist for audit listing.
type StockMovement struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`

	ItemClass    enums.ItemClass `gorm:"column:item_class;type:varchar(10);not null;index:idx_stock_movements_partition,priority:1"`
	QualityID    uuid.UUID       `gorm:"column:quality_id;type:uuid;not null;index:idx_stock_movements_partition,priority:2"`
	DesignID     *uuid.UUID      `gorm:"column:design_id;type:uuid"`
	FactoryID    uuid.UUID       `gorm:"column:factory_id;type:uuid;not null;index:idx_stock_movements_partition,priority:3"`
	ColorGroupID *uuid.UUID      `gorm:"column:color_group_id;type:uuid"`
	SubCut       *string         `gorm:"column:sub_cut;size:40"`

	BulkDelta  decimal.Decimal `gorm:"column:bulk_delta;type:decimal(20,4);not null;default:0"`
	UnitDelta  int             `gorm:"column:unit_delta;not null;default:0"`
	PieceDelta int             `gorm:"column:piece_delta;not null;default:0"`

	DocType enums.MovementType `gorm:"column:doc_type;type:varchar(12);not null"`
	DocID   uuid.UUID          `gorm:"column:doc_id;type:uuid;not null;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *StockMovement) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
