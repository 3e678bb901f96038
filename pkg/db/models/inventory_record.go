package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// InventoryRecord holds the denormalized produced/reserved counters for one
// stock partition (item class x quality x design x factory x color group x
// sub cut). Counters are kept >= 0 at rest; the reconciliation job is the
// reference implementation of their values.
type InventoryRecord struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ItemClass    enums.ItemClass `gorm:"column:item_class;type:varchar(10);not null;index:idx_inventory_partition,priority:1"`
	QualityID    uuid.UUID       `gorm:"column:quality_id;type:uuid;not null;index:idx_inventory_partition,priority:2"`
	DesignID     *uuid.UUID      `gorm:"column:design_id;type:uuid;index:idx_inventory_partition,priority:3"`
	FactoryID    uuid.UUID       `gorm:"column:factory_id;type:uuid;not null;index:idx_inventory_partition,priority:4"`
	ColorGroupID *uuid.UUID      `gorm:"column:color_group_id;type:uuid;index"`
	SubCut       *string         `gorm:"column:sub_cut;size:40"`

	ProducedBulkQty   decimal.Decimal `gorm:"column:produced_bulk_qty;type:decimal(20,4);not null;default:0"`
	ProducedUnitCount int             `gorm:"column:produced_unit_count;not null;default:0"`
	ProducedPieceQty  int             `gorm:"column:produced_piece_qty;not null;default:0"`
	ReservedBulkQty   decimal.Decimal `gorm:"column:reserved_bulk_qty;type:decimal(20,4);not null;default:0"`
	ReservedUnitCount int             `gorm:"column:reserved_unit_count;not null;default:0"`
	ReservedPieceQty  int             `gorm:"column:reserved_piece_qty;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AvailableBulkQty is produced minus reserved; it may be negative, which
// signals an order backlog and is never stored.
func (r *InventoryRecord) AvailableBulkQty() decimal.Decimal {
	return r.ProducedBulkQty.Sub(r.ReservedBulkQty)
}

// AvailablePieceQty is the count-measured analogue of AvailableBulkQty.
func (r *InventoryRecord) AvailablePieceQty() int {
	return r.ProducedPieceQty - r.ReservedPieceQty
}

// IsEmpty reports whether every counter is zero.
func (r *InventoryRecord) IsEmpty() bool {
	return r.ProducedBulkQty.IsZero() &&
		r.ReservedBulkQty.IsZero() &&
		r.ProducedUnitCount == 0 &&
		r.ReservedUnitCount == 0 &&
		r.ProducedPieceQty == 0 &&
		r.ReservedPieceQty == 0
}
