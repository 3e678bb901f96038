package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// FabricUnit is one physical, individually numbered roll of bulk-measured
// stock. Status is sold exactly when a dispatch note references the unit.
type FabricUnit struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UnitNumber string    `gorm:"column:unit_number;size:40;not null;uniqueIndex"`

	QualityID uuid.UUID  `gorm:"column:quality_id;type:uuid;not null;index:idx_fabric_units_partition,priority:1"`
	DesignID  *uuid.UUID `gorm:"column:design_id;type:uuid;index:idx_fabric_units_partition,priority:2"`
	FactoryID uuid.UUID  `gorm:"column:factory_id;type:uuid;not null;index:idx_fabric_units_partition,priority:3"`

	Quantity decimal.Decimal  `gorm:"column:quantity;type:decimal(20,4);not null"`
	Status   enums.UnitStatus `gorm:"column:status;type:varchar(12);not null;default:available;index"`

	DispatchNoteID    *uuid.UUID `gorm:"column:dispatch_note_id;type:uuid;index"`
	ProductionEventID *uuid.UUID `gorm:"column:production_event_id;type:uuid;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *FabricUnit) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
