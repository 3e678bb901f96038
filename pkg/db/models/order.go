package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// Order is a customer order whose open line items reserve stock.
// DispatchStatus is derived from the line items and only moves forward.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string    `gorm:"column:order_number;size:40;not null;uniqueIndex"`

	Status         enums.OrderStatus    `gorm:"column:status;type:varchar(12);not null;default:open"`
	DispatchStatus enums.DispatchStatus `gorm:"column:dispatch_status;type:varchar(12);not null;default:pending"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderLineItem carries the requested quantity and the running dispatched
// total for one partition of the order.
type OrderLineItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	LineIndex int       `gorm:"column:line_index;not null"`

	ItemClass enums.ItemClass `gorm:"column:item_class;type:varchar(10);not null"`
	QualityID uuid.UUID       `gorm:"column:quality_id;type:uuid;not null;index"`
	DesignID  *uuid.UUID      `gorm:"column:design_id;type:uuid"`

	Quantity      decimal.Decimal `gorm:"column:quantity;type:decimal(20,4);not null;default:0"`
	DispatchedQty decimal.Decimal `gorm:"column:dispatched_qty;type:decimal(20,4);not null;default:0"`

	Pieces []OrderPiece `gorm:"foreignKey:OrderLineItemID"`
}

func (o *OrderLineItem) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Fulfilled reports whether the bulk line's dispatched total covers the
// requested quantity. Count lines are judged piece by piece instead.
func (o *OrderLineItem) Fulfilled() bool {
	if o.ItemClass == enums.ItemClassCount {
		for _, piece := range o.Pieces {
			if piece.DispatchedQty < piece.PieceQty {
				return false
			}
		}
		return true
	}
	return o.DispatchedQty.GreaterThanOrEqual(o.Quantity)
}

// Started reports whether anything on the line has been dispatched.
func (o *OrderLineItem) Started() bool {
	if o.ItemClass == enums.ItemClassCount {
		for _, piece := range o.Pieces {
			if piece.DispatchedQty > 0 {
				return true
			}
		}
		return false
	}
	return o.DispatchedQty.IsPositive()
}

// OrderPiece is one color-group sub-quantity on a count-measured line.
type OrderPiece struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderLineItemID uuid.UUID `gorm:"column:order_line_item_id;type:uuid;not null;index"`

	ColorGroupID  uuid.UUID `gorm:"column:color_group_id;type:uuid;not null"`
	SubCut        *string   `gorm:"column:sub_cut;size:40"`
	PieceQty      int       `gorm:"column:piece_qty;not null"`
	DispatchedQty int       `gorm:"column:dispatched_qty;not null;default:0"`
}

func (o *OrderPiece) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
