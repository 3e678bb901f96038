package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// Repository persists orders with their line items and pieces.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the full order with line items and pieces.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_index ASC")
		}).
		Preload("LineItems.Pieces").
		First(&order, "id = ?", id).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// ListOpen returns every non-terminal order with line items and pieces;
// the reconciliation rebuild reserves stock for these.
func (r *Repository) ListOpen(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Preload("LineItems.Pieces").
		Where("status = ?", enums.OrderStatusOpen).
		Find(&rows).
		Error
	return rows, err
}

// Create inserts the order together with its line items and pieces.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

// SaveStatus persists the order's derived dispatch status.
func (r *Repository) SaveStatus(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"dispatch_status": order.DispatchStatus,
			"status":          order.Status,
		}).
		Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order status")
	}
	return nil
}

// SaveLineItem persists a line item's dispatched counter.
func (r *Repository) SaveLineItem(ctx context.Context, item *models.OrderLineItem) error {
	err := r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ?", item.ID).
		Update("dispatched_qty", item.DispatchedQty).
		Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order line item")
	}
	return nil
}

// SavePiece persists a piece's dispatched counter.
func (r *Repository) SavePiece(ctx context.Context, piece *models.OrderPiece) error {
	err := r.db.WithContext(ctx).
		Model(&models.OrderPiece{}).
		Where("id = ?", piece.ID).
		Update("dispatched_qty", piece.DispatchedQty).
		Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order piece")
	}
	return nil
}
