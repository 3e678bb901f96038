package production

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// Repository persists production events and their piece breakdowns.
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

// FindByID loads the event with its pieces.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionEvent, error) {
	var event models.ProductionEvent
	err := r.db.WithContext(ctx).
		Preload("Pieces").
		First(&event, "id = ?", id).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "production event not found")
		}
		return nil, err
	}
	return &event, nil
}

// ListAll streams every event oldest first; the reconciliation rebuild
// folds them into the calculated counters.
func (r *Repository) ListAll(ctx context.Context) ([]models.ProductionEvent, error) {
	var rows []models.ProductionEvent
	err := r.db.WithContext(ctx).
		Preload("Pieces").
		Order("created_at ASC").
		Find(&rows).
		Error
	return rows, err
}

// Create inserts the event together with its pieces.
func (r *Repository) Create(ctx context.Context, event *models.ProductionEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create production event")
	}
	return nil
}
