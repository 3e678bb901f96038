package masterdata

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// Repository reads master-data rows (qualities, designs, color groups,
// factories). CRUD for these lives in the ERP layer; here they are read
// for display names and key checks.
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

// QualityName returns the quality's display name, or the id string when
// the row is missing. Shortage reports must never fail over a label.
func (r *Repository) QualityName(ctx context.Context, id uuid.UUID) string {
	var quality models.Quality
	if err := r.db.WithContext(ctx).First(&quality, "id = ?", id).Error; err != nil {
		return id.String()
	}
	return quality.Name
}

// ColorGroupName returns the color group's display name, falling back to
// the id string.
func (r *Repository) ColorGroupName(ctx context.Context, id uuid.UUID) string {
	var group models.ColorGroup
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return id.String()
	}
	return group.Name
}

// FactoryName returns the factory's display name, falling back to the id
// string.
func (r *Repository) FactoryName(ctx context.Context, id uuid.UUID) string {
	var factory models.Factory
	if err := r.db.WithContext(ctx).First(&factory, "id = ?", id).Error; err != nil {
		return id.String()
	}
	return factory.Name
}

// FindQuality loads one quality row.
func (r *Repository) FindQuality(ctx context.Context, id uuid.UUID) (*models.Quality, error) {
	var quality models.Quality
	if err := r.db.WithContext(ctx).First(&quality, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quality not found")
		}
		return nil, err
	}
	return &quality, nil
}

// FindFactory loads one factory row.
func (r *Repository) FindFactory(ctx context.Context, id uuid.UUID) (*models.Factory, error) {
	var factory models.Factory
	if err := r.db.WithContext(ctx).First(&factory, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "factory not found")
		}
		return nil, err
	}
	return &factory, nil
}
