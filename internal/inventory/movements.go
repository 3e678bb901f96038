package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// MovementRepository appends to the stock-movement ledger. Movements are
// an audit trail of counter changes; the reconciliation rebuild works from
// the source documents, not from this ledger.
type MovementRepository struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *MovementRepository) WithTx(tx *gorm.DB) *MovementRepository {
	if tx == nil {
		return r
	}
	return &MovementRepository{db: tx}
}

// Append inserts the movements in one batch.
func (r *MovementRepository) Append(ctx context.Context, movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&movements).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movements")
	}
	return nil
}

// ListByDoc returns the movements recorded against one source document.
func (r *MovementRepository) ListByDoc(ctx context.Context, docType enums.MovementType, docID uuid.UUID) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("doc_type = ? AND doc_id = ?", docType, docID).
		Order("created_at ASC").
		Find(&rows).
		Error
	return rows, err
}
