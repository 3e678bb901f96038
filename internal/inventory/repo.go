package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/enums"
)

// Repository persists InventoryRecord counters.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
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

// LockAll takes an exclusive lock on the counter table for the rest of
// the current transaction. The rebuild acquires it as its first statement
// so live counter writes queue behind the rebuild instead of interleaving
// with it; reads stay unblocked. Postgres-only statement — sqlite has a
// single writer already.
func (r *Repository) LockAll(ctx context.Context) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := r.db.WithContext(ctx).Exec("LOCK TABLE inventory_records IN EXCLUSIVE MODE").Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock inventory records")
	}
	return nil
}

// FindByPartition loads the single record for the partition, or nil when
// the partition has never been observed.
func (r *Repository) FindByPartition(ctx context.Context, p Partition) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.partitionQuery(ctx, p).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindOrCreate returns the partition's record, lazily creating a zeroed
// one the first time the partition is observed.
func (r *Repository) FindOrCreate(ctx context.Context, p Partition) (*models.InventoryRecord, error) {
	record, err := r.FindByPartition(ctx, p)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}
	record = &models.InventoryRecord{
		ItemClass:    p.ItemClass,
		QualityID:    p.QualityID,
		DesignID:     p.DesignID,
		FactoryID:    p.FactoryID,
		ColorGroupID: p.ColorGroupID,
		SubCut:       p.SubCut,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory record")
	}
	return record, nil
}

// ListBulkByQuality returns every bulk record for the quality across all
// factories; the sufficiency check and the allocation walk both span
// factories on purpose.
func (r *Repository) ListBulkByQuality(ctx context.Context, qualityID uuid.UUID) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("item_class = ? AND quality_id = ?", enums.ItemClassBulk, qualityID).
		Find(&rows).
		Error
	return rows, err
}

// ListCountByGroup returns every count-measured record matching the
// quality/design/color-group/sub-cut combination across all factories.
func (r *Repository) ListCountByGroup(ctx context.Context, qualityID uuid.UUID, designID *uuid.UUID, colorGroupID uuid.UUID, subCut *string) ([]models.InventoryRecord, error) {
	qb := r.db.WithContext(ctx).
		Where("item_class = ? AND quality_id = ? AND color_group_id = ?", enums.ItemClassCount, qualityID, colorGroupID)
	qb = whereNullable(qb, "design_id", designID)
	qb = whereNullableString(qb, "sub_cut", subCut)

	var rows []models.InventoryRecord
	err := qb.Find(&rows).Error
	return rows, err
}

// ListByQuality returns every record for the quality, both bulk and
// count-measured, ordered for a stable summary.
func (r *Repository) ListByQuality(ctx context.Context, qualityID uuid.UUID) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("quality_id = ?", qualityID).
		Order("item_class ASC").
		Order("factory_id ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListAll streams every record; used by the reconciliation rebuild.
func (r *Repository) ListAll(ctx context.Context) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

// Save persists the record's counters.
func (r *Repository) Save(ctx context.Context, record *models.InventoryRecord) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory record")
	}
	return nil
}

// DeleteByIDs removes the given records; the rebuild uses this to prune
// orphaned partitions.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.InventoryRecord{}).
		Error
}

func (r *Repository) partitionQuery(ctx context.Context, p Partition) *gorm.DB {
	qb := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("item_class = ? AND quality_id = ? AND factory_id = ?", p.ItemClass, p.QualityID, p.FactoryID)
	qb = whereNullable(qb, "design_id", p.DesignID)
	qb = whereNullable(qb, "color_group_id", p.ColorGroupID)
	qb = whereNullableString(qb, "sub_cut", p.SubCut)
	return qb
}

func whereNullable(qb *gorm.DB, column string, id *uuid.UUID) *gorm.DB {
	if id == nil {
		return qb.Where(column + " IS NULL")
	}
	return qb.Where(column+" = ?", *id)
}

func whereNullableString(qb *gorm.DB, column string, value *string) *gorm.DB {
	if value == nil {
		return qb.Where(column + " IS NULL")
	}
	return qb.Where(column+" = ?", *value)
}
