package units

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/pagination"
)

// Repository persists FabricUnit rows.
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

// FindByID loads one unit.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FabricUnit, error) {
	var unit models.FabricUnit
	if err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found")
		}
		return nil, err
	}
	return &unit, nil
}

// FindByIDs loads the requested units and fails when any id is missing,
// so a dispatch can never silently reference a phantom roll.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.FabricUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.FabricUnit
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more units not found")
	}
	return rows, nil
}

// SumQuantity totals the bulk quantity carried by the given units.
func (r *Repository) SumQuantity(ctx context.Context, ids []uuid.UUID) (decimal.Decimal, error) {
	rows, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, unit := range rows {
		total = total.Add(unit.Quantity)
	}
	return total, nil
}

// MarkSold stamps the units as sold against the dispatch note. Units that
// are already sold to a different note are refused.
func (r *Repository) MarkSold(ctx context.Context, ids []uuid.UUID, dispatchNoteID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.FabricUnit{}).
		Where("id IN ? AND status = ?", ids, enums.UnitStatusAvailable).
		Updates(map[string]any{
			"status":           enums.UnitStatusSold,
			"dispatch_note_id": dispatchNoteID,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark units sold")
	}
	if res.RowsAffected != int64(len(ids)) {
		return pkgerrors.New(pkgerrors.CodeConflict, "one or more units are already sold")
	}
	return nil
}

// CreateBatch inserts freshly produced units.
func (r *Repository) CreateBatch(ctx context.Context, rows []models.FabricUnit) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		if db.IsUniqueViolation(err, "unit_number") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "unit number already registered")
		}
		return err
	}
	return nil
}

// Save persists a single unit.
func (r *Repository) Save(ctx context.Context, unit *models.FabricUnit) error {
	return r.db.WithContext(ctx).Save(unit).Error
}

// ListFilters narrows the available-unit listing.
type ListFilters struct {
	QualityID *uuid.UUID
	DesignID  *uuid.UUID
	FactoryID *uuid.UUID
}

// ListResult is one page of available units.
type ListResult struct {
	Units      []models.FabricUnit
	NextCursor string
}

// ListAvailable returns available units matching the filters, newest first,
// with cursor pagination.
func (r *Repository) ListAvailable(ctx context.Context, filters ListFilters, page pagination.Params) (*ListResult, error) {
	pageSize := pagination.NormalizeLimit(page.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(page.Limit)

	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	qb := r.db.WithContext(ctx).
		Where("status = ?", enums.UnitStatusAvailable)
	if filters.QualityID != nil {
		qb = qb.Where("quality_id = ?", *filters.QualityID)
	}
	if filters.DesignID != nil {
		qb = qb.Where("design_id = ?", *filters.DesignID)
	}
	if filters.FactoryID != nil {
		qb = qb.Where("factory_id = ?", *filters.FactoryID)
	}
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.FabricUnit
	err = qb.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &ListResult{Units: rows, NextCursor: nextCursor}, nil
}

// ResyncStatuses forces the status invariant across every unit: sold when
// a dispatch note is referenced, available otherwise. Returns how many
// rows were corrected.
func (r *Repository) ResyncStatuses(ctx context.Context) (int64, error) {
	corrected := int64(0)

	res := r.db.WithContext(ctx).
		Model(&models.FabricUnit{}).
		Where("dispatch_note_id IS NULL AND status <> ?", enums.UnitStatusAvailable).
		Update("status", enums.UnitStatusAvailable)
	if res.Error != nil {
		return corrected, res.Error
	}
	corrected += res.RowsAffected

	res = r.db.WithContext(ctx).
		Model(&models.FabricUnit{}).
		Where("dispatch_note_id IS NOT NULL AND status <> ?", enums.UnitStatusSold).
		Update("status", enums.UnitStatusSold)
	if res.Error != nil {
		return corrected, res.Error
	}
	corrected += res.RowsAffected

	return corrected, nil
}
