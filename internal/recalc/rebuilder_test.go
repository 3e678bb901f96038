package recalc

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/dispatch"
	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/production"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

type gormRunner struct {
	db *gorm.DB
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupRecalcTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:recalc_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Quality{},
		&models.Design{},
		&models.ColorGroup{},
		&models.Factory{},
		&models.InventoryRecord{},
		&models.FabricUnit{},
		&models.StockMovement{},
		&models.ProductionEvent{},
		&models.ProductionPiece{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OrderPiece{},
		&models.DispatchNote{},
		&models.DispatchLineItem{},
		&models.DispatchPiece{},
	))
	return db
}

func newRebuilder(t *testing.T, db *gorm.DB) *Rebuilder {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "recalc-test", Output: io.Discard})
	rebuilder, err := NewRebuilder(
		gormRunner{db: db},
		inventory.NewRepository(db),
		production.NewRepository(db),
		dispatch.NewRepository(db),
		orders.NewRepository(db),
		units.NewRepository(db),
		logg,
	)
	require.NoError(t, err)
	return rebuilder
}

func seedBulkRecord(t *testing.T, db *gorm.DB, qualityID, factoryID uuid.UUID, bulk string, reserved string) *models.InventoryRecord {
	t.Helper()

	record := &models.InventoryRecord{
		ItemClass:       enums.ItemClassBulk,
		QualityID:       qualityID,
		FactoryID:       factoryID,
		ProducedBulkQty: decimal.RequireFromString(bulk),
		ReservedBulkQty: decimal.RequireFromString(reserved),
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func seedProduction(t *testing.T, db *gorm.DB, qualityID, factoryID uuid.UUID, bulk string, unitCount int) {
	t.Helper()

	event := &models.ProductionEvent{
		ItemClass: enums.ItemClassBulk,
		QualityID: qualityID,
		FactoryID: factoryID,
		BulkQty:   decimal.RequireFromString(bulk),
		UnitCount: unitCount,
	}
	require.NoError(t, db.Create(event).Error)
}

func TestRecalculateCorrectsDriftedCounters(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryA := uuid.New()
	factoryB := uuid.New()

	// Stored counters are garbage; the source documents say 100 and 40.
	recordA := seedBulkRecord(t, db, qualityID, factoryA, "999", "77")
	recordB := seedBulkRecord(t, db, qualityID, factoryB, "1", "0")
	seedProduction(t, db, qualityID, factoryA, "100", 0)
	seedProduction(t, db, qualityID, factoryB, "40", 0)

	result, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.UpdatedCount)

	var reloaded models.InventoryRecord
	require.NoError(t, db.First(&reloaded, "id = ?", recordA.ID).Error)
	assert.Equal(t, "100", reloaded.ProducedBulkQty.String())
	assert.True(t, reloaded.ReservedBulkQty.IsZero())

	require.NoError(t, db.First(&reloaded, "id = ?", recordB.ID).Error)
	assert.Equal(t, "40", reloaded.ProducedBulkQty.String())
}

func TestRecalculateIsIdempotent(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryA := uuid.New()
	factoryB := uuid.New()

	seedBulkRecord(t, db, qualityID, factoryA, "0", "0")
	seedBulkRecord(t, db, qualityID, factoryB, "0", "0")
	seedProduction(t, db, qualityID, factoryA, "100", 0)
	seedProduction(t, db, qualityID, factoryB, "40", 0)

	note := &models.DispatchNote{
		NoteNumber: "DN-000001",
		OrderID:    uuid.New(),
		LineItems: []models.DispatchLineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("120"),
		}},
	}
	require.NoError(t, db.Create(note).Error)

	first, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Positive(t, first.UpdatedCount)

	second, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.UpdatedCount)
	assert.Zero(t, second.UnitsCorrected)
}

func TestRecalculateReplaysDispatchLargestFirst(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryA := uuid.New()
	factoryB := uuid.New()

	recordA := seedBulkRecord(t, db, qualityID, factoryA, "0", "0")
	recordB := seedBulkRecord(t, db, qualityID, factoryB, "0", "0")
	seedProduction(t, db, qualityID, factoryA, "100", 0)
	seedProduction(t, db, qualityID, factoryB, "40", 0)

	note := &models.DispatchNote{
		NoteNumber: "DN-000001",
		OrderID:    uuid.New(),
		LineItems: []models.DispatchLineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("120"),
		}},
	}
	require.NoError(t, db.Create(note).Error)

	_, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)

	var reloaded models.InventoryRecord
	require.NoError(t, db.First(&reloaded, "id = ?", recordA.ID).Error)
	assert.True(t, reloaded.ProducedBulkQty.IsZero())
	require.NoError(t, db.First(&reloaded, "id = ?", recordB.ID).Error)
	assert.Equal(t, "20", reloaded.ProducedBulkQty.String())
}

func TestRecalculateReservesPendingIntoBestSlackRecord(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryA := uuid.New()
	factoryB := uuid.New()

	recordA := seedBulkRecord(t, db, qualityID, factoryA, "0", "0")
	recordB := seedBulkRecord(t, db, qualityID, factoryB, "0", "0")
	seedProduction(t, db, qualityID, factoryA, "30", 0)
	seedProduction(t, db, qualityID, factoryB, "80", 0)

	order := &models.Order{
		OrderNumber: "SO-3001",
		Status:      enums.OrderStatusOpen,
		LineItems: []models.OrderLineItem{{
			LineIndex:     0,
			ItemClass:     enums.ItemClassBulk,
			QualityID:     qualityID,
			Quantity:      decimal.RequireFromString("50"),
			DispatchedQty: decimal.RequireFromString("20"),
		}},
	}
	require.NoError(t, db.Create(order).Error)

	_, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)

	var reloaded models.InventoryRecord
	require.NoError(t, db.First(&reloaded, "id = ?", recordB.ID).Error)
	assert.Equal(t, "30", reloaded.ReservedBulkQty.String())
	require.NoError(t, db.First(&reloaded, "id = ?", recordA.ID).Error)
	assert.True(t, reloaded.ReservedBulkQty.IsZero())
}

func TestRecalculateSkipsProductionsWithoutRecord(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	// Production for a partition nobody registered: no record is invented.
	seedProduction(t, db, uuid.New(), uuid.New(), "100", 0)

	result, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.UpdatedCount)

	var count int64
	require.NoError(t, db.Model(&models.InventoryRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecalculateForcesReservedUnitCountToZero(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryID := uuid.New()
	record := seedBulkRecord(t, db, qualityID, factoryID, "0", "0")
	require.NoError(t, db.Model(&models.InventoryRecord{}).
		Where("id = ?", record.ID).
		Update("reserved_unit_count", 7).
		Error)
	seedProduction(t, db, qualityID, factoryID, "10", 2)

	_, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)

	var reloaded models.InventoryRecord
	require.NoError(t, db.First(&reloaded, "id = ?", record.ID).Error)
	assert.Zero(t, reloaded.ReservedUnitCount)
	assert.Equal(t, 2, reloaded.ProducedUnitCount)
}

func TestRecalculateResynchronizesUnitStatuses(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryID := uuid.New()
	noteID := uuid.New()

	drifted := &models.FabricUnit{
		UnitNumber:     "R-0001",
		QualityID:      qualityID,
		FactoryID:      factoryID,
		Quantity:       decimal.RequireFromString("25"),
		Status:         enums.UnitStatusAvailable,
		DispatchNoteID: &noteID,
	}
	orphaned := &models.FabricUnit{
		UnitNumber: "R-0002",
		QualityID:  qualityID,
		FactoryID:  factoryID,
		Quantity:   decimal.RequireFromString("25"),
		Status:     enums.UnitStatusSold,
	}
	require.NoError(t, db.Create(drifted).Error)
	require.NoError(t, db.Create(orphaned).Error)

	result, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.UnitsCorrected)

	var reloaded models.FabricUnit
	require.NoError(t, db.First(&reloaded, "id = ?", drifted.ID).Error)
	assert.Equal(t, enums.UnitStatusSold, reloaded.Status)
	require.NoError(t, db.First(&reloaded, "id = ?", orphaned.ID).Error)
	assert.Equal(t, enums.UnitStatusAvailable, reloaded.Status)
}

func TestRecalculatePrunesOrphanedRecords(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryA := uuid.New()
	factoryB := uuid.New()

	kept := seedBulkRecord(t, db, qualityID, factoryA, "0", "0")
	orphan := seedBulkRecord(t, db, qualityID, factoryB, "0", "0")
	seedProduction(t, db, qualityID, factoryA, "10", 0)

	result, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PrunedCount)

	var count int64
	require.NoError(t, db.Model(&models.InventoryRecord{}).Where("id = ?", orphan.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.InventoryRecord{}).Where("id = ?", kept.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecalculateCountPieces(t *testing.T) {
	db := setupRecalcTestDB(t)
	rebuilder := newRebuilder(t, db)

	qualityID := uuid.New()
	factoryID := uuid.New()
	groupID := uuid.New()

	record := &models.InventoryRecord{
		ItemClass:    enums.ItemClassCount,
		QualityID:    qualityID,
		FactoryID:    factoryID,
		ColorGroupID: &groupID,
	}
	require.NoError(t, db.Create(record).Error)

	event := &models.ProductionEvent{
		ItemClass: enums.ItemClassCount,
		QualityID: qualityID,
		FactoryID: factoryID,
		Pieces: []models.ProductionPiece{{
			ColorGroupID: groupID,
			PieceQty:     12,
		}},
	}
	require.NoError(t, db.Create(event).Error)

	note := &models.DispatchNote{
		NoteNumber: "DN-000002",
		OrderID:    uuid.New(),
		LineItems: []models.DispatchLineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassCount,
			QualityID: qualityID,
			Pieces: []models.DispatchPiece{{
				ColorGroupID: groupID,
				PieceQty:     5,
			}},
		}},
	}
	require.NoError(t, db.Create(note).Error)

	_, err := rebuilder.Recalculate(context.Background())
	require.NoError(t, err)

	var reloaded models.InventoryRecord
	require.NoError(t, db.First(&reloaded, "id = ?", record.ID).Error)
	assert.Equal(t, 7, reloaded.ProducedPieceQty)
}
