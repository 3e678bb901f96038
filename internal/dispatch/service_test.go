package dispatch

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/masterdata"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/stock"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

type gormRunner struct {
	db *gorm.DB
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupDispatchTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:dispatch_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		&models.Order{},
		&models.OrderLineItem{},
		&models.OrderPiece{},
		&models.DispatchNote{},
		&models.DispatchLineItem{},
		&models.DispatchPiece{},
	))
	return db
}

func newDispatchService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return newDispatchServiceWithRunner(t, db, gormRunner{db: db})
}

func newDispatchServiceWithRunner(t *testing.T, db *gorm.DB, runner TxRunner) *Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "dispatch-test", Output: io.Discard})
	inventoryRepo := inventory.NewRepository(db)
	unitRepo := units.NewRepository(db)
	movementRepo := inventory.NewMovementRepository(db)
	masterdataRepo := masterdata.NewRepository(db)
	orderRepo := orders.NewRepository(db)

	validator, err := stock.NewValidator(inventoryRepo, unitRepo, masterdataRepo)
	require.NoError(t, err)
	allocator, err := stock.NewAllocator(inventoryRepo, unitRepo, movementRepo, logg)
	require.NoError(t, err)
	tracker, err := orders.NewTracker(orderRepo, logg)
	require.NoError(t, err)

	service, err := NewService(runner, NewRepository(db), orderRepo, validator, allocator, tracker, logg)
	require.NoError(t, err)
	return service
}

func seedBulkWorld(t *testing.T, db *gorm.DB) (qualityID uuid.UUID, orderID uuid.UUID, recordIDs []uuid.UUID) {
	t.Helper()

	quality := &models.Quality{Name: "Q-60 Lawn"}
	require.NoError(t, db.Create(quality).Error)

	for _, spec := range []struct {
		factory string
		qty     string
	}{{"Unit A", "100"}, {"Unit B", "40"}} {
		factory := &models.Factory{Name: spec.factory}
		require.NoError(t, db.Create(factory).Error)
		record := &models.InventoryRecord{
			ItemClass:       enums.ItemClassBulk,
			QualityID:       quality.ID,
			FactoryID:       factory.ID,
			ProducedBulkQty: decimal.RequireFromString(spec.qty),
		}
		require.NoError(t, db.Create(record).Error)
		recordIDs = append(recordIDs, record.ID)
	}

	order := &models.Order{
		OrderNumber: "SO-2001",
		Status:      enums.OrderStatusOpen,
		LineItems: []models.OrderLineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: quality.ID,
			Quantity:  decimal.RequireFromString("120"),
		}},
	}
	require.NoError(t, db.Create(order).Error)
	return quality.ID, order.ID, recordIDs
}

func TestCreateDispatchHappyPath(t *testing.T) {
	db := setupDispatchTestDB(t)
	service := newDispatchService(t, db)
	qualityID, orderID, recordIDs := seedBulkWorld(t, db)

	note, err := service.Create(context.Background(), CreateInput{
		OrderID: orderID,
		Items: []stock.LineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("120"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "DN-000001", note.NoteNumber)
	require.Len(t, note.LineItems, 1)

	var records []models.InventoryRecord
	require.NoError(t, db.Where("id IN ?", recordIDs).Order("produced_bulk_qty ASC").Find(&records).Error)
	assert.Equal(t, "0", records[0].ProducedBulkQty.String())
	assert.Equal(t, "20", records[1].ProducedBulkQty.String())

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", orderID).Error)
	assert.Equal(t, enums.DispatchStatusCompleted, order.DispatchStatus)
}

func TestCreateDispatchInsufficientStockRollsBack(t *testing.T) {
	db := setupDispatchTestDB(t)
	service := newDispatchService(t, db)
	qualityID, orderID, recordIDs := seedBulkWorld(t, db)

	_, err := service.Create(context.Background(), CreateInput{
		OrderID: orderID,
		Items: []stock.LineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("150"),
		}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	// Nothing committed: counters intact, no note rows.
	var records []models.InventoryRecord
	require.NoError(t, db.Where("id IN ?", recordIDs).Order("produced_bulk_qty ASC").Find(&records).Error)
	assert.Equal(t, "40", records[0].ProducedBulkQty.String())
	assert.Equal(t, "100", records[1].ProducedBulkQty.String())

	var count int64
	require.NoError(t, db.Model(&models.DispatchNote{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateDispatchRejectsTerminalOrder(t *testing.T) {
	db := setupDispatchTestDB(t)
	service := newDispatchService(t, db)
	qualityID, orderID, _ := seedBulkWorld(t, db)

	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", enums.OrderStatusCancelled).
		Error)

	_, err := service.Create(context.Background(), CreateInput{
		OrderID: orderID,
		Items: []stock.LineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("10"),
		}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCreateDispatchResolvesUnitBackedQuantity(t *testing.T) {
	db := setupDispatchTestDB(t)
	service := newDispatchService(t, db)
	qualityID, orderID, _ := seedBulkWorld(t, db)

	var factory models.Factory
	require.NoError(t, db.First(&factory, "name = ?", "Unit A").Error)

	unit := &models.FabricUnit{
		UnitNumber: "R-0001",
		QualityID:  qualityID,
		FactoryID:  factory.ID,
		Quantity:   decimal.RequireFromString("35"),
		Status:     enums.UnitStatusAvailable,
	}
	require.NoError(t, db.Create(unit).Error)

	note, err := service.Create(context.Background(), CreateInput{
		OrderID: orderID,
		Items: []stock.LineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			UnitIDs:   []uuid.UUID{unit.ID},
		}},
	})
	require.NoError(t, err)
	require.Len(t, note.LineItems, 1)
	assert.Equal(t, "35", note.LineItems[0].BulkQty.String())
	assert.Equal(t, 1, note.LineItems[0].UnitCount)

	var reloaded models.FabricUnit
	require.NoError(t, db.First(&reloaded, "id = ?", unit.ID).Error)
	assert.Equal(t, enums.UnitStatusSold, reloaded.Status)
	require.NotNil(t, reloaded.DispatchNoteID)
	assert.Equal(t, note.ID, *reloaded.DispatchNoteID)
}

func TestCreateDispatchRequiresLineItems(t *testing.T) {
	db := setupDispatchTestDB(t)
	service := newDispatchService(t, db)

	_, err := service.Create(context.Background(), CreateInput{OrderID: uuid.New()})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

// contestedRunner loses its first transactions to a note-number collision
// before handing over to the real database.
type contestedRunner struct {
	db        *gorm.DB
	conflicts int
}

func (r *contestedRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.conflicts > 0 {
		r.conflicts--
		return pkgerrors.Wrap(pkgerrors.CodeConflict,
			errors.New("UNIQUE constraint failed: dispatch_notes.note_number"),
			"dispatch note number already taken")
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

func TestNextNoteNumberSkipsGaps(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)

	number, err := repo.NextNoteNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DN-000001", number)

	for _, n := range []string{"DN-000001", "DN-000003"} {
		require.NoError(t, db.Create(&models.DispatchNote{NoteNumber: n, OrderID: uuid.New()}).Error)
	}

	number, err = repo.NextNoteNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DN-000004", number)
}

func TestCreateDispatchRetriesLostNoteNumberRace(t *testing.T) {
	db := setupDispatchTestDB(t)
	qualityID, orderID, _ := seedBulkWorld(t, db)
	service := newDispatchServiceWithRunner(t, db, &contestedRunner{db: db, conflicts: 1})

	note, err := service.Create(context.Background(), CreateInput{
		OrderID: orderID,
		Items: []stock.LineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("50"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "DN-000001", note.NoteNumber)
}

func TestCreateDispatchGivesUpAfterRepeatedNumberRaces(t *testing.T) {
	db := setupDispatchTestDB(t)
	qualityID, orderID, _ := seedBulkWorld(t, db)
	service := newDispatchServiceWithRunner(t, db, &contestedRunner{db: db, conflicts: createAttempts})

	_, err := service.Create(context.Background(), CreateInput{
		OrderID: orderID,
		Items: []stock.LineItem{{
			LineIndex: 0,
			ItemClass: enums.ItemClassBulk,
			QualityID: qualityID,
			BulkQty:   decimal.RequireFromString("50"),
		}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}
