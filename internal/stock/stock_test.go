package stock

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

	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/masterdata"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	))
	return db
}

func newStockFixtures(t *testing.T, db *gorm.DB) (*Validator, *Allocator) {
	t.Helper()

	inventoryRepo := inventory.NewRepository(db)
	unitRepo := units.NewRepository(db)
	movementRepo := inventory.NewMovementRepository(db)
	masterdataRepo := masterdata.NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "stock-test", Output: io.Discard})

	validator, err := NewValidator(inventoryRepo, unitRepo, masterdataRepo)
	require.NoError(t, err)
	allocator, err := NewAllocator(inventoryRepo, unitRepo, movementRepo, logg)
	require.NoError(t, err)
	return validator, allocator
}

func newQuality(t *testing.T, db *gorm.DB, name string) *models.Quality {
	t.Helper()

	quality := &models.Quality{Name: name}
	require.NoError(t, db.Create(quality).Error)
	return quality
}

func newFactory(t *testing.T, db *gorm.DB, name string) *models.Factory {
	t.Helper()

	factory := &models.Factory{Name: name}
	require.NoError(t, db.Create(factory).Error)
	return factory
}

func newBulkRecord(t *testing.T, db *gorm.DB, qualityID, factoryID uuid.UUID, bulk string, unitCount int) *models.InventoryRecord {
	t.Helper()

	record := &models.InventoryRecord{
		ItemClass:         enums.ItemClassBulk,
		QualityID:         qualityID,
		FactoryID:         factoryID,
		ProducedBulkQty:   decimal.RequireFromString(bulk),
		ProducedUnitCount: unitCount,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func newCountRecord(t *testing.T, db *gorm.DB, qualityID, factoryID, colorGroupID uuid.UUID, pieces int) *models.InventoryRecord {
	t.Helper()

	record := &models.InventoryRecord{
		ItemClass:        enums.ItemClassCount,
		QualityID:        qualityID,
		FactoryID:        factoryID,
		ColorGroupID:     &colorGroupID,
		ProducedPieceQty: pieces,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func reloadRecord(t *testing.T, db *gorm.DB, id uuid.UUID) *models.InventoryRecord {
	t.Helper()

	var record models.InventoryRecord
	require.NoError(t, db.First(&record, "id = ?", id).Error)
	return &record
}

func TestValidatorSufficientBulk(t *testing.T) {
	db := setupStockTestDB(t)
	validator, _ := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "100", 0)
	newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit B").ID, "40", 0)

	result, err := validator.Validate(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.RequireFromString("120"),
	}})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.InsufficientItems)
}

func TestValidatorReportsBulkShortage(t *testing.T) {
	db := setupStockTestDB(t)
	validator, _ := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "100", 0)
	newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit B").ID, "40", 0)

	result, err := validator.Validate(context.Background(), []LineItem{{
		LineIndex: 0,
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.RequireFromString("150"),
	}})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.InsufficientItems, 1)

	shortage := result.InsufficientItems[0]
	assert.Equal(t, "Q-60 Lawn", shortage.QualityName)
	assert.Equal(t, "150", shortage.Required.String())
	assert.Equal(t, "140", shortage.Available.String())
	assert.Equal(t, "10", shortage.Deficit.String())
}

func TestValidatorUsesUnitSumAsRequired(t *testing.T) {
	db := setupStockTestDB(t)
	validator, _ := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-80 Cambric")
	factory := newFactory(t, db, "Unit A")
	newBulkRecord(t, db, quality.ID, factory.ID, "50", 2)

	unitA := &models.FabricUnit{
		UnitNumber: "R-0001",
		QualityID:  quality.ID,
		FactoryID:  factory.ID,
		Quantity:   decimal.RequireFromString("30"),
		Status:     enums.UnitStatusAvailable,
	}
	unitB := &models.FabricUnit{
		UnitNumber: "R-0002",
		QualityID:  quality.ID,
		FactoryID:  factory.ID,
		Quantity:   decimal.RequireFromString("35"),
		Status:     enums.UnitStatusAvailable,
	}
	require.NoError(t, db.Create(unitA).Error)
	require.NoError(t, db.Create(unitB).Error)

	result, err := validator.Validate(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		UnitIDs:   []uuid.UUID{unitA.ID, unitB.ID},
	}})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.InsufficientItems, 1)
	assert.Equal(t, "65", result.InsufficientItems[0].Required.String())
	assert.Equal(t, "15", result.InsufficientItems[0].Deficit.String())
}

func TestValidatorReportsCountShortagePerColorGroup(t *testing.T) {
	db := setupStockTestDB(t)
	validator, _ := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-3pc Suit")
	factory := newFactory(t, db, "Unit A")
	groupA := &models.ColorGroup{Name: "Pastel"}
	groupB := &models.ColorGroup{Name: "Dark"}
	require.NoError(t, db.Create(groupA).Error)
	require.NoError(t, db.Create(groupB).Error)

	newCountRecord(t, db, quality.ID, factory.ID, groupA.ID, 12)
	newCountRecord(t, db, quality.ID, factory.ID, groupB.ID, 3)

	result, err := validator.Validate(context.Background(), []LineItem{{
		LineIndex: 0,
		ItemClass: enums.ItemClassCount,
		QualityID: quality.ID,
		Pieces: []PieceRequest{
			{ColorGroupID: groupA.ID, PieceQty: 10},
			{ColorGroupID: groupB.ID, PieceQty: 5},
		},
	}})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.InsufficientItems, 1)
	assert.Equal(t, "Dark", result.InsufficientItems[0].ColorGroupName)
	assert.Equal(t, "2", result.InsufficientItems[0].Deficit.String())
}

func TestAllocatorDrainsLargestRecordFirst(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	big := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "50", 0)
	mid := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit B").ID, "30", 0)
	small := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit C").ID, "10", 0)

	result, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.RequireFromString("40"),
	}}, uuid.New())
	require.NoError(t, err)
	assert.NoError(t, result.Shortfall)

	assert.Equal(t, "10", reloadRecord(t, db, big.ID).ProducedBulkQty.String())
	assert.Equal(t, "30", reloadRecord(t, db, mid.ID).ProducedBulkQty.String())
	assert.Equal(t, "10", reloadRecord(t, db, small.ID).ProducedBulkQty.String())
}

func TestAllocatorSpillsIntoNextRecord(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	big := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "100", 0)
	small := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit B").ID, "40", 0)

	result, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.RequireFromString("120"),
	}}, uuid.New())
	require.NoError(t, err)
	assert.NoError(t, result.Shortfall)

	assert.Equal(t, "0", reloadRecord(t, db, big.ID).ProducedBulkQty.String())
	assert.Equal(t, "20", reloadRecord(t, db, small.ID).ProducedBulkQty.String())
}

func TestAllocatorClampsAndReportsShortfall(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	record := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "80", 0)

	result, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.RequireFromString("100"),
	}}, uuid.New())
	require.NoError(t, err)
	require.Error(t, result.Shortfall)
	assert.Contains(t, result.Shortfall.Error(), "short 20")

	reloaded := reloadRecord(t, db, record.ID)
	assert.Equal(t, "0", reloaded.ProducedBulkQty.String())
	assert.False(t, reloaded.ProducedBulkQty.IsNegative())
}

func TestAllocatorMarksSelectedUnitsSold(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-80 Cambric")
	factory := newFactory(t, db, "Unit A")
	record := newBulkRecord(t, db, quality.ID, factory.ID, "100", 4)

	var unitIDs []uuid.UUID
	for _, spec := range []struct {
		number string
		qty    string
	}{{"R-0001", "25"}, {"R-0002", "25"}} {
		unit := &models.FabricUnit{
			UnitNumber: spec.number,
			QualityID:  quality.ID,
			FactoryID:  factory.ID,
			Quantity:   decimal.RequireFromString(spec.qty),
			Status:     enums.UnitStatusAvailable,
		}
		require.NoError(t, db.Create(unit).Error)
		unitIDs = append(unitIDs, unit.ID)
	}

	noteID := uuid.New()
	result, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		UnitIDs:   unitIDs,
	}}, noteID)
	require.NoError(t, err)
	assert.NoError(t, result.Shortfall)

	reloaded := reloadRecord(t, db, record.ID)
	assert.Equal(t, "50", reloaded.ProducedBulkQty.String())
	assert.Equal(t, 2, reloaded.ProducedUnitCount)

	var sold []models.FabricUnit
	require.NoError(t, db.Where("id IN ?", unitIDs).Find(&sold).Error)
	for _, unit := range sold {
		assert.Equal(t, enums.UnitStatusSold, unit.Status)
		require.NotNil(t, unit.DispatchNoteID)
		assert.Equal(t, noteID, *unit.DispatchNoteID)
	}
}

func TestAllocatorRefusesAlreadySoldUnits(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-80 Cambric")
	factory := newFactory(t, db, "Unit A")
	newBulkRecord(t, db, quality.ID, factory.ID, "100", 1)

	previousNote := uuid.New()
	unit := &models.FabricUnit{
		UnitNumber:     "R-0001",
		QualityID:      quality.ID,
		FactoryID:      factory.ID,
		Quantity:       decimal.RequireFromString("25"),
		Status:         enums.UnitStatusSold,
		DispatchNoteID: &previousNote,
	}
	require.NoError(t, db.Create(unit).Error)

	_, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		UnitIDs:   []uuid.UUID{unit.ID},
	}}, uuid.New())
	require.Error(t, err)
}

func TestAllocatorDeductsPiecesPerColorGroup(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-3pc Suit")
	group := &models.ColorGroup{Name: "Pastel"}
	require.NoError(t, db.Create(group).Error)

	big := newCountRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, group.ID, 20)
	small := newCountRecord(t, db, quality.ID, newFactory(t, db, "Unit B").ID, group.ID, 8)

	result, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassCount,
		QualityID: quality.ID,
		Pieces:    []PieceRequest{{ColorGroupID: group.ID, PieceQty: 24}},
	}}, uuid.New())
	require.NoError(t, err)
	assert.NoError(t, result.Shortfall)

	assert.Equal(t, 0, reloadRecord(t, db, big.ID).ProducedPieceQty)
	assert.Equal(t, 4, reloadRecord(t, db, small.ID).ProducedPieceQty)
}

func TestAllocatorSkipsZeroQuantityLines(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	record := newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "100", 0)

	result, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.Zero,
	}}, uuid.New())
	require.NoError(t, err)
	assert.NoError(t, result.Shortfall)
	assert.Equal(t, "100", reloadRecord(t, db, record.ID).ProducedBulkQty.String())
}

func TestAllocatorWritesDispatchMovements(t *testing.T) {
	db := setupStockTestDB(t)
	_, allocator := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-60 Lawn")
	newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit A").ID, "100", 0)
	newBulkRecord(t, db, quality.ID, newFactory(t, db, "Unit B").ID, "40", 0)

	noteID := uuid.New()
	_, err := allocator.Deduct(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		BulkQty:   decimal.RequireFromString("120"),
	}}, noteID)
	require.NoError(t, err)

	movements, err := inventory.NewMovementRepository(db).ListByDoc(context.Background(), enums.MovementTypeDispatch, noteID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	total := decimal.Zero
	for _, movement := range movements {
		total = total.Add(movement.BulkDelta)
	}
	assert.Equal(t, "-120", total.String())
}

func TestValidatorRejectsSoldUnitsByName(t *testing.T) {
	db := setupStockTestDB(t)
	validator, _ := newStockFixtures(t, db)

	quality := newQuality(t, db, "Q-80 Cambric")
	factory := newFactory(t, db, "Unit A")
	newBulkRecord(t, db, quality.ID, factory.ID, "100", 2)

	noteID := uuid.New()
	sold := &models.FabricUnit{
		UnitNumber:     "R-0042",
		QualityID:      quality.ID,
		FactoryID:      factory.ID,
		Quantity:       decimal.RequireFromString("30"),
		Status:         enums.UnitStatusSold,
		DispatchNoteID: &noteID,
	}
	available := &models.FabricUnit{
		UnitNumber: "R-0043",
		QualityID:  quality.ID,
		FactoryID:  factory.ID,
		Quantity:   decimal.RequireFromString("20"),
		Status:     enums.UnitStatusAvailable,
	}
	require.NoError(t, db.Create(sold).Error)
	require.NoError(t, db.Create(available).Error)

	_, err := validator.Validate(context.Background(), []LineItem{{
		ItemClass: enums.ItemClassBulk,
		QualityID: quality.ID,
		UnitIDs:   []uuid.UUID{sold.ID, available.ID},
	}})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Message(), "R-0042")
	assert.NotContains(t, typed.Message(), "R-0043")
}
