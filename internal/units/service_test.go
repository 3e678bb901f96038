package units

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

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/pagination"
)

func setupUnitsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:units_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.FabricUnit{}))
	return db
}

func newUnitsService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "units-test", Output: io.Discard})
	service, err := NewService(NewRepository(db), logg)
	require.NoError(t, err)
	return service
}

func seedUnit(t *testing.T, db *gorm.DB, number string, qualityID, factoryID uuid.UUID, status enums.UnitStatus, noteID *uuid.UUID) *models.FabricUnit {
	t.Helper()

	unit := &models.FabricUnit{
		UnitNumber:     number,
		QualityID:      qualityID,
		FactoryID:      factoryID,
		Quantity:       decimal.RequireFromString("25"),
		Status:         status,
		DispatchNoteID: noteID,
	}
	require.NoError(t, db.Create(unit).Error)
	return unit
}

func TestListAvailableFiltersByQualityAndStatus(t *testing.T) {
	db := setupUnitsTestDB(t)
	service := newUnitsService(t, db)

	qualityA := uuid.New()
	qualityB := uuid.New()
	factory := uuid.New()
	noteID := uuid.New()

	seedUnit(t, db, "R-0001", qualityA, factory, enums.UnitStatusAvailable, nil)
	seedUnit(t, db, "R-0002", qualityA, factory, enums.UnitStatusSold, &noteID)
	seedUnit(t, db, "R-0003", qualityB, factory, enums.UnitStatusAvailable, nil)

	list, err := service.ListAvailable(context.Background(), ListFilters{QualityID: &qualityA}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Units, 1)
	assert.Equal(t, "R-0001", list.Units[0].UnitNumber)
	assert.Empty(t, list.NextCursor)
}

func TestListAvailablePaginates(t *testing.T) {
	db := setupUnitsTestDB(t)
	service := newUnitsService(t, db)

	qualityID := uuid.New()
	factoryID := uuid.New()
	for _, number := range []string{"R-0001", "R-0002", "R-0003"} {
		seedUnit(t, db, number, qualityID, factoryID, enums.UnitStatusAvailable, nil)
	}

	first, err := service.ListAvailable(context.Background(), ListFilters{}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Units, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := service.ListAvailable(context.Background(), ListFilters{}, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Units, 1)
	assert.Empty(t, second.NextCursor)
}

func TestSetStatusSoldRequiresNote(t *testing.T) {
	db := setupUnitsTestDB(t)
	service := newUnitsService(t, db)

	unit := seedUnit(t, db, "R-0001", uuid.New(), uuid.New(), enums.UnitStatusAvailable, nil)

	_, err := service.SetStatus(context.Background(), unit.ID, enums.UnitStatusSold, nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	noteID := uuid.New()
	updated, err := service.SetStatus(context.Background(), unit.ID, enums.UnitStatusSold, &noteID)
	require.NoError(t, err)
	assert.Equal(t, enums.UnitStatusSold, updated.Status)
	require.NotNil(t, updated.DispatchNoteID)
	assert.Equal(t, noteID, *updated.DispatchNoteID)
}

func TestSetStatusAvailableClearsNote(t *testing.T) {
	db := setupUnitsTestDB(t)
	service := newUnitsService(t, db)

	noteID := uuid.New()
	unit := seedUnit(t, db, "R-0001", uuid.New(), uuid.New(), enums.UnitStatusSold, &noteID)

	_, err := service.SetStatus(context.Background(), unit.ID, enums.UnitStatusAvailable, &noteID)
	require.Error(t, err)

	updated, err := service.SetStatus(context.Background(), unit.ID, enums.UnitStatusAvailable, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.UnitStatusAvailable, updated.Status)
	assert.Nil(t, updated.DispatchNoteID)
}

func TestSetStatusUnknownUnit(t *testing.T) {
	db := setupUnitsTestDB(t)
	service := newUnitsService(t, db)

	_, err := service.SetStatus(context.Background(), uuid.New(), enums.UnitStatusAvailable, nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestMarkSoldRejectsDoubleSale(t *testing.T) {
	db := setupUnitsTestDB(t)
	repo := NewRepository(db)

	previous := uuid.New()
	unit := seedUnit(t, db, "R-0001", uuid.New(), uuid.New(), enums.UnitStatusSold, &previous)

	err := repo.MarkSold(context.Background(), []uuid.UUID{unit.ID}, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestResyncStatuses(t *testing.T) {
	db := setupUnitsTestDB(t)
	repo := NewRepository(db)

	noteID := uuid.New()
	drifted := seedUnit(t, db, "R-0001", uuid.New(), uuid.New(), enums.UnitStatusAvailable, &noteID)
	orphan := seedUnit(t, db, "R-0002", uuid.New(), uuid.New(), enums.UnitStatusSold, nil)
	fine := seedUnit(t, db, "R-0003", uuid.New(), uuid.New(), enums.UnitStatusAvailable, nil)

	corrected, err := repo.ResyncStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), corrected)

	var reloaded models.FabricUnit
	require.NoError(t, db.First(&reloaded, "id = ?", drifted.ID).Error)
	assert.Equal(t, enums.UnitStatusSold, reloaded.Status)
	require.NoError(t, db.First(&reloaded, "id = ?", orphan.ID).Error)
	assert.Equal(t, enums.UnitStatusAvailable, reloaded.Status)
	require.NoError(t, db.First(&reloaded, "id = ?", fine.ID).Error)
	assert.Equal(t, enums.UnitStatusAvailable, reloaded.Status)
}
