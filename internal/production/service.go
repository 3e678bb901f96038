package production

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records stock entering a factory: the immutable event, the
// physical units it created, and the incremental bump to the inventory
// counters.
type Service struct {
	runner    TxRunner
	repo      *Repository
	inventory *inventory.Repository
	units     *units.Repository
	movements *inventory.MovementRepository
	logg      *logger.Logger
}

func NewService(
	runner TxRunner,
	repo *Repository,
	inventoryRepo *inventory.Repository,
	unitRepo *units.Repository,
	movementRepo *inventory.MovementRepository,
	logg *logger.Logger,
) (*Service, error) {
	if runner == nil || repo == nil || inventoryRepo == nil || unitRepo == nil || movementRepo == nil || logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "production service requires all collaborators")
	}
	return &Service{
		runner:    runner,
		repo:      repo,
		inventory: inventoryRepo,
		units:     unitRepo,
		movements: movementRepo,
		logg:      logg,
	}, nil
}

// UnitInput is one physical roll created by a bulk production.
type UnitInput struct {
	UnitNumber string
	Quantity   decimal.Decimal
}

// PieceInput is one color-group slice of a count-measured production.
type PieceInput struct {
	ColorGroupID uuid.UUID
	SubCut       *string
	PieceQty     int
}

// RecordInput is one production intake request. Bulk intakes either state
// BulkQty directly or list the units, in which case the quantity is their
// sum.
type RecordInput struct {
	ItemClass enums.ItemClass
	QualityID uuid.UUID
	DesignID  *uuid.UUID
	FactoryID uuid.UUID

	BulkQty decimal.Decimal
	Units   []UnitInput
	Pieces  []PieceInput
}

// Record persists the event and applies it to the inventory counters in
// one transaction. The partition's record is created lazily on first
// sight.
func (s *Service) Record(ctx context.Context, input RecordInput) (*models.ProductionEvent, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithQualityID(ctx, input.QualityID.String())

	var event *models.ProductionEvent
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		switch input.ItemClass {
		case enums.ItemClassBulk:
			created, err := s.recordBulk(ctx, tx, input)
			if err != nil {
				return err
			}
			event = created
		case enums.ItemClassCount:
			created, err := s.recordCount(ctx, tx, input)
			if err != nil {
				return err
			}
			event = created
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown item class "+string(input.ItemClass))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, fmt.Sprintf("production event %s recorded", event.ID))
	return event, nil
}

func (s *Service) recordBulk(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.ProductionEvent, error) {
	bulkQty := input.BulkQty
	if len(input.Units) > 0 {
		bulkQty = decimal.Zero
		for _, unit := range input.Units {
			bulkQty = bulkQty.Add(unit.Quantity)
		}
	}

	event := &models.ProductionEvent{
		ItemClass: enums.ItemClassBulk,
		QualityID: input.QualityID,
		DesignID:  input.DesignID,
		FactoryID: input.FactoryID,
		BulkQty:   bulkQty,
		UnitCount: len(input.Units),
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}

	rows := make([]models.FabricUnit, 0, len(input.Units))
	for _, unit := range input.Units {
		rows = append(rows, models.FabricUnit{
			UnitNumber:        unit.UnitNumber,
			QualityID:         input.QualityID,
			DesignID:          input.DesignID,
			FactoryID:         input.FactoryID,
			Quantity:          unit.Quantity,
			Status:            enums.UnitStatusAvailable,
			ProductionEventID: &event.ID,
		})
	}
	if err := s.units.WithTx(tx).CreateBatch(ctx, rows); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create fabric units")
	}

	partition := inventory.Partition{
		ItemClass: enums.ItemClassBulk,
		QualityID: input.QualityID,
		DesignID:  input.DesignID,
		FactoryID: input.FactoryID,
	}
	inventoryRepo := s.inventory.WithTx(tx)
	record, err := inventoryRepo.FindOrCreate(ctx, partition)
	if err != nil {
		return nil, err
	}
	record.ProducedBulkQty = record.ProducedBulkQty.Add(bulkQty)
	record.ProducedUnitCount += len(input.Units)
	if err := inventoryRepo.Save(ctx, record); err != nil {
		return nil, err
	}

	movement := models.StockMovement{
		ItemClass: enums.ItemClassBulk,
		QualityID: input.QualityID,
		DesignID:  input.DesignID,
		FactoryID: input.FactoryID,
		BulkDelta: bulkQty,
		UnitDelta: len(input.Units),
		DocType:   enums.MovementTypeProduction,
		DocID:     event.ID,
	}
	if err := s.movements.WithTx(tx).Append(ctx, []models.StockMovement{movement}); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) recordCount(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.ProductionEvent, error) {
	event := &models.ProductionEvent{
		ItemClass: enums.ItemClassCount,
		QualityID: input.QualityID,
		DesignID:  input.DesignID,
		FactoryID: input.FactoryID,
	}
	for _, piece := range input.Pieces {
		event.Pieces = append(event.Pieces, models.ProductionPiece{
			ColorGroupID: piece.ColorGroupID,
			SubCut:       piece.SubCut,
			PieceQty:     piece.PieceQty,
		})
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}

	inventoryRepo := s.inventory.WithTx(tx)
	var movements []models.StockMovement
	for _, piece := range input.Pieces {
		colorGroupID := piece.ColorGroupID
		partition := inventory.Partition{
			ItemClass:    enums.ItemClassCount,
			QualityID:    input.QualityID,
			DesignID:     input.DesignID,
			FactoryID:    input.FactoryID,
			ColorGroupID: &colorGroupID,
			SubCut:       piece.SubCut,
		}
		record, err := inventoryRepo.FindOrCreate(ctx, partition)
		if err != nil {
			return nil, err
		}
		record.ProducedPieceQty += piece.PieceQty
		if err := inventoryRepo.Save(ctx, record); err != nil {
			return nil, err
		}

		movements = append(movements, models.StockMovement{
			ItemClass:    enums.ItemClassCount,
			QualityID:    input.QualityID,
			DesignID:     input.DesignID,
			FactoryID:    input.FactoryID,
			ColorGroupID: &colorGroupID,
			SubCut:       piece.SubCut,
			PieceDelta:   piece.PieceQty,
			DocType:      enums.MovementTypeProduction,
			DocID:        event.ID,
		})
	}
	if err := s.movements.WithTx(tx).Append(ctx, movements); err != nil {
		return nil, err
	}
	return event, nil
}

func validateInput(input RecordInput) error {
	switch input.ItemClass {
	case enums.ItemClassBulk:
		if !input.BulkQty.IsPositive() && len(input.Units) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "bulk production requires a quantity or units")
		}
		for _, unit := range input.Units {
			if unit.UnitNumber == "" || !unit.Quantity.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeValidation, "every unit needs a number and a positive quantity")
			}
		}
	case enums.ItemClassCount:
		if len(input.Pieces) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "count production requires piece rows")
		}
		for _, piece := range input.Pieces {
			if piece.PieceQty <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "piece quantities must be positive")
			}
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown item class "+string(input.ItemClass))
	}
	return nil
}
