package stock

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

// Allocator deducts dispatched quantities from inventory records using a
// largest-stock-first walk: the fullest partition is drained before the
// next one, which keeps stock concentrated and avoids fragmentation.
type Allocator struct {
	inventory *inventory.Repository
	units     *units.Repository
	movements *inventory.MovementRepository
	logg      *logger.Logger
}

func NewAllocator(inventoryRepo *inventory.Repository, unitRepo *units.Repository, movementRepo *inventory.MovementRepository, logg *logger.Logger) (*Allocator, error) {
	if inventoryRepo == nil || unitRepo == nil || movementRepo == nil || logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "allocator requires inventory, unit and movement repositories and a logger")
	}
	return &Allocator{
		inventory: inventoryRepo,
		units:     unitRepo,
		movements: movementRepo,
		logg:      logg,
	}, nil
}

// WithTx returns an allocator whose writes run inside the transaction.
func (a *Allocator) WithTx(tx *gorm.DB) *Allocator {
	if tx == nil {
		return a
	}
	return &Allocator{
		inventory: a.inventory.WithTx(tx),
		units:     a.units.WithTx(tx),
		movements: a.movements.WithTx(tx),
		logg:      a.logg,
	}
}

// DeductResult reports what the walk could not cover. Shortfall is nil when
// every line item was fully satisfied; otherwise it aggregates one error per
// line that was clamped to the available amount.
type DeductResult struct {
	Shortfall error
}

// Deduct applies the dispatch to the inventory counters and marks selected
// units sold. Counters never go negative: when the walk runs out of stock
// the remainder is dropped and reported through DeductResult.Shortfall
// instead of failing the whole batch. Callers wanting all-or-nothing run
// this inside a transaction and roll back on a non-nil Shortfall.
func (a *Allocator) Deduct(ctx context.Context, items []LineItem, dispatchNoteID uuid.UUID) (*DeductResult, error) {
	ctx = a.logg.WithDispatchNoteID(ctx, dispatchNoteID.String())
	result := &DeductResult{}

	for _, item := range items {
		switch item.ItemClass {
		case enums.ItemClassBulk:
			if err := a.deductBulk(ctx, item, dispatchNoteID, result); err != nil {
				return nil, err
			}
		case enums.ItemClassCount:
			if err := a.deductCount(ctx, item, dispatchNoteID, result); err != nil {
				return nil, err
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item class "+string(item.ItemClass))
		}
	}

	return result, nil
}

func (a *Allocator) deductBulk(ctx context.Context, item LineItem, dispatchNoteID uuid.UUID, result *DeductResult) error {
	required := item.BulkQty
	if len(item.UnitIDs) > 0 {
		sum, err := a.units.SumQuantity(ctx, item.UnitIDs)
		if err != nil {
			return err
		}
		required = sum
	}
	if !required.IsPositive() {
		return nil
	}

	records, err := a.inventory.ListBulkByQuality(ctx, item.QualityID)
	if err != nil {
		return err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ProducedBulkQty.GreaterThan(records[j].ProducedBulkQty)
	})

	remaining := required
	unitBudget := len(item.UnitIDs)
	var movements []models.StockMovement

	for i := range records {
		if !remaining.IsPositive() {
			break
		}
		record := &records[i]

		take := decimal.Min(record.ProducedBulkQty, remaining)
		if !take.IsPositive() {
			continue
		}

		record.ProducedBulkQty = record.ProducedBulkQty.Sub(take)
		record.ReservedBulkQty = decimal.Max(decimal.Zero, record.ReservedBulkQty.Sub(take))

		// Per-factory unit attribution is not persisted on the request,
		// so the unit counter is decremented proportionally to the bulk
		// amount taken from this record.
		unitsTaken := 0
		if unitBudget > 0 {
			unitsTaken = proportionalUnits(take, required, len(item.UnitIDs))
			if unitsTaken > unitBudget {
				unitsTaken = unitBudget
			}
			record.ProducedUnitCount = clampInt(record.ProducedUnitCount - unitsTaken)
			record.ReservedUnitCount = clampInt(record.ReservedUnitCount - unitsTaken)
			unitBudget -= unitsTaken
		}

		if err := a.inventory.Save(ctx, record); err != nil {
			return err
		}
		movements = append(movements, models.StockMovement{
			ItemClass: enums.ItemClassBulk,
			QualityID: record.QualityID,
			DesignID:  record.DesignID,
			FactoryID: record.FactoryID,
			BulkDelta: take.Neg(),
			UnitDelta: -unitsTaken,
			DocType:   enums.MovementTypeDispatch,
			DocID:     dispatchNoteID,
		})

		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		a.logg.Warn(ctx, fmt.Sprintf("bulk deduction short by %s for quality %s", remaining, item.QualityID))
		result.Shortfall = multierr.Append(result.Shortfall, pkgerrors.New(
			pkgerrors.CodeInsufficientStock,
			fmt.Sprintf("line %d: short %s of quality %s", item.LineIndex, remaining, item.QualityID),
		))
	}

	if err := a.movements.Append(ctx, movements); err != nil {
		return err
	}

	// Exact, unlike the proportional counter above: the caller named these
	// rolls, so they are stamped sold against the note one by one.
	return a.units.MarkSold(ctx, item.UnitIDs, dispatchNoteID)
}

func (a *Allocator) deductCount(ctx context.Context, item LineItem, dispatchNoteID uuid.UUID, result *DeductResult) error {
	for _, piece := range item.Pieces {
		if piece.PieceQty <= 0 {
			continue
		}

		records, err := a.inventory.ListCountByGroup(ctx, item.QualityID, item.DesignID, piece.ColorGroupID, piece.SubCut)
		if err != nil {
			return err
		}
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].ProducedPieceQty > records[j].ProducedPieceQty
		})

		remaining := piece.PieceQty
		var movements []models.StockMovement

		for i := range records {
			if remaining <= 0 {
				break
			}
			record := &records[i]

			take := record.ProducedPieceQty
			if take > remaining {
				take = remaining
			}
			if take <= 0 {
				continue
			}

			record.ProducedPieceQty -= take
			record.ReservedPieceQty = clampInt(record.ReservedPieceQty - take)

			if err := a.inventory.Save(ctx, record); err != nil {
				return err
			}
			movements = append(movements, models.StockMovement{
				ItemClass:    enums.ItemClassCount,
				QualityID:    record.QualityID,
				DesignID:     record.DesignID,
				FactoryID:    record.FactoryID,
				ColorGroupID: record.ColorGroupID,
				SubCut:       record.SubCut,
				PieceDelta:   -take,
				DocType:      enums.MovementTypeDispatch,
				DocID:        dispatchNoteID,
			})

			remaining -= take
		}

		if remaining > 0 {
			a.logg.Warn(ctx, fmt.Sprintf("piece deduction short by %d for color group %s", remaining, piece.ColorGroupID))
			result.Shortfall = multierr.Append(result.Shortfall, pkgerrors.New(
				pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("line %d: short %d pieces of color group %s", item.LineIndex, remaining, piece.ColorGroupID),
			))
		}

		if err := a.movements.Append(ctx, movements); err != nil {
			return err
		}
	}

	return nil
}

// proportionalUnits computes ceil(take / required * totalUnits).
func proportionalUnits(take, required decimal.Decimal, totalUnits int) int {
	if totalUnits == 0 || !required.IsPositive() {
		return 0
	}
	return int(take.Mul(decimal.NewFromInt(int64(totalUnits))).Div(required).Ceil().IntPart())
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
