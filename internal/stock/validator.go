package stock

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/masterdata"
	"github.com/milltrack/milltrack-backend/internal/units"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// Validator answers whether a dispatch request can be covered by the
// aggregate available stock. It is read-only; pairing it atomically with
// the allocator is the dispatch service's job.
type Validator struct {
	inventory  *inventory.Repository
	units      *units.Repository
	masterdata *masterdata.Repository
}

func NewValidator(inventoryRepo *inventory.Repository, unitRepo *units.Repository, masterdataRepo *masterdata.Repository) (*Validator, error) {
	if inventoryRepo == nil || unitRepo == nil || masterdataRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "validator requires inventory, unit and masterdata repositories")
	}
	return &Validator{
		inventory:  inventoryRepo,
		units:      unitRepo,
		masterdata: masterdataRepo,
	}, nil
}

// WithTx returns a validator whose reads run inside the transaction.
func (v *Validator) WithTx(tx *gorm.DB) *Validator {
	if tx == nil {
		return v
	}
	return &Validator{
		inventory:  v.inventory.WithTx(tx),
		units:      v.units.WithTx(tx),
		masterdata: v.masterdata.WithTx(tx),
	}
}

// Validate checks every line item against aggregate availability. Bulk
// lines are summed quality-wide across all factories, since the allocator
// may pull from any of them; count lines are summed per color group and
// sub cut. No mutation happens here.
func (v *Validator) Validate(ctx context.Context, items []LineItem) (*ValidationResult, error) {
	result := &ValidationResult{Valid: true, InsufficientItems: []Shortage{}}

	for _, item := range items {
		switch item.ItemClass {
		case enums.ItemClassBulk:
			shortage, err := v.checkBulk(ctx, item)
			if err != nil {
				return nil, err
			}
			if shortage != nil {
				result.Valid = false
				result.InsufficientItems = append(result.InsufficientItems, *shortage)
			}
		case enums.ItemClassCount:
			shortages, err := v.checkCount(ctx, item)
			if err != nil {
				return nil, err
			}
			if len(shortages) > 0 {
				result.Valid = false
				result.InsufficientItems = append(result.InsufficientItems, shortages...)
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item class "+string(item.ItemClass))
		}
	}

	return result, nil
}

// RequiredBulk resolves a bulk line's required quantity: the sum over the
// pre-selected units when any were given, the explicit amount otherwise.
// Requested units must still be available; naming the offenders here beats
// a bare conflict deep in the allocation walk.
func (v *Validator) RequiredBulk(ctx context.Context, item LineItem) (decimal.Decimal, error) {
	if len(item.UnitIDs) == 0 {
		return item.BulkQty, nil
	}

	rows, err := v.units.FindByIDs(ctx, item.UnitIDs)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	var unavailable []string
	for _, unit := range rows {
		if unit.Status != enums.UnitStatusAvailable {
			unavailable = append(unavailable, unit.UnitNumber)
			continue
		}
		total = total.Add(unit.Quantity)
	}
	if len(unavailable) > 0 {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation,
			"units not available for dispatch: "+strings.Join(unavailable, ", "))
	}
	return total, nil
}

func (v *Validator) checkBulk(ctx context.Context, item LineItem) (*Shortage, error) {
	required, err := v.RequiredBulk(ctx, item)
	if err != nil {
		return nil, err
	}
	if !required.IsPositive() {
		return nil, nil
	}

	records, err := v.inventory.ListBulkByQuality(ctx, item.QualityID)
	if err != nil {
		return nil, err
	}
	available := decimal.Zero
	for _, record := range records {
		available = available.Add(record.ProducedBulkQty)
	}
	if available.GreaterThanOrEqual(required) {
		return nil, nil
	}

	return &Shortage{
		LineIndex:   item.LineIndex,
		ItemClass:   enums.ItemClassBulk,
		QualityID:   item.QualityID,
		QualityName: v.masterdata.QualityName(ctx, item.QualityID),
		Required:    required,
		Available:   available,
		Deficit:     required.Sub(available),
	}, nil
}

func (v *Validator) checkCount(ctx context.Context, item LineItem) ([]Shortage, error) {
	var shortages []Shortage

	for _, piece := range item.Pieces {
		if piece.PieceQty <= 0 {
			continue
		}
		records, err := v.inventory.ListCountByGroup(ctx, item.QualityID, item.DesignID, piece.ColorGroupID, piece.SubCut)
		if err != nil {
			return nil, err
		}
		available := 0
		for _, record := range records {
			available += record.ProducedPieceQty
		}
		if available >= piece.PieceQty {
			continue
		}

		colorGroupID := piece.ColorGroupID
		shortages = append(shortages, Shortage{
			LineIndex:      item.LineIndex,
			ItemClass:      enums.ItemClassCount,
			QualityID:      item.QualityID,
			QualityName:    v.masterdata.QualityName(ctx, item.QualityID),
			ColorGroupID:   &colorGroupID,
			ColorGroupName: v.masterdata.ColorGroupName(ctx, piece.ColorGroupID),
			SubCut:         piece.SubCut,
			Required:       decimal.NewFromInt(int64(piece.PieceQty)),
			Available:      decimal.NewFromInt(int64(available)),
			Deficit:        decimal.NewFromInt(int64(piece.PieceQty - available)),
		})
	}

	return shortages, nil
}
