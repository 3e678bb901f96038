package recalc

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/dispatch"
	"github.com/milltrack/milltrack-backend/internal/inventory"
	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/production"
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

// Rebuilder recomputes every inventory record from the source documents:
// productions add, dispatch notes replay the same largest-stock-first walk
// the live allocator uses, and open orders re-reserve their pending
// amounts. The live counters are a drifting optimization of this function;
// the rebuild is the reference.
type Rebuilder struct {
	runner      TxRunner
	inventory   *inventory.Repository
	productions *production.Repository
	dispatches  *dispatch.Repository
	orders      *orders.Repository
	units       *units.Repository
	logg        *logger.Logger
}

func NewRebuilder(
	runner TxRunner,
	inventoryRepo *inventory.Repository,
	productionRepo *production.Repository,
	dispatchRepo *dispatch.Repository,
	orderRepo *orders.Repository,
	unitRepo *units.Repository,
	logg *logger.Logger,
) (*Rebuilder, error) {
	if runner == nil || inventoryRepo == nil || productionRepo == nil || dispatchRepo == nil || orderRepo == nil || unitRepo == nil || logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rebuilder requires all repositories")
	}
	return &Rebuilder{
		runner:      runner,
		inventory:   inventoryRepo,
		productions: productionRepo,
		dispatches:  dispatchRepo,
		orders:      orderRepo,
		units:       unitRepo,
		logg:        logg,
	}, nil
}

// Result summarizes one rebuild run.
type Result struct {
	UpdatedCount   int   `json:"updatedCount"`
	PrunedCount    int   `json:"prunedCount"`
	UnitsCorrected int64 `json:"unitsCorrected"`
}

// calcRecord pairs a stored record with its recomputed counters.
type calcRecord struct {
	stored    *models.InventoryRecord
	partition inventory.Partition

	bulk           decimal.Decimal
	unitCount      int
	pieces         int
	reservedBulk   decimal.Decimal
	reservedPieces int
}

// Recalculate rebuilds the ledger inside one transaction. Safe to re-run:
// a second run with no intervening events reports zero updates.
func (r *Rebuilder) Recalculate(ctx context.Context) (*Result, error) {
	result := &Result{}

	err := r.runner.WithTx(ctx, func(tx *gorm.DB) error {
		inventoryRepo := r.inventory.WithTx(tx)

		// Counter writers queue behind this until the rebuild commits, so
		// the document set read below cannot change mid-rebuild. Must be
		// the first statement: the rebuild holds nothing else while it
		// waits for in-flight dispatches to finish.
		if err := inventoryRepo.LockAll(ctx); err != nil {
			return err
		}

		stored, err := inventoryRepo.ListAll(ctx)
		if err != nil {
			return err
		}

		// Step 1: zeroed calculated counters for every known record.
		// Records are kept, not deleted, so their keys stay stable.
		state := newState(stored)

		// Step 2: fold productions in. Events whose partition has no
		// record are skipped; the rebuild corrects counters, it does not
		// invent partitions.
		events, err := r.productions.WithTx(tx).ListAll(ctx)
		if err != nil {
			return err
		}
		state.applyProductions(events)

		// Step 3: replay dispatches with the same greedy walk as the
		// live allocator, against the calculated counters.
		notes, err := r.dispatches.WithTx(tx).ListAll(ctx)
		if err != nil {
			return err
		}
		state.replayDispatches(notes)

		// Step 4: reserve the pending remainder of every open order into
		// the single record with the most slack.
		open, err := r.orders.WithTx(tx).ListOpen(ctx)
		if err != nil {
			return err
		}
		state.reserveOpenOrders(open)

		// Steps 5-6: clamp, then write back only what changed.
		updated, err := state.flush(ctx, inventoryRepo)
		if err != nil {
			return err
		}
		result.UpdatedCount = updated

		// Step 7: force the unit status invariant back in line.
		corrected, err := r.units.WithTx(tx).ResyncStatuses(ctx)
		if err != nil {
			return err
		}
		result.UnitsCorrected = corrected

		pruned, err := state.prune(ctx, inventoryRepo)
		if err != nil {
			return err
		}
		result.PrunedCount = pruned
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logg.Info(ctx, fmt.Sprintf("rebuild finished: %d records updated, %d pruned, %d units corrected",
		result.UpdatedCount, result.PrunedCount, result.UnitsCorrected))
	return result, nil
}

type rebuildState struct {
	byKey    map[string]*calcRecord
	records  []*calcRecord
	produced map[string]bool
}

func newState(stored []models.InventoryRecord) *rebuildState {
	state := &rebuildState{
		byKey:    make(map[string]*calcRecord, len(stored)),
		produced: make(map[string]bool),
	}
	for i := range stored {
		record := &stored[i]
		calc := &calcRecord{
			stored:       record,
			partition:    inventory.PartitionOf(record),
			bulk:         decimal.Zero,
			reservedBulk: decimal.Zero,
		}
		state.byKey[calc.partition.Key()] = calc
		state.records = append(state.records, calc)
	}
	return state
}

func (s *rebuildState) applyProductions(events []models.ProductionEvent) {
	for i := range events {
		event := &events[i]
		switch event.ItemClass {
		case enums.ItemClassBulk:
			key := inventory.Partition{
				ItemClass: enums.ItemClassBulk,
				QualityID: event.QualityID,
				DesignID:  event.DesignID,
				FactoryID: event.FactoryID,
			}.Key()
			s.produced[key] = true
			if calc, ok := s.byKey[key]; ok {
				calc.bulk = calc.bulk.Add(event.BulkQty)
				calc.unitCount += event.UnitCount
			}
		case enums.ItemClassCount:
			for _, piece := range event.Pieces {
				colorGroupID := piece.ColorGroupID
				key := inventory.Partition{
					ItemClass:    enums.ItemClassCount,
					QualityID:    event.QualityID,
					DesignID:     event.DesignID,
					FactoryID:    event.FactoryID,
					ColorGroupID: &colorGroupID,
					SubCut:       piece.SubCut,
				}.Key()
				s.produced[key] = true
				if calc, ok := s.byKey[key]; ok {
					calc.pieces += piece.PieceQty
				}
			}
		}
	}
}

func (s *rebuildState) replayDispatches(notes []models.DispatchNote) {
	for i := range notes {
		note := &notes[i]
		for j := range note.LineItems {
			line := &note.LineItems[j]
			switch line.ItemClass {
			case enums.ItemClassBulk:
				s.replayBulkLine(line)
			case enums.ItemClassCount:
				s.replayCountLine(line)
			}
		}
	}
}

func (s *rebuildState) replayBulkLine(line *models.DispatchLineItem) {
	required := line.BulkQty
	if !required.IsPositive() {
		return
	}

	candidates := s.bulkByQuality(line.QualityID)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].bulk.GreaterThan(candidates[j].bulk)
	})

	remaining := required
	unitBudget := line.UnitCount
	for _, calc := range candidates {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(calc.bulk, remaining)
		if !take.IsPositive() {
			continue
		}
		calc.bulk = calc.bulk.Sub(take)

		if unitBudget > 0 {
			unitsTaken := int(take.Mul(decimal.NewFromInt(int64(line.UnitCount))).Div(required).Ceil().IntPart())
			if unitsTaken > unitBudget {
				unitsTaken = unitBudget
			}
			calc.unitCount -= unitsTaken
			unitBudget -= unitsTaken
		}
		remaining = remaining.Sub(take)
	}
}

func (s *rebuildState) replayCountLine(line *models.DispatchLineItem) {
	for _, piece := range line.Pieces {
		if piece.PieceQty <= 0 {
			continue
		}
		candidates := s.countByGroup(line.QualityID, line.DesignID, piece.ColorGroupID, piece.SubCut)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].pieces > candidates[j].pieces
		})

		remaining := piece.PieceQty
		for _, calc := range candidates {
			if remaining <= 0 {
				break
			}
			take := calc.pieces
			if take > remaining {
				take = remaining
			}
			if take <= 0 {
				continue
			}
			calc.pieces -= take
			remaining -= take
		}
	}
}

func (s *rebuildState) reserveOpenOrders(open []models.Order) {
	for i := range open {
		order := &open[i]
		for j := range order.LineItems {
			line := &order.LineItems[j]
			switch line.ItemClass {
			case enums.ItemClassBulk:
				pending := orders.PendingBulk(line)
				if !pending.IsPositive() {
					continue
				}
				if best := bestBySlack(s.bulkByQuality(line.QualityID), bulkSlack); best != nil {
					best.reservedBulk = best.reservedBulk.Add(pending)
				}
			case enums.ItemClassCount:
				for k := range line.Pieces {
					piece := &line.Pieces[k]
					pending := orders.PendingPieces(piece)
					if pending <= 0 {
						continue
					}
					candidates := s.countByGroup(line.QualityID, line.DesignID, piece.ColorGroupID, piece.SubCut)
					if best := bestBySlack(candidates, pieceSlack); best != nil {
						best.reservedPieces += pending
					}
				}
			}
		}
	}
}

func bulkSlack(c *calcRecord) decimal.Decimal {
	return c.bulk.Sub(c.reservedBulk)
}

func pieceSlack(c *calcRecord) decimal.Decimal {
	return decimal.NewFromInt(int64(c.pieces - c.reservedPieces))
}

// bestBySlack picks the record with the highest produced-minus-reserved
// availability; ties break on factory id so re-runs choose the same row.
func bestBySlack(candidates []*calcRecord, slack func(*calcRecord) decimal.Decimal) *calcRecord {
	var best *calcRecord
	for _, calc := range candidates {
		if best == nil {
			best = calc
			continue
		}
		diff := slack(calc).Cmp(slack(best))
		if diff > 0 || (diff == 0 && calc.partition.FactoryID.String() < best.partition.FactoryID.String()) {
			best = calc
		}
	}
	return best
}

func (s *rebuildState) bulkByQuality(qualityID uuid.UUID) []*calcRecord {
	var out []*calcRecord
	for _, calc := range s.records {
		if calc.partition.ItemClass == enums.ItemClassBulk && calc.partition.QualityID == qualityID {
			out = append(out, calc)
		}
	}
	return out
}

func (s *rebuildState) countByGroup(qualityID uuid.UUID, designID *uuid.UUID, colorGroupID uuid.UUID, subCut *string) []*calcRecord {
	var out []*calcRecord
	for _, calc := range s.records {
		p := calc.partition
		if p.ItemClass != enums.ItemClassCount || p.QualityID != qualityID {
			continue
		}
		if !equalUUIDPtr(p.DesignID, designID) {
			continue
		}
		if p.ColorGroupID == nil || *p.ColorGroupID != colorGroupID {
			continue
		}
		if !equalSubCut(p.SubCut, subCut) {
			continue
		}
		out = append(out, calc)
	}
	return out
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalSubCut(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// flush clamps the calculated counters and writes back only the records
// whose values changed. reservedUnitCount is always forced to zero: it is
// derivable and never independently persisted.
func (s *rebuildState) flush(ctx context.Context, repo *inventory.Repository) (int, error) {
	updated := 0
	for _, calc := range s.records {
		if calc.bulk.IsNegative() {
			calc.bulk = decimal.Zero
		}
		if calc.reservedBulk.IsNegative() {
			calc.reservedBulk = decimal.Zero
		}
		if calc.unitCount < 0 {
			calc.unitCount = 0
		}
		if calc.pieces < 0 {
			calc.pieces = 0
		}
		if calc.reservedPieces < 0 {
			calc.reservedPieces = 0
		}

		record := calc.stored
		changed := !record.ProducedBulkQty.Equal(calc.bulk) ||
			record.ProducedUnitCount != calc.unitCount ||
			record.ProducedPieceQty != calc.pieces ||
			!record.ReservedBulkQty.Equal(calc.reservedBulk) ||
			record.ReservedUnitCount != 0 ||
			record.ReservedPieceQty != calc.reservedPieces
		if !changed {
			continue
		}

		record.ProducedBulkQty = calc.bulk
		record.ProducedUnitCount = calc.unitCount
		record.ProducedPieceQty = calc.pieces
		record.ReservedBulkQty = calc.reservedBulk
		record.ReservedUnitCount = 0
		record.ReservedPieceQty = calc.reservedPieces
		if err := repo.Save(ctx, record); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// prune removes records that ended the rebuild all-zero and have no
// production event referencing their partition.
func (s *rebuildState) prune(ctx context.Context, repo *inventory.Repository) (int, error) {
	var ids []uuid.UUID
	for _, calc := range s.records {
		if !calc.stored.IsEmpty() {
			continue
		}
		if s.produced[calc.partition.Key()] {
			continue
		}
		ids = append(ids, calc.stored.ID)
	}
	if err := repo.DeleteByIDs(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
