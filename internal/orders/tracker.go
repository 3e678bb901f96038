package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/stock"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

// Tracker folds dispatched quantities back into the originating order and
// derives its dispatch status. The status only ever moves forward:
// pending -> partial -> completed.
type Tracker struct {
	repo *Repository
	logg *logger.Logger
}

func NewTracker(repo *Repository, logg *logger.Logger) (*Tracker, error) {
	if repo == nil || logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tracker requires an order repository and a logger")
	}
	return &Tracker{repo: repo, logg: logg}, nil
}

// WithTx returns a tracker whose writes run inside the transaction.
func (t *Tracker) WithTx(tx *gorm.DB) *Tracker {
	if tx == nil {
		return t
	}
	return &Tracker{repo: t.repo.WithTx(tx), logg: t.logg}
}

// ApplyDispatch adds the dispatched amounts to the order's line items and
// re-derives the dispatch status. Bulk lines are matched by line index and
// must carry the resolved bulk quantity; count lines are matched per color
// group. Dispatched items with no matching order line are logged and
// skipped rather than failing the whole update.
func (t *Tracker) ApplyDispatch(ctx context.Context, orderID uuid.UUID, items []stock.LineItem) (*models.Order, error) {
	ctx = t.logg.WithOrderID(ctx, orderID.String())

	order, err := t.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		switch item.ItemClass {
		case enums.ItemClassBulk:
			if err := t.applyBulk(ctx, order, item); err != nil {
				return nil, err
			}
		case enums.ItemClassCount:
			if err := t.applyCount(ctx, order, item); err != nil {
				return nil, err
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item class "+string(item.ItemClass))
		}
	}

	next := DeriveDispatchStatus(order)
	if next.AtLeast(order.DispatchStatus) {
		order.DispatchStatus = next
	}
	if err := t.repo.SaveStatus(ctx, order); err != nil {
		return nil, err
	}

	t.logg.Info(ctx, fmt.Sprintf("order dispatch status is %s", order.DispatchStatus))
	return order, nil
}

func (t *Tracker) applyBulk(ctx context.Context, order *models.Order, item stock.LineItem) error {
	for i := range order.LineItems {
		line := &order.LineItems[i]
		if line.ItemClass != enums.ItemClassBulk || line.LineIndex != item.LineIndex {
			continue
		}
		line.DispatchedQty = line.DispatchedQty.Add(item.BulkQty)
		return t.repo.SaveLineItem(ctx, line)
	}
	t.logg.Warn(ctx, fmt.Sprintf("no bulk order line at index %d, skipping", item.LineIndex))
	return nil
}

func (t *Tracker) applyCount(ctx context.Context, order *models.Order, item stock.LineItem) error {
	for _, request := range item.Pieces {
		piece := findOrderPiece(order, request)
		if piece == nil {
			t.logg.Warn(ctx, fmt.Sprintf("no order piece for color group %s, skipping", request.ColorGroupID))
			continue
		}
		piece.DispatchedQty += request.PieceQty
		if err := t.repo.SavePiece(ctx, piece); err != nil {
			return err
		}
	}
	return nil
}

func findOrderPiece(order *models.Order, request stock.PieceRequest) *models.OrderPiece {
	for i := range order.LineItems {
		line := &order.LineItems[i]
		if line.ItemClass != enums.ItemClassCount {
			continue
		}
		for j := range line.Pieces {
			piece := &line.Pieces[j]
			if piece.ColorGroupID == request.ColorGroupID && equalSubCut(piece.SubCut, request.SubCut) {
				return piece
			}
		}
	}
	return nil
}

func equalSubCut(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DeriveDispatchStatus computes the status implied by the line items
// alone, without the monotonicity guard.
func DeriveDispatchStatus(order *models.Order) enums.DispatchStatus {
	if len(order.LineItems) == 0 {
		return enums.DispatchStatusPending
	}

	completed := true
	started := false
	for i := range order.LineItems {
		line := &order.LineItems[i]
		if !line.Fulfilled() {
			completed = false
		}
		if line.Started() {
			started = true
		}
	}

	switch {
	case completed:
		return enums.DispatchStatusCompleted
	case started:
		return enums.DispatchStatusPartial
	default:
		return enums.DispatchStatusPending
	}
}

// PendingBulk is the order line's outstanding bulk quantity, floored at
// zero; the reconciliation rebuild reserves this amount.
func PendingBulk(line *models.OrderLineItem) decimal.Decimal {
	pending := line.Quantity.Sub(line.DispatchedQty)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// PendingPieces is the count-measured analogue of PendingBulk.
func PendingPieces(piece *models.OrderPiece) int {
	pending := piece.PieceQty - piece.DispatchedQty
	if pending < 0 {
		return 0
	}
	return pending
}
