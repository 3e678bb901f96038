package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/internal/orders"
	"github.com/milltrack/milltrack-backend/internal/stock"
	"github.com/milltrack/milltrack-backend/pkg/db"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates dispatch-note creation: validate, persist the note,
// deduct stock and fold the dispatch back into the order, all inside one
// transaction. A shortage found at any point rolls the whole thing back,
// so validation and deduction cannot race each other within one request.
type Service struct {
	runner    TxRunner
	repo      *Repository
	orders    *orders.Repository
	validator *stock.Validator
	allocator *stock.Allocator
	tracker   *orders.Tracker
	logg      *logger.Logger
}

func NewService(
	runner TxRunner,
	repo *Repository,
	orderRepo *orders.Repository,
	validator *stock.Validator,
	allocator *stock.Allocator,
	tracker *orders.Tracker,
	logg *logger.Logger,
) (*Service, error) {
	if runner == nil || repo == nil || orderRepo == nil || validator == nil || allocator == nil || tracker == nil || logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service requires all collaborators")
	}
	return &Service{
		runner:    runner,
		repo:      repo,
		orders:    orderRepo,
		validator: validator,
		allocator: allocator,
		tracker:   tracker,
		logg:      logg,
	}, nil
}

// CreateInput is one dispatch-note creation request.
type CreateInput struct {
	OrderID uuid.UUID
	Remarks *string
	Items   []stock.LineItem
}

// Create validates stock, persists the note, runs the allocation walk and
// updates the order, atomically. Returns the created note with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.DispatchNote, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispatch requires at least one line item")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var note *models.DispatchNote
	for attempt := 1; ; attempt++ {
		note = nil
		err := s.createOnce(ctx, input, &note)
		if err == nil {
			break
		}
		if attempt < createAttempts && isNoteNumberTaken(err) {
			s.logg.Warn(ctx, "dispatch note number raced, retrying with a fresh number")
			continue
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithDispatchNoteID(ctx, note.ID.String()), fmt.Sprintf("dispatch note %s created", note.NoteNumber))
	return note, nil
}

// createAttempts bounds the note-number retry loop; each retry re-reads
// the high-water mark, so one loss to a concurrent create is enough.
const createAttempts = 3

func (s *Service) createOnce(ctx context.Context, input CreateInput, note **models.DispatchNote) error {
	return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		validator := s.validator.WithTx(tx)

		order, err := s.orders.WithTx(tx).FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is "+order.Status.String())
		}

		result, err := validator.Validate(ctx, input.Items)
		if err != nil {
			return err
		}
		if !result.Valid {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for dispatch").
				WithDetails(result.InsufficientItems)
		}

		items, err := s.resolveItems(ctx, validator, input.Items)
		if err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		number, err := repo.NextNoteNumber(ctx)
		if err != nil {
			return err
		}
		created := buildNote(number, input, items)
		if err := repo.Create(ctx, created); err != nil {
			return err
		}
		*note = created

		deduction, err := s.allocator.WithTx(tx).Deduct(ctx, items, created.ID)
		if err != nil {
			return err
		}
		if deduction.Shortfall != nil {
			// Validation passed but the walk still ran dry; abort instead
			// of committing a clamped deduction.
			return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, deduction.Shortfall, "stock changed during dispatch")
		}

		if _, err := s.tracker.WithTx(tx).ApplyDispatch(ctx, input.OrderID, items); err != nil {
			return err
		}
		return nil
	})
}

// isNoteNumberTaken spots a lost race on the note_number unique index, the
// one failure worth re-running the whole creation for.
func isNoteNumberTaken(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		return false
	}
	return db.IsUniqueViolation(typed.Unwrap(), "note_number")
}

// Get returns the note with its line items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DispatchNote, error) {
	return s.repo.FindByID(ctx, id)
}

// resolveItems pins each bulk line's required quantity: unit-backed lines
// get the summed carried quantity so the stored line is replayable without
// the unit rows.
func (s *Service) resolveItems(ctx context.Context, validator *stock.Validator, items []stock.LineItem) ([]stock.LineItem, error) {
	resolved := make([]stock.LineItem, len(items))
	copy(resolved, items)
	for i := range resolved {
		if resolved[i].ItemClass != enums.ItemClassBulk || len(resolved[i].UnitIDs) == 0 {
			continue
		}
		required, err := validator.RequiredBulk(ctx, resolved[i])
		if err != nil {
			return nil, err
		}
		resolved[i].BulkQty = required
	}
	return resolved, nil
}

func buildNote(number string, input CreateInput, items []stock.LineItem) *models.DispatchNote {
	note := &models.DispatchNote{
		NoteNumber: number,
		OrderID:    input.OrderID,
		Remarks:    input.Remarks,
	}
	for _, item := range items {
		line := models.DispatchLineItem{
			LineIndex: item.LineIndex,
			ItemClass: item.ItemClass,
			QualityID: item.QualityID,
			DesignID:  item.DesignID,
			BulkQty:   item.BulkQty,
			UnitCount: len(item.UnitIDs),
		}
		for _, piece := range item.Pieces {
			line.Pieces = append(line.Pieces, models.DispatchPiece{
				ColorGroupID: piece.ColorGroupID,
				SubCut:       piece.SubCut,
				PieceQty:     piece.PieceQty,
			})
		}
		note.LineItems = append(note.LineItems, line)
	}
	return note
}
