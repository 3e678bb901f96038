package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milltrack/milltrack-backend/pkg/db"
	"github.com/milltrack/milltrack-backend/pkg/db/models"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
)

// Repository persists dispatch notes with their line items and pieces.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the full note with line items and pieces.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DispatchNote, error) {
	var note models.DispatchNote
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_index ASC")
		}).
		Preload("LineItems.Pieces").
		First(&note, "id = ?", id).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispatch note not found")
		}
		return nil, err
	}
	return &note, nil
}

// ListAll streams every note in creation order; the reconciliation rebuild
// replays them oldest first.
func (r *Repository) ListAll(ctx context.Context) ([]models.DispatchNote, error) {
	var rows []models.DispatchNote
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Preload("LineItems.Pieces").
		Order("created_at ASC").
		Find(&rows).
		Error
	return rows, err
}

// Create inserts the note together with its line items and pieces.
func (r *Repository) Create(ctx context.Context, note *models.DispatchNote) error {
	if err := r.db.WithContext(ctx).Create(note).Error; err != nil {
		if db.IsUniqueViolation(err, "note_number") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "dispatch note number already taken")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispatch note")
	}
	return nil
}

// NextNoteNumber derives the next sequential challan number from the
// highest one issued so far. The unique index on note_number is the real
// guarantee: under read committed, two concurrent creates can both read
// the same high-water mark, and the loser surfaces CONFLICT and retries
// with a fresh number.
func (r *Repository) NextNoteNumber(ctx context.Context) (string, error) {
	var last string
	err := r.db.WithContext(ctx).
		Model(&models.DispatchNote{}).
		Select("note_number").
		Order("note_number DESC").
		Limit(1).
		Scan(&last).
		Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read last dispatch note number")
	}
	next := 1
	if n, ok := parseNoteNumber(last); ok {
		next = n + 1
	}
	return fmt.Sprintf("DN-%06d", next), nil
}

func parseNoteNumber(number string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(number, "DN-%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
