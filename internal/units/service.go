package units

import (
	"context"

	"github.com/google/uuid"

	"github.com/milltrack/milltrack-backend/pkg/db/models"
	"github.com/milltrack/milltrack-backend/pkg/enums"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/pagination"
)

// Service exposes unit listing and manual status edits. The status
// invariant is absolute: a unit is sold exactly when it references a
// dispatch note.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil || logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unit service requires a repository and a logger")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// ListAvailable pages through available units matching the filters.
func (s *Service) ListAvailable(ctx context.Context, filters ListFilters, page pagination.Params) (*ListResult, error) {
	return s.repo.ListAvailable(ctx, filters, page)
}

// Get loads one unit.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.FabricUnit, error) {
	return s.repo.FindByID(ctx, id)
}

// SetStatus applies a manual status correction. Marking a unit sold needs
// the dispatch note it was sold under; marking it available clears the
// reference. Anything else would break the invariant the rebuild enforces.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status enums.UnitStatus, dispatchNoteID *uuid.UUID) (*models.FabricUnit, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid unit status "+string(status))
	}
	if status == enums.UnitStatusSold && dispatchNoteID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sold units must reference a dispatch note")
	}
	if status == enums.UnitStatusAvailable && dispatchNoteID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "available units cannot reference a dispatch note")
	}

	unit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unit.Status = status
	unit.DispatchNoteID = dispatchNoteID
	if err := s.repo.Save(ctx, unit); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save unit")
	}

	s.logg.Info(s.logg.WithField(ctx, "unit_id", id.String()), "unit status updated to "+status.String())
	return unit, nil
}
