package controllers

import (
	"net/http"

	"github.com/milltrack/milltrack-backend/api/responses"
	"github.com/milltrack/milltrack-backend/internal/recalc"
	pkgerrors "github.com/milltrack/milltrack-backend/pkg/errors"
	"github.com/milltrack/milltrack-backend/pkg/logger"
)

// Recalculate triggers a full inventory rebuild. The same lease lock the
// scheduled worker uses guards the run, so an on-demand rebuild never
// overlaps a scheduled one.
func Recalculate(rebuilder *recalc.Rebuilder, lock recalc.Lock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		locked, err := lock.Acquire(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire rebuild lock"))
			return
		}
		if !locked {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a rebuild is already running"))
			return
		}
		defer func() {
			if relErr := lock.Release(ctx); relErr != nil && logg != nil {
				logg.Error(ctx, "failed to release rebuild lock", relErr)
			}
		}()

		result, err := rebuilder.Recalculate(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
