package recalc

import (
	"context"
	"fmt"
	"time"

	"github.com/milltrack/milltrack-backend/pkg/logger"
	"github.com/milltrack/milltrack-backend/pkg/metrics"
)

const (
	defaultInterval = 24 * time.Hour
	jobName         = "inventory_rebuild"
)

// WorkerParams configure the rebuild worker.
type WorkerParams struct {
	Logger   *logger.Logger
	Builder  *Rebuilder
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Worker runs the rebuild on a fixed cadence, guarded by the lease lock so
// only one instance rebuilds at a time.
type Worker struct {
	logg     *logger.Logger
	builder  *Rebuilder
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
}

// NewWorker builds a rebuild worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("rebuilder required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Worker{
		logg:     params.Logger,
		builder:  params.Builder,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run starts the rebuild loop until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.RunOnce(ctx); err != nil {
		w.logg.Error(ctx, "scheduled rebuild failed", err)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "rebuild worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logg.Error(ctx, "scheduled rebuild failed", err)
			}
		}
	}
}

// RunOnce executes a single guarded rebuild cycle.
func (w *Worker) RunOnce(ctx context.Context) error {
	locked, err := w.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		w.logg.Info(ctx, "another rebuild is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := w.lock.Release(ctx); relErr != nil {
			w.logg.Error(ctx, "failed to release rebuild lock", relErr)
		}
	}()

	jobCtx := w.logg.WithField(ctx, "job", jobName)
	w.logg.Info(jobCtx, "rebuild starting")
	start := time.Now()
	result, err := w.builder.Recalculate(jobCtx)
	duration := time.Since(start)
	w.metrics.ObserveDuration(jobName, duration)

	jobCtx = w.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		w.logg.Error(jobCtx, "rebuild failed", err)
		w.metrics.IncFailure(jobName)
		return err
	}

	w.metrics.IncSuccess(jobName)
	w.metrics.SetRecordsUpdated(jobName, result.UpdatedCount)
	w.logg.Info(jobCtx, fmt.Sprintf("rebuild completed: %d updated", result.UpdatedCount))
	return nil
}
