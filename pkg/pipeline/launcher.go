package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxmuse/atelier/pkg/models"
)

// ErrNoCompletedRun indicates a best-of batch finished without a single
// completed production.
var ErrNoCompletedRun = errors.New("no production run completed")

// Handle tracks one in-flight production run.
type Handle struct {
	TaskID string

	done   chan struct{}
	result *models.ProductionResult
	err    error
}

// Wait blocks until the run finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (*models.ProductionResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the run has finished without blocking.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Launcher runs productions concurrently and selects the strongest
// result from a batch.
type Launcher struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewLauncher(p *Pipeline, logger *slog.Logger) *Launcher {
	return &Launcher{
		pipeline: p,
		logger:   logger.With("module", "launcher"),
	}
}

// Start kicks off one run and returns immediately with its handle.
func (l *Launcher) Start(ctx context.Context, req Request) *Handle {
	if req.TaskID == "" {
		req.TaskID = "prod-" + uuid.New().String()[:8]
	}

	handle := &Handle{
		TaskID: req.TaskID,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(handle.done)

		handle.result, handle.err = l.pipeline.Produce(ctx, req)
	}()

	return handle
}

// BestOf runs every request concurrently and returns the completed
// result with the highest identity score, preferring clean approvals
// over degraded ones. Runs that were rejected or failed do not compete;
// if none completed, ErrNoCompletedRun is returned.
func (l *Launcher) BestOf(ctx context.Context, reqs []Request) (*models.ProductionResult, error) {
	handles := make([]*Handle, 0, len(reqs))
	for _, req := range reqs {
		handles = append(handles, l.Start(ctx, req))
	}

	var best *models.ProductionResult

	for _, handle := range handles {
		result, err := handle.Wait(ctx)
		if err != nil {
			l.logger.WarnContext(ctx, "Batch run did not complete",
				"task_id", handle.TaskID, "error", err)

			continue
		}

		if !result.Completed() {
			l.logger.InfoContext(ctx, "Batch run ended without artifacts",
				"task_id", result.TaskID, "stage", result.Stage, "reason", result.Reason)

			continue
		}

		if better(result, best) {
			best = result
		}
	}

	if best == nil {
		return nil, ErrNoCompletedRun
	}

	l.logger.InfoContext(ctx, "Selected best run",
		"task_id", best.TaskID, "degraded", best.Degraded())

	return best, nil
}

func better(candidate, incumbent *models.ProductionResult) bool {
	if incumbent == nil {
		return true
	}

	if candidate.Degraded() != incumbent.Degraded() {
		return incumbent.Degraded()
	}

	return score(candidate) > score(incumbent)
}

func score(r *models.ProductionResult) float64 {
	if r.Verdict == nil {
		return 0
	}

	return r.Verdict.IdentityScore
}
