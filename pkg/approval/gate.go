// Package approval implements the human-oversight checkpoint: a pipeline
// suspends on a named step, a pending record is persisted, and execution
// resumes when an external signal arrives or the wait times out.
package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxmuse/atelier/pkg/eventbus"
	"github.com/voxmuse/atelier/pkg/events"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/statestore"
)

// Config carries the gate's timing policy.
type Config struct {
	// PollInterval is how often the gate checks for an external signal.
	PollInterval time.Duration
	// DefaultTimeout bounds a wait when the caller passes none.
	DefaultTimeout time.Duration
	// SignalTTL is the expiry on recorded signals so stale resolutions
	// never leak into a later run of the same task id.
	SignalTTL time.Duration
}

// DefaultConfig returns the production timing defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   2 * time.Second,
		DefaultTimeout: 15 * time.Minute,
		SignalTTL:      time.Hour,
	}
}

// Gate suspends pipeline runs on named checkpoints. The polling wait is
// deliberately narrow so it can be swapped for a push-based mechanism
// without touching the pipeline.
type Gate struct {
	store  statestore.StateStore
	bus    eventbus.EventPublisher
	config Config
	logger *slog.Logger
}

// NewGate creates an approval gate over the given state store. bus may
// be nil when no event transport is configured.
func NewGate(store statestore.StateStore, bus eventbus.EventPublisher, config Config, logger *slog.Logger) *Gate {
	return &Gate{
		store:  store,
		bus:    bus,
		config: config,
		logger: logger.With("module", "approval_gate"),
	}
}

// Await persists the pending record and blocks until an external signal
// for the task arrives, the timeout elapses, or ctx is cancelled.
//
// It returns true only on an explicit approve signal; a reject signal
// and a timeout both return false. The pending record and any transient
// signal are deleted on every exit path.
func (g *Gate) Await(ctx context.Context, approval *models.PendingApproval, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = g.config.DefaultTimeout
	}

	approval.CreatedAt = time.Now().UTC()

	if err := g.store.PutPendingApproval(ctx, approval); err != nil {
		return false, err
	}

	logger := g.logger.With("task_id", approval.TaskID, "step", approval.StepName)
	logger.InfoContext(ctx, "Suspended for approval", "timeout", timeout)

	defer func() {
		// Cleanup must run on timeout and cancellation too. A fresh
		// context avoids losing the release when ctx is already done.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := g.store.DeletePendingApproval(cleanupCtx, approval.TaskID); err != nil {
			logger.ErrorContext(cleanupCtx, "Failed to delete pending approval", "error", err)
		}

		if err := g.store.DeleteApprovalSignal(cleanupCtx, approval.TaskID); err != nil {
			logger.ErrorContext(cleanupCtx, "Failed to delete approval signal", "error", err)
		}
	}()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(g.config.PollInterval)

	defer ticker.Stop()

	for {
		signal, ok, err := g.store.ApprovalSignal(ctx, approval.TaskID)
		if err != nil {
			return false, err
		}

		if ok {
			approved := signal == models.SignalApprove
			logger.InfoContext(ctx, "Approval resolved", "signal", signal)

			return approved, nil
		}

		if time.Now().After(deadline) {
			logger.WarnContext(ctx, "Approval timed out")

			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Resolve records an external approve/reject signal for a suspended
// task. The signal expires if no gate consumes it.
func (g *Gate) Resolve(ctx context.Context, taskID string, signal models.ApprovalSignal) error {
	g.logger.InfoContext(ctx, "Recording approval signal", "task_id", taskID, "signal", signal)

	if err := g.store.PutApprovalSignal(ctx, taskID, signal, g.config.SignalTTL); err != nil {
		return err
	}

	g.publishResolved(ctx, taskID, signal)

	return nil
}

func (g *Gate) publishResolved(ctx context.Context, taskID string, signal models.ApprovalSignal) {
	if g.bus == nil {
		return
	}

	evt := events.ApprovalResolved{
		BaseEvent: events.NewBaseEvent(events.ApprovalResolvedEvent, taskID),
		Signal:    signal,
	}

	// Best effort: the pending record names the step that was waiting.
	if pending, err := g.store.PendingApproval(ctx, taskID); err == nil {
		evt.StepName = pending.StepName
	}

	if err := g.bus.Publish(ctx, taskID, evt); err != nil {
		g.logger.WarnContext(ctx, "Failed to publish approval resolution",
			"task_id", taskID, "error", err)
	}
}

// Pending lists every suspended task awaiting resolution.
func (g *Gate) Pending(ctx context.Context) ([]models.PendingApproval, error) {
	return g.store.PendingApprovals(ctx)
}
