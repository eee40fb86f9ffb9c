package approval

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmuse/atelier/pkg/eventbus"
	"github.com/voxmuse/atelier/pkg/events"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/statestore"
	"github.com/voxmuse/atelier/pkg/statestore/memory"
)

func newTestGate(store statestore.StateStore, bus eventbus.EventPublisher) *Gate {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewGate(store, bus, Config{
		PollInterval:   5 * time.Millisecond,
		DefaultTimeout: 100 * time.Millisecond,
		SignalTTL:      time.Minute,
	}, logger)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) published() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

func TestGate_Await_ApproveSignal(t *testing.T) {
	store := memory.NewStore()
	gate := newTestGate(store, nil)
	ctx := context.Background()

	go func() {
		time.Sleep(15 * time.Millisecond)

		_ = gate.Resolve(ctx, "t1", models.SignalApprove)
	}()

	start := time.Now()
	approved, err := gate.Await(ctx, &models.PendingApproval{TaskID: "t1", StepName: "script_approval"}, time.Second)
	require.NoError(t, err)

	assert.True(t, approved)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	// Pending record and signal are both released.
	_, err = store.PendingApproval(ctx, "t1")
	assert.True(t, statestore.IsApprovalNotFound(err))

	_, ok, err := store.ApprovalSignal(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGate_Await_RejectSignal(t *testing.T) {
	store := memory.NewStore()
	gate := newTestGate(store, nil)
	ctx := context.Background()

	require.NoError(t, gate.Resolve(ctx, "t1", models.SignalReject))

	approved, err := gate.Await(ctx, &models.PendingApproval{TaskID: "t1", StepName: "visual_approval"}, time.Second)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestGate_Await_TimeoutReleasesRecord(t *testing.T) {
	store := memory.NewStore()
	gate := newTestGate(store, nil)
	ctx := context.Background()

	approved, err := gate.Await(ctx, &models.PendingApproval{TaskID: "t1", StepName: "script_approval"}, 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, approved)

	_, err = store.PendingApproval(ctx, "t1")
	assert.True(t, statestore.IsApprovalNotFound(err))
}

func TestGate_Await_RecordVisibleWhileSuspended(t *testing.T) {
	store := memory.NewStore()
	gate := newTestGate(store, nil)
	ctx := context.Background()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = gate.Await(ctx, &models.PendingApproval{
			TaskID:   "t1",
			StepName: "visual_approval",
			Context:  map[string]any{"qa_score": 0.72},
		}, time.Second)
	}()

	require.Eventually(t, func() bool {
		pending, err := gate.Pending(ctx)

		return err == nil && len(pending) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)

	pending, err := gate.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "visual_approval", pending[0].StepName)
	assert.False(t, pending[0].CreatedAt.IsZero())

	require.NoError(t, gate.Resolve(ctx, "t1", models.SignalApprove))
	<-done
}

func TestGate_Resolve_PublishesResolution(t *testing.T) {
	store := memory.NewStore()
	bus := &capturingPublisher{}
	gate := newTestGate(store, bus)
	ctx := context.Background()

	require.NoError(t, store.PutPendingApproval(ctx, &models.PendingApproval{
		TaskID:   "t1",
		StepName: "visual_approval",
	}))

	require.NoError(t, gate.Resolve(ctx, "t1", models.SignalApprove))

	published := bus.published()
	require.Len(t, published, 1)

	resolved, ok := published[0].(events.ApprovalResolved)
	require.True(t, ok)
	assert.Equal(t, events.ApprovalResolvedEvent, resolved.GetType())
	assert.Equal(t, "t1", resolved.TaskID)
	assert.Equal(t, "visual_approval", resolved.StepName)
	assert.Equal(t, models.SignalApprove, resolved.Signal)
}

func TestGate_Await_ContextCancellation(t *testing.T) {
	store := memory.NewStore()
	gate := newTestGate(store, nil)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := gate.Await(ctx, &models.PendingApproval{TaskID: "t1", StepName: "script_approval"}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Cleanup still ran despite the cancelled context.
	_, err = store.PendingApproval(context.Background(), "t1")
	assert.True(t, statestore.IsApprovalNotFound(err))
}
