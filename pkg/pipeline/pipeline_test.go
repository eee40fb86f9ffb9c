package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/capabilities"
	"github.com/voxmuse/atelier/pkg/capabilities/sim"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/pipeline"
	"github.com/voxmuse/atelier/pkg/solvency"
	"github.com/voxmuse/atelier/pkg/statestore"
	"github.com/voxmuse/atelier/pkg/statestore/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWorld() *models.WorldRegistry {
	return &models.WorldRegistry{
		Locations: []models.Location{
			{ID: "loc-loft", Name: "Loft", Description: "sunlit loft with plants", ObjectIDs: []string{"obj-couch"}},
		},
	}
}

func testWardrobe() *models.WardrobeRegistry {
	return &models.WardrobeRegistry{
		Items: []models.WardrobeItem{
			{ID: "item-denim", Name: "Denim jacket", Description: "a faded denim jacket"},
		},
		Props: []models.Prop{
			{ID: "prop-mug", Name: "Mug"},
		},
	}
}

type harness struct {
	store  *memory.Store
	gate   *approval.Gate
	caps   *capabilities.Set
	config pipeline.Config
}

func newHarness(t *testing.T, balance float64) *harness {
	t.Helper()

	store := memory.NewStore()
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	require.NoError(t, store.PutWallet(context.Background(), &models.Wallet{
		Address:  "acct-main",
		Balance:  balance,
		Currency: "USD",
	}))

	return &harness{
		store: store,
		gate: approval.NewGate(store, nil, approval.Config{
			PollInterval:   5 * time.Millisecond,
			DefaultTimeout: time.Second,
			SignalTTL:      time.Minute,
		}, testLogger()),
		caps:   sim.NewSet(),
		config: pipeline.DefaultConfig(),
	}
}

func (h *harness) pipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	logger := testLogger()
	guard := solvency.NewGuard(nil, solvency.DefaultConfig(), logger)
	led := ledger.NewLedger(h.store, logger)

	return pipeline.New(h.store, guard, led, h.gate, h.caps, nil, h.config, logger)
}

func request() pipeline.Request {
	return pipeline.Request{
		TaskID:    "task-1",
		Account:   "acct-main",
		Intent:    "morning routine",
		SubjectID: "muse-ada",
		World:     testWorld(),
		Wardrobe:  testWardrobe(),
	}
}

func TestProduceHappyPath(t *testing.T) {
	h := newHarness(t, 10.0)
	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, models.StageDone, result.Stage)
	assert.True(t, result.Completed())
	assert.False(t, result.Degraded())
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, models.QAApproved, result.Verdict.Decision)
	assert.InDelta(t, 0.65, result.ActualCost, 0.0001)
	assert.Equal(t, "reviews/acct-main/task-1", result.StagedPath)
	require.NotNil(t, result.Artifacts)
	assert.NotEmpty(t, result.Artifacts.Video)

	wallet, err := h.store.Wallet(context.Background(), "acct-main")
	require.NoError(t, err)
	assert.InDelta(t, 9.35, wallet.Balance, 0.0001)

	history, err := h.store.History(context.Background(), "acct-main", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransactionExpense, history[0].Type)
	assert.InDelta(t, 0.65, history[0].Amount, 0.0001)
}

func TestProduceSolvencyDenialRejectsWithoutSpend(t *testing.T) {
	h := newHarness(t, 0.10)

	narrated := 0
	h.caps.Narrator = narratorFunc(func(ctx context.Context, topic string, mood *models.Mood) (*models.Script, error) {
		narrated++

		return sim.Narrator{}.GenerateNarrative(ctx, topic, mood)
	})

	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, models.StageRejected, result.Stage)
	assert.Contains(t, result.Reason, "HARD PROHIBITION")
	assert.Zero(t, narrated)

	wallet, err := h.store.Wallet(context.Background(), "acct-main")
	require.NoError(t, err)
	assert.InDelta(t, 0.10, wallet.Balance, 0.0001)
}

func TestProduceQARetryBudget(t *testing.T) {
	h := newHarness(t, 10.0)

	compares := 0
	h.caps.Critic = criticFunc(func(context.Context, []byte, []byte) (*models.QAReport, error) {
		compares++

		return &models.QAReport{
			IdentityScore: 0.60,
			SemanticScore: 0.60,
			Defects: []models.QADefect{
				{Area: "left hand", Severity: 0.4, Description: "extra finger", Action: models.DefectActionInpaint},
			},
		}, nil
	})

	edits := 0
	generates := 0
	h.caps.Studio = &countingStudio{
		inner:     sim.ImageStudio{},
		edits:     &edits,
		generates: &generates,
	}

	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)

	// One initial generation, then a repair per failed verdict until the
	// budget runs out; the final candidate ships degraded.
	assert.Equal(t, 1, generates)
	assert.Equal(t, h.config.MaxRetries-1, edits)
	assert.Equal(t, h.config.MaxRetries, compares)
	assert.Equal(t, h.config.MaxRetries, result.Attempts)
	assert.Equal(t, models.StageDone, result.Stage)
	assert.True(t, result.Degraded())
	assert.Equal(t, models.QARepairRequired, result.Verdict.Decision)
}

func TestProduceSevereDefectRejects(t *testing.T) {
	h := newHarness(t, 10.0)

	h.caps.Critic = criticFunc(func(context.Context, []byte, []byte) (*models.QAReport, error) {
		return &models.QAReport{
			IdentityScore: 0.95,
			Defects: []models.QADefect{
				{Area: "face", Severity: 0.95, Description: "wrong identity"},
			},
		}, nil
	})

	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, models.StageRejected, result.Stage)
	assert.Contains(t, result.Reason, "severity")
	assert.Equal(t, models.QARejected, result.Verdict.Decision)
}

func TestProduceCollaboratorFailurePropagates(t *testing.T) {
	h := newHarness(t, 10.0)

	h.caps.Narrator = narratorFunc(func(context.Context, string, *models.Mood) (*models.Script, error) {
		return nil, errors.New("narrative service down")
	})

	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "narrative service down")
	assert.Equal(t, models.StageFailed, result.Stage)
}

func TestProduceStagingFailureRollsBackSettlement(t *testing.T) {
	h := newHarness(t, 10.0)

	h.caps.Stager = stagerFunc(func(context.Context, *models.Artifacts, string) (string, error) {
		return "", errors.New("review storage unavailable")
	})

	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, models.StageFailed, result.Stage)

	// The settlement expense was compensated, so the balance is intact.
	wallet, err := h.store.Wallet(context.Background(), "acct-main")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, wallet.Balance, 0.0001)

	history, err := h.store.History(context.Background(), "acct-main", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.CategoryRollback, history[1].Category)
}

func TestProduceScriptApprovalApproved(t *testing.T) {
	h := newHarness(t, 10.0)
	h.config.RequireScriptApproval = true
	h.config.ApprovalTimeout = time.Second

	p := h.pipeline(t)

	go func() {
		ctx := context.Background()

		for {
			pending, err := h.gate.Pending(ctx)
			if err == nil && len(pending) == 1 {
				_ = h.gate.Resolve(ctx, pending[0].TaskID, models.SignalApprove)

				return
			}

			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.StageDone, result.Stage)
}

func TestProduceVisualApprovalCarriesVerdictAndPreview(t *testing.T) {
	h := newHarness(t, 10.0)
	h.config.RequireVisualApproval = true
	h.config.ApprovalTimeout = time.Second

	h.caps.Critic = criticFunc(func(context.Context, []byte, []byte) (*models.QAReport, error) {
		return &models.QAReport{
			IdentityScore: 0.92,
			Defects: []models.QADefect{
				{Area: "background", Severity: 0.2, Description: "slight blur"},
			},
		}, nil
	})

	p := h.pipeline(t)

	captured := make(chan models.PendingApproval, 1)

	go func() {
		ctx := context.Background()

		for {
			pending, err := h.gate.Pending(ctx)
			if err == nil && len(pending) == 1 {
				captured <- pending[0]
				_ = h.gate.Resolve(ctx, pending[0].TaskID, models.SignalApprove)

				return
			}

			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.StageDone, result.Stage)

	// The suspension carried the verdict and a viewable preview.
	pending := <-captured
	assert.Equal(t, "visual_approval", pending.StepName)
	assert.Equal(t, 1, pending.Context["attempts"])
	assert.InDelta(t, 0.92, pending.Context["identity_score"].(float64), 0.0001)

	defects, ok := pending.Context["defects"].([]models.QADefect)
	require.True(t, ok)
	require.Len(t, defects, 1)
	assert.Equal(t, "background", defects[0].Area)

	assert.Equal(t, "reviews/acct-main/task-1-preview", pending.PreviewRef)
}

func TestProduceScriptApprovalTimeoutRejects(t *testing.T) {
	h := newHarness(t, 10.0)
	h.config.RequireScriptApproval = true
	h.config.ApprovalTimeout = 30 * time.Millisecond

	p := h.pipeline(t)

	result, err := p.Produce(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, models.StageRejected, result.Stage)
	assert.Contains(t, result.Reason, "script")

	// The pending record was released on the timeout path.
	pending, err := h.gate.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProduceSettlementFailureKeepsArtifacts(t *testing.T) {
	h := newHarness(t, 10.0)
	p := pipelineWithStore(t, h, &brokenWalletStore{Store: h.store})

	result, err := p.Produce(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settlement failed")

	// Artifacts survive the failed settlement.
	assert.Equal(t, models.StageDone, result.Stage)
	require.NotNil(t, result.Artifacts)
	assert.NotEmpty(t, result.StagedPath)
}

func pipelineWithStore(t *testing.T, h *harness, store *brokenWalletStore) *pipeline.Pipeline {
	t.Helper()

	logger := testLogger()
	guard := solvency.NewGuard(nil, solvency.DefaultConfig(), logger)
	led := ledger.NewLedger(store, logger)

	return pipeline.New(store, guard, led, h.gate, h.caps, nil, h.config, logger)
}

type brokenWalletStore struct {
	*memory.Store
}

func (s *brokenWalletStore) UpdateWallet(context.Context, string, statestore.WalletUpdate) error {
	return errors.New("wallet backend unavailable")
}

type narratorFunc func(ctx context.Context, topic string, mood *models.Mood) (*models.Script, error)

func (f narratorFunc) GenerateNarrative(ctx context.Context, topic string, mood *models.Mood) (*models.Script, error) {
	return f(ctx, topic, mood)
}

type criticFunc func(ctx context.Context, candidate, reference []byte) (*models.QAReport, error)

func (f criticFunc) CompareIdentity(ctx context.Context, candidate, reference []byte) (*models.QAReport, error) {
	return f(ctx, candidate, reference)
}

type stagerFunc func(ctx context.Context, artifacts *models.Artifacts, account string) (string, error)

func (f stagerFunc) StageForReview(ctx context.Context, artifacts *models.Artifacts, account string) (string, error) {
	return f(ctx, artifacts, account)
}

type countingStudio struct {
	inner     sim.ImageStudio
	edits     *int
	generates *int
}

func (s *countingStudio) GenerateImage(ctx context.Context, prompt string, refs capabilities.ImageRefs) ([]byte, error) {
	*s.generates++

	return s.inner.GenerateImage(ctx, prompt, refs)
}

func (s *countingStudio) EditImage(ctx context.Context, prompt string, base []byte, mask models.BoundingBox) ([]byte, error) {
	*s.edits++

	return s.inner.EditImage(ctx, prompt, base, mask)
}

func (s *countingStudio) DetectRegion(ctx context.Context, image []byte, feature string) (*models.BoundingBox, error) {
	return s.inner.DetectRegion(ctx, image, feature)
}
