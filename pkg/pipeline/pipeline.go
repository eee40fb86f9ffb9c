// Package pipeline runs the staged content production flow: solvency
// check, narrative, layout, styling, the visual QA repair loop, video,
// financial settlement and staging, with optional human approval gates.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/capabilities"
	"github.com/voxmuse/atelier/pkg/eventbus"
	"github.com/voxmuse/atelier/pkg/events"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/otelhelper"
	"github.com/voxmuse/atelier/pkg/solvency"
	"github.com/voxmuse/atelier/pkg/statestore"
)

// Config carries the pipeline's policy knobs.
type Config struct {
	// MaxRetries bounds the visual QA loop: one initial generation plus
	// up to MaxRetries-1 repairs.
	MaxRetries int
	// ConsistencyThreshold is the minimum identity score for a clean
	// approval.
	ConsistencyThreshold float64
	// SeverityCutoff rejects a candidate outright when any defect
	// reaches it.
	SeverityCutoff float64
	// ImageUnitCost and VideoUnitCost price one generation call each.
	ImageUnitCost float64
	VideoUnitCost float64
	// HistoryWindow is how many recent transactions the solvency guard
	// sees.
	HistoryWindow int
	// RequireScriptApproval and RequireVisualApproval gate the two
	// optional human checkpoints.
	RequireScriptApproval bool
	RequireVisualApproval bool
	ApprovalTimeout       time.Duration
}

// DefaultConfig returns the production policy defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           3,
		ConsistencyThreshold: 0.75,
		SeverityCutoff:       0.9,
		ImageUnitCost:        0.15,
		VideoUnitCost:        0.50,
		HistoryWindow:        50,
		ApprovalTimeout:      15 * time.Minute,
	}
}

// Request describes one production to run.
type Request struct {
	TaskID    string
	Account   string
	Intent    string
	SubjectID string
	World     *models.WorldRegistry
	Wardrobe  *models.WardrobeRegistry
}

// Pipeline executes production requests end to end. Each run owns its
// working state; a Pipeline is safe for concurrent Produce calls.
type Pipeline struct {
	store  statestore.StateStore
	guard  *solvency.Guard
	ledger *ledger.Ledger
	gate   *approval.Gate
	caps   *capabilities.Set
	bus    eventbus.EventPublisher
	config Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a pipeline. bus may be nil when no event transport is
// configured.
func New(
	store statestore.StateStore,
	guard *solvency.Guard,
	led *ledger.Ledger,
	gate *approval.Gate,
	caps *capabilities.Set,
	bus eventbus.EventPublisher,
	config Config,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:  store,
		guard:  guard,
		ledger: led,
		gate:   gate,
		caps:   caps,
		bus:    bus,
		config: config,
		logger: logger.With("module", "pipeline"),
		tracer: otel.Tracer("github.com/voxmuse/atelier/pkg/pipeline"),
	}
}

// EstimateCost returns the projected spend for one run before it starts.
func (p *Pipeline) EstimateCost() float64 {
	return p.config.ImageUnitCost + p.config.VideoUnitCost
}

// Produce runs the full staged flow for one request.
//
// Policy rejections (solvency denial, reviewer rejection, unrepairable
// candidate) end the run with a rejected result and a nil error.
// Collaborator and infrastructure failures are returned as errors.
func (p *Pipeline) Produce(ctx context.Context, req Request) (*models.ProductionResult, error) {
	if req.TaskID == "" {
		req.TaskID = "prod-" + uuid.New().String()[:8]
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.produce", trace.WithAttributes(
		attribute.String(otelhelper.TaskIDKey, req.TaskID),
		attribute.String(otelhelper.AccountKey, req.Account),
	))
	defer span.End()

	logger := p.logger.With("task_id", req.TaskID, "account", req.Account)
	started := time.Now()

	state := &models.ProductionState{
		TaskID:    req.TaskID,
		Stage:     models.StageSolvencyCheck,
		Intent:    req.Intent,
		StartedAt: started,
	}
	result := &models.ProductionResult{TaskID: req.TaskID}

	defer func() {
		result.Duration = time.Since(started)
		span.SetAttributes(attribute.String(otelhelper.StageKey, string(result.Stage)))
	}()

	estimate := p.EstimateCost()

	startedEvt := events.ProductionStarted{
		BaseEvent:     events.NewBaseEvent(events.ProductionStartedEvent, req.TaskID),
		Intent:        req.Intent,
		EstimatedCost: estimate,
	}
	startedEvt.Account = req.Account
	p.publish(ctx, req.TaskID, startedEvt)

	logger.InfoContext(ctx, "Production started", "intent", req.Intent, "estimated_cost", estimate)

	// Solvency gate. Denial is a policy outcome, not an error.
	check, err := p.verifySolvency(ctx, req, estimate)
	if err != nil {
		return p.fail(ctx, span, result, state.Stage, err)
	}

	if !check.Authorized {
		return p.reject(ctx, result, models.StageSolvencyCheck, check.Reasoning)
	}

	p.stageCompleted(ctx, req, models.StageSolvencyCheck, started)

	mood := p.currentMood(ctx)

	// Narrative.
	state.Stage = models.StageNarrative

	script, err := p.caps.Narrator.GenerateNarrative(ctx, req.Intent, mood)
	if err != nil {
		return p.fail(ctx, span, result, state.Stage, fmt.Errorf("narrative generation: %w", err))
	}

	state.Script = script
	p.stageCompleted(ctx, req, models.StageNarrative, started)

	// Layout.
	state.Stage = models.StageLayout

	layout, err := p.caps.Architect.PlanLayout(ctx, script, req.World)
	if err != nil {
		return p.fail(ctx, span, result, state.Stage, fmt.Errorf("scene layout: %w", err))
	}

	state.Layout = layout
	p.stageCompleted(ctx, req, models.StageLayout, started)

	// Optional human review of the script before any visual spend.
	if p.config.RequireScriptApproval {
		state.Stage = models.StageScriptApproval

		approved, err := p.awaitApproval(ctx, req, "script_approval", map[string]any{
			"title":  script.Title,
			"script": script.Body,
		}, "")
		if err != nil {
			return p.fail(ctx, span, result, state.Stage, err)
		}

		if !approved {
			return p.reject(ctx, result, models.StageScriptApproval, "script not approved by reviewer")
		}

		p.stageCompleted(ctx, req, models.StageScriptApproval, started)
	}

	// Style.
	state.Stage = models.StageStyle

	look, err := p.caps.Stylist.SelectLook(ctx, script, layout, mood, req.Wardrobe)
	if err != nil {
		return p.fail(ctx, span, result, state.Stage, fmt.Errorf("look selection: %w", err))
	}

	state.Look = look
	state.Prompt = buildPrompt(state)
	p.stageCompleted(ctx, req, models.StageStyle, started)

	// Visual QA loop.
	state.Stage = models.StageVisualQA

	actualCost, rejection, err := p.visualQALoop(ctx, req, state)
	if err != nil {
		result.ActualCost = actualCost

		return p.fail(ctx, span, result, state.Stage, err)
	}

	result.Attempts = state.Attempts
	result.Verdict = state.Verdict
	result.ActualCost = actualCost

	if rejection != "" {
		return p.reject(ctx, result, models.StageVisualQA, rejection)
	}

	p.stageCompleted(ctx, req, models.StageVisualQA, started)

	// Optional human review of the final still. The suspension carries
	// the full QA verdict and a viewable copy of the candidate.
	if p.config.RequireVisualApproval {
		state.Stage = models.StageVisualApproval

		approved, err := p.awaitApproval(ctx, req, "visual_approval", map[string]any{
			"attempts":       state.Attempts,
			"identity_score": state.Verdict.IdentityScore,
			"defects":        state.Verdict.Defects,
		}, p.stagePreview(ctx, req, state, script))
		if err != nil {
			return p.fail(ctx, span, result, state.Stage, err)
		}

		if !approved {
			return p.reject(ctx, result, models.StageVisualApproval, "visual not approved by reviewer")
		}

		p.stageCompleted(ctx, req, models.StageVisualApproval, started)
	}

	// Video.
	state.Stage = models.StageVideo

	video, err := p.caps.Director.GenerateVideo(ctx, state.Prompt, state.Candidate)
	if err != nil {
		return p.fail(ctx, span, result, state.Stage, fmt.Errorf("video generation: %w", err))
	}

	result.ActualCost += p.config.VideoUnitCost
	p.stageCompleted(ctx, req, models.StageVideo, started)

	// Settlement. A failed settlement is surfaced to the caller but
	// never discards the finished artifacts.
	state.Stage = models.StageSettlement

	settledTx, settleErr := p.settle(ctx, req, result.ActualCost)
	if settleErr != nil {
		logger.ErrorContext(ctx, "Settlement failed, artifacts kept", "error", settleErr)
	} else {
		p.stageCompleted(ctx, req, models.StageSettlement, started)
	}

	// Staging.
	state.Stage = models.StageStaging

	artifacts := &models.Artifacts{
		TaskID:  req.TaskID,
		Title:   script.Title,
		Caption: script.Caption,
		Video:   video,
		Poster:  state.Candidate,
		Layout:  layout,
		Look:    look,
	}

	stagedPath, err := p.caps.Stager.StageForReview(ctx, artifacts, req.Account)
	if err != nil {
		if settledTx != nil {
			if _, rbErr := p.ledger.Rollback(ctx, req.Account, settledTx, "staging failed"); rbErr != nil {
				logger.ErrorContext(ctx, "Rollback after staging failure also failed", "error", rbErr)
			}
		}

		return p.fail(ctx, span, result, state.Stage, fmt.Errorf("staging: %w", err))
	}

	p.stageCompleted(ctx, req, models.StageStaging, started)

	result.Stage = models.StageDone
	result.Artifacts = artifacts
	result.StagedPath = stagedPath

	completedEvt := events.ProductionCompleted{
		BaseEvent:  events.NewBaseEvent(events.ProductionCompletedEvent, req.TaskID),
		StagedPath: stagedPath,
		Degraded:   result.Degraded(),
		ActualCost: result.ActualCost,
		Duration:   time.Since(started),
	}
	completedEvt.Account = req.Account
	p.publish(ctx, req.TaskID, completedEvt)

	logger.InfoContext(ctx, "Production completed",
		"staged_path", stagedPath,
		"degraded", result.Degraded(),
		"actual_cost", result.ActualCost,
		"attempts", result.Attempts,
	)

	if settleErr != nil {
		return result, fmt.Errorf("production %s finished but settlement failed: %w", req.TaskID, settleErr)
	}

	return result, nil
}

func (p *Pipeline) verifySolvency(ctx context.Context, req Request, estimate float64) (*models.SolvencyCheck, error) {
	wallet, err := p.store.Wallet(ctx, req.Account)
	if err != nil {
		return nil, fmt.Errorf("loading wallet for solvency check: %w", err)
	}

	history, err := p.ledger.History(ctx, req.Account, p.config.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("loading history for solvency check: %w", err)
	}

	return p.guard.Verify(ctx, wallet, history, estimate)
}

// currentMood is flavor for the creative calls; an unavailable mood
// never blocks production.
func (p *Pipeline) currentMood(ctx context.Context) *models.Mood {
	mood, err := p.store.Mood(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "Mood unavailable, continuing without it", "error", err)

		return nil
	}

	return mood
}

// visualQALoop generates a candidate and repairs it until it passes the
// consistency threshold or the retry budget runs out. It returns the
// spend accrued, a non-empty rejection reason for unrepairable
// candidates, or an error on collaborator failure.
func (p *Pipeline) visualQALoop(ctx context.Context, req Request, state *models.ProductionState) (float64, string, error) {
	refs, err := p.gatherRefs(ctx, req, state)
	if err != nil {
		return 0, "", err
	}

	candidate, err := p.caps.Studio.GenerateImage(ctx, state.Prompt, refs)
	if err != nil {
		return 0, "", fmt.Errorf("image generation: %w", err)
	}

	state.Candidate = candidate
	cost := p.config.ImageUnitCost

	for attempt := 1; ; attempt++ {
		report, err := p.caps.Critic.CompareIdentity(ctx, state.Candidate, refs.Identity)
		if err != nil {
			return cost, "", fmt.Errorf("identity comparison: %w", err)
		}

		// The decision is derived here from the numeric verdict; the
		// critic's own label is not trusted.
		switch {
		case report.MaxSeverity() >= p.config.SeverityCutoff:
			report.Decision = models.QARejected
		case report.IdentityScore >= p.config.ConsistencyThreshold:
			report.Decision = models.QAApproved
		default:
			report.Decision = models.QARepairRequired
		}

		state.Verdict = report
		state.Attempts = attempt

		verdictEvt := events.ProductionQAVerdict{
			BaseEvent: events.NewBaseEvent(events.ProductionQAVerdictEvent, req.TaskID),
			Attempt:   attempt,
			Decision:  report.Decision,
			Score:     report.IdentityScore,
		}
		verdictEvt.Account = req.Account
		p.publish(ctx, req.TaskID, verdictEvt)

		p.logger.InfoContext(ctx, "QA verdict",
			"task_id", req.TaskID,
			"attempt", attempt,
			"decision", report.Decision,
			"identity_score", report.IdentityScore,
		)

		switch report.Decision {
		case models.QARejected:
			return cost, fmt.Sprintf("candidate rejected: defect severity %.2f exceeds cutoff %.2f",
				report.MaxSeverity(), p.config.SeverityCutoff), nil
		case models.QAApproved:
			return cost, "", nil
		case models.QARepairRequired:
		}

		if attempt >= p.config.MaxRetries {
			// Best effort: the last candidate ships with its verdict
			// attached so the degradation stays visible downstream.
			p.logger.WarnContext(ctx, "QA retries exhausted, keeping best-effort candidate",
				"task_id", req.TaskID, "attempts", attempt)

			return cost, "", nil
		}

		repairCost, err := p.repair(ctx, state, refs)
		cost += repairCost

		if err != nil {
			return cost, "", err
		}
	}
}

// repair applies a localized edit when the verdict names a repairable
// defect and its region can be found; otherwise it regenerates from the
// prompt.
func (p *Pipeline) repair(ctx context.Context, state *models.ProductionState, refs capabilities.ImageRefs) (float64, error) {
	if defect := state.Verdict.RepairableDefect(); defect != nil {
		box, err := p.caps.Studio.DetectRegion(ctx, state.Candidate, defect.Area)
		if err != nil {
			return 0, fmt.Errorf("region detection: %w", err)
		}

		if box != nil {
			edited, err := p.caps.Studio.EditImage(ctx, repairPrompt(defect), state.Candidate, *box)
			if err != nil {
				return p.config.ImageUnitCost, fmt.Errorf("image edit: %w", err)
			}

			state.Candidate = edited

			return p.config.ImageUnitCost, nil
		}

		p.logger.WarnContext(ctx, "Defect region not found, regenerating",
			"task_id", state.TaskID, "area", defect.Area)
	}

	regenerated, err := p.caps.Studio.GenerateImage(ctx, state.Prompt, refs)
	if err != nil {
		return p.config.ImageUnitCost, fmt.Errorf("image regeneration: %w", err)
	}

	state.Candidate = regenerated

	return p.config.ImageUnitCost, nil
}

func (p *Pipeline) gatherRefs(ctx context.Context, req Request, state *models.ProductionState) (capabilities.ImageRefs, error) {
	var refs capabilities.ImageRefs

	identity, err := p.caps.Assets.IdentityReference(ctx, req.SubjectID)
	if err != nil {
		return refs, fmt.Errorf("loading identity reference: %w", err)
	}

	refs.Identity = identity

	location, err := p.caps.Assets.LocationReference(ctx, state.Layout.LocationID)
	if err != nil {
		return refs, fmt.Errorf("loading location reference: %w", err)
	}

	refs.Location = location

	items, err := p.caps.Assets.ItemReferences(ctx, state.Look.ItemIDs)
	if err != nil {
		return refs, fmt.Errorf("loading item references: %w", err)
	}

	refs.Items = items

	return refs, nil
}

func (p *Pipeline) settle(ctx context.Context, req Request, amount float64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, nil
	}

	tx, err := p.ledger.Record(ctx, req.Account, models.TransactionExpense, models.CategoryAPICost,
		amount, "production "+req.TaskID, map[string]any{"task_id": req.TaskID})
	if err != nil {
		return nil, err
	}

	settledEvt := events.ProductionSettled{
		BaseEvent:     events.NewBaseEvent(events.ProductionSettledEvent, req.TaskID),
		TransactionID: tx.ID,
		Amount:        amount,
	}
	settledEvt.Account = req.Account

	if wallet, werr := p.store.Wallet(ctx, req.Account); werr == nil {
		settledEvt.Balance = wallet.Balance
	}

	p.publish(ctx, req.TaskID, settledEvt)

	return tx, nil
}

// stagePreview parks the current candidate where a reviewer can see it
// and returns the reference. The preview is advisory, so a staging
// failure never blocks the wait.
func (p *Pipeline) stagePreview(ctx context.Context, req Request, state *models.ProductionState, script *models.Script) string {
	preview := &models.Artifacts{
		TaskID: req.TaskID + "-preview",
		Title:  script.Title,
		Poster: state.Candidate,
		Layout: state.Layout,
		Look:   state.Look,
	}

	ref, err := p.caps.Stager.StageForReview(ctx, preview, req.Account)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to stage review preview",
			"task_id", req.TaskID, "error", err)

		return ""
	}

	return ref
}

func (p *Pipeline) awaitApproval(ctx context.Context, req Request, step string, contextData map[string]any, previewRef string) (bool, error) {
	reqEvt := events.ApprovalRequested{
		BaseEvent:  events.NewBaseEvent(events.ApprovalRequestedEvent, req.TaskID),
		StepName:   step,
		PreviewRef: previewRef,
	}
	reqEvt.Account = req.Account
	p.publish(ctx, req.TaskID, reqEvt)

	return p.gate.Await(ctx, &models.PendingApproval{
		TaskID:     req.TaskID,
		StepName:   step,
		Context:    contextData,
		PreviewRef: previewRef,
	}, p.config.ApprovalTimeout)
}

func (p *Pipeline) reject(ctx context.Context, result *models.ProductionResult, stage models.ProductionStage, reason string) (*models.ProductionResult, error) {
	result.Stage = models.StageRejected
	result.Reason = reason

	evt := events.ProductionRejected{
		BaseEvent: events.NewBaseEvent(events.ProductionRejectedEvent, result.TaskID),
		Stage:     stage,
		Reason:    reason,
	}
	p.publish(ctx, result.TaskID, evt)

	p.logger.InfoContext(ctx, "Production rejected",
		"task_id", result.TaskID, "stage", stage, "reason", reason)

	return result, nil
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, result *models.ProductionResult, stage models.ProductionStage, err error) (*models.ProductionResult, error) {
	result.Stage = models.StageFailed
	result.Reason = err.Error()

	otelhelper.SetError(span, err, attribute.String(otelhelper.StageKey, string(stage)))

	evt := events.ProductionFailed{
		BaseEvent: events.NewBaseEvent(events.ProductionFailedEvent, result.TaskID),
		Stage:     stage,
		Error:     err.Error(),
	}
	p.publish(ctx, result.TaskID, evt)

	p.logger.ErrorContext(ctx, "Production failed",
		"task_id", result.TaskID, "stage", stage, "error", err)

	return result, err
}

func (p *Pipeline) stageCompleted(ctx context.Context, req Request, stage models.ProductionStage, started time.Time) {
	evt := events.ProductionStageCompleted{
		BaseEvent: events.NewBaseEvent(events.ProductionStageCompletedEvent, req.TaskID),
		Stage:     stage,
		Duration:  time.Since(started),
	}
	evt.Account = req.Account
	p.publish(ctx, req.TaskID, evt)
}

func (p *Pipeline) publish(ctx context.Context, key string, event eventbus.Event) {
	if p.bus == nil {
		return
	}

	if err := p.bus.Publish(ctx, key, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func repairPrompt(defect *models.QADefect) string {
	return fmt.Sprintf("Fix the %s: %s. Keep everything outside the region unchanged.",
		defect.Area, defect.Description)
}

func buildPrompt(state *models.ProductionState) string {
	prompt := state.Layout.Description
	if state.Look.VisualDetails != "" {
		prompt += " Wearing " + state.Look.VisualDetails + "."
	}

	if state.Script.Title != "" {
		prompt += " Scene for \"" + state.Script.Title + "\"."
	}

	return prompt
}
