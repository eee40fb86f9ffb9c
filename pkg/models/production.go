package models

import "time"

// ProductionStage identifies where a pipeline run currently is.
type ProductionStage string

const (
	StageSolvencyCheck  ProductionStage = "solvency_check"
	StageNarrative      ProductionStage = "narrative"
	StageLayout         ProductionStage = "layout"
	StageScriptApproval ProductionStage = "script_approval"
	StageStyle          ProductionStage = "style"
	StageVisualQA       ProductionStage = "visual_qa"
	StageVisualApproval ProductionStage = "visual_approval"
	StageVideo          ProductionStage = "video"
	StageSettlement     ProductionStage = "settlement"
	StageStaging        ProductionStage = "staging"
	StageDone           ProductionStage = "done"
	StageRejected       ProductionStage = "rejected"
	StageFailed         ProductionStage = "failed"
)

// Terminal reports whether the stage ends a run.
func (s ProductionStage) Terminal() bool {
	return s == StageDone || s == StageRejected || s == StageFailed
}

// ProductionState is the mutable working state of one pipeline run. It
// is created at pipeline start, owned by a single run, and discarded on
// completion or unrecoverable failure.
type ProductionState struct {
	TaskID    string          `json:"task_id"`
	Stage     ProductionStage `json:"stage"`
	Intent    string          `json:"intent"`
	Script    *Script         `json:"script,omitempty"`
	Layout    *SceneLayout    `json:"layout,omitempty"`
	Look      *LookSelection  `json:"look,omitempty"`
	Prompt    string          `json:"prompt,omitempty"`
	Candidate []byte          `json:"-"`
	Verdict   *QAReport       `json:"verdict,omitempty"`
	Attempts  int             `json:"attempts"`
	StartedAt time.Time       `json:"started_at"`
}

// Artifacts are the finished outputs handed to the staging collaborator.
type Artifacts struct {
	TaskID  string         `json:"task_id"`
	Title   string         `json:"title"`
	Caption string         `json:"caption"`
	Video   []byte         `json:"-"`
	Poster  []byte         `json:"-"`
	Layout  *SceneLayout   `json:"layout,omitempty"`
	Look    *LookSelection `json:"look,omitempty"`
}

// ProductionResult is the outcome of one pipeline run. Degraded
// completion (QA retries exhausted, best candidate kept) is
// distinguishable from a clean approval through the retained verdict.
type ProductionResult struct {
	TaskID     string          `json:"task_id"`
	Stage      ProductionStage `json:"stage"`
	Reason     string          `json:"reason,omitempty"`
	Artifacts  *Artifacts      `json:"artifacts,omitempty"`
	Verdict    *QAReport       `json:"verdict,omitempty"`
	Attempts   int             `json:"attempts"`
	ActualCost float64         `json:"actual_cost"`
	StagedPath string          `json:"staged_path,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Completed reports whether the run produced artifacts, clean or degraded.
func (r *ProductionResult) Completed() bool {
	return r.Stage == StageDone
}

// Degraded reports whether the run finished on a best-effort candidate
// after exhausting QA repairs.
func (r *ProductionResult) Degraded() bool {
	return r.Stage == StageDone && r.Verdict != nil && r.Verdict.Decision != QAApproved
}
