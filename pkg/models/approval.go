package models

import "time"

// ApprovalSignal is the externally supplied resolution for a pending
// approval.
type ApprovalSignal string

const (
	SignalApprove ApprovalSignal = "approve"
	SignalReject  ApprovalSignal = "reject"
)

// PendingApproval is a pipeline run suspended at a human checkpoint.
// At most one pending approval exists per task id; the record is deleted
// on every resolution path, timeout included.
type PendingApproval struct {
	TaskID     string         `json:"task_id"   validate:"required"`
	StepName   string         `json:"step_name" validate:"required"`
	Context    map[string]any `json:"context_data,omitempty"`
	PreviewRef string         `json:"preview_ref,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
