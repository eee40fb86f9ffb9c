// Package web provides HTTP request and response types for the atelier
// API.
package web

import "github.com/voxmuse/atelier/pkg/models"

// RecordTransactionRequest represents the request body for recording a
// manual ledger transaction.
type RecordTransactionRequest struct {
	Type        models.TransactionType     `json:"type"        validate:"required,oneof=income expense"`
	Category    models.TransactionCategory `json:"category"    validate:"required"`
	Amount      float64                    `json:"amount"      validate:"required,gt=0"`
	Description string                     `json:"description" validate:"required"`
	Metadata    map[string]any             `json:"metadata,omitempty"`
}

// UpdateMoodRequest represents the request body for setting the
// entity's emotional state.
type UpdateMoodRequest struct {
	Valence   float64 `json:"valence"   validate:"gte=-1,lte=1"`
	Arousal   float64 `json:"arousal"   validate:"gte=0,lte=1"`
	Dominance float64 `json:"dominance" validate:"gte=0,lte=1"`
	Thought   string  `json:"current_thought,omitempty"`
}

// ApprovalResponse represents one suspended run in the pending list.
type ApprovalResponse struct {
	TaskID     string         `json:"task_id"`
	StepName   string         `json:"step_name"`
	Context    map[string]any `json:"context_data,omitempty"`
	PreviewRef string         `json:"preview_ref,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// HistoryResponse wraps a transaction history page.
type HistoryResponse struct {
	Account      string               `json:"account"`
	Transactions []models.Transaction `json:"transactions"`
}
