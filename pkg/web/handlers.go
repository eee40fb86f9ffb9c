// Package web provides HTTP handlers and REST API endpoints for
// approvals, accounts and mood.
package web

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/voxmuse/atelier/pkg/approval"
	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/solvency"
	"github.com/voxmuse/atelier/pkg/statestore"
)

const defaultHistoryCount = 50

type APIHandlers struct {
	store     statestore.StateStore
	ledger    *ledger.Ledger
	guard     *solvency.Guard
	gate      *approval.Gate
	validator *validator.Validate
}

func NewAPIHandlers(
	store statestore.StateStore,
	led *ledger.Ledger,
	guard *solvency.Guard,
	gate *approval.Gate,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		ledger:    led,
		guard:     guard,
		gate:      gate,
		validator: validate,
	}
}

func (h *APIHandlers) GetPendingApprovals(c fiber.Ctx) error {
	pending, err := h.gate.Pending(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	responses := make([]ApprovalResponse, 0, len(pending))
	for _, p := range pending {
		responses = append(responses, ApprovalResponse{
			TaskID:     p.TaskID,
			StepName:   p.StepName,
			Context:    p.Context,
			PreviewRef: p.PreviewRef,
			CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"approvals": responses,
		"count":     len(responses),
	})
}

func (h *APIHandlers) ApproveTask(c fiber.Ctx) error {
	return h.resolve(c, models.SignalApprove)
}

func (h *APIHandlers) RejectTask(c fiber.Ctx) error {
	return h.resolve(c, models.SignalReject)
}

func (h *APIHandlers) resolve(c fiber.Ctx, signal models.ApprovalSignal) error {
	taskID := c.Params("taskID")
	if taskID == "" {
		return badRequest(c, "task id is required")
	}

	// Resolution only makes sense for a task that is actually waiting.
	if _, err := h.store.PendingApproval(c.Context(), taskID); err != nil {
		return handleStoreError(c, err)
	}

	if err := h.gate.Resolve(c.Context(), taskID, signal); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"task_id": taskID,
		"signal":  signal,
	})
}

func (h *APIHandlers) GetWallet(c fiber.Ctx) error {
	wallet, err := h.store.Wallet(c.Context(), c.Params("address"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(wallet)
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	address := c.Params("address")

	count := defaultHistoryCount
	if countStr := c.Query("count"); countStr != "" {
		parsed, err := strconv.Atoi(countStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "count must be a positive integer")
		}

		count = parsed
	}

	// An account with no history is distinguishable from an unknown one.
	if _, err := h.store.Wallet(c.Context(), address); err != nil {
		return handleStoreError(c, err)
	}

	history, err := h.ledger.History(c.Context(), address, count)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(HistoryResponse{
		Account:      address,
		Transactions: history,
	})
}

func (h *APIHandlers) GetFinancialSummary(c fiber.Ctx) error {
	address := c.Params("address")

	wallet, err := h.store.Wallet(c.Context(), address)
	if err != nil {
		return handleStoreError(c, err)
	}

	history, err := h.ledger.History(c.Context(), address, defaultHistoryCount)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(h.guard.Summarize(wallet, history))
}

func (h *APIHandlers) RecordTransaction(c fiber.Ctx) error {
	var req RecordTransactionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	tx, err := h.ledger.Record(c.Context(), c.Params("address"),
		req.Type, req.Category, req.Amount, req.Description, req.Metadata)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tx)
}

func (h *APIHandlers) GetMood(c fiber.Ctx) error {
	mood, err := h.store.Mood(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(mood)
}

func (h *APIHandlers) UpdateMood(c fiber.Ctx) error {
	var req UpdateMoodRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	mood := &models.Mood{
		Valence:     req.Valence,
		Arousal:     req.Arousal,
		Dominance:   req.Dominance,
		Thought:     req.Thought,
		LastUpdated: time.Now().UTC(),
	}

	if err := h.store.PutMood(c.Context(), mood); err != nil {
		return internalError(c, err)
	}

	return c.JSON(mood)
}
