package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/voxmuse/atelier/pkg/ledger"
	"github.com/voxmuse/atelier/pkg/statestore"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// NotFoundHandler is the fallback route for paths no handler claims.
func NotFoundHandler(c fiber.Ctx) error {
	return notFound(c, "resource not found")
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleStoreError provides typed error handling for state store and
// ledger errors.
func handleStoreError(c fiber.Ctx, err error) error {
	switch {
	case statestore.IsWalletNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("wallet_not_found").
			WithDetail("wallet not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case statestore.IsApprovalNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("approval_not_found").
			WithDetail("pending approval not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, ledger.ErrRetryBudgetExhausted):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("commit_conflict").
			WithDetail("wallet commit kept losing races, try again")

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
