// Package solvency decides whether a prospective expense is financially
// permitted: a rolling-window circuit breaker, an advisory strategist,
// and a non-negotiable hard balance constraint, in that order.
package solvency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxmuse/atelier/pkg/models"
)

// Advisor is the strategic reasoning step consulted after the circuit
// breaker. Its answer is advisory: it can deny a spend, but it can
// never authorize one the hard constraint forbids.
type Advisor interface {
	Advise(ctx context.Context, wallet *models.Wallet, history []models.Transaction, estimatedCost float64) (bool, string, error)
}

// Config carries the guard's policy constants.
type Config struct {
	// HourlyLimit is the maximum total expense allowed inside the window.
	HourlyLimit float64
	// Window is the trailing period the circuit breaker sums over.
	Window time.Duration
}

// DefaultConfig mirrors the production policy defaults.
func DefaultConfig() Config {
	return Config{
		HourlyLimit: 5.0,
		Window:      time.Hour,
	}
}

// Guard verifies solvency for prospective expenditures. Verify has no
// side effects: it neither reserves funds nor writes to the ledger.
type Guard struct {
	advisor Advisor
	config  Config
	logger  *slog.Logger
}

// NewGuard creates a solvency guard. advisor may be nil, in which case
// the advisory step is skipped.
func NewGuard(advisor Advisor, config Config, logger *slog.Logger) *Guard {
	return &Guard{
		advisor: advisor,
		config:  config,
		logger:  logger.With("module", "solvency_guard"),
	}
}

// Verify runs the three-step authorization for an estimated cost.
//
// The circuit breaker short-circuits before the (more expensive)
// advisory step. The hard constraint is evaluated last and always wins:
// no advisory approval can authorize a negative projected balance.
func (g *Guard) Verify(ctx context.Context, wallet *models.Wallet, history []models.Transaction, estimatedCost float64) (*models.SolvencyCheck, error) {
	projected := wallet.Balance - estimatedCost

	windowSpend := g.windowSpend(history, time.Now().UTC())
	if windowSpend+estimatedCost > g.config.HourlyLimit {
		g.logger.WarnContext(ctx, "Circuit breaker tripped",
			"account", wallet.Address,
			"window_spend", windowSpend,
			"estimated_cost", estimatedCost,
			"hourly_limit", g.config.HourlyLimit,
		)

		return &models.SolvencyCheck{
			Authorized:           false,
			ProjectedBalance:     projected,
			CircuitBreakerActive: true,
			Reasoning: fmt.Sprintf(
				"CIRCUIT BREAKER: spend of %.2f in the trailing window plus estimate %.2f exceeds hourly limit %.2f",
				windowSpend, estimatedCost, g.config.HourlyLimit),
		}, nil
	}

	authorized := true
	reasoning := "within spend policy"

	if g.advisor != nil {
		approved, advice, err := g.advisor.Advise(ctx, wallet, history, estimatedCost)
		if err != nil {
			// Advisory only: an unavailable strategist never blocks the
			// hard-constraint evaluation below.
			g.logger.WarnContext(ctx, "Advisor unavailable, continuing with hard constraints only", "error", err)
		} else {
			authorized = approved
			reasoning = advice
		}
	}

	if projected < 0 {
		return &models.SolvencyCheck{
			Authorized:       false,
			ProjectedBalance: projected,
			Reasoning: fmt.Sprintf(
				"HARD PROHIBITION: Insufficient projected balance (%.2f - %.2f = %.2f)",
				wallet.Balance, estimatedCost, projected),
		}, nil
	}

	return &models.SolvencyCheck{
		Authorized:       authorized,
		ProjectedBalance: projected,
		Reasoning:        reasoning,
	}, nil
}

// Summarize derives a point-in-time financial health report from the
// wallet and recent history.
func (g *Guard) Summarize(wallet *models.Wallet, history []models.Transaction) *models.FinancialSummary {
	windowSpend := g.windowSpend(history, time.Now().UTC())

	burnRate := 0.0
	if g.config.Window > 0 {
		burnRate = windowSpend / g.config.Window.Hours()
	}

	status := models.HealthHealthy

	switch {
	case wallet.Balance <= 0 || wallet.Balance < burnRate:
		status = models.HealthCritical
	case windowSpend > g.config.HourlyLimit/2 || wallet.Balance < g.config.HourlyLimit:
		status = models.HealthCaution
	}

	return &models.FinancialSummary{
		Balance:        wallet.Balance,
		RecentExpenses: windowSpend,
		HourlyBurnRate: burnRate,
		Status:         status,
	}
}

func (g *Guard) windowSpend(history []models.Transaction, now time.Time) float64 {
	cutoff := now.Add(-g.config.Window)
	total := 0.0

	for _, tx := range history {
		if tx.Type == models.TransactionExpense && tx.Timestamp.After(cutoff) {
			total += tx.Amount
		}
	}

	return total
}
