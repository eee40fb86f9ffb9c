// Package ledger records financial transactions against account wallets
// with optimistic-concurrency commits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/statestore"
)

// ErrRetryBudgetExhausted indicates the conditional commit kept losing
// races until the retry budget ran out. This is a fatal concurrency
// error: it means a financial update could not be applied, and it is
// never swallowed.
var ErrRetryBudgetExhausted = errors.New("ledger commit retry budget exhausted")

const defaultMaxAttempts = 5

// Ledger appends transactions and keeps wallet balances consistent
// under concurrent writers. The state store's conditional commit is the
// only synchronization: on conflict the ledger retries from the read
// step, up to a bounded number of attempts.
type Ledger struct {
	store       statestore.StateStore
	logger      *slog.Logger
	maxAttempts int
}

// NewLedger creates a ledger over the given state store.
func NewLedger(store statestore.StateStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:       store,
		logger:      logger.With("module", "ledger"),
		maxAttempts: defaultMaxAttempts,
	}
}

// Record applies a transaction to the account's wallet and appends it to
// the history as one atomic commit. The final balance always equals the
// initial balance plus all recorded signed amounts, in any interleaving.
func (l *Ledger) Record(
	ctx context.Context,
	address string,
	txType models.TransactionType,
	category models.TransactionCategory,
	amount float64,
	description string,
	metadata map[string]any,
) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transaction amount must be positive, got %f", amount)
	}

	tx := &models.Transaction{
		ID:          "tx-" + uuid.New().String()[:8],
		Type:        txType,
		Category:    category,
		Amount:      amount,
		Currency:    "USD",
		Description: description,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err := l.store.UpdateWallet(ctx, address, func(w *models.Wallet) (*models.Transaction, error) {
			// Entries are USD denominated, so the internal accounting
			// balance moves in step with the primary one.
			w.Balance += tx.Signed()
			w.UnitBalance += tx.Signed()

			return tx, nil
		})
		if err == nil {
			l.logger.InfoContext(ctx, "Recorded transaction",
				"transaction_id", tx.ID,
				"account", address,
				"type", txType,
				"amount", amount,
				"attempt", attempt,
			)

			return tx, nil
		}

		if !statestore.IsConflict(err) {
			return nil, fmt.Errorf("failed to record transaction for %s: %w", address, err)
		}

		l.logger.WarnContext(ctx, "Wallet commit lost race, retrying",
			"account", address,
			"attempt", attempt,
		)
	}

	return nil, fmt.Errorf("recording transaction for %s after %d attempts: %w",
		address, l.maxAttempts, ErrRetryBudgetExhausted)
}

// Rollback issues the equal, opposite-signed compensating transaction
// for a previously recorded one, re-crediting the account after a
// downstream failure.
func (l *Ledger) Rollback(ctx context.Context, address string, original *models.Transaction, reason string) (*models.Transaction, error) {
	compensating := models.TransactionIncome
	if original.Type == models.TransactionIncome {
		compensating = models.TransactionExpense
	}

	return l.Record(ctx, address, compensating, models.CategoryRollback, original.Amount,
		fmt.Sprintf("rollback of %s: %s", original.ID, reason),
		map[string]any{"rollback_of": original.ID},
	)
}

// History returns up to count recent transactions for the account,
// oldest first.
func (l *Ledger) History(ctx context.Context, address string, count int) ([]models.Transaction, error) {
	return l.store.History(ctx, address, count)
}
