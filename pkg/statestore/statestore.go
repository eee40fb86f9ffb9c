// Package statestore provides the key-value storage abstraction for
// wallets, ledger history, mood, and approval records.
package statestore

import (
	"context"
	"time"

	"github.com/voxmuse/atelier/pkg/models"
)

// WalletUpdate mutates a wallet in place and returns the transaction to
// append alongside the new balance, or an error to abort the commit.
type WalletUpdate func(w *models.Wallet) (*models.Transaction, error)

// StateStore is the storage contract consumed by the ledger, the
// approval gate, and the pipeline. Implementations must make
// UpdateWallet a single conditional commit: the wallet write and the
// history append land together, and a concurrent writer racing the
// same wallet surfaces as ErrConflict.
type StateStore interface {
	// Wallet returns the wallet for an address, or ErrWalletNotFound.
	Wallet(ctx context.Context, address string) (*models.Wallet, error)

	// PutWallet writes a wallet unconditionally. Used for seeding
	// accounts, never for transactional updates.
	PutWallet(ctx context.Context, wallet *models.Wallet) error

	// UpdateWallet applies fn to the current wallet and commits the
	// updated wallet plus the returned transaction atomically.
	// Returns ErrConflict when a concurrent writer won the race.
	UpdateWallet(ctx context.Context, address string, fn WalletUpdate) error

	// History returns up to count most recent transactions, oldest first.
	History(ctx context.Context, address string, count int) ([]models.Transaction, error)

	PendingApproval(ctx context.Context, taskID string) (*models.PendingApproval, error)
	PutPendingApproval(ctx context.Context, approval *models.PendingApproval) error
	DeletePendingApproval(ctx context.Context, taskID string) error
	PendingApprovals(ctx context.Context) ([]models.PendingApproval, error)

	// ApprovalSignal returns the signal recorded for a task, if any.
	// Signals are transient: they carry an expiry and are deleted by
	// the gate once consumed.
	ApprovalSignal(ctx context.Context, taskID string) (models.ApprovalSignal, bool, error)
	PutApprovalSignal(ctx context.Context, taskID string, signal models.ApprovalSignal, ttl time.Duration) error
	DeleteApprovalSignal(ctx context.Context, taskID string) error

	Mood(ctx context.Context) (*models.Mood, error)
	PutMood(ctx context.Context, mood *models.Mood) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
