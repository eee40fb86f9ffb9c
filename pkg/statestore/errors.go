// Package statestore provides standardized error types for state operations.
package statestore

import (
	"errors"
	"fmt"
)

// Standard state store error types that all implementations should use.
var (
	// ErrWalletNotFound indicates no wallet exists for the given address.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrApprovalNotFound indicates no pending approval exists for the given task.
	ErrApprovalNotFound = errors.New("pending approval not found")

	// ErrConflict indicates a concurrent writer modified the wallet
	// between read and commit. Callers retry from the read step.
	ErrConflict = errors.New("wallet modified concurrently")
)

// WalletError wraps wallet-related errors with additional context.
type WalletError struct {
	Op      string // Operation being performed (e.g., "Wallet", "UpdateWallet")
	Address string // Account address
	Err     error  // Underlying error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("%s operation failed for wallet %s: %v", e.Op, e.Address, e.Err)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for wallet errors.
func (e *WalletError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWalletError creates a new wallet error with context.
func NewWalletError(op, address string, err error) *WalletError {
	return &WalletError{Op: op, Address: address, Err: err}
}

// IsWalletNotFound checks if an error indicates a missing wallet.
func IsWalletNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound)
}

// IsConflict checks if an error indicates a lost optimistic-commit race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsApprovalNotFound checks if an error indicates a missing pending approval.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}
