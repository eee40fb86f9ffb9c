// Package memory provides an in-memory state store for tests and local
// development. It honors the same conditional-commit contract as the
// Redis store: UpdateWallet fails with ErrConflict when the wallet
// version changed between read and commit.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/statestore"
)

type walletEntry struct {
	wallet  models.Wallet
	version uint64
}

type signalEntry struct {
	signal    models.ApprovalSignal
	expiresAt time.Time
}

// Store implements statestore.StateStore backed by process memory.
type Store struct {
	mu        sync.Mutex
	wallets   map[string]*walletEntry
	history   map[string][]models.Transaction
	approvals map[string]models.PendingApproval
	signals   map[string]signalEntry
	mood      *models.Mood
}

// NewStore creates an empty in-memory state store.
func NewStore() *Store {
	return &Store{
		wallets:   make(map[string]*walletEntry),
		history:   make(map[string][]models.Transaction),
		approvals: make(map[string]models.PendingApproval),
		signals:   make(map[string]signalEntry),
	}
}

func (s *Store) Wallet(_ context.Context, address string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.wallets[address]
	if !ok {
		return nil, statestore.NewWalletError("Wallet", address, statestore.ErrWalletNotFound)
	}

	wallet := entry.wallet

	return &wallet, nil
}

func (s *Store) PutWallet(_ context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.wallets[wallet.Address]
	if !ok {
		entry = &walletEntry{}
		s.wallets[wallet.Address] = entry
	}

	entry.wallet = *wallet
	entry.version++

	return nil
}

func (s *Store) UpdateWallet(_ context.Context, address string, fn statestore.WalletUpdate) error {
	s.mu.Lock()

	entry, ok := s.wallets[address]
	if !ok {
		s.mu.Unlock()

		return statestore.NewWalletError("UpdateWallet", address, statestore.ErrWalletNotFound)
	}

	snapshot := entry.wallet
	readVersion := entry.version
	s.mu.Unlock()

	// fn runs outside the lock so concurrent updates genuinely race,
	// mirroring the read-then-conditional-commit shape of the Redis
	// WATCH transaction.
	tx, err := fn(&snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.version != readVersion {
		return statestore.NewWalletError("UpdateWallet", address, statestore.ErrConflict)
	}

	snapshot.LastUpdated = time.Now().UTC()
	entry.wallet = snapshot
	entry.version++

	if tx != nil {
		s.history[address] = append(s.history[address], *tx)
	}

	return nil
}

func (s *Store) History(_ context.Context, address string, count int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.history[address]
	if count > 0 && len(all) > count {
		all = all[len(all)-count:]
	}

	history := make([]models.Transaction, len(all))
	copy(history, all)

	return history, nil
}

func (s *Store) PendingApproval(_ context.Context, taskID string) (*models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.approvals[taskID]
	if !ok {
		return nil, statestore.ErrApprovalNotFound
	}

	return &approval, nil
}

func (s *Store) PutPendingApproval(_ context.Context, approval *models.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approvals[approval.TaskID] = *approval

	return nil
}

func (s *Store) DeletePendingApproval(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.approvals, taskID)

	return nil
}

func (s *Store) PendingApprovals(_ context.Context) ([]models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approvals := make([]models.PendingApproval, 0, len(s.approvals))
	for _, approval := range s.approvals {
		approvals = append(approvals, approval)
	}

	return approvals, nil
}

func (s *Store) ApprovalSignal(_ context.Context, taskID string) (models.ApprovalSignal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.signals[taskID]
	if !ok {
		return "", false, nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.signals, taskID)

		return "", false, nil
	}

	return entry.signal, true, nil
}

func (s *Store) PutApprovalSignal(_ context.Context, taskID string, signal models.ApprovalSignal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := signalEntry{signal: signal}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.signals[taskID] = entry

	return nil
}

func (s *Store) DeleteApprovalSignal(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.signals, taskID)

	return nil
}

func (s *Store) Mood(_ context.Context) (*models.Mood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mood == nil {
		return &models.Mood{}, nil
	}

	mood := *s.mood

	return &mood, nil
}

func (s *Store) PutMood(_ context.Context, mood *models.Mood) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := *mood
	updated.LastUpdated = time.Now().UTC()
	s.mood = &updated

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
