// Package redis provides the Redis-backed state store. Wallet updates
// use WATCH/MULTI optimistic transactions so the balance write and the
// history append land as one conditional commit.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/statestore"
)

const (
	walletKeyPrefix  = "atelier:state:wallet:"
	historyKeyPrefix = "atelier:finance:history:"
	moodKey          = "atelier:state:mood"
	pendingKey       = "atelier:approvals:pending"
	signalKeyPrefix  = "atelier:approvals:signal:"
)

// Store implements statestore.StateStore on top of Redis.
type Store struct {
	client redis.UniversalClient
}

// NewStore wraps an existing Redis client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// NewStoreFromURL connects to Redis using a redis:// URL and verifies
// the connection before returning.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

func walletKey(address string) string {
	return walletKeyPrefix + address
}

func historyKey(address string) string {
	return historyKeyPrefix + address
}

func signalKey(taskID string) string {
	return signalKeyPrefix + taskID
}

func (s *Store) Wallet(ctx context.Context, address string) (*models.Wallet, error) {
	data, err := s.client.Get(ctx, walletKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, statestore.NewWalletError("Wallet", address, statestore.ErrWalletNotFound)
	}

	if err != nil {
		return nil, statestore.NewWalletError("Wallet", address, err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal(data, &wallet); err != nil {
		return nil, statestore.NewWalletError("Wallet", address, err)
	}

	return &wallet, nil
}

func (s *Store) PutWallet(ctx context.Context, wallet *models.Wallet) error {
	data, err := json.Marshal(wallet)
	if err != nil {
		return statestore.NewWalletError("PutWallet", wallet.Address, err)
	}

	return s.client.Set(ctx, walletKey(wallet.Address), data, 0).Err()
}

// UpdateWallet runs fn against the current wallet inside a WATCH
// transaction. Any concurrent write to the wallet key between read and
// EXEC aborts the transaction, surfaced as ErrConflict for the caller
// to retry.
func (s *Store) UpdateWallet(ctx context.Context, address string, fn statestore.WalletUpdate) error {
	key := walletKey(address)

	err := s.client.Watch(ctx, func(watched *redis.Tx) error {
		data, err := watched.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return statestore.ErrWalletNotFound
		}

		if err != nil {
			return err
		}

		var wallet models.Wallet
		if err := json.Unmarshal(data, &wallet); err != nil {
			return err
		}

		tx, err := fn(&wallet)
		if err != nil {
			return err
		}

		wallet.LastUpdated = time.Now().UTC()

		updated, err := json.Marshal(&wallet)
		if err != nil {
			return err
		}

		var txData []byte
		if tx != nil {
			txData, err = json.Marshal(tx)
			if err != nil {
				return err
			}
		}

		_, err = watched.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)

			if txData != nil {
				pipe.RPush(ctx, historyKey(address), txData)
			}

			return nil
		})

		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return statestore.NewWalletError("UpdateWallet", address, statestore.ErrConflict)
	}

	if errors.Is(err, statestore.ErrWalletNotFound) {
		return statestore.NewWalletError("UpdateWallet", address, statestore.ErrWalletNotFound)
	}

	return err
}

func (s *Store) History(ctx context.Context, address string, count int) ([]models.Transaction, error) {
	start := int64(0)
	if count > 0 {
		start = int64(-count)
	}

	records, err := s.client.LRange(ctx, historyKey(address), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", address, err)
	}

	history := make([]models.Transaction, 0, len(records))

	for _, record := range records {
		var tx models.Transaction
		if err := json.Unmarshal([]byte(record), &tx); err != nil {
			return nil, fmt.Errorf("corrupt history entry for %s: %w", address, err)
		}

		history = append(history, tx)
	}

	return history, nil
}

func (s *Store) PendingApproval(ctx context.Context, taskID string) (*models.PendingApproval, error) {
	data, err := s.client.HGet(ctx, pendingKey, taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, statestore.ErrApprovalNotFound
	}

	if err != nil {
		return nil, err
	}

	var approval models.PendingApproval
	if err := json.Unmarshal(data, &approval); err != nil {
		return nil, err
	}

	return &approval, nil
}

func (s *Store) PutPendingApproval(ctx context.Context, approval *models.PendingApproval) error {
	data, err := json.Marshal(approval)
	if err != nil {
		return err
	}

	return s.client.HSet(ctx, pendingKey, approval.TaskID, data).Err()
}

func (s *Store) DeletePendingApproval(ctx context.Context, taskID string) error {
	return s.client.HDel(ctx, pendingKey, taskID).Err()
}

func (s *Store) PendingApprovals(ctx context.Context) ([]models.PendingApproval, error) {
	entries, err := s.client.HGetAll(ctx, pendingKey).Result()
	if err != nil {
		return nil, err
	}

	approvals := make([]models.PendingApproval, 0, len(entries))

	for taskID, data := range entries {
		var approval models.PendingApproval
		if err := json.Unmarshal([]byte(data), &approval); err != nil {
			return nil, fmt.Errorf("corrupt pending approval for task %s: %w", taskID, err)
		}

		approvals = append(approvals, approval)
	}

	return approvals, nil
}

func (s *Store) ApprovalSignal(ctx context.Context, taskID string) (models.ApprovalSignal, bool, error) {
	value, err := s.client.Get(ctx, signalKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return models.ApprovalSignal(value), true, nil
}

func (s *Store) PutApprovalSignal(ctx context.Context, taskID string, signal models.ApprovalSignal, ttl time.Duration) error {
	return s.client.Set(ctx, signalKey(taskID), string(signal), ttl).Err()
}

func (s *Store) DeleteApprovalSignal(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, signalKey(taskID)).Err()
}

func (s *Store) Mood(ctx context.Context) (*models.Mood, error) {
	data, err := s.client.Get(ctx, moodKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return &models.Mood{}, nil
	}

	if err != nil {
		return nil, err
	}

	var mood models.Mood
	if err := json.Unmarshal(data, &mood); err != nil {
		return nil, err
	}

	return &mood, nil
}

func (s *Store) PutMood(ctx context.Context, mood *models.Mood) error {
	updated := *mood
	updated.LastUpdated = time.Now().UTC()

	data, err := json.Marshal(&updated)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, moodKey, data, 0).Err()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
