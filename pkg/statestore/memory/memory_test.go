package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmuse/atelier/pkg/models"
	"github.com/voxmuse/atelier/pkg/statestore"
)

func TestStore_Wallet_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.Wallet(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, statestore.IsWalletNotFound(err))
}

func TestStore_PutAndGetWallet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.PutWallet(ctx, &models.Wallet{Address: "muse-01", Balance: 10.0, Currency: "USD"})
	require.NoError(t, err)

	wallet, err := store.Wallet(ctx, "muse-01")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, wallet.Balance, 1e-9)
}

func TestStore_UpdateWallet_AppendsHistory(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.PutWallet(ctx, &models.Wallet{Address: "muse-01", Balance: 10.0}))

	err := store.UpdateWallet(ctx, "muse-01", func(w *models.Wallet) (*models.Transaction, error) {
		w.Balance -= 0.65

		return &models.Transaction{
			ID:          "tx-1",
			Type:        models.TransactionExpense,
			Category:    models.CategoryAPICost,
			Amount:      0.65,
			Description: "production cost",
			Timestamp:   time.Now().UTC(),
		}, nil
	})
	require.NoError(t, err)

	wallet, err := store.Wallet(ctx, "muse-01")
	require.NoError(t, err)
	assert.InDelta(t, 9.35, wallet.Balance, 1e-9)
	assert.False(t, wallet.LastUpdated.IsZero())

	history, err := store.History(ctx, "muse-01", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tx-1", history[0].ID)
}

func TestStore_UpdateWallet_ConflictWhenRaced(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.PutWallet(ctx, &models.Wallet{Address: "muse-01", Balance: 10.0}))

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	var slowErr error

	go func() {
		defer wg.Done()

		slowErr = store.UpdateWallet(ctx, "muse-01", func(w *models.Wallet) (*models.Transaction, error) {
			close(started)
			<-release
			w.Balance -= 1.0

			return nil, nil
		})
	}()

	<-started

	// A fast writer commits while the slow update is still computing.
	require.NoError(t, store.UpdateWallet(ctx, "muse-01", func(w *models.Wallet) (*models.Transaction, error) {
		w.Balance -= 2.0

		return nil, nil
	}))

	close(release)
	wg.Wait()

	require.Error(t, slowErr)
	assert.True(t, statestore.IsConflict(slowErr))

	wallet, err := store.Wallet(ctx, "muse-01")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, wallet.Balance, 1e-9)
}

func TestStore_History_TailWindow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.PutWallet(ctx, &models.Wallet{Address: "muse-01", Balance: 100.0}))

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, store.UpdateWallet(ctx, "muse-01", func(w *models.Wallet) (*models.Transaction, error) {
			w.Balance -= 1.0

			return &models.Transaction{ID: id, Type: models.TransactionExpense, Amount: 1.0}, nil
		}))
	}

	history, err := store.History(ctx, "muse-01", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "d", history[0].ID)
	assert.Equal(t, "e", history[1].ID)
}

func TestStore_PendingApproval_Lifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.PendingApproval(ctx, "t1")
	assert.True(t, statestore.IsApprovalNotFound(err))

	require.NoError(t, store.PutPendingApproval(ctx, &models.PendingApproval{
		TaskID:   "t1",
		StepName: "script_approval",
	}))

	approval, err := store.PendingApproval(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "script_approval", approval.StepName)

	all, err := store.PendingApprovals(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeletePendingApproval(ctx, "t1"))

	_, err = store.PendingApproval(ctx, "t1")
	assert.True(t, statestore.IsApprovalNotFound(err))
}

func TestStore_ApprovalSignal_Expiry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.PutApprovalSignal(ctx, "t1", models.SignalApprove, 10*time.Millisecond))

	signal, ok, err := store.ApprovalSignal(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.SignalApprove, signal)

	time.Sleep(20 * time.Millisecond)

	_, ok, err = store.ApprovalSignal(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Mood_DefaultWhenUnset(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	mood, err := store.Mood(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mood.Valence, 1e-9)

	require.NoError(t, store.PutMood(ctx, &models.Mood{Valence: 0.5, Arousal: 0.7}))

	mood, err = store.Mood(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mood.Valence, 1e-9)
	assert.False(t, mood.LastUpdated.IsZero())
}
