package balance_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/db/postgres"
	"serotonyl.ru/streaming-ledger/internal/features/accounts"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/testutil/pgtest"
)

func TestPostgresConcurrentDebits(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := balance.NewRepository(pool)
	ledger := balance.NewService(repo, postgres.NewTxManager(pool))

	acc := &accounts.Account{Username: "viewer"}
	require.NoError(t, accounts.NewRepository(pool).Create(ctx, acc))
	_, err := ledger.Adjust(ctx, acc.ID, balance.WalletCoins, 100, 1, "seed")
	require.NoError(t, err)

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, balance.Posting{
				AccountID: acc.ID, Wallet: balance.WalletCoins, Type: balance.TypeConsume, Amount: 10,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, common.ErrInsufficientBalance):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int32(10), rejected.Load())

	rec, err := ledger.Reconcile(ctx, acc.ID, balance.WalletCoins)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Balance)
	assert.True(t, rec.Consistent())
}

func TestPostgresCheckConstraintBackstop(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := balance.NewRepository(pool)

	acc := &accounts.Account{Username: "viewer"}
	require.NoError(t, accounts.NewRepository(pool).Create(ctx, acc))

	_, err := repo.GetOrCreate(ctx, acc.ID, balance.WalletCoins)
	require.NoError(t, err)

	// В обход сервиса: отрицательный баланс отклоняет сама база
	_, err = repo.Increment(ctx, acc.ID, balance.WalletCoins, -1)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestPostgresRollbackLeavesNoEntry(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	tx := postgres.NewTxManager(pool)
	ledger := balance.NewService(balance.NewRepository(pool), tx)

	acc := &accounts.Account{Username: "viewer"}
	require.NoError(t, accounts.NewRepository(pool).Create(ctx, acc))

	boom := errors.New("boom")
	err := tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := ledger.Adjust(ctx, acc.ID, balance.WalletCoins, 50, 1, ""); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	history, err := ledger.History(ctx, acc.ID, balance.WalletCoins, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	bal, err := ledger.Get(ctx, acc.ID, balance.WalletCoins)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
}
