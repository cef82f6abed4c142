package orders_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/db/postgres"
	"serotonyl.ru/streaming-ledger/internal/features/accounts"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
	"serotonyl.ru/streaming-ledger/internal/testutil/pgtest"
)

func TestPostgresApproveExactlyOnce(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	tx := postgres.NewTxManager(pool)
	ledger := balance.NewService(balance.NewRepository(pool), tx)
	repo := orders.NewRepository(pool)
	svc := orders.NewService(repo, ledger,
		membership.NewService(membership.NewRepository(pool), ledger, tx, 100),
		nil, tx, 48*time.Hour)

	buyer := &accounts.Account{Username: "buyer"}
	require.NoError(t, accounts.NewRepository(pool).Create(ctx, buyer))
	product := &orders.Product{Kind: orders.KindCoins, Name: "1000 монет", Price: 9900, Coins: 1000, Active: true}
	require.NoError(t, repo.CreateProduct(ctx, product))

	o, err := svc.Create(ctx, orders.CreateRequest{BuyerID: buyer.ID, ProductID: product.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, orders.CreateRequest{BuyerID: buyer.ID, ProductID: product.ID})
	assert.ErrorIs(t, err, common.ErrDuplicatePendingOrder)

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Approve(ctx, o.ID, 1); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, common.ErrOrderAlreadyProcessed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	bal, err := ledger.Get(ctx, buyer.ID, balance.WalletCoins)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Balance)
}

func TestPostgresCreateMapsTakenOrderNo(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := orders.NewRepository(pool)

	buyer := &accounts.Account{Username: "buyer"}
	require.NoError(t, accounts.NewRepository(pool).Create(ctx, buyer))
	coins := &orders.Product{Kind: orders.KindCoins, Name: "1000 монет", Price: 9900, Coins: 1000, Active: true}
	require.NoError(t, repo.CreateProduct(ctx, coins))
	month := &orders.Product{Kind: orders.KindMembership, Name: "30 дней", Price: 29900, Days: 30, Active: true}
	require.NoError(t, repo.CreateProduct(ctx, month))

	first := &orders.Order{OrderNo: "N1", BuyerID: buyer.ID, ProductID: coins.ID, Kind: coins.Kind,
		Amount: coins.Price, Coins: coins.Coins, Status: orders.StatusPending, RemarkCode: "000001"}
	require.NoError(t, repo.Create(ctx, first))

	second := &orders.Order{OrderNo: "N1", BuyerID: buyer.ID, ProductID: month.ID, Kind: month.Kind,
		Amount: month.Price, Days: month.Days, Status: orders.StatusPending, RemarkCode: "000002"}
	assert.ErrorIs(t, repo.Create(ctx, second), orders.ErrOrderNoTaken)
}
