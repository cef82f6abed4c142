package paywall_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/paywall"
	"serotonyl.ru/streaming-ledger/internal/testutil/memstore"
)

type fixture struct {
	store       *memstore.Store
	ledger      *balance.Service
	memberships *membership.Service
	paywall     *paywall.Service
}

func newFixture() *fixture {
	store := memstore.New()
	ledger := balance.NewService(store.Balances, store)
	memberships := membership.NewService(store.Memberships, ledger, store, 100)
	return &fixture{
		store:       store,
		ledger:      ledger,
		memberships: memberships,
		paywall:     paywall.NewService(store.Unlocks, ledger, memberships, store),
	}
}

func (f *fixture) viewer(t *testing.T, coins int64) int64 {
	t.Helper()
	id := f.store.Accounts.Add("viewer", nil)
	if coins > 0 {
		_, err := f.ledger.Adjust(context.Background(), id, balance.WalletCoins, coins, 1, "тест")
		require.NoError(t, err)
	}
	return id
}

func TestUnlockChargesOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.viewer(t, 100)

	res, err := f.paywall.Unlock(ctx, id, "ep-01", 30)
	require.NoError(t, err)
	assert.Equal(t, paywall.AccessPurchased, res.Access)
	assert.Equal(t, int64(70), res.NewBalance)
	require.NotNil(t, res.Entry)
	assert.Equal(t, balance.TypeConsume, res.Entry.Type)

	res, err = f.paywall.Unlock(ctx, id, " ep-01 ", 30)
	require.NoError(t, err)
	assert.Equal(t, paywall.AccessOwned, res.Access)
	assert.Nil(t, res.Entry)

	bal, err := f.ledger.Get(ctx, id, balance.WalletCoins)
	require.NoError(t, err)
	assert.Equal(t, int64(70), bal.Balance)

	ok, err := f.paywall.HasAccess(ctx, id, "ep-01")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.paywall.HasAccess(ctx, id, "ep-02")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockInsufficientLeavesNoUnlock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.viewer(t, 10)

	_, err := f.paywall.Unlock(ctx, id, "ep-01", 30)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	ok, err := f.paywall.HasAccess(ctx, id, "ep-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockFreeForMembers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.viewer(t, 0)
	_, err := f.memberships.Extend(ctx, id, 30)
	require.NoError(t, err)

	res, err := f.paywall.Unlock(ctx, id, "ep-01", 30)
	require.NoError(t, err)
	assert.Equal(t, paywall.AccessMembership, res.Access)

	ok, err := f.paywall.HasAccess(ctx, id, "anything")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.store.Balances.Entries(id, balance.WalletCoins))
}

func TestUnlockValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.viewer(t, 100)

	_, err := f.paywall.Unlock(ctx, id, "  ", 30)
	assert.ErrorIs(t, err, common.ErrVideoRequired)
	_, err = f.paywall.Unlock(ctx, id, "ep-01", 0)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestUnlockExpiredMembershipCharges(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture()
	f.memberships.WithClock(func() time.Time { return now })
	ctx := context.Background()
	id := f.viewer(t, 100)
	_, err := f.memberships.Extend(ctx, id, 1)
	require.NoError(t, err)

	now = now.AddDate(0, 0, 2)
	res, err := f.paywall.Unlock(ctx, id, "ep-01", 30)
	require.NoError(t, err)
	assert.Equal(t, paywall.AccessPurchased, res.Access)
}
