package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/commission"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
	"serotonyl.ru/streaming-ledger/internal/testutil/memstore"
)

const admin int64 = 1

type fixture struct {
	store       *memstore.Store
	now         time.Time
	ledger      *balance.Service
	agents      *agents.Service
	memberships *membership.Service
	orders      *orders.Service

	coins int64 // ID товара «1000 монет»
	month int64 // ID тарифа «30 дней»
}

func newFixture(t *testing.T, withCommission bool) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.store = memstore.New().WithClock(clock)
	f.ledger = balance.NewService(f.store.Balances, f.store)
	f.agents = agents.NewService(f.store.Agents, f.store.Accounts, f.ledger, f.store, time.UTC).WithClock(clock)
	f.memberships = membership.NewService(f.store.Memberships, f.ledger, f.store, 100).WithClock(clock)

	var distributor orders.Distributor
	if withCommission {
		distributor = commission.NewService(f.store.Commissions, f.store.Accounts, f.agents, f.ledger, f.store)
	}
	f.orders = orders.NewService(f.store.Orders, f.ledger, f.memberships, distributor, f.store, 48*time.Hour).WithClock(clock)

	levels, err := agents.LoadLadder("../../../config/levels.yaml")
	require.NoError(t, err)
	require.NoError(t, f.agents.SeedLevels(context.Background(), levels))

	f.coins = f.store.Orders.AddProduct(orders.Product{Kind: orders.KindCoins, Name: "1000 монет", Price: 99_00, Coins: 1000, Active: true})
	f.month = f.store.Orders.AddProduct(orders.Product{Kind: orders.KindMembership, Name: "30 дней", Price: 299_00, Days: 30, Active: true})
	return f
}

func (f *fixture) coinsOf(t *testing.T, id int64, wallet balance.Wallet) int64 {
	t.Helper()
	bal, err := f.ledger.Get(context.Background(), id, wallet)
	require.NoError(t, err)
	return bal.Balance
}

type recordingNotifier struct {
	mu   sync.Mutex
	paid []int64
}

func (n *recordingNotifier) OrderPaid(_ context.Context, o *orders.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, o.ID)
}

func TestCreateCopiesProduct(t *testing.T) {
	f := newFixture(t, false)
	buyer := f.store.Accounts.Add("buyer", nil)

	o, err := f.orders.Create(context.Background(), orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, int64(99_00), o.Amount)
	assert.Equal(t, int64(1000), o.Coins)
	assert.Len(t, o.OrderNo, 20)
	assert.Equal(t, "20260310120000", o.OrderNo[:14])
	assert.Len(t, o.RemarkCode, 6)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)

	_, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: 999})
	assert.ErrorIs(t, err, common.ErrProductNotFound)

	hidden := f.store.Orders.AddProduct(orders.Product{Kind: orders.KindCoins, Name: "архив", Price: 100, Coins: 1})
	_, err = f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: hidden})
	assert.ErrorIs(t, err, common.ErrProductNotFound)

	_, err = f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	assert.ErrorIs(t, err, common.ErrDuplicatePendingOrder)

	// Другой товар можно
	_, err = f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.month})
	assert.NoError(t, err)
}

func TestCreateDropsSelfAgent(t *testing.T) {
	f := newFixture(t, false)
	buyer := f.store.Accounts.Add("buyer", nil)

	o, err := f.orders.Create(context.Background(), orders.CreateRequest{BuyerID: buyer, ProductID: f.coins, AgentID: &buyer})
	require.NoError(t, err)
	assert.Nil(t, o.AgentID)
}

// fixedOrderNumbers выдаёт номера по списку, последний повторяется.
func fixedOrderNumbers(numbers ...string) func(time.Time) string {
	var mu sync.Mutex
	return func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[0]
		if len(numbers) > 1 {
			numbers = numbers[1:]
		}
		return n
	}
}

func TestCreateRetriesTakenOrderNo(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	f.orders.WithOrderNumbers(fixedOrderNumbers("N1", "N1", "N2"))

	first, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)
	assert.Equal(t, "N1", first.OrderNo)

	second, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.month})
	require.NoError(t, err)
	assert.Equal(t, "N2", second.OrderNo)
}

func TestCreateGivesUpOnPersistentOrderNoCollision(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	f.orders.WithOrderNumbers(fixedOrderNumbers("N1"))

	_, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	_, err = f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.month})
	assert.ErrorIs(t, err, orders.ErrOrderNoTaken)

	list, err := f.orders.ListByStatus(ctx, orders.StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmitProof(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	f.orders.SetNotifier(notifier)
	buyer := f.store.Accounts.Add("buyer", nil)
	other := f.store.Accounts.Add("other", nil)

	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	_, err = f.orders.SubmitProof(ctx, o.ID, other, orders.Proof{URL: "https://pay/1"})
	assert.ErrorIs(t, err, common.ErrOrderNotFound)

	paid, err := f.orders.SubmitProof(ctx, o.ID, buyer, orders.Proof{URL: "https://pay/1", Note: "перевод"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, paid.Status)
	require.NotNil(t, paid.ProofURL)
	assert.Equal(t, "https://pay/1", *paid.ProofURL)
	assert.Equal(t, []int64{o.ID}, notifier.paid)

	_, err = f.orders.SubmitProof(ctx, o.ID, buyer, orders.Proof{})
	assert.ErrorIs(t, err, common.ErrOrderAlreadyProcessed)

	// После оплаты можно создать новый заказ на тот же товар
	_, err = f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	assert.NoError(t, err)
}

func TestApproveCreditsCoinsOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	res, err := f.orders.Approve(ctx, o.ID, admin)
	require.NoError(t, err)
	assert.True(t, res.Credited)
	assert.Nil(t, res.Commission)
	assert.Equal(t, orders.StatusApproved, res.Order.Status)
	require.NotNil(t, res.Order.ReviewerID)
	assert.Equal(t, admin, *res.Order.ReviewerID)
	assert.Equal(t, int64(1000), f.coinsOf(t, buyer, balance.WalletCoins))

	_, err = f.orders.Approve(ctx, o.ID, admin)
	assert.ErrorIs(t, err, common.ErrOrderAlreadyProcessed)
	assert.Equal(t, int64(1000), f.coinsOf(t, buyer, balance.WalletCoins))

	_, err = f.orders.Approve(ctx, 12345, admin)
	assert.ErrorIs(t, err, common.ErrOrderNotFound)
}

func TestApproveConcurrentCreditsExactlyOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orders.Approve(ctx, o.ID, admin); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, common.ErrOrderAlreadyProcessed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1000), f.coinsOf(t, buyer, balance.WalletCoins))
	assert.Len(t, f.store.Balances.Entries(buyer, balance.WalletCoins), 1)
}

func TestApproveMembershipExtends(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.month})
	require.NoError(t, err)

	_, err = f.orders.Approve(ctx, o.ID, admin)
	require.NoError(t, err)

	m, err := f.memberships.Get(ctx, buyer)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, f.now.AddDate(0, 0, 30), m.ExpiresAt)
	assert.Equal(t, int64(0), f.coinsOf(t, buyer, balance.WalletCoins))
}

func TestApproveDistributesCommission(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	agent := f.store.Accounts.Add("agent", nil)
	_, err := f.agents.Apply(ctx, agent)
	require.NoError(t, err)
	_, err = f.agents.Approve(ctx, agent, admin)
	require.NoError(t, err)
	buyer := f.store.Accounts.Add("buyer", &agent)

	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)
	res, err := f.orders.Approve(ctx, o.ID, admin)
	require.NoError(t, err)

	require.NotNil(t, res.Commission)
	// Бронза: 10% от 99,00 ₽
	assert.Equal(t, int64(990), res.Commission.Total())
	assert.Equal(t, int64(990), f.coinsOf(t, agent, balance.WalletCommission))
	assert.Equal(t, int64(1000), f.coinsOf(t, buyer, balance.WalletCoins))
}

func TestApproveRollsBackOnCommissionFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	agent := f.store.Accounts.Add("agent", nil)
	_, err := f.agents.Apply(ctx, agent)
	require.NoError(t, err)
	_, err = f.agents.Approve(ctx, agent, admin)
	require.NoError(t, err)
	buyer := f.store.Accounts.Add("buyer", &agent)

	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	// Комиссия по этому заказу уже начислена вне сервиса заказов
	distributor := commission.NewService(f.store.Commissions, f.store.Accounts, f.agents, f.ledger, f.store)
	_, err = distributor.Distribute(ctx, commission.Input{OrderID: &o.ID, BuyerID: buyer, Amount: o.Amount})
	require.NoError(t, err)

	_, err = f.orders.Approve(ctx, o.ID, admin)
	assert.ErrorIs(t, err, common.ErrCommissionAlreadyDistributed)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, int64(0), f.coinsOf(t, buyer, balance.WalletCoins))
}

func TestRejectDeletesOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)

	rejected, err := f.orders.Reject(ctx, o.ID, admin, "нет оплаты")
	require.NoError(t, err)
	assert.Equal(t, o.ID, rejected.ID)

	_, err = f.orders.Get(ctx, o.ID)
	assert.ErrorIs(t, err, common.ErrOrderNotFound)
	_, err = f.orders.Reject(ctx, o.ID, admin, "")
	assert.ErrorIs(t, err, common.ErrOrderNotFound)
}

func TestRejectApprovedOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	buyer := f.store.Accounts.Add("buyer", nil)
	o, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: buyer, ProductID: f.coins})
	require.NoError(t, err)
	_, err = f.orders.Approve(ctx, o.ID, admin)
	require.NoError(t, err)

	_, err = f.orders.Reject(ctx, o.ID, admin, "")
	assert.ErrorIs(t, err, common.ErrOrderAlreadyProcessed)
	assert.Equal(t, int64(1000), f.coinsOf(t, buyer, balance.WalletCoins))
}

func TestListByStatusOldestFirst(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	first := f.store.Accounts.Add("first", nil)
	second := f.store.Accounts.Add("second", nil)

	o1, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: first, ProductID: f.coins})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	o2, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: second, ProductID: f.coins})
	require.NoError(t, err)

	list, err := f.orders.ListByStatus(ctx, orders.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, o1.ID, list[0].ID)
	assert.Equal(t, o2.ID, list[1].ID)
}

func TestExpireStaleKeepsPaidAndFresh(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	a := f.store.Accounts.Add("a", nil)
	b := f.store.Accounts.Add("b", nil)
	c := f.store.Accounts.Add("c", nil)

	stale, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: a, ProductID: f.coins})
	require.NoError(t, err)
	paid, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: b, ProductID: f.coins})
	require.NoError(t, err)
	_, err = f.orders.SubmitProof(ctx, paid.ID, b, orders.Proof{Note: "оплачено"})
	require.NoError(t, err)

	f.now = f.now.Add(47 * time.Hour)
	fresh, err := f.orders.Create(ctx, orders.CreateRequest{BuyerID: c, ProductID: f.coins})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	n, err := f.orders.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.orders.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, common.ErrOrderNotFound)
	_, err = f.orders.Get(ctx, paid.ID)
	assert.NoError(t, err)
	_, err = f.orders.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}
