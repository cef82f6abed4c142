package accounts_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/accounts"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/testutil/memstore"
)

type fixture struct {
	store    *memstore.Store
	agents   *agents.Service
	accounts *accounts.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	ledger := balance.NewService(store.Balances, store)
	agentsSvc := agents.NewService(store.Agents, store.Accounts, ledger, store, time.UTC)
	levels, err := agents.LoadLadder("../../../config/levels.yaml")
	require.NoError(t, err)
	require.NoError(t, agentsSvc.SeedLevels(context.Background(), levels))
	return &fixture{
		store:    store,
		agents:   agentsSvc,
		accounts: accounts.NewService(store.Accounts, agentsSvc, store),
	}
}

func (f *fixture) approvedAgent(t *testing.T, name string) (*accounts.Account, string) {
	t.Helper()
	ctx := context.Background()
	a, err := f.accounts.Register(ctx, accounts.RegisterRequest{Username: name})
	require.NoError(t, err)
	_, err = f.agents.Apply(ctx, a.ID)
	require.NoError(t, err)
	p, err := f.agents.Approve(ctx, a.ID, 1)
	require.NoError(t, err)
	return a, p.Code()
}

func TestRegisterPlain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.accounts.Register(ctx, accounts.RegisterRequest{Username: "  viewer "})
	require.NoError(t, err)
	assert.Equal(t, "viewer", a.Username)
	assert.Nil(t, a.ReferrerID)

	got, err := f.accounts.GetByUsername(ctx, "@viewer")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = f.accounts.Register(ctx, accounts.RegisterRequest{Username: "viewer"})
	assert.ErrorIs(t, err, common.ErrUsernameTaken)

	_, err = f.accounts.Register(ctx, accounts.RegisterRequest{Username: "   "})
	assert.Error(t, err)
}

func TestRegisterWithAgentCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent, code := f.approvedAgent(t, "agent")
	require.NotEmpty(t, code)

	a, err := f.accounts.Register(ctx, accounts.RegisterRequest{Username: "invited", ReferralCode: strings.ToLower(code)})
	require.NoError(t, err)
	require.NotNil(t, a.ReferrerID)
	assert.Equal(t, agent.ID, *a.ReferrerID)

	n, err := f.accounts.CountReferrals(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	m, err := f.agents.Monthly(ctx, agent.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, m.RecruitCount)
}

func TestRegisterWithReferrerID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	friend, err := f.accounts.Register(ctx, accounts.RegisterRequest{Username: "friend"})
	require.NoError(t, err)

	a, err := f.accounts.Register(ctx, accounts.RegisterRequest{Username: "invited", ReferrerID: &friend.ID})
	require.NoError(t, err)
	assert.Equal(t, friend.ID, *a.ReferrerID)

	missing := int64(9999)
	_, err = f.accounts.Register(ctx, accounts.RegisterRequest{Username: "lost", ReferrerID: &missing})
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	_, err = f.accounts.GetByUsername(ctx, "lost")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestRegisterUnknownCodeCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, accounts.RegisterRequest{Username: "invited", ReferralCode: "NOPE"})
	assert.ErrorIs(t, err, common.ErrAgentProfileNotFound)
	_, err = f.accounts.GetByUsername(ctx, "invited")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestRegisterDisabledAgentCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent, code := f.approvedAgent(t, "agent")
	_, err := f.agents.Disable(ctx, agent.ID, 1)
	require.NoError(t, err)

	_, err = f.accounts.Register(ctx, accounts.RegisterRequest{Username: "invited", ReferralCode: code})
	assert.ErrorIs(t, err, common.ErrAgentProfileNotFound)
}
