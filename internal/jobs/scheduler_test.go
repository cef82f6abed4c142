package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/streaming-ledger/internal/features/agents"
)

type fakeSettler struct {
	calls int
	err   error
}

func (f *fakeSettler) SettleMonths(context.Context) (*agents.SettlementResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &agents.SettlementResult{Settled: 2, Bonus: 100}, nil
}

type fakeExpirer struct {
	calls int
	err   error
}

func (f *fakeExpirer) ExpireStale(context.Context) (int64, error) {
	f.calls++
	return 1, f.err
}

func TestSchedules(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	settle, err := parser.Parse(SettlementSpec)
	require.NoError(t, err)
	from := time.Date(2026, 3, 15, 12, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 4, 1, 3, 0, 0, 0, loc), settle.Next(from))

	expire, err := parser.Parse(ExpirySpec)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 12, 30, 0, 0, loc), expire.Next(from))
}

func TestJobsSurviveErrors(t *testing.T) {
	settler := &fakeSettler{err: errors.New("db down")}
	expirer := &fakeExpirer{err: errors.New("db down")}
	s := NewScheduler(settler, expirer, nil)

	s.settle(context.Background())
	s.expire(context.Background())
	assert.Equal(t, 1, settler.calls)
	assert.Equal(t, 1, expirer.calls)

	settler.err, expirer.err = nil, nil
	s.settle(context.Background())
	s.expire(context.Background())
	assert.Equal(t, 2, settler.calls)
	assert.Equal(t, 2, expirer.calls)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&fakeSettler{}, &fakeExpirer{}, time.UTC)
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
