package common

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyRateTruncates(t *testing.T) {
	assert.Equal(t, int64(1000), ApplyRate(10000, 1000))
	assert.Equal(t, int64(0), ApplyRate(9, 1000))
	assert.Equal(t, int64(3), ApplyRate(33, 1000))
	assert.Equal(t, int64(0), ApplyRate(10000, 0))
	assert.Equal(t, int64(0), ApplyRate(-100, 1000))
}

func TestPluralizeCoins(t *testing.T) {
	cases := map[int64]string{
		1: "монета", 21: "монета", 3: "монеты", 24: "монеты",
		11: "монет", 12: "монет", 5: "монет", 100: "монет", 111: "монет",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralizeCoins(n), "n=%d", n)
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "2 350", FormatNumber(2350))
	assert.Equal(t, "1 000 000", FormatNumber(1000000))
	assert.Equal(t, "1 234.05", FormatMoney(123405))
	assert.Equal(t, "-0.50", FormatMoney(-50))
	assert.Equal(t, "6.50%", FormatRate(650))
	assert.Equal(t, "-50 монет", FormatSignedCoins(-50))
}

func TestMonthStartUsesLocation(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	// 31 октября 22:30 UTC — это уже 1 ноября по Москве
	ts := time.Date(2026, 10, 31, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, loc), MonthStart(ts, loc))
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, loc), DayStart(ts, loc))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "insufficient_balance", CodeOf(fmt.Errorf("debit: %w", ErrInsufficientBalance)))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("connection refused")))
	assert.True(t, IsBusiness(ErrOrderNotFound))
}
