package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// chain: C (1000, передаёт 600) → B (600, передаёт 400) → A (400)
func chain() []Node {
	return []Node{
		{AccountID: 1, Active: true, CommissionRate: 400},
		{AccountID: 2, Active: true, CommissionRate: 600, PassDownRate: 400},
		{AccountID: 3, Active: true, CommissionRate: 1000, PassDownRate: 600},
	}
}

func amounts(shares []Share) map[int64]int64 {
	out := make(map[int64]int64, len(shares))
	for _, s := range shares {
		out[s.AccountID] = s.Amount
	}
	return out
}

func TestSplitFullChain(t *testing.T) {
	shares := Split(chain(), 10000)
	assert.Equal(t, map[int64]int64{1: 400, 2: 200, 3: 400}, amounts(shares))
	assert.Equal(t, int64(1000), Total(shares))
	assert.Equal(t, 1, shares[0].Depth)
	assert.Equal(t, 3, shares[2].Depth)
}

func TestSplitInactiveMiddleCarriesUp(t *testing.T) {
	c := chain()
	c[1].Active = false

	shares := Split(c, 10000)
	assert.Equal(t, map[int64]int64{1: 400, 3: 600}, amounts(shares))
	assert.Equal(t, 600, shares[1].RateBP)
	assert.Equal(t, int64(1000), Total(shares))
}

func TestSplitInactiveDirectCarriesUp(t *testing.T) {
	c := chain()
	c[0].Active = false

	shares := Split(c, 10000)
	assert.Equal(t, map[int64]int64{2: 600, 3: 400}, amounts(shares))
}

func TestSplitInactiveTopIsDropped(t *testing.T) {
	c := chain()
	c[2].Active = false

	shares := Split(c, 10000)
	assert.Equal(t, map[int64]int64{1: 400, 2: 200}, amounts(shares))
}

func TestSplitNeverExceedsTopRate(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		c := chain()
		for i := range c {
			c[i].Active = mask&(1<<i) != 0
		}
		assert.LessOrEqual(t, Total(Split(c, 12345)), int64(12345*1000/10000))
	}
}

func TestSplitFloorsAndSkipsZero(t *testing.T) {
	shares := Split(chain(), 999)
	assert.Equal(t, map[int64]int64{1: 39, 2: 19, 3: 39}, amounts(shares))

	shares = Split(chain(), 10)
	assert.Empty(t, shares)
}

func TestSplitSingleAgent(t *testing.T) {
	shares := Split([]Node{{AccountID: 7, Active: true, CommissionRate: 1500, PassDownRate: 1000}}, 20000)
	assert.Equal(t, map[int64]int64{7: 3000}, amounts(shares))
}
