package adminbot

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("  /Orders@LedgerBot paid  ")
	assert.True(t, ok)
	assert.Equal(t, "orders", cmd)
	assert.Equal(t, []string{"paid"}, args)

	cmd, args, ok = p.ParseCommand("/logout")
	assert.True(t, ok)
	assert.Equal(t, "logout", cmd)
	assert.Nil(t, args)

	_, _, ok = p.ParseCommand("привет")
	assert.False(t, ok)
	_, _, ok = p.ParseCommand("/")
	assert.False(t, ok)
}

func TestParseHelpers(t *testing.T) {
	id, err := parseID("#15")
	assert.NoError(t, err)
	assert.Equal(t, int64(15), id)
	_, err = parseID("0")
	assert.Error(t, err)

	ids, err := parseIDList("1, 2,,3")
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	_, err = parseIDList(",")
	assert.Error(t, err)

	w, err := parseWallet("Комиссия")
	assert.NoError(t, err)
	assert.Equal(t, balance.WalletCommission, w)

	amount, err := parseSignedAmount("+250")
	assert.NoError(t, err)
	assert.Equal(t, int64(250), amount)
	amount, err = parseSignedAmount("-5")
	assert.NoError(t, err)
	assert.Equal(t, int64(-5), amount)

	_, err = parseRate("10001")
	assert.Error(t, err)
}

func TestFormatSigned(t *testing.T) {
	assert.Equal(t, "+1 500 монет", formatSigned(balance.WalletCoins, 1500))
	assert.Equal(t, "+12.34 ₽", formatSigned(balance.WalletCommission, 1234))
	assert.Equal(t, "-0.50 ₽", formatSigned(balance.WalletCommission, -50))
}
