package adminbot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
)

func walletTitle(w balance.Wallet) string {
	switch w {
	case balance.WalletCoins:
		return "Монеты"
	case balance.WalletCommission:
		return "Комиссия"
	}
	return string(w)
}

// formatAmount: монеты штучные, комиссия в копейках.
func formatAmount(w balance.Wallet, amount int64) string {
	if w == balance.WalletCommission {
		return common.FormatMoney(amount) + " ₽"
	}
	return common.FormatCoins(amount)
}

func formatSigned(w balance.Wallet, amount int64) string {
	if w == balance.WalletCommission {
		if amount >= 0 {
			return "+" + formatAmount(w, amount)
		}
		return formatAmount(w, amount)
	}
	return common.FormatSignedCoins(amount)
}

func formatOrder(o *orders.Order, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d · %s · %s ₽ · покупатель %d", o.ID, o.OrderNo, common.FormatMoney(o.Amount), o.BuyerID)
	switch o.Kind {
	case orders.KindCoins:
		fmt.Fprintf(&sb, "\n  %s", common.FormatCoins(o.Coins))
	case orders.KindMembership:
		fmt.Fprintf(&sb, "\n  подписка %d %s", o.Days, common.PluralizeDays(o.Days))
	}
	fmt.Fprintf(&sb, " · код %s · %s", o.RemarkCode, common.FormatDateTime(o.CreatedAt, loc))
	if o.ProofURL != nil && *o.ProofURL != "" {
		fmt.Fprintf(&sb, "\n  чек: %s", *o.ProofURL)
	}
	if o.ProofNote != nil && *o.ProofNote != "" {
		fmt.Fprintf(&sb, "\n  комментарий: %s", *o.ProofNote)
	}
	return sb.String()
}

func formatCommission(res *orders.ApproveResult) string {
	if res.Commission == nil || len(res.Commission.Shares) == 0 {
		return "Комиссия: нет агентов"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Комиссия: %s ₽", common.FormatMoney(res.Commission.Total()))
	for _, s := range res.Commission.Shares {
		fmt.Fprintf(&sb, "\n  ур.%d аккаунт %d: %s ₽ (%s)", s.Depth, s.AccountID, common.FormatMoney(s.Amount), common.FormatRate(s.RateBP))
	}
	if up := res.Commission.Upgrade; up != nil {
		fmt.Fprintf(&sb, "\n⬆️ Агент %d повышен: %s → %s", up.AccountID, levelName(up.FromLevelName), up.ToLevelName)
	}
	return sb.String()
}

func formatLevel(l *agents.Level) string {
	s := fmt.Sprintf("%d. %s (id %d) · ставка %s", l.SortOrder, l.Name, l.ID, common.FormatRate(l.CommissionRate))
	if l.RequiredReferrals > 0 || l.RequiredSales > 0 {
		s += fmt.Sprintf(" · от %d приглашённых и %s ₽ за месяц", l.RequiredReferrals, common.FormatMoney(l.RequiredSales))
	}
	if l.BonusEnabled {
		s += " · бонус " + common.FormatRate(l.BonusRate)
	}
	if !l.Enabled {
		s += " · отключён"
	}
	return s
}

func levelName(name string) string {
	if name == "" {
		return "—"
	}
	return name
}

// parseRate разбирает ставку в базисных пунктах.
func parseRate(s string) (int, error) {
	rate, err := strconv.Atoi(s)
	if err != nil || rate < 0 || rate > common.BasisPoints {
		return 0, fmt.Errorf("некорректная ставка %q", s)
	}
	return rate, nil
}
