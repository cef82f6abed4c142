// Package adminbot — handlers.go реализует команды админ-консоли.
// Каждый обработчик возвращает текст ответа, отправкой занимается bot.go.
package adminbot

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/admin"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
)

// listLimit — сколько строк выводят списки.
const listLimit = 20

// batchRequest — пакетная корректировка, ожидающая подтверждения.
type batchRequest struct {
	Wallet     balance.Wallet
	Amount     int64
	AccountIDs []int64
	Note       string
}

func (b *Bot) login(ctx context.Context, userID int64, password string) string {
	if password == "" {
		return "❌ Пароль не может быть пустым"
	}
	session, err := b.svc.Admin.Login(ctx, userID, password)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("✅ Вы вошли. Сессия действует до %s\n\n%s",
		common.FormatDateTime(session.ExpiresAt, b.loc), helpText)
}

func (b *Bot) logout(ctx context.Context, userID int64) string {
	if err := b.svc.Admin.Logout(ctx, userID); err != nil {
		return errorText(err)
	}
	return "👋 Сессия закрыта"
}

// handleOrders — /orders [status].
func (b *Bot) handleOrders(ctx context.Context, args []string) string {
	status := orders.StatusPaid
	if len(args) > 0 {
		status = orders.Status(strings.ToLower(args[0]))
	}
	switch status {
	case orders.StatusPending, orders.StatusPaid, orders.StatusApproved:
	default:
		return "❌ Статус: pending, paid или approved"
	}

	list, err := b.svc.Orders.ListByStatus(ctx, status, listLimit)
	if err != nil {
		return errorText(err)
	}
	if len(list) == 0 {
		return fmt.Sprintf("📭 Заказов со статусом %s нет", status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Заказы (%s):\n", status)
	for _, o := range list {
		sb.WriteString("\n")
		sb.WriteString(formatOrder(o, b.loc))
		sb.WriteString("\n")
	}
	return sb.String()
}

// handleApprove — /approve <id>.
func (b *Bot) handleApprove(ctx context.Context, userID int64, args []string) string {
	if len(args) < 1 {
		return "❌ Формат: /approve <id заказа>"
	}
	orderID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}

	res, err := b.svc.Orders.Approve(ctx, orderID, userID)
	if err != nil {
		return errorText(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Заказ %s одобрен\n", res.Order.OrderNo)
	switch res.Order.Kind {
	case orders.KindCoins:
		fmt.Fprintf(&sb, "Начислено: %s покупателю %d\n", common.FormatCoins(res.Order.Coins), res.Order.BuyerID)
	case orders.KindMembership:
		fmt.Fprintf(&sb, "Подписка продлена на %d %s покупателю %d\n",
			res.Order.Days, common.PluralizeDays(res.Order.Days), res.Order.BuyerID)
	}
	sb.WriteString(formatCommission(res))
	return sb.String()
}

// handleReject — /reject <id> [причина].
func (b *Bot) handleReject(ctx context.Context, userID int64, args []string) string {
	if len(args) < 1 {
		return "❌ Формат: /reject <id заказа> [причина]"
	}
	orderID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	reason := strings.Join(args[1:], " ")

	o, err := b.svc.Orders.Reject(ctx, orderID, userID, reason)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("🗑 Заказ %s отклонён и удалён", o.OrderNo)
}

// handleBalance — /balance <аккаунт>.
func (b *Bot) handleBalance(ctx context.Context, args []string) string {
	if len(args) < 1 {
		return "❌ Формат: /balance <id аккаунта>"
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Аккаунт %d\n", accountID)
	for _, wallet := range []balance.Wallet{balance.WalletCoins, balance.WalletCommission} {
		rec, err := b.svc.Balance.Reconcile(ctx, accountID, wallet)
		if err != nil {
			return errorText(err)
		}
		fmt.Fprintf(&sb, "\n%s: %s", walletTitle(wallet), formatAmount(wallet, rec.Balance))
		if !rec.Consistent() {
			fmt.Fprintf(&sb, " ⚠️ журнал: %s", formatAmount(wallet, rec.LedgerSum))
		}
	}
	return sb.String()
}

// handleAdjust — /adjust <аккаунт> <кошелёк> <±сумма> [комментарий].
func (b *Bot) handleAdjust(ctx context.Context, userID int64, args []string) string {
	if len(args) < 3 {
		return "❌ Формат: /adjust <аккаунт> <coins|commission> <±сумма> [комментарий]"
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	wallet, err := parseWallet(args[1])
	if err != nil {
		return "❌ " + err.Error()
	}
	amount, err := parseSignedAmount(args[2])
	if err != nil {
		return "❌ " + err.Error()
	}
	note := strings.Join(args[3:], " ")

	res, err := b.svc.Balance.Adjust(ctx, accountID, wallet, amount, userID, note)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("✅ Аккаунт %d: %s\nБаланс: %s",
		accountID, formatSigned(wallet, amount), formatAmount(wallet, res.NewBalance))
}

// handleBatchAdjust — /batchadjust <кошелёк> <±сумма> <id,id,...> [комментарий].
// Выполняется только после подтверждения.
func (b *Bot) handleBatchAdjust(userID int64, args []string) string {
	if len(args) < 3 {
		return "❌ Формат: /batchadjust <coins|commission> <±сумма> <id,id,...> [комментарий]"
	}
	wallet, err := parseWallet(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	amount, err := parseSignedAmount(args[1])
	if err != nil {
		return "❌ " + err.Error()
	}
	ids, err := parseIDList(args[2])
	if err != nil {
		return "❌ " + err.Error()
	}

	req := batchRequest{Wallet: wallet, Amount: amount, AccountIDs: ids, Note: strings.Join(args[3:], " ")}
	b.svc.Admin.SetState(userID, admin.StateConfirmBatch, req)

	return fmt.Sprintf("⚠️ %s для %d аккаунтов (%s).\nЛюбая ошибка отменит всю операцию.\nОтветьте «да» для подтверждения.",
		formatSigned(wallet, amount), len(ids), walletTitle(wallet))
}

func (b *Bot) confirmBatch(ctx context.Context, userID int64, state *admin.State, text string) string {
	answer := strings.ToLower(strings.TrimSpace(text))
	if answer != "да" && answer != "yes" {
		return "↩️ Пакетная корректировка отменена"
	}
	req, ok := state.Data.(batchRequest)
	if !ok {
		log.WithField("user_id", userID).Error("confirm_batch без данных")
		return "❌ Нечего подтверждать"
	}
	if err := b.svc.Admin.Authorize(ctx, userID); err != nil {
		return errorText(err)
	}

	res, err := b.svc.Balance.BatchAdjust(ctx, req.AccountIDs, req.Wallet, req.Amount, userID, req.Note)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("✅ Пакет %s: %s для %d аккаунтов", res.BatchID, formatSigned(req.Wallet, req.Amount), res.AffectedCount)
}

// handlePendingAgents — /agents.
func (b *Bot) handlePendingAgents(ctx context.Context) string {
	list, err := b.svc.Agents.ListPending(ctx, listLimit)
	if err != nil {
		return errorText(err)
	}
	if len(list) == 0 {
		return "📭 Заявок нет"
	}

	var sb strings.Builder
	sb.WriteString("📝 Заявки агентов:\n")
	for _, p := range list {
		fmt.Fprintf(&sb, "\nАккаунт %d · подана %s", p.AccountID, common.FormatDateTime(p.CreatedAt, b.loc))
		if p.ParentAgentID != nil {
			fmt.Fprintf(&sb, " · родитель %d", *p.ParentAgentID)
		}
	}
	return sb.String()
}

// handleLevels — /levels.
func (b *Bot) handleLevels(ctx context.Context) string {
	levels, err := b.svc.Agents.Levels(ctx)
	if err != nil {
		return errorText(err)
	}
	if len(levels) == 0 {
		return "📭 Уровни не настроены"
	}

	var sb strings.Builder
	sb.WriteString("🏆 Уровни:\n")
	for _, l := range levels {
		sb.WriteString("\n")
		sb.WriteString(formatLevel(l))
	}
	return sb.String()
}

// handleAgentApprove — /agent_approve <аккаунт>.
func (b *Bot) handleAgentApprove(ctx context.Context, userID int64, args []string) string {
	if len(args) < 1 {
		return "❌ Формат: /agent_approve <id аккаунта>"
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	p, err := b.svc.Agents.Approve(ctx, accountID, userID)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("✅ Агент %d одобрен\nКод: %s\nСтавка: %s",
		accountID, p.Code(), common.FormatRate(p.CommissionRate))
}

// handleAgentStatus — общие /agent_reject, /agent_disable, /agent_enable.
func (b *Bot) handleAgentStatus(
	ctx context.Context,
	userID int64,
	args []string,
	op func(ctx context.Context, accountID, actorID int64) (*agents.Profile, error),
	done string,
) string {
	if len(args) < 1 {
		return "❌ Укажите id аккаунта"
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	if _, err := op(ctx, accountID, userID); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("%s (аккаунт %d)", done, accountID)
}

// handleAgentLevel — /agent_level <аккаунт> <id уровня> [ставка] [причина].
func (b *Bot) handleAgentLevel(ctx context.Context, userID int64, args []string) string {
	if len(args) < 2 {
		return "❌ Формат: /agent_level <аккаунт> <id уровня> [ставка б.п.] [причина]"
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	levelID, err := parseID(args[1])
	if err != nil {
		return "❌ " + err.Error()
	}

	req := agents.ChangeLevelRequest{AccountID: accountID, LevelID: levelID, ActorID: userID}
	rest := args[2:]
	if len(rest) > 0 {
		if rate, err := parseRate(rest[0]); err == nil {
			req.RateOverride = &rate
			rest = rest[1:]
		}
	}
	req.Reason = strings.Join(rest, " ")

	change, err := b.svc.Agents.ChangeLevel(ctx, req)
	if err != nil {
		return errorText(err)
	}
	if change == nil {
		return "ℹ️ Агент уже на этом уровне"
	}
	return fmt.Sprintf("✅ Агент %d: %s → %s", accountID, levelName(change.FromLevelName), change.ToLevelName)
}

// handleAgentRates — /agent_rates <аккаунт> <ставка> <ставка передачи>.
func (b *Bot) handleAgentRates(ctx context.Context, userID int64, args []string) string {
	if len(args) < 3 {
		return "❌ Формат: /agent_rates <аккаунт> <ставка б.п.> <ставка передачи б.п.>"
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return "❌ " + err.Error()
	}
	rate, err := parseRate(args[1])
	if err != nil {
		return "❌ " + err.Error()
	}
	passDown, err := parseRate(args[2])
	if err != nil {
		return "❌ " + err.Error()
	}

	p, err := b.svc.Agents.SetRates(ctx, accountID, rate, passDown, userID)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("✅ Агент %d: ставка %s, передача %s",
		accountID, common.FormatRate(p.CommissionRate), common.FormatRate(p.PassDownRate))
}

// errorText превращает ошибку в ответ. Бизнес-ошибки показываются как есть,
// остальные логируются.
func errorText(err error) string {
	if common.IsBusiness(err) {
		return "❌ " + err.Error()
	}
	log.WithError(err).Error("Ошибка обработки команды")
	return "❌ Внутренняя ошибка, повторите попытку"
}
