package adminbot

import (
	"context"
	"fmt"

	"serotonyl.ru/streaming-ledger/internal/features/orders"
)

// OrderPaid рассылает администраторам заказ, ожидающий проверки.
func (b *Bot) OrderPaid(ctx context.Context, o *orders.Order) {
	text := fmt.Sprintf("🧾 Оплачен заказ\n\n%s\n\n/approve %d · /reject %d", formatOrder(o, b.loc), o.ID, o.ID)
	for _, adminID := range b.cfg.AdminIDs {
		b.sendMessage(ctx, adminID, text)
	}
}
