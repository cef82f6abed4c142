// Package commission — models.go описывает вход и результат распределения.
package commission

import (
	"time"

	"serotonyl.ru/streaming-ledger/internal/features/agents"
)

// Input — данные оплаченного заказа для распределения.
type Input struct {
	OrderID *int64 // nil для распределения вне заказа
	BuyerID int64
	Amount  int64  // Сумма заказа в минимальных единицах
	AgentID *int64 // Явный агент вместо сохранённого реферера покупателя
}

// Result — итог распределения.
type Result struct {
	BatchID string
	Shares  []Share
	Upgrade *agents.LevelChange // Автоповышение прямого реферера, если случилось
}

// Total возвращает распределённую сумму.
func (r *Result) Total() int64 {
	return Total(r.Shares)
}

// Record — запись о комиссии агента с одного заказа.
// Уникальна по (OrderID, AgentAccountID).
type Record struct {
	ID             int64     `db:"id"`
	OrderID        *int64    `db:"order_id"`
	BuyerID        int64     `db:"buyer_id"`
	AgentAccountID int64     `db:"agent_account_id"`
	Depth          int       `db:"depth"`
	RateBP         int       `db:"rate_bp"`
	OrderAmount    int64     `db:"order_amount"`
	Amount         int64     `db:"amount"`
	BatchID        string    `db:"batch_id"`
	LedgerEntryID  int64     `db:"ledger_entry_id"`
	CreatedAt      time.Time `db:"created_at"`
}
