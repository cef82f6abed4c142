// Package orders — заказы на покупку монет и подписки.
// Статусы меняются только вперёд: pending → paid → approved,
// а pending|paid → rejected означает удаление заказа.
package orders

import (
	"errors"
	"time"

	"serotonyl.ru/streaming-ledger/internal/features/commission"
)

// ErrOrderNoTaken — сгенерированный номер заказа уже занят. Наружу не выходит,
// сервис повторяет вставку с новым номером.
var ErrOrderNoTaken = errors.New("номер заказа уже занят")

// Kind — что покупается.
type Kind string

const (
	KindCoins      Kind = "coins"
	KindMembership Kind = "membership"
)

// Status — статус заказа.
type Status string

const (
	StatusPending  Status = "pending"  // Создан, ждёт оплаты
	StatusPaid     Status = "paid"     // Покупатель приложил подтверждение
	StatusApproved Status = "approved" // Админ подтвердил оплату, всё начислено
	StatusRejected Status = "rejected" // Для метрик и логов: отклонённые заказы удаляются
)

// Product — пакет монет или тариф подписки.
type Product struct {
	ID     int64  `db:"id"`
	Kind   Kind   `db:"kind"`
	Name   string `db:"name"`
	Price  int64  `db:"price"` // Цена в копейках
	Coins  int64  `db:"coins"` // Для KindCoins
	Days   int    `db:"days"`  // Для KindMembership
	Active bool   `db:"active"`
}

// Order — заказ покупателя.
// Количество монет и дней копируется из товара при создании.
type Order struct {
	ID         int64      `db:"id"`
	OrderNo    string     `db:"order_no"`
	BuyerID    int64      `db:"buyer_id"`
	ProductID  int64      `db:"product_id"`
	Kind       Kind       `db:"kind"`
	Amount     int64      `db:"amount"`
	Coins      int64      `db:"coins"`
	Days       int        `db:"days"`
	Status     Status     `db:"status"`
	AgentID    *int64     `db:"agent_id"`    // Явный агент вместо реферера покупателя
	RemarkCode string     `db:"remark_code"` // Код для сверки ручного платежа
	ProofURL   *string    `db:"proof_url"`
	ProofNote  *string    `db:"proof_note"`
	ReviewerID *int64     `db:"reviewer_id"`
	ReviewedAt *time.Time `db:"reviewed_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// Proof — подтверждение оплаты от покупателя.
type Proof struct {
	URL  string
	Note string
}

// CreateRequest — данные для создания заказа.
type CreateRequest struct {
	BuyerID   int64
	ProductID int64
	AgentID   *int64
}

// ApproveResult — итог одобрения заказа.
type ApproveResult struct {
	Order      *Order
	Credited   bool               // Монеты или дни подписки начислены
	Commission *commission.Result // nil, если комиссии отключены
}
