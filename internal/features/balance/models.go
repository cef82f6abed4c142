// Package balance — хранилище балансов и журнал проводок.
// models.go описывает кошельки, балансы и записи журнала.
package balance

import "time"

// Wallet — кошелёк аккаунта. У каждого аккаунта не больше одного баланса на кошелёк.
type Wallet string

const (
	WalletCoins      Wallet = "coins"      // Монеты пользователя
	WalletCommission Wallet = "commission" // Доход агента (выводимый баланс)
)

// Valid сообщает, известен ли кошелёк.
func (w Wallet) Valid() bool {
	return w == WalletCoins || w == WalletCommission
}

// EntryType — тип проводки в журнале.
type EntryType string

const (
	TypeRecharge  EntryType = "recharge"  // Пополнение по одобренному заказу
	TypeCheckin   EntryType = "checkin"   // Награда за ежедневную отметку
	TypeExchange  EntryType = "exchange"  // Обмен монет на дни подписки
	TypeConsume   EntryType = "consume"   // Покупка контента (paywall)
	TypeAdjust    EntryType = "adjust"    // Ручная корректировка администратором
	TypePromotion EntryType = "promotion" // Комиссии и бонусы агентской программы
)

// Valid сообщает, известен ли тип проводки.
func (t EntryType) Valid() bool {
	switch t {
	case TypeRecharge, TypeCheckin, TypeExchange, TypeConsume, TypeAdjust, TypePromotion:
		return true
	}
	return false
}

// Balance — текущий баланс одного кошелька аккаунта.
// Создаётся лениво при первом обращении и никогда не удаляется.
type Balance struct {
	AccountID   int64     `db:"account_id"`
	Wallet      Wallet    `db:"wallet"`
	Balance     int64     `db:"balance"`      // Текущий баланс, всегда >= 0
	TotalEarned int64     `db:"total_earned"` // Сумма всех начислений
	TotalSpent  int64     `db:"total_spent"`  // Сумма всех списаний
	UpdatedAt   time.Time `db:"updated_at"`
}

// Entry — неизменяемая запись журнала.
// BalanceAfter равен балансу сразу после этой проводки.
type Entry struct {
	ID           int64          `db:"id"`
	AccountID    int64          `db:"account_id"`
	Wallet       Wallet         `db:"wallet"`
	Type         EntryType      `db:"entry_type"`
	Amount       int64          `db:"amount"` // Со знаком: + начисление, - списание
	BalanceAfter int64          `db:"balance_after"`
	Description  string         `db:"description"`
	Metadata     map[string]any `db:"metadata"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Posting — запрос на начисление или списание. Amount всегда положительный,
// направление задаёт метод (Credit или Debit).
type Posting struct {
	AccountID   int64
	Wallet      Wallet
	Type        EntryType
	Amount      int64
	Description string
	Metadata    map[string]any
}

// Result — итог одной проводки.
type Result struct {
	Entry      *Entry
	NewBalance int64
}

// BatchResult — итог пакетной корректировки.
type BatchResult struct {
	BatchID       string
	AffectedCount int
	Entries       []*Entry
}

// Reconciliation — сверка баланса с суммой журнала.
type Reconciliation struct {
	AccountID int64
	Wallet    Wallet
	Balance   int64
	LedgerSum int64
}

// Consistent сообщает, сходится ли баланс с журналом.
func (r *Reconciliation) Consistent() bool {
	return r.Balance == r.LedgerSum
}
