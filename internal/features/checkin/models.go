// Package checkin — ежедневная отметка с наградой в монетах.
// models.go описывает запись отметки и таблицу наград.
package checkin

import (
	"time"

	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// Checkin — отметка аккаунта за календарный день.
type Checkin struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	Day       time.Time `db:"day"`    // Календарный день в часовом поясе приложения
	Streak    int       `db:"streak"` // Дней подряд, включая этот
	Reward    int64     `db:"reward"`
	CreatedAt time.Time `db:"created_at"`
}

// Result — итог отметки.
type Result struct {
	Checkin    *Checkin
	Entry      *balance.Entry
	NewBalance int64
}

// Rewards — награды по дню серии (индекс 0 = первый день).
// С седьмого дня и далее — последнее значение.
var Rewards = []int64{10, 20, 30, 40, 50, 60, 70}
