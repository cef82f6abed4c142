// Package membership — подписка пользователя: дата окончания и её продление.
package membership

import "time"

// Membership — подписка аккаунта. Продление всегда считается от
// max(текущий конец, сейчас), поэтому оплаченные дни не сгорают.
type Membership struct {
	AccountID int64     `db:"account_id"`
	ExpiresAt time.Time `db:"expires_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ActiveAt сообщает, действует ли подписка в момент t.
func (m *Membership) ActiveAt(t time.Time) bool {
	return m != nil && m.ExpiresAt.After(t)
}

// DaysLeft возвращает число полных и неполных дней до окончания (0, если истекла).
func (m *Membership) DaysLeft(t time.Time) int {
	if !m.ActiveAt(t) {
		return 0
	}
	left := m.ExpiresAt.Sub(t)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) > 0 {
		days++
	}
	return days
}
