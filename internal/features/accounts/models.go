// Package accounts управляет аккаунтами пользователей и их реферальной привязкой.
// models.go описывает структуру аккаунта.
package accounts

import "time"

// Account — пользователь сервиса.
// ReferrerID задаётся один раз при регистрации и больше не меняется:
// по нему комиссионный движок находит прямого реферера покупателя.
type Account struct {
	ID         int64     `db:"id"`
	Username   string    `db:"username"`
	ReferrerID *int64    `db:"referrer_id"` // Кто пригласил (nil — пришёл сам)
	CreatedAt  time.Time `db:"created_at"`
}

// RegisterRequest — данные для регистрации.
// Реферер задаётся либо ID аккаунта, либо публичным кодом агента.
type RegisterRequest struct {
	Username     string
	ReferrerID   *int64
	ReferralCode string
}
