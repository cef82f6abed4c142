// Package admin — вход администраторов по паролю и их сессии.
// models.go описывает сессии, попытки входа и состояние диалога.
package admin

import "time"

// Session — активная сессия администратора.
type Session struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// State — состояние пошагового диалога с админом.
// Живёт только в памяти и истекает через StateTTL.
type State struct {
	Name      string
	Data      any
	ExpiresAt time.Time
}

// Возможные состояния диалога
const (
	StateNone             = ""
	StateAwaitingPassword = "awaiting_password" // Ждём пароль после /login
	StateConfirmBatch     = "confirm_batch"     // Ждём подтверждения пакетной корректировки
)

// Параметры входа.
const (
	SessionTTL       = 24 * time.Hour
	StateTTL         = 5 * time.Minute
	MaxFailedLogins  = 3
	FailedLoginCheck = time.Hour
)
