// Package common — errors.go определяет бизнес-ошибки, которые используются во всех модулях.
// Каждая ошибка несёт стабильный код (для админки и API) и понятное сообщение.
// Эти ошибки ожидаемы и не означают порчу леджера: вызывающий показывает их как есть.
package common

import "errors"

// CodeInternal — код любой неожиданной ошибки (БД, сеть). Операцию нужно повторить.
const CodeInternal = "internal"

// Error — бизнес-ошибка со стабильным кодом.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Ошибки леджера (балансы, проводки)
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = newError("invalid_amount", "сумма должна быть положительной")
	// ErrInsufficientBalance — недостаточно средств на счёте
	ErrInsufficientBalance = newError("insufficient_balance", "недостаточно средств на счёте")
	// ErrAccountNotFound — аккаунт не найден
	ErrAccountNotFound = newError("account_not_found", "аккаунт не найден")
	ErrUsernameTaken   = newError("username_taken", "имя пользователя уже занято")
)

// Ошибки заказов
var (
	ErrOrderNotFound         = newError("order_not_found", "заказ не найден")
	ErrOrderAlreadyProcessed = newError("order_already_processed", "заказ уже обработан")
	ErrDuplicatePendingOrder = newError("duplicate_pending_order", "уже есть неоплаченный заказ на этот товар")
	ErrProductNotFound       = newError("product_not_found", "товар не найден")
)

// Ошибки агентской программы
var (
	ErrAgentProfileNotFound = newError("agent_profile_not_found", "профиль агента не найден")
	ErrAgentAlreadyExists   = newError("agent_already_exists", "заявка агента уже подана")
	// ErrAgentInvalidStatus — переход статуса агента недопустим из текущего состояния
	ErrAgentInvalidStatus = newError("agent_invalid_status", "недопустимый статус агента для операции")
	ErrLevelNotFound      = newError("level_not_found", "уровень агента не найден")
	// ErrInvalidRate — ставка передачи >= собственной ставки или отрицательная
	ErrInvalidRate = newError("invalid_rate", "некорректная ставка комиссии")
	// ErrCommissionAlreadyDistributed — по этому заказу агент уже получил комиссию
	ErrCommissionAlreadyDistributed = newError("commission_already_distributed", "комиссия по заказу уже начислена")
)

// Ошибки чекинов и paywall
var (
	ErrAlreadyCheckedIn = newError("already_checked_in", "сегодня вы уже отмечались")
	ErrFeatureDisabled  = newError("feature_disabled", "функция временно отключена")
	ErrVideoRequired    = newError("video_required", "не указано видео")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = newError("not_admin", "у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = newError("wrong_password", "неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = newError("too_many_attempts", "слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = newError("session_expired", "сессия истекла, авторизуйтесь заново")
)

// CodeOf возвращает код бизнес-ошибки или CodeInternal для всего остального.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsBusiness сообщает, является ли ошибка ожидаемой бизнес-ошибкой.
func IsBusiness(err error) bool {
	return CodeOf(err) != CodeInternal
}
