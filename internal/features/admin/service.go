// Package admin — service.go: вход по паролю, сессии и состояние диалога.
// Три неудачные попытки за час блокируют вход, сессия живёт 24 часа.
package admin

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
)

// Store — хранилище сессий и попыток входа.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetActiveSession(ctx context.Context, userID int64, now time.Time) (*Session, error)
	DeactivateSessions(ctx context.Context, userID int64) error
	TouchSession(ctx context.Context, userID int64) error
	LogAttempt(ctx context.Context, userID int64, success bool) error
	CountFailedSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Service управляет доступом администраторов.
type Service struct {
	store        Store
	adminIDs     map[int64]struct{}
	passwordHash string
	now          func() time.Time

	states   map[int64]*State
	statesMu sync.RWMutex
}

// NewService создаёт сервис. adminIDs — Telegram ID, которым разрешён вход.
func NewService(store Store, adminIDs []int64, passwordHash string) *Service {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &Service{
		store:        store,
		adminIDs:     ids,
		passwordHash: passwordHash,
		now:          time.Now,
		states:       make(map[int64]*State),
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.adminIDs[userID]
	return ok
}

// Login проверяет пароль и открывает сессию.
func (s *Service) Login(ctx context.Context, userID int64, password string) (*Session, error) {
	if !s.IsAdmin(userID) {
		return nil, common.ErrNotAdmin
	}

	failed, err := s.store.CountFailedSince(ctx, userID, s.now().Add(-FailedLoginCheck))
	if err != nil {
		return nil, err
	}
	if failed >= MaxFailedLogins {
		return nil, common.ErrTooManyAttempts
	}

	match := VerifyPassword(password, s.passwordHash)
	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return nil, common.ErrWrongPassword
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	session := &Session{
		UserID:       userID,
		SessionToken: token,
		ExpiresAt:    s.now().Add(SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.WithField("user_id", userID).Info("Администратор вошёл")
	return session, nil
}

// Authorize проверяет, что пользователь — админ с действующей сессией,
// и продлевает отметку активности.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	session, err := s.store.GetActiveSession(ctx, userID, s.now())
	if err != nil {
		return err
	}
	if session == nil {
		return common.ErrSessionExpired
	}
	if err := s.store.TouchSession(ctx, userID); err != nil {
		log.WithError(err).Warn("Не удалось обновить активность сессии")
	}
	return nil
}

// Logout закрывает сессии администратора.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.store.DeactivateSessions(ctx, userID)
}

// GetState возвращает текущее состояние диалога или nil.
func (s *Service) GetState(userID int64) *State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok || s.now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога на StateTTL.
func (s *Service) SetState(userID int64, name string, data any) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &State{
		Name:      name,
		Data:      data,
		ExpiresAt: s.now().Add(StateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}
