// Package accounts — service.go регистрирует аккаунты и ведёт учёт приглашений.
package accounts

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Store — хранилище аккаунтов.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id int64) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	CountReferrals(ctx context.Context, id int64) (int64, error)
}

// Referrals — агентская программа с точки зрения регистрации:
// разрешение публичного кода и учёт нового приглашённого.
type Referrals interface {
	ResolveCode(ctx context.Context, code string) (int64, error)
	RecordRecruit(ctx context.Context, accountID int64) error
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service управляет аккаунтами.
type Service struct {
	store     Store
	referrals Referrals
	tx        Transactor
}

// NewService создаёт новый сервис аккаунтов.
func NewService(store Store, referrals Referrals, tx Transactor) *Service {
	return &Service{store: store, referrals: referrals, tx: tx}
}

// Register создаёт аккаунт. Если указан реферер (ID или код агента),
// аккаунт навсегда привязывается к нему и реферер получает +1 приглашённого за месяц.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("имя пользователя не может быть пустым")
	}

	account := &Account{Username: username}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		referrerID, err := s.resolveReferrer(ctx, req)
		if err != nil {
			return err
		}
		account.ReferrerID = referrerID

		if err := s.store.Create(ctx, account); err != nil {
			return err
		}
		if referrerID != nil {
			return s.referrals.RecordRecruit(ctx, *referrerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id":  account.ID,
		"username":    account.Username,
		"referrer_id": account.ReferrerID,
	}).Info("Зарегистрирован новый аккаунт")
	return account, nil
}

func (s *Service) resolveReferrer(ctx context.Context, req RegisterRequest) (*int64, error) {
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		id, err := s.referrals.ResolveCode(ctx, code)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	if req.ReferrerID == nil {
		return nil, nil
	}
	if _, err := s.store.Get(ctx, *req.ReferrerID); err != nil {
		return nil, err
	}
	id := *req.ReferrerID
	return &id, nil
}

// Get возвращает аккаунт по ID.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return s.store.Get(ctx, id)
}

// GetByUsername возвращает аккаунт по имени (ведущий @ отбрасывается).
func (s *Service) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return s.store.GetByUsername(ctx, strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// CountReferrals возвращает количество приглашённых аккаунтом за всё время.
func (s *Service) CountReferrals(ctx context.Context, id int64) (int64, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return 0, err
	}
	return s.store.CountReferrals(ctx, id)
}

