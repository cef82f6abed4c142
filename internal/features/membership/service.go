// Package membership — service.go продлевает подписки и обменивает монеты на дни.
package membership

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// Store — хранилище подписок.
type Store interface {
	Extend(ctx context.Context, accountID int64, days int, now time.Time) (*Membership, error)
	Get(ctx context.Context, accountID int64) (*Membership, error)
}

// Ledger списывает монеты при обмене.
type Ledger interface {
	Debit(ctx context.Context, p balance.Posting) (*balance.Result, error)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExchangeResult — итог обмена монет на дни подписки.
type ExchangeResult struct {
	Membership *Membership
	Spent      int64
	NewBalance int64
}

// Service управляет подписками.
type Service struct {
	store       Store
	ledger      Ledger
	tx          Transactor
	coinsPerDay int64
	now         func() time.Time
}

// NewService создаёт сервис подписок. coinsPerDay — цена одного дня при обмене.
func NewService(store Store, ledger Ledger, tx Transactor, coinsPerDay int64) *Service {
	return &Service{store: store, ledger: ledger, tx: tx, coinsPerDay: coinsPerDay, now: time.Now}
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Extend продлевает подписку на days дней.
func (s *Service) Extend(ctx context.Context, accountID int64, days int) (*Membership, error) {
	if days <= 0 {
		return nil, common.ErrInvalidAmount
	}
	m, err := s.store.Extend(ctx, accountID, days, s.now())
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"days":       days,
		"expires_at": m.ExpiresAt,
	}).Info("Подписка продлена")
	return m, nil
}

// Get возвращает подписку аккаунта (nil — подписки не было).
func (s *Service) Get(ctx context.Context, accountID int64) (*Membership, error) {
	return s.store.Get(ctx, accountID)
}

// IsActive сообщает, действует ли подписка сейчас.
func (s *Service) IsActive(ctx context.Context, accountID int64) (bool, error) {
	m, err := s.store.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	return m.ActiveAt(s.now()), nil
}

// Exchange покупает days дней подписки за монеты.
// Списание и продление выполняются одной транзакцией.
func (s *Service) Exchange(ctx context.Context, accountID int64, days int) (*ExchangeResult, error) {
	if days <= 0 {
		return nil, common.ErrInvalidAmount
	}
	price := int64(days) * s.coinsPerDay

	result := &ExchangeResult{Spent: price}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.ledger.Debit(ctx, balance.Posting{
			AccountID:   accountID,
			Wallet:      balance.WalletCoins,
			Type:        balance.TypeExchange,
			Amount:      price,
			Description: fmt.Sprintf("Обмен на %d %s подписки", days, common.PluralizeDays(days)),
			Metadata:    map[string]any{"days": days},
		})
		if err != nil {
			return err
		}
		result.NewBalance = res.NewBalance

		result.Membership, err = s.store.Extend(ctx, accountID, days, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"days":       days,
		"spent":      price,
	}).Info("Монеты обменяны на подписку")
	return result, nil
}
