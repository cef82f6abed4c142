// Package checkin — service.go начисляет награду за ежедневную отметку.
// Серия растёт, если вчера тоже была отметка, иначе начинается заново.
package checkin

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// Store — хранилище отметок.
type Store interface {
	Last(ctx context.Context, accountID int64) (*Checkin, error)
	Insert(ctx context.Context, c *Checkin) error
}

// Ledger начисляет награду.
type Ledger interface {
	Credit(ctx context.Context, p balance.Posting) (*balance.Result, error)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service управляет отметками.
type Service struct {
	store   Store
	ledger  Ledger
	tx      Transactor
	loc     *time.Location
	enabled bool
	now     func() time.Time
}

// NewService создаёт сервис отметок. Дни считаются в часовом поясе loc.
func NewService(store Store, ledger Ledger, tx Transactor, loc *time.Location, enabled bool) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, ledger: ledger, tx: tx, loc: loc, enabled: enabled, now: time.Now}
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// dayKey переводит календарный день в значение для колонки DATE.
func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckIn отмечает аккаунт за сегодня и начисляет награду.
func (s *Service) CheckIn(ctx context.Context, accountID int64) (*Result, error) {
	if !s.enabled {
		return nil, common.ErrFeatureDisabled
	}

	today := dayKey(common.DayStart(s.now(), s.loc))
	result := &Result{}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		last, err := s.store.Last(ctx, accountID)
		if err != nil {
			return err
		}

		streak := 1
		if last != nil {
			lastDay := dayKey(last.Day)
			switch {
			case !lastDay.Before(today):
				return common.ErrAlreadyCheckedIn
			case lastDay.Equal(today.AddDate(0, 0, -1)):
				streak = last.Streak + 1
			}
		}

		c := &Checkin{AccountID: accountID, Day: today, Streak: streak, Reward: Reward(streak)}
		if err := s.store.Insert(ctx, c); err != nil {
			return err
		}
		res, err := s.ledger.Credit(ctx, balance.Posting{
			AccountID:   accountID,
			Wallet:      balance.WalletCoins,
			Type:        balance.TypeCheckin,
			Amount:      c.Reward,
			Description: RewardDescription(streak),
			Metadata:    map[string]any{"streak": streak},
		})
		if err != nil {
			return err
		}
		result.Checkin, result.Entry, result.NewBalance = c, res.Entry, res.NewBalance
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"streak":     result.Checkin.Streak,
		"reward":     result.Checkin.Reward,
	}).Debug("Ежедневная отметка")
	return result, nil
}
