// Package paywall — service.go открывает доступ к платным видео.
// Монеты списываются один раз на пару (аккаунт, видео); подписчики смотрят бесплатно.
package paywall

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// Store — хранилище покупок видео.
type Store interface {
	InsertUnlock(ctx context.Context, u *Unlock) (bool, error)
	HasUnlock(ctx context.Context, accountID int64, videoID string) (bool, error)
}

// Ledger списывает монеты за покупку.
type Ledger interface {
	Debit(ctx context.Context, p balance.Posting) (*balance.Result, error)
}

// Memberships проверяет действующую подписку.
type Memberships interface {
	IsActive(ctx context.Context, accountID int64) (bool, error)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service — paywall.
type Service struct {
	store       Store
	ledger      Ledger
	memberships Memberships
	tx          Transactor
}

// NewService создаёт paywall.
func NewService(store Store, ledger Ledger, memberships Memberships, tx Transactor) *Service {
	return &Service{store: store, ledger: ledger, memberships: memberships, tx: tx}
}

// Unlock открывает доступ к видео за price монет.
// Повторный вызов для купленного видео ничего не списывает.
// При нехватке монет покупка не сохраняется.
func (s *Service) Unlock(ctx context.Context, accountID int64, videoID string, price int64) (*UnlockResult, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, common.ErrVideoRequired
	}
	if price <= 0 {
		return nil, common.ErrInvalidAmount
	}

	result := &UnlockResult{}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		member, err := s.memberships.IsActive(ctx, accountID)
		if err != nil {
			return err
		}
		if member {
			result.Access = AccessMembership
			return nil
		}

		inserted, err := s.store.InsertUnlock(ctx, &Unlock{AccountID: accountID, VideoID: videoID, Price: price})
		if err != nil {
			return err
		}
		if !inserted {
			result.Access = AccessOwned
			return nil
		}

		res, err := s.ledger.Debit(ctx, balance.Posting{
			AccountID:   accountID,
			Wallet:      balance.WalletCoins,
			Type:        balance.TypeConsume,
			Amount:      price,
			Description: "Покупка видео " + videoID,
			Metadata:    map[string]any{"video_id": videoID},
		})
		if err != nil {
			return err
		}
		result.Access = AccessPurchased
		result.Entry = res.Entry
		result.NewBalance = res.NewBalance
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Access == AccessPurchased {
		log.WithFields(log.Fields{
			"account_id": accountID,
			"video_id":   videoID,
			"price":      price,
		}).Info("Видео куплено")
	}
	return result, nil
}

// HasAccess сообщает, может ли аккаунт смотреть видео без оплаты.
func (s *Service) HasAccess(ctx context.Context, accountID int64, videoID string) (bool, error) {
	member, err := s.memberships.IsActive(ctx, accountID)
	if err != nil || member {
		return member, err
	}
	return s.store.HasUnlock(ctx, accountID, strings.TrimSpace(videoID))
}
