// Package paywall — покупка доступа к платным видео за монеты.
package paywall

import (
	"time"

	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// Access — на каком основании открыт доступ к видео.
type Access string

const (
	AccessPurchased  Access = "purchased"  // Куплено сейчас
	AccessOwned      Access = "owned"      // Куплено раньше, повторно не списываем
	AccessMembership Access = "membership" // Действующая подписка
)

// Unlock — факт покупки видео аккаунтом. Не больше одного на пару (аккаунт, видео).
type Unlock struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	VideoID   string    `db:"video_id"`
	Price     int64     `db:"price"`
	CreatedAt time.Time `db:"created_at"`
}

// UnlockResult — итог открытия доступа.
type UnlockResult struct {
	Access     Access
	Entry      *balance.Entry // Только для AccessPurchased
	NewBalance int64
}
