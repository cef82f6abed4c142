// Package paywall — repository.go работает с таблицей video_unlocks.
package paywall

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/streaming-ledger/internal/db/postgres"
)

// Repository реализует Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий покупок видео.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertUnlock сохраняет покупку. Возвращает false, если видео уже куплено.
func (r *Repository) InsertUnlock(ctx context.Context, u *Unlock) (bool, error) {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO video_unlocks (account_id, video_id, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, video_id) DO NOTHING
		RETURNING id, created_at
	`, u.AccountID, u.VideoID, u.Price).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка сохранения покупки видео: %w", err)
	}
	return true, nil
}

// HasUnlock проверяет, куплено ли видео аккаунтом.
func (r *Repository) HasUnlock(ctx context.Context, accountID int64, videoID string) (bool, error) {
	var exists bool
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM video_unlocks WHERE account_id = $1 AND video_id = $2)
	`, accountID, videoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки покупки видео: %w", err)
	}
	return exists, nil
}
