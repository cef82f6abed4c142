// Package membership — repository.go работает с таблицей memberships.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/db/postgres"
)

// Repository реализует Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий подписок.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Extend атомарно продлевает подписку на days дней от max(expires_at, now).
func (r *Repository) Extend(ctx context.Context, accountID int64, days int, now time.Time) (*Membership, error) {
	var m Membership
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO memberships (account_id, expires_at)
		VALUES ($1, $2::timestamptz + make_interval(days => $3))
		ON CONFLICT (account_id) DO UPDATE
		SET expires_at = GREATEST(memberships.expires_at, $2::timestamptz) + make_interval(days => $3),
		    updated_at = NOW()
		RETURNING account_id, expires_at, updated_at
	`, accountID, now, days).Scan(&m.AccountID, &m.ExpiresAt, &m.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, common.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ошибка продления подписки: %w", err)
	}
	return &m, nil
}

// Get возвращает подписку аккаунта или nil, если её никогда не было.
func (r *Repository) Get(ctx context.Context, accountID int64) (*Membership, error) {
	var m Membership
	err := postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT account_id, expires_at, updated_at FROM memberships WHERE account_id = $1`, accountID,
	).Scan(&m.AccountID, &m.ExpiresAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения подписки: %w", err)
	}
	return &m, nil
}
