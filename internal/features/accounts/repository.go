// Package accounts — repository.go выполняет запросы к таблице accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/db/postgres"
)

// Repository реализует Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий аккаунтов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create вставляет аккаунт и заполняет ID и CreatedAt.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO accounts (username, referrer_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, a.Username, a.ReferrerID).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "accounts_username_key") {
			return common.ErrUsernameTaken
		}
		if postgres.IsForeignKeyViolation(err) {
			return common.ErrAccountNotFound
		}
		return fmt.Errorf("ошибка создания аккаунта: %w", err)
	}
	return nil
}

// Get возвращает аккаунт по ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Account, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetByUsername возвращает аккаунт по имени пользователя.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.getBy(ctx, "username = $1", username)
}

func (r *Repository) getBy(ctx context.Context, where string, arg any) (*Account, error) {
	var a Account
	err := postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, username, referrer_id, created_at FROM accounts WHERE `+where, arg,
	).Scan(&a.ID, &a.Username, &a.ReferrerID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}
	return &a, nil
}

// ReferrerOf возвращает ID реферера аккаунта (nil, если его нет).
func (r *Repository) ReferrerOf(ctx context.Context, id int64) (*int64, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.ReferrerID, nil
}

// CountReferrals возвращает количество аккаунтов, приглашённых id, за всё время.
func (r *Repository) CountReferrals(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE referrer_id = $1`, id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта рефералов: %w", err)
	}
	return n, nil
}
