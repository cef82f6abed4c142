// Package checkin — repository.go работает с таблицей checkins.
package checkin

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

// NewRepository создаёт новый репозиторий отметок.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Last возвращает последнюю отметку аккаунта или nil.
func (r *Repository) Last(ctx context.Context, accountID int64) (*Checkin, error) {
	var c Checkin
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, account_id, day, streak, reward, created_at
		FROM checkins WHERE account_id = $1
		ORDER BY day DESC LIMIT 1
	`, accountID).Scan(&c.ID, &c.AccountID, &c.Day, &c.Streak, &c.Reward, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения отметки: %w", err)
	}
	return &c, nil
}

// Insert сохраняет отметку. Вторая отметка за день — ErrAlreadyCheckedIn.
func (r *Repository) Insert(ctx context.Context, c *Checkin) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO checkins (account_id, day, streak, reward)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, c.AccountID, c.Day, c.Streak, c.Reward).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "checkins_account_day_key") {
			return common.ErrAlreadyCheckedIn
		}
		if postgres.IsForeignKeyViolation(err) {
			return common.ErrAccountNotFound
		}
		return fmt.Errorf("ошибка сохранения отметки: %w", err)
	}
	return nil
}
