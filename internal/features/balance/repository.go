// Package balance — repository.go работает с таблицами balances и ledger_entries.
// Все методы берут исполнителя через postgres.Conn и участвуют в транзакции вызывающего.
package balance

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

// NewRepository создаёт новый репозиторий балансов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const balanceColumns = `account_id, wallet, balance, total_earned, total_spent, updated_at`

func scanBalance(row pgx.Row) (*Balance, error) {
	var b Balance
	if err := row.Scan(&b.AccountID, &b.Wallet, &b.Balance, &b.TotalEarned, &b.TotalSpent, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// ensure создаёт нулевой баланс, если его ещё нет.
// ON CONFLICT делает вызов безопасным при одновременном первом обращении.
func (r *Repository) ensure(ctx context.Context, accountID int64, wallet Wallet) error {
	_, err := postgres.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO balances (account_id, wallet)
		VALUES ($1, $2)
		ON CONFLICT (account_id, wallet) DO NOTHING
	`, accountID, wallet)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return common.ErrAccountNotFound
		}
		return fmt.Errorf("ошибка создания баланса: %w", err)
	}
	return nil
}

// GetOrCreate возвращает баланс кошелька, создавая нулевой при первом обращении.
func (r *Repository) GetOrCreate(ctx context.Context, accountID int64, wallet Wallet) (*Balance, error) {
	if err := r.ensure(ctx, accountID, wallet); err != nil {
		return nil, err
	}
	b, err := scanBalance(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE account_id = $1 AND wallet = $2`,
		accountID, wallet))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return b, nil
}

// LockForUpdate блокирует строку баланса до конца транзакции и возвращает текущее значение.
// Вне транзакции блокировка снимается сразу, поэтому вызывать только внутри InTx.
func (r *Repository) LockForUpdate(ctx context.Context, accountID int64, wallet Wallet) (int64, error) {
	if err := r.ensure(ctx, accountID, wallet); err != nil {
		return 0, err
	}
	var current int64
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT balance FROM balances WHERE account_id = $1 AND wallet = $2 FOR UPDATE
	`, accountID, wallet).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки баланса: %w", err)
	}
	return current, nil
}

// Increment атомарно прибавляет delta к балансу (balance = balance + delta)
// и возвращает значение после изменения. Строка баланса должна существовать.
// Нарушение CHECK (balance >= 0) превращается в ErrInsufficientBalance.
func (r *Repository) Increment(ctx context.Context, accountID int64, wallet Wallet, delta int64) (*Balance, error) {
	b, err := scanBalance(postgres.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE balances
		SET balance = balance + $3,
		    total_earned = total_earned + GREATEST($3, 0),
		    total_spent = total_spent + GREATEST(-$3, 0),
		    updated_at = NOW()
		WHERE account_id = $1 AND wallet = $2
		RETURNING `+balanceColumns,
		accountID, wallet, delta))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrAccountNotFound
		}
		if postgres.IsCheckViolation(err, "balances_balance_non_negative") {
			return nil, common.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("ошибка изменения баланса: %w", err)
	}
	return b, nil
}

// AppendEntry добавляет запись в журнал и заполняет ID и CreatedAt.
func (r *Repository) AppendEntry(ctx context.Context, e *Entry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO ledger_entries (account_id, wallet, entry_type, amount, balance_after, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, e.AccountID, e.Wallet, e.Type, e.Amount, e.BalanceAfter, e.Description, metadata).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

// ListEntries возвращает последние limit записей журнала кошелька (новые первыми).
func (r *Repository) ListEntries(ctx context.Context, accountID int64, wallet Wallet, limit int) ([]*Entry, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, `
		SELECT id, account_id, wallet, entry_type, amount, balance_after, description, metadata, created_at
		FROM ledger_entries
		WHERE account_id = $1 AND wallet = $2
		ORDER BY id DESC
		LIMIT $3
	`, accountID, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.Wallet, &e.Type, &e.Amount,
			&e.BalanceAfter, &e.Description, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SumEntries возвращает сумму всех проводок кошелька.
func (r *Repository) SumEntries(ctx context.Context, accountID int64, wallet Wallet) (int64, error) {
	var sum int64
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::BIGINT FROM ledger_entries WHERE account_id = $1 AND wallet = $2
	`, accountID, wallet).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ошибка сверки журнала: %w", err)
	}
	return sum, nil
}
