// Package commission — repository.go работает с таблицей commission_records.
package commission

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/db/postgres"
)

// Repository реализует Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий комиссий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertRecord сохраняет запись о комиссии.
// Повторная комиссия тому же агенту по тому же заказу — ErrCommissionAlreadyDistributed.
func (r *Repository) InsertRecord(ctx context.Context, rec *Record) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO commission_records (order_id, buyer_id, agent_account_id, depth, rate_bp,
		                                order_amount, amount, batch_id, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, rec.OrderID, rec.BuyerID, rec.AgentAccountID, rec.Depth, rec.RateBP,
		rec.OrderAmount, rec.Amount, rec.BatchID, rec.LedgerEntryID).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "commission_records_order_agent_key") {
			return common.ErrCommissionAlreadyDistributed
		}
		return fmt.Errorf("ошибка записи комиссии: %w", err)
	}
	return nil
}

// ListByAgent возвращает последние комиссии агента (новые первыми).
func (r *Repository) ListByAgent(ctx context.Context, agentAccountID int64, limit int) ([]*Record, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, `
		SELECT id, order_id, buyer_id, agent_account_id, depth, rate_bp, order_amount,
		       amount, batch_id::text, ledger_entry_id, created_at
		FROM commission_records
		WHERE agent_account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, agentAccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения комиссий: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.BuyerID, &rec.AgentAccountID, &rec.Depth,
			&rec.RateBP, &rec.OrderAmount, &rec.Amount, &rec.BatchID, &rec.LedgerEntryID,
			&rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования комиссии: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
