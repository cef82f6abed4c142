// Package orders — repository.go работает с таблицами products и orders.
// Переходы статусов — условные UPDATE/DELETE: строка меняется, только если
// её статус совпадает с ожидаемым, поэтому из двух одновременных решений
// проходит ровно одно.
package orders

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

// NewRepository создаёт новый репозиторий заказов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetProduct возвращает товар по ID.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, kind, name, price, coins, days, active FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Kind, &p.Name, &p.Price, &p.Coins, &p.Days, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrProductNotFound
		}
		return nil, fmt.Errorf("ошибка получения товара: %w", err)
	}
	return &p, nil
}

// CreateProduct добавляет товар.
func (r *Repository) CreateProduct(ctx context.Context, p *Product) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO products (kind, name, price, coins, days, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.Kind, p.Name, p.Price, p.Coins, p.Days, p.Active).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания товара: %w", err)
	}
	return nil
}

// Create вставляет заказ.
// Второй pending-заказ на ту же пару (покупатель, товар) — ErrDuplicatePendingOrder.
func (r *Repository) Create(ctx context.Context, o *Order) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO orders (order_no, buyer_id, product_id, kind, amount, coins, days,
		                    status, agent_id, remark_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, o.OrderNo, o.BuyerID, o.ProductID, o.Kind, o.Amount, o.Coins, o.Days,
		o.Status, o.AgentID, o.RemarkCode).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "orders_one_pending_per_item") {
			return common.ErrDuplicatePendingOrder
		}
		if postgres.IsUniqueViolation(err, "orders_order_no_key") {
			return ErrOrderNoTaken
		}
		if postgres.IsForeignKeyViolation(err) {
			return common.ErrAccountNotFound
		}
		return fmt.Errorf("ошибка создания заказа: %w", err)
	}
	return nil
}

const orderColumns = `id, order_no, buyer_id, product_id, kind, amount, coins, days, status,
	agent_id, remark_code, proof_url, proof_note, reviewer_id, reviewed_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNo, &o.BuyerID, &o.ProductID, &o.Kind, &o.Amount, &o.Coins,
		&o.Days, &o.Status, &o.AgentID, &o.RemarkCode, &o.ProofURL, &o.ProofNote,
		&o.ReviewerID, &o.ReviewedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrOrderNotFound
		}
		return nil, fmt.Errorf("ошибка получения заказа: %w", err)
	}
	return &o, nil
}

// Get возвращает заказ по ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// MarkPaid переводит pending-заказ в paid и прикладывает подтверждение.
// Возвращает nil, nil, если заказ не в статусе pending.
func (r *Repository) MarkPaid(ctx context.Context, id int64, proof Proof) (*Order, error) {
	o, err := scanOrder(postgres.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE orders
		SET status = 'paid', proof_url = NULLIF($2, ''), proof_note = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+orderColumns, id, proof.URL, proof.Note))
	if errors.Is(err, common.ErrOrderNotFound) {
		return nil, nil
	}
	return o, err
}

// MarkApproved одобряет заказ, если он ещё pending или paid.
// Возвращает nil, nil, если заказ уже обработан или его нет.
func (r *Repository) MarkApproved(ctx context.Context, id, reviewerID int64, at time.Time) (*Order, error) {
	o, err := scanOrder(postgres.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE orders
		SET status = 'approved', reviewer_id = $2, reviewed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'paid')
		RETURNING `+orderColumns, id, reviewerID, at))
	if errors.Is(err, common.ErrOrderNotFound) {
		return nil, nil
	}
	return o, err
}

// DeleteOpen удаляет заказ, если он ещё pending или paid.
// Возвращает удалённый заказ или nil, nil, если удалять нечего.
func (r *Repository) DeleteOpen(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(postgres.Conn(ctx, r.db).QueryRow(ctx, `
		DELETE FROM orders
		WHERE id = $1 AND status IN ('pending', 'paid')
		RETURNING `+orderColumns, id))
	if errors.Is(err, common.ErrOrderNotFound) {
		return nil, nil
	}
	return o, err
}

// ListByStatus возвращает заказы со статусом status (старые первыми).
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at, id LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заказов: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteStale удаляет pending-заказы без подтверждения, созданные раньше before.
func (r *Repository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, `
		DELETE FROM orders WHERE status = 'pending' AND created_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления просроченных заказов: %w", err)
	}
	return tag.RowsAffected(), nil
}
