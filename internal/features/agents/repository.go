// Package agents — repository.go выполняет запросы к таблицам agent_profiles,
// agent_levels, agent_level_changes и agent_monthly_records.
package agents

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

// NewRepository создаёт новый репозиторий агентов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, account_id, level_id, status, commission_rate, pass_down_rate,
	parent_account_id, agent_code, reviewed_by, reviewed_at, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.AccountID, &p.LevelID, &p.Status, &p.CommissionRate, &p.PassDownRate,
		&p.ParentAgentID, &p.AgentCode, &p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrAgentProfileNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля агента: %w", err)
	}
	return &p, nil
}

// CreateProfile вставляет заявку агента.
func (r *Repository) CreateProfile(ctx context.Context, p *Profile) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO agent_profiles (account_id, status, parent_account_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, p.AccountID, p.Status, p.ParentAgentID).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "agent_profiles_account_key") {
			return common.ErrAgentAlreadyExists
		}
		if postgres.IsForeignKeyViolation(err) {
			return common.ErrAccountNotFound
		}
		return fmt.Errorf("ошибка создания профиля агента: %w", err)
	}
	return nil
}

// GetProfile возвращает профиль агента по ID аккаунта.
func (r *Repository) GetProfile(ctx context.Context, accountID int64) (*Profile, error) {
	return scanProfile(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM agent_profiles WHERE account_id = $1`, accountID))
}

// GetProfileForUpdate возвращает профиль и блокирует его строку до конца транзакции.
func (r *Repository) GetProfileForUpdate(ctx context.Context, accountID int64) (*Profile, error) {
	return scanProfile(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM agent_profiles WHERE account_id = $1 FOR UPDATE`, accountID))
}

// FindByCode возвращает профиль по публичному коду агента.
func (r *Repository) FindByCode(ctx context.Context, code string) (*Profile, error) {
	return scanProfile(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM agent_profiles WHERE agent_code = $1`, code))
}

// UpdateProfile сохраняет изменяемые поля профиля.
// Нарушение CHECK по ставкам превращается в ErrInvalidRate.
func (r *Repository) UpdateProfile(ctx context.Context, p *Profile) error {
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, `
		UPDATE agent_profiles
		SET level_id = $2, status = $3, commission_rate = $4, pass_down_rate = $5,
		    agent_code = $6, reviewed_by = $7, reviewed_at = $8, updated_at = NOW()
		WHERE account_id = $1
	`, p.AccountID, p.LevelID, p.Status, p.CommissionRate, p.PassDownRate,
		p.AgentCode, p.ReviewedBy, p.ReviewedAt)
	if err != nil {
		if postgres.IsCheckViolation(err, "agent_profiles_rates_check") {
			return common.ErrInvalidRate
		}
		return fmt.Errorf("ошибка обновления профиля агента: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrAgentProfileNotFound
	}
	return nil
}

// ListProfiles возвращает профили с указанным статусом (старые первыми).
func (r *Repository) ListProfiles(ctx context.Context, status Status, limit int) ([]*Profile, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+profileColumns+` FROM agent_profiles WHERE status = $1 ORDER BY id LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения профилей агентов: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const levelColumns = `id, name, sort_order, required_referrals, required_sales,
	commission_rate, bonus_enabled, bonus_rate, enabled`

func scanLevel(row pgx.Row) (*Level, error) {
	var l Level
	err := row.Scan(&l.ID, &l.Name, &l.SortOrder, &l.RequiredReferrals, &l.RequiredSales,
		&l.CommissionRate, &l.BonusEnabled, &l.BonusRate, &l.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrLevelNotFound
		}
		return nil, fmt.Errorf("ошибка получения уровня: %w", err)
	}
	return &l, nil
}

// ListLevels возвращает все уровни (включая отключённые) по возрастанию sort_order.
func (r *Repository) ListLevels(ctx context.Context) ([]*Level, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+levelColumns+` FROM agent_levels ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уровней: %w", err)
	}
	defer rows.Close()

	var out []*Level
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLevel возвращает уровень по ID.
func (r *Repository) GetLevel(ctx context.Context, id int64) (*Level, error) {
	return scanLevel(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+levelColumns+` FROM agent_levels WHERE id = $1`, id))
}

// UpsertLevel создаёт уровень или обновляет существующий с тем же именем.
func (r *Repository) UpsertLevel(ctx context.Context, l *Level) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO agent_levels (name, sort_order, required_referrals, required_sales,
		                          commission_rate, bonus_enabled, bonus_rate, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE
		SET required_referrals = EXCLUDED.required_referrals,
		    required_sales = EXCLUDED.required_sales,
		    commission_rate = EXCLUDED.commission_rate,
		    bonus_enabled = EXCLUDED.bonus_enabled,
		    bonus_rate = EXCLUDED.bonus_rate,
		    enabled = EXCLUDED.enabled
		RETURNING id, sort_order
	`, l.Name, l.SortOrder, l.RequiredReferrals, l.RequiredSales,
		l.CommissionRate, l.BonusEnabled, l.BonusRate, l.Enabled).Scan(&l.ID, &l.SortOrder)
	if err != nil {
		return fmt.Errorf("ошибка сохранения уровня %q: %w", l.Name, err)
	}
	return nil
}

// AppendLevelChange добавляет запись в аудит смены уровней.
func (r *Repository) AppendLevelChange(ctx context.Context, c *LevelChange) error {
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO agent_level_changes (account_id, from_level_id, from_level_name,
		                                 to_level_id, to_level_name, change_type, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, c.AccountID, c.FromLevelID, c.FromLevelName, c.ToLevelID, c.ToLevelName,
		c.Type, c.ActorID, c.Reason).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи смены уровня: %w", err)
	}
	return nil
}

// ListLevelChanges возвращает последние смены уровня агента (новые первыми).
func (r *Repository) ListLevelChanges(ctx context.Context, accountID int64, limit int) ([]*LevelChange, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, `
		SELECT id, account_id, from_level_id, from_level_name, to_level_id, to_level_name,
		       change_type, actor_id, reason, created_at
		FROM agent_level_changes
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории уровней: %w", err)
	}
	defer rows.Close()

	var out []*LevelChange
	for rows.Next() {
		var c LevelChange
		if err := rows.Scan(&c.ID, &c.AccountID, &c.FromLevelID, &c.FromLevelName, &c.ToLevelID,
			&c.ToLevelName, &c.Type, &c.ActorID, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования смены уровня: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// monthKey переводит начало месяца в значение для колонки DATE.
func monthKey(month time.Time) time.Time {
	return time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonthly прибавляет приращения к записи агента за месяц, создавая её при необходимости.
// Только арифметика в UPDATE: одновременные приращения не затирают друг друга.
func (r *Repository) AddMonthly(ctx context.Context, accountID int64, month time.Time, d MonthlyDelta) error {
	_, err := postgres.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO agent_monthly_records (account_id, month, recruit_count, sales_total,
		                                   commission_amount, total_earnings)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (account_id, month) DO UPDATE
		SET recruit_count = agent_monthly_records.recruit_count + EXCLUDED.recruit_count,
		    sales_total = agent_monthly_records.sales_total + EXCLUDED.sales_total,
		    commission_amount = agent_monthly_records.commission_amount + EXCLUDED.commission_amount,
		    total_earnings = agent_monthly_records.total_earnings + EXCLUDED.commission_amount,
		    updated_at = NOW()
	`, accountID, monthKey(month), d.Recruits, d.Sales, d.Commission)
	if err != nil {
		return fmt.Errorf("ошибка обновления месячной статистики: %w", err)
	}
	return nil
}

const monthlyColumns = `account_id, month, recruit_count, sales_total, commission_amount,
	bonus_amount, total_earnings, status, settled_at`

func scanMonthly(row pgx.Row) (*MonthlyRecord, error) {
	var m MonthlyRecord
	err := row.Scan(&m.AccountID, &m.Month, &m.RecruitCount, &m.SalesTotal, &m.CommissionAmount,
		&m.BonusAmount, &m.TotalEarnings, &m.Status, &m.SettledAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMonthly возвращает запись агента за месяц или пустую, если её ещё нет.
func (r *Repository) GetMonthly(ctx context.Context, accountID int64, month time.Time) (*MonthlyRecord, error) {
	m, err := scanMonthly(postgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+monthlyColumns+` FROM agent_monthly_records WHERE account_id = $1 AND month = $2`,
		accountID, monthKey(month)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &MonthlyRecord{AccountID: accountID, Month: monthKey(month), Status: MonthPending}, nil
		}
		return nil, fmt.Errorf("ошибка получения месячной статистики: %w", err)
	}
	return m, nil
}

// ListUnsettled возвращает незакрытые записи за месяцы раньше before.
func (r *Repository) ListUnsettled(ctx context.Context, before time.Time) ([]*MonthlyRecord, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx,
		`SELECT `+monthlyColumns+` FROM agent_monthly_records
		 WHERE status = 'pending' AND month < $1
		 ORDER BY month, account_id`, monthKey(before))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения незакрытых месяцев: %w", err)
	}
	defer rows.Close()

	var out []*MonthlyRecord
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования месячной записи: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSettled закрывает месяц, если он ещё открыт, и добавляет бонус к заработку.
// Возвращает false, если месяц уже закрыт кем-то другим.
func (r *Repository) MarkSettled(ctx context.Context, accountID int64, month time.Time, bonus int64) (bool, error) {
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, `
		UPDATE agent_monthly_records
		SET status = 'settled', settled_at = NOW(),
		    bonus_amount = bonus_amount + $3, total_earnings = total_earnings + $3,
		    updated_at = NOW()
		WHERE account_id = $1 AND month = $2 AND status = 'pending'
	`, accountID, monthKey(month), bonus)
	if err != nil {
		return false, fmt.Errorf("ошибка закрытия месяца: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MaxChildRate возвращает наибольшую собственную ставку среди прямых приглашённых агента.
func (r *Repository) MaxChildRate(ctx context.Context, parentAccountID int64) (int, error) {
	var rate int
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT COALESCE(MAX(commission_rate), 0) FROM agent_profiles
		WHERE parent_account_id = $1 AND status IN ('active', 'disabled')
	`, parentAccountID).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения ставок приглашённых: %w", err)
	}
	return rate, nil
}
