// Package agents — агентская программа: профили агентов, лестница уровней,
// автоповышение и помесячная статистика.
// models.go описывает структуры данных.
package agents

import "time"

// Status — статус профиля агента.
type Status string

const (
	StatusPending  Status = "pending"  // Заявка подана, ждёт решения админа
	StatusActive   Status = "active"   // Получает комиссии
	StatusRejected Status = "rejected" // Заявка отклонена
	StatusDisabled Status = "disabled" // Отключён: доля уходит вверх по цепочке
)

// ChangeType — причина смены уровня.
type ChangeType string

const (
	ChangeManual      ChangeType = "manual"
	ChangeAutoUpgrade ChangeType = "auto_upgrade"
	ChangeInitial     ChangeType = "initial"
)

// Profile — профиль агента. Один на аккаунт.
// Ставки в базисных пунктах (1000 = 10%).
type Profile struct {
	ID             int64      `db:"id"`
	AccountID      int64      `db:"account_id"`
	LevelID        *int64     `db:"level_id"`          // nil до одобрения
	Status         Status     `db:"status"`
	CommissionRate int        `db:"commission_rate"`   // Собственная ставка
	PassDownRate   int        `db:"pass_down_rate"`    // Ставка, отдаваемая прямым приглашённым
	ParentAgentID  *int64     `db:"parent_account_id"` // Реферер, который тоже агент
	AgentCode      *string    `db:"agent_code"`        // Публичный код, выдаётся при одобрении
	ReviewedBy     *int64     `db:"reviewed_by"`
	ReviewedAt     *time.Time `db:"reviewed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// IsActive сообщает, получает ли агент комиссии.
func (p *Profile) IsActive() bool {
	return p.Status == StatusActive
}

// Code возвращает код агента или пустую строку.
func (p *Profile) Code() string {
	if p.AgentCode == nil {
		return ""
	}
	return *p.AgentCode
}

// Level — ступень лестницы уровней. Уровни упорядочены по SortOrder,
// никогда не перенумеровываются, только добавляются или отключаются.
type Level struct {
	ID                int64  `db:"id"`
	Name              string `db:"name"`
	SortOrder         int    `db:"sort_order"`
	RequiredReferrals int    `db:"required_referrals"` // 0 — без требования
	RequiredSales     int64  `db:"required_sales"`     // Продажи за текущий месяц, 0 — без требования
	CommissionRate    int    `db:"commission_rate"`
	BonusEnabled      bool   `db:"bonus_enabled"`
	BonusRate         int    `db:"bonus_rate"` // Бонус от продаж месяца при закрытии месяца
	Enabled           bool   `db:"enabled"`
}

// LevelChange — запись аудита смены уровня. Имена уровней сохраняются значением.
type LevelChange struct {
	ID            int64      `db:"id"`
	AccountID     int64      `db:"account_id"`
	FromLevelID   *int64     `db:"from_level_id"`
	FromLevelName string     `db:"from_level_name"`
	ToLevelID     int64      `db:"to_level_id"`
	ToLevelName   string     `db:"to_level_name"`
	Type          ChangeType `db:"change_type"`
	ActorID       *int64     `db:"actor_id"` // nil для автоматических изменений
	Reason        string     `db:"reason"`
	CreatedAt     time.Time  `db:"created_at"`
}

// Статусы помесячной записи.
const (
	MonthPending = "pending"
	MonthSettled = "settled"
)

// MonthlyRecord — агрегат агента за календарный месяц.
// Меняется только приращениями, никогда не пересчитывается заново.
type MonthlyRecord struct {
	AccountID        int64      `db:"account_id"`
	Month            time.Time  `db:"month"` // Первое число месяца
	RecruitCount     int        `db:"recruit_count"`
	SalesTotal       int64      `db:"sales_total"`
	CommissionAmount int64      `db:"commission_amount"`
	BonusAmount      int64      `db:"bonus_amount"`
	TotalEarnings    int64      `db:"total_earnings"`
	Status           string     `db:"status"`
	SettledAt        *time.Time `db:"settled_at"`
}

// MonthlyDelta — приращения для помесячной записи.
type MonthlyDelta struct {
	Recruits   int
	Sales      int64
	Commission int64
}

// SettlementResult — итог закрытия месяцев.
type SettlementResult struct {
	Settled int   // Сколько записей закрыто
	Bonus   int64 // Сколько бонусов начислено
	Failed  int   // Сколько записей не удалось закрыть (повторятся при следующем запуске)
}
