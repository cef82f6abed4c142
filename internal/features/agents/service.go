// Package agents — service.go содержит жизненный цикл агента и смену уровней.
//
// Ставки живут в профиле агента. Прямой приглашённый получает собственную ставку,
// равную ставке передачи родителя, поэтому каждое звено цепочки зарабатывает
// разницу между своей ставкой и отданной вниз.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/metrics"
)

// Store — хранилище агентской программы.
type Store interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, accountID int64) (*Profile, error)
	GetProfileForUpdate(ctx context.Context, accountID int64) (*Profile, error)
	FindByCode(ctx context.Context, code string) (*Profile, error)
	UpdateProfile(ctx context.Context, p *Profile) error
	ListProfiles(ctx context.Context, status Status, limit int) ([]*Profile, error)
	MaxChildRate(ctx context.Context, parentAccountID int64) (int, error)

	ListLevels(ctx context.Context) ([]*Level, error)
	GetLevel(ctx context.Context, id int64) (*Level, error)
	UpsertLevel(ctx context.Context, l *Level) error
	AppendLevelChange(ctx context.Context, c *LevelChange) error
	ListLevelChanges(ctx context.Context, accountID int64, limit int) ([]*LevelChange, error)

	AddMonthly(ctx context.Context, accountID int64, month time.Time, d MonthlyDelta) error
	GetMonthly(ctx context.Context, accountID int64, month time.Time) (*MonthlyRecord, error)
	ListUnsettled(ctx context.Context, before time.Time) ([]*MonthlyRecord, error)
	MarkSettled(ctx context.Context, accountID int64, month time.Time, bonus int64) (bool, error)
}

// Accounts — то, что агентской программе нужно знать об аккаунтах.
type Accounts interface {
	ReferrerOf(ctx context.Context, accountID int64) (*int64, error)
	CountReferrals(ctx context.Context, accountID int64) (int64, error)
}

// Ledger начисляет бонусы уровня.
type Ledger interface {
	Credit(ctx context.Context, p balance.Posting) (*balance.Result, error)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service управляет агентами и уровнями.
type Service struct {
	store    Store
	accounts Accounts
	ledger   Ledger
	tx       Transactor
	loc      *time.Location
	now      func() time.Time
}

// NewService создаёт новый сервис агентской программы.
// loc задаёт часовой пояс календарных месяцев.
func NewService(store Store, accounts Accounts, ledger Ledger, tx Transactor, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		accounts: accounts,
		ledger:   ledger,
		tx:       tx,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) currentMonth() time.Time {
	return common.MonthStart(s.now(), s.loc)
}

// Apply подаёт заявку агента (статус pending).
// Если реферер аккаунта сам агент — он становится родителем в цепочке.
func (s *Service) Apply(ctx context.Context, accountID int64) (*Profile, error) {
	p := &Profile{AccountID: accountID, Status: StatusPending}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		parent, err := s.resolveParent(ctx, accountID)
		if err != nil {
			return err
		}
		p.ParentAgentID = parent
		return s.store.CreateProfile(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"parent_id":  p.ParentAgentID,
	}).Info("Подана заявка агента")
	return p, nil
}

// resolveParent возвращает реферера аккаунта, если у него есть профиль агента.
func (s *Service) resolveParent(ctx context.Context, accountID int64) (*int64, error) {
	referrerID, err := s.accounts.ReferrerOf(ctx, accountID)
	if err != nil || referrerID == nil || *referrerID == accountID {
		return nil, err
	}
	if _, err := s.store.GetProfile(ctx, *referrerID); err != nil {
		if errors.Is(err, common.ErrAgentProfileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return referrerID, nil
}

// Approve одобряет заявку: выдаёт код агента, назначает нижний уровень и ставку.
// Агент без родителя получает ставку уровня. Агент с родителем получает ставку
// передачи родителя, но не больше ставки уровня. Если родитель ещё ничего не
// передаёт, ставка будет нулевой, пока родитель не задаст ставку передачи.
func (s *Service) Approve(ctx context.Context, accountID, reviewerID int64) (*Profile, error) {
	var p *Profile
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.store.GetProfileForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return common.ErrAgentInvalidStatus
		}

		levels, err := s.store.ListLevels(ctx)
		if err != nil {
			return err
		}
		level, err := LowestLevel(levels)
		if err != nil {
			return err
		}

		if p.ParentAgentID == nil {
			if p.ParentAgentID, err = s.resolveParent(ctx, accountID); err != nil {
				return err
			}
		}

		rate := level.CommissionRate
		if p.ParentAgentID != nil {
			parent, err := s.store.GetProfile(ctx, *p.ParentAgentID)
			if err != nil {
				return err
			}
			rate = min(parent.PassDownRate, level.CommissionRate)
			if rate == 0 {
				log.WithFields(log.Fields{
					"account_id": accountID,
					"parent_id":  parent.AccountID,
				}).Warn("Родитель не передаёт ставку, агент одобрен с нулевой ставкой")
			}
		}

		now := s.now()
		code := newAgentCode(accountID)
		p.Status = StatusActive
		p.LevelID = &level.ID
		p.CommissionRate = rate
		p.PassDownRate = 0
		p.AgentCode = &code
		p.ReviewedBy = &reviewerID
		p.ReviewedAt = &now
		if err := s.store.UpdateProfile(ctx, p); err != nil {
			return err
		}

		return s.appendChange(ctx, &LevelChange{
			AccountID:   accountID,
			ToLevelID:   level.ID,
			ToLevelName: level.Name,
			Type:        ChangeInitial,
			ActorID:     &reviewerID,
			Reason:      "одобрение заявки",
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id":  accountID,
		"reviewer_id": reviewerID,
		"code":        p.Code(),
		"rate":        p.CommissionRate,
	}).Info("Агент одобрен")
	return p, nil
}

// newAgentCode строит код из ID аккаунта и случайного суффикса фиксированной длины,
// поэтому коды разных аккаунтов не совпадают.
func newAgentCode(accountID int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return "A" + strings.ToUpper(strconv.FormatInt(accountID, 36)+suffix)
}

// Reject отклоняет заявку.
func (s *Service) Reject(ctx context.Context, accountID, reviewerID int64) (*Profile, error) {
	return s.transition(ctx, accountID, reviewerID, StatusRejected, StatusPending)
}

// Disable отключает агента. Профиль и связь с родителем сохраняются,
// доля агента в комиссиях уходит вверх по цепочке.
func (s *Service) Disable(ctx context.Context, accountID, actorID int64) (*Profile, error) {
	return s.transition(ctx, accountID, actorID, StatusDisabled, StatusActive)
}

// Enable возвращает отключённого агента в работу.
func (s *Service) Enable(ctx context.Context, accountID, actorID int64) (*Profile, error) {
	return s.transition(ctx, accountID, actorID, StatusActive, StatusDisabled)
}

func (s *Service) transition(ctx context.Context, accountID, actorID int64, to Status, from Status) (*Profile, error) {
	var p *Profile
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.store.GetProfileForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if p.Status != from {
			return common.ErrAgentInvalidStatus
		}
		now := s.now()
		p.Status = to
		p.ReviewedBy = &actorID
		p.ReviewedAt = &now
		return s.store.UpdateProfile(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"actor_id":   actorID,
		"status":     to,
	}).Info("Статус агента изменён")
	return p, nil
}

// SetRates задаёт собственную ставку агента и ставку передачи.
// Ставка агента с родителем не может превышать ставку передачи родителя,
// а ставка передачи не может опуститься ниже ставок уже приглашённых агентов.
func (s *Service) SetRates(ctx context.Context, accountID int64, commissionRate, passDownRate int, actorID int64) (*Profile, error) {
	if err := ValidateRates(commissionRate, passDownRate); err != nil {
		return nil, err
	}

	var p *Profile
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.store.GetProfileForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if p.Status != StatusActive && p.Status != StatusDisabled {
			return common.ErrAgentInvalidStatus
		}
		if err := s.checkChainRates(ctx, p, commissionRate, passDownRate); err != nil {
			return err
		}

		p.CommissionRate = commissionRate
		p.PassDownRate = passDownRate
		return s.store.UpdateProfile(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"actor_id":   actorID,
		"rate":       commissionRate,
		"pass_down":  passDownRate,
	}).Info("Ставки агента изменены")
	return p, nil
}

// checkChainRates проверяет ставки агента относительно соседей по цепочке:
// ставка не выше ставки передачи родителя, передача не ниже ставок приглашённых.
// Иначе цепочка раздала бы больше ставки верхнего агента.
func (s *Service) checkChainRates(ctx context.Context, p *Profile, commissionRate, passDownRate int) error {
	if p.ParentAgentID != nil {
		parent, err := s.store.GetProfile(ctx, *p.ParentAgentID)
		if err != nil {
			return err
		}
		if commissionRate > parent.PassDownRate {
			return common.ErrInvalidRate
		}
	}
	maxChild, err := s.store.MaxChildRate(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if passDownRate < maxChild {
		return common.ErrInvalidRate
	}
	return nil
}

// ChangeLevelRequest — ручная смена уровня администратором.
type ChangeLevelRequest struct {
	AccountID    int64
	LevelID      int64
	ActorID      int64
	RateOverride *int // Явная ставка вместо ставки уровня
	Reason       string
}

// ChangeLevel вручную переводит агента на уровень (в том числе вниз).
func (s *Service) ChangeLevel(ctx context.Context, req ChangeLevelRequest) (*LevelChange, error) {
	var change *LevelChange
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.store.GetProfileForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if p.Status != StatusActive && p.Status != StatusDisabled {
			return common.ErrAgentInvalidStatus
		}
		to, err := s.store.GetLevel(ctx, req.LevelID)
		if err != nil {
			return err
		}
		if !to.Enabled {
			return common.ErrLevelNotFound
		}
		from, err := s.currentLevel(ctx, p)
		if err != nil {
			return err
		}

		actor := req.ActorID
		change, err = s.applyLevel(ctx, p, from, to, ChangeManual, &actor, req.RateOverride, req.Reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// EvaluateUpgrade проверяет автоповышение агента.
// Учитываются приглашённые за всё время и продажи текущего календарного месяца.
// Агент может перескочить несколько уровней за раз, в аудит пишется одна запись.
// Возвращает nil, если уровень не изменился.
func (s *Service) EvaluateUpgrade(ctx context.Context, accountID int64) (*LevelChange, error) {
	var change *LevelChange
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.store.GetProfileForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return nil
		}

		levels, err := s.store.ListLevels(ctx)
		if err != nil {
			return err
		}
		from := findLevel(levels, p.LevelID)
		currentOrder := 0
		if from != nil {
			currentOrder = from.SortOrder
		}

		referrals, err := s.accounts.CountReferrals(ctx, accountID)
		if err != nil {
			return err
		}
		monthly, err := s.store.GetMonthly(ctx, accountID, s.currentMonth())
		if err != nil {
			return err
		}

		to := NextLevel(levels, currentOrder, referrals, monthly.SalesTotal)
		if to == nil {
			return nil
		}
		reason := fmt.Sprintf("рефералов: %d, продажи за месяц: %s",
			referrals, common.FormatMoney(monthly.SalesTotal))
		change, err = s.applyLevel(ctx, p, from, to, ChangeAutoUpgrade, nil, nil, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) currentLevel(ctx context.Context, p *Profile) (*Level, error) {
	if p.LevelID == nil {
		return nil, nil
	}
	return s.store.GetLevel(ctx, *p.LevelID)
}

func findLevel(levels []*Level, id *int64) *Level {
	if id == nil {
		return nil
	}
	for _, l := range levels {
		if l.ID == *id {
			return l
		}
	}
	return nil
}

// applyLevel переводит агента на уровень to и пишет аудит.
// У агента без родителя ставка синхронизируется со ставкой уровня, если не задана явная.
func (s *Service) applyLevel(ctx context.Context, p *Profile, from, to *Level, typ ChangeType, actorID *int64, rateOverride *int, reason string) (*LevelChange, error) {
	switch {
	case rateOverride != nil:
		if err := ValidateRates(*rateOverride, p.PassDownRate); err != nil {
			return nil, err
		}
		if err := s.checkChainRates(ctx, p, *rateOverride, p.PassDownRate); err != nil {
			return nil, err
		}
		p.CommissionRate = *rateOverride
	case p.ParentAgentID == nil && to.CommissionRate > p.PassDownRate:
		p.CommissionRate = to.CommissionRate
	case p.ParentAgentID == nil:
		log.WithFields(log.Fields{
			"account_id": p.AccountID,
			"level":      to.Name,
			"pass_down":  p.PassDownRate,
		}).Warn("Ставка уровня не выше ставки передачи, собственная ставка не изменена")
	}
	p.LevelID = &to.ID
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}

	change := &LevelChange{
		AccountID:   p.AccountID,
		ToLevelID:   to.ID,
		ToLevelName: to.Name,
		Type:        typ,
		ActorID:     actorID,
		Reason:      reason,
	}
	if from != nil {
		change.FromLevelID = &from.ID
		change.FromLevelName = from.Name
	}
	if err := s.appendChange(ctx, change); err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) appendChange(ctx context.Context, c *LevelChange) error {
	if err := s.store.AppendLevelChange(ctx, c); err != nil {
		return err
	}
	metrics.RecordLevelChange(string(c.Type))
	log.WithFields(log.Fields{
		"account_id": c.AccountID,
		"from":       c.FromLevelName,
		"to":         c.ToLevelName,
		"type":       c.Type,
	}).Info("Уровень агента изменён")
	return nil
}

// RecordSale прибавляет продажу и комиссию к записи агента за текущий месяц.
func (s *Service) RecordSale(ctx context.Context, accountID int64, orderAmount, commission int64) error {
	return s.store.AddMonthly(ctx, accountID, s.currentMonth(), MonthlyDelta{
		Sales:      orderAmount,
		Commission: commission,
	})
}

// RecordRecruit учитывает нового приглашённого за текущий месяц.
// Для аккаунта без профиля агента ничего не делает.
func (s *Service) RecordRecruit(ctx context.Context, accountID int64) error {
	if _, err := s.store.GetProfile(ctx, accountID); err != nil {
		if errors.Is(err, common.ErrAgentProfileNotFound) {
			return nil
		}
		return err
	}
	return s.store.AddMonthly(ctx, accountID, s.currentMonth(), MonthlyDelta{Recruits: 1})
}

// ResolveCode возвращает аккаунт активного агента по его коду.
func (s *Service) ResolveCode(ctx context.Context, code string) (int64, error) {
	p, err := s.store.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, err
	}
	if !p.IsActive() {
		return 0, common.ErrAgentProfileNotFound
	}
	return p.AccountID, nil
}

// GetProfile возвращает профиль агента.
func (s *Service) GetProfile(ctx context.Context, accountID int64) (*Profile, error) {
	return s.store.GetProfile(ctx, accountID)
}

// ListPending возвращает заявки, ожидающие решения.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*Profile, error) {
	return s.store.ListProfiles(ctx, StatusPending, limit)
}

// Levels возвращает лестницу уровней.
func (s *Service) Levels(ctx context.Context) ([]*Level, error) {
	return s.store.ListLevels(ctx)
}

// LevelHistory возвращает последние смены уровня агента.
func (s *Service) LevelHistory(ctx context.Context, accountID int64, limit int) ([]*LevelChange, error) {
	return s.store.ListLevelChanges(ctx, accountID, limit)
}

// Monthly возвращает статистику агента за месяц, в котором лежит t.
func (s *Service) Monthly(ctx context.Context, accountID int64, t time.Time) (*MonthlyRecord, error) {
	return s.store.GetMonthly(ctx, accountID, common.MonthStart(t, s.loc))
}

// SeedLevels применяет лестницу уровней (обычно из LoadLadder).
func (s *Service) SeedLevels(ctx context.Context, levels []*Level) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, l := range levels {
			if err := s.store.UpsertLevel(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.WithField("levels", len(levels)).Info("Лестница уровней применена")
	return nil
}
