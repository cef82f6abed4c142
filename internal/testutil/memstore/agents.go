package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
)

// AgentStore реализует agents.Store.
type AgentStore struct{ s *Store }

func (a *AgentStore) CreateProfile(_ context.Context, p *agents.Profile) (err error) {
	a.s.locked(func(d *state) {
		if _, ok := d.accounts[p.AccountID]; !ok {
			err = common.ErrAccountNotFound
			return
		}
		if _, ok := d.profiles[p.AccountID]; ok {
			err = common.ErrAgentAlreadyExists
			return
		}
		now := a.s.now()
		p.ID = d.newID()
		p.CreatedAt, p.UpdatedAt = now, now
		d.profiles[p.AccountID] = *p
	})
	return err
}

func (a *AgentStore) GetProfile(_ context.Context, accountID int64) (out *agents.Profile, err error) {
	a.s.locked(func(d *state) {
		p, ok := d.profiles[accountID]
		if !ok {
			err = common.ErrAgentProfileNotFound
			return
		}
		out = &p
	})
	return out, err
}

// GetProfileForUpdate: транзакции и так выполняются по одной.
func (a *AgentStore) GetProfileForUpdate(ctx context.Context, accountID int64) (*agents.Profile, error) {
	return a.GetProfile(ctx, accountID)
}

func (a *AgentStore) FindByCode(_ context.Context, code string) (out *agents.Profile, err error) {
	a.s.locked(func(d *state) {
		for _, p := range d.profiles {
			if p.AgentCode != nil && *p.AgentCode == code {
				p := p
				out = &p
				return
			}
		}
		err = common.ErrAgentProfileNotFound
	})
	return out, err
}

func (a *AgentStore) UpdateProfile(_ context.Context, p *agents.Profile) (err error) {
	// agent_profiles_rates_check
	if p.CommissionRate < 0 || p.CommissionRate > common.BasisPoints || p.PassDownRate < 0 ||
		(p.PassDownRate >= p.CommissionRate && p.PassDownRate != 0) {
		return common.ErrInvalidRate
	}
	a.s.locked(func(d *state) {
		existing, ok := d.profiles[p.AccountID]
		if !ok {
			err = common.ErrAgentProfileNotFound
			return
		}
		existing.LevelID = p.LevelID
		existing.Status = p.Status
		existing.CommissionRate = p.CommissionRate
		existing.PassDownRate = p.PassDownRate
		existing.AgentCode = p.AgentCode
		existing.ReviewedBy = p.ReviewedBy
		existing.ReviewedAt = p.ReviewedAt
		existing.UpdatedAt = a.s.now()
		d.profiles[p.AccountID] = existing
	})
	return err
}

func (a *AgentStore) ListProfiles(_ context.Context, status agents.Status, limit int) (out []*agents.Profile, _ error) {
	a.s.locked(func(d *state) {
		for _, p := range d.profiles {
			if p.Status == status {
				p := p
				out = append(out, &p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *AgentStore) MaxChildRate(_ context.Context, parentAccountID int64) (rate int, _ error) {
	a.s.locked(func(d *state) {
		for _, p := range d.profiles {
			if p.ParentAgentID == nil || *p.ParentAgentID != parentAccountID {
				continue
			}
			if p.Status != agents.StatusActive && p.Status != agents.StatusDisabled {
				continue
			}
			if p.CommissionRate > rate {
				rate = p.CommissionRate
			}
		}
	})
	return rate, nil
}

func (a *AgentStore) ListLevels(_ context.Context) (out []*agents.Level, _ error) {
	a.s.locked(func(d *state) {
		for _, l := range d.levels {
			l := l
			out = append(out, &l)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (a *AgentStore) GetLevel(_ context.Context, id int64) (out *agents.Level, err error) {
	a.s.locked(func(d *state) {
		l, ok := d.levels[id]
		if !ok {
			err = common.ErrLevelNotFound
			return
		}
		out = &l
	})
	return out, err
}

// UpsertLevel повторяет ON CONFLICT (name): порядок существующего уровня не меняется.
func (a *AgentStore) UpsertLevel(_ context.Context, l *agents.Level) (err error) {
	a.s.locked(func(d *state) {
		for id, existing := range d.levels {
			if existing.Name != l.Name {
				continue
			}
			l.ID, l.SortOrder = id, existing.SortOrder
			d.levels[id] = *l
			return
		}
		for _, existing := range d.levels {
			if existing.SortOrder == l.SortOrder {
				err = fmt.Errorf("ошибка сохранения уровня %q: sort_order %d занят", l.Name, l.SortOrder)
				return
			}
		}
		l.ID = d.newID()
		d.levels[l.ID] = *l
	})
	return err
}

func (a *AgentStore) AppendLevelChange(_ context.Context, c *agents.LevelChange) error {
	a.s.locked(func(d *state) {
		c.ID = d.newID()
		c.CreatedAt = a.s.now()
		d.levelChanges = append(d.levelChanges, *c)
	})
	return nil
}

func (a *AgentStore) ListLevelChanges(_ context.Context, accountID int64, limit int) (out []*agents.LevelChange, _ error) {
	a.s.locked(func(d *state) {
		for i := len(d.levelChanges) - 1; i >= 0 && len(out) < limit; i-- {
			c := d.levelChanges[i]
			if c.AccountID == accountID {
				out = append(out, &c)
			}
		}
	})
	return out, nil
}

func monthKey(month time.Time) time.Time {
	return time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (a *AgentStore) AddMonthly(_ context.Context, accountID int64, month time.Time, delta agents.MonthlyDelta) error {
	a.s.locked(func(d *state) {
		key := monthlyKey{accountID, monthKey(month)}
		rec, ok := d.monthly[key]
		if !ok {
			rec = agents.MonthlyRecord{AccountID: accountID, Month: key.month, Status: agents.MonthPending}
		}
		rec.RecruitCount += delta.Recruits
		rec.SalesTotal += delta.Sales
		rec.CommissionAmount += delta.Commission
		rec.TotalEarnings += delta.Commission
		d.monthly[key] = rec
	})
	return nil
}

func (a *AgentStore) GetMonthly(_ context.Context, accountID int64, month time.Time) (out *agents.MonthlyRecord, _ error) {
	a.s.locked(func(d *state) {
		key := monthlyKey{accountID, monthKey(month)}
		rec, ok := d.monthly[key]
		if !ok {
			rec = agents.MonthlyRecord{AccountID: accountID, Month: key.month, Status: agents.MonthPending}
		}
		out = &rec
	})
	return out, nil
}

func (a *AgentStore) ListUnsettled(_ context.Context, before time.Time) (out []*agents.MonthlyRecord, _ error) {
	cutoff := monthKey(before)
	a.s.locked(func(d *state) {
		for _, rec := range d.monthly {
			if rec.Status == agents.MonthPending && rec.Month.Before(cutoff) {
				rec := rec
				out = append(out, &rec)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Month.Equal(out[j].Month) {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

func (a *AgentStore) MarkSettled(_ context.Context, accountID int64, month time.Time, bonus int64) (settled bool, _ error) {
	a.s.locked(func(d *state) {
		key := monthlyKey{accountID, monthKey(month)}
		rec, ok := d.monthly[key]
		if !ok || rec.Status != agents.MonthPending {
			return
		}
		now := a.s.now()
		rec.Status = agents.MonthSettled
		rec.SettledAt = &now
		rec.BonusAmount += bonus
		rec.TotalEarnings += bonus
		d.monthly[key] = rec
		settled = true
	})
	return settled, nil
}

// LevelChanges возвращает весь журнал смен уровня аккаунта в порядке записи.
func (a *AgentStore) LevelChanges(accountID int64) (out []agents.LevelChange) {
	a.s.locked(func(d *state) {
		for _, c := range d.levelChanges {
			if c.AccountID == accountID {
				out = append(out, c)
			}
		}
	})
	return out
}
