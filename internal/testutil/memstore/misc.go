package memstore

import (
	"context"
	"time"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/admin"
	"serotonyl.ru/streaming-ledger/internal/features/checkin"
	"serotonyl.ru/streaming-ledger/internal/features/commission"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/paywall"
)

// CommissionStore реализует commission.Store.
type CommissionStore struct{ s *Store }

func (c *CommissionStore) InsertRecord(_ context.Context, rec *commission.Record) (err error) {
	c.s.locked(func(d *state) {
		// commission_records_order_agent_key; NULL order_id не уникален
		if rec.OrderID != nil {
			for _, existing := range d.commissions {
				if existing.OrderID != nil && *existing.OrderID == *rec.OrderID &&
					existing.AgentAccountID == rec.AgentAccountID {
					err = common.ErrCommissionAlreadyDistributed
					return
				}
			}
		}
		rec.ID = d.newID()
		rec.CreatedAt = c.s.now()
		d.commissions = append(d.commissions, *rec)
	})
	return err
}

func (c *CommissionStore) ListByAgent(_ context.Context, agentAccountID int64, limit int) (out []*commission.Record, _ error) {
	c.s.locked(func(d *state) {
		for i := len(d.commissions) - 1; i >= 0 && len(out) < limit; i-- {
			rec := d.commissions[i]
			if rec.AgentAccountID == agentAccountID {
				out = append(out, &rec)
			}
		}
	})
	return out, nil
}

// MembershipStore реализует membership.Store.
type MembershipStore struct{ s *Store }

func (m *MembershipStore) Extend(_ context.Context, accountID int64, days int, now time.Time) (out *membership.Membership, err error) {
	m.s.locked(func(d *state) {
		if _, ok := d.accounts[accountID]; !ok {
			err = common.ErrAccountNotFound
			return
		}
		base := now
		if existing, ok := d.memberships[accountID]; ok && existing.ExpiresAt.After(base) {
			base = existing.ExpiresAt
		}
		ms := membership.Membership{
			AccountID: accountID,
			ExpiresAt: base.AddDate(0, 0, days),
			UpdatedAt: m.s.now(),
		}
		d.memberships[accountID] = ms
		out = &ms
	})
	return out, err
}

func (m *MembershipStore) Get(_ context.Context, accountID int64) (out *membership.Membership, _ error) {
	m.s.locked(func(d *state) {
		if ms, ok := d.memberships[accountID]; ok {
			out = &ms
		}
	})
	return out, nil
}

// UnlockStore реализует paywall.Store.
type UnlockStore struct{ s *Store }

func (u *UnlockStore) InsertUnlock(_ context.Context, unlock *paywall.Unlock) (inserted bool, err error) {
	u.s.locked(func(d *state) {
		if _, ok := d.accounts[unlock.AccountID]; !ok {
			err = common.ErrAccountNotFound
			return
		}
		key := unlockKey{unlock.AccountID, unlock.VideoID}
		if _, ok := d.unlocks[key]; ok {
			return
		}
		unlock.ID = d.newID()
		unlock.CreatedAt = u.s.now()
		d.unlocks[key] = *unlock
		inserted = true
	})
	return inserted, err
}

func (u *UnlockStore) HasUnlock(_ context.Context, accountID int64, videoID string) (ok bool, _ error) {
	u.s.locked(func(d *state) {
		_, ok = d.unlocks[unlockKey{accountID, videoID}]
	})
	return ok, nil
}

// CheckinStore реализует checkin.Store.
type CheckinStore struct{ s *Store }

func (c *CheckinStore) Last(_ context.Context, accountID int64) (out *checkin.Checkin, _ error) {
	c.s.locked(func(d *state) {
		for _, ch := range d.checkins {
			if ch.AccountID != accountID {
				continue
			}
			if out == nil || ch.Day.After(out.Day) {
				ch := ch
				out = &ch
			}
		}
	})
	return out, nil
}

func (c *CheckinStore) Insert(_ context.Context, ch *checkin.Checkin) (err error) {
	c.s.locked(func(d *state) {
		if _, ok := d.accounts[ch.AccountID]; !ok {
			err = common.ErrAccountNotFound
			return
		}
		for _, existing := range d.checkins {
			if existing.AccountID == ch.AccountID && existing.Day.Equal(ch.Day) {
				err = common.ErrAlreadyCheckedIn
				return
			}
		}
		ch.ID = d.newID()
		ch.CreatedAt = c.s.now()
		d.checkins = append(d.checkins, *ch)
	})
	return err
}

// AdminStore реализует admin.Store.
type AdminStore struct{ s *Store }

func (a *AdminStore) CreateSession(_ context.Context, session *admin.Session) error {
	a.s.locked(func(d *state) {
		now := a.s.now()
		session.ID = d.newID()
		session.AuthenticatedAt, session.LastActivity = now, now
		session.IsActive = true
		d.sessions = append(d.sessions, *session)
	})
	return nil
}

func (a *AdminStore) GetActiveSession(_ context.Context, userID int64, now time.Time) (out *admin.Session, _ error) {
	a.s.locked(func(d *state) {
		for i := len(d.sessions) - 1; i >= 0; i-- {
			session := d.sessions[i]
			if session.UserID == userID && session.IsActive && session.ExpiresAt.After(now) {
				out = &session
				return
			}
		}
	})
	return out, nil
}

func (a *AdminStore) DeactivateSessions(_ context.Context, userID int64) error {
	a.s.locked(func(d *state) {
		for i := range d.sessions {
			if d.sessions[i].UserID == userID {
				d.sessions[i].IsActive = false
			}
		}
	})
	return nil
}

func (a *AdminStore) TouchSession(_ context.Context, userID int64) error {
	a.s.locked(func(d *state) {
		now := a.s.now()
		for i := range d.sessions {
			if d.sessions[i].UserID == userID && d.sessions[i].IsActive {
				d.sessions[i].LastActivity = now
			}
		}
	})
	return nil
}

func (a *AdminStore) LogAttempt(_ context.Context, userID int64, success bool) error {
	a.s.locked(func(d *state) {
		d.attempts = append(d.attempts, loginAttempt{userID: userID, success: success, at: a.s.now()})
	})
	return nil
}

func (a *AdminStore) CountFailedSince(_ context.Context, userID int64, since time.Time) (n int, _ error) {
	a.s.locked(func(d *state) {
		for _, at := range d.attempts {
			if at.userID == userID && !at.success && !at.at.Before(since) {
				n++
			}
		}
	})
	return n, nil
}
