package memstore

import (
	"context"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/accounts"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
)

// AccountStore реализует accounts.Store, agents.Accounts и commission.Referrers.
type AccountStore struct{ s *Store }

// Add создаёт аккаунт и возвращает его ID. Для подготовки тестов.
func (a *AccountStore) Add(username string, referrerID *int64) int64 {
	acc := &accounts.Account{Username: username, ReferrerID: referrerID}
	if err := a.Create(context.Background(), acc); err != nil {
		panic(err)
	}
	return acc.ID
}

func (a *AccountStore) Create(_ context.Context, acc *accounts.Account) (err error) {
	a.s.locked(func(d *state) {
		for _, existing := range d.accounts {
			if existing.Username == acc.Username {
				err = common.ErrUsernameTaken
				return
			}
		}
		if acc.ReferrerID != nil {
			if _, ok := d.accounts[*acc.ReferrerID]; !ok {
				err = common.ErrAccountNotFound
				return
			}
		}
		acc.ID = d.newID()
		acc.CreatedAt = a.s.now()
		d.accounts[acc.ID] = *acc
	})
	return err
}

func (a *AccountStore) Get(_ context.Context, id int64) (out *accounts.Account, err error) {
	a.s.locked(func(d *state) {
		acc, ok := d.accounts[id]
		if !ok {
			err = common.ErrAccountNotFound
			return
		}
		out = &acc
	})
	return out, err
}

func (a *AccountStore) GetByUsername(_ context.Context, username string) (out *accounts.Account, err error) {
	a.s.locked(func(d *state) {
		for _, acc := range d.accounts {
			if acc.Username == username {
				acc := acc
				out = &acc
				return
			}
		}
		err = common.ErrAccountNotFound
	})
	return out, err
}

func (a *AccountStore) ReferrerOf(ctx context.Context, id int64) (*int64, error) {
	acc, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return acc.ReferrerID, nil
}

func (a *AccountStore) CountReferrals(_ context.Context, id int64) (n int64, _ error) {
	a.s.locked(func(d *state) {
		for _, acc := range d.accounts {
			if acc.ReferrerID != nil && *acc.ReferrerID == id {
				n++
			}
		}
	})
	return n, nil
}

// BalanceStore реализует balance.Store.
type BalanceStore struct{ s *Store }

func (b *BalanceStore) ensure(d *state, accountID int64, wallet balance.Wallet) error {
	if _, ok := d.accounts[accountID]; !ok {
		return common.ErrAccountNotFound
	}
	key := balanceKey{accountID, wallet}
	if _, ok := d.balances[key]; !ok {
		d.balances[key] = balance.Balance{AccountID: accountID, Wallet: wallet, UpdatedAt: b.s.now()}
	}
	return nil
}

func (b *BalanceStore) GetOrCreate(_ context.Context, accountID int64, wallet balance.Wallet) (out *balance.Balance, err error) {
	b.s.locked(func(d *state) {
		if err = b.ensure(d, accountID, wallet); err != nil {
			return
		}
		bal := d.balances[balanceKey{accountID, wallet}]
		out = &bal
	})
	return out, err
}

func (b *BalanceStore) LockForUpdate(_ context.Context, accountID int64, wallet balance.Wallet) (current int64, err error) {
	b.s.locked(func(d *state) {
		if err = b.ensure(d, accountID, wallet); err != nil {
			return
		}
		current = d.balances[balanceKey{accountID, wallet}].Balance
	})
	return current, err
}

func (b *BalanceStore) Increment(_ context.Context, accountID int64, wallet balance.Wallet, delta int64) (out *balance.Balance, err error) {
	b.s.locked(func(d *state) {
		key := balanceKey{accountID, wallet}
		bal, ok := d.balances[key]
		if !ok {
			err = common.ErrAccountNotFound
			return
		}
		// CHECK (balance >= 0)
		if bal.Balance+delta < 0 {
			err = common.ErrInsufficientBalance
			return
		}
		bal.Balance += delta
		if delta > 0 {
			bal.TotalEarned += delta
		} else {
			bal.TotalSpent += -delta
		}
		bal.UpdatedAt = b.s.now()
		d.balances[key] = bal
		out = &bal
	})
	return out, err
}

func (b *BalanceStore) AppendEntry(_ context.Context, e *balance.Entry) error {
	b.s.locked(func(d *state) {
		e.ID = d.newID()
		e.CreatedAt = b.s.now()
		d.entries = append(d.entries, *e)
	})
	return nil
}

func (b *BalanceStore) ListEntries(_ context.Context, accountID int64, wallet balance.Wallet, limit int) (out []*balance.Entry, _ error) {
	b.s.locked(func(d *state) {
		for i := len(d.entries) - 1; i >= 0 && len(out) < limit; i-- {
			e := d.entries[i]
			if e.AccountID == accountID && e.Wallet == wallet {
				out = append(out, &e)
			}
		}
	})
	return out, nil
}

func (b *BalanceStore) SumEntries(_ context.Context, accountID int64, wallet balance.Wallet) (sum int64, _ error) {
	b.s.locked(func(d *state) {
		for _, e := range d.entries {
			if e.AccountID == accountID && e.Wallet == wallet {
				sum += e.Amount
			}
		}
	})
	return sum, nil
}

// Entries возвращает все проводки аккаунта по кошельку в порядке записи.
func (b *BalanceStore) Entries(accountID int64, wallet balance.Wallet) (out []balance.Entry) {
	b.s.locked(func(d *state) {
		for _, e := range d.entries {
			if e.AccountID == accountID && e.Wallet == wallet {
				out = append(out, e)
			}
		}
	})
	return out
}

// Corrupt меняет баланс в обход журнала. Нужен для проверки сверки.
func (b *BalanceStore) Corrupt(accountID int64, wallet balance.Wallet, value int64) {
	b.s.locked(func(d *state) {
		key := balanceKey{accountID, wallet}
		bal := d.balances[key]
		bal.AccountID, bal.Wallet, bal.Balance = accountID, wallet, value
		d.balances[key] = bal
	})
}
