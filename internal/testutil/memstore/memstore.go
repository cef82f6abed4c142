// Package memstore — хранилище в памяти для тестов сервисов.
//
// Реализует Store-интерфейсы всех фич и Transactor. Транзакции выполняются
// строго по одной: InTx снимает снимок состояния и восстанавливает его при ошибке.
// Вложенный InTx присоединяется к внешнему, как postgres.TxManager.
// Ограничения БД (уникальность, внешние ключи, balance >= 0) повторены в коде.
package memstore

import (
	"context"
	"sync"
	"time"

	"serotonyl.ru/streaming-ledger/internal/features/accounts"
	"serotonyl.ru/streaming-ledger/internal/features/admin"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/checkin"
	"serotonyl.ru/streaming-ledger/internal/features/commission"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
	"serotonyl.ru/streaming-ledger/internal/features/paywall"
)

type txKey struct{}

type balanceKey struct {
	accountID int64
	wallet    balance.Wallet
}

type monthlyKey struct {
	accountID int64
	month     time.Time
}

type unlockKey struct {
	accountID int64
	videoID   string
}

// state — все «таблицы». Значения хранятся копиями, чтобы снимок был дешёвым.
type state struct {
	nextID int64

	accounts     map[int64]accounts.Account
	balances     map[balanceKey]balance.Balance
	entries      []balance.Entry
	profiles     map[int64]agents.Profile
	levels       map[int64]agents.Level
	levelChanges []agents.LevelChange
	monthly      map[monthlyKey]agents.MonthlyRecord
	commissions  []commission.Record
	memberships  map[int64]membership.Membership
	products     map[int64]orders.Product
	orders       map[int64]orders.Order
	unlocks      map[unlockKey]paywall.Unlock
	checkins     []checkin.Checkin
	sessions     []admin.Session
	attempts     []loginAttempt
}

type loginAttempt struct {
	userID  int64
	success bool
	at      time.Time
}

func newState() *state {
	return &state{
		accounts:    make(map[int64]accounts.Account),
		balances:    make(map[balanceKey]balance.Balance),
		profiles:    make(map[int64]agents.Profile),
		levels:      make(map[int64]agents.Level),
		monthly:     make(map[monthlyKey]agents.MonthlyRecord),
		memberships: make(map[int64]membership.Membership),
		products:    make(map[int64]orders.Product),
		orders:      make(map[int64]orders.Order),
		unlocks:     make(map[unlockKey]paywall.Unlock),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		nextID:       s.nextID,
		accounts:     cloneMap(s.accounts),
		balances:     cloneMap(s.balances),
		entries:      append([]balance.Entry(nil), s.entries...),
		profiles:     cloneMap(s.profiles),
		levels:       cloneMap(s.levels),
		levelChanges: append([]agents.LevelChange(nil), s.levelChanges...),
		monthly:      cloneMap(s.monthly),
		commissions:  append([]commission.Record(nil), s.commissions...),
		memberships:  cloneMap(s.memberships),
		products:     cloneMap(s.products),
		orders:       cloneMap(s.orders),
		unlocks:      cloneMap(s.unlocks),
		checkins:     append([]checkin.Checkin(nil), s.checkins...),
		sessions:     append([]admin.Session(nil), s.sessions...),
		attempts:     append([]loginAttempt(nil), s.attempts...),
	}
}

func (s *state) newID() int64 {
	s.nextID++
	return s.nextID
}

// Store — корень хранилища. Репозитории фич доступны как поля.
type Store struct {
	mu   sync.Mutex // защищает data
	txMu sync.Mutex // одна транзакция за раз
	data *state
	now  func() time.Time

	Balances    *BalanceStore
	Accounts    *AccountStore
	Agents      *AgentStore
	Commissions *CommissionStore
	Memberships *MembershipStore
	Orders      *OrderStore
	Unlocks     *UnlockStore
	Checkins    *CheckinStore
	Admin       *AdminStore
}

// New создаёт пустое хранилище.
func New() *Store {
	s := &Store{data: newState(), now: time.Now}
	s.Balances = &BalanceStore{s}
	s.Accounts = &AccountStore{s}
	s.Agents = &AgentStore{s}
	s.Commissions = &CommissionStore{s}
	s.Memberships = &MembershipStore{s}
	s.Orders = &OrderStore{s}
	s.Unlocks = &UnlockStore{s}
	s.Checkins = &CheckinStore{s}
	s.Admin = &AdminStore{s}
	return s
}

// WithClock задаёт время, которым проставляются created_at и updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// InTx выполняет fn в «транзакции».
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// locked выполняет f под блокировкой данных.
func (s *Store) locked(f func(d *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.data)
}
