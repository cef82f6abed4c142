// Package balance — service.go содержит бизнес-логику балансов.
// Любое изменение баланса идёт через post: атомарный инкремент в БД плюс запись
// журнала в одной транзакции. Списание предварительно блокирует строку баланса.
package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/metrics"
)

// DefaultHistoryLimit — сколько записей журнала отдаёт History по умолчанию.
const DefaultHistoryLimit = 20

// Store — хранилище балансов и журнала.
type Store interface {
	GetOrCreate(ctx context.Context, accountID int64, wallet Wallet) (*Balance, error)
	LockForUpdate(ctx context.Context, accountID int64, wallet Wallet) (int64, error)
	Increment(ctx context.Context, accountID int64, wallet Wallet, delta int64) (*Balance, error)
	AppendEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, accountID int64, wallet Wallet, limit int) ([]*Entry, error)
	SumEntries(ctx context.Context, accountID int64, wallet Wallet) (int64, error)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service управляет балансами аккаунтов.
type Service struct {
	store Store
	tx    Transactor
}

// NewService создаёт новый сервис балансов.
func NewService(store Store, tx Transactor) *Service {
	return &Service{store: store, tx: tx}
}

// Get возвращает баланс кошелька (нулевой, если аккаунт ещё ничего не получал).
func (s *Service) Get(ctx context.Context, accountID int64, wallet Wallet) (*Balance, error) {
	if !wallet.Valid() {
		return nil, fmt.Errorf("неизвестный кошелёк %q", wallet)
	}
	return s.store.GetOrCreate(ctx, accountID, wallet)
}

// Credit начисляет p.Amount на кошелёк.
func (s *Service) Credit(ctx context.Context, p Posting) (*Result, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	return s.post(ctx, p, p.Amount)
}

// Debit списывает p.Amount с кошелька.
// Если на кошельке меньше p.Amount — ErrInsufficientBalance, баланс не меняется.
func (s *Service) Debit(ctx context.Context, p Posting) (*Result, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	return s.post(ctx, p, -p.Amount)
}

// Adjust — ручная корректировка администратором. amount со знаком, ноль недопустим.
func (s *Service) Adjust(ctx context.Context, accountID int64, wallet Wallet, amount int64, actorID int64, note string) (*Result, error) {
	p, err := adjustPosting(accountID, wallet, amount, actorID, note)
	if err != nil {
		return nil, err
	}
	res, err := s.post(ctx, p, amount)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"wallet":     wallet,
		"amount":     amount,
		"actor_id":   actorID,
	}).Info("Баланс скорректирован администратором")
	return res, nil
}

// BatchAdjust применяет одну корректировку к нескольким аккаунтам в одной транзакции.
// Если хотя бы одному аккаунту не хватает средств на списание, не меняется ни один баланс.
// Повторяющиеся ID учитываются один раз.
func (s *Service) BatchAdjust(ctx context.Context, accountIDs []int64, wallet Wallet, amount int64, actorID int64, note string) (*BatchResult, error) {
	ids := dedupe(accountIDs)
	result := &BatchResult{BatchID: uuid.NewString()}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			p, err := adjustPosting(id, wallet, amount, actorID, note)
			if err != nil {
				return err
			}
			p.Metadata["batch_id"] = result.BatchID

			res, err := s.post(ctx, p, amount)
			if err != nil {
				return fmt.Errorf("аккаунт %d: %w", id, err)
			}
			result.Entries = append(result.Entries, res.Entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.AffectedCount = len(result.Entries)
	log.WithFields(log.Fields{
		"batch_id": result.BatchID,
		"accounts": result.AffectedCount,
		"amount":   amount,
		"actor_id": actorID,
	}).Info("Пакетная корректировка выполнена")
	return result, nil
}

// History возвращает последние записи журнала кошелька (новые первыми).
func (s *Service) History(ctx context.Context, accountID int64, wallet Wallet, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.ListEntries(ctx, accountID, wallet, limit)
}

// Reconcile сверяет баланс кошелька с суммой его проводок.
func (s *Service) Reconcile(ctx context.Context, accountID int64, wallet Wallet) (*Reconciliation, error) {
	rec := &Reconciliation{AccountID: accountID, Wallet: wallet}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.store.GetOrCreate(ctx, accountID, wallet)
		if err != nil {
			return err
		}
		sum, err := s.store.SumEntries(ctx, accountID, wallet)
		if err != nil {
			return err
		}
		rec.Balance, rec.LedgerSum = b.Balance, sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Consistent() {
		log.WithFields(log.Fields{
			"account_id": accountID,
			"wallet":     wallet,
			"balance":    rec.Balance,
			"ledger_sum": rec.LedgerSum,
		}).Error("Баланс не сходится с журналом")
	}
	return rec, nil
}

// post меняет баланс на delta и пишет запись журнала в одной транзакции.
// При вложенном вызове присоединяется к транзакции вызывающего.
func (s *Service) post(ctx context.Context, p Posting, delta int64) (*Result, error) {
	var res *Result
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if delta < 0 {
			current, err := s.store.LockForUpdate(ctx, p.AccountID, p.Wallet)
			if err != nil {
				return err
			}
			if current < -delta {
				return common.ErrInsufficientBalance
			}
		} else if _, err := s.store.GetOrCreate(ctx, p.AccountID, p.Wallet); err != nil {
			return err
		}

		b, err := s.store.Increment(ctx, p.AccountID, p.Wallet, delta)
		if err != nil {
			return err
		}

		entry := &Entry{
			AccountID:    p.AccountID,
			Wallet:       p.Wallet,
			Type:         p.Type,
			Amount:       delta,
			BalanceAfter: b.Balance,
			Description:  p.Description,
			Metadata:     p.Metadata,
		}
		if err := s.store.AppendEntry(ctx, entry); err != nil {
			return err
		}
		res = &Result{Entry: entry, NewBalance: b.Balance}
		return nil
	})
	if err != nil {
		var bizErr *common.Error
		if errors.As(err, &bizErr) {
			metrics.RecordRejection(bizErr.Code)
			log.WithFields(log.Fields{
				"account_id": p.AccountID,
				"wallet":     p.Wallet,
				"amount":     delta,
				"code":       bizErr.Code,
			}).Debug("Проводка отклонена")
		}
		return nil, err
	}

	metrics.RecordPosting(string(p.Wallet), string(p.Type))
	log.WithFields(log.Fields{
		"account_id": p.AccountID,
		"wallet":     p.Wallet,
		"type":       p.Type,
		"amount":     delta,
		"balance":    res.NewBalance,
	}).Debug("Проводка выполнена")
	return res, nil
}

func validate(p Posting) error {
	if p.Amount <= 0 {
		return common.ErrInvalidAmount
	}
	if !p.Wallet.Valid() {
		return fmt.Errorf("неизвестный кошелёк %q", p.Wallet)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("неизвестный тип проводки %q", p.Type)
	}
	return nil
}

func adjustPosting(accountID int64, wallet Wallet, amount int64, actorID int64, note string) (Posting, error) {
	if amount == 0 {
		return Posting{}, common.ErrInvalidAmount
	}
	if !wallet.Valid() {
		return Posting{}, fmt.Errorf("неизвестный кошелёк %q", wallet)
	}
	return Posting{
		AccountID:   accountID,
		Wallet:      wallet,
		Type:        TypeAdjust,
		Amount:      amount,
		Description: note,
		Metadata:    map[string]any{"actor_id": actorID},
	}, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
