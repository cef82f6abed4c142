// Package commission — service.go распределяет комиссию по цепочке агентов.
//
// Всё распределение (проводки всех уровней, записи о комиссии, месячная статистика
// и автоповышение прямого реферера) выполняется одной транзакцией: либо начислено
// всё, либо ничего.
package commission

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/config"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/metrics"
)

// Store сохраняет записи о комиссиях.
type Store interface {
	InsertRecord(ctx context.Context, rec *Record) error
	ListByAgent(ctx context.Context, agentAccountID int64, limit int) ([]*Record, error)
}

// Referrers возвращает сохранённого реферера покупателя.
type Referrers interface {
	ReferrerOf(ctx context.Context, accountID int64) (*int64, error)
}

// Agents — агентская программа с точки зрения движка.
type Agents interface {
	GetProfile(ctx context.Context, accountID int64) (*agents.Profile, error)
	RecordSale(ctx context.Context, accountID int64, orderAmount, commission int64) error
	EvaluateUpgrade(ctx context.Context, accountID int64) (*agents.LevelChange, error)
}

// Ledger начисляет комиссии на кошельки агентов.
type Ledger interface {
	Credit(ctx context.Context, p balance.Posting) (*balance.Result, error)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service — комиссионный движок.
type Service struct {
	store     Store
	referrers Referrers
	agents    Agents
	ledger    Ledger
	tx        Transactor
	maxDepth  int
}

// NewService создаёт движок. Глубина цепочки — config.CommissionDepth.
func NewService(store Store, referrers Referrers, agentsSvc Agents, ledger Ledger, tx Transactor) *Service {
	return &Service{
		store:     store,
		referrers: referrers,
		agents:    agentsSvc,
		ledger:    ledger,
		tx:        tx,
		maxDepth:  config.CommissionDepth,
	}
}

// Distribute распределяет комиссию с оплаченного заказа.
//
// Нет реферера, реферер совпадает с покупателем или у реферера нет профиля агента:
// комиссия не начисляется, ошибки нет.
func (s *Service) Distribute(ctx context.Context, in Input) (*Result, error) {
	if in.Amount <= 0 {
		return nil, common.ErrInvalidAmount
	}

	result := &Result{BatchID: uuid.NewString()}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		directID, err := s.directReferrer(ctx, in)
		if err != nil || directID == nil {
			return err
		}

		chain, err := s.resolveChain(ctx, *directID)
		if err != nil || len(chain) == 0 {
			return err
		}

		result.Shares = Split(chain, in.Amount)
		for _, share := range result.Shares {
			if err := s.post(ctx, in, result.BatchID, share); err != nil {
				return err
			}
		}

		result.Upgrade, err = s.agents.EvaluateUpgrade(ctx, *directID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(result.Shares) > 0 {
		log.WithFields(log.Fields{
			"order_id": in.OrderID,
			"buyer_id": in.BuyerID,
			"amount":   in.Amount,
			"agents":   len(result.Shares),
			"total":    result.Total(),
			"batch_id": result.BatchID,
		}).Info("Комиссия распределена")
	}
	return result, nil
}

// directReferrer возвращает прямого реферера покупателя или nil,
// если комиссию начислять некому.
func (s *Service) directReferrer(ctx context.Context, in Input) (*int64, error) {
	referrerID := in.AgentID
	if referrerID == nil {
		var err error
		if referrerID, err = s.referrers.ReferrerOf(ctx, in.BuyerID); err != nil {
			return nil, err
		}
	}
	if referrerID == nil {
		return nil, nil
	}
	if *referrerID == in.BuyerID {
		log.WithField("buyer_id", in.BuyerID).Warn("Покупатель указан своим же реферером, комиссия не начисляется")
		return nil, nil
	}
	return referrerID, nil
}

// resolveChain поднимается по родителям не выше maxDepth звеньев.
// Отсутствие профиля у прямого реферера даёт пустую цепочку.
func (s *Service) resolveChain(ctx context.Context, directID int64) ([]Node, error) {
	chain := make([]Node, 0, s.maxDepth)
	visited := make(map[int64]struct{}, s.maxDepth)

	next := &directID
	for len(chain) < s.maxDepth && next != nil {
		id := *next
		if _, seen := visited[id]; seen {
			log.WithField("account_id", id).Error("Цикл в цепочке агентов")
			break
		}
		visited[id] = struct{}{}

		p, err := s.agents.GetProfile(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrAgentProfileNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, Node{
			AccountID:      p.AccountID,
			Active:         p.IsActive(),
			CommissionRate: p.CommissionRate,
			PassDownRate:   p.PassDownRate,
		})
		next = p.ParentAgentID
	}
	return chain, nil
}

func (s *Service) post(ctx context.Context, in Input, batchID string, share Share) error {
	description := fmt.Sprintf("Комиссия %d-го уровня", share.Depth)
	metadata := map[string]any{
		"buyer_id": in.BuyerID,
		"depth":    share.Depth,
		"rate_bp":  share.RateBP,
		"batch_id": batchID,
	}
	if in.OrderID != nil {
		description = fmt.Sprintf("Комиссия %d-го уровня за заказ #%d", share.Depth, *in.OrderID)
		metadata["order_id"] = *in.OrderID
	}

	res, err := s.ledger.Credit(ctx, balance.Posting{
		AccountID:   share.AccountID,
		Wallet:      balance.WalletCommission,
		Type:        balance.TypePromotion,
		Amount:      share.Amount,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return err
	}

	if err := s.store.InsertRecord(ctx, &Record{
		OrderID:        in.OrderID,
		BuyerID:        in.BuyerID,
		AgentAccountID: share.AccountID,
		Depth:          share.Depth,
		RateBP:         share.RateBP,
		OrderAmount:    in.Amount,
		Amount:         share.Amount,
		BatchID:        batchID,
		LedgerEntryID:  res.Entry.ID,
	}); err != nil {
		return err
	}

	if err := s.agents.RecordSale(ctx, share.AccountID, in.Amount, share.Amount); err != nil {
		return err
	}
	metrics.RecordCommission(strconv.Itoa(share.Depth), share.Amount)
	return nil
}

// History возвращает последние комиссии агента.
func (s *Service) History(ctx context.Context, agentAccountID int64, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = balance.DefaultHistoryLimit
	}
	return s.store.ListByAgent(ctx, agentAccountID, limit)
}
