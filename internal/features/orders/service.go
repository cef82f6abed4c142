// Package orders — service.go реализует машину состояний заказа.
//
// Одобрение сначала условно переводит заказ в approved и только после успеха
// начисляет монеты или дни и распределяет комиссию. Всё это одна транзакция,
// поэтому повторное или одновременное одобрение ничего не начислит дважды.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/commission"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/metrics"
)

// Store — хранилище заказов и товаров.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	MarkPaid(ctx context.Context, id int64, proof Proof) (*Order, error)
	MarkApproved(ctx context.Context, id, reviewerID int64, at time.Time) (*Order, error)
	DeleteOpen(ctx context.Context, id int64) (*Order, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// Ledger начисляет купленные монеты.
type Ledger interface {
	Credit(ctx context.Context, p balance.Posting) (*balance.Result, error)
}

// Memberships продлевает купленную подписку.
type Memberships interface {
	Extend(ctx context.Context, accountID int64, days int) (*membership.Membership, error)
}

// Distributor распределяет комиссию с оплаченного заказа.
type Distributor interface {
	Distribute(ctx context.Context, in commission.Input) (*commission.Result, error)
}

// Notifier узнаёт о заказах, ожидающих проверки.
type Notifier interface {
	OrderPaid(ctx context.Context, o *Order)
}

// Transactor выполняет функцию в одной транзакции БД.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service управляет заказами.
type Service struct {
	store       Store
	ledger      Ledger
	memberships Memberships
	distributor Distributor // nil — комиссии отключены
	notifier    Notifier    // nil — уведомлять некого
	tx          Transactor
	pendingTTL  time.Duration
	now         func() time.Time
	orderNo     func(time.Time) string
}

// NewService создаёт сервис заказов.
// distributor может быть nil, тогда одобрение не распределяет комиссию.
func NewService(store Store, ledger Ledger, memberships Memberships, distributor Distributor, tx Transactor, pendingTTL time.Duration) *Service {
	return &Service{
		store:       store,
		ledger:      ledger,
		memberships: memberships,
		distributor: distributor,
		tx:          tx,
		pendingTTL:  pendingTTL,
		now:         time.Now,
		orderNo:     newOrderNo,
	}
}

// SetNotifier подключает получателя уведомлений об оплаченных заказах.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// WithClock подменяет источник времени (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithOrderNumbers подменяет генератор номеров заказов (для тестов).
func (s *Service) WithOrderNumbers(gen func(time.Time) string) *Service {
	s.orderNo = gen
	return s
}

// orderNoAttempts — сколько раз пробуем вставить заказ при совпадении номера.
const orderNoAttempts = 3

// Create создаёт pending-заказ на товар.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, common.ErrProductNotFound
	}

	agentID := req.AgentID
	if agentID != nil && *agentID == req.BuyerID {
		agentID = nil
	}

	o := &Order{
		OrderNo:    s.orderNo(s.now()),
		BuyerID:    req.BuyerID,
		ProductID:  product.ID,
		Kind:       product.Kind,
		Amount:     product.Price,
		Coins:      product.Coins,
		Days:       product.Days,
		Status:     StatusPending,
		AgentID:    agentID,
		RemarkCode: newRemarkCode(),
	}
	for attempt := 1; ; attempt++ {
		err = s.store.Create(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrOrderNoTaken) || attempt == orderNoAttempts {
			return nil, err
		}
		log.WithFields(log.Fields{
			"order_no": o.OrderNo,
			"attempt":  attempt,
		}).Warn("Номер заказа уже занят, генерируем новый")
		o.OrderNo = s.orderNo(s.now())
	}

	metrics.RecordOrderTransition(string(StatusPending))
	log.WithFields(log.Fields{
		"order_id": o.ID,
		"order_no": o.OrderNo,
		"buyer_id": o.BuyerID,
		"amount":   o.Amount,
	}).Info("Создан заказ")
	return o, nil
}

// newOrderNo — время создания с точностью до секунды плюс шесть случайных цифр.
func newOrderNo(now time.Time) string {
	return fmt.Sprintf("%s%06d", now.UTC().Format("20060102150405"), rand.IntN(1_000_000))
}

// newRemarkCode — короткий числовой код, который покупатель указывает в комментарии к платежу.
func newRemarkCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1_000_000))
}

// SubmitProof прикладывает подтверждение оплаты. Допустимо только из pending.
func (s *Service) SubmitProof(ctx context.Context, orderID, buyerID int64, proof Proof) (*Order, error) {
	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing.BuyerID != buyerID {
		return nil, common.ErrOrderNotFound
	}

	o, err := s.store.MarkPaid(ctx, orderID, proof)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, s.notTransitioned(ctx, orderID)
	}

	metrics.RecordOrderTransition(string(StatusPaid))
	log.WithFields(log.Fields{
		"order_id": o.ID,
		"buyer_id": o.BuyerID,
	}).Info("Заказ оплачен, ждёт проверки")

	if s.notifier != nil {
		s.notifier.OrderPaid(ctx, o)
	}
	return o, nil
}

// Approve одобряет заказ и начисляет покупку.
// Повторное одобрение — ErrOrderAlreadyProcessed, ничего не начисляется.
func (s *Service) Approve(ctx context.Context, orderID, reviewerID int64) (*ApproveResult, error) {
	result := &ApproveResult{}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.store.MarkApproved(ctx, orderID, reviewerID, s.now())
		if err != nil {
			return err
		}
		if o == nil {
			return s.notTransitioned(ctx, orderID)
		}
		result.Order = o

		if result.Credited, err = s.deliver(ctx, o); err != nil {
			return err
		}

		if s.distributor != nil {
			result.Commission, err = s.distributor.Distribute(ctx, commission.Input{
				OrderID: &o.ID,
				BuyerID: o.BuyerID,
				Amount:  o.Amount,
				AgentID: o.AgentID,
			})
		}
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrOrderAlreadyProcessed) {
			metrics.RecordRejection(common.ErrOrderAlreadyProcessed.Code)
		}
		return nil, err
	}

	metrics.RecordOrderTransition(string(StatusApproved))
	log.WithFields(log.Fields{
		"order_id":    orderID,
		"reviewer_id": reviewerID,
		"buyer_id":    result.Order.BuyerID,
		"amount":      result.Order.Amount,
	}).Info("Заказ одобрен")
	return result, nil
}

// deliver начисляет покупателю то, что он купил.
func (s *Service) deliver(ctx context.Context, o *Order) (bool, error) {
	switch o.Kind {
	case KindCoins:
		if o.Coins <= 0 {
			return false, nil
		}
		_, err := s.ledger.Credit(ctx, balance.Posting{
			AccountID:   o.BuyerID,
			Wallet:      balance.WalletCoins,
			Type:        balance.TypeRecharge,
			Amount:      o.Coins,
			Description: "Пополнение по заказу " + o.OrderNo,
			Metadata:    map[string]any{"order_id": o.ID, "order_no": o.OrderNo},
		})
		return err == nil, err
	case KindMembership:
		if o.Days <= 0 {
			return false, nil
		}
		_, err := s.memberships.Extend(ctx, o.BuyerID, o.Days)
		return err == nil, err
	}
	return false, fmt.Errorf("неизвестный тип заказа %q", o.Kind)
}

// Reject отклоняет заказ. Оплаты не было, поэтому заказ удаляется.
func (s *Service) Reject(ctx context.Context, orderID, reviewerID int64, reason string) (*Order, error) {
	o, err := s.store.DeleteOpen(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, s.notTransitioned(ctx, orderID)
	}

	metrics.RecordOrderTransition(string(StatusRejected))
	log.WithFields(log.Fields{
		"order_id":    orderID,
		"reviewer_id": reviewerID,
		"reason":      reason,
	}).Info("Заказ отклонён и удалён")
	return o, nil
}

// notTransitioned объясняет, почему условный переход не затронул ни одной строки.
func (s *Service) notTransitioned(ctx context.Context, orderID int64) error {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return err
	}
	return common.ErrOrderAlreadyProcessed
}

// Get возвращает заказ по ID.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	return s.store.Get(ctx, orderID)
}

// ListByStatus возвращает заказы со статусом status.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error) {
	return s.store.ListByStatus(ctx, status, limit)
}

// ExpireStale удаляет pending-заказы без подтверждения старше pendingTTL.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteStale(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("count", n).Info("Удалены просроченные заказы")
	}
	return n, nil
}
