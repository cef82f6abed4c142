package memstore

import (
	"context"
	"sort"
	"time"

	"serotonyl.ru/streaming-ledger/internal/common"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
)

// OrderStore реализует orders.Store.
type OrderStore struct{ s *Store }

// AddProduct сохраняет товар и возвращает его ID. Для подготовки тестов.
func (o *OrderStore) AddProduct(p orders.Product) int64 {
	o.s.locked(func(d *state) {
		p.ID = d.newID()
		d.products[p.ID] = p
	})
	return p.ID
}

func (o *OrderStore) GetProduct(_ context.Context, id int64) (out *orders.Product, err error) {
	o.s.locked(func(d *state) {
		p, ok := d.products[id]
		if !ok {
			err = common.ErrProductNotFound
			return
		}
		out = &p
	})
	return out, err
}

func (o *OrderStore) Create(_ context.Context, order *orders.Order) (err error) {
	o.s.locked(func(d *state) {
		if _, ok := d.accounts[order.BuyerID]; !ok {
			err = common.ErrAccountNotFound
			return
		}
		for _, existing := range d.orders {
			if existing.OrderNo == order.OrderNo {
				err = orders.ErrOrderNoTaken
				return
			}
		}
		// orders_one_pending_per_item
		if order.Status == orders.StatusPending {
			for _, existing := range d.orders {
				if existing.Status == orders.StatusPending &&
					existing.BuyerID == order.BuyerID && existing.ProductID == order.ProductID {
					err = common.ErrDuplicatePendingOrder
					return
				}
			}
		}
		now := o.s.now()
		order.ID = d.newID()
		order.CreatedAt, order.UpdatedAt = now, now
		d.orders[order.ID] = *order
	})
	return err
}

func (o *OrderStore) Get(_ context.Context, id int64) (out *orders.Order, err error) {
	o.s.locked(func(d *state) {
		order, ok := d.orders[id]
		if !ok {
			err = common.ErrOrderNotFound
			return
		}
		out = &order
	})
	return out, err
}

// update меняет заказ, если его статус входит в from. Иначе возвращает nil.
func (o *OrderStore) update(id int64, from []orders.Status, apply func(*orders.Order)) (out *orders.Order) {
	o.s.locked(func(d *state) {
		order, ok := d.orders[id]
		if !ok || !statusIn(order.Status, from) {
			return
		}
		apply(&order)
		order.UpdatedAt = o.s.now()
		d.orders[id] = order
		out = &order
	})
	return out
}

func statusIn(s orders.Status, set []orders.Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (o *OrderStore) MarkPaid(_ context.Context, id int64, proof orders.Proof) (*orders.Order, error) {
	return o.update(id, []orders.Status{orders.StatusPending}, func(order *orders.Order) {
		order.Status = orders.StatusPaid
		order.ProofURL = nullIfEmpty(proof.URL)
		order.ProofNote = nullIfEmpty(proof.Note)
	}), nil
}

func (o *OrderStore) MarkApproved(_ context.Context, id, reviewerID int64, at time.Time) (*orders.Order, error) {
	return o.update(id, []orders.Status{orders.StatusPending, orders.StatusPaid}, func(order *orders.Order) {
		order.Status = orders.StatusApproved
		order.ReviewerID = &reviewerID
		order.ReviewedAt = &at
	}), nil
}

func (o *OrderStore) DeleteOpen(_ context.Context, id int64) (out *orders.Order, _ error) {
	o.s.locked(func(d *state) {
		order, ok := d.orders[id]
		if !ok || !statusIn(order.Status, []orders.Status{orders.StatusPending, orders.StatusPaid}) {
			return
		}
		delete(d.orders, id)
		out = &order
	})
	return out, nil
}

func (o *OrderStore) ListByStatus(_ context.Context, status orders.Status, limit int) (out []*orders.Order, _ error) {
	o.s.locked(func(d *state) {
		for _, order := range d.orders {
			if order.Status == status {
				order := order
				out = append(out, &order)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *OrderStore) DeleteStale(_ context.Context, before time.Time) (n int64, _ error) {
	o.s.locked(func(d *state) {
		for id, order := range d.orders {
			if order.Status == orders.StatusPending && order.CreatedAt.Before(before) {
				delete(d.orders, id)
				n++
			}
		}
	})
	return n, nil
}
