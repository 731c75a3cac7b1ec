package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderpay-be/internal/order"
)

// memStore mirrors the conditional UPDATEs of the Postgres repository: every
// transition checks the predecessor state under one lock.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order

	// beforeAwaiting runs inside TransitionToAwaiting before the state check.
	beforeAwaiting func(o *order.Order)
}

func newMemStore(orders ...*order.Order) *memStore {
	s := &memStore{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func clone(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	if o.Gateway != nil {
		gw := *o.Gateway
		c.Gateway = &gw
	}
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		c.PaymentResult = &pr
	}
	return &c
}

func (s *memStore) get(id string) *order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.orders[id])
}

func (s *memStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = clone(o)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return clone(o), nil
}

func (s *memStore) GetByGatewayRef(_ context.Context, ref string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.GatewayRef() == ref {
			return clone(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (s *memStore) fail(id string, target order.PaymentState) error {
	o, ok := s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	return &order.TransitionError{OrderID: id, Current: o.PaymentState, Target: target}
}

func (s *memStore) TransitionToAwaiting(_ context.Context, id string, gw order.GatewayOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if ok && s.beforeAwaiting != nil {
		s.beforeAwaiting(o)
	}
	if !ok || o.PaymentState != order.StateCreated || o.Gateway != nil {
		return s.fail(id, order.StateAwaitingConfirmation)
	}
	o.PaymentState = order.StateAwaitingConfirmation
	o.Gateway = &gw
	return nil
}

func (s *memStore) TransitionToPaid(_ context.Context, id string, result order.PaymentResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.PaymentState != order.StateAwaitingConfirmation {
		return false, s.fail(id, order.StatePaid)
	}
	claimed := !o.InventoryApplied
	o.PaymentState = order.StatePaid
	o.PaymentResult = &result
	paidAt := result.VerifiedAt
	o.PaidAt = &paidAt
	o.InventoryApplied = true
	return claimed, nil
}

func (s *memStore) TransitionToDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.PaymentState != order.StatePaid {
		return s.fail(id, order.StateDelivered)
	}
	o.PaymentState = order.StateDelivered
	o.DeliveredAt = &at
	return nil
}

func (s *memStore) RecordInventoryOutcome(_ context.Context, id string, outcome order.InventoryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || !o.InventoryApplied || o.InventoryOutcome != order.InventoryPending {
		return order.ErrInvalidStateTransition
	}
	o.InventoryOutcome = outcome
	return nil
}

func (s *memStore) ListUnreconciled(_ context.Context, paidBefore time.Time, limit int) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if o.PaymentState.AtLeast(order.StatePaid) && o.InventoryApplied &&
			o.InventoryOutcome == order.InventoryPending &&
			o.PaidAt != nil && o.PaidAt.Before(paidBefore) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(*out[j].PaidAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
