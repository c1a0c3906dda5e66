// Package memory implements every storage port in process memory.
//
// Transactions are serialized by a single mutex. Each transaction works on a
// copy of the state that replaces the committed state only when the
// transaction function returns nil.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/menu"
	"github.com/xenking/platter/internal/domain/order"
)

type state struct {
	restaurants map[string]menu.Restaurant
	items       map[string]menu.Item
	options     map[string]menu.Option
	coupons     map[string]coupon.Rule
	orders      map[string]order.Order
	orderSeq    []string
	events      map[string][]order.Event
	deliveries  map[string]delivery.Delivery
	byOrder     map[string]string
	couriers    map[string]delivery.Courier
}

func newState() *state {
	return &state{
		restaurants: map[string]menu.Restaurant{},
		items:       map[string]menu.Item{},
		options:     map[string]menu.Option{},
		coupons:     map[string]coupon.Rule{},
		orders:      map[string]order.Order{},
		events:      map[string][]order.Event{},
		deliveries:  map[string]delivery.Delivery{},
		byOrder:     map[string]string{},
		couriers:    map[string]delivery.Courier{},
	}
}

// clone copies every map. Values are replaced, never mutated in place, so a
// shallow copy of each map is enough.
func (s *state) clone() *state {
	events := make(map[string][]order.Event, len(s.events))
	for k, v := range s.events {
		events[k] = v[:len(v):len(v)]
	}
	return &state{
		restaurants: maps.Clone(s.restaurants),
		items:       maps.Clone(s.items),
		options:     maps.Clone(s.options),
		coupons:     maps.Clone(s.coupons),
		orders:      maps.Clone(s.orders),
		orderSeq:    s.orderSeq[:len(s.orderSeq):len(s.orderSeq)],
		events:      events,
		deliveries:  maps.Clone(s.deliveries),
		byOrder:     maps.Clone(s.byOrder),
		couriers:    maps.Clone(s.couriers),
	}
}

// Store is an in-memory database.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &Tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// view runs fn against the committed state.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Tx is a transaction over a working copy of the state.
type Tx struct {
	st *state
}

var (
	_ order.Tx    = (*Tx)(nil)
	_ delivery.Tx = (*Tx)(nil)
)

func (t *Tx) Orders() order.Repository             { return orderRepo{t.st} }
func (t *Tx) Coupons() coupon.Repository           { return couponRepo{t.st} }
func (t *Tx) Deliveries() delivery.Repository      { return deliveryRepo{t.st} }
func (t *Tx) Couriers() delivery.CourierRepository { return courierRepo{t.st} }
func (t *Tx) Menu() menu.Repository                { return menuRepo{t.st} }

// OrderTransactor adapts s to order.Transactor.
func (s *Store) OrderTransactor() order.Transactor { return orderTransactor{s} }

// DeliveryTransactor adapts s to delivery.Transactor.
func (s *Store) DeliveryTransactor() delivery.Transactor { return deliveryTransactor{s} }

type orderTransactor struct{ s *Store }

func (o orderTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return o.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type deliveryTransactor struct{ s *Store }

func (d deliveryTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx delivery.Tx) error) error {
	return d.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

func errDuplicate(key, value string) error {
	return errs.Storage("insert", errors.Errorf("duplicate %s %q", key, value))
}

// PutRestaurant inserts or replaces r.
func (s *Store) PutRestaurant(r menu.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.restaurants[r.ID] = r
}

// PutItem inserts or replaces it.
func (s *Store) PutItem(it menu.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.items[it.ID] = it
}

// PutOption inserts or replaces o.
func (s *Store) PutOption(o menu.Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.options[o.ID] = o
}

// PutCoupon inserts or replaces rule.
func (s *Store) PutCoupon(rule coupon.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.coupons[rule.Code] = rule
}

// PutCourier inserts or replaces c.
func (s *Store) PutCourier(c delivery.Courier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.couriers[c.ID] = c
}

// Coupon returns the committed rule for code.
func (s *Store) Coupon(code string) (coupon.Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.st.coupons[code]
	return rule, ok
}

// Courier returns the committed courier with id.
func (s *Store) Courier(id string) (delivery.Courier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.couriers[id]
	return c, ok
}

// Restaurant returns the committed restaurant with id.
func (s *Store) Restaurant(id string) (menu.Restaurant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.restaurants[id]
	return r, ok
}
