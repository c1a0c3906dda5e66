// Package order owns the order entity, its status state machine and the
// unit of work that creates and transitions orders.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/menu"
)

// ErrOrderNotFound is returned for unknown order ids.
var ErrOrderNotFound = errors.New("order not found")

// Status is the order status. Transitions are checked by CanTransition.
type Status string

const (
	StatusCreated        Status = "created"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusCreated:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered},
}

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; ok || st == StatusDelivered || st == StatusCancelled {
		return st, nil
	}
	return "", errs.Validation("status", "unknown order status "+s)
}

// CanTransition reports whether to is a direct successor of s.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

// PaymentStatus is recorded on the order; settlement happens elsewhere.
type PaymentStatus string

const PaymentPending PaymentStatus = "pending"

// Customization is a chosen option frozen at its price when ordered.
type Customization struct {
	OptionID      string          `json:"option_id"`
	Name          string          `json:"name"`
	PriceAddition decimal.Decimal `json:"price_addition"`
}

// Item is one line of an order.
type Item struct {
	MenuItemID     string
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	Customizations []Customization
	LineTotal      decimal.Decimal
}

// Order is a priced customer order.
type Order struct {
	ID                  string
	UserID              string
	RestaurantID        string
	Items               []Item
	TotalAmount         decimal.Decimal
	DeliveryFee         decimal.Decimal
	Taxes               decimal.Decimal
	DiscountAmount      decimal.Decimal
	FinalAmount         decimal.Decimal
	CouponCode          string
	PaymentMethod       string
	PaymentStatus       PaymentStatus
	Status              Status
	DeliveryAddress     string
	SpecialInstructions string
	CancelReason        string
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Event records one status change. From is empty for the creation event.
type Event struct {
	OrderID string
	From    Status
	To      Status
	Actor   string
	Reason  string
	At      time.Time
}

// Repository persists orders, their items and their status history.
type Repository interface {
	// Create inserts the order and its items.
	Create(ctx context.Context, o *Order) error
	// Get returns ErrOrderNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus writes o's status, cancel reason, version and updated-at
	// if the stored version still equals expectedVersion. It reports false
	// when no row matched.
	UpdateStatus(ctx context.Context, o *Order, expectedVersion int) (bool, error)
	AppendEvent(ctx context.Context, e Event) error
	// Events returns the history of orderID, oldest first.
	Events(ctx context.Context, orderID string) ([]Event, error)
	// List returns the orders matching f, newest first.
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListFilter selects a page of orders. Empty ids match any order.
type ListFilter struct {
	UserID       string
	RestaurantID string
	Limit        int
	Offset       int
}

// Tx exposes the repositories bound to one storage transaction.
type Tx interface {
	Orders() Repository
	Coupons() coupon.Repository
	Deliveries() delivery.Repository
	Couriers() delivery.CourierRepository
	Menu() menu.Repository
}

// Transactor runs fn inside a storage transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
