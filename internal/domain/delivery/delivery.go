// Package delivery coordinates fulfilment of confirmed orders: courier
// assignment, delivery status and last known location.
package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/errs"
)

var (
	ErrDeliveryNotFound   = errors.New("delivery not found")
	ErrCourierNotFound    = errors.New("courier not found")
	ErrCourierUnavailable = errors.New("courier is not available")
	// ErrOrderCancelled is returned when the order behind a delivery was
	// cancelled after confirmation.
	ErrOrderCancelled = errors.New("order was cancelled")
)

// Status is the delivery status. The zero value is not a valid status.
type Status string

const (
	StatusAwaitingAssignment Status = "awaiting_assignment"
	StatusAssigned           Status = "assigned"
	StatusPickedUp           Status = "picked_up"
	StatusDelivered          Status = "delivered"
)

// next holds the single successor of every non-terminal status.
var next = map[Status]Status{
	StatusAwaitingAssignment: StatusAssigned,
	StatusAssigned:           StatusPickedUp,
	StatusPickedUp:           StatusDelivered,
}

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusAwaitingAssignment, StatusAssigned, StatusPickedUp, StatusDelivered:
		return st, nil
	default:
		return "", errs.Validation("status", "unknown delivery status "+s)
	}
}

// CanTransition reports whether to directly follows s.
func (s Status) CanTransition(to Status) bool {
	n, ok := next[s]
	return ok && n == to
}

func (s Status) String() string { return string(s) }

// Location is a coordinate snapshot.
type Location struct {
	Lat        float64
	Lng        float64
	RecordedAt time.Time
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return errs.Validation("lat", "must be within [-90, 90]")
	}
	if l.Lng < -180 || l.Lng > 180 {
		return errs.Validation("lng", "must be within [-180, 180]")
	}
	if l.RecordedAt.IsZero() {
		return errs.Validation("timestamp", "is required")
	}
	return nil
}

// Delivery tracks one confirmed order from assignment to hand-off.
type Delivery struct {
	ID           string
	OrderID      string
	CourierID    *string
	Status       Status
	PickupTime   *time.Time
	DeliveryTime *time.Time
	Location     *Location
	// OrderCancelled is read from the owning order and never written here.
	OrderCancelled bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Courier is a delivery person as seen by assignment.
type Courier struct {
	ID            string
	Name          string
	Phone         string
	Vehicle       string
	Available     bool
	Location      *Location
	AverageRating decimal.Decimal
	// UserID is the account the courier signs in with, empty if none.
	UserID string
}

// Repository persists deliveries.
type Repository interface {
	Create(ctx context.Context, d *Delivery) error
	// Get and GetByOrder return ErrDeliveryNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Delivery, error)
	GetByOrder(ctx context.Context, orderID string) (*Delivery, error)
	// UpdateStatus writes d's status, courier and timestamps if the stored
	// status still equals from. It reports false otherwise.
	UpdateStatus(ctx context.Context, d *Delivery, from Status) (bool, error)
	// RecordLocation overwrites the stored snapshot and returns the one it
	// replaced (nil for the first). Unknown ids give ErrDeliveryNotFound.
	RecordLocation(ctx context.Context, id string, loc Location) (*Location, error)
	// ListByCourier returns the deliveries ever assigned to courierID,
	// newest first.
	ListByCourier(ctx context.Context, courierID string) ([]Delivery, error)
}

// CourierRepository persists couriers.
type CourierRepository interface {
	// Get returns ErrCourierNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Courier, error)
	// Claim marks an available courier busy. It reports false if the
	// courier was not available.
	Claim(ctx context.Context, id string) (bool, error)
	// Free marks the courier available again.
	Free(ctx context.Context, id string) error
	RecordLocation(ctx context.Context, id string, loc Location) error
}

// Tx exposes the repositories bound to one storage transaction.
type Tx interface {
	Deliveries() Repository
	Couriers() CourierRepository
}

// Transactor runs fn inside a storage transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// LocationSink receives location snapshots after they are committed.
type LocationSink interface {
	PublishLocation(ctx context.Context, d *Delivery, loc Location) error
}

// LocationReader is implemented by sinks that can serve the snapshots they
// received. ok is false when there is none for deliveryID.
type LocationReader interface {
	LastLocation(ctx context.Context, deliveryID string) (loc Location, ok bool, err error)
}
