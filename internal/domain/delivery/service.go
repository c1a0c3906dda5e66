package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/errs"
)

// ErrCourierRequired is returned when a delivery is advanced into
// StatusAssigned without naming a courier. Use Service.Assign instead.
var ErrCourierRequired = errs.Validation("status", "assigned requires a courier, use assign")

// CreateForOrder inserts the delivery row for a newly confirmed order. It is
// called by the order lifecycle with a repository from its own transaction.
func CreateForOrder(ctx context.Context, repo Repository, orderID string, now time.Time) (*Delivery, error) {
	d := &Delivery{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Status:    StatusAwaitingAssignment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, d); err != nil {
		return nil, errors.Wrap(err, "create delivery")
	}
	return d, nil
}

// ReleaseCourier frees the courier held by the delivery of orderID. It is
// called by the order lifecycle when the order is cancelled and returns the
// freed courier id, or "" when there was nothing to release.
func ReleaseCourier(ctx context.Context, deliveries Repository, couriers CourierRepository, orderID string) (string, error) {
	d, err := deliveries.GetByOrder(ctx, orderID)
	if errors.Is(err, ErrDeliveryNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if d.CourierID == nil || d.Status == StatusDelivered {
		return "", nil
	}
	if err := couriers.Free(ctx, *d.CourierID); err != nil {
		return "", errors.Wrap(err, "free courier")
	}
	return *d.CourierID, nil
}

// LocationUpdate is the result of Service.RecordLocation.
type LocationUpdate struct {
	Delivery *Delivery
	// Stale is set when the recorded timestamp is older than the snapshot it
	// replaced. The update is applied regardless.
	Stale bool
}

// Service implements courier assignment, status progression and location
// tracking.
type Service struct {
	tx   Transactor
	sink LocationSink
	live LocationReader
	now  func() time.Time
}

// NewService creates a Service. sink may be nil. If sink also implements
// LocationReader, Location reads through it first.
func NewService(tx Transactor, sink LocationSink) *Service {
	s := &Service{tx: tx, sink: sink, now: time.Now}
	if r, ok := sink.(LocationReader); ok {
		s.live = r
	}
	return s
}

// Get returns the delivery with id.
func (s *Service) Get(ctx context.Context, id string) (*Delivery, error) {
	var d *Delivery
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		d, err = tx.Deliveries().Get(ctx, id)
		return err
	})
	return d, err
}

// GetByOrder returns the delivery created for orderID.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*Delivery, error) {
	var d *Delivery
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		d, err = tx.Deliveries().GetByOrder(ctx, orderID)
		return err
	})
	return d, err
}

// Courier returns the courier with id.
func (s *Service) Courier(ctx context.Context, id string) (*Courier, error) {
	var c *Courier
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		c, err = tx.Couriers().Get(ctx, id)
		return err
	})
	return c, err
}

// ListByCourier returns the deliveries assigned to courierID, newest first.
func (s *Service) ListByCourier(ctx context.Context, courierID string) ([]Delivery, error) {
	var out []Delivery
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Couriers().Get(ctx, courierID); err != nil {
			return err
		}
		var err error
		out, err = tx.Deliveries().ListByCourier(ctx, courierID)
		return err
	})
	return out, err
}

// Assign claims courierID for the delivery. The delivery must be awaiting
// assignment and the courier available; on any failure nothing changes.
func (s *Service) Assign(ctx context.Context, deliveryID, courierID string) (*Delivery, error) {
	var d *Delivery
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		d, err = tx.Deliveries().Get(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d.OrderCancelled {
			return ErrOrderCancelled
		}
		if !d.Status.CanTransition(StatusAssigned) {
			return illegal(d.Status, StatusAssigned)
		}

		if _, err := tx.Couriers().Get(ctx, courierID); err != nil {
			return err
		}
		claimed, err := tx.Couriers().Claim(ctx, courierID)
		if err != nil {
			return errors.Wrap(err, "claim courier")
		}
		if !claimed {
			return ErrCourierUnavailable
		}

		d.CourierID = &courierID
		return s.move(ctx, tx, d, StatusAssigned)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Courier assigned",
		zap.String("delivery_id", deliveryID),
		zap.String("courier_id", courierID),
	)
	return d, nil
}

// AdvanceStatus moves the delivery to target along the status graph.
// Reaching StatusDelivered frees the courier.
func (s *Service) AdvanceStatus(ctx context.Context, deliveryID string, target Status) (*Delivery, error) {
	var d *Delivery
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		d, err = tx.Deliveries().Get(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d.OrderCancelled {
			return ErrOrderCancelled
		}
		if !d.Status.CanTransition(target) {
			return illegal(d.Status, target)
		}
		if target == StatusAssigned {
			return ErrCourierRequired
		}

		now := s.now()
		switch target {
		case StatusPickedUp:
			d.PickupTime = &now
		case StatusDelivered:
			d.DeliveryTime = &now
			if d.CourierID != nil {
				if err := tx.Couriers().Free(ctx, *d.CourierID); err != nil {
					return errors.Wrap(err, "free courier")
				}
			}
		}
		return s.move(ctx, tx, d, target)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Delivery status changed",
		zap.String("delivery_id", deliveryID),
		zap.Stringer("status", target),
	)
	return d, nil
}

// RecordLocation overwrites the delivery's location snapshot, and the
// assigned courier's. The last call wins; an older timestamp than the stored
// one is flagged as stale but still written.
func (s *Service) RecordLocation(ctx context.Context, deliveryID string, loc Location) (*LocationUpdate, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	res := &LocationUpdate{}
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.Deliveries().Get(ctx, deliveryID)
		if err != nil {
			return err
		}
		prev, err := tx.Deliveries().RecordLocation(ctx, deliveryID, loc)
		if err != nil {
			return err
		}
		if d.CourierID != nil {
			if err := tx.Couriers().RecordLocation(ctx, *d.CourierID, loc); err != nil {
				return errors.Wrap(err, "record courier location")
			}
		}

		d.Location = &loc
		res.Delivery = d
		res.Stale = prev != nil && loc.RecordedAt.Before(prev.RecordedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	if res.Stale {
		lg.Warn("Out of order location update",
			zap.String("delivery_id", deliveryID),
			zap.Time("recorded_at", loc.RecordedAt),
		)
	}
	if s.sink != nil {
		if err := s.sink.PublishLocation(ctx, res.Delivery, loc); err != nil {
			lg.Warn("Publish location", zap.String("delivery_id", deliveryID), zap.Error(err))
		}
	}
	return res, nil
}

// Location returns the last recorded location of the delivery, or nil if
// none was recorded. The live snapshot is served when the sink has one; it
// may lag the stored snapshot if a publish failed. Otherwise, and when the
// sink cannot be read, the stored snapshot is returned.
func (s *Service) Location(ctx context.Context, deliveryID string) (*Location, error) {
	if s.live != nil {
		loc, ok, err := s.live.LastLocation(ctx, deliveryID)
		switch {
		case err != nil:
			zctx.From(ctx).Warn("Read live location", zap.String("delivery_id", deliveryID), zap.Error(err))
		case ok:
			return &loc, nil
		}
	}

	d, err := s.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	return d.Location, nil
}

func (s *Service) move(ctx context.Context, tx Tx, d *Delivery, to Status) error {
	from := d.Status
	d.Status = to
	d.UpdatedAt = s.now()

	ok, err := tx.Deliveries().UpdateStatus(ctx, d, from)
	if err != nil {
		return errors.Wrap(err, "update delivery status")
	}
	if !ok {
		return errors.Wrapf(errs.ErrConflict, "delivery %s left %s", d.ID, from)
	}
	return nil
}

func illegal(from, to Status) error {
	return &errs.IllegalTransitionError{Entity: "delivery", From: string(from), To: string(to)}
}
