package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
)

const (
	insertDeliverySQL = `INSERT INTO deliveries (id, order_id, delivery_person_id, delivery_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	selectDeliverySQL = `SELECT d.id, d.order_id, d.delivery_person_id, d.delivery_status, d.pickup_time,
		d.delivery_time, d.live_lat, d.live_lng, d.live_at, o.order_status = 'cancelled',
		d.created_at, d.updated_at
		FROM deliveries d JOIN orders o ON o.id = d.order_id`

	getDeliverySQL        = selectDeliverySQL + ` WHERE d.id = $1`
	getDeliveryByOrderSQL = selectDeliverySQL + ` WHERE d.order_id = $1`

	listCourierDeliveriesSQL = selectDeliverySQL + ` WHERE d.delivery_person_id = $1
		ORDER BY d.created_at DESC, d.id DESC`

	updateDeliveryStatusSQL = `UPDATE deliveries SET delivery_status = $2, delivery_person_id = $3,
		pickup_time = $4, delivery_time = $5, updated_at = $6
		WHERE id = $1 AND delivery_status = $7`

	// The subquery locks the row and yields the snapshot being replaced.
	recordDeliveryLocationSQL = `UPDATE deliveries d SET live_lat = $2, live_lng = $3, live_at = $4, updated_at = now()
		FROM (SELECT id, live_lat, live_lng, live_at FROM deliveries WHERE id = $1 FOR UPDATE) prev
		WHERE d.id = prev.id
		RETURNING prev.live_lat, prev.live_lng, prev.live_at`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	q querier
}

func (r *DeliveryRepository) Create(ctx context.Context, d *delivery.Delivery) error {
	_, err := r.q.Exec(ctx, insertDeliverySQL,
		d.ID, d.OrderID, d.CourierID, string(d.Status), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return errs.Storage("insert delivery", err)
	}
	return nil
}

func (r *DeliveryRepository) Get(ctx context.Context, id string) (*delivery.Delivery, error) {
	return r.one(ctx, getDeliverySQL, id)
}

func (r *DeliveryRepository) GetByOrder(ctx context.Context, orderID string) (*delivery.Delivery, error) {
	return r.one(ctx, getDeliveryByOrderSQL, orderID)
}

func (r *DeliveryRepository) one(ctx context.Context, sql, arg string) (*delivery.Delivery, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, errs.Storage("get delivery", err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDelivery)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrDeliveryNotFound
		}
		return nil, errs.Storage("get delivery", err)
	}
	return &d, nil
}

func (r *DeliveryRepository) ListByCourier(ctx context.Context, courierID string) ([]delivery.Delivery, error) {
	rows, err := r.q.Query(ctx, listCourierDeliveriesSQL, courierID)
	if err != nil {
		return nil, errs.Storage("list courier deliveries", err)
	}
	out, err := pgx.CollectRows(rows, scanDelivery)
	if err != nil {
		return nil, errs.Storage("list courier deliveries", err)
	}
	return out, nil
}

func (r *DeliveryRepository) UpdateStatus(ctx context.Context, d *delivery.Delivery, from delivery.Status) (bool, error) {
	tag, err := r.q.Exec(ctx, updateDeliveryStatusSQL,
		d.ID, string(d.Status), d.CourierID, d.PickupTime, d.DeliveryTime, d.UpdatedAt, string(from),
	)
	if err != nil {
		return false, errs.Storage("update delivery status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DeliveryRepository) RecordLocation(ctx context.Context, id string, loc delivery.Location) (*delivery.Location, error) {
	var (
		lat, lng *float64
		at       *time.Time
	)
	err := r.q.QueryRow(ctx, recordDeliveryLocationSQL, id, loc.Lat, loc.Lng, loc.RecordedAt).Scan(&lat, &lng, &at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrDeliveryNotFound
		}
		return nil, errs.Storage("record delivery location", err)
	}
	return location(lat, lng, at), nil
}

func scanDelivery(row pgx.CollectableRow) (delivery.Delivery, error) {
	var (
		d        delivery.Delivery
		state    string
		lat, lng *float64
		at       *time.Time
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.CourierID, &state, &d.PickupTime,
		&d.DeliveryTime, &lat, &lng, &at, &d.OrderCancelled,
		&d.CreatedAt, &d.UpdatedAt,
	)
	d.Status = delivery.Status(state)
	d.Location = location(lat, lng, at)
	return d, err
}

// location assembles a snapshot from nullable columns.
func location(lat, lng *float64, at *time.Time) *delivery.Location {
	if lat == nil || lng == nil || at == nil {
		return nil
	}
	return &delivery.Location{Lat: *lat, Lng: *lng, RecordedAt: *at}
}
