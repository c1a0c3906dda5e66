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
	getCourierSQL = `SELECT id, name, phone, vehicle, is_active AND is_available,
		current_lat, current_lng, location_at, average_rating, COALESCE(user_id, '')
		FROM delivery_persons WHERE id = $1`

	claimCourierSQL = `UPDATE delivery_persons SET is_available = FALSE
		WHERE id = $1 AND is_active AND is_available`

	freeCourierSQL = `UPDATE delivery_persons SET is_available = TRUE WHERE id = $1`

	recordCourierLocationSQL = `UPDATE delivery_persons SET current_lat = $2, current_lng = $3, location_at = $4
		WHERE id = $1`
)

var _ delivery.CourierRepository = (*CourierRepository)(nil)

// CourierRepository implements delivery.CourierRepository backed by PostgreSQL.
type CourierRepository struct {
	q querier
}

func (r *CourierRepository) Get(ctx context.Context, id string) (*delivery.Courier, error) {
	rows, err := r.q.Query(ctx, getCourierSQL, id)
	if err != nil {
		return nil, errs.Storage("get courier", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (delivery.Courier, error) {
		var (
			c        delivery.Courier
			lat, lng *float64
			at       *time.Time
		)
		err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Vehicle, &c.Available, &lat, &lng, &at, &c.AverageRating, &c.UserID)
		c.Location = location(lat, lng, at)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrCourierNotFound
		}
		return nil, errs.Storage("get courier", err)
	}
	return &c, nil
}

// Claim flips is_available in a single conditional update so two
// assignments cannot both take the same courier.
func (r *CourierRepository) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := r.q.Exec(ctx, claimCourierSQL, id)
	if err != nil {
		return false, errs.Storage("claim courier", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CourierRepository) Free(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, freeCourierSQL, id)
	if err != nil {
		return errs.Storage("free courier", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrCourierNotFound
	}
	return nil
}

func (r *CourierRepository) RecordLocation(ctx context.Context, id string, loc delivery.Location) error {
	tag, err := r.q.Exec(ctx, recordCourierLocationSQL, id, loc.Lat, loc.Lng, loc.RecordedAt)
	if err != nil {
		return errs.Storage("record courier location", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrCourierNotFound
	}
	return nil
}
