// Package redis publishes live delivery locations to Redis so that tracking
// clients can read them without touching the order database.
package redis

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/platter/internal/domain/delivery"
)

const (
	// couriersGeoKey indexes the last position of every courier on a delivery.
	couriersGeoKey = "platter:couriers:geo"

	locationTTL = 24 * time.Hour

	// maxGeoLat is the largest latitude a Redis geo index accepts.
	maxGeoLat = 85.05112878
)

// Options configures the client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

var (
	_ delivery.LocationSink   = (*LocationSink)(nil)
	_ delivery.LocationReader = (*LocationSink)(nil)
)

// LocationSink implements delivery.LocationSink. Each delivery gets a hash
// with its last snapshot; the assigned courier is also placed in a geo set.
type LocationSink struct {
	client redis.Cmdable
}

// NewLocationSink returns a sink writing through client.
func NewLocationSink(client redis.Cmdable) *LocationSink {
	return &LocationSink{client: client}
}

func deliveryKey(id string) string { return "platter:delivery:" + id + ":location" }

// PublishLocation writes loc for d. Latitudes beyond ±maxGeoLat update the
// delivery hash only; the courier keeps its previous geo entry.
func (s *LocationSink) PublishLocation(ctx context.Context, d *delivery.Delivery, loc delivery.Location) error {
	key := deliveryKey(d.ID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"order_id", d.OrderID,
			"status", d.Status.String(),
			"lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64),
			"lng", strconv.FormatFloat(loc.Lng, 'f', -1, 64),
			"recorded_at", loc.RecordedAt.UTC().Format(time.RFC3339Nano),
		)
		p.Expire(ctx, key, locationTTL)
		if d.CourierID != nil && geoIndexable(loc.Lat) {
			p.GeoAdd(ctx, couriersGeoKey, &redis.GeoLocation{
				Name:      *d.CourierID,
				Longitude: loc.Lng,
				Latitude:  loc.Lat,
			})
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "publish location of delivery %s", d.ID)
	}
	return nil
}

func geoIndexable(lat float64) bool {
	return math.Abs(lat) <= maxGeoLat
}

// LastLocation reads the snapshot published for deliveryID. ok is false when
// nothing was published or it expired.
func (s *LocationSink) LastLocation(ctx context.Context, deliveryID string) (loc delivery.Location, ok bool, err error) {
	vals, err := s.client.HGetAll(ctx, deliveryKey(deliveryID)).Result()
	if err != nil {
		return delivery.Location{}, false, errors.Wrap(err, "read location")
	}
	if len(vals) == 0 {
		return delivery.Location{}, false, nil
	}

	if loc.Lat, err = strconv.ParseFloat(vals["lat"], 64); err != nil {
		return delivery.Location{}, false, errors.Wrap(err, "parse lat")
	}
	if loc.Lng, err = strconv.ParseFloat(vals["lng"], 64); err != nil {
		return delivery.Location{}, false, errors.Wrap(err, "parse lng")
	}
	if loc.RecordedAt, err = time.Parse(time.RFC3339Nano, vals["recorded_at"]); err != nil {
		return delivery.Location{}, false, errors.Wrap(err, "parse recorded_at")
	}
	return loc, true, nil
}
