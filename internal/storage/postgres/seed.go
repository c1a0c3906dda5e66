package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/catalog"
)

const (
	upsertUserSQL = `INSERT INTO users (id, name, email, phone, role) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			phone = EXCLUDED.phone, role = EXCLUDED.role`

	// Owner rows reuse the user id as their own id.
	upsertOwnerSQL = `INSERT INTO owners (id, user_id) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`

	upsertRestaurantSQL = `INSERT INTO restaurants (id, owner_id, name, cuisine, delivery_fee, minimum_order, is_active)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name,
			cuisine = EXCLUDED.cuisine, delivery_fee = EXCLUDED.delivery_fee,
			minimum_order = EXCLUDED.minimum_order, is_active = EXCLUDED.is_active`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, restaurant_id, name, description, price, is_available)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET restaurant_id = EXCLUDED.restaurant_id, name = EXCLUDED.name,
			description = EXCLUDED.description, price = EXCLUDED.price, is_available = EXCLUDED.is_available`

	upsertGroupSQL = `INSERT INTO customization_groups (id, menu_item_id, name, is_required)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET menu_item_id = EXCLUDED.menu_item_id, name = EXCLUDED.name,
			is_required = EXCLUDED.is_required`

	upsertOptionSQL = `INSERT INTO customization_options (id, group_id, name, price_addition, is_available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET group_id = EXCLUDED.group_id, name = EXCLUDED.name,
			price_addition = EXCLUDED.price_addition, is_available = EXCLUDED.is_available`

	upsertCourierSQL = `INSERT INTO delivery_persons (id, user_id, name, phone, vehicle, average_rating)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, name = EXCLUDED.name,
			phone = EXCLUDED.phone, vehicle = EXCLUDED.vehicle, average_rating = EXCLUDED.average_rating`
)

// Seed upserts every catalog entry in one transaction. Running it twice is
// harmless: coupon usage counts and courier availability are preserved.
func Seed(ctx context.Context, s *Store, c *catalog.Catalog) error {
	b := &pgx.Batch{}
	for _, u := range c.Users {
		b.Queue(upsertUserSQL, u.ID, u.Name, u.Email, u.Phone, u.Role)
	}
	for _, r := range c.Restaurants {
		if r.OwnerID != "" {
			b.Queue(upsertOwnerSQL, r.OwnerID)
		}
		b.Queue(upsertRestaurantSQL, r.ID, r.OwnerID, r.Name, r.Cuisine, r.DeliveryFee, r.MinimumOrder, !r.Inactive)
		for _, it := range r.Items {
			b.Queue(upsertMenuItemSQL, it.ID, r.ID, it.Name, it.Description, it.Price, !it.Unavailable)
			for _, g := range it.Groups {
				b.Queue(upsertGroupSQL, g.ID, it.ID, g.Name, g.Required)
				for _, o := range g.Options {
					b.Queue(upsertOptionSQL, o.ID, g.ID, o.Name, o.PriceAddition, !o.Unavailable)
				}
			}
		}
	}
	for _, cr := range c.Couriers {
		b.Queue(upsertCourierSQL, cr.ID, cr.UserID, cr.Name, cr.Phone, cr.Vehicle, cr.Rating)
	}
	for _, cp := range c.Coupons {
		rule, err := cp.Rule()
		if err != nil {
			return err
		}
		queueCouponUpsert(b, &rule)
	}

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return errors.Wrap(err, "upsert catalog")
		}
		return nil
	})
}
