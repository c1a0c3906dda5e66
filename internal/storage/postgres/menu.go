package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/menu"
)

const (
	getRestaurantSQL = `SELECT r.id, r.name, r.delivery_fee, r.minimum_order, r.is_active,
		COALESCE(o.user_id, '')
		FROM restaurants r LEFT JOIN owners o ON o.id = r.owner_id
		WHERE r.id = $1`

	getMenuItemsSQL = `SELECT i.id, i.restaurant_id, i.name, i.price, i.is_available,
		COALESCE(array_agg(g.id ORDER BY g.id) FILTER (WHERE g.id IS NOT NULL), '{}')
		FROM menu_items i LEFT JOIN customization_groups g ON g.menu_item_id = i.id
		WHERE i.id = ANY($1)
		GROUP BY i.id`

	getOptionsSQL = `SELECT id, group_id, name, price_addition, is_available
		FROM customization_options WHERE id = ANY($1)`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	q querier
}

func (r *MenuRepository) GetRestaurant(ctx context.Context, id string) (*menu.Restaurant, error) {
	rows, err := r.q.Query(ctx, getRestaurantSQL, id)
	if err != nil {
		return nil, errs.Storage("get restaurant", err)
	}
	rest, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[menu.Restaurant])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrRestaurantNotFound
		}
		return nil, errs.Storage("get restaurant", err)
	}
	return &rest, nil
}

func (r *MenuRepository) GetItems(ctx context.Context, ids []string) ([]menu.Item, error) {
	rows, err := r.q.Query(ctx, getMenuItemsSQL, ids)
	if err != nil {
		return nil, errs.Storage("get menu items", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[menu.Item])
	if err != nil {
		return nil, errs.Storage("get menu items", err)
	}
	return items, nil
}

func (r *MenuRepository) GetOptions(ctx context.Context, ids []string) ([]menu.Option, error) {
	rows, err := r.q.Query(ctx, getOptionsSQL, ids)
	if err != nil {
		return nil, errs.Storage("get customization options", err)
	}
	opts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[menu.Option])
	if err != nil {
		return nil, errs.Storage("get customization options", err)
	}
	return opts, nil
}
