package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, restaurant_id, total_amount, delivery_fee, taxes,
		discount_amount, final_amount, coupon_code, payment_method, payment_status, order_status,
		delivery_address, special_instructions, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, menu_item_id, name, quantity,
		unit_price, customizations, item_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectOrderSQL = `SELECT id, user_id, restaurant_id, total_amount, delivery_fee, taxes, discount_amount,
		final_amount, COALESCE(coupon_code, ''), payment_method, payment_status, order_status,
		delivery_address, special_instructions, cancel_reason, version, created_at, updated_at
		FROM orders`

	getOrderSQL = selectOrderSQL + ` WHERE id = $1`

	listOrdersSQL = selectOrderSQL + ` WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR restaurant_id = $2)
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`

	listOrderItemsSQL = `SELECT order_id, menu_item_id, name, quantity, unit_price, customizations, item_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	getOrderItemsSQL = `SELECT menu_item_id, name, quantity, unit_price, customizations, item_total
		FROM order_items WHERE order_id = $1 ORDER BY position`

	updateOrderStatusSQL = `UPDATE orders SET order_status = $2, cancel_reason = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $6`

	insertOrderEventSQL = `INSERT INTO order_status_events (order_id, from_status, to_status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listOrderEventsSQL = `SELECT order_id, from_status, to_status, actor, reason, created_at
		FROM order_status_events WHERE order_id = $1 ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	q querier
}

// Create inserts the order row and its items in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.UserID, o.RestaurantID, o.TotalAmount, o.DeliveryFee, o.Taxes,
		o.DiscountAmount, o.FinalAmount, nullString(o.CouponCode), o.PaymentMethod,
		string(o.PaymentStatus), string(o.Status), o.DeliveryAddress, o.SpecialInstructions,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	for i, it := range o.Items {
		custom := it.Customizations
		if custom == nil {
			custom = []order.Customization{}
		}
		b.Queue(insertOrderItemSQL,
			o.ID, i, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice, custom, it.LineTotal,
		)
	}

	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return errs.Storage("insert order "+o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errs.Storage("get order", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errs.Storage("get order", err)
	}

	rows, err = r.q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errs.Storage("get order items", err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, errs.Storage("get order items", err)
	}
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, expectedVersion int) (bool, error) {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), o.CancelReason, o.Version, o.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return false, errs.Storage("update order status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) AppendEvent(ctx context.Context, e order.Event) error {
	_, err := r.q.Exec(ctx, insertOrderEventSQL,
		e.OrderID, string(e.From), string(e.To), e.Actor, e.Reason, e.At,
	)
	if err != nil {
		return errs.Storage("append order event", err)
	}
	return nil
}

func (r *OrderRepository) Events(ctx context.Context, orderID string) ([]order.Event, error) {
	rows, err := r.q.Query(ctx, listOrderEventsSQL, orderID)
	if err != nil {
		return nil, errs.Storage("list order events", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Event, error) {
		var (
			e        order.Event
			from, to string
		)
		err := row.Scan(&e.OrderID, &from, &to, &e.Actor, &e.Reason, &e.At)
		e.From, e.To = order.Status(from), order.Status(to)
		return e, err
	})
	if err != nil {
		return nil, errs.Storage("list order events", err)
	}
	return events, nil
}

// List loads the page of orders, then all of their items in one query.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}
	rows, err := r.q.Query(ctx, listOrdersSQL, f.UserID, f.RestaurantID, limit, f.Offset)
	if err != nil {
		return nil, errs.Storage("list orders", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errs.Storage("list orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}
	rows, err = r.q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, errs.Storage("list order items", err)
	}
	var (
		orderID string
		it      order.Item
	)
	_, err = pgx.ForEachRow(rows, []any{
		&orderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Customizations, &it.LineTotal,
	}, func() error {
		i := byID[orderID]
		orders[i].Items = append(orders[i].Items, it)
		it = order.Item{}
		return nil
	})
	if err != nil {
		return nil, errs.Storage("list order items", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		payment, state string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.RestaurantID, &o.TotalAmount, &o.DeliveryFee, &o.Taxes, &o.DiscountAmount,
		&o.FinalAmount, &o.CouponCode, &o.PaymentMethod, &payment, &state,
		&o.DeliveryAddress, &o.SpecialInstructions, &o.CancelReason, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	o.PaymentStatus = order.PaymentStatus(payment)
	o.Status = order.Status(state)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Customizations, &it.LineTotal)
	return it, err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
