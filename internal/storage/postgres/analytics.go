package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/errs"
)

const (
	scanFinalAmountsSQL = `SELECT final_amount FROM orders
		WHERE ($3 OR order_status <> 'cancelled')
		AND ($1 = '' OR restaurant_id = $1)
		AND ($2 = '' OR user_id = $2)`

	scanItemLinesSQL = `SELECT i.order_id, i.menu_item_id, i.name, i.quantity
		FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE o.restaurant_id = $1 AND ($2 OR o.order_status <> 'cancelled')`
)

var _ analytics.OrderSource = (*AnalyticsSource)(nil)

// AnalyticsSource streams order rows for analytics.ScanAggregator.
type AnalyticsSource struct {
	q querier
}

// NewAnalyticsSource returns a source reading outside any transaction.
func NewAnalyticsSource(s *Store) *AnalyticsSource {
	return &AnalyticsSource{q: s.pool}
}

func (a *AnalyticsSource) ScanFinalAmounts(ctx context.Context, f analytics.Filter, fn func(decimal.Decimal) error) error {
	rows, err := a.q.Query(ctx, scanFinalAmountsSQL, f.RestaurantID, f.UserID, f.IncludeCancelled)
	if err != nil {
		return errs.Storage("scan order amounts", err)
	}

	var (
		amount decimal.Decimal
		fnErr  error
	)
	_, err = pgx.ForEachRow(rows, []any{&amount}, func() error {
		fnErr = fn(amount)
		return fnErr
	})
	return scanErr("scan order amounts", err, fnErr)
}

func (a *AnalyticsSource) ScanItemLines(ctx context.Context, f analytics.Filter, fn func(analytics.ItemLine) error) error {
	rows, err := a.q.Query(ctx, scanItemLinesSQL, f.RestaurantID, f.IncludeCancelled)
	if err != nil {
		return errs.Storage("scan order items", err)
	}

	var (
		l     analytics.ItemLine
		fnErr error
	)
	_, err = pgx.ForEachRow(rows, []any{&l.OrderID, &l.MenuItemID, &l.Name, &l.Quantity}, func() error {
		fnErr = fn(l)
		return fnErr
	})
	return scanErr("scan order items", err, fnErr)
}

// scanErr wraps driver errors and passes the callback's own error through.
func scanErr(op string, err, fnErr error) error {
	if err == nil || fnErr != nil {
		return err
	}
	return errs.Storage(op, err)
}
