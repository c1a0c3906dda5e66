package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/order"
)

var _ analytics.OrderSource = (*Store)(nil)

// ScanFinalAmounts implements analytics.OrderSource over committed orders.
func (s *Store) ScanFinalAmounts(ctx context.Context, f analytics.Filter, fn func(decimal.Decimal) error) error {
	return s.scanOrders(ctx, f.IncludeCancelled, func(o *order.Order) error {
		if f.RestaurantID != "" && o.RestaurantID != f.RestaurantID {
			return nil
		}
		if f.UserID != "" && o.UserID != f.UserID {
			return nil
		}
		return fn(o.FinalAmount)
	})
}

// ScanItemLines implements analytics.OrderSource over committed orders.
func (s *Store) ScanItemLines(ctx context.Context, f analytics.Filter, fn func(analytics.ItemLine) error) error {
	return s.scanOrders(ctx, f.IncludeCancelled, func(o *order.Order) error {
		if o.RestaurantID != f.RestaurantID {
			return nil
		}
		for _, it := range o.Items {
			if err := fn(analytics.ItemLine{
				OrderID:    o.ID,
				MenuItemID: it.MenuItemID,
				Name:       it.Name,
				Quantity:   it.Quantity,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanOrders calls fn for every order in insertion order. Cancelled orders
// are skipped unless cancelled is set.
func (s *Store) scanOrders(ctx context.Context, cancelled bool, fn func(o *order.Order) error) error {
	var snapshot []order.Order
	if err := s.view(func(st *state) error {
		snapshot = make([]order.Order, 0, len(st.orderSeq))
		for _, id := range st.orderSeq {
			snapshot = append(snapshot, st.orders[id])
		}
		return nil
	}); err != nil {
		return err
	}

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !cancelled && snapshot[i].Status == order.StatusCancelled {
			continue
		}
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}
