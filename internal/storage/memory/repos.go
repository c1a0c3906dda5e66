package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/menu"
	"github.com/xenking/platter/internal/domain/order"
)

type menuRepo struct{ st *state }

func (r menuRepo) GetRestaurant(_ context.Context, id string) (*menu.Restaurant, error) {
	rest, ok := r.st.restaurants[id]
	if !ok {
		return nil, menu.ErrRestaurantNotFound
	}
	return &rest, nil
}

func (r menuRepo) GetItems(_ context.Context, ids []string) ([]menu.Item, error) {
	var out []menu.Item
	for _, id := range ids {
		if it, ok := r.st.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r menuRepo) GetOptions(_ context.Context, ids []string) ([]menu.Option, error) {
	var out []menu.Option
	for _, id := range ids {
		if o, ok := r.st.options[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

type couponRepo struct{ st *state }

func (r couponRepo) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	rule, ok := r.st.coupons[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	return &rule, nil
}

func (r couponRepo) TryIncrementUsage(_ context.Context, code string) (bool, error) {
	rule, ok := r.st.coupons[code]
	if !ok || !rule.Active || rule.Exhausted() {
		return false, nil
	}
	rule.UsageCount++
	r.st.coupons[code] = rule
	return true, nil
}

func (r couponRepo) DecrementUsage(_ context.Context, code string) (bool, error) {
	rule, ok := r.st.coupons[code]
	if !ok || rule.UsageCount == 0 {
		return false, nil
	}
	rule.UsageCount--
	r.st.coupons[code] = rule
	return true, nil
}

type orderRepo struct{ st *state }

func (r orderRepo) Create(_ context.Context, o *order.Order) error {
	r.st.orders[o.ID] = *o
	r.st.orderSeq = append(r.st.orderSeq, o.ID)
	return nil
}

func (r orderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, o *order.Order, expectedVersion int) (bool, error) {
	cur, ok := r.st.orders[o.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	cur.Status = o.Status
	cur.CancelReason = o.CancelReason
	cur.Version = o.Version
	cur.UpdatedAt = o.UpdatedAt
	r.st.orders[o.ID] = cur
	return true, nil
}

func (r orderRepo) AppendEvent(_ context.Context, e order.Event) error {
	r.st.events[e.OrderID] = append(r.st.events[e.OrderID], e)
	return nil
}

func (r orderRepo) Events(_ context.Context, orderID string) ([]order.Event, error) {
	return slices.Clone(r.st.events[orderID]), nil
}

func (r orderRepo) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	var (
		out     []order.Order
		skipped int
	)
	for _, id := range slices.Backward(r.st.orderSeq) {
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
		o := r.st.orders[id]
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.RestaurantID != "" && o.RestaurantID != f.RestaurantID {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

type deliveryRepo struct{ st *state }

func (r deliveryRepo) withOrder(d delivery.Delivery) *delivery.Delivery {
	if o, ok := r.st.orders[d.OrderID]; ok {
		d.OrderCancelled = o.Status == order.StatusCancelled
	}
	return &d
}

func (r deliveryRepo) Create(_ context.Context, d *delivery.Delivery) error {
	if _, ok := r.st.byOrder[d.OrderID]; ok {
		return errDuplicate("deliveries.order_id", d.OrderID)
	}
	r.st.deliveries[d.ID] = *d
	r.st.byOrder[d.OrderID] = d.ID
	return nil
}

func (r deliveryRepo) Get(_ context.Context, id string) (*delivery.Delivery, error) {
	d, ok := r.st.deliveries[id]
	if !ok {
		return nil, delivery.ErrDeliveryNotFound
	}
	return r.withOrder(d), nil
}

func (r deliveryRepo) GetByOrder(ctx context.Context, orderID string) (*delivery.Delivery, error) {
	id, ok := r.st.byOrder[orderID]
	if !ok {
		return nil, delivery.ErrDeliveryNotFound
	}
	return r.Get(ctx, id)
}

func (r deliveryRepo) ListByCourier(_ context.Context, courierID string) ([]delivery.Delivery, error) {
	var out []delivery.Delivery
	for _, d := range r.st.deliveries {
		if d.CourierID != nil && *d.CourierID == courierID {
			out = append(out, *r.withOrder(d))
		}
	}
	slices.SortFunc(out, func(a, b delivery.Delivery) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return out, nil
}

func (r deliveryRepo) UpdateStatus(_ context.Context, d *delivery.Delivery, from delivery.Status) (bool, error) {
	cur, ok := r.st.deliveries[d.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	cur.Status = d.Status
	cur.CourierID = d.CourierID
	cur.PickupTime = d.PickupTime
	cur.DeliveryTime = d.DeliveryTime
	cur.UpdatedAt = d.UpdatedAt
	r.st.deliveries[d.ID] = cur
	return true, nil
}

func (r deliveryRepo) RecordLocation(_ context.Context, id string, loc delivery.Location) (*delivery.Location, error) {
	cur, ok := r.st.deliveries[id]
	if !ok {
		return nil, delivery.ErrDeliveryNotFound
	}
	prev := cur.Location
	cur.Location = &loc
	r.st.deliveries[id] = cur
	return prev, nil
}

type courierRepo struct{ st *state }

func (r courierRepo) Get(_ context.Context, id string) (*delivery.Courier, error) {
	c, ok := r.st.couriers[id]
	if !ok {
		return nil, delivery.ErrCourierNotFound
	}
	return &c, nil
}

func (r courierRepo) Claim(_ context.Context, id string) (bool, error) {
	c, ok := r.st.couriers[id]
	if !ok || !c.Available {
		return false, nil
	}
	c.Available = false
	r.st.couriers[id] = c
	return true, nil
}

func (r courierRepo) Free(_ context.Context, id string) error {
	c, ok := r.st.couriers[id]
	if !ok {
		return delivery.ErrCourierNotFound
	}
	c.Available = true
	r.st.couriers[id] = c
	return nil
}

func (r courierRepo) RecordLocation(_ context.Context, id string, loc delivery.Location) error {
	c, ok := r.st.couriers[id]
	if !ok {
		return delivery.ErrCourierNotFound
	}
	c.Location = &loc
	r.st.couriers[id] = c
	return nil
}
