package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/menu"
	"github.com/xenking/platter/internal/domain/order"
)

// canSee lets customers through only for their own orders and restaurant
// accounts only for orders of restaurants they own.
func (h *Handler) canSee(ctx context.Context, p auth.Principal, o *order.Order) error {
	switch p.Role {
	case auth.RoleCustomer:
		if p.UserID != o.UserID {
			return errors.Wrapf(auth.ErrForbidden, "order %s", o.ID)
		}
	case auth.RoleRestaurant:
		return h.ownsRestaurant(ctx, p, o.RestaurantID)
	}
	return nil
}

// ownsRestaurant fails with auth.ErrForbidden when p is a restaurant account
// that does not own restaurantID. Other roles pass.
func (h *Handler) ownsRestaurant(ctx context.Context, p auth.Principal, restaurantID string) error {
	if p.Role != auth.RoleRestaurant {
		return nil
	}
	rest, err := h.orders.Restaurant(ctx, restaurantID)
	if errors.Is(err, menu.ErrRestaurantNotFound) {
		return errors.Wrapf(auth.ErrForbidden, "restaurant %s", restaurantID)
	}
	if err != nil {
		return err
	}
	if rest.OwnerID == "" || rest.OwnerID != p.UserID {
		return errors.Wrapf(auth.ErrForbidden, "restaurant %s", restaurantID)
	}
	return nil
}

// isCourier fails with auth.ErrForbidden when p is a courier account signed
// in as someone other than courierID. Other roles pass.
func (h *Handler) isCourier(ctx context.Context, p auth.Principal, courierID string) error {
	if p.Role != auth.RoleCourier {
		return nil
	}
	c, err := h.deliveries.Courier(ctx, courierID)
	if errors.Is(err, delivery.ErrCourierNotFound) {
		return errors.Wrapf(auth.ErrForbidden, "courier %s", courierID)
	}
	if err != nil {
		return err
	}
	if c.UserID == "" || c.UserID != p.UserID {
		return errors.Wrapf(auth.ErrForbidden, "courier %s", courierID)
	}
	return nil
}

// canActOnDelivery checks the delivery named in the URL: restaurant accounts
// must own the order's restaurant and courier accounts must be the assigned
// courier.
func (h *Handler) canActOnDelivery(r *http.Request, p auth.Principal) error {
	if !p.HasRole(auth.RoleRestaurant, auth.RoleCourier) {
		return nil
	}
	ctx := r.Context()
	d, err := h.deliveries.Get(ctx, chi.URLParam(r, "deliveryID"))
	if err != nil {
		return err
	}
	if p.Role == auth.RoleCourier {
		if d.CourierID == nil {
			return errors.Wrapf(auth.ErrForbidden, "delivery %s has no courier", d.ID)
		}
		return h.isCourier(ctx, p, *d.CourierID)
	}
	o, err := h.orders.Get(ctx, d.OrderID)
	if err != nil {
		return err
	}
	return h.ownsRestaurant(ctx, p, o.RestaurantID)
}
