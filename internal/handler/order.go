package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/order"
)

// CreateOrder prices and stores an order for the calling customer.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleCustomer)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req order.CreateRequest
	if err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "restaurantId":
			req.RestaurantID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				req.Items = append(req.Items, line)
				return err
			})
		case "deliveryAddress":
			req.DeliveryAddress, err = d.Str()
		case "couponCode":
			req.CouponCode, err = optString(d)
		case "paymentMethod":
			req.PaymentMethod, err = optString(d)
		case "specialInstructions":
			req.SpecialInstructions, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = p.UserID

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var l order.LineRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "menuItemId":
			l.MenuItemID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "customizations":
			if d.Next() == jx.Null {
				return d.Null()
			}
			l.Customizations, err = stringArray(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

// ListOrders returns a page of orders, newest first, filtered by the userId
// and restaurantId query parameters. Customers list their own orders and
// restaurant accounts those of a restaurant they own. Admins list anything.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	f := order.ListFilter{UserID: q.Get("userId"), RestaurantID: q.Get("restaurantId")}
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Offset, err = intQuery(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}

	switch p.Role {
	case auth.RoleAdmin:
	case auth.RoleCustomer:
		if f.UserID == "" {
			f.UserID = p.UserID
		}
		if f.UserID != p.UserID {
			err = auth.ErrForbidden
		}
	case auth.RoleRestaurant:
		if f.RestaurantID == "" {
			err = errs.Validation("restaurantId", "is required")
		} else {
			err = h.ownsRestaurant(r.Context(), p, f.RestaurantID)
		}
	default:
		err = p.Require(auth.RoleCustomer, auth.RoleRestaurant)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder returns one order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// OrderEvents returns the status history of an order, oldest first.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	o, err := h.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.orders.History(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, ev := range events {
			e.ObjStart()
			e.FieldStart("from")
			if ev.From == "" {
				e.Null()
			} else {
				e.Str(ev.From.String())
			}
			e.FieldStart("to")
			e.Str(ev.To.String())
			e.FieldStart("actor")
			e.Str(ev.Actor)
			if ev.Reason != "" {
				e.FieldStart("reason")
				e.Str(ev.Reason)
			}
			e.FieldStart("at")
			encodeTime(e, ev.At)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// OrderDelivery returns the delivery created when the order was confirmed.
func (h *Handler) OrderDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := h.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.deliveries.GetByOrder(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDelivery(e, d) })
}

// TransitionOrder moves an order along its lifecycle. Restaurants and
// couriers drive it; customers can only cancel.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleRestaurant, auth.RoleCourier)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var raw string
	if err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err = h.orders.Transition(r.Context(), o.ID, target, p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CancelOrder cancels an order. Customers may cancel their own orders.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.visibleOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, _ := principal(r)
	if err := p.Require(auth.RoleCustomer, auth.RoleRestaurant); err != nil {
		writeError(w, r, err)
		return
	}

	var reason string
	if err := decodeObject(w, r, true, func(d *jx.Decoder, key string) error {
		if key != "reason" {
			return d.Skip()
		}
		var err error
		reason, err = optString(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err = h.orders.Cancel(r.Context(), o.ID, reason, p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// visibleOrder loads the order named in the URL if the caller may see it.
func (h *Handler) visibleOrder(r *http.Request) (*order.Order, error) {
	p, err := principal(r)
	if err != nil {
		return nil, err
	}
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		return nil, err
	}
	if err := h.canSee(r.Context(), p, o); err != nil {
		return nil, err
	}
	return o, nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("restaurantId")
	e.Str(o.RestaurantID)
	e.FieldStart("status")
	e.Str(o.Status.String())

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(it.MenuItemID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		money(e, it.UnitPrice)
		e.FieldStart("customizations")
		e.ArrStart()
		for _, c := range it.Customizations {
			e.ObjStart()
			e.FieldStart("optionId")
			e.Str(c.OptionID)
			e.FieldStart("name")
			e.Str(c.Name)
			e.FieldStart("priceAddition")
			money(e, c.PriceAddition)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("lineTotal")
		money(e, it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("totalAmount")
	money(e, o.TotalAmount)
	e.FieldStart("deliveryFee")
	money(e, o.DeliveryFee)
	e.FieldStart("taxes")
	money(e, o.Taxes)
	e.FieldStart("discountAmount")
	money(e, o.DiscountAmount)
	e.FieldStart("finalAmount")
	money(e, o.FinalAmount)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("deliveryAddress")
	e.Str(o.DeliveryAddress)
	if o.SpecialInstructions != "" {
		e.FieldStart("specialInstructions")
		e.Str(o.SpecialInstructions)
	}
	if o.CancelReason != "" {
		e.FieldStart("cancelReason")
		e.Str(o.CancelReason)
	}
	e.FieldStart("version")
	e.Int(o.Version)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}
