package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
)

// GetDelivery returns one delivery. Customers and restaurant accounts only
// see deliveries of orders they can see.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.deliveries.Get(r.Context(), chi.URLParam(r, "deliveryID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p.HasRole(auth.RoleCustomer, auth.RoleRestaurant) {
		o, err := h.orders.Get(r.Context(), d.OrderID)
		if err == nil {
			err = h.canSee(r.Context(), p, o)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDelivery(e, d) })
}

// AssignCourier hands an awaiting delivery to an available courier.
func (h *Handler) AssignCourier(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleRestaurant)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var courierID string
	if err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		if key != "courierId" {
			return d.Skip()
		}
		var err error
		courierID, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if courierID == "" {
		writeError(w, r, errs.Validation("courierId", "is required"))
		return
	}
	if err := h.canActOnDelivery(r, p); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.deliveries.Assign(r.Context(), chi.URLParam(r, "deliveryID"), courierID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDelivery(e, d) })
}

// AdvanceDelivery moves a delivery to picked_up or delivered.
func (h *Handler) AdvanceDelivery(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleCourier, auth.RoleRestaurant)
	}
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
	target, err := delivery.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.canActOnDelivery(r, p); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.deliveries.AdvanceStatus(r.Context(), chi.URLParam(r, "deliveryID"), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDelivery(e, d) })
}

// RecordLocation stores a courier position for a delivery. Out-of-order
// positions are stored too and flagged as stale.
func (h *Handler) RecordLocation(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleCourier)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		loc            delivery.Location
		hasLat, hasLng bool
	)
	if err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "lat":
			loc.Lat, err = d.Float64()
			hasLat = true
		case "lng":
			loc.Lng, err = d.Float64()
			hasLng = true
		case "timestamp":
			loc.RecordedAt, err = timestamp(d, "timestamp")
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case !hasLat:
		writeError(w, r, errs.Validation("lat", "is required"))
		return
	case !hasLng:
		writeError(w, r, errs.Validation("lng", "is required"))
		return
	}
	if err := loc.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.canActOnDelivery(r, p); err != nil {
		writeError(w, r, err)
		return
	}

	upd, err := h.deliveries.RecordLocation(r.Context(), chi.URLParam(r, "deliveryID"), loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("delivery")
		encodeDelivery(e, upd.Delivery)
		e.FieldStart("stale")
		e.Bool(upd.Stale)
		e.ObjEnd()
	})
}

// DeliveryLocation returns the last known position of a delivery. Customers
// and restaurant accounts only see deliveries of orders they can see.
func (h *Handler) DeliveryLocation(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	deliveryID := chi.URLParam(r, "deliveryID")
	if p.HasRole(auth.RoleCustomer, auth.RoleRestaurant) {
		d, err := h.deliveries.Get(r.Context(), deliveryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		o, err := h.orders.Get(r.Context(), d.OrderID)
		if err == nil {
			err = h.canSee(r.Context(), p, o)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	loc, err := h.deliveries.Location(r.Context(), deliveryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("deliveryId")
		e.Str(deliveryID)
		e.FieldStart("location")
		encodeLocation(e, loc)
		e.ObjEnd()
	})
}

// CourierDeliveries lists the deliveries assigned to a courier, newest
// first. Couriers only list their own.
func (h *Handler) CourierDeliveries(w http.ResponseWriter, r *http.Request) {
	courierID := chi.URLParam(r, "courierID")
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleCourier)
	}
	if err == nil {
		err = h.isCourier(r.Context(), p, courierID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	ds, err := h.deliveries.ListByCourier(r.Context(), courierID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range ds {
			encodeDelivery(e, &ds[i])
		}
		e.ArrEnd()
	})
}

func encodeDelivery(e *jx.Encoder, d *delivery.Delivery) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(d.ID)
	e.FieldStart("orderId")
	e.Str(d.OrderID)
	e.FieldStart("courierId")
	optStr(e, d.CourierID)
	e.FieldStart("status")
	e.Str(d.Status.String())
	e.FieldStart("pickupTime")
	optTime(e, d.PickupTime)
	e.FieldStart("deliveryTime")
	optTime(e, d.DeliveryTime)
	e.FieldStart("location")
	encodeLocation(e, d.Location)
	e.FieldStart("orderCancelled")
	e.Bool(d.OrderCancelled)
	e.FieldStart("createdAt")
	encodeTime(e, d.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, d.UpdatedAt)
	e.ObjEnd()
}

func encodeLocation(e *jx.Encoder, loc *delivery.Location) {
	if loc == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("lat")
	e.Float64(loc.Lat)
	e.FieldStart("lng")
	e.Float64(loc.Lng)
	e.FieldStart("timestamp")
	encodeTime(e, loc.RecordedAt)
	e.ObjEnd()
}
