// Package handler exposes the order, delivery and analytics services over
// HTTP with a chi router and a jx JSON codec.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/order"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the /api routes.
type Handler struct {
	orders     *order.Service
	deliveries *delivery.Service
	analytics  analytics.Aggregator
}

// NewHandler constructs a Handler over the domain services.
func NewHandler(orders *order.Service, deliveries *delivery.Service, agg analytics.Aggregator) *Handler {
	return &Handler{
		orders:     orders,
		deliveries: deliveries,
		analytics:  agg,
	}
}

// Mount registers every API route on r. Authentication is expected to run
// before these handlers.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Get("/events", h.OrderEvents)
			r.Get("/delivery", h.OrderDelivery)
			r.Post("/status", h.TransitionOrder)
			r.Post("/cancel", h.CancelOrder)
		})
	})
	r.Route("/deliveries/{deliveryID}", func(r chi.Router) {
		r.Get("/", h.GetDelivery)
		r.Post("/assign", h.AssignCourier)
		r.Post("/status", h.AdvanceDelivery)
		r.Get("/location", h.DeliveryLocation)
		r.Post("/location", h.RecordLocation)
	})
	r.Get("/couriers/{courierID}/deliveries", h.CourierDeliveries)
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/restaurants/{restaurantID}", h.RestaurantAnalytics)
		r.Get("/users/{userID}", h.UserAnalytics)
	})
}
