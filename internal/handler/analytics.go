package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/errs"
)

// RestaurantAnalytics returns order stats and the most ordered items of a
// restaurant the caller owns. The optional limit query parameter bounds the item list.
func (h *Handler) RestaurantAnalytics(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil {
		err = p.Require(auth.RoleRestaurant)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			writeError(w, r, errs.Validation("limit", "must be a positive integer"))
			return
		}
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	if err := h.ownsRestaurant(r.Context(), p, restaurantID); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := analytics.Report(r.Context(), h.analytics, restaurantID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("restaurantId")
		e.Str(restaurantID)
		e.FieldStart("orderCount")
		e.Int(report.OrderCount)
		e.FieldStart("averageOrderValue")
		money(e, report.AverageOrderValue)
		e.FieldStart("totalRevenue")
		money(e, report.TotalRevenue)
		e.FieldStart("popularItems")
		e.ArrStart()
		for _, it := range report.PopularItems {
			e.ObjStart()
			e.FieldStart("menuItemId")
			e.Str(it.MenuItemID)
			e.FieldStart("name")
			e.Str(it.Name)
			e.FieldStart("quantity")
			e.Int(it.Quantity)
			e.FieldStart("orderCount")
			e.Int(it.OrderCount)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// UserAnalytics returns spending stats of a user. Users see their own;
// admins see anyone's.
func (h *Handler) UserAnalytics(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	if p.UserID != userID {
		if err := p.Require(); err != nil {
			writeError(w, r, err)
			return
		}
	}

	stats, err := h.analytics.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("userId")
		e.Str(userID)
		e.FieldStart("totalOrders")
		e.Int(stats.TotalOrders)
		e.FieldStart("totalSpent")
		money(e, stats.TotalSpent)
		e.FieldStart("averageOrderValue")
		money(e, stats.AverageOrderValue)
		e.ObjEnd()
	})
}
