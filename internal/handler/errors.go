package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/menu"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/domain/pricing"
)

// errorStatus maps a domain error to an HTTP status. Anything unknown is a
// server fault.
func errorStatus(err error) int {
	var (
		itemErr   *menu.ItemNotFoundError
		optionErr *menu.OptionNotFoundError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponMinimumNotMet),
		errors.Is(err, coupon.ErrCouponExhausted),
		errors.Is(err, menu.ErrRestaurantNotFound),
		errors.As(err, &itemErr),
		errors.As(err, &optionErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, delivery.ErrDeliveryNotFound),
		errors.Is(err, delivery.ErrCourierNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrIllegalTransition),
		errors.Is(err, errs.ErrConflict),
		errors.Is(err, delivery.ErrCourierUnavailable),
		errors.Is(err, delivery.ErrOrderCancelled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"code", "message"}. Server faults are logged with the
// request context and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	switch {
	case status == http.StatusUnauthorized:
		msg = "unauthorized"
	case status == http.StatusInternalServerError:
		lg := zctx.From(r.Context()).With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if errors.Is(err, pricing.ErrInvalidPricing) {
			lg.Error("Pricing defect")
		} else {
			lg.Error("Request failed")
		}
		msg = "internal error"
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
