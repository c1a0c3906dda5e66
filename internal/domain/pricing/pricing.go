// Package pricing computes order totals from priced lines, the delivery fee,
// a tax rate and an optional coupon.
package pricing

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/errs"
)

// ErrInvalidPricing is returned when the computed final amount would be
// negative. Valid inputs never produce it.
var ErrInvalidPricing = errors.New("invalid pricing: final amount is negative")

// Reserver takes one use of a coupon and returns the discount it grants.
// *coupon.Ledger implements it.
type Reserver interface {
	Reserve(ctx context.Context, code string, orderTotal decimal.Decimal, now time.Time) (decimal.Decimal, error)
}

// Line is a single priced order line. UnitPrice already includes any
// customization additions.
type Line struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns Quantity × UnitPrice.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Request is the input to Engine.ComputeTotal.
type Request struct {
	Lines       []Line
	DeliveryFee decimal.Decimal
	TaxRate     decimal.Decimal
	CouponCode  string
	Now         time.Time
}

// PricedOrder is the full breakdown of an order's amounts.
type PricedOrder struct {
	TotalAmount    decimal.Decimal
	DeliveryFee    decimal.Decimal
	Taxes          decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Engine prices orders. Coupon reservations go through the Reserver, so the
// caller decides which transaction they belong to.
type Engine struct {
	coupons Reserver
}

// NewEngine returns an Engine reserving coupons through coupons.
func NewEngine(coupons Reserver) *Engine {
	return &Engine{coupons: coupons}
}

// ComputeTotal prices req. Coupon errors are returned unchanged so callers
// can match them with errors.Is.
func (e *Engine) ComputeTotal(ctx context.Context, req Request) (*PricedOrder, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, l := range req.Lines {
		total = total.Add(l.Total())
	}
	taxes := total.Mul(req.TaxRate).Round(2)

	discount := decimal.Zero
	if req.CouponCode != "" {
		d, err := e.coupons.Reserve(ctx, req.CouponCode, total, req.Now)
		if err != nil {
			return nil, err
		}
		discount = d
	}

	final := total.Add(req.DeliveryFee).Add(taxes).Sub(discount)
	if final.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidPricing, "total %s fee %s taxes %s discount %s",
			total, req.DeliveryFee, taxes, discount)
	}

	return &PricedOrder{
		TotalAmount:    total,
		DeliveryFee:    req.DeliveryFee,
		Taxes:          taxes,
		DiscountAmount: discount,
		FinalAmount:    final,
	}, nil
}

func (r Request) validate() error {
	if len(r.Lines) == 0 {
		return errs.Validation("items", "at least one item is required")
	}
	for i, l := range r.Lines {
		if l.Quantity < 1 {
			return errs.Validation("items["+strconv.Itoa(i)+"].quantity", "must be at least 1")
		}
		if l.UnitPrice.IsNegative() {
			return errs.Validation("items["+strconv.Itoa(i)+"].unit_price", "must not be negative")
		}
	}
	if r.DeliveryFee.IsNegative() {
		return errs.Validation("delivery_fee", "must not be negative")
	}
	if r.TaxRate.IsNegative() {
		return errs.Validation("tax_rate", "must not be negative")
	}
	return nil
}
