// Package coupon implements the coupon ledger: eligibility checks against a
// coupon's window, minimum order amount and usage limit, plus the atomic
// reservation and release of a single use.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/errs"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the order total.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrCouponNotFound is returned for unknown or deactivated codes.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExpired is returned when now is outside the validity window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponMinimumNotMet is returned when the order total is below the
	// coupon's minimum order amount.
	ErrCouponMinimumNotMet = errors.New("coupon minimum order amount not met")
	// ErrCouponExhausted is returned when every allowed use has been taken.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
)

// Rule is a persisted coupon definition together with its usage counter.
type Rule struct {
	Code               string
	Description        string
	Type               DiscountType
	Value              decimal.Decimal
	MinimumOrderAmount decimal.Decimal
	// MaxDiscount caps the discount. Nil means no cap.
	MaxDiscount *decimal.Decimal
	// ValidFrom and ValidUntil bound the window; nil leaves that side open.
	ValidFrom  *time.Time
	ValidUntil *time.Time
	// UsageLimit is nil for unlimited coupons.
	UsageLimit *int
	UsageCount int
	Active     bool
}

// ActiveAt reports whether now falls inside the rule's validity window.
func (r *Rule) ActiveAt(now time.Time) bool {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	return true
}

// Exhausted reports whether the stored counter already reached the limit.
func (r *Rule) Exhausted() bool {
	return r.UsageLimit != nil && r.UsageCount >= *r.UsageLimit
}

// Validate checks that the definition itself is well formed. It is used by
// the import and seed tools before a rule is written.
func (r *Rule) Validate() error {
	switch {
	case r.Code == "":
		return errs.Validation("code", "must not be empty")
	case !r.Type.Valid():
		return errs.Validation("discount_type", "must be percentage or fixed")
	case !r.Value.IsPositive():
		return errs.Validation("discount_amount", "must be positive")
	case r.Type == DiscountPercentage && r.Value.GreaterThan(decimal.NewFromInt(100)):
		return errs.Validation("discount_amount", "percentage must not exceed 100")
	case r.MinimumOrderAmount.IsNegative():
		return errs.Validation("minimum_order_amount", "must not be negative")
	case r.MaxDiscount != nil && r.MaxDiscount.IsNegative():
		return errs.Validation("max_discount", "must not be negative")
	case r.UsageLimit != nil && *r.UsageLimit < 0:
		return errs.Validation("usage_limit", "must not be negative")
	case r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom):
		return errs.Validation("valid_until", "must not precede valid_from")
	}
	return nil
}

// Repository persists coupon rules and their usage counters.
type Repository interface {
	// FindByCode returns the rule for code, or ErrCouponNotFound.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// TryIncrementUsage consumes one use when the coupon is active and below
	// its limit, as a single conditional update. It reports false when no
	// row qualified.
	TryIncrementUsage(ctx context.Context, code string) (bool, error)
	// DecrementUsage gives one use back. It reports false when the counter
	// was already zero or the code is unknown.
	DecrementUsage(ctx context.Context, code string) (bool, error)
}
