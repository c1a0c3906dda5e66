package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger validates coupons and reserves or releases single uses.
//
// A Ledger is bound to one Repository. When the repository belongs to a
// transaction, a failed transaction rolls the reservation back with it.
type Ledger struct {
	repo Repository
}

// NewLedger returns a Ledger over repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Reserve checks code against orderTotal at now and consumes one use.
// It returns the discount to apply.
func (l *Ledger) Reserve(ctx context.Context, code string, orderTotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	rule, err := l.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return decimal.Zero, ErrCouponNotFound
		}
		return decimal.Zero, errors.Wrap(err, "lookup coupon")
	}

	switch {
	case !rule.Active:
		return decimal.Zero, ErrCouponNotFound
	case !rule.ActiveAt(now):
		return decimal.Zero, ErrCouponExpired
	case orderTotal.LessThan(rule.MinimumOrderAmount):
		return decimal.Zero, ErrCouponMinimumNotMet
	case rule.Exhausted():
		return decimal.Zero, ErrCouponExhausted
	}

	discount := Discount(rule, orderTotal)

	// The counter read above may be stale; the conditional update decides.
	ok, err := l.repo.TryIncrementUsage(ctx, code)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "reserve coupon use")
	}
	if !ok {
		return decimal.Zero, ErrCouponExhausted
	}

	zctx.From(ctx).Debug("Coupon reserved",
		zap.String("code", code),
		zap.Stringer("discount", discount),
	)
	return discount, nil
}

// Release returns one use of code to the pool.
//
// Finding nothing to release means the counter and the orders disagree. That
// is logged for reconciliation and not reported to the caller.
func (l *Ledger) Release(ctx context.Context, code string) error {
	ok, err := l.repo.DecrementUsage(ctx, code)
	if err != nil {
		zctx.From(ctx).Error("Coupon release failed",
			zap.String("code", code),
			zap.Error(err),
		)
		return errors.Wrap(err, "release coupon use")
	}
	if !ok {
		zctx.From(ctx).Error("Coupon release found no consumed use",
			zap.String("code", code),
		)
	}
	return nil
}
