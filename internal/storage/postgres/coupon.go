package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/errs"
)

const (
	findCouponSQL = `SELECT code, description, discount_type, discount_amount, minimum_order_amount,
		max_discount, valid_from, valid_until, usage_limit, usage_count, is_active
		FROM coupons WHERE code = $1`

	// The limit check and the increment are one statement; concurrent
	// reservations serialize on the row lock and re-check the predicate.
	tryIncrementCouponSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE code = $1 AND is_active AND (usage_limit IS NULL OR usage_count < usage_limit)`

	decrementCouponSQL = `UPDATE coupons SET usage_count = usage_count - 1
		WHERE code = $1 AND usage_count > 0`

	upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_amount,
		minimum_order_amount, max_discount, valid_from, valid_until, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_amount = EXCLUDED.discount_amount,
			minimum_order_amount = EXCLUDED.minimum_order_amount,
			max_discount = EXCLUDED.max_discount,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			usage_limit = CASE WHEN EXCLUDED.usage_limit IS NULL THEN NULL
				ELSE GREATEST(EXCLUDED.usage_limit, coupons.usage_count) END,
			is_active = EXCLUDED.is_active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	q querier
}

// NewCouponRepository returns a CouponRepository outside any transaction.
func NewCouponRepository(s *Store) *CouponRepository {
	return &CouponRepository{q: s.pool}
}

// FindByCode looks up a coupon by its exact code, active or not.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.q.Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, errs.Storage("find coupon", err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, errs.Storage("find coupon", err)
	}
	return &rule, nil
}

func (r *CouponRepository) TryIncrementUsage(ctx context.Context, code string) (bool, error) {
	tag, err := r.q.Exec(ctx, tryIncrementCouponSQL, code)
	if err != nil {
		return false, errs.Storage("increment coupon usage", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CouponRepository) DecrementUsage(ctx context.Context, code string) (bool, error) {
	tag, err := r.q.Exec(ctx, decrementCouponSQL, code)
	if err != nil {
		return false, errs.Storage("decrement coupon usage", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts rule or updates its definition. The usage counter is kept,
// and a lowered limit never drops below it.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	if _, err := r.q.Exec(ctx, upsertCouponSQL, couponArgs(rule)...); err != nil {
		return errs.Storage("upsert coupon "+rule.Code, err)
	}
	return nil
}

// UpsertMany upserts rules in a single batch.
func (r *CouponRepository) UpsertMany(ctx context.Context, rules []coupon.Rule) error {
	b := &pgx.Batch{}
	for i := range rules {
		queueCouponUpsert(b, &rules[i])
	}
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return errs.Storage("upsert coupons", err)
	}
	return nil
}

func queueCouponUpsert(b *pgx.Batch, rule *coupon.Rule) {
	b.Queue(upsertCouponSQL, couponArgs(rule)...)
}

func couponArgs(rule *coupon.Rule) []any {
	return []any{
		rule.Code, rule.Description, string(rule.Type), rule.Value,
		rule.MinimumOrderAmount, rule.MaxDiscount, rule.ValidFrom, rule.ValidUntil,
		rule.UsageLimit, rule.Active,
	}
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
	)
	err := row.Scan(
		&rule.Code, &rule.Description, &discountType, &rule.Value, &rule.MinimumOrderAmount,
		&rule.MaxDiscount, &rule.ValidFrom, &rule.ValidUntil, &rule.UsageLimit, &rule.UsageCount,
		&rule.Active,
	)
	rule.Type = coupon.DiscountType(discountType)
	return rule, err
}
