package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount computes the amount rule takes off orderTotal.
//
// The raw amount is clamped to MaxDiscount (when set) and to orderTotal, then
// rounded half-up to two decimal places. Eligibility is not checked here.
func Discount(rule *Rule, orderTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.Type {
	case DiscountPercentage:
		amount = orderTotal.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		amount = rule.Value
	default:
		return decimal.Zero
	}

	if rule.MaxDiscount != nil {
		amount = decimal.Min(amount, *rule.MaxDiscount)
	}
	amount = decimal.Min(amount, orderTotal)
	return floorAtZero(amount).Round(2)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
