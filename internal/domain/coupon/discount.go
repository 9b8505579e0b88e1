package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// maxRate keeps a coupon strictly below a full discount.
	maxRate = decimal.RequireFromString("0.99")
)

// Rate converts the rule into a discount fraction of subtotal. It returns
// ErrMinSubtotalNotMet when the subtotal is below the rule's minimum.
func Rate(rule *Rule, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if rule.MinSubtotal.IsPositive() && subtotal.LessThan(rule.MinSubtotal) {
		return decimal.Zero, ErrMinSubtotalNotMet
	}

	var rate decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		rate = rule.Value.Div(hundred)
	case DiscountFixed:
		if !subtotal.IsPositive() {
			return decimal.Zero, nil
		}
		rate = rule.Value.Div(subtotal)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if rate.IsNegative() {
		return decimal.Zero, nil
	}
	return decimal.Min(rate, maxRate), nil
}
