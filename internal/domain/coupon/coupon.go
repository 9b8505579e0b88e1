package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage grants Value percent (0-100) off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed grants a fixed monetary amount, expressed as a fraction
	// of the subtotal it is applied to.
	DiscountFixed DiscountType = "fixed"
)

// Code length bounds accepted by ValidCode.
const (
	MinCodeLen = 4
	MaxCodeLen = 32
)

var (
	// ErrInvalidCoupon is returned when a coupon code is not found.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinSubtotalNotMet is returned when the subtotal is below the coupon minimum.
	ErrMinSubtotalNotMet = errors.New("order does not reach the coupon minimum")
)

// ValidCode reports whether code is MinCodeLen..MaxCodeLen characters of
// A-Z, 0-9, '-' and '_'. Lower case letters are accepted.
func ValidCode(code string) bool {
	if len(code) < MinCodeLen || len(code) > MaxCodeLen {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Rule defines a coupon's discount and eligibility constraints.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinSubtotal  decimal.Decimal
	Description  string
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	MaxUses      int
	Uses         int
}

// Verification is the outcome of checking a code against a subtotal. A
// rejected coupon carries a zero Rate and the reason in Rejection.
type Verification struct {
	Code      string
	Rule      *Rule
	Rate      decimal.Decimal
	Rejection error
}

// Accepted reports whether the coupon contributes a discount.
func (v Verification) Accepted() bool {
	return v.Rejection == nil && v.Rule != nil
}

// Message returns the user-facing outcome.
func (v Verification) Message() string {
	if v.Rejection != nil {
		return v.Rejection.Error()
	}
	if v.Rule != nil {
		return v.Rule.Description
	}
	return ""
}

// Repository provides lookup and mutation of coupon rules. FindByCode returns
// ErrInvalidCoupon for unknown codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
}
