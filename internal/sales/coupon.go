package sales

import (
	"context"
	"strings"

	"github.com/xenking/offer-checkout/internal/domain/coupon"
)

// CouponRepository exposes sales API coupons as coupon rules.
type CouponRepository struct {
	api API
}

var _ coupon.Repository = (*CouponRepository)(nil)

// NewCouponRepository wraps api.
func NewCouponRepository(api API) *CouponRepository {
	return &CouponRepository{api: api}
}

// FindByCode returns coupon.ErrInvalidCoupon for codes the API does not know.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	if !coupon.ValidCode(code) {
		return nil, coupon.ErrInvalidCoupon
	}
	c, err := r.api.VerifyCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, coupon.ErrInvalidCoupon
	}
	return &coupon.Rule{
		Code:         c.Code,
		DiscountType: couponType(c.Type),
		Value:        c.Discount,
		Description:  c.Code,
	}, nil
}

// IncrementUses is a no-op: the sales API counts a use when the coupon is
// applied to an offer.
func (r *CouponRepository) IncrementUses(context.Context, string) error {
	return nil
}

func couponType(t string) coupon.DiscountType {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "fixed", "amount", "fixed_amount":
		return coupon.DiscountFixed
	case "", "percentage", "percent":
		return coupon.DiscountPercentage
	default:
		return coupon.DiscountType(t)
	}
}
