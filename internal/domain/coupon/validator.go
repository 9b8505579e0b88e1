package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Verifier checks coupon codes without blocking checkout: business rejections
// are reported in the Verification, only lookup failures are errors.
type Verifier interface {
	Verify(ctx context.Context, code string, subtotal decimal.Decimal) (Verification, error)
	Redeem(ctx context.Context, code string) error
}

// RepoVerifier implements Verifier by looking up coupon rules from a
// Repository.
type RepoVerifier struct {
	repo Repository
	now  func() time.Time
}

var _ Verifier = (*RepoVerifier)(nil)

// NewRepoVerifier creates a RepoVerifier backed by the given Repository.
func NewRepoVerifier(repo Repository) *RepoVerifier {
	return &RepoVerifier{repo: repo, now: time.Now}
}

// Verify looks up the coupon rule for code, checks temporal validity, usage
// limits and the minimum subtotal, and converts it into a discount fraction.
func (v *RepoVerifier) Verify(ctx context.Context, code string, subtotal decimal.Decimal) (Verification, error) {
	code = strings.TrimSpace(code)
	out := Verification{Code: code, Rate: decimal.Zero}
	if !ValidCode(code) {
		out.Rejection = ErrInvalidCoupon
		return out, nil
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			out.Rejection = ErrInvalidCoupon
			return out, nil
		}
		return Verification{}, errors.Wrap(err, "lookup coupon")
	}

	if rejection := v.check(rule); rejection != nil {
		out.Rejection = rejection
		return out, nil
	}

	rate, err := Rate(rule, subtotal)
	if err != nil {
		out.Rejection = err
		return out, nil
	}

	out.Rule = rule
	out.Rate = rate
	return out, nil
}

func (v *RepoVerifier) check(rule *Rule) error {
	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return ErrCouponUsageLimitReached
	}
	return nil
}

// Redeem records one use of code.
func (v *RepoVerifier) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, code); err != nil {
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}

// Chain looks codes up in each repository in order, returning the first hit.
type Chain []Repository

var _ Repository = Chain(nil)

// FindByCode returns the first rule found, or ErrInvalidCoupon.
func (c Chain) FindByCode(ctx context.Context, code string) (*Rule, error) {
	for _, repo := range c {
		rule, err := repo.FindByCode(ctx, code)
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, ErrInvalidCoupon) {
			return nil, err
		}
	}
	return nil, ErrInvalidCoupon
}

// IncrementUses increments the counter in the first repository that knows code.
func (c Chain) IncrementUses(ctx context.Context, code string) error {
	for _, repo := range c {
		if _, err := repo.FindByCode(ctx, code); err != nil {
			if errors.Is(err, ErrInvalidCoupon) {
				continue
			}
			return err
		}
		return repo.IncrementUses(ctx, code)
	}
	return ErrInvalidCoupon
}
