package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Source tags where a discount contribution comes from.
type Source string

const (
	SourceMethod      Source = "method"
	SourceFrequency   Source = "frequency"
	SourceDuration    Source = "duration"
	SourceCoupon      Source = "coupon"
	SourceInstallment Source = "installment"
)

// Composition selects how independent discounts are combined.
type Composition string

const (
	// CompositionMultiplicative applies each discount to the remainder left
	// by the previous ones: 1 - Π(1 - dᵢ). Never reaches 100%.
	CompositionMultiplicative Composition = "multiplicative"
	// CompositionAdditive sums the discounts and clamps the sum to the
	// configured maximum.
	CompositionAdditive Composition = "additive"
)

var (
	ErrInvalidRate        = errors.New("discount rate must be in [0, 1)")
	ErrUnknownComposition = errors.New("unknown discount composition")
)

var one = decimal.NewFromInt(1)

// ParseComposition converts a wire value into a Composition. Empty input
// selects the multiplicative rule.
func ParseComposition(s string) (Composition, error) {
	switch c := Composition(s); c {
	case "":
		return CompositionMultiplicative, nil
	case CompositionMultiplicative, CompositionAdditive:
		return c, nil
	default:
		return "", errors.Wrapf(ErrUnknownComposition, "%q", s)
	}
}

// Contribution is one named discount fraction.
type Contribution struct {
	Source Source
	Label  string
	Rate   decimal.Decimal
}

// Result is the outcome of composing discounts over a subtotal.
type Result struct {
	Subtotal          decimal.Decimal
	Composition       Composition
	Contributions     []Contribution
	EffectiveDiscount decimal.Decimal
	// Capped is set when the additive sum exceeded MaxDiscount.
	Capped           bool
	DiscountAmount   decimal.Decimal
	DiscountedAmount decimal.Decimal
	Fee              decimal.Decimal
	FeeAmount        decimal.Decimal
	Final            decimal.Decimal
}

// Combine merges two fractions with the multiplicative-complement rule.
func Combine(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Sub(a.Mul(b))
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThan(one)
}

// Compose combines contributions under mode and applies the processing fee
// after discounting. Zero-rate contributions are kept in the result so the
// breakdown shows every source that was considered.
func (e *Engine) Compose(subtotal decimal.Decimal, contributions []Contribution, mode Composition, fee decimal.Decimal) (Result, error) {
	if subtotal.IsNegative() {
		return Result{}, ErrNegativeAmount
	}
	if fee.IsNegative() {
		return Result{}, errors.Wrap(ErrNegativeAmount, "processing fee")
	}
	for _, c := range contributions {
		if !validRate(c.Rate) {
			return Result{}, errors.Wrapf(ErrInvalidRate, "%s %s", c.Source, c.Rate)
		}
	}

	var (
		effective = decimal.Zero
		capped    bool
	)
	switch mode {
	case CompositionMultiplicative:
		for _, c := range contributions {
			effective = Combine(effective, c.Rate)
		}
	case CompositionAdditive:
		for _, c := range contributions {
			effective = effective.Add(c.Rate)
		}
		if effective.GreaterThan(e.cfg.MaxDiscount) {
			effective = e.cfg.MaxDiscount
			capped = true
		}
	default:
		return Result{}, errors.Wrapf(ErrUnknownComposition, "%q", mode)
	}

	discounted := subtotal.Mul(one.Sub(effective)).Round(2)
	final := discounted.Mul(one.Add(fee)).Round(2)

	return Result{
		Subtotal:          subtotal,
		Composition:       mode,
		Contributions:     contributions,
		EffectiveDiscount: effective,
		Capped:            capped,
		DiscountAmount:    subtotal.Sub(discounted),
		DiscountedAmount:  discounted,
		Fee:               fee,
		FeeAmount:         final.Sub(discounted),
		Final:             final,
	}, nil
}
