// Package pricing implements the checkout price computation: the discount
// rule table, installment and interest math, and the composition of
// independently selected discounts into a single payable amount.
//
// Every function in this package is pure and safe for concurrent use.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInstallmentsNotAllowed is returned when a method or payment type cannot
// be split into the requested number of installments.
var ErrInstallmentsNotAllowed = errors.New("installments not allowed for this payment")

// DefaultMaxDiscount caps additive discount stacking.
var DefaultMaxDiscount = decimal.RequireFromString("0.95")

// DefaultCardFee is the card network fee applied after discounting.
var DefaultCardFee = decimal.RequireFromString("0.0299")

// Config holds the tunable parts of the engine.
type Config struct {
	// MaxDiscount clamps the additive composition. Must be in (0, 1).
	MaxDiscount decimal.Decimal
	// Composition is used when a request does not pick one.
	Composition Composition
	// Fees maps a method to its post-discount processing fee.
	Fees    map[PaymentMethod]decimal.Decimal
	Catalog Catalog
}

// DefaultConfig returns the configuration used by the checkout.
func DefaultConfig() Config {
	return Config{
		MaxDiscount: DefaultMaxDiscount,
		Composition: CompositionMultiplicative,
		Fees: map[PaymentMethod]decimal.Decimal{
			MethodCreditCard: DefaultCardFee,
		},
		Catalog: DefaultCatalog(),
	}
}

// Engine prices checkout selections.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if !cfg.MaxDiscount.IsPositive() || !cfg.MaxDiscount.LessThan(one) {
		return nil, errors.Errorf("max discount %s must be in (0, 1)", cfg.MaxDiscount)
	}
	if cfg.Composition == "" {
		cfg.Composition = CompositionMultiplicative
	}
	if _, err := ParseComposition(string(cfg.Composition)); err != nil {
		return nil, err
	}
	for m, fee := range cfg.Fees {
		if fee.IsNegative() {
			return nil, errors.Errorf("fee for %s must not be negative", m)
		}
	}
	if cfg.Catalog.Rules.Len() == 0 {
		cfg.Catalog = DefaultCatalog()
	}
	return &Engine{cfg: cfg}, nil
}

// Catalog returns the static tables the engine prices against.
func (e *Engine) Catalog() Catalog { return e.cfg.Catalog }

// Fee returns the processing fee of method.
func (e *Engine) Fee(method PaymentMethod) decimal.Decimal {
	if fee, ok := e.cfg.Fees[method]; ok {
		return fee
	}
	return decimal.Zero
}

// QuoteRequest is a full checkout selection over a subtotal.
type QuoteRequest struct {
	Subtotal    decimal.Decimal
	PaymentType PaymentType
	Method      PaymentMethod
	// Installments defaults to 1.
	Installments int
	// Frequency and DurationMonths only apply to recurrent offers.
	Frequency      FrequencyID
	DurationMonths int
	// CouponRate is the validated coupon fraction, zero when none applies.
	CouponRate  decimal.Decimal
	CouponLabel string
	Composition Composition
}

// Quote is the priced selection.
type Quote struct {
	Result
	PaymentType  PaymentType
	Method       PaymentMethod
	Frequency    *PaymentFrequency
	Installments Installment
}

// Quote resolves every discount source of req, composes them and splits the
// final amount into the selected installments.
func (e *Engine) Quote(req QuoteRequest) (Quote, error) {
	var err error
	if req.PaymentType, err = ParsePaymentType(string(req.PaymentType)); err != nil {
		return Quote{}, err
	}
	if req.Method, err = ParseMethod(string(req.Method)); err != nil {
		return Quote{}, err
	}
	if req.Installments == 0 {
		req.Installments = 1
	}
	if req.Composition == "" {
		req.Composition = e.cfg.Composition
	}
	if req.Installments > 1 {
		if req.PaymentType == PaymentRecurrent || !req.Method.AllowsInstallments() {
			return Quote{}, errors.Wrapf(ErrInstallmentsNotAllowed, "%s %s in %d", req.PaymentType, req.Method, req.Installments)
		}
	}

	cycle := req.PaymentType.Cycle()
	contributions := make([]Contribution, 0, 4)

	methodSource, methodLabel := SourceMethod, string(req.Method)
	if req.Installments > 1 {
		methodSource = SourceInstallment
		methodLabel = fmt.Sprintf("%s %dx", req.Method, req.Installments)
	}
	contributions = append(contributions, Contribution{
		Source: methodSource,
		Label:  methodLabel,
		Rate:   e.cfg.Catalog.Rules.Lookup(req.Method, req.Installments, cycle),
	})

	var freq *PaymentFrequency
	if req.PaymentType == PaymentRecurrent {
		id := req.Frequency
		if id == "" {
			id = FrequencyMonthly
		}
		f, err := e.cfg.Catalog.Frequency(id)
		if err != nil {
			return Quote{}, err
		}
		freq = &f
		contributions = append(contributions, Contribution{
			Source: SourceFrequency,
			Label:  string(f.ID),
			Rate:   f.Discount,
		})
		if req.DurationMonths > 0 {
			contributions = append(contributions, Contribution{
				Source: SourceDuration,
				Label:  fmt.Sprintf("%d months", req.DurationMonths),
				Rate:   e.cfg.Catalog.DurationDiscount(req.DurationMonths),
			})
		}
	}

	if req.CouponRate.IsPositive() {
		contributions = append(contributions, Contribution{
			Source: SourceCoupon,
			Label:  req.CouponLabel,
			Rate:   req.CouponRate,
		})
	}

	res, err := e.Compose(req.Subtotal, contributions, req.Composition, e.Fee(req.Method))
	if err != nil {
		return Quote{}, err
	}

	inst, err := CalculateInstallments(res.Final, req.Installments)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Result:       res,
		PaymentType:  req.PaymentType,
		Method:       req.Method,
		Frequency:    freq,
		Installments: inst,
	}, nil
}
