package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const (
	// MinInstallments and MaxInstallments bound the installment count.
	MinInstallments = 1
	MaxInstallments = 12
	// MaxInterestFree is the largest interest-free installment count.
	MaxInterestFree = 6
)

var (
	ErrInvalidInstallments = errors.New("installments must be between 1 and 12")
	ErrNegativeAmount      = errors.New("amount must not be negative")
)

// DefaultMonthlyRate is the monthly interest of interest-bearing tiers (1.99%).
var DefaultMonthlyRate = decimal.RequireFromString("0.0199")

// InstallmentPlan describes one allowed installment tier.
type InstallmentPlan struct {
	Months      int
	MonthlyRate decimal.Decimal
	Description string
}

// InterestFree reports whether the tier divides the total equally.
func (p InstallmentPlan) InterestFree() bool {
	return p.MonthlyRate.IsZero()
}

// DefaultPlans returns the 1..12 installment catalog: interest free up to six,
// DefaultMonthlyRate from seven to twelve.
func DefaultPlans() []InstallmentPlan {
	plans := make([]InstallmentPlan, 0, MaxInstallments)
	for n := MinInstallments; n <= MaxInstallments; n++ {
		p := InstallmentPlan{Months: n, MonthlyRate: decimal.Zero}
		switch {
		case n == 1:
			p.Description = "Single payment"
		case n <= MaxInterestFree:
			p.Description = fmt.Sprintf("%dx interest free", n)
		default:
			p.MonthlyRate = DefaultMonthlyRate
			p.Description = fmt.Sprintf("%dx at %s%% a month", n, DefaultMonthlyRate.Shift(2).String())
		}
		plans = append(plans, p)
	}
	return plans
}

// PlanFor returns the catalog tier for n installments.
func PlanFor(n int) (InstallmentPlan, error) {
	if n < MinInstallments || n > MaxInstallments {
		return InstallmentPlan{}, errors.Wrapf(ErrInvalidInstallments, "got %d", n)
	}
	return DefaultPlans()[n-1], nil
}

// Installment is the breakdown of a total split into Count payments.
type Installment struct {
	Count          int
	MonthlyRate    decimal.Decimal
	PerInstallment decimal.Decimal
	TotalPaid      decimal.Decimal
	Interest       decimal.Decimal
	Description    string
}

// FirstAmount is the first payment. It absorbs the rounding remainder so that
// FirstAmount + PerInstallment*(Count-1) equals TotalPaid.
func (i Installment) FirstAmount() decimal.Decimal {
	if i.Count <= 1 {
		return i.TotalPaid
	}
	rest := i.PerInstallment.Mul(decimal.NewFromInt(int64(i.Count - 1)))
	return i.TotalPaid.Sub(rest)
}

// CalculateInstallments splits total into n payments. Tiers up to
// MaxInterestFree divide equally; longer tiers use the annuity coefficient
// r(1+r)^n / ((1+r)^n - 1). Monetary outputs are rounded to cents.
func CalculateInstallments(total decimal.Decimal, n int) (Installment, error) {
	if total.IsNegative() {
		return Installment{}, ErrNegativeAmount
	}
	plan, err := PlanFor(n)
	if err != nil {
		return Installment{}, err
	}

	per := perInstallment(total, n, plan.MonthlyRate)
	paid := per.Mul(decimal.NewFromInt(int64(n))).Round(2)

	return Installment{
		Count:          n,
		MonthlyRate:    plan.MonthlyRate,
		PerInstallment: per.Round(2),
		TotalPaid:      paid,
		Interest:       paid.Sub(total.Round(2)),
		Description:    plan.Description,
	}, nil
}

// InstallmentOptions returns the breakdown for every catalog tier.
func InstallmentOptions(total decimal.Decimal) ([]Installment, error) {
	out := make([]Installment, 0, MaxInstallments)
	for n := MinInstallments; n <= MaxInstallments; n++ {
		inst, err := CalculateInstallments(total, n)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func perInstallment(total decimal.Decimal, n int, rate decimal.Decimal) decimal.Decimal {
	count := decimal.NewFromInt(int64(n))
	if n == 1 || rate.IsZero() || total.IsZero() {
		return total.Div(count)
	}
	growth := compound(decimal.NewFromInt(1).Add(rate), n)
	coefficient := rate.Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
	return total.Mul(coefficient)
}

// compound returns base^n for n >= 1 using exact multiplication.
func compound(base decimal.Decimal, n int) decimal.Decimal {
	out := base
	for i := 1; i < n; i++ {
		out = out.Mul(base)
	}
	return out
}
