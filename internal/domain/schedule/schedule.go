// Package schedule derives the forward-looking payment plan of an offer.
package schedule

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

// DefaultFirstPaymentOffsetDays is the gap between the start date and the
// first charge.
const DefaultFirstPaymentOffsetDays = 7

// MaxRecurrentPeriods bounds the contract length of a recurring plan.
const MaxRecurrentPeriods = 60

// BillingDays lists the days of month a customer can pick for recurring charges.
var BillingDays = []int{5, 10, 15, 25}

var (
	ErrInvalidBillingDay = errors.New("billing day must be one of 5, 10, 15, 25")
	ErrInvalidCount      = errors.New("payment count out of range")
	ErrInvalidInterval   = errors.New("recurrence interval must be positive")
)

// Params are the inputs of a payment plan.
type Params struct {
	Start time.Time
	// FirstPaymentOffsetDays defaults to DefaultFirstPaymentOffsetDays when
	// zero. Use a negative value for no offset.
	FirstPaymentOffsetDays int
	Type                   pricing.PaymentType
	// IntervalDays is the recurrence cadence, used for RECURRENT offers only.
	// Defaults to 30.
	IntervalDays int
	// Count is the contract duration in periods for RECURRENT offers and the
	// installment count for ONE_TIME offers.
	Count int
	// BillingDay is required for RECURRENT offers.
	BillingDay int
	Amount     decimal.Decimal
	// FirstAmount overrides Amount for the first entry when set.
	FirstAmount *decimal.Decimal
}

// Entry is one scheduled charge.
type Entry struct {
	Number int
	Date   time.Time
	Amount decimal.Decimal
	Label  string
}

// ValidBillingDay reports whether day is a selectable billing day.
func ValidBillingDay(day int) bool {
	for _, d := range BillingDays {
		if d == day {
			return true
		}
	}
	return false
}

// Build returns the ordered payment plan for p.
func Build(p Params) ([]Entry, error) {
	if p.Count < 1 || p.Count > maxCount(p.Type) {
		return nil, errors.Wrapf(ErrInvalidCount, "got %d, want 1..%d", p.Count, maxCount(p.Type))
	}
	if p.Amount.IsNegative() {
		return nil, pricing.ErrNegativeAmount
	}

	offset := p.FirstPaymentOffsetDays
	switch {
	case offset == 0:
		offset = DefaultFirstPaymentOffsetDays
	case offset < 0:
		offset = 0
	}
	first := dateOnly(p.Start).AddDate(0, 0, offset)

	var next func(i int, prev time.Time) time.Time
	switch p.Type {
	case pricing.PaymentRecurrent:
		if !ValidBillingDay(p.BillingDay) {
			return nil, errors.Wrapf(ErrInvalidBillingDay, "got %d", p.BillingDay)
		}
		interval := p.IntervalDays
		if interval == 0 {
			interval = 30
		}
		if interval < 0 {
			return nil, errors.Wrapf(ErrInvalidInterval, "got %d", interval)
		}
		step := max(interval/30, 1)
		next = func(_ int, prev time.Time) time.Time {
			return nextBillingDate(prev, p.BillingDay, step)
		}
	case pricing.PaymentOneTime:
		next = func(i int, _ time.Time) time.Time {
			return addMonthsClamped(first, i)
		}
	default:
		return nil, errors.Wrapf(pricing.ErrUnknownPaymentType, "%q", p.Type)
	}

	entries := make([]Entry, 0, p.Count)
	date := first
	for i := range p.Count {
		if i > 0 {
			date = next(i, date)
		}
		amount := p.Amount
		if i == 0 && p.FirstAmount != nil {
			amount = *p.FirstAmount
		}
		entries = append(entries, Entry{
			Number: i + 1,
			Date:   date,
			Amount: amount,
			Label:  label(p.Type, i+1, p.Count),
		})
	}
	return entries, nil
}

// ForInstallment returns the ONE_TIME plan of inst starting at start. The
// rounding remainder goes to the first entry so the plan sums to TotalPaid.
func ForInstallment(start time.Time, inst pricing.Installment) Params {
	first := inst.FirstAmount()
	return Params{
		Start:       start,
		Type:        pricing.PaymentOneTime,
		Count:       inst.Count,
		Amount:      inst.PerInstallment,
		FirstAmount: &first,
	}
}

func maxCount(t pricing.PaymentType) int {
	if t == pricing.PaymentOneTime {
		return pricing.MaxInstallments
	}
	return MaxRecurrentPeriods
}

// Visible truncates entries to limit for display and returns how many were
// folded away. A non-positive limit shows everything.
func Visible(entries []Entry, limit int) ([]Entry, int) {
	if limit <= 0 || len(entries) <= limit {
		return entries, 0
	}
	return entries[:limit], len(entries) - limit
}

// nextBillingDate returns the billing day following prev. When the day is
// still ahead in prev's month the charge stays in that month, otherwise it
// moves step months forward.
func nextBillingDate(prev time.Time, day, step int) time.Time {
	candidate := clampedDate(prev.Year(), prev.Month(), day, prev.Location())
	if candidate.After(prev) {
		if step == 1 {
			return candidate
		}
		return clampedDate(prev.Year(), prev.Month()+time.Month(step-1), day, prev.Location())
	}
	return clampedDate(prev.Year(), prev.Month()+time.Month(step), day, prev.Location())
}

// addMonthsClamped moves t by n calendar months keeping its day of month,
// clamped to the last day of the target month.
func addMonthsClamped(t time.Time, n int) time.Time {
	return clampedDate(t.Year(), t.Month()+time.Month(n), t.Day(), t.Location())
}

// clampedDate builds a date, normalising month overflow and clamping day to
// the month's length.
func clampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := firstOfMonth.AddDate(0, 1, -1).Day()
	return firstOfMonth.AddDate(0, 0, min(day, last)-1)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func label(t pricing.PaymentType, n, total int) string {
	switch {
	case n == 1 && total == 1:
		return "Single payment"
	case t == pricing.PaymentRecurrent:
		return fmt.Sprintf("Payment %d of %d", n, total)
	default:
		return fmt.Sprintf("Installment %d of %d", n, total)
	}
}
