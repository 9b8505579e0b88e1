package pricing

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// FrequencyID identifies a recurrence cadence.
type FrequencyID string

const (
	FrequencyMonthly    FrequencyID = "monthly"
	FrequencyQuarterly  FrequencyID = "quarterly"
	FrequencySemiannual FrequencyID = "semiannual"
	FrequencyAnnual     FrequencyID = "annual"
)

// ErrUnknownFrequency is returned for a frequency id outside the catalog.
var ErrUnknownFrequency = errors.New("unknown payment frequency")

// PaymentFrequency describes a recurrence cadence and the discount granted
// for committing to it.
type PaymentFrequency struct {
	ID           FrequencyID
	IntervalDays int
	Discount     decimal.Decimal
}

// DefaultFrequencies returns the recurrence catalog ordered by interval.
func DefaultFrequencies() []PaymentFrequency {
	return []PaymentFrequency{
		{ID: FrequencyMonthly, IntervalDays: 30, Discount: decimal.Zero},
		{ID: FrequencyQuarterly, IntervalDays: 90, Discount: decimal.RequireFromString("0.05")},
		{ID: FrequencySemiannual, IntervalDays: 180, Discount: decimal.RequireFromString("0.10")},
		{ID: FrequencyAnnual, IntervalDays: 365, Discount: decimal.RequireFromString("0.15")},
	}
}

// DurationTier grants a discount for contracting at least Months of service.
type DurationTier struct {
	Months   int
	Discount decimal.Decimal
}

// DefaultDurationTiers returns the project duration catalog.
func DefaultDurationTiers() []DurationTier {
	return []DurationTier{
		{Months: 3, Discount: decimal.Zero},
		{Months: 6, Discount: decimal.RequireFromString("0.05")},
		{Months: 12, Discount: decimal.RequireFromString("0.10")},
		{Months: 24, Discount: decimal.RequireFromString("0.15")},
	}
}

// Catalog bundles the static pricing tables.
type Catalog struct {
	Rules       RuleTable
	Frequencies []PaymentFrequency
	Durations   []DurationTier
}

// DefaultCatalog returns the catalog built from the default tables.
func DefaultCatalog() Catalog {
	return Catalog{
		Rules:       NewRuleTable(DefaultRules()),
		Frequencies: DefaultFrequencies(),
		Durations:   DefaultDurationTiers(),
	}
}

// Frequency returns the catalog entry for id.
func (c Catalog) Frequency(id FrequencyID) (PaymentFrequency, error) {
	for _, f := range c.Frequencies {
		if f.ID == id {
			return f, nil
		}
	}
	return PaymentFrequency{}, errors.Wrapf(ErrUnknownFrequency, "%q", id)
}

// DurationDiscount returns the discount of the largest tier not exceeding
// months. Durations below the smallest tier get no discount.
func (c Catalog) DurationDiscount(months int) decimal.Decimal {
	tiers := make([]DurationTier, len(c.Durations))
	copy(tiers, c.Durations)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Months < tiers[j].Months })

	rate := decimal.Zero
	for _, t := range tiers {
		if t.Months > months {
			break
		}
		rate = t.Discount
	}
	return rate
}
