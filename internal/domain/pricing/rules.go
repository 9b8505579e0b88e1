package pricing

import (
	"github.com/shopspring/decimal"
)

// DiscountRule maps a (method, installments, cycle) combination to a discount
// fraction.
type DiscountRule struct {
	Method       PaymentMethod
	Installments int
	Cycle        BillingCycle
	Rate         decimal.Decimal
}

type ruleKey struct {
	method       PaymentMethod
	installments int
	cycle        BillingCycle
}

// RuleTable is an immutable discount lookup table.
type RuleTable struct {
	rules map[ruleKey]decimal.Decimal
}

// NewRuleTable builds a table from rules. Later duplicates win.
func NewRuleTable(rules []DiscountRule) RuleTable {
	m := make(map[ruleKey]decimal.Decimal, len(rules))
	for _, r := range rules {
		m[ruleKey{r.Method, r.Installments, r.Cycle}] = r.Rate
	}
	return RuleTable{rules: m}
}

// DefaultRules returns the discount table used by the checkout.
func DefaultRules() []DiscountRule {
	pct := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []DiscountRule{
		{Method: MethodPix, Installments: 1, Cycle: CycleMonthly, Rate: pct("0.15")},
		{Method: MethodPix, Installments: 1, Cycle: CycleOneTime, Rate: pct("0.15")},

		{Method: MethodBoleto, Installments: 1, Cycle: CycleMonthly, Rate: pct("0.05")},
		{Method: MethodBoleto, Installments: 1, Cycle: CycleOneTime, Rate: pct("0.10")},
		{Method: MethodBoleto, Installments: 3, Cycle: CycleOneTime, Rate: pct("0.09")},
		{Method: MethodBoleto, Installments: 6, Cycle: CycleOneTime, Rate: pct("0.08")},
		{Method: MethodBoleto, Installments: 12, Cycle: CycleOneTime, Rate: pct("0.05")},

		{Method: MethodCreditCard, Installments: 1, Cycle: CycleMonthly, Rate: pct("0.03")},
		{Method: MethodCreditCard, Installments: 1, Cycle: CycleOneTime, Rate: pct("0.05")},
	}
}

// Lookup returns the discount for the combination, or zero when the table has
// no entry for it.
func (t RuleTable) Lookup(method PaymentMethod, installments int, cycle BillingCycle) decimal.Decimal {
	if rate, ok := t.rules[ruleKey{method, installments, cycle}]; ok {
		return rate
	}
	return decimal.Zero
}

// Len returns the number of rules in the table.
func (t RuleTable) Len() int { return len(t.rules) }
