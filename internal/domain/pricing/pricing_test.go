package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestRuleTable_Lookup(t *testing.T) {
	table := NewRuleTable(DefaultRules())

	tests := []struct {
		name         string
		method       PaymentMethod
		installments int
		cycle        BillingCycle
		want         decimal.Decimal
	}{
		{"pix monthly", MethodPix, 1, CycleMonthly, d("0.15")},
		{"pix one time", MethodPix, 1, CycleOneTime, d("0.15")},
		{"boleto 6x one time", MethodBoleto, 6, CycleOneTime, d("0.08")},
		{"boleto 12x one time", MethodBoleto, 12, CycleOneTime, d("0.05")},
		{"card monthly", MethodCreditCard, 1, CycleMonthly, d("0.03")},
		{"unknown combination is zero", MethodCreditCard, 7, CycleOneTime, decimal.Zero},
		{"unknown method is zero", PaymentMethod("cash"), 1, CycleOneTime, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Lookup(tt.method, tt.installments, tt.cycle)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" PIX ")
	require.NoError(t, err)
	assert.Equal(t, MethodPix, m)

	_, err = ParseMethod("cheque")
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = ParsePaymentType("weekly")
	require.ErrorIs(t, err, ErrUnknownPaymentType)

	_, err = ParseCycle("yearly")
	require.ErrorIs(t, err, ErrUnknownCycle)
}

func TestCalculateInstallments_InterestFree(t *testing.T) {
	totals := []string{"0", "0.01", "100", "920", "1000", "999.99", "12345.67"}
	for _, total := range totals {
		for n := 1; n <= MaxInterestFree; n++ {
			inst, err := CalculateInstallments(d(total), n)
			require.NoError(t, err)

			assert.True(t, inst.TotalPaid.Equal(d(total)),
				"n=%d total=%s paid=%s", n, total, inst.TotalPaid)
			assert.True(t, inst.Interest.IsZero())
			assert.True(t, inst.MonthlyRate.IsZero())

			// Rounded per-installment differs from the exact share by less than a cent.
			diff := inst.PerInstallment.Mul(decimal.NewFromInt(int64(n))).Sub(d(total)).Abs()
			assert.True(t, diff.LessThanOrEqual(d("0.01").Mul(decimal.NewFromInt(int64(n)))),
				"n=%d total=%s diff=%s", n, total, diff)
		}
	}
}

func TestCalculateInstallments_WithInterest(t *testing.T) {
	total := d("1000")
	prev := total

	for n := MaxInterestFree + 1; n <= MaxInstallments; n++ {
		inst, err := CalculateInstallments(total, n)
		require.NoError(t, err)

		assert.True(t, inst.TotalPaid.GreaterThan(total), "n=%d paid=%s", n, inst.TotalPaid)
		assert.True(t, inst.TotalPaid.GreaterThan(prev), "n=%d must cost more than n=%d", n, n-1)
		assert.True(t, inst.Interest.Equal(inst.TotalPaid.Sub(total)))
		assert.True(t, DefaultMonthlyRate.Equal(inst.MonthlyRate))
		prev = inst.TotalPaid
	}
}

func TestCalculateInstallments_KnownValues(t *testing.T) {
	tests := []struct {
		n       int
		wantPer string
		wantSum string
	}{
		{7, "154.45", "1081.17"},
		{10, "111.27", "1112.68"},
		{12, "94.50", "1134.02"},
	}
	for _, tt := range tests {
		inst, err := CalculateInstallments(d("1000"), tt.n)
		require.NoError(t, err)
		assert.True(t, d(tt.wantPer).Equal(inst.PerInstallment), "n=%d per=%s", tt.n, inst.PerInstallment)
		assert.True(t, d(tt.wantSum).Equal(inst.TotalPaid), "n=%d paid=%s", tt.n, inst.TotalPaid)
	}
}

func TestInstallment_FirstAmount(t *testing.T) {
	inst, err := CalculateInstallments(d("1000"), 3)
	require.NoError(t, err)
	assert.True(t, d("333.33").Equal(inst.PerInstallment))
	assert.True(t, d("333.34").Equal(inst.FirstAmount()), "first=%s", inst.FirstAmount())

	for _, total := range []string{"0", "0.01", "999.99", "1000", "12345.67"} {
		for n := MinInstallments; n <= MaxInstallments; n++ {
			inst, err := CalculateInstallments(d(total), n)
			require.NoError(t, err)
			sum := inst.FirstAmount().Add(inst.PerInstallment.Mul(decimal.NewFromInt(int64(n - 1))))
			assert.True(t, inst.TotalPaid.Equal(sum), "n=%d total=%s sum=%s paid=%s", n, total, sum, inst.TotalPaid)
		}
	}
}

func TestCalculateInstallments_Invalid(t *testing.T) {
	_, err := CalculateInstallments(d("100"), 0)
	require.ErrorIs(t, err, ErrInvalidInstallments)

	_, err = CalculateInstallments(d("100"), 13)
	require.ErrorIs(t, err, ErrInvalidInstallments)

	_, err = CalculateInstallments(d("-1"), 3)
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestInstallmentOptions(t *testing.T) {
	opts, err := InstallmentOptions(d("600"))
	require.NoError(t, err)
	require.Len(t, opts, MaxInstallments)

	assert.True(t, d("600").Equal(opts[0].PerInstallment))
	assert.Equal(t, "Single payment", opts[0].Description)
	assert.True(t, d("100").Equal(opts[5].PerInstallment))
	assert.Equal(t, "7x at 1.99% a month", opts[6].Description)
}

func TestCombine_BoundedAndCommutative(t *testing.T) {
	rates := []string{"0", "0.05", "0.1", "0.15", "0.5", "0.8", "0.99"}
	for _, ra := range rates {
		for _, rb := range rates {
			a, b := d(ra), d(rb)
			ab := Combine(a, b)

			assert.True(t, ab.Equal(Combine(b, a)), "a=%s b=%s", a, b)
			assert.True(t, ab.GreaterThanOrEqual(decimal.Max(a, b)), "a=%s b=%s got %s", a, b, ab)
			assert.True(t, ab.LessThan(one), "a=%s b=%s got %s", a, b, ab)
		}
	}
}

func TestCompose(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name          string
		subtotal      string
		contributions []Contribution
		mode          Composition
		fee           string
		wantEffective string
		wantFinal     string
		wantCapped    bool
		wantErr       error
	}{
		{
			name:     "multiplicative two sources",
			subtotal: "1000",
			contributions: []Contribution{
				{Source: SourceMethod, Rate: d("0.15")},
				{Source: SourceFrequency, Rate: d("0.10")},
			},
			mode:          CompositionMultiplicative,
			fee:           "0",
			wantEffective: "0.235",
			wantFinal:     "765",
		},
		{
			name:     "additive two sources",
			subtotal: "1000",
			contributions: []Contribution{
				{Source: SourceMethod, Rate: d("0.15")},
				{Source: SourceFrequency, Rate: d("0.10")},
			},
			mode:          CompositionAdditive,
			fee:           "0",
			wantEffective: "0.25",
			wantFinal:     "750",
		},
		{
			name:     "additive stacking is clamped",
			subtotal: "1000",
			contributions: []Contribution{
				{Source: SourceMethod, Rate: d("0.5")},
				{Source: SourceCoupon, Rate: d("0.3")},
				{Source: SourceDuration, Rate: d("0.2")},
				{Source: SourceFrequency, Rate: d("0.15")},
			},
			mode:          CompositionAdditive,
			fee:           "0",
			wantEffective: "0.95",
			wantFinal:     "50",
			wantCapped:    true,
		},
		{
			name:     "fee applied after discount",
			subtotal: "1000",
			contributions: []Contribution{
				{Source: SourceMethod, Rate: d("0.05")},
			},
			mode:          CompositionMultiplicative,
			fee:           "0.0299",
			wantEffective: "0.05",
			wantFinal:     "978.41",
		},
		{
			name:          "no contributions",
			subtotal:      "10.10",
			mode:          CompositionAdditive,
			fee:           "0",
			wantEffective: "0",
			wantFinal:     "10.10",
		},
		{
			name:     "rate of one is rejected",
			subtotal: "100",
			contributions: []Contribution{
				{Source: SourceCoupon, Rate: d("1")},
			},
			mode:    CompositionMultiplicative,
			fee:     "0",
			wantErr: ErrInvalidRate,
		},
		{
			name:     "negative rate is rejected",
			subtotal: "100",
			contributions: []Contribution{
				{Source: SourceCoupon, Rate: d("-0.1")},
			},
			mode:    CompositionAdditive,
			fee:     "0",
			wantErr: ErrInvalidRate,
		},
		{
			name:     "negative subtotal",
			subtotal: "-1",
			mode:     CompositionAdditive,
			fee:      "0",
			wantErr:  ErrNegativeAmount,
		},
		{
			name:     "unknown mode",
			subtotal: "1",
			mode:     Composition("max"),
			fee:      "0",
			wantErr:  ErrUnknownComposition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Compose(d(tt.subtotal), tt.contributions, tt.mode, d(tt.fee))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.wantEffective).Equal(got.EffectiveDiscount),
				"expected effective %s, got %s", tt.wantEffective, got.EffectiveDiscount)
			assert.True(t, d(tt.wantFinal).Equal(got.Final),
				"expected final %s, got %s", tt.wantFinal, got.Final)
			assert.Equal(t, tt.wantCapped, got.Capped)
			assert.True(t, got.Subtotal.Equal(got.DiscountedAmount.Add(got.DiscountAmount)))
		})
	}
}

func TestQuote_Scenarios(t *testing.T) {
	e := newTestEngine(t)

	t.Run("pix monthly", func(t *testing.T) {
		q, err := e.Quote(QuoteRequest{
			Subtotal:    d("1000"),
			PaymentType: PaymentRecurrent,
			Method:      MethodPix,
			Frequency:   FrequencyMonthly,
		})
		require.NoError(t, err)
		assert.True(t, d("850").Equal(q.DiscountedAmount), "got %s", q.DiscountedAmount)
		assert.True(t, d("850").Equal(q.Final))
		require.NotNil(t, q.Frequency)
		assert.Equal(t, 30, q.Frequency.IntervalDays)
	})

	t.Run("boleto 6x one time", func(t *testing.T) {
		q, err := e.Quote(QuoteRequest{
			Subtotal:     d("1000"),
			PaymentType:  PaymentOneTime,
			Method:       MethodBoleto,
			Installments: 6,
		})
		require.NoError(t, err)
		assert.True(t, d("920").Equal(q.DiscountedAmount), "got %s", q.DiscountedAmount)
		assert.True(t, d("153.33").Equal(q.Installments.PerInstallment), "got %s", q.Installments.PerInstallment)
		assert.Equal(t, SourceInstallment, q.Contributions[0].Source)
		assert.Nil(t, q.Frequency)
	})

	t.Run("recurrent stacks frequency duration and coupon", func(t *testing.T) {
		q, err := e.Quote(QuoteRequest{
			Subtotal:       d("1000"),
			PaymentType:    PaymentRecurrent,
			Method:         MethodBoleto,
			Frequency:      FrequencyQuarterly,
			DurationMonths: 12,
			CouponRate:     d("0.10"),
			CouponLabel:    "WELCOME10",
			Composition:    CompositionAdditive,
		})
		require.NoError(t, err)
		// 0.05 boleto + 0.05 quarterly + 0.10 twelve months + 0.10 coupon.
		assert.True(t, d("0.30").Equal(q.EffectiveDiscount), "got %s", q.EffectiveDiscount)
		assert.True(t, d("700").Equal(q.Final))
		assert.Len(t, q.Contributions, 4)
	})

	t.Run("card pays the processing fee", func(t *testing.T) {
		q, err := e.Quote(QuoteRequest{
			Subtotal:     d("1000"),
			PaymentType:  PaymentOneTime,
			Method:       MethodCreditCard,
			Installments: 10,
		})
		require.NoError(t, err)
		// No 10x card rule, so only the fee applies: 1000 * 1.0299.
		assert.True(t, d("1029.90").Equal(q.Final), "got %s", q.Final)
		assert.True(t, q.Installments.Interest.IsPositive())
	})

	t.Run("pix cannot be split", func(t *testing.T) {
		_, err := e.Quote(QuoteRequest{
			Subtotal:     d("1000"),
			PaymentType:  PaymentOneTime,
			Method:       MethodPix,
			Installments: 3,
		})
		require.ErrorIs(t, err, ErrInstallmentsNotAllowed)
	})

	t.Run("recurrent cannot be split", func(t *testing.T) {
		_, err := e.Quote(QuoteRequest{
			Subtotal:     d("1000"),
			PaymentType:  PaymentRecurrent,
			Method:       MethodBoleto,
			Installments: 3,
		})
		require.ErrorIs(t, err, ErrInstallmentsNotAllowed)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		_, err := e.Quote(QuoteRequest{
			Subtotal:    d("1000"),
			PaymentType: PaymentRecurrent,
			Method:      MethodBoleto,
			Frequency:   FrequencyID("weekly"),
		})
		require.ErrorIs(t, err, ErrUnknownFrequency)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := e.Quote(QuoteRequest{
			Subtotal:    d("1000"),
			PaymentType: PaymentOneTime,
			Method:      PaymentMethod("cash"),
		})
		require.ErrorIs(t, err, ErrUnknownMethod)
	})
}

func TestCatalog_DurationDiscount(t *testing.T) {
	c := DefaultCatalog()

	assert.True(t, c.DurationDiscount(1).IsZero())
	assert.True(t, c.DurationDiscount(3).IsZero())
	assert.True(t, d("0.05").Equal(c.DurationDiscount(7)))
	assert.True(t, d("0.10").Equal(c.DurationDiscount(12)))
	assert.True(t, d("0.15").Equal(c.DurationDiscount(36)))
}

func TestNewEngine_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDiscount = d("1")
	_, err := NewEngine(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Composition = Composition("max")
	_, err = NewEngine(cfg)
	require.ErrorIs(t, err, ErrUnknownComposition)

	cfg = DefaultConfig()
	cfg.Fees[MethodBoleto] = d("-0.01")
	_, err = NewEngine(cfg)
	require.Error(t, err)
}
