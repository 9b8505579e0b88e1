package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestRate(t *testing.T) {
	tests := []struct {
		name        string
		rule        *Rule
		subtotal    decimal.Decimal
		want        decimal.Decimal
		wantErr     error
		wantErrText string
	}{
		{
			name:     "percentage 18%",
			rule:     &Rule{DiscountType: DiscountPercentage, Value: d("18")},
			subtotal: d("100"),
			want:     d("0.18"),
		},
		{
			name:     "percentage 100% is kept below a full discount",
			rule:     &Rule{DiscountType: DiscountPercentage, Value: d("100")},
			subtotal: d("100"),
			want:     d("0.99"),
		},
		{
			name:     "fixed $9 off $100",
			rule:     &Rule{DiscountType: DiscountFixed, Value: d("9")},
			subtotal: d("100"),
			want:     d("0.09"),
		},
		{
			name:     "fixed larger than subtotal is capped",
			rule:     &Rule{DiscountType: DiscountFixed, Value: d("200")},
			subtotal: d("100"),
			want:     d("0.99"),
		},
		{
			name:     "fixed on empty subtotal",
			rule:     &Rule{DiscountType: DiscountFixed, Value: d("5")},
			subtotal: decimal.Zero,
			want:     decimal.Zero,
		},
		{
			name:     "negative value floors at zero",
			rule:     &Rule{DiscountType: DiscountPercentage, Value: d("-5")},
			subtotal: d("100"),
			want:     decimal.Zero,
		},
		{
			name:     "minimum met",
			rule:     &Rule{DiscountType: DiscountPercentage, Value: d("10"), MinSubtotal: d("100")},
			subtotal: d("100"),
			want:     d("0.1"),
		},
		{
			name:     "minimum not met",
			rule:     &Rule{DiscountType: DiscountPercentage, Value: d("10"), MinSubtotal: d("100")},
			subtotal: d("99.99"),
			wantErr:  ErrMinSubtotalNotMet,
		},
		{
			name:        "unsupported discount type",
			rule:        &Rule{DiscountType: DiscountType("free_lowest"), Value: d("10")},
			subtotal:    d("10"),
			wantErrText: "unsupported discount type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rate(tt.rule, tt.subtotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.wantErrText != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrText)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "expected rate %s, got %s", tt.want, got)
		})
	}
}
