package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

func TestProduct_PriceFor(t *testing.T) {
	p := Product{
		ID:   "dev",
		Name: "Developer",
		Prices: []Price{
			{ID: "dev-jr-m", Modifier: "junior", PaymentType: pricing.PaymentRecurrent, Amount: decimal.NewFromInt(4000)},
			{ID: "dev-sr-m", Modifier: "senior", PaymentType: pricing.PaymentRecurrent, Amount: decimal.NewFromInt(9000)},
			{ID: "dev-sr-o", Modifier: "senior", PaymentType: pricing.PaymentOneTime, Amount: decimal.NewFromInt(20000)},
			{ID: "dev-setup", PaymentType: pricing.PaymentOneTime, Amount: decimal.NewFromInt(500)},
		},
	}

	tests := []struct {
		name     string
		pt       pricing.PaymentType
		modifier string
		wantID   string
		wantOK   bool
	}{
		{name: "recurrent senior", pt: pricing.PaymentRecurrent, modifier: "senior", wantID: "dev-sr-m", wantOK: true},
		{name: "case insensitive", pt: pricing.PaymentRecurrent, modifier: " Junior ", wantID: "dev-jr-m", wantOK: true},
		{name: "one time senior", pt: pricing.PaymentOneTime, modifier: "senior", wantID: "dev-sr-o", wantOK: true},
		{name: "no modifier", pt: pricing.PaymentOneTime, modifier: "", wantID: "dev-setup", wantOK: true},
		{name: "missing modifier for type", pt: pricing.PaymentOneTime, modifier: "junior"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.PriceFor(tt.pt, tt.modifier)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	price, ok := p.PriceByID("dev-sr-o")
	require.True(t, ok)
	assert.Equal(t, "senior", price.Modifier)

	_, ok = p.PriceByID("nope")
	assert.False(t, ok)
}
