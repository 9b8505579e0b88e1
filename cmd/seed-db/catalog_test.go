package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/offer-checkout/db"
	"github.com/xenking/offer-checkout/internal/domain/auth"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

func TestParseProducts_Embedded(t *testing.T) {
	products, err := parseProducts(db.SeedProducts)
	require.NoError(t, err)
	require.NotEmpty(t, products)

	mentoring := products[0]
	assert.Equal(t, "mentoring", mentoring.ID)
	price, ok := mentoring.PriceFor(pricing.PaymentRecurrent, "Senior")
	require.True(t, ok)
	assert.Equal(t, "249.9", price.Amount.String())
}

func TestParseProducts_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"NotJSON":      `{`,
		"MissingName":  `[{"id":"a"}]`,
		"Duplicate":    `[{"id":"a","name":"A"},{"id":"a","name":"B"}]`,
		"BadType":      `[{"id":"a","name":"A","prices":[{"id":"p","paymentType":"WEEKLY","amount":"1"}]}]`,
		"MissingPrice": `[{"id":"a","name":"A","prices":[{"paymentType":"ONE_TIME","amount":"1"}]}]`,
		"Negative":     `[{"id":"a","name":"A","prices":[{"id":"p","paymentType":"ONE_TIME","amount":"-1"}]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseProducts([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestDefaultAPIKey(t *testing.T) {
	key := defaultAPIKey("secret", "pepper")
	assert.Equal(t, auth.HashKey("secret", "pepper"), key.KeyHash)
	assert.True(t, key.HasScope(auth.ScopeCheckout))
}

func TestDefaultCoupons(t *testing.T) {
	for _, c := range defaultCoupons() {
		assert.True(t, c.Value.IsPositive(), c.Code)
		assert.NotEmpty(t, c.Description, c.Code)
	}
}
