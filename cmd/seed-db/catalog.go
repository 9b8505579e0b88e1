package main

import (
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/auth"
	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/product"
)

type priceJSON struct {
	ID          string          `json:"id"`
	Modifier    string          `json:"modifier"`
	PaymentType string          `json:"paymentType"`
	Amount      decimal.Decimal `json:"amount"`
}

type productJSON struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Prices      []priceJSON `json:"prices"`
}

// parseProducts decodes a catalog file and validates every price.
func parseProducts(data []byte) ([]product.Product, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	seen := make(map[string]struct{}, len(raw))
	products := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		id := strings.TrimSpace(p.ID)
		if id == "" || strings.TrimSpace(p.Name) == "" {
			return nil, errors.Errorf("product %q: id and name are required", p.ID)
		}
		if _, dup := seen[id]; dup {
			return nil, errors.Errorf("product %q: duplicate id", id)
		}
		seen[id] = struct{}{}

		out := product.Product{ID: id, Name: p.Name, Description: p.Description, Category: p.Category}
		for _, pr := range p.Prices {
			pt, err := pricing.ParsePaymentType(pr.PaymentType)
			if err != nil {
				return nil, errors.Wrapf(err, "product %q price %q", id, pr.ID)
			}
			if pr.ID == "" {
				return nil, errors.Errorf("product %q: price id is required", id)
			}
			if pr.Amount.IsNegative() {
				return nil, errors.Errorf("product %q price %q: negative amount", id, pr.ID)
			}
			out.Prices = append(out.Prices, product.Price{
				ID:          pr.ID,
				Modifier:    strings.TrimSpace(pr.Modifier),
				PaymentType: pt,
				Amount:      pr.Amount,
			})
		}
		products = append(products, out)
	}
	return products, nil
}

func defaultCoupons() []coupon.Rule {
	return []coupon.Rule{
		{
			Code:         "SAVE10",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			MinSubtotal:  decimal.Zero,
			Description:  "10% off the whole cart",
		},
		{
			Code:         "WELCOME50",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(50),
			MinSubtotal:  decimal.NewFromInt(200),
			Description:  "50.00 off orders from 200.00",
		},
		{
			Code:         "LAUNCH25",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(25),
			MinSubtotal:  decimal.Zero,
			Description:  "Launch week: 25% off, first 100 uses",
			MaxUses:      100,
		},
	}
}

func defaultAPIKey(key, pepper string) auth.APIKeyInfo {
	return auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(key, pepper),
		Name:    "Default checkout key",
		Scopes:  []string{auth.ScopeCheckout},
	}
}
