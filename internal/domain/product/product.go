package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Prices      []Price
}

// Price is one purchasable variant of a product. Modifier selects the
// variant dimension (for example seniority level) and may be empty.
type Price struct {
	ID          string
	Modifier    string
	PaymentType pricing.PaymentType
	Amount      decimal.Decimal
}

// PriceFor returns the price matching the payment type and modifier.
// Modifier comparison is case-insensitive.
func (p Product) PriceFor(pt pricing.PaymentType, modifier string) (Price, bool) {
	modifier = strings.TrimSpace(modifier)
	for _, price := range p.Prices {
		if price.PaymentType == pt && strings.EqualFold(price.Modifier, modifier) {
			return price, true
		}
	}
	return Price{}, false
}

// PriceByID returns the price with the given id.
func (p Product) PriceByID(id string) (Price, bool) {
	for _, price := range p.Prices {
		if price.ID == id {
			return price, true
		}
	}
	return Price{}, false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
