// Package cart keeps a checkout cart in sync with the sales API. The server
// offers are the source of truth: the Cart is a projection rebuilt from them
// after every call and never mutated on its own.
package cart

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/product"
	"github.com/xenking/offer-checkout/internal/sales"
)

var (
	ErrNameRequired    = errors.New("session name required")
	ErrSessionNotFound = errors.New("cart session not found")
	ErrSessionClosed   = errors.New("cart session closed")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrInvalidDuration = errors.New("unknown contract duration")
	ErrInvalidDates    = errors.New("invalid offer dates")
	ErrPriceNotFound   = errors.New("price not found")
)

// PriceNotFoundError indicates the product has no price for the requested
// payment type and modifier.
type PriceNotFoundError struct {
	ProductID string
	Modifier  string
}

func (e *PriceNotFoundError) Error() string {
	if e.Modifier == "" {
		return fmt.Sprintf("no price for product %s", e.ProductID)
	}
	return fmt.Sprintf("no price for product %s with modifier %s", e.ProductID, e.Modifier)
}

func (e *PriceNotFoundError) Unwrap() error { return ErrPriceNotFound }

// Item is a display line of the cart.
type Item struct {
	OfferItemID string
	OfferID     string
	ProductID   string
	PriceID     string
	Name        string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	PaymentType pricing.PaymentType
	Modifier    string
}

// Offer summarizes the settings of one server offer.
type Offer struct {
	ID               string
	Type             pricing.PaymentType
	Subtotal         decimal.Decimal
	Total            decimal.Decimal
	CouponID         string
	CouponCode       string
	InstallmentID    string
	DurationID       string
	ProjectStartDate *time.Time
	PaymentStartDate *time.Time
	PayDay           int
}

// Cart is the projection of a session and its offers.
type Cart struct {
	SessionID string
	Status    string
	Closed    bool
	Items     []Item
	Offers    []Offer
	Subtotal  decimal.Decimal
	Total     decimal.Decimal
}

// Offer returns the summary of the offer of type pt.
func (c Cart) Offer(pt pricing.PaymentType) (Offer, bool) {
	for _, o := range c.Offers {
		if o.Type == pt {
			return o, true
		}
	}
	return Offer{}, false
}

// Project rebuilds the cart from the server offers. Missing names and
// descriptions are taken from catalog, keyed by product id.
func Project(session sales.Session, offers []*sales.Offer, catalog map[string]product.Product) Cart {
	c := Cart{
		SessionID: session.ID,
		Status:    session.Status,
		Closed:    session.Status == sales.SessionClosed,
		Subtotal:  decimal.Zero,
		Total:     decimal.Zero,
	}

	sorted := make([]*sales.Offer, 0, len(offers))
	for _, o := range offers {
		if o != nil {
			sorted = append(sorted, o)
		}
	}
	// Recurrent first, then one-time.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Type == pricing.PaymentRecurrent && sorted[j].Type != pricing.PaymentRecurrent
	})

	for _, o := range sorted {
		c.Offers = append(c.Offers, Offer{
			ID:               o.ID,
			Type:             o.Type,
			Subtotal:         o.SubtotalPrice,
			Total:            o.TotalPrice,
			CouponID:         o.CouponID,
			InstallmentID:    o.InstallmentID,
			DurationID:       o.OfferDurationID,
			ProjectStartDate: o.ProjectStartDate,
			PaymentStartDate: o.PaymentStartDate,
			PayDay:           o.PayDay,
		})
		c.Subtotal = c.Subtotal.Add(o.SubtotalPrice)
		c.Total = c.Total.Add(o.TotalPrice)

		for _, it := range o.Items {
			c.Items = append(c.Items, projectItem(o, it, catalog))
		}
	}
	return c
}

func projectItem(o *sales.Offer, it sales.OfferItem, catalog map[string]product.Product) Item {
	item := Item{
		OfferItemID: it.ID,
		OfferID:     o.ID,
		ProductID:   it.ProductID,
		PriceID:     it.PriceID,
		Name:        it.Name,
		Description: it.Description,
		Quantity:    it.Quantity,
		UnitPrice:   it.UnitPrice,
		Total:       it.TotalPrice,
		PaymentType: o.Type,
	}
	if item.Total.IsZero() {
		item.Total = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	}

	p, ok := catalog[it.ProductID]
	if !ok {
		return item
	}
	if item.Name == "" {
		item.Name = p.Name
	}
	if item.Description == "" {
		item.Description = p.Description
	}
	if price, ok := p.PriceByID(it.PriceID); ok {
		item.Modifier = price.Modifier
		if item.UnitPrice.IsZero() {
			item.UnitPrice = price.Amount
		}
	}
	return item
}

// Line identifies a cart line independently of server ids.
type Line struct {
	ProductID string
	Modifier  string
	Quantity  int
}

// Lines returns the cart content as (product, modifier, quantity) triples,
// merging lines of the same product and modifier.
func (c Cart) Lines() []Line {
	type key struct{ product, modifier string }
	qty := make(map[key]int, len(c.Items))
	order := make([]key, 0, len(c.Items))
	for _, it := range c.Items {
		k := key{it.ProductID, it.Modifier}
		if _, ok := qty[k]; !ok {
			order = append(order, k)
		}
		qty[k] += it.Quantity
	}
	out := make([]Line, 0, len(order))
	for _, k := range order {
		out = append(out, Line{ProductID: k.product, Modifier: k.modifier, Quantity: qty[k]})
	}
	return out
}
