package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

// ErrEmptyItems is returned when a checkout carries no line items.
var ErrEmptyItems = errors.New("items required")

// Record is a closed checkout session with its final pricing.
type Record struct {
	ID           string
	SessionID    string
	Items        []Item
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	CouponCode   string
	Method       pricing.PaymentMethod
	Installments int
	CreatedAt    time.Time
}

// Item is a single line of a closed checkout.
type Item struct {
	ProductID   string              `json:"product_id"`
	PriceID     string              `json:"price_id"`
	Modifier    string              `json:"modifier,omitempty"`
	PaymentType pricing.PaymentType `json:"payment_type"`
	Quantity    int                 `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
}

// New builds a Record from the session items and the accepted quotes, one
// per priced offer. Amounts are summed; method and installments come from
// the quote with the most installments.
func New(sessionID string, items []Item, couponCode string, quotes ...pricing.Quote) (*Record, error) {
	if len(items) == 0 || len(quotes) == 0 {
		return nil, ErrEmptyItems
	}
	r := &Record{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Items:      items,
		CouponCode: couponCode,
		CreatedAt:  time.Now().UTC(),
	}
	for _, q := range quotes {
		r.Subtotal = r.Subtotal.Add(q.Subtotal.Round(2))
		r.Discount = r.Discount.Add(q.DiscountAmount)
		r.Total = r.Total.Add(q.Installments.TotalPaid)
		if r.Method == "" || q.Installments.Count > r.Installments {
			r.Method = q.Method
			r.Installments = q.Installments.Count
		}
	}
	return r, nil
}

// Repository defines persistence operations for closed checkouts.
type Repository interface {
	// Create stores r. A record with the same ID is replaced.
	Create(ctx context.Context, r *Record) error
}
