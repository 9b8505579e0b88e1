// Package sales is a client of the external sales API that owns checkout
// sessions, their recurrent and one-time offers, and coupon codes.
package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

// Session correlates one recurrent and one one-time offer for a single
// shopping visit.
type Session struct {
	ID               string
	OneTimeOfferID   string
	RecurrentOfferID string
	Status           string
}

// SessionClosed is the status of a session that no longer accepts changes.
const SessionClosed = "CLOSED"

// OfferID returns the offer of the session that holds items of type pt.
func (s Session) OfferID(pt pricing.PaymentType) string {
	if pt == pricing.PaymentRecurrent {
		return s.RecurrentOfferID
	}
	return s.OneTimeOfferID
}

// Offer is the server-side priced bundle of one payment type.
type Offer struct {
	ID               string
	Type             pricing.PaymentType
	Items            []OfferItem
	SubtotalPrice    decimal.Decimal
	TotalPrice       decimal.Decimal
	CouponID         string
	InstallmentID    string
	OfferDurationID  string
	ProjectStartDate *time.Time
	PaymentStartDate *time.Time
	PayDay           int
}

// OfferItem is a single line of an offer. Name and Description are not
// always returned by the API.
type OfferItem struct {
	ID          string
	ProductID   string
	PriceID     string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	Name        string
	Description string
}

// Coupon is a code known to the sales API. Discount is a percentage or an
// amount depending on Type.
type Coupon struct {
	ID       string
	Code     string
	Discount decimal.Decimal
	Type     string
}

// API is the set of sales operations the checkout depends on.
type API interface {
	CreateSession(ctx context.Context, name, leadID string) (*Session, error)
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	AddOfferItem(ctx context.Context, offerID, productID, priceID string, quantity int) (*Offer, error)
	RemoveOfferItem(ctx context.Context, offerID, offerItemID string) (*Offer, error)
	SetOfferDuration(ctx context.Context, offerID, durationID string) (*Offer, error)
	ApplyCoupon(ctx context.Context, offerID, couponCode string) (*Offer, error)
	SetOfferInstallment(ctx context.Context, offerID, installmentID string) (*Offer, error)
	UpdateOfferDates(ctx context.Context, offerID string, dates Dates) (*Offer, error)
	CloseSession(ctx context.Context, sessionID string) (*Session, error)
	// VerifyCoupon returns nil without error for unknown codes.
	VerifyCoupon(ctx context.Context, code string) (*Coupon, error)
}

// Dates configures when the project and its payments start.
type Dates struct {
	ProjectStart time.Time
	PaymentStart time.Time
	PayDay       int
}
