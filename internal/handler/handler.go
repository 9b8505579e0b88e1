// Package handler exposes the checkout over HTTP under /api.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/offer-checkout/internal/domain/cart"
	"github.com/xenking/offer-checkout/internal/domain/checkout"
	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/product"
	"github.com/xenking/offer-checkout/internal/domain/schedule"
	"github.com/xenking/offer-checkout/internal/sales"
)

// Carts is the cart service consumed by the cart routes.
type Carts interface {
	Open(ctx context.Context, name, leadID string) (cart.Cart, error)
	Get(ctx context.Context, sessionID string) (cart.Cart, error)
	Refresh(ctx context.Context, sessionID string) (cart.Cart, error)
	Add(ctx context.Context, sessionID string, req cart.AddRequest) (cart.Cart, error)
	Remove(ctx context.Context, sessionID, offerItemID string) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, offerItemID string, quantity int) (cart.Cart, error)
	Clear(ctx context.Context, sessionID string) (cart.Cart, error)
	ApplyCoupon(ctx context.Context, sessionID string, pt pricing.PaymentType, code string) (cart.CouponResult, error)
	SetInstallment(ctx context.Context, sessionID string, installments int) (cart.Cart, error)
	SetDuration(ctx context.Context, sessionID string, months int) (cart.Cart, error)
	UpdateDates(ctx context.Context, sessionID string, pt pricing.PaymentType, dates sales.Dates) (cart.Cart, error)
	Quote(ctx context.Context, sessionID string, pt pricing.PaymentType, sel cart.Selection) (pricing.Quote, error)
	Close(ctx context.Context, sessionID string, sel cart.Selection) (*checkout.Record, error)
}

var _ Carts = (*cart.Service)(nil)

// Handler serves the product, pricing, coupon and cart routes.
type Handler struct {
	products product.Repository
	engine   *pricing.Engine
	coupons  coupon.Verifier
	carts    Carts

	quotes    metric.Int64Counter
	checkouts metric.Int64Counter
}

// NewHandler constructs a Handler. Instruments are registered on meter.
func NewHandler(
	products product.Repository,
	engine *pricing.Engine,
	coupons coupon.Verifier,
	carts Carts,
	meter metric.Meter,
) (*Handler, error) {
	quotes, err := meter.Int64Counter("checkout.quotes",
		metric.WithDescription("Priced quotes by payment type and method"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	checkouts, err := meter.Int64Counter("checkout.closed",
		metric.WithDescription("Closed checkout sessions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}
	return &Handler{
		products:  products,
		engine:    engine,
		coupons:   coupons,
		carts:     carts,
		quotes:    quotes,
		checkouts: checkouts,
	}, nil
}

// Register mounts the routes on r. Mutating cart routes are wrapped with
// auth.
func (h *Handler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/api/product", h.listProducts)
	r.Get("/api/product/{id}", h.getProduct)

	r.Post("/api/pricing/quote", h.quote)
	r.Get("/api/pricing/installments", h.installments)
	r.Post("/api/pricing/schedule", h.schedule)
	r.Get("/api/coupon/{code}", h.verifyCoupon)

	r.Get("/api/cart/{id}", h.getCart)
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/api/cart", h.openCart)
		r.Post("/api/cart/{id}/refresh", h.refreshCart)
		r.Post("/api/cart/{id}/items", h.addItem)
		r.Delete("/api/cart/{id}/items", h.clearCart)
		r.Patch("/api/cart/{id}/items/{itemId}", h.updateItem)
		r.Delete("/api/cart/{id}/items/{itemId}", h.removeItem)
		r.Post("/api/cart/{id}/coupon", h.applyCoupon)
		r.Post("/api/cart/{id}/installment", h.setInstallment)
		r.Post("/api/cart/{id}/duration", h.setDuration)
		r.Post("/api/cart/{id}/dates", h.updateDates)
		r.Post("/api/cart/{id}/quote", h.quoteCart)
		r.Post("/api/cart/{id}/checkout", h.closeCart)
	})
}

func (h *Handler) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Code: http.StatusNotFound, Message: "route not found"})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Code:    http.StatusMethodNotAllowed,
		Message: http.StatusText(http.StatusMethodNotAllowed),
	})
}

func (h *Handler) countQuote(ctx context.Context, q pricing.Quote) {
	h.quotes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_type", string(q.PaymentType)),
		attribute.String("method", string(q.Method)),
		attribute.Int("installments", q.Installments.Count),
	))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

var (
	notFound = []error{
		product.ErrNotFound,
		cart.ErrSessionNotFound,
		cart.ErrItemNotFound,
	}
	unprocessable = []error{
		cart.ErrNameRequired,
		cart.ErrSessionClosed,
		cart.ErrInvalidQuantity,
		cart.ErrInvalidDuration,
		cart.ErrInvalidDates,
		cart.ErrPriceNotFound,
		checkout.ErrEmptyItems,
		coupon.ErrInvalidCoupon,
		coupon.ErrCouponExpired,
		coupon.ErrCouponUsageLimitReached,
		coupon.ErrMinSubtotalNotMet,
		pricing.ErrUnknownMethod,
		pricing.ErrUnknownCycle,
		pricing.ErrUnknownPaymentType,
		pricing.ErrInvalidInstallments,
		pricing.ErrInstallmentsNotAllowed,
		pricing.ErrNegativeAmount,
		pricing.ErrInvalidRate,
		pricing.ErrUnknownComposition,
		pricing.ErrUnknownFrequency,
		schedule.ErrInvalidBillingDay,
		schedule.ErrInvalidCount,
		schedule.ErrInvalidInterval,
	}
)

// statusOf maps domain and sales API failures onto HTTP statuses.
func statusOf(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range unprocessable {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	if errors.Is(err, sales.ErrTransport) {
		return http.StatusBadGateway
	}
	var apiErr *sales.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.NotFound():
			return http.StatusNotFound
		case apiErr.Status >= 500:
			return http.StatusBadGateway
		default:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}
