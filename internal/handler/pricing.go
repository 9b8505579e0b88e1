package handler

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/schedule"
)

// quote prices a free-standing selection. A rejected coupon does not fail the
// quote; the rejection is reported next to it.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	q := pricing.QuoteRequest{
		Subtotal:       req.Subtotal,
		PaymentType:    pricing.PaymentType(req.PaymentType),
		Method:         pricing.PaymentMethod(req.Method),
		Installments:   req.Installments,
		Frequency:      pricing.FrequencyID(req.Frequency),
		DurationMonths: req.DurationMonths,
		Composition:    pricing.Composition(req.Composition),
	}

	var verification *coupon.Verification
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		v, err := h.coupons.Verify(r.Context(), code, req.Subtotal)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if v.Accepted() {
			q.CouponRate, q.CouponLabel = v.Rate, v.Code
		}
		verification = &v
	}

	quote, err := h.engine.Quote(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countQuote(r.Context(), quote)

	out := toQuote(quote)
	if verification != nil {
		out.Coupon = toCoupon(*verification)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) installments(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("total")
	if raw == "" {
		h.writeError(w, r, badRequest("total is required"))
		return
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		h.writeError(w, r, badRequest("total: %v", err))
		return
	}
	options, err := pricing.InstallmentOptions(total)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := installmentsResponse{Total: money(total), Options: make([]installmentResponse, len(options))}
	for i, o := range options {
		out.Options[i] = toInstallment(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := schedule.Build(params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchedule(entries, req.Limit))
}

// verifyCoupon reports whether a code applies to the optional subtotal. An
// unknown or ineligible code is a 200 with accepted=false.
func (h *Handler) verifyCoupon(w http.ResponseWriter, r *http.Request) {
	subtotal := decimal.Zero
	if raw := r.URL.Query().Get("subtotal"); raw != "" {
		var err error
		if subtotal, err = decimal.NewFromString(raw); err != nil {
			h.writeError(w, r, badRequest("subtotal: %v", err))
			return
		}
	}
	v, err := h.coupons.Verify(r.Context(), pathParam(r, "code"), subtotal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, *toCoupon(v))
}
