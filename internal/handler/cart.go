package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/offer-checkout/internal/domain/cart"
	"github.com/xenking/offer-checkout/internal/sales"
)

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, status int, c cart.Cart, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toCart(c))
}

func (h *Handler) openCart(w http.ResponseWriter, r *http.Request) {
	var req openCartRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.Open(r.Context(), req.Name, req.LeadID)
	h.respondCart(w, r, http.StatusCreated, c, err)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), pathParam(r, "id"))
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) refreshCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Refresh(r.Context(), pathParam(r, "id"))
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pt, err := parsePaymentType(req.PaymentType, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.Add(r.Context(), pathParam(r, "id"), cart.AddRequest{
		ProductID:   req.ProductID,
		Modifier:    req.Modifier,
		PaymentType: pt,
		Quantity:    req.Quantity,
	})
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, r, badRequest("quantity is required"))
		return
	}
	c, err := h.carts.UpdateQuantity(r.Context(), pathParam(r, "id"), pathParam(r, "itemId"), *req.Quantity)
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Remove(r.Context(), pathParam(r, "id"), pathParam(r, "itemId"))
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), pathParam(r, "id"))
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pt, err := parsePaymentType(req.PaymentType, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.carts.ApplyCoupon(r.Context(), pathParam(r, "id"), pt, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponCart(res))
}

func (h *Handler) setInstallment(w http.ResponseWriter, r *http.Request) {
	var req installmentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.SetInstallment(r.Context(), pathParam(r, "id"), req.Installments)
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) setDuration(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.SetDuration(r.Context(), pathParam(r, "id"), req.Months)
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) updateDates(w http.ResponseWriter, r *http.Request) {
	var req datesRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pt, err := parsePaymentType(req.PaymentType, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	projectStart, err := parseDate("projectStartDate", req.ProjectStartDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	paymentStart, err := parseDate("paymentStartDate", req.PaymentStartDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.UpdateDates(r.Context(), pathParam(r, "id"), pt, sales.Dates{
		ProjectStart: projectStart,
		PaymentStart: paymentStart,
		PayDay:       req.PayDay,
	})
	h.respondCart(w, r, http.StatusOK, c, err)
}

func (h *Handler) quoteCart(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pt, err := parsePaymentType(req.PaymentType, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.carts.Quote(r.Context(), pathParam(r, "id"), pt, req.selection())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.countQuote(r.Context(), q)
	writeJSON(w, http.StatusOK, toQuote(q))
}

func (h *Handler) closeCart(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.carts.Close(r.Context(), pathParam(r, "id"), req.selection())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.checkouts.Add(r.Context(), 1, metric.WithAttributes(attribute.String("method", string(rec.Method))))
	fields := []zap.Field{
		zap.String("checkout_id", rec.ID),
		zap.String("total", rec.Total.StringFixed(2)),
	}
	if key, ok := APIKeyFromContext(r.Context()); ok {
		fields = append(fields, zap.String("api_key", key.Name))
	}
	zctx.From(r.Context()).Info("Checkout completed", fields...)
	writeJSON(w, http.StatusCreated, toCheckout(rec))
}
