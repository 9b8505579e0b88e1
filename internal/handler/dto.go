package handler

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/offer-checkout/internal/domain/cart"
	"github.com/xenking/offer-checkout/internal/domain/checkout"
	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/product"
	"github.com/xenking/offer-checkout/internal/domain/schedule"
)

const dateLayout = time.DateOnly

func parsePaymentType(s string, required bool) (pricing.PaymentType, error) {
	if strings.TrimSpace(s) == "" && !required {
		return "", nil
	}
	return pricing.ParsePaymentType(s)
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, badRequest("%s: expected YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    int
	Message string
}

func (r errorResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldInt(e, "code", r.Code)
	fieldStr(e, "message", r.Message)
	e.ObjEnd()
}

// Products.

type priceResponse struct {
	ID          string
	Modifier    string
	PaymentType string
	Amount      jx.Num
}

func (r priceResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "id", r.ID)
	fieldOptStr(e, "modifier", r.Modifier)
	fieldStr(e, "paymentType", r.PaymentType)
	fieldNum(e, "amount", r.Amount)
	e.ObjEnd()
}

type productResponse struct {
	ID          string
	Name        string
	Description string
	Category    string
	Prices      []priceResponse
}

func (r productResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "id", r.ID)
	fieldStr(e, "name", r.Name)
	fieldOptStr(e, "description", r.Description)
	fieldOptStr(e, "category", r.Category)
	encodeArr(e, "prices", r.Prices)
	e.ObjEnd()
}

type productsResponse []productResponse

func (r productsResponse) Encode(e *jx.Encoder) {
	e.ArrStart()
	for _, p := range r {
		p.Encode(e)
	}
	e.ArrEnd()
}

func toProduct(p product.Product) productResponse {
	out := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Prices:      make([]priceResponse, len(p.Prices)),
	}
	for i, pr := range p.Prices {
		out.Prices[i] = priceResponse{
			ID:          pr.ID,
			Modifier:    pr.Modifier,
			PaymentType: string(pr.PaymentType),
			Amount:      money(pr.Amount),
		}
	}
	return out
}

// Pricing.

type quoteRequest struct {
	Subtotal       decimal.Decimal
	PaymentType    string
	Method         string
	Installments   int
	Frequency      string
	DurationMonths int
	CouponCode     string
	Composition    string
}

func (r *quoteRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"subtotal":       decimalField(&r.Subtotal),
		"paymentType":    stringField(&r.PaymentType),
		"method":         stringField(&r.Method),
		"installments":   intField(&r.Installments),
		"frequency":      stringField(&r.Frequency),
		"durationMonths": intField(&r.DurationMonths),
		"couponCode":     stringField(&r.CouponCode),
		"composition":    stringField(&r.Composition),
	})
}

type contributionResponse struct {
	Source string
	Label  string
	Rate   jx.Num
}

func (r contributionResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "source", r.Source)
	fieldStr(e, "label", r.Label)
	fieldNum(e, "rate", r.Rate)
	e.ObjEnd()
}

type installmentResponse struct {
	Count          int
	MonthlyRate    jx.Num
	PerInstallment jx.Num
	FirstAmount    jx.Num
	TotalPaid      jx.Num
	Interest       jx.Num
	Description    string
}

func (r installmentResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldInt(e, "count", r.Count)
	fieldNum(e, "monthlyRate", r.MonthlyRate)
	fieldNum(e, "perInstallment", r.PerInstallment)
	fieldNum(e, "firstAmount", r.FirstAmount)
	fieldNum(e, "totalPaid", r.TotalPaid)
	fieldNum(e, "interest", r.Interest)
	fieldStr(e, "description", r.Description)
	e.ObjEnd()
}

func toInstallment(i pricing.Installment) installmentResponse {
	return installmentResponse{
		Count:          i.Count,
		MonthlyRate:    fraction(i.MonthlyRate),
		PerInstallment: money(i.PerInstallment),
		FirstAmount:    money(i.FirstAmount()),
		TotalPaid:      money(i.TotalPaid),
		Interest:       money(i.Interest),
		Description:    i.Description,
	}
}

type frequencyResponse struct {
	ID           string
	IntervalDays int
	Discount     jx.Num
}

func (r frequencyResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "id", r.ID)
	fieldInt(e, "intervalDays", r.IntervalDays)
	fieldNum(e, "discount", r.Discount)
	e.ObjEnd()
}

type quoteResponse struct {
	PaymentType       string
	Method            string
	Composition       string
	Subtotal          jx.Num
	Contributions     []contributionResponse
	EffectiveDiscount jx.Num
	Capped            bool
	DiscountAmount    jx.Num
	DiscountedAmount  jx.Num
	Fee               jx.Num
	FeeAmount         jx.Num
	Final             jx.Num
	Frequency         *frequencyResponse
	Installments      installmentResponse
	Coupon            *couponResponse
}

func (r quoteResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "paymentType", r.PaymentType)
	fieldStr(e, "method", r.Method)
	fieldStr(e, "composition", r.Composition)
	fieldNum(e, "subtotal", r.Subtotal)
	encodeArr(e, "contributions", r.Contributions)
	fieldNum(e, "effectiveDiscount", r.EffectiveDiscount)
	if r.Capped {
		fieldBool(e, "capped", true)
	}
	fieldNum(e, "discountAmount", r.DiscountAmount)
	fieldNum(e, "discountedAmount", r.DiscountedAmount)
	fieldNum(e, "fee", r.Fee)
	fieldNum(e, "feeAmount", r.FeeAmount)
	fieldNum(e, "final", r.Final)
	if r.Frequency != nil {
		e.FieldStart("frequency")
		r.Frequency.Encode(e)
	}
	e.FieldStart("installments")
	r.Installments.Encode(e)
	if r.Coupon != nil {
		e.FieldStart("coupon")
		r.Coupon.Encode(e)
	}
	e.ObjEnd()
}

func toQuote(q pricing.Quote) quoteResponse {
	out := quoteResponse{
		PaymentType:       string(q.PaymentType),
		Method:            string(q.Method),
		Composition:       string(q.Composition),
		Subtotal:          money(q.Subtotal),
		Contributions:     make([]contributionResponse, len(q.Contributions)),
		EffectiveDiscount: fraction(q.EffectiveDiscount),
		Capped:            q.Capped,
		DiscountAmount:    money(q.DiscountAmount),
		DiscountedAmount:  money(q.DiscountedAmount),
		Fee:               fraction(q.Fee),
		FeeAmount:         money(q.FeeAmount),
		Final:             money(q.Final),
		Installments:      toInstallment(q.Installments),
	}
	for i, c := range q.Contributions {
		out.Contributions[i] = contributionResponse{Source: string(c.Source), Label: c.Label, Rate: fraction(c.Rate)}
	}
	if f := q.Frequency; f != nil {
		out.Frequency = &frequencyResponse{ID: string(f.ID), IntervalDays: f.IntervalDays, Discount: fraction(f.Discount)}
	}
	return out
}

type installmentsResponse struct {
	Total   jx.Num
	Options []installmentResponse
}

func (r installmentsResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldNum(e, "total", r.Total)
	encodeArr(e, "options", r.Options)
	e.ObjEnd()
}

type scheduleRequest struct {
	Start                  string
	FirstPaymentOffsetDays *int
	PaymentType            string
	IntervalDays           int
	Count                  int
	BillingDay             int
	Amount                 decimal.Decimal
	FirstAmount            *decimal.Decimal
	// Total splits a ONE_TIME total into Count installments in place of
	// Amount and FirstAmount.
	Total *decimal.Decimal
	// Limit folds entries beyond it in the response. Zero shows all.
	Limit int
}

func (r *scheduleRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"start":                  stringField(&r.Start),
		"firstPaymentOffsetDays": optIntField(&r.FirstPaymentOffsetDays),
		"paymentType":            stringField(&r.PaymentType),
		"intervalDays":           intField(&r.IntervalDays),
		"count":                  intField(&r.Count),
		"billingDay":             intField(&r.BillingDay),
		"amount":                 decimalField(&r.Amount),
		"firstAmount":            optDecimalField(&r.FirstAmount),
		"total":                  optDecimalField(&r.Total),
		"limit":                  intField(&r.Limit),
	})
}

func (r scheduleRequest) params() (schedule.Params, error) {
	start, err := parseDate("start", r.Start)
	if err != nil {
		return schedule.Params{}, err
	}
	pt, err := pricing.ParsePaymentType(r.PaymentType)
	if err != nil {
		return schedule.Params{}, err
	}
	p := schedule.Params{
		Start:        start,
		Type:         pt,
		IntervalDays: r.IntervalDays,
		Count:        r.Count,
		BillingDay:   r.BillingDay,
		Amount:       r.Amount,
		FirstAmount:  r.FirstAmount,
	}
	if r.Total != nil {
		if pt != pricing.PaymentOneTime {
			return schedule.Params{}, badRequest("total: only ONE_TIME plans split a total")
		}
		inst, err := pricing.CalculateInstallments(*r.Total, r.Count)
		if err != nil {
			return schedule.Params{}, err
		}
		p = schedule.ForInstallment(start, inst)
	}
	if r.FirstPaymentOffsetDays != nil {
		p.FirstPaymentOffsetDays = *r.FirstPaymentOffsetDays
		if p.FirstPaymentOffsetDays == 0 {
			p.FirstPaymentOffsetDays = -1
		}
	}
	return p, nil
}

type entryResponse struct {
	Number int
	Date   string
	Amount jx.Num
	Label  string
}

func (r entryResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldInt(e, "number", r.Number)
	fieldStr(e, "date", r.Date)
	fieldNum(e, "amount", r.Amount)
	fieldStr(e, "label", r.Label)
	e.ObjEnd()
}

type scheduleResponse struct {
	Entries []entryResponse
	Hidden  int
	Total   jx.Num
}

func (r scheduleResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	encodeArr(e, "entries", r.Entries)
	fieldInt(e, "hidden", r.Hidden)
	fieldNum(e, "total", r.Total)
	e.ObjEnd()
}

func toSchedule(all []schedule.Entry, limit int) scheduleResponse {
	shown, hidden := schedule.Visible(all, limit)
	out := scheduleResponse{Entries: make([]entryResponse, len(shown)), Hidden: hidden}
	total := decimal.Zero
	for _, e := range all {
		total = total.Add(e.Amount)
	}
	for i, e := range shown {
		out.Entries[i] = entryResponse{Number: e.Number, Date: e.Date.Format(dateLayout), Amount: money(e.Amount), Label: e.Label}
	}
	out.Total = money(total)
	return out
}

// Coupons.

type couponResponse struct {
	Code         string
	Accepted     bool
	Rate         jx.Num
	DiscountType string
	Message      string
}

func (r couponResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "code", r.Code)
	fieldBool(e, "accepted", r.Accepted)
	fieldNum(e, "rate", r.Rate)
	fieldOptStr(e, "discountType", r.DiscountType)
	fieldOptStr(e, "message", r.Message)
	e.ObjEnd()
}

func toCoupon(v coupon.Verification) *couponResponse {
	out := &couponResponse{
		Code:     v.Code,
		Accepted: v.Accepted(),
		Rate:     fraction(v.Rate),
		Message:  v.Message(),
	}
	if v.Rule != nil {
		out.DiscountType = string(v.Rule.DiscountType)
	}
	return out
}

// Cart.

type openCartRequest struct {
	Name   string
	LeadID string
}

func (r *openCartRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"name":   stringField(&r.Name),
		"leadId": stringField(&r.LeadID),
	})
}

type addItemRequest struct {
	ProductID   string
	Modifier    string
	PaymentType string
	Quantity    int
}

func (r *addItemRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"productId":   stringField(&r.ProductID),
		"modifier":    stringField(&r.Modifier),
		"paymentType": stringField(&r.PaymentType),
		"quantity":    intField(&r.Quantity),
	})
}

type quantityRequest struct {
	Quantity *int
}

func (r *quantityRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"quantity": optIntField(&r.Quantity),
	})
}

type applyCouponRequest struct {
	Code        string
	PaymentType string
}

func (r *applyCouponRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"code":        stringField(&r.Code),
		"paymentType": stringField(&r.PaymentType),
	})
}

type installmentRequest struct {
	Installments int
}

func (r *installmentRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"installments": intField(&r.Installments),
	})
}

type durationRequest struct {
	Months int
}

func (r *durationRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"months": intField(&r.Months),
	})
}

type datesRequest struct {
	PaymentType      string
	ProjectStartDate string
	PaymentStartDate string
	PayDay           int
}

func (r *datesRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"paymentType":      stringField(&r.PaymentType),
		"projectStartDate": stringField(&r.ProjectStartDate),
		"paymentStartDate": stringField(&r.PaymentStartDate),
		"payDay":           intField(&r.PayDay),
	})
}

type selectionRequest struct {
	PaymentType  string
	Method       string
	Installments int
	Frequency    string
	Composition  string
}

func (r *selectionRequest) Decode(d *jx.Decoder) error {
	return decodeObject(d, map[string]fieldFunc{
		"paymentType":  stringField(&r.PaymentType),
		"method":       stringField(&r.Method),
		"installments": intField(&r.Installments),
		"frequency":    stringField(&r.Frequency),
		"composition":  stringField(&r.Composition),
	})
}

func (r selectionRequest) selection() cart.Selection {
	return cart.Selection{
		Method:       pricing.PaymentMethod(r.Method),
		Installments: r.Installments,
		Frequency:    pricing.FrequencyID(r.Frequency),
		Composition:  pricing.Composition(r.Composition),
	}
}

type itemResponse struct {
	ID          string
	OfferID     string
	ProductID   string
	PriceID     string
	Name        string
	Description string
	Modifier    string
	PaymentType string
	Quantity    int
	UnitPrice   jx.Num
	Total       jx.Num
}

func (r itemResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "id", r.ID)
	fieldStr(e, "offerId", r.OfferID)
	fieldStr(e, "productId", r.ProductID)
	fieldStr(e, "priceId", r.PriceID)
	fieldStr(e, "name", r.Name)
	fieldOptStr(e, "description", r.Description)
	fieldOptStr(e, "modifier", r.Modifier)
	fieldStr(e, "paymentType", r.PaymentType)
	fieldInt(e, "quantity", r.Quantity)
	fieldNum(e, "unitPrice", r.UnitPrice)
	fieldNum(e, "total", r.Total)
	e.ObjEnd()
}

type offerResponse struct {
	ID               string
	Type             string
	Subtotal         jx.Num
	Total            jx.Num
	CouponCode       string
	InstallmentID    string
	DurationID       string
	ProjectStartDate string
	PaymentStartDate string
	PayDay           int
}

func (r offerResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "id", r.ID)
	fieldStr(e, "type", r.Type)
	fieldNum(e, "subtotal", r.Subtotal)
	fieldNum(e, "total", r.Total)
	fieldOptStr(e, "couponCode", r.CouponCode)
	fieldOptStr(e, "installmentId", r.InstallmentID)
	fieldOptStr(e, "durationId", r.DurationID)
	fieldOptStr(e, "projectStartDate", r.ProjectStartDate)
	fieldOptStr(e, "paymentStartDate", r.PaymentStartDate)
	if r.PayDay != 0 {
		fieldInt(e, "payDay", r.PayDay)
	}
	e.ObjEnd()
}

type cartResponse struct {
	SessionID string
	Status    string
	Closed    bool
	Items     []itemResponse
	Offers    []offerResponse
	Subtotal  jx.Num
	Total     jx.Num
}

func (r cartResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "sessionId", r.SessionID)
	fieldStr(e, "status", r.Status)
	fieldBool(e, "closed", r.Closed)
	encodeArr(e, "items", r.Items)
	encodeArr(e, "offers", r.Offers)
	fieldNum(e, "subtotal", r.Subtotal)
	fieldNum(e, "total", r.Total)
	e.ObjEnd()
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func toCart(c cart.Cart) cartResponse {
	out := cartResponse{
		SessionID: c.SessionID,
		Status:    c.Status,
		Closed:    c.Closed,
		Items:     make([]itemResponse, len(c.Items)),
		Offers:    make([]offerResponse, len(c.Offers)),
		Subtotal:  money(c.Subtotal),
		Total:     money(c.Total),
	}
	for i, it := range c.Items {
		out.Items[i] = itemResponse{
			ID:          it.OfferItemID,
			OfferID:     it.OfferID,
			ProductID:   it.ProductID,
			PriceID:     it.PriceID,
			Name:        it.Name,
			Description: it.Description,
			Modifier:    it.Modifier,
			PaymentType: string(it.PaymentType),
			Quantity:    it.Quantity,
			UnitPrice:   money(it.UnitPrice),
			Total:       money(it.Total),
		}
	}
	for i, o := range c.Offers {
		out.Offers[i] = offerResponse{
			ID:               o.ID,
			Type:             string(o.Type),
			Subtotal:         money(o.Subtotal),
			Total:            money(o.Total),
			CouponCode:       o.CouponCode,
			InstallmentID:    o.InstallmentID,
			DurationID:       o.DurationID,
			ProjectStartDate: formatDate(o.ProjectStartDate),
			PaymentStartDate: formatDate(o.PaymentStartDate),
			PayDay:           o.PayDay,
		}
	}
	return out
}

// couponCartResponse carries the cart and one verification per offer the
// coupon was tried on. Coupon is the accepted one when any offer took it.
type couponCartResponse struct {
	Cart    cartResponse
	Coupon  *couponResponse
	Results []offerCouponResponse
}

func (r couponCartResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("cart")
	r.Cart.Encode(e)
	e.FieldStart("coupon")
	r.Coupon.Encode(e)
	encodeArr(e, "results", r.Results)
	e.ObjEnd()
}

type offerCouponResponse struct {
	PaymentType string
	Coupon      *couponResponse
}

func (r offerCouponResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "paymentType", r.PaymentType)
	e.FieldStart("coupon")
	r.Coupon.Encode(e)
	e.ObjEnd()
}

func toCouponCart(res cart.CouponResult) couponCartResponse {
	out := couponCartResponse{
		Cart:    toCart(res.Cart),
		Coupon:  toCoupon(res.Verification),
		Results: make([]offerCouponResponse, len(res.Offers)),
	}
	for i, o := range res.Offers {
		out.Results[i] = offerCouponResponse{PaymentType: string(o.PaymentType), Coupon: toCoupon(o.Verification)}
	}
	return out
}

type checkoutItemResponse struct {
	ProductID   string
	PriceID     string
	Modifier    string
	PaymentType string
	Quantity    int
	UnitPrice   jx.Num
}

func (r checkoutItemResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "productId", r.ProductID)
	fieldStr(e, "priceId", r.PriceID)
	fieldOptStr(e, "modifier", r.Modifier)
	fieldStr(e, "paymentType", r.PaymentType)
	fieldInt(e, "quantity", r.Quantity)
	fieldNum(e, "unitPrice", r.UnitPrice)
	e.ObjEnd()
}

type checkoutResponse struct {
	ID           string
	SessionID    string
	Items        []checkoutItemResponse
	Subtotal     jx.Num
	Discount     jx.Num
	Total        jx.Num
	CouponCode   string
	Method       string
	Installments int
	CreatedAt    time.Time
}

func (r checkoutResponse) Encode(e *jx.Encoder) {
	e.ObjStart()
	fieldStr(e, "id", r.ID)
	fieldStr(e, "sessionId", r.SessionID)
	encodeArr(e, "items", r.Items)
	fieldNum(e, "subtotal", r.Subtotal)
	fieldNum(e, "discount", r.Discount)
	fieldNum(e, "total", r.Total)
	fieldOptStr(e, "couponCode", r.CouponCode)
	fieldStr(e, "method", r.Method)
	fieldInt(e, "installments", r.Installments)
	fieldStr(e, "createdAt", r.CreatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

func toCheckout(r *checkout.Record) checkoutResponse {
	out := checkoutResponse{
		ID:           r.ID,
		SessionID:    r.SessionID,
		Items:        make([]checkoutItemResponse, len(r.Items)),
		Subtotal:     money(r.Subtotal),
		Discount:     money(r.Discount),
		Total:        money(r.Total),
		CouponCode:   r.CouponCode,
		Method:       string(r.Method),
		Installments: r.Installments,
		CreatedAt:    r.CreatedAt,
	}
	for i, it := range r.Items {
		out.Items[i] = checkoutItemResponse{
			ProductID:   it.ProductID,
			PriceID:     it.PriceID,
			Modifier:    it.Modifier,
			PaymentType: string(it.PaymentType),
			Quantity:    it.Quantity,
			UnitPrice:   money(it.UnitPrice),
		}
	}
	return out
}
