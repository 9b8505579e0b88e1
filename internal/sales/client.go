package sales

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
	dateLayout     = "2006-01-02"
)

// Config describes how to reach the sales API.
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Token   string        `json:"token" yaml:"token"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" default:"10s"`
}

// Client issues sales API calls over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ API = (*Client)(nil)

// NewClient constructs a Client. A nil httpClient is replaced with one
// instrumented by otelhttp.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("sales api base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrap(err, "parse sales api base url")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{baseURL: base, token: cfg.Token, http: httpClient}, nil
}

// CreateSession opens a session with its two empty offers.
func (c *Client) CreateSession(ctx context.Context, name, leadID string) (*Session, error) {
	body := createSessionRequest{Name: name}
	if leadID != "" {
		body.LeadID = &leadID
	}
	var out sessionPayload
	if err := c.do(ctx, http.MethodPost, body, &out, "sessions"); err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	s := out.toSession()
	return &s, nil
}

// CloseSession finalizes the session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) (*Session, error) {
	var out sessionPayload
	if err := c.do(ctx, http.MethodPost, nil, &out, "sessions", sessionID, "close"); err != nil {
		return nil, errors.Wrap(err, "close session")
	}
	s := out.toSession()
	return &s, nil
}

// GetOffer fetches the current state of an offer.
func (c *Client) GetOffer(ctx context.Context, offerID string) (*Offer, error) {
	return c.offerCall(ctx, "get offer", http.MethodGet, nil, "offers", offerID)
}

// AddOfferItem adds quantity units of a product price to the offer.
func (c *Client) AddOfferItem(ctx context.Context, offerID, productID, priceID string, quantity int) (*Offer, error) {
	body := addItemRequest{ProductID: productID, PriceID: priceID, Quantity: quantity}
	return c.offerCall(ctx, "add offer item", http.MethodPost, body, "offers", offerID, "items")
}

// RemoveOfferItem removes a line from the offer.
func (c *Client) RemoveOfferItem(ctx context.Context, offerID, offerItemID string) (*Offer, error) {
	return c.offerCall(ctx, "remove offer item", http.MethodDelete, nil, "offers", offerID, "items", offerItemID)
}

// SetOfferDuration selects the contract duration of a recurrent offer.
func (c *Client) SetOfferDuration(ctx context.Context, offerID, durationID string) (*Offer, error) {
	body := map[string]string{"offerDurationId": durationID}
	return c.offerCall(ctx, "set offer duration", http.MethodPut, body, "offers", offerID, "duration")
}

// ApplyCoupon attaches a coupon code to the offer.
func (c *Client) ApplyCoupon(ctx context.Context, offerID, couponCode string) (*Offer, error) {
	body := map[string]string{"couponCode": couponCode}
	return c.offerCall(ctx, "apply coupon", http.MethodPut, body, "offers", offerID, "coupon")
}

// SetOfferInstallment selects the installment plan of the offer.
func (c *Client) SetOfferInstallment(ctx context.Context, offerID, installmentID string) (*Offer, error) {
	body := map[string]string{"installmentId": installmentID}
	return c.offerCall(ctx, "set offer installment", http.MethodPut, body, "offers", offerID, "installment")
}

// UpdateOfferDates sets the project and payment start dates.
func (c *Client) UpdateOfferDates(ctx context.Context, offerID string, dates Dates) (*Offer, error) {
	body := datesRequest{
		ProjectStartDate: dates.ProjectStart.Format(dateLayout),
		PaymentStartDate: dates.PaymentStart.Format(dateLayout),
		PayDay:           dates.PayDay,
	}
	return c.offerCall(ctx, "update offer dates", http.MethodPut, body, "offers", offerID, "dates")
}

// VerifyCoupon looks a code up. Unknown codes yield nil, nil.
func (c *Client) VerifyCoupon(ctx context.Context, code string) (*Coupon, error) {
	var out *couponPayload
	err := c.do(ctx, http.MethodGet, nil, &out, "coupons", code)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return nil, nil
		}
		return nil, errors.Wrap(err, "verify coupon")
	}
	if out == nil || out.Code == "" {
		return nil, nil
	}
	return &Coupon{
		ID:       out.ID,
		Code:     out.Code,
		Discount: out.Discount,
		Type:     out.Type,
	}, nil
}

func (c *Client) offerCall(ctx context.Context, op, method string, in any, elem ...string) (*Offer, error) {
	var out offerPayload
	if err := c.do(ctx, method, in, &out, elem...); err != nil {
		return nil, errors.Wrap(err, op)
	}
	o, err := out.toOffer()
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return o, nil
}

// Ping checks that the sales API answers on path. Client errors still prove
// the API is reachable; only transport failures and 5xx responses fail.
func (c *Client) Ping(ctx context.Context, path string) error {
	elem := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	err := c.do(ctx, http.MethodGet, nil, nil, elem...)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return nil
	}
	return err
}

// do performs a single request. Each elem is escaped as one path segment.
// Failures are either *APIError or wrap
// ErrTransport.
func (c *Client) do(ctx context.Context, method string, in, out any, elem ...string) error {
	escaped := make([]string, len(elem))
	for i, e := range elem {
		if e == "" || e == "." || e == ".." {
			return errors.Errorf("invalid path segment %q", e)
		}
		escaped[i] = url.PathEscape(e)
	}
	endpoint, err := url.JoinPath(c.baseURL, escaped...)
	if err != nil {
		return errors.Wrap(err, "build url")
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrTransport, "%s %s: %v", method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrapf(ErrTransport, "read response: %v", err)
	}

	if apiErr := parseError(resp.StatusCode, body); apiErr != nil {
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(ErrTransport, "decode response: %v", err)
	}
	return nil
}

type createSessionRequest struct {
	Name   string  `json:"name"`
	LeadID *string `json:"leadId,omitempty"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	PriceID   string `json:"priceId"`
	Quantity  int    `json:"quantity"`
}

type datesRequest struct {
	ProjectStartDate string `json:"projectStartDate"`
	PaymentStartDate string `json:"paymentStartDate"`
	PayDay           int    `json:"payDay"`
}

type sessionPayload struct {
	ID               string `json:"id"`
	OneTimeOfferID   string `json:"oneTimeOfferId"`
	RecurrentOfferID string `json:"recurrentOfferId"`
	Status           string `json:"status"`
}

func (p sessionPayload) toSession() Session {
	return Session{
		ID:               p.ID,
		OneTimeOfferID:   p.OneTimeOfferID,
		RecurrentOfferID: p.RecurrentOfferID,
		Status:           p.Status,
	}
}

type offerItemPayload struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	PriceID     string          `json:"priceId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
}

type offerPayload struct {
	ID               string             `json:"id"`
	Type             string             `json:"type"`
	OfferItems       []offerItemPayload `json:"offerItems"`
	SubtotalPrice    decimal.Decimal    `json:"subtotalPrice"`
	TotalPrice       decimal.Decimal    `json:"totalPrice"`
	CouponID         string             `json:"couponId"`
	InstallmentID    string             `json:"installmentId"`
	OfferDurationID  string             `json:"offerDurationId"`
	ProjectStartDate string             `json:"projectStartDate"`
	PaymentStartDate string             `json:"paymentStartDate"`
	PayDay           int                `json:"payDay"`
}

func (p offerPayload) toOffer() (*Offer, error) {
	pt, err := pricing.ParsePaymentType(p.Type)
	if err != nil {
		return nil, errors.Wrapf(ErrTransport, "offer %s: %v", p.ID, err)
	}
	o := &Offer{
		ID:              p.ID,
		Type:            pt,
		Items:           make([]OfferItem, 0, len(p.OfferItems)),
		SubtotalPrice:   p.SubtotalPrice,
		TotalPrice:      p.TotalPrice,
		CouponID:        p.CouponID,
		InstallmentID:   p.InstallmentID,
		OfferDurationID: p.OfferDurationID,
		PayDay:          p.PayDay,
	}
	if o.ProjectStartDate, err = parseDate(p.ProjectStartDate); err != nil {
		return nil, errors.Wrapf(ErrTransport, "offer %s project start: %v", p.ID, err)
	}
	if o.PaymentStartDate, err = parseDate(p.PaymentStartDate); err != nil {
		return nil, errors.Wrapf(ErrTransport, "offer %s payment start: %v", p.ID, err)
	}
	for _, it := range p.OfferItems {
		o.Items = append(o.Items, OfferItem(it))
	}
	return o, nil
}

// parseDate accepts plain dates and RFC 3339 timestamps.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("invalid date %q", s)
}

type couponPayload struct {
	ID       string          `json:"id"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Type     string          `json:"type"`
}
