package cart

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/offer-checkout/internal/domain/checkout"
	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/product"
	"github.com/xenking/offer-checkout/internal/domain/schedule"
	"github.com/xenking/offer-checkout/internal/sales"
)

// Selection is the payment choice a cart is priced with.
type Selection struct {
	Method pricing.PaymentMethod
	// Installments overrides the installment stored on the one-time offer.
	Installments int
	Frequency    pricing.FrequencyID
	Composition  pricing.Composition
}

// AddRequest selects a product variant to add. An empty PaymentType picks
// the first price of the product matching Modifier.
type AddRequest struct {
	ProductID   string
	Modifier    string
	PaymentType pricing.PaymentType
	Quantity    int
}

// CouponResult is the outcome of applying a coupon code. Verification is
// the accepted outcome when any offer took the coupon, otherwise the last
// rejection. Offers holds the outcome of every offer the code was tried on.
type CouponResult struct {
	Cart         Cart
	Verification coupon.Verification
	Offers       []OfferCoupon
}

// OfferCoupon is the verification of a coupon against one offer.
type OfferCoupon struct {
	PaymentType  pricing.PaymentType
	Verification coupon.Verification
}

// Retention bounds how long sessions stay in memory.
type Retention struct {
	// Idle evicts open sessions unused for longer than this.
	Idle time.Duration
	// Closed evicts closed sessions this long after checkout.
	Closed time.Duration
}

// DefaultRetention is used by Run for zero fields.
var DefaultRetention = Retention{Idle: 2 * time.Hour, Closed: 15 * time.Minute}

// state is the local view of one session. mu serializes every call that
// reaches the sales API for the session.
type state struct {
	mu      sync.Mutex
	session sales.Session
	offers  map[pricing.PaymentType]*sales.Offer
	coupons map[pricing.PaymentType]coupon.Verification
	cart    Cart
	// selection is the last one a quote succeeded with.
	selection Selection

	// checkoutID is fixed by the first Close attempt so retries overwrite
	// the same record.
	checkoutID string
	closedAt   time.Time

	// touched collects the offers the running mutation wrote to.
	touched map[string]struct{}

	// lastUsed is the unix nano time of the last lookup.
	lastUsed atomic.Int64
}

func (st *state) offerList() []*sales.Offer {
	out := make([]*sales.Offer, 0, len(st.offers))
	for _, o := range st.offers {
		out = append(out, o)
	}
	return out
}

// apply records an offer returned by the API.
func (st *state) apply(o *sales.Offer) {
	if o != nil {
		st.offers[o.Type] = o
	}
}

func (st *state) findItem(offerItemID string) (*sales.Offer, sales.OfferItem, bool) {
	for _, o := range st.offers {
		for _, it := range o.Items {
			if it.ID == offerItemID {
				return o, it, true
			}
		}
	}
	return nil, sales.OfferItem{}, false
}

// Service runs cart operations against the sales API.
type Service struct {
	api       sales.API
	catalog   *catalogCache
	coupons   coupon.Verifier
	engine    *pricing.Engine
	checkouts checkout.Repository
	lg        *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*state
}

// NewService creates a cart Service with the required dependencies.
func NewService(
	api sales.API,
	products product.Repository,
	coupons coupon.Verifier,
	engine *pricing.Engine,
	checkouts checkout.Repository,
	lg *zap.Logger,
) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		api:       api,
		catalog:   newCatalogCache(products),
		coupons:   coupons,
		engine:    engine,
		checkouts: checkouts,
		lg:        lg,
		sessions:  make(map[string]*state),
	}
}

// Open creates a sales session and loads both of its offers.
func (s *Service) Open(ctx context.Context, name, leadID string) (Cart, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Cart{}, ErrNameRequired
	}

	sess, err := s.api.CreateSession(ctx, name, strings.TrimSpace(leadID))
	if err != nil {
		return Cart{}, err
	}

	st := &state{
		session: *sess,
		offers:  make(map[pricing.PaymentType]*sales.Offer, 2),
		coupons: make(map[pricing.PaymentType]coupon.Verification),
	}
	st.lastUsed.Store(time.Now().UnixNano())
	for _, id := range []string{sess.RecurrentOfferID, sess.OneTimeOfferID} {
		if id == "" {
			continue
		}
		o, err := s.api.GetOffer(ctx, id)
		if err != nil {
			return Cart{}, errors.Wrapf(err, "load offer %s", id)
		}
		st.apply(o)
	}
	s.project(ctx, st)

	s.mu.Lock()
	s.sessions[sess.ID] = st
	s.mu.Unlock()

	s.lg.Info("Cart opened", zap.String("session_id", sess.ID))
	return st.cart, nil
}

// Get returns the last synchronized cart of the session.
func (s *Service) Get(_ context.Context, sessionID string) (Cart, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return Cart{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cart, nil
}

// Refresh reloads every offer of the session from the API.
func (s *Service) Refresh(ctx context.Context, sessionID string) (Cart, error) {
	return s.mutate(ctx, sessionID, false, func(ctx context.Context, st *state) error {
		for _, o := range st.offerList() {
			fresh, err := s.api.GetOffer(ctx, o.ID)
			if err != nil {
				return err
			}
			st.apply(fresh)
		}
		return nil
	})
}

// Add puts a product variant in the offer matching its payment type.
func (s *Service) Add(ctx context.Context, sessionID string, req AddRequest) (Cart, error) {
	if req.Quantity <= 0 {
		return Cart{}, ErrInvalidQuantity
	}
	p, err := s.catalog.get(ctx, req.ProductID)
	if err != nil {
		return Cart{}, err
	}
	price, ok := resolvePrice(p, req.PaymentType, req.Modifier)
	if !ok {
		return Cart{}, &PriceNotFoundError{ProductID: req.ProductID, Modifier: req.Modifier}
	}

	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		offerID := st.session.OfferID(price.PaymentType)
		if offerID == "" {
			return errors.Errorf("session has no %s offer", price.PaymentType)
		}
		st.touched[offerID] = struct{}{}
		o, err := s.api.AddOfferItem(ctx, offerID, p.ID, price.ID, req.Quantity)
		if err != nil {
			return err
		}
		st.apply(o)
		return nil
	})
}

func resolvePrice(p product.Product, pt pricing.PaymentType, modifier string) (product.Price, bool) {
	if pt != "" {
		parsed, err := pricing.ParsePaymentType(string(pt))
		if err != nil {
			return product.Price{}, false
		}
		return p.PriceFor(parsed, modifier)
	}
	for _, candidate := range []pricing.PaymentType{pricing.PaymentRecurrent, pricing.PaymentOneTime} {
		if price, ok := p.PriceFor(candidate, modifier); ok {
			return price, true
		}
	}
	return product.Price{}, false
}

// Remove deletes a line from its offer.
func (s *Service) Remove(ctx context.Context, sessionID, offerItemID string) (Cart, error) {
	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		o, _, ok := st.findItem(offerItemID)
		if !ok {
			return ErrItemNotFound
		}
		st.touched[o.ID] = struct{}{}
		updated, err := s.api.RemoveOfferItem(ctx, o.ID, offerItemID)
		if err != nil {
			return err
		}
		st.apply(updated)
		return nil
	})
}

// UpdateQuantity replaces a line with the same variant at quantity. A zero
// quantity removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, offerItemID string, quantity int) (Cart, error) {
	if quantity < 0 {
		return Cart{}, ErrInvalidQuantity
	}
	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		o, item, ok := st.findItem(offerItemID)
		if !ok {
			return ErrItemNotFound
		}
		if item.Quantity == quantity {
			return nil
		}
		st.touched[o.ID] = struct{}{}

		updated, err := s.api.RemoveOfferItem(ctx, o.ID, offerItemID)
		if err != nil {
			return err
		}
		st.apply(updated)
		if quantity == 0 {
			return nil
		}

		updated, err = s.api.AddOfferItem(ctx, o.ID, item.ProductID, item.PriceID, quantity)
		if err != nil {
			return err
		}
		st.apply(updated)
		return nil
	})
}

// Clear removes every line of both offers.
func (s *Service) Clear(ctx context.Context, sessionID string) (Cart, error) {
	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		for _, o := range st.offerList() {
			for _, it := range o.Items {
				st.touched[o.ID] = struct{}{}
				updated, err := s.api.RemoveOfferItem(ctx, o.ID, it.ID)
				if err != nil {
					return err
				}
				st.apply(updated)
			}
		}
		return nil
	})
}

// ApplyCoupon verifies code against the offer subtotal and attaches it to
// the offer when accepted. An empty pt applies it to every offer. A rejected
// coupon is not an error: the cart is returned unchanged with the reason.
func (s *Service) ApplyCoupon(ctx context.Context, sessionID string, pt pricing.PaymentType, code string) (CouponResult, error) {
	var result CouponResult
	c, err := s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		targets, err := st.targets(pt)
		if err != nil {
			return err
		}
		accepted := false
		for _, o := range targets {
			v, err := s.coupons.Verify(ctx, code, o.SubtotalPrice)
			if err != nil {
				return err
			}
			result.Offers = append(result.Offers, OfferCoupon{PaymentType: o.Type, Verification: v})
			if !accepted {
				result.Verification = v
			}
			if !v.Accepted() {
				continue
			}
			accepted = true

			st.touched[o.ID] = struct{}{}
			updated, err := s.api.ApplyCoupon(ctx, o.ID, v.Code)
			if err != nil {
				return err
			}
			st.apply(updated)
			st.coupons[o.Type] = v
		}
		return nil
	})
	result.Cart = c
	return result, err
}

// SetInstallment selects the installment plan of the one-time offer.
func (s *Service) SetInstallment(ctx context.Context, sessionID string, installments int) (Cart, error) {
	if _, err := pricing.PlanFor(installments); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		offerID := st.session.OneTimeOfferID
		if offerID == "" {
			return errors.Wrap(pricing.ErrInstallmentsNotAllowed, "session has no one-time offer")
		}
		st.touched[offerID] = struct{}{}
		o, err := s.api.SetOfferInstallment(ctx, offerID, strconv.Itoa(installments))
		if err != nil {
			return err
		}
		st.apply(o)
		return nil
	})
}

// SetDuration selects the contract duration, in months, of the recurrent
// offer. Only durations of the pricing catalog are accepted.
func (s *Service) SetDuration(ctx context.Context, sessionID string, months int) (Cart, error) {
	if !s.knownDuration(months) {
		return Cart{}, errors.Wrapf(ErrInvalidDuration, "%d months", months)
	}
	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		offerID := st.session.RecurrentOfferID
		if offerID == "" {
			return errors.New("session has no recurrent offer")
		}
		st.touched[offerID] = struct{}{}
		o, err := s.api.SetOfferDuration(ctx, offerID, strconv.Itoa(months))
		if err != nil {
			return err
		}
		st.apply(o)
		return nil
	})
}

func (s *Service) knownDuration(months int) bool {
	for _, t := range s.engine.Catalog().Durations {
		if t.Months == months {
			return true
		}
	}
	return false
}

// UpdateDates sets the project and payment start dates of the offer of type
// pt, or of every offer when pt is empty.
func (s *Service) UpdateDates(ctx context.Context, sessionID string, pt pricing.PaymentType, dates sales.Dates) (Cart, error) {
	if dates.ProjectStart.IsZero() || dates.PaymentStart.IsZero() {
		return Cart{}, errors.Wrap(ErrInvalidDates, "start dates required")
	}
	if dates.PaymentStart.Before(dates.ProjectStart) {
		return Cart{}, errors.Wrap(ErrInvalidDates, "payments cannot start before the project")
	}
	if !schedule.ValidBillingDay(dates.PayDay) {
		return Cart{}, errors.Wrapf(schedule.ErrInvalidBillingDay, "day %d", dates.PayDay)
	}
	return s.mutate(ctx, sessionID, true, func(ctx context.Context, st *state) error {
		targets, err := st.targets(pt)
		if err != nil {
			return err
		}
		for _, o := range targets {
			st.touched[o.ID] = struct{}{}
			updated, err := s.api.UpdateOfferDates(ctx, o.ID, dates)
			if err != nil {
				return err
			}
			st.apply(updated)
		}
		return nil
	})
}

func (st *state) targets(pt pricing.PaymentType) ([]*sales.Offer, error) {
	if pt == "" {
		return orderedOffers(st.offers), nil
	}
	pt, err := pricing.ParsePaymentType(string(pt))
	if err != nil {
		return nil, err
	}
	o, ok := st.offers[pt]
	if !ok {
		return nil, errors.Errorf("session has no %s offer", pt)
	}
	return []*sales.Offer{o}, nil
}

// Quote prices the offer of type pt with sel.
func (s *Service) Quote(_ context.Context, sessionID string, pt pricing.PaymentType, sel Selection) (pricing.Quote, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return pricing.Quote{}, err
	}
	pt, err = pricing.ParsePaymentType(string(pt))
	if err != nil {
		return pricing.Quote{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	o, ok := st.offers[pt]
	if !ok {
		return pricing.Quote{}, errors.Errorf("session has no %s offer", pt)
	}
	q, err := s.quote(st, o, sel)
	if err != nil {
		return pricing.Quote{}, err
	}
	st.selection = sel
	return q, nil
}

func (s *Service) quote(st *state, o *sales.Offer, sel Selection) (pricing.Quote, error) {
	subtotal := offerSubtotal(o)
	req := pricing.QuoteRequest{
		Subtotal:    subtotal,
		PaymentType: o.Type,
		Method:      sel.Method,
		Frequency:   sel.Frequency,
		Composition: sel.Composition,
	}
	switch o.Type {
	case pricing.PaymentOneTime:
		// Installments split the one-time offer only; recurrent charges are
		// always single payments.
		req.Installments = sel.Installments
		if req.Installments == 0 {
			// The stored plan only applies to methods that can be split.
			if m, err := pricing.ParseMethod(string(sel.Method)); err == nil && m.AllowsInstallments() {
				req.Installments = atoi(o.InstallmentID)
			}
		}
	case pricing.PaymentRecurrent:
		req.DurationMonths = atoi(o.OfferDurationID)
	}
	if v, ok := st.coupons[o.Type]; ok && v.Accepted() {
		// Recompute against the current subtotal; items may have changed.
		if rate, err := coupon.Rate(v.Rule, subtotal); err == nil {
			req.CouponRate = rate
			req.CouponLabel = v.Code
		}
	}
	return s.engine.Quote(req)
}

func offerSubtotal(o *sales.Offer) decimal.Decimal {
	if o.SubtotalPrice.IsPositive() {
		return o.SubtotalPrice
	}
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Close prices every non-empty offer, stores the checkout record, closes the
// sales session and redeems the applied coupon. A sel without a method falls
// back to the selection of the last successful Quote.
//
// The record is written before the session is closed and keeps its ID across
// attempts, so a Close retried after a storage or API failure overwrites the
// same record instead of losing or duplicating it.
func (s *Service) Close(ctx context.Context, sessionID string, sel Selection) (*checkout.Record, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.cart.Closed {
		return nil, ErrSessionClosed
	}
	if sel.Method == "" {
		sel = st.selection
	}

	var (
		quotes     []pricing.Quote
		items      []checkout.Item
		couponCode string
	)
	for _, o := range orderedOffers(st.offers) {
		if len(o.Items) == 0 {
			continue
		}
		q, err := s.quote(st, o, sel)
		if err != nil {
			return nil, errors.Wrapf(err, "quote %s offer", o.Type)
		}
		quotes = append(quotes, q)
		if hasCoupon(q) {
			couponCode = st.coupons[o.Type].Code
		}
	}
	for _, it := range st.cart.Items {
		items = append(items, checkout.Item{
			ProductID:   it.ProductID,
			PriceID:     it.PriceID,
			Modifier:    it.Modifier,
			PaymentType: it.PaymentType,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}

	record, err := checkout.New(st.session.ID, items, couponCode, quotes...)
	if err != nil {
		return nil, err
	}
	if st.checkoutID == "" {
		st.checkoutID = record.ID
	}
	record.ID = st.checkoutID

	record.CreatedAt = time.Now().UTC()
	if err := s.checkouts.Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, "create checkout")
	}

	closed, err := s.api.CloseSession(ctx, st.session.ID)
	if err != nil {
		s.lg.Warn("Close session failed after checkout was stored",
			zap.String("session_id", st.session.ID),
			zap.String("checkout_id", record.ID),
			zap.Error(err),
		)
		return nil, err
	}
	st.session = *closed
	if st.session.Status == "" {
		st.session.Status = sales.SessionClosed
	}
	s.project(ctx, st)
	st.cart.Closed = true
	st.closedAt = time.Now()

	if couponCode != "" {
		if err := s.coupons.Redeem(ctx, couponCode); err != nil {
			s.lg.Warn("Redeem coupon failed",
				zap.String("session_id", st.session.ID),
				zap.String("coupon", couponCode),
				zap.Error(err),
			)
		}
	}

	s.lg.Info("Checkout closed",
		zap.String("session_id", st.session.ID),
		zap.String("checkout_id", record.ID),
		zap.String("total", record.Total.StringFixed(2)),
	)
	return record, nil
}

func hasCoupon(q pricing.Quote) bool {
	for _, c := range q.Contributions {
		if c.Source == pricing.SourceCoupon {
			return true
		}
	}
	return false
}

func orderedOffers(offers map[pricing.PaymentType]*sales.Offer) []*sales.Offer {
	out := make([]*sales.Offer, 0, 2)
	for _, pt := range []pricing.PaymentType{pricing.PaymentRecurrent, pricing.PaymentOneTime} {
		if o, ok := offers[pt]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (s *Service) lookup(sessionID string) (*state, error) {
	s.mu.RLock()
	st, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	st.lastUsed.Store(time.Now().UnixNano())
	return st, nil
}

// Run evicts expired sessions every minute until ctx is done.
func (s *Service) Run(ctx context.Context, r Retention) error {
	if r.Idle <= 0 {
		r.Idle = DefaultRetention.Idle
	}
	if r.Closed <= 0 {
		r.Closed = DefaultRetention.Closed
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := s.evict(now, r); n > 0 {
				s.lg.Debug("Evicted sessions", zap.Int("count", n))
			}
		}
	}
}

// evict drops closed sessions past r.Closed and open ones idle for longer
// than r.Idle. Sessions busy with a call are kept for the next sweep.
func (s *Service) evict(now time.Time, r Retention) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, st := range s.sessions {
		if !st.mu.TryLock() {
			continue
		}
		var expired bool
		if st.cart.Closed {
			expired = now.Sub(st.closedAt) > r.Closed
		} else {
			expired = now.Sub(time.Unix(0, st.lastUsed.Load())) > r.Idle
		}
		st.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// mutate runs fn under the session lock and reprojects the cart. When fn
// fails, the previous offers are restored and the touched offers are
// reloaded from the API on a best-effort basis.
func (s *Service) mutate(ctx context.Context, sessionID string, write bool, fn func(ctx context.Context, st *state) error) (Cart, error) {
	st, err := s.lookup(sessionID)
	if err != nil {
		return Cart{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if write && st.cart.Closed {
		return st.cart, ErrSessionClosed
	}

	prevOffers := make(map[pricing.PaymentType]*sales.Offer, len(st.offers))
	for k, v := range st.offers {
		prevOffers[k] = v
	}
	prevCoupons := make(map[pricing.PaymentType]coupon.Verification, len(st.coupons))
	for k, v := range st.coupons {
		prevCoupons[k] = v
	}
	st.touched = make(map[string]struct{})

	if err := fn(ctx, st); err != nil {
		st.offers = prevOffers
		st.coupons = prevCoupons
		s.resync(ctx, st)
		s.project(ctx, st)
		return st.cart, err
	}

	s.project(ctx, st)
	return st.cart, nil
}

// resync reloads the offers touched by a failed mutation. Failures keep the
// restored snapshot.
func (s *Service) resync(ctx context.Context, st *state) {
	for id := range st.touched {
		o, err := s.api.GetOffer(ctx, id)
		if err != nil {
			s.lg.Warn("Resync offer failed",
				zap.String("session_id", st.session.ID),
				zap.String("offer_id", id),
				zap.Error(err),
			)
			continue
		}
		st.apply(o)
	}
}

// project rebuilds st.cart from the current offers.
func (s *Service) project(ctx context.Context, st *state) {
	var ids []string
	for _, o := range st.offers {
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
	}
	catalog, err := s.catalog.resolve(ctx, ids)
	if err != nil {
		s.lg.Warn("Catalog enrichment failed",
			zap.String("session_id", st.session.ID),
			zap.Error(err),
		)
	}

	st.cart = Project(st.session, st.offerList(), catalog)
	for i := range st.cart.Offers {
		o := &st.cart.Offers[i]
		if v, ok := st.coupons[o.Type]; ok {
			o.CouponCode = v.Code
		}
	}
}
