package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/offer-checkout/internal/domain/checkout"
)

const createCheckoutSQL = `INSERT INTO checkouts
	(id, session_id, items, subtotal, discount, total, coupon_code, method, installments, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
	ON CONFLICT (id) DO UPDATE SET
		items        = EXCLUDED.items,
		subtotal     = EXCLUDED.subtotal,
		discount     = EXCLUDED.discount,
		total        = EXCLUDED.total,
		coupon_code  = EXCLUDED.coupon_code,
		method       = EXCLUDED.method,
		installments = EXCLUDED.installments,
		created_at   = EXCLUDED.created_at
	WHERE checkouts.session_id = EXCLUDED.session_id`

var _ checkout.Repository = (*CheckoutRepository)(nil)

// CheckoutRepository implements checkout.Repository backed by PostgreSQL.
type CheckoutRepository struct {
	pool *pgxpool.Pool
}

// NewCheckoutRepository returns a CheckoutRepository that uses the given pool.
func NewCheckoutRepository(pool *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{pool: pool}
}

// Create persists a checkout, replacing an earlier write of the same ID so a
// retried close stays a single row. The items are serialized to JSON for
// storage in the JSONB column.
func (r *CheckoutRepository) Create(ctx context.Context, c *checkout.Record) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return errors.Wrap(err, "marshaling checkout items")
	}

	var createdAt any
	if !c.CreatedAt.IsZero() {
		createdAt = c.CreatedAt
	}

	_, err = r.pool.Exec(ctx, createCheckoutSQL,
		c.ID, c.SessionID, itemsJSON, c.Subtotal, c.Discount, c.Total,
		c.CouponCode, string(c.Method), int32(c.Installments), createdAt,
	)
	if err != nil {
		return errors.Wrapf(err, "creating checkout %q", c.ID)
	}

	return nil
}
