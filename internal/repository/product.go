package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, description, category
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, description, category
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, description, category
		FROM products WHERE id = ANY($1) ORDER BY id`

	getPricesByProductIDsSQL = `SELECT id, product_id, modifier, payment_type, amount
		FROM product_prices WHERE product_id = ANY($1)
		ORDER BY product_id, payment_type DESC, amount, id`

	upsertProductSQL = `INSERT INTO products (id, name, description, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category`

	deletePricesSQL = `DELETE FROM product_prices WHERE product_id = $1`

	insertPriceSQL = `INSERT INTO product_prices (id, product_id, modifier, payment_type, amount)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return r.withPrices(ctx, products)
}

// GetByID returns a single product with its prices.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	withPrices, err := r.withPrices(ctx, []product.Product{p})
	if err != nil {
		return nil, err
	}
	return &withPrices[0], nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return r.withPrices(ctx, products)
}

// Upsert stores p and replaces its prices in one transaction.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Category); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deletePricesSQL, p.ID); err != nil {
			return err
		}
		if len(p.Prices) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, pr := range p.Prices {
			batch.Queue(insertPriceSQL, pr.ID, p.ID, pr.Modifier, string(pr.PaymentType), pr.Amount)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Wrapf(err, "upserting product %q", p.ID)
	}
	return nil
}

// withPrices loads the prices of products in a single query.
func (r *ProductRepository) withPrices(ctx context.Context, products []product.Product) ([]product.Product, error) {
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, getPricesByProductIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting product prices")
	}
	prices, err := pgx.CollectRows(rows, scanPrice)
	if err != nil {
		return nil, errors.Wrap(err, "getting product prices")
	}

	for _, pr := range prices {
		i := index[pr.productID]
		products[i].Prices = append(products[i].Prices, pr.Price)
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category)
	return p, err
}

type priceRow struct {
	product.Price
	productID string
}

func scanPrice(row pgx.CollectableRow) (priceRow, error) {
	var (
		pr          priceRow
		paymentType string
	)
	err := row.Scan(&pr.ID, &pr.productID, &pr.Modifier, &paymentType, &pr.Amount)
	pr.PaymentType = pricing.PaymentType(paymentType)
	return pr, err
}
