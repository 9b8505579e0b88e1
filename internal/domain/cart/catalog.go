package cart

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/offer-checkout/internal/domain/product"
)

// catalogCache memoizes products read from the repository.
type catalogCache struct {
	repo product.Repository

	mu   sync.RWMutex
	byID map[string]product.Product
}

func newCatalogCache(repo product.Repository) *catalogCache {
	return &catalogCache{repo: repo, byID: make(map[string]product.Product)}
}

// get returns a single product, loading it on a cache miss.
func (c *catalogCache) get(ctx context.Context, id string) (product.Product, error) {
	c.mu.RLock()
	p, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	loaded, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "get product %s", id)
	}
	c.put(*loaded)
	return *loaded, nil
}

// resolve returns the products for ids, loading missing ones in one batch.
// Products unknown to the repository are omitted.
func (c *catalogCache) resolve(ctx context.Context, ids []string) (map[string]product.Product, error) {
	out := make(map[string]product.Product, len(ids))
	var missing []string

	c.mu.RLock()
	for _, id := range ids {
		if p, ok := c.byID[id]; ok {
			out[id] = p
			continue
		}
		missing = append(missing, id)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.repo.GetByIDs(ctx, dedupe(missing))
	if err != nil {
		return out, errors.Wrap(err, "get products")
	}
	for _, p := range loaded {
		c.put(p)
		out[p.ID] = p
	}
	return out, nil
}

func (c *catalogCache) put(p product.Product) {
	c.mu.Lock()
	c.byID[p.ID] = p
	c.mu.Unlock()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
