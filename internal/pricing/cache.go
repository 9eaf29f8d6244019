// Package pricing resolves the credit cost of a story request. Prices live in
// the story_pricing table and are held in an explicitly owned cache.
package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storyteller/internal/domain"
)

// DefaultTTL is used when a cache is built with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// Loader reads the full price list.
type Loader interface {
	ListPricing(ctx context.Context) (map[domain.Length]int, error)
}

// Cache holds the price list for ttl after each load. It is injected where
// prices are needed; nothing in the process shares it implicitly.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	prices  map[domain.Length]int
	fetched time.Time
}

func NewCache(loader Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{loader: loader, ttl: ttl, now: time.Now}
}

// Cost returns the credit cost of a story of the given length.
func (c *Cache) Cost(ctx context.Context, length domain.Length) (int, error) {
	if err := c.ensure(ctx); err != nil {
		return 0, err
	}
	c.mu.RLock()
	cost, ok := c.prices[length]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: no price for length %q", domain.ErrInvalidRequest, length)
	}
	return cost, nil
}

// Invalidate drops the cached list; the next Cost call reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.prices = nil
	c.fetched = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) ensure(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.prices != nil && c.now().Sub(c.fetched) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) error {
	prices, err := c.loader.ListPricing(ctx)
	if err != nil {
		return fmt.Errorf("load pricing: %w", err)
	}
	if len(prices) == 0 {
		return fmt.Errorf("load pricing: price list is empty")
	}
	c.mu.Lock()
	c.prices = prices
	c.fetched = c.now()
	c.mu.Unlock()
	return nil
}
