// Package traffic caches per-tile average speed samples from a live traffic
// provider, bounded by a TTL and a per-tick lookup budget.
package traffic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pursuit-ops/isochroned/internal/geo"
	"github.com/pursuit-ops/isochroned/pkg/core"
)

// DefaultTTL is how long a sample is considered fresh.
const DefaultTTL = 5 * time.Minute

// Provider returns the current average speed in km/h at a point.
type Provider interface {
	Speed(ctx context.Context, p core.LngLat) (float64, error)
}

// Sample is one measured average speed for a tile.
type Sample struct {
	SpeedKmh   float64   `json:"speedKmh"`
	MeasuredAt time.Time `json:"measuredAt"`
}

// Samples maps tile keys to their last sample. It is JSON-serializable so
// it can travel inside persisted strategy state.
type Samples map[string]Sample

type store struct {
	mu      sync.Mutex
	samples Samples
}

// Cache is a tile-keyed sample cache in front of a Provider.
type Cache struct {
	provider Provider
	budget   *Budget
	ttl      time.Duration
	logger   *slog.Logger
	store    *store
}

// NewCache creates a cache. provider may be nil, in which case only
// previously cached samples are ever returned.
func NewCache(provider Provider, budget *Budget, ttl time.Duration, logger *slog.Logger) *Cache {
	if budget == nil {
		budget = NewBudget(0)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		provider: provider,
		budget:   budget,
		ttl:      ttl,
		logger:   logger,
		store:    &store{samples: make(Samples)},
	}
}

// Nested returns a cache with its own sample map that shares this cache's
// provider, TTL and lookup budget.
func (c *Cache) Nested(samples Samples) *Cache {
	if samples == nil {
		samples = make(Samples)
	}
	return &Cache{
		provider: c.provider,
		budget:   c.budget,
		ttl:      c.ttl,
		logger:   c.logger,
		store:    &store{samples: samples},
	}
}

// WithBudget returns a view of this cache that shares its samples but
// draws lookups from b.
func (c *Cache) WithBudget(b *Budget) *Cache {
	return &Cache{
		provider: c.provider,
		budget:   b,
		ttl:      c.ttl,
		logger:   c.logger,
		store:    c.store,
	}
}

// Budget returns the lookup budget shared by this cache.
func (c *Cache) Budget() *Budget {
	return c.budget
}

// ResetBudget restores the per-tick lookup allowance.
func (c *Cache) ResetBudget() {
	c.budget.Reset()
}

// Get returns the sample for tile.
//
// A sample measured within the TTL is returned as-is. Otherwise one provider
// lookup at the tile centroid is made if the budget allows it. When the
// budget is exhausted or the lookup fails, the last cached sample (even if
// stale) is returned. Provider errors never propagate.
func (c *Cache) Get(ctx context.Context, tile geo.Tile, now time.Time) (Sample, bool) {
	key := tile.Key()

	c.store.mu.Lock()
	cached, ok := c.store.samples[key]
	c.store.mu.Unlock()

	if ok && now.Sub(cached.MeasuredAt) < c.ttl {
		return cached, true
	}

	if c.provider == nil || !c.budget.Take() {
		return cached, ok
	}

	speed, err := c.provider.Speed(ctx, tile.Centroid())
	if err != nil {
		c.logger.DebugContext(ctx, "traffic sample unavailable", "tile", key, "error", err)
		return cached, ok
	}

	sample := Sample{SpeedKmh: speed, MeasuredAt: now}
	c.store.mu.Lock()
	c.store.samples[key] = sample
	c.store.mu.Unlock()
	return sample, true
}

// Snapshot returns a copy of all cached samples.
func (c *Cache) Snapshot() Samples {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := make(Samples, len(c.store.samples))
	for k, v := range c.store.samples {
		out[k] = v
	}
	return out
}

// Len returns the number of cached samples.
func (c *Cache) Len() int {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return len(c.store.samples)
}
