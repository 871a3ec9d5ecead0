package stock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

const (
	DefaultLookupTTL  = 30 * time.Second
	DefaultLookupSize = 1024
)

// LookupCache caches barcode/SKU resolutions keyed by "code:branch".
//
// Entries are stored by value. Concurrent misses for one key share a single
// load. Every invalidation bumps a generation counter; a load that started
// before an invalidation never writes its result back.
type LookupCache struct {
	entries *expirable.LRU[string, entity.StockEntry]
	group   singleflight.Group
	gen     atomic.Uint64
}

// NewLookupCache creates a bounded TTL cache. Non-positive arguments fall back
// to the defaults.
func NewLookupCache(size int, ttl time.Duration) *LookupCache {
	if size <= 0 {
		size = DefaultLookupSize
	}
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &LookupCache{
		entries: expirable.NewLRU[string, entity.StockEntry](size, nil, ttl),
	}
}

func lookupKey(code string, branchID id.ID) string {
	return code + ":" + branchID.String()
}

// Get returns the cached entry or loads it. hit reports whether the value came
// from the cache. Load errors are never cached.
func (c *LookupCache) Get(
	ctx context.Context,
	code string,
	branchID id.ID,
	load func(ctx context.Context) (*entity.StockEntry, error),
) (entry *entity.StockEntry, hit bool, err error) {
	key := lookupKey(code, branchID)
	if cached, ok := c.entries.Get(key); ok {
		return &cached, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		gen := c.gen.Load()
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.gen.Load() == gen {
			c.entries.Add(key, *loaded)
		}
		return *loaded, nil
	})
	if err != nil {
		return nil, false, err
	}
	loaded := v.(entity.StockEntry)
	return &loaded, false, nil
}

// Invalidate drops the given code for a branch.
func (c *LookupCache) Invalidate(code string, branchID id.ID) {
	if code == "" {
		return
	}
	key := lookupKey(code, branchID)
	c.gen.Add(1)
	c.group.Forget(key)
	c.entries.Remove(key)
}

// InvalidateEntry drops every code that resolves to the entry.
func (c *LookupCache) InvalidateEntry(e *entity.StockEntry) {
	c.Invalidate(e.Barcode, e.BranchID)
	c.Invalidate(e.SKU, e.BranchID)
}

// Len returns the number of cached resolutions.
func (c *LookupCache) Len() int { return c.entries.Len() }

// Purge drops everything.
func (c *LookupCache) Purge() {
	c.gen.Add(1)
	c.entries.Purge()
}
