package cache

import (
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/metrics"
)

const (
	DefaultListingCacheCapacity = 10000
	DefaultListingCacheTTL      = 5 * time.Minute
)

// ListingCache memoizes whether a collection address has active listings.
// Entries are keyed by normalized address and written only for probes that
// succeeded; a failed probe never lands here.
type ListingCache struct {
	lru   *LRU[string, model.CacheEntry]
	nowFn func() time.Time
}

// NewListingCache builds a cache. ttl <= 0 disables expiry.
func NewListingCache(capacity int, ttl time.Duration) *ListingCache {
	if capacity <= 0 {
		capacity = DefaultListingCacheCapacity
	}
	return &ListingCache{
		lru:   NewLRU[string, model.CacheEntry](capacity, ttl),
		nowFn: time.Now,
	}
}

func (c *ListingCache) Get(address string) (model.CacheEntry, bool) {
	entry, ok := c.lru.Get(model.NormalizeAddress(address))
	if ok {
		metrics.ListingCacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.ListingCacheLookups.WithLabelValues("miss").Inc()
	}
	return entry, ok
}

// Put records the result for address, replacing any earlier entry.
func (c *ListingCache) Put(address string, hasListings bool) {
	key := model.NormalizeAddress(address)
	c.lru.Put(key, model.CacheEntry{
		Address:     key,
		HasListings: hasListings,
		ResolvedAt:  c.nowFn(),
	})
}

// Invalidate forgets address so the next scan probes it again.
func (c *ListingCache) Invalidate(address string) bool {
	return c.lru.Delete(model.NormalizeAddress(address))
}

// Purge forgets every address.
func (c *ListingCache) Purge() int {
	metrics.ListingCachePurges.Inc()
	return c.lru.Purge()
}

func (c *ListingCache) Len() int {
	return c.lru.Len()
}
