package cache

import (
	"time"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL is the lifetime of a cached entry.
	DefaultTTL = 300 * time.Second
	// DefaultSize is the maximum number of cached entries.
	DefaultSize = 100_000
)

var (
	cacheHits          = metrics.GetOrCreateCounter("rkv_cache_hits_total")
	cacheMisses        = metrics.GetOrCreateCounter("rkv_cache_misses_total")
	cacheInvalidations = metrics.GetOrCreateCounter("rkv_cache_invalidations_total")
)

// ICache is a side cache for entries keyed by entry key.
// It is populated on read misses only and cleared (never updated) on writes.
type ICache interface {
	// Get returns the cached entry for key if present and not expired.
	Get(key string) (entry store.Entry, ok bool)
	// Set caches entry for ttl. A ttl <= 0 uses the default TTL of the cache.
	Set(key string, entry store.Entry, ttl time.Duration)
	// Invalidate removes key from the cache.
	Invalidate(key string)
	// InvalidateMany removes all keys from the cache.
	InvalidateMany(keys []string)
	// Len returns the number of cached entries (including expired ones not yet evicted).
	Len() int
}

// Options configures the LRU cache. Zero values use the defaults.
type Options struct {
	Size int
	TTL  time.Duration
	// Now is the clock used for per-entry expiry.
	Now func() time.Time
}

type item struct {
	entry     store.Entry
	expiresAt time.Time
}

type lruCache struct {
	lru *expirable.LRU[string, item]
	ttl time.Duration
	now func() time.Time
}

// NewLRUCache creates a size bounded cache with TTL based expiry.
func NewLRUCache(opts Options) ICache {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &lruCache{
		lru: expirable.NewLRU[string, item](opts.Size, nil, opts.TTL),
		ttl: opts.TTL,
		now: opts.Now,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ICache)
// --------------------------------------------------------------------------

func (c *lruCache) Get(key string) (store.Entry, bool) {
	it, ok := c.lru.Get(key)
	if !ok {
		cacheMisses.Inc()
		return store.Entry{}, false
	}
	// the lru only knows a single ttl, shorter per entry ttls are checked here
	if !c.now().Before(it.expiresAt) {
		c.lru.Remove(key)
		cacheMisses.Inc()
		return store.Entry{}, false
	}
	cacheHits.Inc()
	return it.entry, true
}

func (c *lruCache) Set(key string, entry store.Entry, ttl time.Duration) {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	c.lru.Add(key, item{entry: entry, expiresAt: c.now().Add(ttl)})
}

func (c *lruCache) Invalidate(key string) {
	c.lru.Remove(key)
	cacheInvalidations.Inc()
}

func (c *lruCache) InvalidateMany(keys []string) {
	for _, key := range keys {
		c.lru.Remove(key)
	}
	cacheInvalidations.Add(len(keys))
}

func (c *lruCache) Len() int {
	return c.lru.Len()
}

// --------------------------------------------------------------------------
// Noop Cache
// --------------------------------------------------------------------------

// NewNoopCache returns a cache that never stores anything.
func NewNoopCache() ICache {
	return noopCache{}
}

type noopCache struct{}

func (noopCache) Get(string) (store.Entry, bool) { return store.Entry{}, false }
func (noopCache) Set(string, store.Entry, time.Duration) {}
func (noopCache) Invalidate(string) {}
func (noopCache) InvalidateMany([]string) {}
func (noopCache) Len() int { return 0 }
