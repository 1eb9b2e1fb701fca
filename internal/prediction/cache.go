package prediction

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// CacheKey identifies a prediction by race, champion version, engine
// configuration generation and the market prices it was priced against.
type CacheKey struct {
	Segment     models.Segment
	RaceID      string
	Version     int64
	ConfigGen   uint64
	PriceDigest uint64
}

// String returns string representation of cache key
func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%d|%x", k.Segment, k.RaceID, k.Version, k.ConfigGen, k.PriceDigest)
}

// PriceDigest hashes a price set in a stable order
func PriceDigest(prices models.MarketPrices) uint64 {
	lines := make([]string, 0)
	for market, byHorse := range prices {
		for horse, price := range byHorse {
			lines = append(lines, string(market)+":"+horse+":"+price.String())
		}
	}
	sort.Strings(lines)
	h := fnv.New64a()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Cache holds recent PredictionRecords. Records are immutable so the same
// pointer is handed to every caller.
type Cache struct {
	cache     *cache.Cache
	ttl       time.Duration
	maxSize   int
	hitCount  atomic.Uint64
	missCount atomic.Uint64
}

// NewCache creates a prediction cache
func NewCache(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		cache:   cache.New(ttl, ttl*2),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves a cached prediction
func (c *Cache) Get(key CacheKey) (*models.PredictionRecord, bool) {
	if v, found := c.cache.Get(key.String()); found {
		if rec, ok := v.(*models.PredictionRecord); ok {
			c.hitCount.Add(1)
			c.updateMetrics()
			return rec, true
		}
	}
	c.missCount.Add(1)
	c.updateMetrics()
	return nil, false
}

// Set stores a prediction
func (c *Cache) Set(key CacheKey, rec *models.PredictionRecord) {
	if c.cache.ItemCount() >= c.maxSize {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			return
		}
	}
	c.cache.Set(key.String(), rec, c.ttl)
}

// Invalidate removes every entry of a segment, used after a champion swap
func (c *Cache) Invalidate(segment models.Segment) int {
	prefix := string(segment) + "|"
	removed := 0
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
			removed++
		}
	}
	return removed
}

// Clear flushes the entire cache
func (c *Cache) Clear() {
	c.cache.Flush()
	c.hitCount.Store(0)
	c.missCount.Store(0)
}

// Stats returns cache statistics
func (c *Cache) Stats() (hits, misses uint64, ratio float64) {
	hits = c.hitCount.Load()
	misses = c.missCount.Load()
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of items in cache
func (c *Cache) ItemCount() int {
	return c.cache.ItemCount()
}

func (c *Cache) updateMetrics() {
	_, _, ratio := c.Stats()
	metrics.PredictionCacheHitRate.Set(ratio)
}
