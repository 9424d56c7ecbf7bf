package ironlicensing

import (
	"sync"
	"time"
)

// cacheEntry is one cached successful licensing result.
type cacheEntry struct {
	result   LicenseResult
	storedAt time.Time
	hitCount int
}

// resultCache retains the last successful validation per license key so
// Validate can skip the network while a result is fresh, and can fall back
// to a recent result when the service is unreachable. Server rejections
// are authoritative and evict the entry.
type resultCache struct {
	mu        sync.RWMutex
	entries   map[string]cacheEntry
	freshFor  time.Duration
	graceFor  time.Duration
	hitCount  int64
	missCount int64
}

func newResultCache(freshFor, graceFor time.Duration) *resultCache {
	return &resultCache{
		entries:  make(map[string]cacheEntry),
		freshFor: freshFor,
		graceFor: graceFor,
	}
}

// store retains a successful result. Entries older than the grace window
// are pruned on the way in so the map cannot grow without bound.
func (c *resultCache) store(licenseKey string, result LicenseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.graceFor {
			delete(c.entries, key)
		}
	}

	result.License = result.License.clone()
	c.entries[licenseKey] = cacheEntry{result: result, storedAt: now}
}

// fresh returns the cached result while it is younger than the validation
// interval.
func (c *resultCache) fresh(licenseKey string) (LicenseResult, bool) {
	return c.lookup(licenseKey, c.freshFor)
}

// fallback returns the cached result while it is younger than the grace
// window. Used only when the service is unreachable.
func (c *resultCache) fallback(licenseKey string) (LicenseResult, bool) {
	return c.lookup(licenseKey, c.graceFor)
}

func (c *resultCache) lookup(licenseKey string, maxAge time.Duration) (LicenseResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[licenseKey]
	if !ok || time.Since(entry.storedAt) > maxAge {
		c.missCount++
		return LicenseResult{}, false
	}

	entry.hitCount++
	c.entries[licenseKey] = entry
	c.hitCount++

	result := entry.result
	result.License = result.License.clone()
	result.Cached = true
	return result, true
}

func (c *resultCache) evict(licenseKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, licenseKey)
}

// stats reports cache effectiveness counters.
func (c *resultCache) stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}
	return map[string]any{
		"entries":    len(c.entries),
		"hit_count":  c.hitCount,
		"miss_count": c.missCount,
		"hit_ratio":  ratio,
	}
}
