package temporal

import (
	"strings"
	"sync"
	"time"

	"geomet-mapfile/internal/mapfile/interval"
)

const (
	PhaseCurrent = "current"
	PhaseFuture  = "future"
)

// CacheKey groups layers that share a model, a cadence and a run phase.
type CacheKey struct {
	Model  string
	Period string
	Phase  string
}

// KeyFor derives the cache key of an enumerable layer.
func KeyFor(layer string, e Enumerable) CacheKey {
	model := layer
	if i := strings.Index(layer, "."); i >= 0 {
		model = layer[:i]
	}

	phase := PhaseFuture
	if e.DefaultRun == interval.FormatTime(e.Extent.Start) {
		phase = PhaseCurrent
	}

	return CacheKey{Model: model, Period: e.Extent.Period.String(), Phase: phase}
}

type cacheEntry struct {
	extent    string
	nearest   time.Time
	intervals []time.Time
}

// Cache memoizes nearest-instant computations for the duration of one
// generation run. It is safe for concurrent use and must not outlive the run.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]cacheEntry
	hits    int
	misses  int
}

// NewCache returns an empty run cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]cacheEntry)}
}

// lookup only returns an entry computed from the same extent string, so two
// layers that collide on key but were ingested at different times never
// share a result.
func (c *Cache) lookup(key CacheKey, extent string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.extent != extent {
		c.misses++
		return cacheEntry{}, false
	}
	c.hits++
	return e, true
}

func (c *Cache) store(key CacheKey, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Len returns the number of memoized keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
