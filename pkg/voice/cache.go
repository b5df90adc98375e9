package voice

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a cached response stays valid.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxSize is the default cache capacity.
	DefaultMaxSize = 100

	// evictionSlack is how far below capacity a full cache is trimmed.
	evictionSlack = 10
)

// CachedResponse is one cached answer.
type CachedResponse struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// ResponseCache maps normalized queries to answers. Entries expire after
// DefaultTTL; the size never exceeds the configured maximum.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]CachedResponse
	max     int
	ttl     time.Duration
	now     func() time.Time

	hits   uint64
	misses uint64
}

// CacheOption configures a ResponseCache.
type CacheOption func(*ResponseCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ResponseCache) { c.now = now }
}

// NewResponseCache creates a cache holding at most maxSize entries.
// maxSize <= 0 uses DefaultMaxSize.
func NewResponseCache(maxSize int, opts ...CacheOption) *ResponseCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &ResponseCache{
		entries: make(map[string]CachedResponse),
		max:     maxSize,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached text for key when it exists, has not expired and
// was stored with at least minConfidence. Expired entries are removed.
func (c *ResponseCache) Get(key string, minConfidence float64) (string, bool) {
	e, ok := c.Lookup(key, minConfidence)
	return e.Text, ok
}

// Lookup is Get returning the whole entry.
func (c *ResponseCache) Lookup(key string, minConfidence float64) (CachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return CachedResponse{}, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		c.misses++
		return CachedResponse{}, false
	}
	if e.Confidence < minConfidence {
		c.misses++
		return CachedResponse{}, false
	}
	c.hits++
	return e, true
}

// Set stores text under key. Replacing an existing key never evicts.
func (c *ResponseCache) Set(key, text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.purgeExpired()
		if len(c.entries) >= c.max {
			target := c.max - evictionSlack
			if target < 0 {
				target = 0
			}
			c.evictOldest(target)
		}
	}
	c.entries[key] = CachedResponse{Text: text, Timestamp: c.now(), Confidence: confidence}
}

// SetMaxSize changes the capacity, evicting right away when the cache is
// over the new limit. n <= 0 is ignored.
func (c *ResponseCache) SetMaxSize(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.max = n
	if len(c.entries) > n {
		c.purgeExpired()
		c.evictOldest(n)
	}
}

// MaxSize returns the capacity.
func (c *ResponseCache) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// Len returns the number of entries, expired ones included until they are
// touched or purged.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CachedResponse)
}

// CacheStats reports cache counters.
type CacheStats struct {
	Size   int    `json:"size"`
	Max    int    `json:"max"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns cache counters.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.entries), Max: c.max, Hits: c.hits, Misses: c.misses}
}

func (c *ResponseCache) expired(e CachedResponse) bool {
	return c.now().Sub(e.Timestamp) >= c.ttl
}

func (c *ResponseCache) purgeExpired() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

// evictOldest removes the oldest entries until at most target remain.
func (c *ResponseCache) evictOldest(target int) {
	excess := len(c.entries) - target
	if excess <= 0 {
		return
	}

	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	for _, a := range all[:excess] {
		delete(c.entries, a.key)
	}
}
