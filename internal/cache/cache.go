package cache

import (
	"strings"
	"sync"
	"time"
)

// entry is a single cached value with its storage time and TTL.
type entry struct {
	data     any
	storedAt time.Time
	ttl      time.Duration
}

// expiredAt reports whether the entry is logically absent at now.
func (e entry) expiredAt(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

// Cache is a keyed TTL store used to avoid redundant reads of
// slowly-changing resources. Expiry is enforced lazily at read time;
// there is no background sweep. One Cache instance is created per
// session and injected into whatever issues network calls.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the value stored under key, or (nil, false) when the key
// is absent or its TTL has elapsed. An expired entry is deleted on read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expiredAt(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

// Set stores data under key with a per-call TTL. A ttl of zero or less
// means the entry never expires. A newer Set on the same key supersedes
// the prior entry.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		data:     data,
		storedAt: c.now(),
		ttl:      ttl,
	}
}

// Invalidate deletes every key containing pattern as a substring.
// With an empty pattern it clears the entire cache. Callers invalidate
// after mutations so subsequent reads are forced fresh.
func (c *Cache) Invalidate(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		c.entries = make(map[string]entry)
		return
	}
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
