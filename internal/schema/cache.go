package schema

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached schema snapshot stays valid.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	tree      *tree
	createdAt time.Time
	expiresAt time.Time
}

// Cache holds one schema snapshot per connection id. Expiry is checked
// lazily on read; there is no background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache builds a cache with the given TTL; ttl <= 0 uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// get returns the live entry for connectionID. An expired entry is deleted
// and reported as a miss.
func (c *Cache) get(connectionID string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[connectionID]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, connectionID)
		return nil, false
	}
	return entry, true
}

func (c *Cache) put(connectionID string, t *tree) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := &cacheEntry{
		tree:      t,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.entries[connectionID] = entry
	return entry
}

// Evict drops the entry for connectionID if present.
func (c *Cache) Evict(connectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, connectionID)
}

// Len reports the number of live entries, counting expired ones out.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := c.now()
	for _, entry := range c.entries {
		if !now.After(entry.expiresAt) {
			n++
		}
	}
	return n
}
