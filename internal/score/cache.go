package score

import (
	"sync"
	"time"

	"github.com/a-marczewski/netsel/internal/scan"
)

// TTLCache holds known network quality scores for a bounded time. The TTL
// keeps scores fresh without this package owning any refresh policy; an
// expired entry simply makes the network eligible for a new score request.
//
// Thread-safe for concurrent access.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	score     int
	timestamp time.Time
}

// NewTTLCache creates a score cache. Pass ttl=0 for entries that never
// expire.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// IsScored reports whether a fresh score is known for the identity.
func (c *TTLCache) IsScored(id scan.NetworkID) bool {
	_, ok := c.Score(id)
	return ok
}

// Score returns the cached score for the identity, if fresh.
func (c *TTLCache) Score(id scan.NetworkID) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id.Key()]
	if !ok {
		return 0, false
	}
	if c.ttl > 0 && time.Since(entry.timestamp) > c.ttl {
		return 0, false
	}
	return entry.score, true
}

// Put stores a score for the identity.
func (c *TTLCache) Put(id scan.NetworkID, score int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id.Key()] = &cacheEntry{
		score:     score,
		timestamp: time.Now(),
	}
}

// Len returns the number of entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
