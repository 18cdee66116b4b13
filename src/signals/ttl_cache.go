package signals

import (
	"sync"
	"time"
)

// ttlCache remembers keys for a fixed window. Expired entries are swept on
// every Reserve call.
type ttlCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	expiry map[string]time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, expiry: make(map[string]time.Time)}
}

// Reserve claims key at now. It returns false when the key is still live.
func (c *ttlCache) Reserve(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, exp := range c.expiry {
		if !now.Before(exp) {
			delete(c.expiry, k)
		}
	}
	if _, live := c.expiry[key]; live {
		return false
	}
	if c.ttl > 0 {
		c.expiry[key] = now.Add(c.ttl)
	}
	return true
}

// Forget drops key so the next Reserve succeeds.
func (c *ttlCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expiry, key)
}

func (c *ttlCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expiry)
}
