package scanner

import (
	"sync"
	"time"

	"autotrader/src/model"
)

type cachedBars struct {
	bars      []model.Candle
	fetchedAt time.Time
}

// chartCache keeps the last bars fetched per stock. Stale entries are kept
// so the scanner can fall back to them while the governor is limited.
type chartCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedBars
}

func newChartCache(ttl time.Duration) *chartCache {
	return &chartCache{ttl: ttl, entries: make(map[string]cachedBars)}
}

// Get returns the cached bars and whether they are still within the TTL.
func (c *chartCache) Get(stockCode string, now time.Time) ([]model.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[stockCode]
	if !ok {
		return nil, false
	}
	return e.bars, now.Sub(e.fetchedAt) < c.ttl
}

func (c *chartCache) Put(stockCode string, bars []model.Candle, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[stockCode] = cachedBars{bars: bars, fetchedAt: now}
}

// Prune drops entries for stocks no longer watched.
func (c *chartCache) Prune(keep map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for code := range c.entries {
		if _, ok := keep[code]; !ok {
			delete(c.entries, code)
		}
	}
}

func (c *chartCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
