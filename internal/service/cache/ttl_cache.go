package cache

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how many inserts happen between expiry sweeps.
const sweepEvery = 256

type entry struct {
	exp time.Time
}

// TTLCache is a process-local Deduper.
type TTLCache struct {
	mu      sync.Mutex
	m       map[string]entry
	inserts int
	now     func() time.Time
}

func NewTTLCache() *TTLCache {
	return NewTTLCacheWithClock(time.Now)
}

func NewTTLCacheWithClock(now func() time.Time) *TTLCache {
	return &TTLCache{m: make(map[string]entry), now: now}
}

func (c *TTLCache) MarkSeen(_ context.Context, id string, ttl time.Duration) (bool, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.m[id]; ok && (e.exp.IsZero() || now.Before(e.exp)) {
		return false, nil
	}

	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.m[id] = entry{exp: exp}

	c.inserts++
	if c.inserts >= sweepEvery {
		c.inserts = 0
		c.sweep(now)
	}
	return true, nil
}

// Len reports the number of tracked ids, expired ones included until swept.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache) sweep(now time.Time) {
	for k, e := range c.m {
		if !e.exp.IsZero() && !now.Before(e.exp) {
			delete(c.m, k)
		}
	}
}
