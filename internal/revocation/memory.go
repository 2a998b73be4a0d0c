package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache. Entries are lost on restart and are
// not shared between gateway instances.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	clock   Clock
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(c *MemoryCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *MemoryCache) Revoke(_ context.Context, fingerprint string, expiresAt time.Time) error {
	expiresAt = normalizeExpiry(expiresAt)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if !expiresAt.After(now) {
		return nil
	}
	if current, ok := c.entries[fingerprint]; ok && current.After(now) {
		return nil
	}
	c.entries[fingerprint] = expiresAt
	revocationsTotal.WithLabelValues(backendMemory).Inc()
	return nil
}

func (c *MemoryCache) IsRevoked(_ context.Context, fingerprint string) (bool, error) {
	start := time.Now()
	defer observeCheck(backendMemory, start)

	c.mu.RLock()
	expiresAt, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	return ok && c.clock().Before(expiresAt), nil
}

// Sweep holds the write lock for the whole pass, so a concurrent Revoke of
// the same fingerprint lands either before (and is swept only if already
// expired) or after.
func (c *MemoryCache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for fp, expiresAt := range c.entries {
		if !now.Before(expiresAt) {
			delete(c.entries, fp)
			removed++
		}
	}
	sweptTotal.WithLabelValues(backendMemory).Add(float64(removed))
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
