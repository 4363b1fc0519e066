package application

import (
	"context"
	"sync"
	"time"
)

// CachedFeatureGate memoises capability answers for a short time so a burst
// of bookings does not query the plan service for every request. Errors are
// never cached.
type CachedFeatureGate struct {
	inner      FeatureGate
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]featureCacheEntry
}

type featureCacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// NewCachedFeatureGate wraps inner with a TTL cache.
func NewCachedFeatureGate(inner FeatureGate, ttl time.Duration, maxEntries int, now func() time.Time) *CachedFeatureGate {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &CachedFeatureGate{
		inner:      inner,
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]featureCacheEntry),
	}
}

// CanUseBookingFee answers from the cache or asks the wrapped gate.
func (c *CachedFeatureGate) CanUseBookingFee(ctx context.Context, businessID string) (bool, error) {
	if allowed, ok := c.get(businessID); ok {
		return allowed, nil
	}
	allowed, err := c.inner.CanUseBookingFee(ctx, businessID)
	if err != nil {
		return false, err
	}
	c.store(businessID, allowed)
	return allowed, nil
}

// Invalidate drops every cached answer.
func (c *CachedFeatureGate) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]featureCacheEntry)
	c.mu.Unlock()
}

func (c *CachedFeatureGate) get(key string) (bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, false
	}
	return entry.allowed, true
}

func (c *CachedFeatureGate) store(key string, allowed bool) {
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = featureCacheEntry{allowed: allowed, expiresAt: expiry}
}

func (c *CachedFeatureGate) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *CachedFeatureGate) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
