package chainpass

import (
	"context"
	"sync"
	"time"
)

// VerdictCache memoizes successful verifications by transaction hash so a
// previously-proven payment is not re-queried against the ledger on retry.
//
// Only accepted verdicts (Verified, DevModeBypass) are ever stored; a hash
// that failed verification is never cached as failed, because a pending
// payment may confirm later. Implementations must enforce this in Put.
type VerdictCache interface {
	// Get returns the cached verdict for a hash, or ok=false if absent
	// or expired.
	Get(ctx context.Context, txHash string) (Verdict, bool, error)

	// Put stores an accepted verdict. Non-accepted verdicts are dropped
	// without error. Concurrent Puts for the same hash are
	// last-writer-wins; readers see either no entry or a complete one.
	Put(ctx context.Context, txHash string, v Verdict) error
}

// MemoryVerdictCache is the in-process VerdictCache. A TTL of zero means
// entries never expire.
type MemoryVerdictCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	verdict   Verdict
	createdAt time.Time
}

// NewMemoryVerdictCache creates a memory cache with the given TTL.
func NewMemoryVerdictCache(ttl time.Duration) *MemoryVerdictCache {
	return &MemoryVerdictCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get implements VerdictCache.
func (c *MemoryVerdictCache) Get(_ context.Context, txHash string) (Verdict, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[txHash]
	c.mu.RUnlock()

	if !ok {
		return Verdict{}, false, nil
	}
	if c.expired(entry, time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock; another Put may have refreshed it.
		if entry, ok = c.entries[txHash]; ok && c.expired(entry, time.Now()) {
			delete(c.entries, txHash)
			ok = false
		}
		c.mu.Unlock()
		if !ok {
			return Verdict{}, false, nil
		}
	}
	return entry.verdict, true, nil
}

// Put implements VerdictCache.
func (c *MemoryVerdictCache) Put(_ context.Context, txHash string, v Verdict) error {
	if !v.Status.Accepted() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[txHash] = cacheEntry{verdict: v, createdAt: now}
	c.cleanupExpiredLocked(now)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryVerdictCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	now := time.Now()
	for _, entry := range c.entries {
		if !c.expired(entry, now) {
			n++
		}
	}
	return n
}

func (c *MemoryVerdictCache) expired(e cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.createdAt) > c.ttl
}

// cleanupExpiredLocked removes expired entries. Must be called with the
// write lock held.
func (c *MemoryVerdictCache) cleanupExpiredLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for hash, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, hash)
		}
	}
}
