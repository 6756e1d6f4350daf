package dictionary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type CacheConfig struct {
	MaxEntries int
	WriteTTL   time.Duration
	AccessTTL  time.Duration
}

// CacheStats is a point-in-time view of the lookup cache.
type CacheStats struct {
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
	Generation uint64 `json:"generation"`
}

type cacheItem struct {
	entry      Entry
	writtenAt  time.Time
	accessedAt time.Time
}

// LookupCache is a size-bounded LRU from code to Entry. An item expires
// WriteTTL after it was stored or AccessTTL after it was last read,
// whichever comes first. Expiry is checked on read and by StartCleanup.
//
// Every Purge advances the generation. Writers capture Generation before
// reading the store and pass it to Add; Add drops the write if a purge
// happened in between, so a value read before a sync cannot outlive it.
type LookupCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *cacheItem]
	cfg CacheConfig
	now func() time.Time

	generation uint64
	hits       uint64
	misses     uint64
	evictions  uint64
}

func NewLookupCache(cfg CacheConfig) (*LookupCache, error) {
	if cfg.WriteTTL <= 0 || cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("lookup cache: TTLs must be positive")
	}
	lru, err := simplelru.NewLRU[string, *cacheItem](cfg.MaxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup cache: %w", err)
	}
	return &LookupCache{lru: lru, cfg: cfg, now: time.Now}, nil
}

func (c *LookupCache) expired(it *cacheItem, now time.Time) bool {
	return now.Sub(it.writtenAt) >= c.cfg.WriteTTL || now.Sub(it.accessedAt) >= c.cfg.AccessTTL
}

// Get returns the cached entry for code and refreshes its access time.
func (c *LookupCache) Get(code string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.lru.Get(code)
	if !ok {
		c.misses++
		return Entry{}, false
	}
	now := c.now()
	if c.expired(it, now) {
		c.lru.Remove(code)
		c.misses++
		return Entry{}, false
	}
	it.accessedAt = now
	c.hits++
	return it.entry, true
}

// Generation returns the current purge generation.
func (c *LookupCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Add stores entries if no purge has happened since gen was observed.
// It reports whether the entries were stored.
func (c *LookupCache) Add(gen uint64, entries ...Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	now := c.now()
	for _, e := range entries {
		if c.lru.Add(e.Code, &cacheItem{entry: e, writtenAt: now, accessedAt: now}) {
			c.evictions++
		}
	}
	return true
}

// Purge drops every entry and advances the generation.
func (c *LookupCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.generation++
}

// RemoveExpired deletes expired items and returns how many were removed.
func (c *LookupCache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, code := range c.lru.Keys() {
		it, ok := c.lru.Peek(code)
		if ok && c.expired(it, now) {
			c.lru.Remove(code)
			removed++
		}
	}
	return removed
}

// StartCleanup runs RemoveExpired every interval until ctx is done.
func (c *LookupCache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RemoveExpired()
			}
		}
	}()
}

func (c *LookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *LookupCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.cfg.MaxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Generation: c.generation,
	}
}
