package dictionary

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, max int, write, access time.Duration) (*LookupCache, *fakeClock) {
	t.Helper()
	c, err := NewLookupCache(CacheConfig{MaxEntries: max, WriteTTL: write, AccessTTL: access})
	if err != nil {
		t.Fatalf("NewLookupCache: %v", err)
	}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clock.Now
	return c, clock
}

func TestLookupCache_GetAdd(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Hour, time.Hour)

	if _, ok := c.Get("A00.0"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if !c.Add(c.Generation(), Entry{Code: "A00.0", Name: "Cholera"}) {
		t.Fatal("expected Add to succeed")
	}
	e, ok := c.Get("A00.0")
	if !ok || e.Name != "Cholera" {
		t.Errorf("expected hit with Cholera, got %+v %v", e, ok)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Entries != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestLookupCache_ExpireAfterWrite(t *testing.T) {
	c, clock := newTestCache(t, 10, 15*time.Minute, 10*time.Minute)
	c.Add(c.Generation(), Entry{Code: "A00.0", Name: "Cholera"})

	// Keep reading so the access TTL never fires; the write TTL still does.
	for i := 0; i < 3; i++ {
		clock.Advance(5 * time.Minute)
		if _, ok := c.Get("A00.0"); i < 2 && !ok {
			t.Fatalf("expected hit after %d minutes", (i+1)*5)
		} else if i == 2 && ok {
			t.Fatal("expected entry to expire 15 minutes after write")
		}
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, len=%d", c.Len())
	}
}

func TestLookupCache_ExpireAfterAccess(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Hour, 10*time.Minute)
	c.Add(c.Generation(), Entry{Code: "A00.0", Name: "Cholera"})

	clock.Advance(9 * time.Minute)
	if _, ok := c.Get("A00.0"); !ok {
		t.Fatal("expected hit before access TTL")
	}
	clock.Advance(9 * time.Minute)
	if _, ok := c.Get("A00.0"); !ok {
		t.Fatal("expected access to extend lifetime")
	}
	clock.Advance(10 * time.Minute)
	if _, ok := c.Get("A00.0"); ok {
		t.Fatal("expected entry idle for 10 minutes to expire")
	}
}

func TestLookupCache_LRUBound(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Hour, time.Hour)
	gen := c.Generation()
	c.Add(gen, Entry{Code: "A00.0", Name: "a"}, Entry{Code: "A01.0", Name: "b"})

	// Touch A00.0 so A01.0 becomes least recently used.
	c.Get("A00.0")
	c.Add(gen, Entry{Code: "A02.0", Name: "c"})

	if c.Len() != 2 {
		t.Fatalf("expected bound of 2, got %d", c.Len())
	}
	if _, ok := c.Get("A01.0"); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get("A00.0"); !ok {
		t.Error("expected recently used entry to survive")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestLookupCache_PurgeRejectsStaleGeneration(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Hour, time.Hour)
	c.Add(c.Generation(), Entry{Code: "Z99.9", Name: "old"})

	before := c.Generation()
	c.Purge()

	if c.Len() != 0 {
		t.Fatalf("expected purge to empty the cache, len=%d", c.Len())
	}
	if c.Add(before, Entry{Code: "Z99.9", Name: "old"}) {
		t.Error("expected Add with a pre-purge generation to be rejected")
	}
	if _, ok := c.Get("Z99.9"); ok {
		t.Error("stale entry must not be cached after purge")
	}
	if !c.Add(c.Generation(), Entry{Code: "B01.0", Name: "new"}) {
		t.Error("expected Add with the current generation to succeed")
	}
}

func TestLookupCache_RemoveExpired(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Hour, 10*time.Minute)
	gen := c.Generation()
	c.Add(gen, Entry{Code: "A00.0", Name: "a"})
	clock.Advance(8 * time.Minute)
	c.Add(gen, Entry{Code: "A01.0", Name: "b"})
	clock.Advance(3 * time.Minute)

	if n := c.RemoveExpired(); n != 1 {
		t.Errorf("expected 1 expired entry removed, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}
}

func TestLookupCache_StartCleanupStopsWithContext(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.StartCleanup(ctx, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
}

func TestNewLookupCache_InvalidConfig(t *testing.T) {
	if _, err := NewLookupCache(CacheConfig{MaxEntries: 0, WriteTTL: time.Minute, AccessTTL: time.Minute}); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := NewLookupCache(CacheConfig{MaxEntries: 10, WriteTTL: 0, AccessTTL: time.Minute}); err == nil {
		t.Error("expected error for zero write TTL")
	}
}
