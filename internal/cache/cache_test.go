package cache

import (
	"testing"
	"time"
)

// withClock swaps the cache's clock for a controllable one.
func withClock(c *Cache) *time.Time {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestGetReturnsStoredValueBeforeTTL(t *testing.T) {
	c := New()
	now := withClock(c)

	c.Set("categories:list", []string{"a", "b"}, 5*time.Second)

	*now = now.Add(100 * time.Millisecond)
	got, ok := c.Get("categories:list")
	if !ok {
		t.Fatal("expected cache hit before TTL elapsed")
	}
	values, ok := got.([]string)
	if !ok || len(values) != 2 {
		t.Fatalf("unexpected cached value: %#v", got)
	}
}

func TestGetRemovesExpiredEntry(t *testing.T) {
	c := New()
	now := withClock(c)

	c.Set("categories:list", "data", 5*time.Second)

	*now = now.Add(5*time.Second + time.Millisecond)
	if _, ok := c.Get("categories:list"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len = %d", c.Len())
	}
}

func TestGetExactlyAtTTLStillHits(t *testing.T) {
	c := New()
	now := withClock(c)

	c.Set("k", "v", time.Second)

	// An entry is absent only once now - storedAt exceeds the TTL.
	*now = now.Add(time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry at exactly TTL should still be present")
	}
}

func TestSetSupersedesPriorEntry(t *testing.T) {
	c := New()
	withClock(c)

	c.Set("k", "old", time.Minute)
	c.Set("k", "new", time.Minute)

	got, ok := c.Get("k")
	if !ok || got != "new" {
		t.Fatalf("got %v, want new", got)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New()
	now := withClock(c)

	c.Set("k", "v", 0)

	*now = now.Add(24 * time.Hour)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("zero-TTL entry should not expire")
	}
}

func TestInvalidatePatternDeletesMatchingKeys(t *testing.T) {
	c := New()
	withClock(c)

	c.Set("notifications:list", 1, time.Minute)
	c.Set("notifications:preferences", 2, time.Minute)
	c.Set("gallery:list", 3, time.Minute)

	c.Invalidate("notifications")

	if _, ok := c.Get("notifications:list"); ok {
		t.Fatal("notifications:list should have been invalidated")
	}
	if _, ok := c.Get("notifications:preferences"); ok {
		t.Fatal("notifications:preferences should have been invalidated")
	}
	if _, ok := c.Get("gallery:list"); !ok {
		t.Fatal("gallery:list should have survived")
	}
}

func TestInvalidateEmptyPatternClearsAll(t *testing.T) {
	c := New()
	withClock(c)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Invalidate("")

	if c.Len() != 0 {
		t.Fatalf("len = %d after clear-all, want 0", c.Len())
	}
}
