package cache

import (
	"testing"
	"time"
)

func TestTTLGetSet(t *testing.T) {
	c := New[string](time.Minute, 4)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("a", "alpha")
	v, ok := c.Get("a")
	if !ok || v != "alpha" {
		t.Fatalf("got (%q, %v), want (alpha, true)", v, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[int](time.Minute, 4)
	base := time.Unix(1000, 0)
	c.now = func() time.Time { return base }

	c.Set("k", 42)

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired before ttl")
	}

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry survived past ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", c.Len())
	}
}

func TestTTLEvictsOldestAtCapacity(t *testing.T) {
	c := New[int](time.Hour, 2)
	base := time.Unix(1000, 0)

	c.now = func() time.Time { return base }
	c.Set("first", 1)
	c.now = func() time.Time { return base.Add(time.Second) }
	c.Set("second", 2)
	c.now = func() time.Time { return base.Add(2 * time.Second) }
	c.Set("third", 3)

	if _, ok := c.Get("first"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get("second"); !ok {
		t.Fatal("second entry missing")
	}
	if _, ok := c.Get("third"); !ok {
		t.Fatal("third entry missing")
	}
}

func TestTTLOverwriteDoesNotEvict(t *testing.T) {
	c := New[int](time.Hour, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Fatalf("got (%d, %v), want (10, true)", v, ok)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("overwrite evicted an unrelated entry")
	}
}

func TestTTLInvalidate(t *testing.T) {
	c := New[int](time.Hour, 4)
	c.Set("a", 1)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry survived invalidation")
	}
}
