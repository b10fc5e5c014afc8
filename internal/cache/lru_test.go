package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[string](4, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	now = now.Add(2 * time.Second)
	if n := c.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired = %d, want 2", n)
	}
}

func TestGetOrCreate(t *testing.T) {
	c := NewLRUCache[*int](4, time.Minute)
	calls := 0
	create := func() *int { calls++; v := calls; return &v }

	first := c.GetOrCreate("k", create)
	second := c.GetOrCreate("k", create)
	if first != second || calls != 1 {
		t.Errorf("create called %d times", calls)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("alice/default", 1)
	c.Set("alice/work", 2)
	c.Set("bob/default", 3)

	if n := c.DeletePrefix("alice/"); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if _, ok := c.Get("bob/default"); !ok {
		t.Error("bob should remain")
	}
}

func TestManagerCleanNow(t *testing.T) {
	c := NewLRUCache[int](4, time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(time.Hour)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow = %d, want 1", n)
	}
}
