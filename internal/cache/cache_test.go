package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string, []byte](8)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) = true")
	}

	c.Set("a", []byte{1, 2, 3})
	got, ok := c.Get("a")
	if !ok || len(got) != 3 {
		t.Fatalf("Get(a) = %v, %v", got, ok)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats() hits=%d misses=%d, want 1/1", st.Hits, st.Misses)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](4)
	for i := range 4 {
		c.Set(i, i)
	}
	// Touch 0 so that 1 becomes the oldest.
	c.Get(0)

	c.Set(4, 4)

	if c.Len() != 3 {
		t.Fatalf("Len() = %d after eviction, want 3", c.Len())
	}
	if _, ok := c.Get(0); !ok {
		t.Error("recently used key 0 was evicted")
	}
	if _, ok := c.Get(1); ok {
		t.Error("oldest key 1 survived eviction")
	}
	if c.Stats().Evictions != 2 {
		t.Errorf("Evictions = %d, want 2", c.Stats().Evictions)
	}
}

func TestCache_NoLimit(t *testing.T) {
	c := New[int, int](0)
	for i := range 100 {
		c.Set(i, i)
	}
	if c.Len() != 100 {
		t.Errorf("Len() = %d, want 100", c.Len())
	}
}

func TestCache_DeleteClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("x", 1)

	if !c.Delete("x") {
		t.Error("Delete(x) = false")
	}
	if c.Delete("x") {
		t.Error("second Delete(x) = true")
	}

	c.Set("y", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New[string, int](32)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("%d-%d", g, i%16)
				c.Set(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	if c.Len() > 32 {
		t.Errorf("Len() = %d exceeds soft limit", c.Len())
	}
}
