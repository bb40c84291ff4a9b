package internal

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Add(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestCacheBasic(t *testing.T) {
	t.Parallel()

	cache := NewCache(10, time.Hour, nil)

	if !cache.Set("key1", "value1") {
		t.Fatal("Set() = false")
	}
	if val := cache.Get("key1"); val != "value1" {
		t.Errorf("Get() = %v, want value1", val)
	}
	if val := cache.Get("nonexistent"); val != nil {
		t.Errorf("Get() = %v, want nil", val)
	}
	if cache.Set("", "v") || cache.Set("k", nil) {
		t.Error("empty keys and nil values should be rejected")
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestCacheIdleExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeNow{t: time.Unix(1000, 0)}
	var evicted []string
	cache := NewCache(10, time.Minute, func(key string, _ any) {
		evicted = append(evicted, key)
	})
	cache.SetClock(clock.Now)

	cache.Set("busy", 1)
	cache.Set("idle", 2)

	clock.Add(40 * time.Second)
	if cache.Get("busy") == nil {
		t.Fatal("busy entry expired early")
	}
	clock.Add(40 * time.Second)

	if cache.Get("busy") == nil {
		t.Error("reading an entry should renew its lifetime")
	}
	if cache.Get("idle") != nil {
		t.Error("idle entry should have expired")
	}
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Errorf("evicted = %v, want [idle]", evicted)
	}
}

func TestCacheSweep(t *testing.T) {
	t.Parallel()

	clock := &fakeNow{t: time.Unix(1000, 0)}
	count := 0
	cache := NewCache(10, time.Second, func(string, any) { count++ })
	cache.SetClock(clock.Now)

	for i := range 4 {
		cache.Set(fmt.Sprintf("k%d", i), i)
	}
	clock.Add(2 * time.Second)
	cache.Set("fresh", true)

	if n := cache.Sweep(); n != 4 {
		t.Errorf("Sweep() = %d, want 4", n)
	}
	if count != 4 || cache.Len() != 1 {
		t.Errorf("evicted %d, len %d", count, cache.Len())
	}
}

func TestCacheLRUEviction(t *testing.T) {
	t.Parallel()

	var evicted []string
	cache := NewCache(2, 0, func(key string, _ any) { evicted = append(evicted, key) })

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Get("a")
	cache.Set("c", 3)

	if cache.Get("b") != nil {
		t.Error("least recently used entry should be evicted")
	}
	if cache.Get("a") == nil || cache.Get("c") == nil {
		t.Error("recent entries should survive")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	t.Parallel()

	count := 0
	cache := NewCache(5, time.Hour, func(string, any) { count++ })
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	if !cache.Delete("a") || cache.Delete("a") {
		t.Error("Delete() should report presence once")
	}
	if vals := cache.Values(); len(vals) != 2 || vals[0] != 3 {
		t.Errorf("Values() = %v, want most recent first", vals)
	}

	cache.Clear()
	if cache.Len() != 0 || count != 3 {
		t.Errorf("after Clear len = %d, evicted = %d", cache.Len(), count)
	}
}

func TestCacheReplaceNotifies(t *testing.T) {
	t.Parallel()

	var old []any
	cache := NewCache(5, 0, func(_ string, v any) { old = append(old, v) })
	cache.Set("k", "first")
	cache.Set("k", "second")

	if len(old) != 1 || old[0] != "first" {
		t.Errorf("replaced values = %v, want [first]", old)
	}
}

func TestCacheEvictHookMayReenter(t *testing.T) {
	t.Parallel()

	var cache *Cache
	cache = NewCache(5, 0, func(string, any) {
		_ = cache.Len()
	})
	cache.Set("k", 1)

	done := make(chan struct{})
	go func() {
		cache.Delete("k")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("eviction hook deadlocked")
	}
}

func TestCacheConcurrency(t *testing.T) {
	t.Parallel()

	cache := NewCache(100, time.Hour, nil)
	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("key-%d-%d", id, j)
				cache.Set(key, j)
				cache.Get(key)
				if j%10 == 0 {
					cache.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() > 100 {
		t.Errorf("Len() = %d exceeds capacity", cache.Len())
	}
}
