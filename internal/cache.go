package internal

import (
	"sync"
	"time"
)

type cacheEntry struct {
	prev, next *cacheEntry
	lastUsed   int64
	expiresAt  int64
	value      any
	key        string
}

func (e *cacheEntry) isExpired(now int64) bool {
	return e.expiresAt > 0 && now > e.expiresAt
}

// EvictFunc is called outside the cache lock for every value that leaves the
// cache through expiry, capacity pressure, Delete or Clear.
type EvictFunc func(key string, value any)

// Cache is an LRU registry with idle expiry. Reading an entry renews its
// lifetime, and evicted values are handed to the EvictFunc so owners can
// release what they hold.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	ttl        time.Duration
	onEvict    EvictFunc
	now        func() time.Time
	head, tail *cacheEntry // Sentinel nodes for doubly-linked list
}

func NewCache(maxEntries int, ttl time.Duration, onEvict EvictFunc) *Cache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	c := &Cache{
		entries:    make(map[string]*cacheEntry, maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
		onEvict:    onEvict,
		now:        time.Now,
	}
	c.head = &cacheEntry{}
	c.tail = &cacheEntry{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// SetClock replaces the time source, for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the value for key and renews its idle lifetime.
func (c *Cache) Get(key string) any {
	if key == "" {
		return nil
	}
	var evicted []*cacheEntry
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	entry := c.entries[key]
	if entry == nil {
		return nil
	}
	if entry.isExpired(now) {
		c.removeNode(entry)
		delete(c.entries, key)
		evicted = append(evicted, entry)
		return nil
	}
	entry.lastUsed = now
	c.renew(entry, now)
	c.moveToFront(entry)
	return entry.value
}

// Set stores value under key. When the cache is full the least recently used
// entry is evicted first, preferring expired ones.
func (c *Cache) Set(key string, value any) bool {
	if value == nil || key == "" || c.maxEntries == 0 {
		return false
	}
	var evicted []*cacheEntry
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	if entry, exists := c.entries[key]; exists {
		if entry.value != value {
			evicted = append(evicted, &cacheEntry{key: key, value: entry.value})
		}
		entry.value = value
		entry.lastUsed = now
		c.renew(entry, now)
		c.moveToFront(entry)
		return true
	}

	if len(c.entries) >= c.maxEntries {
		if victim := c.evictOne(now); victim != nil {
			evicted = append(evicted, victim)
		}
	}

	entry := &cacheEntry{
		value:    value,
		lastUsed: now,
		key:      key,
	}
	c.renew(entry, now)
	c.entries[key] = entry
	c.addToFront(entry)
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	var evicted []*cacheEntry
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeNode(entry)
	delete(c.entries, key)
	evicted = append(evicted, entry)
	return true
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	var evicted []*cacheEntry
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			c.removeNode(entry)
			delete(c.entries, key)
			evicted = append(evicted, entry)
		}
	}
	return len(evicted)
}

// Values returns the live values from most to least recently used.
func (c *Cache) Values() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	values := make([]any, 0, len(c.entries))
	for e := c.head.next; e != c.tail; e = e.next {
		if !e.isExpired(now) {
			values = append(values, e.value)
		}
	}
	return values
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Clear() {
	var evicted []*cacheEntry
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		evicted = append(evicted, entry)
		delete(c.entries, key)
	}
	c.head.next = c.tail
	c.tail.prev = c.head
}

func (c *Cache) notify(evicted []*cacheEntry) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.key, e.value)
	}
}

func (c *Cache) renew(entry *cacheEntry, now int64) {
	if c.ttl > 0 {
		entry.expiresAt = now + c.ttl.Nanoseconds()
	}
}

// moveToFront moves an entry to the front (most recently used position)
func (c *Cache) moveToFront(entry *cacheEntry) {
	if entry == nil || entry == c.head || entry == c.tail {
		return
	}
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

// addToFront adds an entry right after head (most recently used position)
func (c *Cache) addToFront(entry *cacheEntry) {
	if entry == nil {
		return
	}
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

// removeNode removes an entry from the doubly-linked list
func (c *Cache) removeNode(entry *cacheEntry) {
	if entry == nil || entry == c.head || entry == c.tail {
		return
	}
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	entry.prev = nil
	entry.next = nil
}

func (c *Cache) evictOne(now int64) *cacheEntry {
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			c.removeNode(entry)
			delete(c.entries, key)
			return entry
		}
	}
	// tail.prev is the least recently used entry
	if c.tail.prev != c.head {
		lruEntry := c.tail.prev
		c.removeNode(lruEntry)
		delete(c.entries, lruEntry.key)
		return lruEntry
	}
	return nil
}
