// Package cache implements the derivation cache: an in-memory key/value
// store with per-entry TTL, LRU capacity eviction, and pattern-based bulk
// invalidation.
//
// Every expensive intermediate in the pipeline is memoized here — snapshot
// fragments, resolved URLs, audit results, page summaries, and generated
// image descriptions — each under its own key-namespace prefix so the
// invalidation coordinator can clear one concern without touching the rest.
//
// All operations are mutex-guarded and safe under concurrent readers and
// writers. Expiry is checked lazily on read; capacity is enforced on write
// by evicting the least-recently-used entry, independent of TTL.
package cache

import (
	"container/list"
	"regexp"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key        string
	value      any
	expiresAt  time.Time
	lastAccess time.Time
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the store; the least-recently-used entry is evicted
	// when a write would exceed it. Default 500.
	MaxEntries int

	// DefaultTTL applies when Set is called with ttl <= 0. Default 5m.
	DefaultTTL time.Duration

	// Now is the clock. Tests inject a fake; nil means time.Now.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 500
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = 5 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Expirations   uint64
	Invalidations uint64
	Entries       int
}

// Cache is the derivation cache.
type Cache struct {
	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element
	opts  Options

	hits          uint64
	misses        uint64
	evictions     uint64
	expirations   uint64
	invalidations uint64
}

// New creates a Cache.
func New(opts Options) *Cache {
	opts.defaults()
	return &Cache{
		ll:    list.New(),
		items: make(map[string]*list.Element),
		opts:  opts,
	}
}

// Get returns the value for key while it is alive. An expired entry is
// removed on the spot and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := ele.Value.(*entry)
	now := c.opts.Now()
	if now.After(ent.expiresAt) {
		c.removeElement(ele)
		c.expirations++
		c.misses++
		return nil, false
	}
	ent.lastAccess = now
	c.ll.MoveToFront(ele)
	c.hits++
	return ent.value, true
}

// GetString is Get for string values; a live entry of another type reads as
// a miss.
func (c *Cache) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key for ttl. ttl <= 0 uses the default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	if ele, ok := c.items[key]; ok {
		ent := ele.Value.(*entry)
		ent.value = value
		ent.expiresAt = now.Add(ttl)
		ent.lastAccess = now
		c.ll.MoveToFront(ele)
		return
	}

	ele := c.ll.PushFront(&entry{
		key:        key,
		value:      value,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	})
	c.items[key] = ele
	c.evictLocked()
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
	}
}

// InvalidatePattern removes every key matching re and returns the count.
// Linear scan: the store is small by construction (MaxEntries).
func (c *Cache) InvalidatePattern(re *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*list.Element
	for key, ele := range c.items {
		if re.MatchString(key) {
			doomed = append(doomed, ele)
		}
	}
	for _, ele := range doomed {
		c.removeElement(ele)
	}
	c.invalidations += uint64(len(doomed))
	return len(doomed)
}

// InvalidatePrefix removes every key with the given prefix and returns the
// count. This is the namespace-invalidation fast path.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*list.Element
	for key, ele := range c.items {
		if strings.HasPrefix(key, prefix) {
			doomed = append(doomed, ele)
		}
	}
	for _, ele := range doomed {
		c.removeElement(ele)
	}
	c.invalidations += uint64(len(doomed))
	return len(doomed)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.ll = list.New()
	c.items = make(map[string]*list.Element)
	c.invalidations += uint64(n)
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		Invalidations: c.invalidations,
		Entries:       len(c.items),
	}
}

func (c *Cache) evictLocked() {
	for c.ll.Len() > c.opts.MaxEntries {
		back := c.ll.Back()
		if back == nil {
			return
		}
		c.removeElement(back)
		c.evictions++
	}
}

func (c *Cache) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	ent := ele.Value.(*entry)
	delete(c.items, ent.key)
}
