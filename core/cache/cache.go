// Package cache keeps recently used payloads in memory: NTVMR exports keyed
// by request URL and converted documents keyed by digest.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config bounds a cache. Zero values mean no limit.
type Config struct {
	// MaxEntries caps the number of payloads.
	MaxEntries int
	// MaxBytes caps their summed length. A payload longer than MaxBytes
	// is not stored.
	MaxBytes int64
	// TTL expires payloads this long after they were stored.
	TTL time.Duration
	// OnEvict is called with the key and length of every payload that
	// leaves the cache.
	OnEvict func(key string, size int)
}

// Stats counts cache traffic.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int64
}

type item struct {
	key     string
	data    []byte
	expires time.Time
}

// Bytes is a least-recently-used cache of byte payloads. It is safe for
// concurrent use.
type Bytes struct {
	mu    sync.Mutex
	cfg   Config
	items map[string]*list.Element
	order *list.List // front is most recent
	size  int64
	stats Stats

	now func() time.Time
}

// New creates a cache.
func New(cfg Config) *Bytes {
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
	return &Bytes{
		cfg:   cfg,
		items: make(map[string]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
}

// Get returns the payload stored under key.
func (c *Bytes) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok && c.expired(el.Value.(*item)) {
		c.drop(el)
		ok = false
	}
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*item).data, true
}

// Put stores data under key, evicting the least recently used payloads
// until the cache is back within its limits.
func (c *Bytes) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[key]; ok {
		c.drop(old)
	}
	if c.cfg.MaxBytes > 0 && int64(len(data)) > c.cfg.MaxBytes {
		return
	}

	it := &item{key: key, data: data}
	if c.cfg.TTL > 0 {
		it.expires = c.now().Add(c.cfg.TTL)
	}
	c.items[key] = c.order.PushFront(it)
	c.size += int64(len(data))

	for c.order.Len() > 1 && c.full() {
		c.drop(c.order.Back())
		c.stats.Evictions++
	}
}

// Remove drops the payload stored under key.
func (c *Bytes) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.drop(el)
	}
}

// Len returns the number of stored payloads, expired ones included until
// they are next looked up.
func (c *Bytes) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters.
func (c *Bytes) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	s.Bytes = c.size
	return s
}

func (c *Bytes) full() bool {
	if c.cfg.MaxEntries > 0 && c.order.Len() > c.cfg.MaxEntries {
		return true
	}
	return c.cfg.MaxBytes > 0 && c.size > c.cfg.MaxBytes
}

func (c *Bytes) expired(it *item) bool {
	return c.cfg.TTL > 0 && c.now().After(it.expires)
}

func (c *Bytes) drop(el *list.Element) {
	it := c.order.Remove(el).(*item)
	delete(c.items, it.key)
	c.size -= int64(len(it.data))
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(it.key, len(it.data))
	}
}
