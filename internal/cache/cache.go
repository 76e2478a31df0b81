// Package cache holds decoded favicons in memory, bounded by entry count and
// by approximate decoded byte size.
package cache

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMaxEntries       = 200
	DefaultMaxCost    int64 = 150 * 1024 * 1024
)

// Options configures the cache limits. Zero values select the defaults.
type Options struct {
	MaxEntries int
	MaxCost    int64
}

// Entry is a cached image together with the cost it was charged.
type Entry struct {
	Key   string
	Image image.Image
	Cost  int64
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Entries   int
	Cost      int64
	MaxCost   int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// ImageCache is an LRU cache of decoded images. It never performs I/O; a
// miss is reported to the caller, who decides whether to fetch.
type ImageCache struct {
	mu      sync.Mutex // serializes writers and guards cost
	entries *lru.Cache[string, Entry]
	cost    int64
	maxCost int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an ImageCache with the given limits.
func New(opts Options) (*ImageCache, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxCost <= 0 {
		opts.MaxCost = DefaultMaxCost
	}

	c := &ImageCache{maxCost: opts.MaxCost}
	entries, err := lru.NewWithEvict[string, Entry](opts.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating image cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// onEvict runs synchronously inside Add/Remove/RemoveOldest/Purge, all of
// which are only called with c.mu held.
func (c *ImageCache) onEvict(_ string, e Entry) {
	c.cost -= e.Cost
}

// Put stores img under key, replacing any previous entry. Least recently
// used entries are evicted until both limits hold. An image that alone
// exceeds the cost limit is not stored and Put returns false.
func (c *ImageCache) Put(key string, img image.Image, cost int64) bool {
	if img == nil {
		return false
	}
	if cost < 0 {
		cost = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Remove(key)
	if cost > c.maxCost {
		return false
	}

	if c.entries.Add(key, Entry{Key: key, Image: img, Cost: cost}) {
		c.evictions.Add(1)
	}
	c.cost += cost

	for c.cost > c.maxCost && c.entries.Len() > 1 {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
		c.evictions.Add(1)
	}
	return true
}

// Get returns the image for key and marks it recently used.
func (c *ImageCache) Get(key string) (image.Image, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.Image, true
}

// Peek returns the entry for key without touching recency or stats.
func (c *ImageCache) Peek(key string) (Entry, bool) {
	return c.entries.Peek(key)
}

// Remove drops key from the cache.
func (c *ImageCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Purge drops every entry.
func (c *ImageCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.cost = 0
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	return c.entries.Len()
}

// Cost returns the summed cost of all cached images.
func (c *ImageCache) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

// Stats returns current usage counters.
func (c *ImageCache) Stats() Stats {
	c.mu.Lock()
	cost := c.cost
	c.mu.Unlock()

	return Stats{
		Entries:   c.entries.Len(),
		Cost:      cost,
		MaxCost:   c.maxCost,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// ImageCost approximates the decoded size of img as 4 bytes per pixel.
func ImageCost(img image.Image) int64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
