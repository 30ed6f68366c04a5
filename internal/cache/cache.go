package cache

import (
	"sync"
	"time"
)

// Config holds capture cache configuration
type Config struct {
	// Enabled turns the cache on. A disabled cache behaves exactly like an
	// empty one: Get always misses and Put is a no-op.
	Enabled bool

	// TTL is the maximum entry age. Expired entries are evicted on read.
	TTL time.Duration

	// MaxSize is the maximum number of entries. Inserting at capacity
	// evicts the oldest entry first.
	MaxSize int
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 128
	}
}

type entry struct {
	value      []byte
	insertedAt time.Time
}

// Cache memoizes finished capture results by request fingerprint.
// Entries are never mutated after insertion; Put on an existing key
// overwrites both value and timestamp.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]entry
	now     func() time.Time
}

// New creates a capture cache.
func New(cfg Config) *Cache {
	cfg.WithDefaults()
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key, evicting it first if its TTL has
// elapsed.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.cfg.TTL {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores a value for key. At capacity the entry with the smallest
// insertedAt is evicted first; equal timestamps break the tie on the
// smaller key so eviction order is deterministic.
func (c *Cache) Put(key string, value []byte) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		var oldestKey string
		var oldest time.Time
		first := true
		for k, e := range c.entries {
			if first || e.insertedAt.Before(oldest) ||
				(e.insertedAt.Equal(oldest) && k < oldestKey) {
				oldestKey, oldest = k, e.insertedAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = entry{value: value, insertedAt: c.now()}
}

// Clear drops all entries unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
