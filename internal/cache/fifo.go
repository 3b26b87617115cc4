// Package cache provides the in-process embedding cache shared by all
// backends. Eviction is FIFO by insertion order, not LRU: insertion order is
// load-bearing for deterministic behavior, so a Get never reorders entries.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/kailas-cloud/embedx/internal/domain"
)

// keyPrefixLen bounds how much of the text contributes to the cache key.
// Distinct longer texts sharing a 200-char prefix therefore collide; callers
// accept that trade for cheap keys on large documents.
const keyPrefixLen = 200

// DefaultMaxSize is used when a backend does not configure a cache size.
const DefaultMaxSize = 1000

// FIFO is a capacity-bounded embedding cache evicting the oldest insertion
// first. Safe for concurrent use. Each backend owns a private instance; no
// cross-backend coordination is needed.
type FIFO struct {
	mu      sync.Mutex
	entries map[string][]float32
	order   []string
	maxSize int
	hits    uint64
	misses  uint64
}

// NewFIFO creates a cache holding at most maxSize vectors.
func NewFIFO(maxSize int) *FIFO {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &FIFO{
		entries: make(map[string][]float32),
		maxSize: maxSize,
	}
}

// Key derives the cache key from the first 200 characters of the text.
func Key(text string) string {
	if len(text) > keyPrefixLen {
		text = text[:keyPrefixLen]
	}
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:8])
}

// Get returns a copy of the cached vector for key.
func (c *FIFO) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++

	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a vector, evicting the oldest insertion when at capacity.
// Re-setting an existing key updates the value but keeps its insertion slot.
func (c *FIFO) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = stored
		return
	}

	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = stored
	c.order = append(c.order, key)
}

// Clear drops every entry. Hit/miss counters survive; they describe the
// cache's lifetime, not its current contents.
func (c *FIFO) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string][]float32)
	c.order = nil
}

// Len returns the number of cached vectors.
func (c *FIFO) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Stats reports size, capacity, and lifetime hit rate.
func (c *FIFO) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return domain.CacheStats{
		Size:    len(c.order),
		MaxSize: c.maxSize,
		HitRate: hitRate,
	}
}
