package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process LRU used when Redis is not configured. Values
// are stored encoded so callers never share mutable state with the cache.
type MemoryCache struct {
	entries *lru.LRU[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates a cache holding at most size entries
func NewMemoryCache(size int) *MemoryCache {
	if size < 10 {
		size = 10
	}
	return &MemoryCache{
		// per-entry expiry is tracked in memoryEntry; the LRU itself never expires
		entries: lru.NewLRU[string, memoryEntry](size, nil, 0),
		now:     time.Now,
	}
}

// Get decodes the entry into dest
func (c *MemoryCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}

	entry, ok := c.entries.Get(key)
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dest); err != nil {
		c.entries.Remove(key)
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Set stores value for ttl
func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

// Delete removes keys
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Remove(key)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
