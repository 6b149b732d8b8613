package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voltgrid/chargeflow/internal/ports"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// LocalCache is an in-memory ports.Cache, used in tests and as a fallback
// when Redis is unavailable.
type LocalCache struct {
	data map[string]cacheEntry
	mu   sync.RWMutex
}

func NewLocalCache() ports.Cache {
	return &LocalCache{data: make(map[string]cacheEntry)}
}

func (c *LocalCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("cache: key not found: %s", key)
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return "", fmt.Errorf("cache: key not found: %s", key)
	}
	return entry.value, nil
}

func (c *LocalCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	entry := cacheEntry{value: fmt.Sprintf("%v", value)}
	if expiration > 0 {
		entry.expiresAt = time.Now().Add(expiration)
	}
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Ping() error { return nil }

func (c *LocalCache) Close() error { return nil }
