// Package cache holds the per-user local cache used for optimistic writes between syncs.
package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Cache is a string key/value store scoped by user id
type Cache interface {
	// GetItem returns the stored value and whether it was present
	GetItem(ctx context.Context, userID uuid.UUID, key string) (string, bool, error)
	SetItem(ctx context.Context, userID uuid.UUID, key, value string) error
	RemoveItem(ctx context.Context, userID uuid.UUID, key string) error
	Close() error
}

// MemoryCache is a Cache held in process memory
type MemoryCache struct {
	mu    sync.RWMutex
	items map[uuid.UUID]map[string]string
}

// NewMemoryCache returns an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[uuid.UUID]map[string]string)}
}

func (c *MemoryCache) GetItem(ctx context.Context, userID uuid.UUID, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[userID][key]
	return v, ok, nil
}

func (c *MemoryCache) SetItem(ctx context.Context, userID uuid.UUID, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.items[userID]
	if !ok {
		user = make(map[string]string)
		c.items[userID] = user
	}
	user[key] = value
	return nil
}

func (c *MemoryCache) RemoveItem(ctx context.Context, userID uuid.UUID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items[userID], key)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}

var _ Cache = (*MemoryCache)(nil)
