// Package cache holds encoded upstream responses for a fixed TTL.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is implemented by Memory and Redis. Both treat a TTL <= 0 as caching disabled.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{items: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

// Set is a no-op when the TTL is not positive.
func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{data: value, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *Memory) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
