// Package memory provides an in-process implementation of driven.Cache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a map-backed cache. Expired entries are dropped on read.
type Cache struct {
	mu     sync.Mutex
	groups map[string]map[string]entry
	now    func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		groups: make(map[string]map[string]entry),
		now:    time.Now,
	}
}

// Get returns the value for key in group, or domain.ErrCacheMiss.
func (c *Cache) Get(_ context.Context, group, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.groups[group][key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.groups[group], key)
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores value for key in group. A zero ttl never expires.
func (c *Cache) Set(_ context.Context, group, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	if c.groups[group] == nil {
		c.groups[group] = make(map[string]entry)
	}
	c.groups[group][key] = e
	return nil
}

// Delete removes key from group.
func (c *Cache) Delete(_ context.Context, group, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups[group], key)
	return nil
}

// InvalidateGroup removes every key in group.
func (c *Cache) InvalidateGroup(_ context.Context, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, group)
	return nil
}

// Len returns the number of entries in group, including expired ones not yet read.
func (c *Cache) Len(group string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.groups[group])
}

// Close is a no-op.
func (c *Cache) Close() error {
	return nil
}
