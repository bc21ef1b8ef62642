package driven

import (
	"context"
	"time"
)

// Well-known cache groups.
const (
	CacheGroupEmbeddings = "embeddings"
	CacheGroupSearch     = "search"
	CacheGroupContext    = "context"
	CacheGroupHistory    = "history"
)

// Cache is a grouped key-value cache with per-entry TTLs.
// Writers do not coordinate; the last write wins.
type Cache interface {
	// Get returns the value for key in group, or domain.ErrCacheMiss.
	Get(ctx context.Context, group, key string) ([]byte, error)

	// Set stores value for key in group. A zero ttl never expires.
	Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error

	// Delete removes key from group.
	Delete(ctx context.Context, group, key string) error

	// InvalidateGroup removes every key in group.
	InvalidateGroup(ctx context.Context, group string) error

	// Close releases resources.
	Close() error
}
