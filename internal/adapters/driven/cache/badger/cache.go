// Package badger provides a Badger-backed implementation of driven.Cache.
//
// Keys are stored as "<group>/<key>" so a group can be dropped by prefix.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

// Cache stores grouped entries in Badger with per-entry TTLs.
type Cache struct {
	db *badger.DB
}

// New opens a cache in dir. An empty dir keeps the cache in memory.
func New(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	logger.Debug("cache opened at %q", dir)
	return &Cache{db: db}, nil
}

// Get returns the value for key in group, or domain.ErrCacheMiss.
func (c *Cache) Get(_ context.Context, group, key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(group, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	return value, nil
}

// Set stores value for key in group. A zero ttl never expires.
func (c *Cache) Set(_ context.Context, group, key string, value []byte, ttl time.Duration) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(entryKey(group, key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Delete removes key from group.
func (c *Cache) Delete(_ context.Context, group, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(group, key))
	})
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// InvalidateGroup removes every key in group.
func (c *Cache) InvalidateGroup(_ context.Context, group string) error {
	if err := c.db.DropPrefix(groupPrefix(group)); err != nil {
		return fmt.Errorf("invalidating cache group %q: %w", group, err)
	}
	return nil
}

// Close releases the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func groupPrefix(group string) []byte {
	return []byte(group + "/")
}

func entryKey(group, key string) []byte {
	return append(groupPrefix(group), key...)
}
