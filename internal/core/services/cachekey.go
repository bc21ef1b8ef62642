package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// hashKey builds a content-addressed cache key from its arguments.
// encoding/json sorts map keys, so equal argument sets always hash the same.
func hashKey(parts ...any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", parts))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// cacheGetJSON decodes a cached value into dst. Cache failures other than a
// miss are logged and reported as a miss.
func cacheGetJSON(ctx context.Context, cache driven.Cache, group, key string, dst any) bool {
	if cache == nil {
		return false
	}
	data, err := cache.Get(ctx, group, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logger.Warn("cache get %s: %v", group, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logger.Warn("cache decode %s: %v", group, err)
		return false
	}
	return true
}

// cacheSetJSON stores value; failures are logged and otherwise ignored.
func cacheSetJSON(ctx context.Context, cache driven.Cache, group, key string, value any, ttl time.Duration) {
	if cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache encode %s: %v", group, err)
		return
	}
	if err := cache.Set(ctx, group, key, data, ttl); err != nil {
		logger.Warn("cache set %s: %v", group, err)
	}
}

func invalidateGroups(ctx context.Context, cache driven.Cache, groups ...string) {
	if cache == nil {
		return
	}
	for _, group := range groups {
		if err := cache.InvalidateGroup(ctx, group); err != nil {
			logger.Warn("cache invalidate %s: %v", group, err)
		}
	}
}
