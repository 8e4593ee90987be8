package redis

import (
	"context"
	"errors"
	"time"
)

// NameCache keeps display names returned by the users service.
type NameCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewNameCache creates a name cache. ttl <= 0 uses TTLDisplayName.
func NewNameCache(cache *Cache, ttl time.Duration) *NameCache {
	if ttl <= 0 {
		ttl = TTLDisplayName
	}
	return &NameCache{cache: cache, ttl: ttl}
}

// Get returns the cached name. ok is false on a miss.
func (n *NameCache) Get(ctx context.Context, studentID string) (name string, ok bool, err error) {
	if err := n.cache.Get(ctx, NameKey(studentID), &name); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return name, true, nil
}

// Set stores a name.
func (n *NameCache) Set(ctx context.Context, studentID, name string) error {
	return n.cache.Set(ctx, NameKey(studentID), name, n.ttl)
}
