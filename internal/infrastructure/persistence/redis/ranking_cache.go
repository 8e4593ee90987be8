package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RankingCache caches the result of the global streak ranking query.
//
// Layout:
//   - "ranking:gen" is a counter bumped on every invalidation
//   - "ranking:g{gen}:top:{limit}" holds the ranked friendships as JSON
//
// Invalidation is a single INCR: entries of older generations are never read
// again and expire on their TTL.
type RankingCache struct {
	cache *Cache
	ttl   time.Duration
}

const keyRankingGeneration = PrefixRanking + "gen"

// NewRankingCache creates a ranking cache. ttl <= 0 uses TTLRanking.
func NewRankingCache(cache *Cache, ttl time.Duration) *RankingCache {
	if ttl <= 0 {
		ttl = TTLRanking
	}
	return &RankingCache{cache: cache, ttl: ttl}
}

func (r *RankingCache) generation(ctx context.Context) (int64, error) {
	return r.cache.GetInt64(ctx, keyRankingGeneration)
}

func rankingKey(gen int64, limit int) string {
	return fmt.Sprintf("%sg%s:top:%d", PrefixRanking, strconv.FormatInt(gen, 10), limit)
}

// Top returns the cached ranking for limit and the generation it was looked
// up under. ok is false on a miss; gen is valid whenever err is nil.
func (r *RankingCache) Top(ctx context.Context, limit int) (list []*friendship.Friendship, gen int64, ok bool, err error) {
	gen, err = r.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	if err := r.cache.Get(ctx, rankingKey(gen, limit), &list); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, gen, false, nil
		}
		return nil, gen, false, err
	}
	return list, gen, true, nil
}

// StoreTop caches the ranking for limit under gen, the generation returned
// by the Top call that preceded the store query. A snapshot loaded while an
// invalidation happened lands in the old generation and is never read.
func (r *RankingCache) StoreTop(ctx context.Context, gen int64, limit int, list []*friendship.Friendship) error {
	if list == nil {
		list = []*friendship.Friendship{}
	}
	return r.cache.Set(ctx, rankingKey(gen, limit), list, r.ttl)
}

// Invalidate makes every cached ranking stale.
func (r *RankingCache) Invalidate(ctx context.Context) error {
	_, err := r.cache.Incr(ctx, keyRankingGeneration)
	return err
}
