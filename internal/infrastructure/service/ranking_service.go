package service

import (
	"context"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// RankingCache is the cache consulted for TopByStreak.
type RankingCache interface {
	Top(ctx context.Context, limit int) (list []*friendship.Friendship, gen int64, ok bool, err error)
	StoreTop(ctx context.Context, gen int64, limit int, list []*friendship.Friendship) error
	Invalidate(ctx context.Context) error
}

// CachedStore decorates a friendship.Store with a ranking cache.
//
// TopByStreak is served from the cache when possible. Every write that can
// change the ranking (accept, streak update, removal) invalidates it after
// the store commits. Cache failures are logged and never fail the call.
type CachedStore struct {
	friendship.Store
	cache   RankingCache
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewCachedStore wraps store. A nil cache returns a pass-through decorator.
func NewCachedStore(store friendship.Store, cache RankingCache, metrics *observability.Metrics, log *logger.Logger) *CachedStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedStore{
		Store:   store,
		cache:   cache,
		metrics: metrics,
		log:     log.With(logger.Component("ranking-cache")),
	}
}

// TopByStreak returns the cached ranking or loads and caches it. The loaded
// list is cached under the generation seen before the load, so a write that
// commits meanwhile is never hidden behind a stale entry.
func (s *CachedStore) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	if s.cache == nil {
		return s.Store.TopByStreak(ctx, limit)
	}

	list, gen, ok, err := s.cache.Top(ctx, limit)
	cacheable := err == nil
	switch {
	case err != nil:
		s.metrics.RankingCache("error")
		s.log.Warn("ranking cache read failed", logger.Int("limit", limit), logger.Err(err))
	case ok:
		s.metrics.RankingCache("hit")
		return list, nil
	default:
		s.metrics.RankingCache("miss")
	}

	list, err = s.Store.TopByStreak(ctx, limit)
	if err != nil {
		return nil, err
	}

	if !cacheable {
		return list, nil
	}
	if err := s.cache.StoreTop(ctx, gen, limit, list); err != nil {
		s.log.Warn("ranking cache write failed", logger.Int("limit", limit), logger.Err(err))
	}
	return list, nil
}

// AcceptRequest creates the friendship and invalidates the ranking.
func (s *CachedStore) AcceptRequest(ctx context.Context, requestID, friendshipID string, now time.Time) (*friendship.Friendship, error) {
	f, err := s.Store.AcceptRequest(ctx, requestID, friendshipID, now)
	if err == nil {
		s.invalidate(ctx)
	}
	return f, err
}

// UpdateStreak applies fn and invalidates the ranking.
func (s *CachedStore) UpdateStreak(ctx context.Context, id string, attended timeutil.Date, fn friendship.StreakUpdate) (*friendship.Friendship, error) {
	f, err := s.Store.UpdateStreak(ctx, id, attended, fn)
	if err == nil {
		s.invalidate(ctx)
	}
	return f, err
}

// DeleteFriendship removes the friendship and invalidates the ranking.
func (s *CachedStore) DeleteFriendship(ctx context.Context, id string) (bool, error) {
	deleted, err := s.Store.DeleteFriendship(ctx, id)
	if err == nil && deleted {
		s.invalidate(ctx)
	}
	return deleted, err
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("ranking cache invalidation failed", logger.Err(err))
	}
}
