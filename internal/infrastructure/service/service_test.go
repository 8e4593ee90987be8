package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestUUIDGenerator(t *testing.T) {
	g := NewIDGenerator()
	a, b := g.NewID(), g.NewID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

// countingStore counts TopByStreak calls that reach the store.
type countingStore struct {
	friendship.Store
	topCalls int
}

func (s *countingStore) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	s.topCalls++
	return s.Store.TopByStreak(ctx, limit)
}

func newCachedStore(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{Store: memory.NewStore()}
	rc := redis.NewRankingCache(redis.NewCacheFromClient(client), time.Minute)
	return NewCachedStore(inner, rc, observability.NewMetrics(), nil), inner, mr
}

func befriend(t *testing.T, s friendship.Store, reqID, fID string, a, b shared.StudentID) *friendship.Friendship {
	t.Helper()
	ctx := context.Background()
	req, err := friendship.NewRequest(reqID, a, b, now)
	require.NoError(t, err)
	require.NoError(t, s.CreateRequest(ctx, req))
	f, err := s.AcceptRequest(ctx, reqID, fID, now)
	require.NoError(t, err)
	return f
}

func TestCachedStore_ServesRankingFromCache(t *testing.T) {
	s, inner, _ := newCachedStore(t)
	ctx := context.Background()
	befriend(t, s, "r1", "f1", "a", "b")

	for i := 0; i < 3; i++ {
		list, err := s.TopByStreak(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	assert.Equal(t, 1, inner.topCalls)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	s, inner, _ := newCachedStore(t)
	ctx := context.Background()
	f1 := befriend(t, s, "r1", "f1", "a", "b")

	_, err := s.TopByStreak(ctx, 10)
	require.NoError(t, err)

	befriend(t, s, "r2", "f2", "c", "d")
	list, err := s.TopByStreak(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, inner.topCalls)

	d := timeutil.NewDate(2024, 3, 1)
	_, err = s.UpdateStreak(ctx, f1.ID, d, func(cur friendship.Streak) friendship.Streak {
		return friendship.ApplyAttendance(cur, d)
	})
	require.NoError(t, err)
	list, err = s.TopByStreak(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.topCalls)
	assert.Equal(t, "f1", list[0].ID)
	assert.Equal(t, 1, list[0].StreakCount)

	deleted, err := s.DeleteFriendship(ctx, "f2")
	require.NoError(t, err)
	require.True(t, deleted)
	list, err = s.TopByStreak(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 4, inner.topCalls)
}

// racingStore runs duringLoad after taking the ranking snapshot, like a
// write that commits while a reader is between the query and the cache fill.
type racingStore struct {
	friendship.Store
	duringLoad func()
}

func (s *racingStore) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	list, err := s.Store.TopByStreak(ctx, limit)
	if s.duringLoad != nil {
		hook := s.duringLoad
		s.duringLoad = nil
		hook()
	}
	return list, err
}

func TestCachedStore_WriteDuringLoadIsNotHidden(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &racingStore{Store: memory.NewStore()}
	rc := redis.NewRankingCache(redis.NewCacheFromClient(client), time.Minute)
	s := NewCachedStore(inner, rc, nil, nil)
	ctx := context.Background()
	f := befriend(t, s, "r1", "f1", "a", "b")

	d := timeutil.NewDate(2024, 3, 1)
	inner.duringLoad = func() {
		_, err := s.UpdateStreak(ctx, f.ID, d, func(cur friendship.Streak) friendship.Streak {
			return friendship.ApplyAttendance(cur, d)
		})
		require.NoError(t, err)
	}

	list, err := s.TopByStreak(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].StreakCount)

	list, err = s.TopByStreak(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].StreakCount)
}

func TestCachedStore_CacheDownFallsThrough(t *testing.T) {
	s, inner, mr := newCachedStore(t)
	ctx := context.Background()
	befriend(t, s, "r1", "f1", "a", "b")
	mr.Close()

	list, err := s.TopByStreak(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, inner.topCalls)

	deleted, err := s.DeleteFriendship(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestCachedStore_NilCache(t *testing.T) {
	s := NewCachedStore(memory.NewStore(), nil, nil, nil)
	befriend(t, s, "r1", "f1", "a", "b")
	list, err := s.TopByStreak(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type fakeNotifier struct {
	err    error
	events []shared.Event
	hadDL  bool
}

func (f *fakeNotifier) Notify(ctx context.Context, e shared.Event) error {
	_, f.hadDL = ctx.Deadline()
	f.events = append(f.events, e)
	return f.err
}

func TestNotificationService(t *testing.T) {
	next := &fakeNotifier{}
	svc := NewNotificationService(next, time.Second, observability.NewMetrics())
	e := shared.NewEvent(shared.EventFriendRequestAccepted, "s1", now, nil)

	require.NoError(t, svc.Notify(context.Background(), e))
	require.Len(t, next.events, 1)
	assert.True(t, next.hadDL)

	next.err = errors.New("smtp down")
	assert.Error(t, svc.Notify(context.Background(), e))
}

// deadlineStore records whether GetFriendship saw a deadline.
type deadlineStore struct {
	friendship.Store
	hadDL bool
}

func (s *deadlineStore) GetFriendship(ctx context.Context, id string) (*friendship.Friendship, error) {
	_, s.hadDL = ctx.Deadline()
	return s.Store.GetFriendship(ctx, id)
}

func TestInstrumentedStore(t *testing.T) {
	metrics := observability.NewMetrics()
	inner := &deadlineStore{Store: memory.NewStore()}
	s := NewInstrumentedStore(inner, time.Second, metrics)

	f := befriend(t, s, "r1", "f1", "a", "b")
	got, err := s.GetFriendship(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.True(t, inner.hadDL)

	_, err = s.GetFriendship(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))

	// One series per operation: CreateRequest, AcceptRequest, GetFriendship.
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.StoreQueryLatency))

	unbounded := NewInstrumentedStore(inner, 0, nil)
	_, err = unbounded.GetFriendship(context.Background(), f.ID)
	require.NoError(t, err)
	assert.False(t, inner.hadDL)
}
