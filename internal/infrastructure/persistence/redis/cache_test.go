package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)

	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
}

func TestCache_Counters(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	n, err := c.GetInt64(ctx, "counter")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCache_Publish(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sub := c.Subscribe(ctx, PubSubChannel("friend_request.received"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, PubSubChannel("friend_request.received"), map[string]string{"to": "s2"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"s2"}`, msg.Payload)
}

func TestRankingCache_InvalidateBumpsGeneration(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	rc := NewRankingCache(c, time.Minute)

	_, gen, ok, err := rc.Top(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	f := friendship.NewFriendship("f1", shared.NewPair("a", "b"), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	f.Streak = friendship.Streak{StreakCount: 3, LastAttendanceDate: timeutil.NewDate(2024, 3, 3)}
	require.NoError(t, rc.StoreTop(ctx, gen, 10, []*friendship.Friendship{f}))

	list, _, ok, err := rc.Top(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "f1", list[0].ID)
	assert.Equal(t, 3, list[0].StreakCount)
	assert.Equal(t, timeutil.NewDate(2024, 3, 3), list[0].LastAttendanceDate)
	assert.Equal(t, shared.StudentID("a"), list[0].Pair.Low)

	_, _, ok, err = rc.Top(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Invalidate(ctx))
	_, next, ok, err := rc.Top(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, gen+1, next)
}

func TestRankingCache_StoreUnderOldGenerationIsNeverRead(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	rc := NewRankingCache(c, time.Minute)

	_, gen, ok, err := rc.Top(ctx, 10)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, rc.Invalidate(ctx))
	require.NoError(t, rc.StoreTop(ctx, gen, 10, []*friendship.Friendship{}))

	_, _, ok, err = rc.Top(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRankingCache_EmptyListIsAHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	rc := NewRankingCache(c, 0)

	_, gen, _, err := rc.Top(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, rc.StoreTop(ctx, gen, 3, nil))
	list, _, ok, err := rc.Top(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, list)
}

func TestNameCache(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	nc := NewNameCache(c, time.Minute)

	_, ok, err := nc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, nc.Set(ctx, "s1", "Aigerim"))
	name, ok, err := nc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Aigerim", name)
	assert.True(t, mr.Exists(NameKey("s1")))
}
