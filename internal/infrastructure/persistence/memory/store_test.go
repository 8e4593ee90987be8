package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func newRequest(t *testing.T, id string, from, to shared.StudentID, at time.Time) *friendship.Request {
	t.Helper()
	req, err := friendship.NewRequest(id, from, to, at)
	require.NoError(t, err)
	return req
}

func TestStore_CreateRequestConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "a", "b", t0)))
	assert.True(t, s.HasStudent("a"))
	assert.True(t, s.HasStudent("b"))

	err := s.CreateRequest(ctx, newRequest(t, "r2", "b", "a", t0))
	assert.True(t, shared.IsConflict(err))

	_, err = s.AcceptRequest(ctx, "r1", "f1", t0)
	require.NoError(t, err)

	err = s.CreateRequest(ctx, newRequest(t, "r3", "a", "b", t0))
	assert.ErrorIs(t, err, shared.ErrFriendshipExists)
}

func TestStore_AcceptIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "a", "b", t0)))

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.AcceptRequest(ctx, "r1", fmt.Sprintf("f%d", i), t0)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, shared.IsNotFound(err))
	}
	assert.Equal(t, 1, ok)

	f, err := s.GetFriendshipByPair(ctx, shared.NewPair("b", "a"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.StreakCount)
	assert.False(t, f.HasAttendance())
}

func TestStore_RejectOnlyPending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "a", "b", t0)))

	r, err := s.RejectRequest(ctx, "r1", t0)
	require.NoError(t, err)
	assert.Equal(t, friendship.RequestStatusRejected, r.Status)

	_, err = s.RejectRequest(ctx, "r1", t0)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.AcceptRequest(ctx, "r1", "f1", t0)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.RejectRequest(ctx, "missing", t0)
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_ListPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r2", "c", "a", t0.Add(time.Hour))))
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "b", "a", t0)))
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r3", "a", "d", t0)))

	list, err := s.ListPendingForReceiver(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, "r2", list[1].ID)
}

func TestStore_UpdateStreakAndAttendanceLog(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "a", "b", t0)))
	_, err := s.AcceptRequest(ctx, "r1", "f1", t0)
	require.NoError(t, err)

	d := timeutil.NewDate(2024, 3, 10)
	apply := func(date timeutil.Date) friendship.StreakUpdate {
		return func(cur friendship.Streak) friendship.Streak { return friendship.ApplyAttendance(cur, date) }
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateStreak(ctx, "f1", d, apply(d))
		}()
	}
	wg.Wait()

	f, err := s.GetFriendship(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.StreakCount)

	_, err = s.UpdateStreak(ctx, "f1", d.AddDays(1), apply(d.AddDays(1)))
	require.NoError(t, err)

	dates, err := s.AttendanceDates(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []timeutil.Date{d, d.AddDays(1)}, dates)

	_, err = s.UpdateStreak(ctx, "missing", d, apply(d))
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_TopByStreakOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	counts := map[string]int{"x": 5, "y": 5, "z": 3}
	for id, n := range counts {
		req := newRequest(t, "r-"+id, shared.StudentID(id+"1"), shared.StudentID(id+"2"), t0)
		require.NoError(t, s.CreateRequest(ctx, req))
		_, err := s.AcceptRequest(ctx, req.ID, id, t0)
		require.NoError(t, err)
		n := n
		_, err = s.UpdateStreak(ctx, id, timeutil.Date{}, func(friendship.Streak) friendship.Streak {
			return friendship.Streak{StreakCount: n, LastAttendanceDate: timeutil.NewDate(2024, 3, 1)}
		})
		require.NoError(t, err)
	}

	top, err := s.TopByStreak(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "x", top[0].ID)
	assert.Equal(t, "y", top[1].ID)
}

func TestStore_DeleteFriendship(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "a", "b", t0)))
	_, err := s.AcceptRequest(ctx, "r1", "f1", t0)
	require.NoError(t, err)

	deleted, err := s.DeleteFriendship(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.GetFriendshipByPair(ctx, shared.NewPair("a", "b"))
	assert.True(t, shared.IsNotFound(err))
	_, err = s.GetFriendshipByPair(ctx, shared.NewPair("b", "a"))
	assert.True(t, shared.IsNotFound(err))

	deleted, err = s.DeleteFriendship(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_CheckIntegrityClean(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateRequest(ctx, newRequest(t, "r1", "a", "b", t0)))

	issues, err := s.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
}
