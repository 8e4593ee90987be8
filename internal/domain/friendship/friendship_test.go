package friendship

import (
	"testing"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func TestNewRequest_Validation(t *testing.T) {
	_, err := NewRequest("r1", "s1", "s1", now)
	assert.ErrorIs(t, err, shared.ErrSelfRequest)
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = NewRequest("r1", "", "s2", now)
	assert.True(t, shared.IsInvalidArgument(err))

	req, err := NewRequest("r1", "s2", "s1", now)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusPending, req.Status)
	assert.Equal(t, shared.NewPair("s1", "s2"), req.Pair())
}

func TestRequest_TransitionsOnce(t *testing.T) {
	req, err := NewRequest("r1", "s1", "s2", now)
	require.NoError(t, err)

	require.NoError(t, req.Accept(now))
	assert.Equal(t, RequestStatusAccepted, req.Status)
	require.NotNil(t, req.AcceptedAt)
	assert.True(t, req.Status.IsTerminal())

	assert.True(t, shared.IsNotFound(req.Accept(now)))
	assert.True(t, shared.IsNotFound(req.Reject(now)))
	assert.Nil(t, req.RejectedAt)
}

func TestRequest_Reject(t *testing.T) {
	req, _ := NewRequest("r1", "s1", "s2", now)
	require.NoError(t, req.Reject(now))
	assert.Equal(t, RequestStatusRejected, req.Status)
	assert.NotNil(t, req.RejectedAt)
	assert.Error(t, req.Accept(now))
}

func TestNewFriendship_StartsWithoutStreak(t *testing.T) {
	f := NewFriendship("f1", shared.NewPair("s2", "s1"), now)
	assert.Equal(t, 0, f.StreakCount)
	assert.False(t, f.HasAttendance())
	assert.Equal(t, shared.StudentID("s1"), f.Student1ID())
	assert.Equal(t, shared.StudentID("s2"), f.Student2ID())

	friend, ok := f.FriendOf("s1")
	assert.True(t, ok)
	assert.Equal(t, shared.StudentID("s2"), friend)
	assert.Equal(t, timeutil.NewDate(2024, 3, 10), f.StartDate(time.UTC))
}

func TestApplyAttendance(t *testing.T) {
	d1 := timeutil.NewDate(2024, 3, 1)

	tests := []struct {
		name      string
		current   Streak
		date      timeutil.Date
		wantCount int
		wantLast  timeutil.Date
	}{
		{"first attendance", Streak{}, d1, 1, d1},
		{"same day is a no-op", Streak{StreakCount: 4, LastAttendanceDate: d1}, d1, 4, d1},
		{"next day extends", Streak{StreakCount: 4, LastAttendanceDate: d1}, d1.AddDays(1), 5, d1.AddDays(1)},
		{"gap of two resets", Streak{StreakCount: 4, LastAttendanceDate: d1}, d1.AddDays(2), 1, d1.AddDays(2)},
		{"earlier date resets", Streak{StreakCount: 4, LastAttendanceDate: d1}, d1.AddDays(-1), 1, d1.AddDays(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyAttendance(tt.current, tt.date)
			assert.Equal(t, tt.wantCount, got.StreakCount)
			assert.Equal(t, tt.wantLast, got.LastAttendanceDate)
		})
	}
}

func TestApplyAttendance_Sequence(t *testing.T) {
	d1 := timeutil.NewDate(2024, 2, 27)
	var s Streak
	for _, d := range []timeutil.Date{d1, d1.AddDays(1), d1.AddDays(5)} {
		s = ApplyAttendance(s, d)
	}
	assert.Equal(t, 1, s.StreakCount)
	assert.Equal(t, d1.AddDays(5), s.LastAttendanceDate)
}

func TestApplyAttendance_IsIdempotent(t *testing.T) {
	d := timeutil.NewDate(2024, 3, 1)
	once := ApplyAttendance(Streak{StreakCount: 2, LastAttendanceDate: d.AddDays(-1)}, d)
	twice := ApplyAttendance(once, d)
	assert.Equal(t, once, twice)
	assert.Equal(t, 3, twice.StreakCount)
}

func TestResetStreak(t *testing.T) {
	today := timeutil.NewDate(2024, 3, 10)
	s := ResetStreak(today)
	assert.Equal(t, 1, s.StreakCount)
	assert.Equal(t, today, s.LastAttendanceDate)
}

func TestClassifyStatus(t *testing.T) {
	last := timeutil.NewDate(2024, 3, 1)
	s := Streak{StreakCount: 3, LastAttendanceDate: last}

	assert.Equal(t, StreakStatusNew, ClassifyStatus(Streak{}, last))
	assert.Equal(t, StreakStatusActive, ClassifyStatus(s, last))
	assert.Equal(t, StreakStatusActive, ClassifyStatus(s, last.AddDays(1)))
	assert.Equal(t, StreakStatusBroken, ClassifyStatus(s, last.AddDays(2)))
	assert.Equal(t, StreakStatusBroken, ClassifyStatus(s, last.AddDays(30)))
}

func TestRequestStatus(t *testing.T) {
	assert.True(t, RequestStatusPending.IsValid())
	assert.False(t, RequestStatus("cancelled").IsValid())
	assert.False(t, RequestStatusPending.IsTerminal())
}
