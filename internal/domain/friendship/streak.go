package friendship

import (
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// StreakStatus is derived on read and never stored.
type StreakStatus string

const (
	// StreakStatusNew - no attendance has been recorded yet.
	StreakStatusNew StreakStatus = "new"

	// StreakStatusActive - last joint attendance was today or yesterday.
	StreakStatusActive StreakStatus = "active"

	// StreakStatusBroken - two or more calendar days without joint attendance.
	StreakStatusBroken StreakStatus = "broken"
)

// BrokenAfterDays is the gap in calendar days at which a streak counts as broken.
const BrokenAfterDays = 2

// Streak is the attendance state of a friendship. A zero LastAttendanceDate
// means no attendance was ever recorded.
type Streak struct {
	StreakCount        int           `json:"streak_count"`
	LastAttendanceDate timeutil.Date `json:"last_attendance_date"`
}

// HasAttendance reports whether any attendance was recorded.
func (s Streak) HasAttendance() bool {
	return !s.LastAttendanceDate.IsZero()
}

// ApplyAttendance folds one joint-attendance date into the streak.
//
//   - no previous date: count 1
//   - same date: unchanged
//   - the day after: count+1
//   - any other gap, or an earlier date: count 1
//
// The result depends only on date and the stored last date, so applying the
// same date twice gives the same state.
func ApplyAttendance(s Streak, date timeutil.Date) Streak {
	if !s.HasAttendance() {
		return Streak{StreakCount: 1, LastAttendanceDate: date}
	}
	switch timeutil.DaysBetween(s.LastAttendanceDate, date) {
	case 0:
		return s
	case 1:
		return Streak{StreakCount: s.StreakCount + 1, LastAttendanceDate: date}
	default:
		return Streak{StreakCount: 1, LastAttendanceDate: date}
	}
}

// ResetStreak is the state after a manual reset: today counts as day one.
func ResetStreak(today timeutil.Date) Streak {
	return Streak{StreakCount: 1, LastAttendanceDate: today}
}

// ClassifyStatus evaluates the streak against referenceDate.
func ClassifyStatus(s Streak, referenceDate timeutil.Date) StreakStatus {
	if !s.HasAttendance() {
		if s.StreakCount == 0 {
			return StreakStatusNew
		}
		return StreakStatusActive
	}
	if timeutil.DaysBetween(s.LastAttendanceDate, referenceDate) >= BrokenAfterDays {
		return StreakStatusBroken
	}
	return StreakStatusActive
}
