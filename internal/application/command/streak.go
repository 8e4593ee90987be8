package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK ENGINE
// Owns streak_count and last_attendance_date of every friendship. Each
// update is read-apply-write under a per-friendship lock held by the store.
// ══════════════════════════════════════════════════════════════════════════════

// StreakEngineDeps are the collaborators of a StreakEngine.
type StreakEngineDeps struct {
	Store    friendship.Store
	Clock    timeutil.Clock
	Location *time.Location
	Metrics  *observability.Metrics
	Logger   *logger.Logger
}

// StreakEngine records joint attendance and maintains streaks.
type StreakEngine struct {
	store   friendship.Store
	clock   timeutil.Clock
	loc     *time.Location
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewStreakEngine creates a StreakEngine.
func NewStreakEngine(deps StreakEngineDeps) *StreakEngine {
	e := &StreakEngine{
		store:   deps.Store,
		clock:   deps.Clock,
		loc:     deps.Location,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}
	if e.clock == nil {
		e.clock = timeutil.SystemClock{}
	}
	if e.loc == nil {
		e.loc = timeutil.DefaultLocation
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	e.log = e.log.With(logger.Component("streak-engine"))
	return e
}

// RecordAttendance folds a joint attendance on date into the streak.
// Recording the same date twice leaves the streak unchanged.
func (e *StreakEngine) RecordAttendance(ctx context.Context, friendshipID string, date timeutil.Date) (f *friendship.Friendship, err error) {
	defer e.observe("RecordAttendance", time.Now(), &err)

	if friendshipID == "" {
		return nil, fmt.Errorf("record attendance: %w", errEmptyID("RecordAttendance", "friendship"))
	}
	if date.IsZero() {
		return nil, fmt.Errorf("record attendance: %w",
			shared.NewDomainError("streak", "RecordAttendance", shared.ErrInvalidArgument, "attendance date is required"))
	}

	f, err = e.store.UpdateStreak(ctx, friendshipID, date, func(cur friendship.Streak) friendship.Streak {
		return friendship.ApplyAttendance(cur, date)
	})
	if err != nil {
		return nil, fmt.Errorf("record attendance: %w", err)
	}

	e.log.Info("attendance recorded",
		logger.FriendshipID(friendshipID),
		logger.String("date", date.String()),
		logger.StreakCount(f.StreakCount),
	)
	return f, nil
}

// RecordAttendanceAt records attendance on the calendar day of t in the
// engine's location.
func (e *StreakEngine) RecordAttendanceAt(ctx context.Context, friendshipID string, t time.Time) (*friendship.Friendship, error) {
	return e.RecordAttendance(ctx, friendshipID, timeutil.DateOf(t, e.loc))
}

// RecordAttendanceForPair resolves the friendship of a and b and records
// attendance on it.
func (e *StreakEngine) RecordAttendanceForPair(ctx context.Context, a, b shared.StudentID, date timeutil.Date) (*friendship.Friendship, error) {
	if err := friendship.ValidateParticipants(a, b); err != nil {
		return nil, fmt.Errorf("record attendance for pair: %w", err)
	}
	f, err := e.store.GetFriendshipByPair(ctx, shared.NewPair(a, b))
	if err != nil {
		return nil, fmt.Errorf("record attendance for pair: %w", err)
	}
	return e.RecordAttendance(ctx, f.ID, date)
}

// ResetStreak sets the streak to 1 starting today.
func (e *StreakEngine) ResetStreak(ctx context.Context, friendshipID string) (f *friendship.Friendship, err error) {
	defer e.observe("ResetStreak", time.Now(), &err)

	if friendshipID == "" {
		return nil, fmt.Errorf("reset streak: %w", errEmptyID("ResetStreak", "friendship"))
	}

	today := e.Today()
	f, err = e.store.UpdateStreak(ctx, friendshipID, timeutil.Date{}, func(friendship.Streak) friendship.Streak {
		return friendship.ResetStreak(today)
	})
	if err != nil {
		return nil, fmt.Errorf("reset streak: %w", err)
	}

	e.log.Info("streak reset", logger.FriendshipID(friendshipID), logger.String("date", today.String()))
	return f, nil
}

// ClassifyStatus evaluates the streak status of f on referenceDate.
func (e *StreakEngine) ClassifyStatus(f *friendship.Friendship, referenceDate timeutil.Date) friendship.StreakStatus {
	return friendship.ClassifyStatus(f.Streak, referenceDate)
}

// Today returns the current calendar date in the engine's location.
func (e *StreakEngine) Today() timeutil.Date {
	return timeutil.Today(e.clock, e.loc)
}

func (e *StreakEngine) observe(op string, start time.Time, err *error) {
	e.metrics.ObserveOperation("streak", op, start, *err)
	if *err != nil && !isClientError(*err) {
		e.log.Error("operation failed", logger.Operation(op), logger.Err(*err))
	}
}
