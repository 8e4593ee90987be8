package friendship

import (
	"context"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// Implementations live in infrastructure/persistence (postgres, memory).
// Every method is one atomic store operation. Missing targets are reported
// with shared.ErrNotFound kinds, driver faults with shared.ErrStoreUnavailable.
// ══════════════════════════════════════════════════════════════════════════════

// StreakUpdate computes the next streak from the current one.
type StreakUpdate func(current Streak) Streak

// Store persists students, friend requests and friendships.
type Store interface {
	// UpsertStudents makes sure each id exists as a student. Idempotent.
	UpsertStudents(ctx context.Context, ids ...shared.StudentID) error

	// CreateRequest upserts both participants and inserts req in one
	// transaction. Returns shared.ErrFriendshipExists or
	// shared.ErrPendingRequestExist if the pair is already linked.
	CreateRequest(ctx context.Context, req *Request) error

	// GetRequest returns a request in any state.
	GetRequest(ctx context.Context, id string) (*Request, error)

	// AcceptRequest marks a pending request accepted and creates the
	// friendship with id friendshipID, atomically. Returns
	// shared.ErrRequestNotPending when the request is missing or answered.
	AcceptRequest(ctx context.Context, requestID, friendshipID string, now time.Time) (*Friendship, error)

	// RejectRequest marks a pending request rejected.
	RejectRequest(ctx context.Context, requestID string, now time.Time) (*Request, error)

	// ListPendingForReceiver returns pending requests addressed to the
	// student, oldest first.
	ListPendingForReceiver(ctx context.Context, receiver shared.StudentID) ([]*Request, error)

	// GetFriendship returns shared.ErrFriendshipNotFound when absent.
	GetFriendship(ctx context.Context, id string) (*Friendship, error)

	// GetFriendshipByPair looks the friendship up by its canonical pair.
	GetFriendshipByPair(ctx context.Context, pair shared.Pair) (*Friendship, error)

	// ListFriendships returns every friendship of the student, oldest first.
	ListFriendships(ctx context.Context, studentID shared.StudentID) ([]*Friendship, error)

	// DeleteFriendship removes the friendship. Reports whether a row was deleted.
	DeleteFriendship(ctx context.Context, id string) (bool, error)

	// UpdateStreak applies fn to the friendship's streak while holding a
	// per-friendship lock and persists the result. A non-zero attended date
	// is also appended to the attendance log.
	UpdateStreak(ctx context.Context, id string, attended timeutil.Date, fn StreakUpdate) (*Friendship, error)

	// TopByStreak returns up to limit friendships ordered by streak count
	// descending, then id ascending.
	TopByStreak(ctx context.Context, limit int) ([]*Friendship, error)

	// AttendanceDates returns the logged attendance dates, ascending.
	AttendanceDates(ctx context.Context, friendshipID string) ([]timeutil.Date, error)
}

// IntegrityIssue describes a stored state that breaks a pair invariant.
type IntegrityIssue struct {
	Kind   string      `json:"kind"`
	Pair   shared.Pair `json:"pair"`
	Count  int         `json:"count"`
	Detail string      `json:"detail,omitempty"`
}

// Integrity issue kinds.
const (
	IssueDuplicatePending      = "duplicate_pending_request"
	IssuePendingWithFriendship = "pending_request_with_friendship"
	IssueNegativeStreak        = "negative_streak"
)

// IntegrityChecker scans the store for pair-invariant violations.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]IntegrityIssue, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// CohortValidator asks the schedule service whether two students share a
// cohort (turn). A nil date means "currently".
type CohortValidator interface {
	AreInSameCohort(ctx context.Context, a, b shared.StudentID, date *timeutil.Date) (bool, error)
}

// Schedule is a student's current turn as reported by the schedule service.
type Schedule struct {
	TurnID string `json:"turn_id"`
	Day    string `json:"day"`
	Time   string `json:"time"`
}

// ScheduleProvider returns the current valid schedule of a student.
// (nil, nil) means the student has no schedule.
type ScheduleProvider interface {
	CurrentSchedule(ctx context.Context, studentID shared.StudentID) (*Schedule, error)
}

// Notifier delivers events to the notification service.
type Notifier interface {
	Notify(ctx context.Context, event shared.Event) error
}

// IDGenerator issues ids for requests and friendships.
type IDGenerator interface {
	NewID() string
}
