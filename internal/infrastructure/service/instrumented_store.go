package service

import (
	"context"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/observability"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// InstrumentedStore bounds every store call with a timeout and records its
// latency.
type InstrumentedStore struct {
	next    friendship.Store
	timeout time.Duration
	metrics *observability.Metrics
}

var _ friendship.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps next. timeout <= 0 disables the per-call bound.
func NewInstrumentedStore(next friendship.Store, timeout time.Duration, metrics *observability.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, timeout: timeout, metrics: metrics}
}

func (s *InstrumentedStore) begin(ctx context.Context, op string) (context.Context, func()) {
	done := s.metrics.TrackStore(op)
	if s.timeout <= 0 {
		return ctx, done
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, func() {
		cancel()
		done()
	}
}

// UpsertStudents implements friendship.Store.
func (s *InstrumentedStore) UpsertStudents(ctx context.Context, ids ...shared.StudentID) error {
	ctx, end := s.begin(ctx, "UpsertStudents")
	defer end()
	return s.next.UpsertStudents(ctx, ids...)
}

// CreateRequest implements friendship.Store.
func (s *InstrumentedStore) CreateRequest(ctx context.Context, req *friendship.Request) error {
	ctx, end := s.begin(ctx, "CreateRequest")
	defer end()
	return s.next.CreateRequest(ctx, req)
}

// GetRequest implements friendship.Store.
func (s *InstrumentedStore) GetRequest(ctx context.Context, id string) (*friendship.Request, error) {
	ctx, end := s.begin(ctx, "GetRequest")
	defer end()
	return s.next.GetRequest(ctx, id)
}

// AcceptRequest implements friendship.Store.
func (s *InstrumentedStore) AcceptRequest(ctx context.Context, requestID, friendshipID string, now time.Time) (*friendship.Friendship, error) {
	ctx, end := s.begin(ctx, "AcceptRequest")
	defer end()
	return s.next.AcceptRequest(ctx, requestID, friendshipID, now)
}

// RejectRequest implements friendship.Store.
func (s *InstrumentedStore) RejectRequest(ctx context.Context, requestID string, now time.Time) (*friendship.Request, error) {
	ctx, end := s.begin(ctx, "RejectRequest")
	defer end()
	return s.next.RejectRequest(ctx, requestID, now)
}

// ListPendingForReceiver implements friendship.Store.
func (s *InstrumentedStore) ListPendingForReceiver(ctx context.Context, receiver shared.StudentID) ([]*friendship.Request, error) {
	ctx, end := s.begin(ctx, "ListPendingForReceiver")
	defer end()
	return s.next.ListPendingForReceiver(ctx, receiver)
}

// GetFriendship implements friendship.Store.
func (s *InstrumentedStore) GetFriendship(ctx context.Context, id string) (*friendship.Friendship, error) {
	ctx, end := s.begin(ctx, "GetFriendship")
	defer end()
	return s.next.GetFriendship(ctx, id)
}

// GetFriendshipByPair implements friendship.Store.
func (s *InstrumentedStore) GetFriendshipByPair(ctx context.Context, pair shared.Pair) (*friendship.Friendship, error) {
	ctx, end := s.begin(ctx, "GetFriendshipByPair")
	defer end()
	return s.next.GetFriendshipByPair(ctx, pair)
}

// ListFriendships implements friendship.Store.
func (s *InstrumentedStore) ListFriendships(ctx context.Context, studentID shared.StudentID) ([]*friendship.Friendship, error) {
	ctx, end := s.begin(ctx, "ListFriendships")
	defer end()
	return s.next.ListFriendships(ctx, studentID)
}

// DeleteFriendship implements friendship.Store.
func (s *InstrumentedStore) DeleteFriendship(ctx context.Context, id string) (bool, error) {
	ctx, end := s.begin(ctx, "DeleteFriendship")
	defer end()
	return s.next.DeleteFriendship(ctx, id)
}

// UpdateStreak implements friendship.Store. The timeout covers fn and the row lock.
func (s *InstrumentedStore) UpdateStreak(ctx context.Context, id string, attended timeutil.Date, fn friendship.StreakUpdate) (*friendship.Friendship, error) {
	ctx, end := s.begin(ctx, "UpdateStreak")
	defer end()
	return s.next.UpdateStreak(ctx, id, attended, fn)
}

// TopByStreak implements friendship.Store.
func (s *InstrumentedStore) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	ctx, end := s.begin(ctx, "TopByStreak")
	defer end()
	return s.next.TopByStreak(ctx, limit)
}

// AttendanceDates implements friendship.Store.
func (s *InstrumentedStore) AttendanceDates(ctx context.Context, friendshipID string) ([]timeutil.Date, error) {
	ctx, end := s.begin(ctx, "AttendanceDates")
	defer end()
	return s.next.AttendanceDates(ctx, friendshipID)
}
