// Package memory implements friendship.Store in process memory.
// It backs the "memory" storage driver and the application tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// Store is a mutex-guarded friendship.Store. A single lock serialises all
// writes, which also serialises streak updates per friendship.
type Store struct {
	mu          sync.RWMutex
	students    map[shared.StudentID]struct{}
	requests    map[string]*friendship.Request
	friendships map[string]*friendship.Friendship
	byPair      map[shared.Pair]string
	attendance  map[string]map[timeutil.Date]struct{}
}

var (
	_ friendship.Store            = (*Store)(nil)
	_ friendship.IntegrityChecker = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		students:    make(map[shared.StudentID]struct{}),
		requests:    make(map[string]*friendship.Request),
		friendships: make(map[string]*friendship.Friendship),
		byPair:      make(map[shared.Pair]string),
		attendance:  make(map[string]map[timeutil.Date]struct{}),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// UpsertStudents implements friendship.Store.
func (s *Store) UpsertStudents(ctx context.Context, ids ...shared.StudentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.students[id] = struct{}{}
	}
	return nil
}

// HasStudent reports whether the student node exists.
func (s *Store) HasStudent(id shared.StudentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.students[id]
	return ok
}

// CreateRequest implements friendship.Store.
func (s *Store) CreateRequest(ctx context.Context, req *friendship.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := req.Pair()
	if _, ok := s.byPair[pair]; ok {
		return shared.ErrFriendshipExists
	}
	for _, r := range s.requests {
		if r.IsPending() && r.Pair() == pair {
			return shared.ErrPendingRequestExist
		}
	}

	s.students[req.SenderID] = struct{}{}
	s.students[req.ReceiverID] = struct{}{}
	stored := *req
	s.requests[req.ID] = &stored
	return nil
}

// GetRequest implements friendship.Store.
func (s *Store) GetRequest(ctx context.Context, id string) (*friendship.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, shared.NewDomainError("friendship", "GetRequest", shared.ErrNotFound, "request not found")
	}
	c := *r
	return &c, nil
}

// AcceptRequest implements friendship.Store.
func (s *Store) AcceptRequest(ctx context.Context, requestID, friendshipID string, now time.Time) (*friendship.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok || !r.IsPending() {
		return nil, shared.ErrRequestNotPending
	}
	pair := r.Pair()
	if _, exists := s.byPair[pair]; exists {
		return nil, shared.ErrFriendshipExists
	}

	if err := r.Accept(now); err != nil {
		return nil, shared.ErrRequestNotPending
	}
	f := friendship.NewFriendship(friendshipID, pair, now)
	s.friendships[f.ID] = f
	s.byPair[pair] = f.ID
	return f.Clone(), nil
}

// RejectRequest implements friendship.Store.
func (s *Store) RejectRequest(ctx context.Context, requestID string, now time.Time) (*friendship.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok || r.Reject(now) != nil {
		return nil, shared.ErrRequestNotPending
	}
	c := *r
	return &c, nil
}

// ListPendingForReceiver implements friendship.Store.
func (s *Store) ListPendingForReceiver(ctx context.Context, receiver shared.StudentID) ([]*friendship.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*friendship.Request
	for _, r := range s.requests {
		if r.IsPending() && r.ReceiverID == receiver {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetFriendship implements friendship.Store.
func (s *Store) GetFriendship(ctx context.Context, id string) (*friendship.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.friendships[id]
	if !ok {
		return nil, shared.ErrFriendshipNotFound
	}
	return f.Clone(), nil
}

// GetFriendshipByPair implements friendship.Store.
func (s *Store) GetFriendshipByPair(ctx context.Context, pair shared.Pair) (*friendship.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pair]
	if !ok {
		return nil, shared.ErrFriendshipNotFound
	}
	return s.friendships[id].Clone(), nil
}

// ListFriendships implements friendship.Store.
func (s *Store) ListFriendships(ctx context.Context, studentID shared.StudentID) ([]*friendship.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*friendship.Friendship
	for _, f := range s.friendships {
		if f.Pair.Contains(studentID) {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteFriendship implements friendship.Store.
func (s *Store) DeleteFriendship(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friendships[id]
	if !ok {
		return false, nil
	}
	delete(s.friendships, id)
	delete(s.byPair, f.Pair)
	delete(s.attendance, id)
	return true, nil
}

// UpdateStreak implements friendship.Store.
func (s *Store) UpdateStreak(ctx context.Context, id string, attended timeutil.Date, fn friendship.StreakUpdate) (*friendship.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friendships[id]
	if !ok {
		return nil, shared.ErrFriendshipNotFound
	}
	f.Streak = fn(f.Streak)
	if !attended.IsZero() {
		log, ok := s.attendance[id]
		if !ok {
			log = make(map[timeutil.Date]struct{})
			s.attendance[id] = log
		}
		log[attended] = struct{}{}
	}
	return f.Clone(), nil
}

// TopByStreak implements friendship.Store.
func (s *Store) TopByStreak(ctx context.Context, limit int) ([]*friendship.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*friendship.Friendship, 0, len(s.friendships))
	for _, f := range s.friendships {
		all = append(all, f.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StreakCount != all[j].StreakCount {
			return all[i].StreakCount > all[j].StreakCount
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// AttendanceDates implements friendship.Store.
func (s *Store) AttendanceDates(ctx context.Context, friendshipID string) ([]timeutil.Date, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.friendships[friendshipID]; !ok {
		return nil, shared.ErrFriendshipNotFound
	}
	out := make([]timeutil.Date, 0, len(s.attendance[friendshipID]))
	for d := range s.attendance[friendshipID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// CheckIntegrity implements friendship.IntegrityChecker.
func (s *Store) CheckIntegrity(ctx context.Context) ([]friendship.IntegrityIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[shared.Pair]int)
	for _, r := range s.requests {
		if r.IsPending() {
			pending[r.Pair()]++
		}
	}

	var issues []friendship.IntegrityIssue
	for pair, n := range pending {
		if n > 1 {
			issues = append(issues, friendship.IntegrityIssue{Kind: friendship.IssueDuplicatePending, Pair: pair, Count: n})
		}
		if _, ok := s.byPair[pair]; ok {
			issues = append(issues, friendship.IntegrityIssue{Kind: friendship.IssuePendingWithFriendship, Pair: pair, Count: n})
		}
	}
	for _, f := range s.friendships {
		if f.StreakCount < 0 {
			issues = append(issues, friendship.IntegrityIssue{Kind: friendship.IssueNegativeStreak, Pair: f.Pair, Count: 1, Detail: f.ID})
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Kind != issues[j].Kind {
			return issues[i].Kind < issues[j].Kind
		}
		return issues[i].Pair.String() < issues[j].Pair.String()
	})
	return issues, nil
}
