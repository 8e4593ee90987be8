// Package command contains write operations (CQRS - Commands).
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
// RELATIONSHIP REGISTRY
// Owns the friend request lifecycle and the creation and removal of
// friendships. Streak fields are never touched here.
// ══════════════════════════════════════════════════════════════════════════════

// RegistryDeps are the collaborators of a Registry. Store, Cohort and IDs
// are required; the rest fall back to no-op or system defaults.
type RegistryDeps struct {
	Store    friendship.Store
	Cohort   friendship.CohortValidator
	Notifier friendship.Notifier
	IDs      friendship.IDGenerator
	Clock    timeutil.Clock
	Metrics  *observability.Metrics
	Logger   *logger.Logger
}

// Registry handles friend requests and friendships.
type Registry struct {
	store    friendship.Store
	cohort   friendship.CohortValidator
	notifier friendship.Notifier
	ids      friendship.IDGenerator
	clock    timeutil.Clock
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(deps RegistryDeps) *Registry {
	r := &Registry{
		store:    deps.Store,
		cohort:   deps.Cohort,
		notifier: deps.Notifier,
		ids:      deps.IDs,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		log:      deps.Logger,
	}
	if r.clock == nil {
		r.clock = timeutil.SystemClock{}
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	r.log = r.log.With(logger.Component("registry"))
	return r
}

// ──────────────────────────────────────────────────────────────────────────────
// Requests
// ──────────────────────────────────────────────────────────────────────────────

// SendRequest creates a pending request from sender to receiver.
//
// Input is validated before any store or collaborator call. The pair must be
// in the same cohort and must not already be friends or have a pending
// request in either direction.
func (r *Registry) SendRequest(ctx context.Context, senderID, receiverID shared.StudentID) (req *friendship.Request, err error) {
	defer r.observe("SendRequest", time.Now(), &err)

	if err := friendship.ValidateParticipants(senderID, receiverID); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	same, err := r.cohort.AreInSameCohort(ctx, senderID, receiverID, nil)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", asExternal("CheckCohort", err))
	}
	if !same {
		return nil, fmt.Errorf("send request: %w", shared.ErrNotSameCohort)
	}

	req, err = friendship.NewRequest(r.ids.NewID(), senderID, receiverID, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if err := r.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	r.log.Info("friend request sent",
		logger.RequestID(req.ID),
		logger.StudentID(senderID.String()),
		logger.FriendID(receiverID.String()),
	)
	r.notify(ctx, shared.EventFriendRequestReceived, receiverID, map[string]any{
		"request_id": req.ID,
		"sender_id":  senderID.String(),
	})
	return req, nil
}

// AcceptRequest accepts a pending request and creates the friendship with
// an empty streak. Of concurrent accepts of the same request exactly one
// succeeds; the others see a not-found error.
func (r *Registry) AcceptRequest(ctx context.Context, requestID string) (f *friendship.Friendship, err error) {
	defer r.observe("AcceptRequest", time.Now(), &err)

	if requestID == "" {
		return nil, fmt.Errorf("accept request: %w", errEmptyID("AcceptRequest", "request"))
	}

	f, err = r.store.AcceptRequest(ctx, requestID, r.ids.NewID(), r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("accept request: %w", err)
	}

	r.log.Info("friend request accepted",
		logger.RequestID(requestID),
		logger.FriendshipID(f.ID),
	)

	req, err := r.store.GetRequest(ctx, requestID)
	if err != nil {
		r.log.Warn("cannot load accepted request for notification", logger.RequestID(requestID), logger.Err(err))
		return f, nil
	}
	r.notify(ctx, shared.EventFriendRequestAccepted, req.SenderID, map[string]any{
		"request_id":    requestID,
		"friendship_id": f.ID,
		"friend_id":     req.ReceiverID.String(),
	})
	return f, nil
}

// RejectRequest rejects a pending request. No friendship is created.
func (r *Registry) RejectRequest(ctx context.Context, requestID string) (req *friendship.Request, err error) {
	defer r.observe("RejectRequest", time.Now(), &err)

	if requestID == "" {
		return nil, fmt.Errorf("reject request: %w", errEmptyID("RejectRequest", "request"))
	}

	req, err = r.store.RejectRequest(ctx, requestID, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("reject request: %w", err)
	}

	r.log.Info("friend request rejected", logger.RequestID(requestID))
	r.notify(ctx, shared.EventFriendRequestRejected, req.SenderID, map[string]any{
		"request_id":  requestID,
		"receiver_id": req.ReceiverID.String(),
	})
	return req, nil
}

// ListPendingRequests returns the pending requests addressed to the
// student, oldest first.
func (r *Registry) ListPendingRequests(ctx context.Context, studentID shared.StudentID) (list []*friendship.Request, err error) {
	defer r.observe("ListPendingRequests", time.Now(), &err)

	if studentID.IsEmpty() {
		return nil, fmt.Errorf("list pending requests: %w", shared.ErrEmptyStudentID)
	}
	list, err = r.store.ListPendingForReceiver(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return list, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Friendships
// ──────────────────────────────────────────────────────────────────────────────

// ListFriends returns every friendship of the student.
func (r *Registry) ListFriends(ctx context.Context, studentID shared.StudentID) (list []*friendship.Friendship, err error) {
	defer r.observe("ListFriends", time.Now(), &err)

	if studentID.IsEmpty() {
		return nil, fmt.Errorf("list friends: %w", shared.ErrEmptyStudentID)
	}
	list, err = r.store.ListFriendships(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return list, nil
}

// RemoveFriendship deletes the friendship. Reports whether it existed.
func (r *Registry) RemoveFriendship(ctx context.Context, friendshipID string) (deleted bool, err error) {
	defer r.observe("RemoveFriendship", time.Now(), &err)

	if friendshipID == "" {
		return false, fmt.Errorf("remove friendship: %w", errEmptyID("RemoveFriendship", "friendship"))
	}

	f, err := r.store.GetFriendship(ctx, friendshipID)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove friendship: %w", err)
	}

	deleted, err = r.store.DeleteFriendship(ctx, friendshipID)
	if err != nil {
		return false, fmt.Errorf("remove friendship: %w", err)
	}
	if !deleted {
		return false, nil
	}

	r.log.Info("friendship removed", logger.FriendshipID(friendshipID))
	for _, id := range []shared.StudentID{f.Pair.Low, f.Pair.High} {
		friend, _ := f.FriendOf(id)
		r.notify(ctx, shared.EventFriendshipRemoved, id, map[string]any{
			"friendship_id": friendshipID,
			"friend_id":     friend.String(),
		})
	}
	return true, nil
}

// GetFriendship returns the friendship, or nil when it does not exist.
func (r *Registry) GetFriendship(ctx context.Context, friendshipID string) (*friendship.Friendship, error) {
	if friendshipID == "" {
		return nil, fmt.Errorf("get friendship: %w", errEmptyID("GetFriendship", "friendship"))
	}
	f, err := r.store.GetFriendship(ctx, friendshipID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	return f, nil
}

// GetFriendshipByPair returns the friendship between a and b in either
// order, or nil when they are not friends.
func (r *Registry) GetFriendshipByPair(ctx context.Context, a, b shared.StudentID) (*friendship.Friendship, error) {
	if err := friendship.ValidateParticipants(a, b); err != nil {
		return nil, fmt.Errorf("get friendship by pair: %w", err)
	}
	f, err := r.store.GetFriendshipByPair(ctx, shared.NewPair(a, b))
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get friendship by pair: %w", err)
	}
	return f, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (r *Registry) notify(ctx context.Context, t shared.EventType, recipient shared.StudentID, payload map[string]any) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, shared.NewEvent(t, recipient, r.clock.Now(), payload)); err != nil {
		r.log.Warn("notification failed",
			logger.String("event_type", string(t)),
			logger.StudentID(recipient.String()),
			logger.Err(err),
		)
	}
}

func (r *Registry) observe(op string, start time.Time, err *error) {
	r.metrics.ObserveOperation("registry", op, start, *err)
	if *err != nil && !isClientError(*err) {
		r.log.Error("operation failed", logger.Operation(op), logger.Err(*err))
	}
}

// asExternal marks a collaborator failure as ErrExternalService unless it
// already carries a kind.
func asExternal(op string, err error) error {
	if shared.IsExternalService(err) {
		return err
	}
	return shared.WrapError("schedule", op, shared.ErrExternalService, "cohort validation failed", err)
}

func errEmptyID(op, what string) error {
	return shared.NewDomainError("friendship", op, shared.ErrInvalidArgument, what+" id cannot be empty")
}

// isClientError reports errors caused by the caller's input rather than by
// the service.
func isClientError(err error) bool {
	return shared.IsInvalidArgument(err) ||
		shared.IsConflict(err) ||
		shared.IsNotFound(err) ||
		shared.IsPreconditionFailed(err)
}
