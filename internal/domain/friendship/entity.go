// Package friendship contains the domain model for friend requests,
// canonical-pair friendships and the attendance streak between two friends.
//
// The package has no infrastructure dependencies: storage, the schedule
// service and the notification service are described as interfaces in
// repository.go and implemented in internal/infrastructure.
package friendship

import (
	"time"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST STATUS
// ══════════════════════════════════════════════════════════════════════════════

// RequestStatus is the state of a friend request.
type RequestStatus string

const (
	// RequestStatusPending - waiting for the receiver's answer.
	RequestStatusPending RequestStatus = "pending"

	// RequestStatusAccepted - terminal, a friendship was created.
	RequestStatusAccepted RequestStatus = "accepted"

	// RequestStatusRejected - terminal, no friendship.
	RequestStatusRejected RequestStatus = "rejected"
)

// IsValid checks the status is one of the known values.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can no longer change.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

// ══════════════════════════════════════════════════════════════════════════════
// FRIEND REQUEST
// ══════════════════════════════════════════════════════════════════════════════

// Request is a directed friend request from Sender to Receiver.
type Request struct {
	ID         string           `json:"id"`
	SenderID   shared.StudentID `json:"sender_id"`
	ReceiverID shared.StudentID `json:"receiver_id"`
	Status     RequestStatus    `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
	RejectedAt *time.Time       `json:"rejected_at,omitempty"`
}

// ValidateParticipants rejects empty ids and self-requests.
func ValidateParticipants(sender, receiver shared.StudentID) error {
	if sender.IsEmpty() || receiver.IsEmpty() {
		return shared.ErrEmptyStudentID
	}
	if sender == receiver {
		return shared.ErrSelfRequest
	}
	return nil
}

// NewRequest creates a pending request.
func NewRequest(id string, sender, receiver shared.StudentID, now time.Time) (*Request, error) {
	if err := ValidateParticipants(sender, receiver); err != nil {
		return nil, err
	}
	return &Request{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Status:     RequestStatusPending,
		CreatedAt:  now.UTC(),
	}, nil
}

// Pair returns the canonical pair of the two participants.
func (r *Request) Pair() shared.Pair {
	return shared.NewPair(r.SenderID, r.ReceiverID)
}

// IsPending reports whether the request still awaits an answer.
func (r *Request) IsPending() bool {
	return r.Status == RequestStatusPending
}

// Accept moves a pending request to accepted.
func (r *Request) Accept(now time.Time) error {
	if !r.IsPending() {
		return shared.ErrInvalidTransition
	}
	at := now.UTC()
	r.Status = RequestStatusAccepted
	r.AcceptedAt = &at
	return nil
}

// Reject moves a pending request to rejected.
func (r *Request) Reject(now time.Time) error {
	if !r.IsPending() {
		return shared.ErrInvalidTransition
	}
	at := now.UTC()
	r.Status = RequestStatusRejected
	r.RejectedAt = &at
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FRIENDSHIP
// ══════════════════════════════════════════════════════════════════════════════

// Friendship is the single undirected relation between two students.
// Pair is canonical, so a lookup from either side sees the same row.
type Friendship struct {
	ID        string      `json:"id"`
	Pair      shared.Pair `json:"pair"`
	CreatedAt time.Time   `json:"created_at"`

	Streak
}

// NewFriendship creates a friendship with no attendance recorded.
func NewFriendship(id string, pair shared.Pair, now time.Time) *Friendship {
	return &Friendship{
		ID:        id,
		Pair:      pair,
		CreatedAt: now.UTC(),
	}
}

// Student1ID returns the lower id of the pair.
func (f *Friendship) Student1ID() shared.StudentID { return f.Pair.Low }

// Student2ID returns the higher id of the pair.
func (f *Friendship) Student2ID() shared.StudentID { return f.Pair.High }

// FriendOf returns the counterpart of studentID.
func (f *Friendship) FriendOf(studentID shared.StudentID) (shared.StudentID, bool) {
	return f.Pair.Other(studentID)
}

// StartDate is the calendar date the friendship was created on in loc.
func (f *Friendship) StartDate(loc *time.Location) timeutil.Date {
	return timeutil.DateOf(f.CreatedAt, loc)
}

// Clone returns a copy safe to hand out of a store.
func (f *Friendship) Clone() *Friendship {
	c := *f
	return &c
}
