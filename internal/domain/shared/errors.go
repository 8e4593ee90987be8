// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Every error surfaced by the registry, the streak engine
// and the aggregator matches one of the first five via errors.Is().
var (
	// ErrInvalidArgument: malformed or self-referential input, caught before
	// any store access.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict: duplicate pending request or duplicate friendship.
	ErrConflict = errors.New("conflict")

	// ErrNotFound: operation target absent or not in the required state.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed: an external validation rejected the operation.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrStoreUnavailable: transient infrastructure fault in the store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrExternalService: a collaborator (schedule, notification, profile
	// service) failed or could not be reached. It also matches
	// ErrStoreUnavailable, so callers that only know the five kinds treat
	// it as a transient infrastructure fault.
	ErrExternalService error = &infraKind{msg: "external service error"}
)

// infraKind is an error kind that is also a transient infrastructure fault.
type infraKind struct {
	msg string
}

func (k *infraKind) Error() string { return k.msg }

func (k *infraKind) Is(target error) bool { return target == ErrStoreUnavailable }

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "friendship", "streak", "ranking"
	Op      string // Operation that failed, e.g., "SendRequest"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Friendship domain errors
var (
	ErrEmptyStudentID      = NewDomainError("friendship", "Validate", ErrInvalidArgument, "student id cannot be empty")
	ErrSelfRequest         = NewDomainError("friendship", "SendRequest", ErrInvalidArgument, "cannot send a friend request to self")
	ErrNotSameCohort       = NewDomainError("friendship", "SendRequest", ErrPreconditionFailed, "students are not in the same cohort")
	ErrFriendshipExists    = NewDomainError("friendship", "SendRequest", ErrConflict, "friendship already exists")
	ErrPendingRequestExist = NewDomainError("friendship", "SendRequest", ErrConflict, "a pending request already exists for this pair")
	ErrRequestNotPending   = NewDomainError("friendship", "Respond", ErrNotFound, "no pending request with this id")
	ErrFriendshipNotFound  = NewDomainError("friendship", "Find", ErrNotFound, "friendship not found")
	ErrInvalidTransition   = NewDomainError("friendship", "Transition", ErrNotFound, "request is no longer pending")
)

// Ranking errors
var (
	ErrInvalidLimit = NewDomainError("ranking", "Validate", ErrInvalidArgument, "limit must be a positive integer")
)

// External service errors
var (
	ErrScheduleServiceFailed = NewDomainError("schedule", "Request", ErrExternalService, "schedule service request failed")
	ErrNotificationFailed    = NewDomainError("notification", "Send", ErrExternalService, "failed to send notification")
	ErrProfileLookupFailed   = NewDomainError("profile", "Lookup", ErrExternalService, "profile lookup failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidArgument checks if the error is a validation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsPreconditionFailed checks if an external validation rejected the operation.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

// IsStoreUnavailable checks if the error is a transient infrastructure fault,
// in the store or in an external service.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService)
}

// StoreUnavailable wraps an infrastructure error as ErrStoreUnavailable.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError("store", op, ErrStoreUnavailable, "store operation failed", err)
}
