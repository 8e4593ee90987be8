package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_KindMatching(t *testing.T) {
	assert.True(t, IsInvalidArgument(ErrSelfRequest))
	assert.True(t, IsConflict(ErrPendingRequestExist))
	assert.True(t, IsConflict(ErrFriendshipExists))
	assert.True(t, IsNotFound(ErrRequestNotPending))
	assert.True(t, IsPreconditionFailed(ErrNotSameCohort))
	assert.False(t, IsNotFound(ErrConflict))

	wrapped := fmt.Errorf("accept: %w", ErrRequestNotPending)
	assert.True(t, IsNotFound(wrapped))
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable("GetFriendship", cause)

	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store.GetFriendship: store operation failed: connection refused", err.Error())
	assert.NoError(t, StoreUnavailable("noop", nil))
}

func TestExternalServiceIsTransientInfrastructure(t *testing.T) {
	err := fmt.Errorf("send request: %w", WrapError("schedule", "CheckCohort", ErrExternalService, "cohort validation failed", errors.New("timeout")))

	assert.True(t, IsExternalService(err))
	assert.True(t, IsStoreUnavailable(err))
	assert.True(t, IsStoreUnavailable(ErrScheduleServiceFailed))
	assert.False(t, IsExternalService(StoreUnavailable("GetFriendship", errors.New("conn reset"))))
	assert.False(t, IsPreconditionFailed(err))
}

func TestNewStudentID(t *testing.T) {
	id, err := NewStudentID("  s-42 ")
	require.NoError(t, err)
	assert.Equal(t, StudentID("s-42"), id)

	_, err = NewStudentID("   ")
	assert.True(t, IsInvalidArgument(err))
}

func TestPair_IsCanonical(t *testing.T) {
	p1 := NewPair("bob", "alice")
	p2 := NewPair("alice", "bob")
	assert.Equal(t, p1, p2)
	assert.Equal(t, StudentID("alice"), p1.Low)
	assert.Equal(t, "alice:bob", p1.String())

	other, ok := p1.Other("bob")
	assert.True(t, ok)
	assert.Equal(t, StudentID("alice"), other)

	_, ok = p1.Other("carol")
	assert.False(t, ok)
	assert.True(t, p1.Contains("alice"))
}

func TestEvent_JSON(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := NewEvent(EventFriendRequestReceived, "s2", now, map[string]any{"sender_id": "s1"})

	data, err := e.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"friend_request.received"`)

	back, err := EventFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, e.RecipientID, back.RecipientID)
	assert.Equal(t, "s1", back.Payload["sender_id"])
}
