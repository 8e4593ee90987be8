package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Event types delivered to the notification service.
const (
	EventFriendRequestReceived EventType = "friend_request.received"
	EventFriendRequestAccepted EventType = "friend_request.accepted"
	EventFriendRequestRejected EventType = "friend_request.rejected"
	EventFriendshipRemoved     EventType = "friendship.removed"
	EventStreakUpdated         EventType = "streak.updated"
)

// Event is a notification-worthy fact addressed to one student.
type Event struct {
	Type        EventType      `json:"type"`
	RecipientID StudentID      `json:"recipient_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewEvent creates an event stamped with now.
func NewEvent(t EventType, recipient StudentID, now time.Time, payload map[string]any) Event {
	return Event{
		Type:        t,
		RecipientID: recipient,
		Timestamp:   now.UTC(),
		Payload:     payload,
	}
}

// ToJSON serializes the event.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON deserializes an event.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
