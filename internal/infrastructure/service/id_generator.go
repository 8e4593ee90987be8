package service

import (
	"github.com/google/uuid"

	"github.com/alem-hub/friendship-streaks/internal/domain/friendship"
)

// UUIDGenerator issues random (v4) UUIDs for requests and friendships.
type UUIDGenerator struct{}

var _ friendship.IDGenerator = UUIDGenerator{}

// NewIDGenerator creates a UUID generator.
func NewIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// NewID returns a new UUID string.
func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}
