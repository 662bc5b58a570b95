package utils

import "github.com/google/uuid"

var newUUIDv7 = uuid.NewV7

// NewOrderedID returns a UUIDv7 so that row IDs sort by creation time.
// It falls back to a random UUID if the clock source fails.
func NewOrderedID() uuid.UUID {
	if id, err := newUUIDv7(); err == nil {
		return id
	}
	return uuid.New()
}
