// Package persistence defines the storage-facing types and sentinel errors
// shared across the router's Postgres and vector-store backends.
package persistence

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("persistence: not found")

// ErrForbidden is returned when a caller's user id does not own the
// resource it is trying to read or mutate.
var ErrForbidden = errors.New("persistence: forbidden")

// Conversation is a durable conversation row: an id plus its summary
// column. The column is created empty and the store never updates it; the
// live summary lives in the Memory Manager's in-process cache.
type Conversation struct {
	ID        string
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is an immutable, persisted chat message belonging to a
// conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}
