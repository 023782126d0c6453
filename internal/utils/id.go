package utils

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random identifier for clients, rooms and queues.
func NewID() string {
	return uuid.NewString()
}

// NewMessageID returns a lexically sortable identifier for chat messages.
func NewMessageID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}
