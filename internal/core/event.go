package core

import "time"

// EventKind is a notification the core emits to a client connection.
type EventKind int

const (
	// EventCall invokes a client-side method.
	EventCall EventKind = iota
	// EventReply answers a server method call issued by the client.
	EventReply
	// EventPing is a heartbeat carrying the server send time.
	EventPing
)

func (k EventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventReply:
		return "reply"
	case EventPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind

	// Method and Args are set for EventCall.
	Method string
	Args   []any

	// CallID, Data and Error are set for EventReply.
	CallID string
	Data   any
	Error  *CoreError

	// SentAt is set for EventPing.
	SentAt time.Time
}
