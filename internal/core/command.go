package core

import (
	"encoding/json"
	"time"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCall invokes a server method.
	CommandCall CommandKind = iota
	// CommandPong answers a heartbeat.
	CommandPong
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// CallID, Method and Args are set for CommandCall.
	CallID string
	Method string
	Args   json.RawMessage

	// SentAt echoes the server time of the ping being answered.
	SentAt time.Time
}
