package session

import "time"

// State is the connection state of a session.
type State int

const (
	// StateCreated is a session whose transport has not reported ready yet.
	StateCreated State = iota
	// StateConnected is a live session answering heartbeats.
	StateConnected
	// StatePendingTimeout is a session that lost its transport or stopped
	// answering pings but may still come back.
	StatePendingTimeout
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnected:
		return "connected"
	case StatePendingTimeout:
		return "pending_timeout"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Online is the presence flag shown to other clients.
type Online string

const (
	OnlineActive       Online = "online"
	OnlineReconnecting Online = "reconnecting"
	OnlineDisconnected Online = "disconnected"
)

// Online maps a connection state to its presence flag.
func (s State) Online() Online {
	switch s {
	case StateConnected, StateCreated:
		return OnlineActive
	case StatePendingTimeout:
		return OnlineReconnecting
	default:
		return OnlineDisconnected
	}
}

// Transition records a state change produced by a session operation.
type Transition struct {
	From State
	To   State
}

// Changed reports whether the state actually moved.
func (t Transition) Changed() bool { return t.From != t.To }

// Timing holds the heartbeat parameters. All thresholds derive from the
// reconnect interval so a config change takes effect on the next tick.
type Timing struct {
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
}

// ClientTimeout is the silence after which a connected session is suspected dead.
func (t Timing) ClientTimeout() time.Duration { return t.ReconnectInterval / 2 }

// PingInterval is the spacing between heartbeats.
func (t Timing) PingInterval() time.Duration { return t.ClientTimeout() / 2 }

// DisconnectLimit is the silence after which a session is confirmed dead.
func (t Timing) DisconnectLimit() time.Duration {
	return time.Duration(t.MaxReconnectAttempts) * t.ReconnectInterval
}
