// Package session implements the per-connection state machine: heartbeat
// bookkeeping, timeout detection and reconnect takeover.
//
// A Session is owned by the coordinator's event loop and is not safe for
// concurrent use.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNoTransport is returned when a remote call targets a session without a live transport.
	ErrNoTransport = errors.New("session has no transport")
	// ErrInvalidState is returned when an operation does not apply to the current state.
	ErrInvalidState = errors.New("invalid session state")
)

// Transport is the outbound half of a client connection.
type Transport interface {
	// Call invokes a client-side method without waiting for an answer.
	Call(method string, args ...any) error
	// Ping sends a heartbeat carrying the server timestamp.
	Ping(sentAt time.Time) error
	// Close shuts the connection down.
	Close(reason string)
}

// Meta describes where a connection comes from.
type Meta struct {
	IP        string
	UserAgent string
	Port      int
}

// Role distinguishes guests from counselors.
type Role int

const (
	RoleGuest Role = iota
	RoleCounselor
)

// Session is the server-side view of one logical client.
type Session struct {
	id        string
	state     State
	transport Transport
	meta      Meta
	ping      PingStats

	profile   Profile
	accountID string
	role      Role
	signedIn  bool
	signingIn bool
	muted     bool

	activeRoomID      string
	activeQueueRoomID string
	activeQueueID     string

	statsID       int64
	chatStartedAt time.Time
}

// New creates a session in StateCreated.
func New(id string) *Session {
	return &Session{id: id, state: StateCreated}
}

func (s *Session) ID() string { return s.id }
func (s *Session) State() State { return s.state }
func (s *Session) Meta() Meta { return s.meta }
func (s *Session) Ping() PingStats { return s.ping }
func (s *Session) Profile() Profile { return s.profile }
func (s *Session) AccountID() string { return s.accountID }
func (s *Session) Role() Role { return s.role }
func (s *Session) IsCounselor() bool { return s.role == RoleCounselor }
func (s *Session) SignedIn() bool { return s.signedIn }

// SigningIn reports whether a sign-in is being authenticated.
func (s *Session) SigningIn() bool { return s.signingIn }
func (s *Session) Muted() bool { return s.muted }
func (s *Session) HasTransport() bool { return s.transport != nil }
func (s *Session) ActiveRoomID() string { return s.activeRoomID }

// ActiveQueueRoomID is the room whose private queue the client waits in.
func (s *Session) ActiveQueueRoomID() string { return s.activeQueueRoomID }

// ActiveQueueID is the global queue the client waits in.
func (s *Session) ActiveQueueID() string { return s.activeQueueID }

// Connect attaches the transport and moves Created to Connected.
func (s *Session) Connect(t Transport, meta Meta, now time.Time) (Transition, error) {
	if s.state != StateCreated {
		return Transition{From: s.state, To: s.state}, ErrInvalidState
	}
	s.transport = t
	s.meta = meta
	s.ping.LastSent = now
	s.ping.LastSuccess = now
	s.ping.successSentAt = now
	return s.set(StateConnected), nil
}

// TransportClosed handles the transport reporting closure.
func (s *Session) TransportClosed() Transition {
	s.transport = nil
	if s.state == StateConnected {
		return s.set(StatePendingTimeout)
	}
	return Transition{From: s.state, To: s.state}
}

// Tick drives heartbeats and timeouts. It is meant to run periodically; all
// thresholds are recomputed from t on every call.
func (s *Session) Tick(now time.Time, t Timing) Transition {
	silence := now.Sub(s.ping.LastSuccess)

	switch s.state {
	case StateConnected:
		if silence > t.ClientTimeout() {
			return s.set(StatePendingTimeout)
		}
		if s.ping.Outstanding && now.Sub(s.ping.LastSent) > t.ClientTimeout() {
			// the reply is considered lost
			s.ping.Outstanding = false
		}
		if !s.ping.Outstanding && now.Sub(s.ping.LastSent) >= t.PingInterval() {
			s.sendPing(now)
		}
	case StatePendingTimeout:
		if silence > t.DisconnectLimit() {
			return s.Disconnect()
		}
	}
	return Transition{From: s.state, To: s.state}
}

func (s *Session) sendPing(now time.Time) {
	if s.transport == nil {
		return
	}
	if err := s.transport.Ping(now); err != nil {
		return
	}
	s.ping.LastSent = now
	s.ping.Outstanding = true
}

// HandlePong records a heartbeat reply carrying the echoed send time.
// Replies older than the last recorded success are discarded. A reply
// arriving on a still-attached transport while pending rescues the session.
func (s *Session) HandlePong(sentAt, now time.Time) (bool, Transition) {
	noop := Transition{From: s.state, To: s.state}
	if s.state == StateDisconnected || s.state == StateCreated {
		return false, noop
	}
	if !s.ping.record(sentAt, now) {
		return false, noop
	}
	if s.state == StatePendingTimeout && s.transport != nil {
		return true, s.set(StateConnected)
	}
	return true, noop
}

// Disconnect moves the session to its terminal state and releases the transport.
func (s *Session) Disconnect() Transition {
	if s.state == StateDisconnected {
		return Transition{From: s.state, To: s.state}
	}
	if s.transport != nil {
		s.transport.Close("disconnected")
		s.transport = nil
	}
	return s.set(StateDisconnected)
}

// Close shuts the transport down without changing state; the transport
// reports closure on its own.
func (s *Session) Close(reason string) {
	if s.transport != nil {
		s.transport.Close(reason)
	}
}

// TakeOver makes s, a freshly connected session, assume the identity and
// linkage of old. The old session is retired without a state transition
// being reported, so no second cleanup runs for the shared client id.
func (s *Session) TakeOver(old *Session, now time.Time) error {
	if old == nil || old == s {
		return ErrInvalidState
	}
	if s.state != StateConnected || old.state == StateDisconnected {
		return ErrInvalidState
	}

	s.id = old.id
	s.profile = old.profile
	s.accountID = old.accountID
	s.role = old.role
	s.signedIn = old.signedIn
	s.muted = old.muted
	s.activeRoomID = old.activeRoomID
	s.activeQueueRoomID = old.activeQueueRoomID
	s.activeQueueID = old.activeQueueID
	s.statsID = old.statsID
	s.chatStartedAt = old.chatStartedAt
	s.ping.recent = old.ping.Samples()
	s.ping.Delay = old.ping.Delay
	s.ping.LastSuccess = now

	if old.transport != nil {
		old.transport.Close("superseded")
		old.transport = nil
	}
	old.state = StateDisconnected
	return nil
}

// Remote invokes a client-side method.
func (s *Session) Remote(method string, args ...any) error {
	if s.transport == nil {
		return ErrNoTransport
	}
	return s.transport.Call(method, args...)
}

// BeginSignIn marks a sign-in as in flight. It fails when the session is
// already signed in or another sign-in is pending.
func (s *Session) BeginSignIn() bool {
	if s.signedIn || s.signingIn {
		return false
	}
	s.signingIn = true
	return true
}

// AbortSignIn clears a pending sign-in after authentication failed.
func (s *Session) AbortSignIn() { s.signingIn = false }

// SignIn records the authenticated identity.
func (s *Session) SignIn(accountID string, role Role, p Profile) {
	s.signingIn = false
	s.accountID = accountID
	s.role = role
	s.signedIn = true
	city, country := s.profile.City, s.profile.Country
	s.profile = p
	if s.profile.City == "" {
		s.profile.City = city
	}
	if s.profile.Country == "" {
		s.profile.Country = country
	}
}

// SetLocation stores the geolocation of the client address.
func (s *Session) SetLocation(city, country string) {
	s.profile.City = city
	s.profile.Country = country
}

func (s *Session) SetMuted(m bool) { s.muted = m }
func (s *Session) SetActiveRoom(roomID string) { s.activeRoomID = roomID }
func (s *Session) SetActiveQueueRoom(id string) { s.activeQueueRoomID = id }
func (s *Session) SetActiveQueue(id string) { s.activeQueueID = id }

// StartChat marks the start of a guest chat.
func (s *Session) StartChat(now time.Time) {
	s.statsID = 0
	s.chatStartedAt = now
}

// AttachStats binds the stats row created for the chat that started at
// startedAt. It is a no-op if that chat already ended.
func (s *Session) AttachStats(statsID int64, startedAt time.Time) bool {
	if s.chatStartedAt.IsZero() || !s.chatStartedAt.Equal(startedAt) {
		return false
	}
	s.statsID = statsID
	return true
}

// ChatStartedAt returns the start of the current guest chat, if any.
func (s *Session) ChatStartedAt() time.Time { return s.chatStartedAt }

// EndChat returns the open stats row and chat duration, and clears them.
func (s *Session) EndChat(now time.Time) (int64, time.Duration, bool) {
	if s.chatStartedAt.IsZero() {
		return 0, 0, false
	}
	id, d := s.statsID, now.Sub(s.chatStartedAt)
	s.statsID = 0
	s.chatStartedAt = time.Time{}
	return id, d, true
}

// User returns the snapshot stored in rooms and queues.
func (s *Session) User() User {
	return User{
		ClientID:  s.id,
		Nickname:  s.profile.Nickname,
		Gender:    s.profile.Gender,
		Age:       s.profile.Age,
		Counselor: s.role == RoleCounselor,
		Muted:     s.muted,
		Online:    s.state.Online(),
	}
}

func (s *Session) set(to State) Transition {
	tr := Transition{From: s.state, To: to}
	s.state = to
	return tr
}
