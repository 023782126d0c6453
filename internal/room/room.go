// Package room owns chat rooms: bounded membership, a private overflow
// queue and pause state.
package room

import (
	"sync"
	"time"

	"github.com/vovakirdan/counselchat/internal/session"
)

// QueuePrivate selects the room's own FIFO queue as overflow.
const QueuePrivate = "private"

// Attributes are the counselor-supplied settings of a new room.
type Attributes struct {
	Name        string `json:"name" validate:"required,min=3,max=64"`
	MaxSize     int    `json:"maxSize" validate:"gte=0,lte=1000"`
	Private     bool   `json:"private"`
	QueueSystem string `json:"queueSystem" validate:"max=64"`
}

// Room is a bounded chat space. All membership changes hold mu.
type Room struct {
	mu sync.Mutex

	id          string
	seq         uint64
	name        string
	maxSize     int
	private     bool
	paused      bool
	queueSystem string
	createdAt   time.Time

	users map[string]session.User
	order []string
	queue []session.User
}

// View is the client-safe projection of a room.
type View struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	MaxSize     int            `json:"maxSize"`
	Private     bool           `json:"private"`
	Paused      bool           `json:"paused"`
	QueueSystem string         `json:"queueSystem,omitempty"`
	MemberCount int            `json:"memberCount"`
	QueueLength int            `json:"queueLength"`
	Users       []session.User `json:"users"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (r *Room) ID() string { return r.id }
func (r *Room) QueueSystem() string { return r.queueSystem }

// View snapshots the room.
func (r *Room) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Room) viewLocked() View {
	return View{
		ID:          r.id,
		Name:        r.name,
		MaxSize:     r.maxSize,
		Private:     r.private,
		Paused:      r.paused,
		QueueSystem: r.queueSystem,
		MemberCount: len(r.users),
		QueueLength: len(r.queue),
		Users:       r.usersLocked(),
		CreatedAt:   r.createdAt,
	}
}

func (r *Room) usersLocked() []session.User {
	out := make([]session.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}

func (r *Room) fullLocked() bool {
	return r.maxSize > 0 && len(r.users) >= r.maxSize
}

func (r *Room) queueIndexLocked(clientID string) int {
	for i, u := range r.queue {
		if u.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (r *Room) admitLocked(u session.User) {
	r.users[u.ClientID] = u
	r.order = append(r.order, u.ClientID)
}

func (r *Room) dropLocked(clientID string) bool {
	if _, ok := r.users[clientID]; !ok {
		return false
	}
	delete(r.users, clientID)
	for i, id := range r.order {
		if id == clientID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}
