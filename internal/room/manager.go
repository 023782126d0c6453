package room

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/utils"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidAttributes = errors.New("invalid room attributes")
	ErrAlreadyPaused     = errors.New("already paused")
	ErrNotPaused         = errors.New("not paused")
	ErrNotInRoom         = errors.New("not in room")
)

// JoinStatus is the outcome of AddUser.
type JoinStatus int

const (
	Joined JoinStatus = iota
	Queued
	Full
)

// AddResult reports how a join request was handled. Position is the
// zero-based rank in the private queue when Status is Queued.
type AddResult struct {
	Status   JoinStatus
	Position int
}

// RemoveResult reports the room after a removal. Promoted is set when the
// freed slot went to the head of the private queue.
type RemoveResult struct {
	Removed  bool
	Users    []session.User
	Promoted *session.User
}

// Manager is the index of rooms.
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	seq      uint64
	validate *validator.Validate
	now      func() time.Time
}

// NewManager creates an empty room index.
func NewManager() *Manager {
	return &Manager{
		rooms:    make(map[string]*Room),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Create validates the attributes and stores a new room.
func (m *Manager) Create(attrs Attributes) (View, error) {
	attrs.Name = strings.TrimSpace(attrs.Name)
	attrs.QueueSystem = strings.TrimSpace(attrs.QueueSystem)
	if err := m.validate.Struct(attrs); err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrInvalidAttributes, err)
	}

	r := &Room{
		id:          utils.NewID(),
		name:        attrs.Name,
		maxSize:     attrs.MaxSize,
		private:     attrs.Private,
		queueSystem: attrs.QueueSystem,
		createdAt:   m.now(),
		users:       make(map[string]session.User),
	}

	m.mu.Lock()
	m.seq++
	r.seq = m.seq
	m.rooms[r.id] = r
	m.mu.Unlock()

	return r.View(), nil
}

// Get returns the room with the given id.
func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *Manager) lookup(roomID string) (*Room, error) {
	r, ok := m.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r, nil
}

// View snapshots one room.
func (m *Manager) View(roomID string) (View, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return View{}, err
	}
	return r.View(), nil
}

// List snapshots all rooms in creation order.
func (m *Manager) List() []View {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].seq < rooms[j].seq })
	views := make([]View, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, r.View())
	}
	return views
}

// AddUser admits the user if there is room, queues them when the room uses a
// private queue, and otherwise reports Full. Joining twice is a no-op.
func (m *Manager) AddUser(roomID string, u session.User) (AddResult, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return AddResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ClientID]; ok {
		return AddResult{Status: Joined}, nil
	}
	if i := r.queueIndexLocked(u.ClientID); i >= 0 {
		return AddResult{Status: Queued, Position: i}, nil
	}
	if !r.fullLocked() {
		r.admitLocked(u)
		return AddResult{Status: Joined}, nil
	}
	if r.queueSystem == QueuePrivate {
		r.queue = append(r.queue, u)
		return AddResult{Status: Queued, Position: len(r.queue) - 1}, nil
	}
	return AddResult{Status: Full}, nil
}

// RemoveUser removes a member and, in the same critical section, admits the
// head of the private queue into the freed slot.
func (m *Manager) RemoveUser(roomID, clientID string) (RemoveResult, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return RemoveResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := RemoveResult{Removed: r.dropLocked(clientID)}
	if res.Removed && r.queueSystem == QueuePrivate && len(r.queue) > 0 && !r.fullLocked() {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.admitLocked(next)
		res.Promoted = &next
	}
	res.Users = r.usersLocked()
	return res, nil
}

// RemoveFromQueue drops a waiter from the private queue.
func (m *Manager) RemoveFromQueue(roomID, clientID string) (bool, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.queueIndexLocked(clientID)
	if i < 0 {
		return false, nil
	}
	r.queue = append(r.queue[:i], r.queue[i+1:]...)
	return true, nil
}

// QueuePosition returns the zero-based rank of a waiter.
func (m *Manager) QueuePosition(roomID, clientID string) (int, bool) {
	r, ok := m.Get(roomID)
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.queueIndexLocked(clientID)
	return i, i >= 0
}

// Queue returns a copy of the private queue, head first.
func (m *Manager) Queue(roomID string) []session.User {
	r, ok := m.Get(roomID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.User(nil), r.queue...)
}

// Contains reports whether the client occupies a slot in the room.
func (m *Manager) Contains(roomID, clientID string) bool {
	r, ok := m.Get(roomID)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, in := r.users[clientID]
	return in
}

// Pause marks the room paused.
func (m *Manager) Pause(roomID string) (View, error) {
	return m.setPaused(roomID, true)
}

// Unpause clears the paused flag.
func (m *Manager) Unpause(roomID string) (View, error) {
	return m.setPaused(roomID, false)
}

func (m *Manager) setPaused(roomID string, paused bool) (View, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return View{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.paused == paused {
		if paused {
			return View{}, ErrAlreadyPaused
		}
		return View{}, ErrNotPaused
	}
	r.paused = paused
	return r.viewLocked(), nil
}

// HasCounselor reports whether a counselor who is not disconnected is in the room.
func (m *Manager) HasCounselor(roomID string) bool {
	r, ok := m.Get(roomID)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Counselor && u.Online != session.OnlineDisconnected {
			return true
		}
	}
	return false
}

// SetOnline updates the presence flag of a client in every room and queue
// it appears in, returning the ids of the rooms that changed.
func (m *Manager) SetOnline(clientID string, online session.Online) []string {
	return m.updateUser(clientID, func(u *session.User) { u.Online = online })
}

// SetMuted updates the muted flag of a member.
func (m *Manager) SetMuted(roomID, clientID string, muted bool) error {
	r, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[clientID]
	if !ok {
		return ErrNotInRoom
	}
	u.Muted = muted
	r.users[clientID] = u
	return nil
}

func (m *Manager) updateUser(clientID string, fn func(*session.User)) []string {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	var changed []string
	for _, r := range rooms {
		r.mu.Lock()
		hit := false
		if u, ok := r.users[clientID]; ok {
			fn(&u)
			r.users[clientID] = u
			hit = true
		}
		if i := r.queueIndexLocked(clientID); i >= 0 {
			fn(&r.queue[i])
			hit = true
		}
		r.mu.Unlock()
		if hit {
			changed = append(changed, r.id)
		}
	}
	sort.Strings(changed)
	return changed
}

// Delete removes the room from the index and returns its final state along
// with the waiters that were still queued.
func (m *Manager) Delete(roomID string) (View, []session.User, error) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if ok {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()
	if !ok {
		return View{}, nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	view := r.viewLocked()
	waiting := r.queue
	r.queue = nil
	return view, waiting, nil
}

// ByQueueSystem lists rooms routed to the given global queue, oldest first.
func (m *Manager) ByQueueSystem(queueID string) []View {
	var out []View
	for _, v := range m.List() {
		if v.QueueSystem == queueID {
			out = append(out, v)
		}
	}
	return out
}

// FirstWithFreeSlot returns the oldest room behind the given global queue
// that can take another member.
func (m *Manager) FirstWithFreeSlot(queueID string) (string, bool) {
	for _, v := range m.ByQueueSystem(queueID) {
		if v.MaxSize == 0 || v.MemberCount < v.MaxSize {
			return v.ID, true
		}
	}
	return "", false
}
