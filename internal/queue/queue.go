// Package queue keeps global FIFO waiting lines shared by rooms.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/utils"
)

var (
	ErrQueueNotFound = errors.New("queue not found")
	ErrInvalidName   = errors.New("invalid queue name")
	ErrInactive      = errors.New("queue is not active")
)

// Queue is a FIFO of waiting users. Positions are zero-based.
type Queue struct {
	mu      sync.Mutex
	id      string
	seq     uint64
	name    string
	active  bool
	entries []session.User
}

// View is the client-safe projection of a queue.
type View struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Length int            `json:"length"`
	Users  []session.User `json:"users"`
}

func (q *Queue) indexLocked(clientID string) int {
	for i, u := range q.entries {
		if u.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (q *Queue) viewLocked() View {
	return View{
		ID:     q.id,
		Name:   q.name,
		Active: q.active,
		Length: len(q.entries),
		Users:  append([]session.User(nil), q.entries...),
	}
}

type createRequest struct {
	Name string `validate:"required,min=3,max=64"`
}

// Manager is the index of global queues.
type Manager struct {
	mu       sync.RWMutex
	queues   map[string]*Queue
	seq      uint64
	validate *validator.Validate
}

// NewManager creates an empty queue index.
func NewManager() *Manager {
	return &Manager{
		queues:   make(map[string]*Queue),
		validate: validator.New(),
	}
}

// Create stores a new active queue.
func (m *Manager) Create(name string) (View, error) {
	req := createRequest{Name: strings.TrimSpace(name)}
	if err := m.validate.Struct(req); err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	q := &Queue{id: utils.NewID(), name: req.Name, active: true}
	view := q.viewLocked()

	m.mu.Lock()
	m.seq++
	q.seq = m.seq
	m.queues[q.id] = q
	m.mu.Unlock()

	return view, nil
}

func (m *Manager) lookup(queueID string) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[queueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queueID)
	}
	return q, nil
}

// Exists reports whether a queue with the id is known.
func (m *Manager) Exists(queueID string) bool {
	_, err := m.lookup(queueID)
	return err == nil
}

// View snapshots one queue.
func (m *Manager) View(queueID string) (View, error) {
	q, err := m.lookup(queueID)
	if err != nil {
		return View{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.viewLocked(), nil
}

// List snapshots all queues in creation order.
func (m *Manager) List() []View {
	m.mu.RLock()
	qs := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		qs = append(qs, q)
	}
	m.mu.RUnlock()

	sort.Slice(qs, func(i, j int) bool { return qs[i].seq < qs[j].seq })
	out := make([]View, 0, len(qs))
	for _, q := range qs {
		q.mu.Lock()
		out = append(out, q.viewLocked())
		q.mu.Unlock()
	}
	return out
}

// Add appends the user unless already waiting and returns the zero-based rank.
func (m *Manager) Add(queueID string, u session.User) (int, error) {
	q, err := m.lookup(queueID)
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(u.ClientID); i >= 0 {
		return i, nil
	}
	if !q.active {
		return 0, ErrInactive
	}
	q.entries = append(q.entries, u)
	return len(q.entries) - 1, nil
}

// Remove drops a waiter. Returns true if it was found.
func (m *Manager) Remove(queueID, clientID string) bool {
	q, err := m.lookup(queueID)
	if err != nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(clientID)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// PopNext removes and returns the head of the queue.
func (m *Manager) PopNext(queueID string) (session.User, bool) {
	q, err := m.lookup(queueID)
	if err != nil {
		return session.User{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return session.User{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// Position returns the zero-based rank of a waiter.
func (m *Manager) Position(queueID, clientID string) (int, bool) {
	q, err := m.lookup(queueID)
	if err != nil {
		return 0, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(clientID)
	return i, i >= 0
}

// Flush drains the queue and returns the evicted waiters in order.
func (m *Manager) Flush(queueID string) ([]session.User, error) {
	q, err := m.lookup(queueID)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.entries
	q.entries = nil
	return drained, nil
}

// SetActive toggles whether new waiters are accepted.
func (m *Manager) SetActive(queueID string, active bool) error {
	q, err := m.lookup(queueID)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.active = active
	q.mu.Unlock()
	return nil
}

// Delete flushes and removes the queue.
func (m *Manager) Delete(queueID string) ([]session.User, error) {
	m.mu.Lock()
	q, ok := m.queues[queueID]
	delete(m.queues, queueID)
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queueID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.entries
	q.entries = nil
	q.active = false
	return drained, nil
}

// SetOnline updates the presence flag of a waiter in every queue.
func (m *Manager) SetOnline(clientID string, online session.Online) []string {
	m.mu.RLock()
	qs := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		qs = append(qs, q)
	}
	m.mu.RUnlock()

	var changed []string
	for _, q := range qs {
		q.mu.Lock()
		if i := q.indexLocked(clientID); i >= 0 {
			q.entries[i].Online = online
			changed = append(changed, q.id)
		}
		q.mu.Unlock()
	}
	sort.Strings(changed)
	return changed
}
