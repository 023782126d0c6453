// Package group keeps named sets of client ids used for broadcast fan-out
// and for gating server methods by membership.
package group

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Well-known group names.
const (
	Everyone   = "everyone"
	SignedIn   = "signedIn"
	Counselors = "counselors"
	Guests     = "guests"
)

var (
	// ErrNoPermission is returned when the caller is not a member of the method's group.
	ErrNoPermission = errors.New("no permission")
	// ErrUnknownMethod is returned when no server method is registered under the name.
	ErrUnknownMethod = errors.New("unknown method")
)

// RoomGroup returns the broadcast group name backing a room.
func RoomGroup(roomID string) string { return "room:" + roomID }

// QueueGroup returns the broadcast group name backing a global queue.
func QueueGroup(queueID string) string { return "queue:" + queueID }

// Recipient receives client-side method invocations.
type Recipient interface {
	Remote(method string, args ...any) error
}

// Handler serves a server method. It must eventually call c.Reply exactly once.
type Handler func(c *Call)

// Call is one inbound invocation of a server method.
type Call struct {
	ClientID string
	Method   string
	Args     json.RawMessage

	reply func(data any, err error)
	once  sync.Once
}

// NewCall builds a call whose reply is delivered through fn.
func NewCall(clientID, method string, args json.RawMessage, fn func(data any, err error)) *Call {
	return &Call{ClientID: clientID, Method: method, Args: args, reply: fn}
}

// Reply acknowledges the caller. Subsequent calls are ignored.
func (c *Call) Reply(data any, err error) {
	c.once.Do(func() {
		if c.reply != nil {
			c.reply(data, err)
		}
	})
}

// Bind decodes the call arguments into v.
func (c *Call) Bind(v any) error {
	if len(c.Args) == 0 {
		return fmt.Errorf("%s: missing arguments", c.Method)
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("%s: decode arguments: %w", c.Method, err)
	}
	return nil
}

type serverMethod struct {
	group   string
	handler Handler
}

// Registry owns every group and the global client directory.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Recipient
	groups  map[string]*Group
	methods map[string]serverMethod
	log     *zerolog.Logger
}

// NewRegistry creates an empty registry with the "everyone" group in place.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	r := &Registry{
		clients: make(map[string]Recipient),
		groups:  make(map[string]*Group),
		methods: make(map[string]serverMethod),
		log:     logger,
	}
	r.groups[Everyone] = newGroup(r, Everyone)
	return r
}

// Register adds the client to the global directory and the "everyone" group.
// Registering a known id swaps its recipient and keeps its memberships.
func (r *Registry) Register(clientID string, rcpt Recipient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[clientID] = rcpt
	r.groups[Everyone].members[clientID] = true
}

// Unregister drops the client from the directory and from every group.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, clientID)
	for _, g := range r.groups {
		delete(g.members, clientID)
	}
}

// Group returns the named group, creating it on first reference.
func (r *Registry) Group(name string) *Group {
	r.mu.RLock()
	g, ok := r.groups[name]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.groups[name]; ok {
		return g
	}
	g = newGroup(r, name)
	r.groups[name] = g
	return g
}

// Invoke runs the server method named by the call after checking that the
// caller belongs to the method's group. Gate failures are returned and the
// handler is not run; the handler itself replies through the call.
func (r *Registry) Invoke(c *Call) error {
	r.mu.RLock()
	m, ok := r.methods[c.Method]
	allowed := ok && (m.group == Everyone || r.groups[m.group].members[c.ClientID])
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, c.Method)
	}
	if !allowed {
		r.log.Warn().
			Str("client_id", c.ClientID).
			Str("method", c.Method).
			Str("group", m.group).
			Msg("unauthorized server method call")
		return ErrNoPermission
	}

	m.handler(c)
	return nil
}

// Group is a named set of client ids.
type Group struct {
	name     string
	registry *Registry
	members  map[string]bool
}

func newGroup(r *Registry, name string) *Group {
	return &Group{name: name, registry: r, members: make(map[string]bool)}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Add inserts a client. Clients unknown to the registry are rejected.
func (g *Group) Add(clientID string) bool {
	g.registry.mu.Lock()
	defer g.registry.mu.Unlock()

	if _, ok := g.registry.clients[clientID]; !ok {
		return false
	}
	g.members[clientID] = true
	return true
}

// Remove deletes a client. Returns true if it was a member.
func (g *Group) Remove(clientID string) bool {
	g.registry.mu.Lock()
	defer g.registry.mu.Unlock()

	if !g.members[clientID] {
		return false
	}
	delete(g.members, clientID)
	return true
}

// Has reports membership.
func (g *Group) Has(clientID string) bool {
	g.registry.mu.RLock()
	defer g.registry.mu.RUnlock()
	return g.members[clientID]
}

// Count returns the number of members.
func (g *Group) Count() int {
	g.registry.mu.RLock()
	defer g.registry.mu.RUnlock()
	return len(g.members)
}

// Members returns a sorted copy of the member ids.
func (g *Group) Members() []string {
	g.registry.mu.RLock()
	defer g.registry.mu.RUnlock()

	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear drops every member.
func (g *Group) Clear() {
	g.registry.mu.Lock()
	defer g.registry.mu.Unlock()
	clear(g.members)
}

// AddServerMethod registers a method callable only by members of this group.
// Methods on the "everyone" group are open to any registered client.
func (g *Group) AddServerMethod(name string, h Handler) {
	g.registry.mu.Lock()
	defer g.registry.mu.Unlock()
	g.registry.methods[name] = serverMethod{group: g.name, handler: h}
}

// Remote invokes a client-side method on every member and returns the number
// of delivery attempts. A failing member is logged and skipped.
func (g *Group) Remote(method string, args ...any) int {
	type target struct {
		id   string
		rcpt Recipient
	}

	g.registry.mu.RLock()
	targets := make([]target, 0, len(g.members))
	for id := range g.members {
		targets = append(targets, target{id: id, rcpt: g.registry.clients[id]})
	}
	g.registry.mu.RUnlock()

	for _, t := range targets {
		if err := deliver(t.rcpt, method, args); err != nil {
			g.registry.log.Warn().
				Err(err).
				Str("group", g.name).
				Str("client_id", t.id).
				Str("method", method).
				Msg("remote call failed")
		}
	}
	return len(targets)
}

func deliver(rcpt Recipient, method string, args []any) (err error) {
	if rcpt == nil {
		return errors.New("no recipient")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("recipient panicked: %v", p)
		}
	}()
	return rcpt.Remote(method, args...)
}
