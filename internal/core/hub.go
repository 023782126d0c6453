package core

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/ban"
	"github.com/vovakirdan/counselchat/internal/geo"
	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/metrics"
	"github.com/vovakirdan/counselchat/internal/queue"
	"github.com/vovakirdan/counselchat/internal/room"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store"
)

// Authenticator resolves sign-in credentials and resume tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (auth.Account, error)
	IssueResumeToken(clientID string, acc auth.Account) (string, error)
	ParseResumeToken(token string) (*auth.ResumeClaims, error)
}

// Store is the persistence the hub writes to. Failures are logged and
// otherwise ignored unless a reply depends on the result.
type Store interface {
	store.BanStore
	store.InviteStore
	store.ReportStore
	store.StatsStore
}

// Config tunes the hub.
type Config struct {
	Timing              session.Timing
	SweepInterval       time.Duration
	BanCloseGrace       time.Duration
	RoomFullRedirectURL string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Deps are the collaborators of the hub. Store, Bans and Geo may be nil.
type Deps struct {
	Auth      Authenticator
	Store     Store
	Bans      *ban.Registry
	Geo       geo.Locator
	GeoPolicy geo.Policy
	Logger    *zerolog.Logger
}

type hubEventKind int

const (
	hubAttach hubEventKind = iota
	hubDetach
	hubCommand
)

type hubEvent struct {
	kind   hubEventKind
	client *Client
	cmd    *Command
}

// Hub coordinates sessions, rooms and queues. All world state is owned by
// the goroutine running Run; everything else posts to it.
type Hub struct {
	cfg      Config
	auth     Authenticator
	store    Store
	bans     *ban.Registry
	locator  geo.Locator
	policy   geo.Policy
	log      *zerolog.Logger
	validate *validator.Validate

	groups *group.Registry
	rooms  *room.Manager
	queues *queue.Manager

	sessions map[string]*session.Session
	conns    map[*Client]*session.Session
	accounts map[string]auth.Account
	blocked  map[string]struct{}

	events chan hubEvent
	tasks  chan func()
	done   chan struct{}
	ctx    context.Context
}

// NewHub creates a hub. Call Run to start processing.
func NewHub(cfg Config, deps Deps) *Hub {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	h := &Hub{
		cfg:      cfg,
		auth:     deps.Auth,
		store:    deps.Store,
		bans:     deps.Bans,
		locator:  deps.Geo,
		policy:   deps.GeoPolicy,
		log:      logger,
		validate: validator.New(),
		groups:   group.NewRegistry(logger),
		rooms:    room.NewManager(),
		queues:   queue.NewManager(),
		sessions: make(map[string]*session.Session),
		conns:    make(map[*Client]*session.Session),
		accounts: make(map[string]auth.Account),
		blocked:  make(map[string]struct{}),
		events:   make(chan hubEvent, 256),
		tasks:    make(chan func(), 256),
		done:     make(chan struct{}),
		ctx:      context.Background(),
	}
	h.registerMethods()
	return h
}

// Rooms exposes the room index for read-only queries.
func (h *Hub) Rooms() *room.Manager { return h.rooms }

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Queues exposes the queue index for read-only queries.
func (h *Hub) Queues() *queue.Manager { return h.queues }

// Stats is a point-in-time snapshot of the hub.
type Stats struct {
	Online        OnlineCounts `json:"online"`
	Rooms         int          `json:"rooms"`
	Queues        int          `json:"queues"`
	Queued        int          `json:"queued"`
	BannedDigests int          `json:"bannedDigests"`
	// PingAverageMs is the mean of the per-session rolling round-trip
	// averages, over sessions that answered at least one ping.
	PingAverageMs int64 `json:"pingAverageMs"`
}

// Stats asks the event loop for a snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	out := make(chan Stats, 1)
	fn := func() { out <- h.snapshot() }
	select {
	case h.tasks <- fn:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case st := <-out:
		return st, nil
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) snapshot() Stats {
	st := Stats{
		Online: h.onlineCounts(),
		Rooms:  len(h.rooms.List()),
	}
	for _, v := range h.queues.List() {
		st.Queues++
		st.Queued += v.Length
	}
	if h.bans != nil {
		st.BannedDigests = h.bans.Len()
	}
	var sum time.Duration
	var measured int
	for _, s := range h.sessions {
		if avg := s.Ping().Average(); avg > 0 {
			sum += avg
			measured++
		}
	}
	if measured > 0 {
		st.PingAverageMs = (sum / time.Duration(measured)).Milliseconds()
	}
	return st
}

// Attach hands a new transport connection to the hub.
func (h *Hub) Attach(c *Client) { h.send(hubEvent{kind: hubAttach, client: c}) }

// Detach reports that the transport connection is gone.
func (h *Hub) Detach(c *Client) { h.send(hubEvent{kind: hubDetach, client: c}) }

// Submit delivers an inbound command from a connection.
func (h *Hub) Submit(c *Client, cmd *Command) {
	h.send(hubEvent{kind: hubCommand, client: c, cmd: cmd})
}

func (h *Hub) send(ev hubEvent) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// post schedules fn on the event loop.
func (h *Hub) post(fn func()) {
	select {
	case h.tasks <- fn:
	case <-h.done:
	}
}

// async runs fn off the loop and applies the continuation it returns on the
// loop. Continuations must re-check that what they touch still exists.
func (h *Hub) async(fn func(ctx context.Context) func()) {
	ctx := h.ctx
	go func() {
		if cont := fn(ctx); cont != nil {
			h.post(cont)
		}
	}()
}

// Run processes events until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.events:
			switch ev.kind {
			case hubAttach:
				h.handleAttach(ev.client)
			case hubDetach:
				h.handleDetach(ev.client)
			case hubCommand:
				h.handleCommand(ev.client, ev.cmd)
			}
		case fn := <-h.tasks:
			fn()
		case <-ticker.C:
			h.sweep(h.cfg.Now())
		}
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.sessions {
		s.Close("server shutting down")
	}
	h.log.Info().Int("sessions", len(h.sessions)).Msg("hub stopped")
}

func (h *Hub) handleAttach(c *Client) {
	now := h.cfg.Now()
	s := session.New(c.ID)
	tr, err := s.Connect(c, c.Meta, now)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", c.ID).Msg("connect session")
		c.Close("internal error")
		return
	}

	h.conns[c] = s
	h.sessions[s.ID()] = s
	h.groups.Register(s.ID(), s)
	h.log.Debug().
		Str("client_id", s.ID()).
		Str("ip", c.Meta.IP).
		Int("port", c.Meta.Port).
		Msg("client connected")
	h.observe(s, tr)

	h.admit(s)
	h.broadcastOnlineCounts()
}

func (h *Hub) handleDetach(c *Client) {
	s, ok := h.conns[c]
	if !ok {
		return
	}
	delete(h.conns, c)
	if h.sessions[s.ID()] != s {
		return
	}
	h.observe(s, s.TransportClosed())
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	s, ok := h.conns[c]
	if !ok || h.sessions[s.ID()] != s {
		if cmd.Kind == CommandCall {
			c.reply(cmd.CallID, nil, coreError(ErrCodeUnauthorized, "session is gone"))
		}
		return
	}

	switch cmd.Kind {
	case CommandPong:
		now := h.cfg.Now()
		accepted, tr := s.HandlePong(cmd.SentAt, now)
		if accepted {
			metrics.PingDelay.Observe(s.Ping().Delay.Seconds())
		}
		h.observe(s, tr)
	case CommandCall:
		h.dispatch(c, s, cmd)
	}
}

func (h *Hub) dispatch(c *Client, s *session.Session, cmd *Command) {
	if _, blocked := h.blocked[s.ID()]; blocked {
		metrics.Calls.WithLabelValues(cmd.Method, "denied").Inc()
		c.reply(cmd.CallID, nil, coreError(ErrCodeNoPermission, "connection refused"))
		return
	}

	method := cmd.Method
	call := group.NewCall(s.ID(), method, cmd.Args, func(data any, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.Calls.WithLabelValues(method, result).Inc()
		c.reply(cmd.CallID, data, toCoreError(err))
	})
	if err := h.groups.Invoke(call); err != nil {
		metrics.Calls.WithLabelValues(method, "denied").Inc()
		c.reply(cmd.CallID, nil, toCoreError(err))
	}
}

// sweep drives heartbeats and timeouts for every live session.
func (h *Hub) sweep(now time.Time) {
	var online, reconnecting float64
	for _, s := range h.sessions {
		h.observe(s, s.Tick(now, h.cfg.Timing))
		switch s.State() {
		case session.StateConnected:
			online++
		case session.StatePendingTimeout:
			reconnecting++
		}
	}
	metrics.Sessions.WithLabelValues(string(session.OnlineActive)).Set(online)
	metrics.Sessions.WithLabelValues(string(session.OnlineReconnecting)).Set(reconnecting)
}

// observe reacts to a session state change.
func (h *Hub) observe(s *session.Session, tr session.Transition) {
	if !tr.Changed() {
		return
	}
	metrics.Transitions.WithLabelValues(tr.To.String()).Inc()
	h.log.Debug().
		Str("client_id", s.ID()).
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Msg("session state changed")

	switch tr.To {
	case session.StateConnected, session.StatePendingTimeout:
		if tr.From != session.StateCreated {
			h.presenceChanged(s)
		}
	case session.StateDisconnected:
		h.finalize(s)
	}
}

// finalize runs once per client id when its current session dies.
func (h *Hub) finalize(s *session.Session) {
	id := s.ID()
	if h.sessions[id] != s {
		return
	}
	delete(h.sessions, id)
	delete(h.blocked, id)

	h.leaveEverything(s)
	h.groups.Unregister(id)
	delete(h.accounts, id)

	h.log.Info().
		Str("client_id", id).
		Dur("ping_avg", s.Ping().Average()).
		Msg("client disconnected")
	h.broadcastOnlineCounts()
}

// disconnect forces a session into its terminal state.
func (h *Hub) disconnect(s *session.Session) {
	h.observe(s, s.Disconnect())
}

func (h *Hub) presenceChanged(s *session.Session) {
	online := s.State().Online()
	for _, roomID := range h.rooms.SetOnline(s.ID(), online) {
		h.broadcastRoom(roomID)
	}
	if len(h.queues.SetOnline(s.ID(), online)) > 0 {
		h.broadcastQueues()
	}
}
