package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/ban"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store"
	"github.com/vovakirdan/counselchat/internal/store/sqlite"
	"github.com/vovakirdan/counselchat/internal/utils"
)

const eventTimeout = 2 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testHub struct {
	*Hub
	store *sqlite.SQLiteStore
	bans  *ban.Registry
	clock *fakeClock
}

func newTestHub(t *testing.T, tweak ...func(*Config, *Deps)) *testHub {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	clock := newFakeClock()
	bans := ban.NewRegistry("test-salt")

	cfg := Config{
		Timing:        session.Timing{ReconnectInterval: 4 * time.Second, MaxReconnectAttempts: 2},
		SweepInterval: time.Hour,
		BanCloseGrace: 10 * time.Millisecond,
		Now:           clock.Now,
	}
	deps := Deps{
		Auth:  auth.NewService(st, st, jwtConfig, false),
		Store: st,
		Bans:  bans,
	}
	for _, fn := range tweak {
		fn(&cfg, &deps)
	}

	hub := NewHub(cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})

	return &testHub{Hub: hub, store: st, bans: bans, clock: clock}
}

func (h *testHub) addCounselor(t *testing.T, username, password string, canBan bool) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	_, err = h.store.CreateCounselor(context.Background(), &store.Counselor{
		Username:           username,
		PasswordHash:       hash,
		CanGenerateBanCode: canBan,
	})
	require.NoError(t, err)
}

func (h *testHub) connect(ip string) *Client {
	c := NewClient(session.Meta{IP: ip})
	h.Attach(c)
	return c
}

// call submits a server method call and returns its id.
func (h *testHub) call(t *testing.T, c *Client, method string, args any) string {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		require.NoError(t, err)
		raw = b
	}
	id := utils.NewID()
	h.Submit(c, &Command{Kind: CommandCall, CallID: id, Method: method, Args: raw})
	return id
}

// invoke calls a method and waits for its reply.
func (h *testHub) invoke(t *testing.T, c *Client, method string, args any) *Event {
	t.Helper()
	return mustReply(t, c, h.call(t, c, method, args))
}

// invokeOK calls a method and fails the test on an error reply.
func (h *testHub) invokeOK(t *testing.T, c *Client, method string, args any) any {
	t.Helper()
	ev := h.invoke(t, c, method, args)
	require.Nil(t, ev.Error, "%s failed: %+v", method, ev.Error)
	return ev.Data
}

func (h *testHub) signInGuest(t *testing.T, c *Client, nickname string) SignInResult {
	t.Helper()
	data := h.invokeOK(t, c, MethodSignIn, map[string]any{"nickname": nickname})
	res, ok := data.(SignInResult)
	require.True(t, ok, "unexpected signIn reply %T", data)
	return res
}

func (h *testHub) signInCounselor(t *testing.T, c *Client, username, password string) SignInResult {
	t.Helper()
	data := h.invokeOK(t, c, MethodSignIn, map[string]any{"username": username, "password": password})
	res, ok := data.(SignInResult)
	require.True(t, ok, "unexpected signIn reply %T", data)
	return res
}

func mustReply(t *testing.T, c *Client, callID string) *Event {
	t.Helper()
	return mustEvent(t, c, func(ev *Event) bool {
		return ev.Kind == EventReply && ev.CallID == callID
	}, "reply to "+callID)
}

// mustCall waits for a client-side method invocation, skipping other events.
func mustCall(t *testing.T, c *Client, method string) *Event {
	t.Helper()
	return mustEvent(t, c, func(ev *Event) bool {
		return ev.Kind == EventCall && ev.Method == method
	}, method)
}

// mustCallWhere waits for an invocation of method whose first argument satisfies ok.
func mustCallWhere[T any](t *testing.T, c *Client, method string, ok func(T) bool) T {
	t.Helper()
	ev := mustEvent(t, c, func(ev *Event) bool {
		if ev.Kind != EventCall || ev.Method != method || len(ev.Args) == 0 {
			return false
		}
		v, isT := ev.Args[0].(T)
		return isT && ok(v)
	}, method)
	return ev.Args[0].(T)
}

func mustEvent(t *testing.T, c *Client, match func(*Event) bool, what string) *Event {
	t.Helper()

	timeout := time.After(eventTimeout)
	for {
		select {
		case ev := <-c.Events:
			if ev != nil && match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected %s not received", what)
			return nil
		}
	}
}

func mustClose(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(eventTimeout):
		t.Fatalf("client %s was not closed", c.ID)
	}
}

func hasUser(users []session.User, clientID string) bool {
	for _, u := range users {
		if u.ClientID == clientID {
			return true
		}
	}
	return false
}
