package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/config"
	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/proto"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store/sqlite"
)

type testServer struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
}

func startTestServer(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, false)

	hub := core.NewHub(core.Config{
		Timing:        session.Timing{ReconnectInterval: time.Minute, MaxReconnectAttempts: 2},
		SweepInterval: time.Hour,
	}, core.Deps{Auth: authService, Store: st})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Addr = ":0"
	if tweak != nil {
		tweak(&cfg)
	}

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, authService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, hub: hub, auth: authService}
}

// wireFrame decodes outbound frames without knowing payload types.
type wireFrame struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
	Data   json.RawMessage   `json:"data"`
	Error  *proto.Error      `json:"error"`
	Ts     int64             `json:"ts"`
}

func (s *testServer) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func sendCall(t *testing.T, ctx context.Context, conn *websocket.Conn, id, method string, args any) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{
		Type:   proto.InboundTypeCall,
		ID:     id,
		Method: method,
		Args:   raw,
	}))
}

// readFrame reads frames until match accepts one.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(wireFrame) bool) wireFrame {
	t.Helper()
	for {
		var f wireFrame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if match(f) {
			return f
		}
	}
}

func replyTo(id string) func(wireFrame) bool {
	return func(f wireFrame) bool { return f.Type == proto.OutboundTypeReply && f.ID == id }
}
