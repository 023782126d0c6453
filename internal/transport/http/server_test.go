package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/config"
	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/proto"
	"github.com/vovakirdan/counselchat/internal/room"
)

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t, nil)

	resp, err := s.ts.Client().Get(s.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	s := startTestServer(t, nil)

	resp, err := s.ts.Client().Get(s.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestListRoomsHidesPrivate(t *testing.T) {
	s := startTestServer(t, nil)

	_, err := s.hub.Rooms().Create(room.Attributes{Name: "Open door", MaxSize: 3})
	require.NoError(t, err)
	_, err = s.hub.Rooms().Create(room.Attributes{Name: "Back office", MaxSize: 3, Private: true})
	require.NoError(t, err)

	resp, err := s.ts.Client().Get(s.ts.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []core.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "Open door", rooms[0].Name)
	assert.Equal(t, 3, rooms[0].MaxSize)
}

func TestStatsRequiresCounselorToken(t *testing.T) {
	s := startTestServer(t, nil)

	guestToken, err := s.auth.IssueResumeToken("g1", auth.Account{ID: "guest"})
	require.NoError(t, err)
	counselorToken, err := s.auth.IssueResumeToken("c1", auth.Account{ID: "counselor:1", IsAdmin: true})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-token", status: http.StatusUnauthorized},
		{name: "guest token", header: "Bearer " + guestToken, status: http.StatusForbidden},
		{name: "counselor token", header: "Bearer " + counselorToken, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/api/stats", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := s.ts.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == http.StatusOK {
				var st core.Stats
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
				assert.Zero(t, st.Rooms)
			}
		})
	}
}

func TestWebSocketSignInAndCalls(t *testing.T) {
	s := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := s.dial(t, ctx)

	sendCall(t, ctx, conn, "1", core.MethodSignIn, map[string]any{"nickname": "Kim"})
	reply := readFrame(t, ctx, conn, replyTo("1"))
	require.Nil(t, reply.Error)

	var res core.SignInResult
	require.NoError(t, json.Unmarshal(reply.Data, &res))
	assert.NotEmpty(t, res.ClientID)
	assert.NotEmpty(t, res.ResumeToken)
	assert.Equal(t, "Kim", res.Profile.Nickname)

	sendCall(t, ctx, conn, "2", core.MethodCreateRoom, map[string]any{"name": "Mine", "maxSize": 2})
	reply = readFrame(t, ctx, conn, replyTo("2"))
	require.NotNil(t, reply.Error)
	assert.Equal(t, core.ErrCodeNoPermission, reply.Error.Code)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	frame := readFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == proto.OutboundTypeError })
	assert.Equal(t, "invalid_message", frame.Error.Code)

	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: "shout"}))
	frame = readFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == proto.OutboundTypeError })
	assert.Equal(t, "invalid_message", frame.Error.Code)

	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeCall, Method: core.MethodGetRoomList}))
	frame = readFrame(t, ctx, conn, func(f wireFrame) bool { return f.Type == proto.OutboundTypeError })
	assert.Equal(t, core.ErrCodeBadRequest, frame.Error.Code)

	sendCall(t, ctx, conn, "3", core.MethodGetRoomList, map[string]any{})
	reply = readFrame(t, ctx, conn, replyTo("3"))
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `[]`, string(reply.Data))
}

func TestWebSocketRateLimit(t *testing.T) {
	s := startTestServer(t, func(cfg *config.Config) { cfg.MaxInboundPerMinute = 2 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := s.dial(t, ctx)
	for i := 0; i < 3; i++ {
		require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypePong, Ts: time.Now().UnixMilli()}))
	}

	var err error
	for err == nil {
		var f wireFrame
		err = wsjson.Read(ctx, conn, &f)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}
