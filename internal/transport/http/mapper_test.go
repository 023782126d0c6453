package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      proto.Inbound
		want    *core.Command
		errCode string
	}{
		{
			name: "call",
			in:   proto.Inbound{Type: "call", ID: "7", Method: "joinQueue", Args: json.RawMessage(`{"queueId":"q"}`)},
			want: &core.Command{Kind: core.CommandCall, CallID: "7", Method: "joinQueue", Args: json.RawMessage(`{"queueId":"q"}`)},
		},
		{
			name:    "call without id",
			in:      proto.Inbound{Type: "call", Method: "joinQueue"},
			errCode: core.ErrCodeBadRequest,
		},
		{
			name: "pong",
			in:   proto.Inbound{Type: "pong", Ts: 1700000000123},
			want: &core.Command{Kind: core.CommandPong, SentAt: time.UnixMilli(1700000000123)},
		},
		{
			name:    "pong without timestamp",
			in:      proto.Inbound{Type: "pong"},
			errCode: core.ErrCodeBadRequest,
		},
		{
			name:    "unknown type",
			in:      proto.Inbound{Type: "hello"},
			errCode: "invalid_message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, perr := inboundToCommand(tt.in)
			if tt.errCode != "" {
				require.NotNil(t, perr)
				assert.Equal(t, tt.errCode, perr.Code)
				assert.Nil(t, cmd)
				return
			}
			require.Nil(t, perr)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestOutboundFromEvent(t *testing.T) {
	sentAt := time.UnixMilli(1700000000456)

	ping := outboundFromEvent(&core.Event{Kind: core.EventPing, SentAt: sentAt})
	assert.Equal(t, proto.Outbound{Type: "ping", Ts: 1700000000456}, ping)

	call := outboundFromEvent(&core.Event{Kind: core.EventCall, Method: "setMuted", Args: []any{true}})
	assert.Equal(t, proto.Outbound{Type: "call", Method: "setMuted", Args: []any{true}}, call)

	failed := outboundFromEvent(&core.Event{
		Kind:   core.EventReply,
		CallID: "9",
		Data:   "ignored",
		Error:  &core.CoreError{Code: core.ErrCodeSignInFailed, Message: "sign-in failed", Fatal: true},
	})
	assert.Equal(t, "reply", failed.Type)
	assert.Equal(t, "9", failed.ID)
	assert.Nil(t, failed.Data)
	assert.Equal(t, &proto.Error{Code: core.ErrCodeSignInFailed, Msg: "sign-in failed", Fatal: true}, failed.Error)

	raw, err := json.Marshal(outboundFromEvent(&core.Event{Kind: core.EventReply, CallID: "10", Data: core.ReplyOK}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reply","id":"10","data":"OK"}`, string(raw))
}

func TestRemotePort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{addr: "192.0.2.7:53114", want: 53114},
		{addr: "[2001:db8::1]:8443", want: 8443},
		{addr: "192.0.2.7", want: 0},
		{addr: "192.0.2.7:http", want: 0},
		{addr: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, remotePort(tt.addr))
		})
	}
}
