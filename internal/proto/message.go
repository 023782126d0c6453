// Package proto defines the JSON frames exchanged over the WebSocket.
package proto

import "encoding/json"

const (
	ProtocolVersion = 1

	InboundTypeCall = "call"
	InboundTypePong = "pong"

	OutboundTypeCall  = "call"
	OutboundTypeReply = "reply"
	OutboundTypePing  = "ping"
	OutboundTypeError = "error"
)

// Inbound is the envelope for frames coming from the client. Ts carries the
// echoed server time of a pong, in Unix milliseconds.
type Inbound struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Ts     int64           `json:"ts,omitempty"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Method string `json:"method,omitempty"`
	Args   []any  `json:"args,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
}

// Error describes a failed call or a malformed frame.
type Error struct {
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Fatal bool   `json:"fatal,omitempty"`
}
