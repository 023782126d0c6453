package core

import (
	"sync"
	"time"

	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/utils"
)

const clientBuffer = 256

// Client is one transport connection as seen by the core layer. The
// transport drains Events and watches Done; the hub writes to it through
// the session.Transport methods.
type Client struct {
	ID     string
	Meta   session.Meta
	Events chan *Event

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	reason    string
}

var _ session.Transport = (*Client)(nil)

// NewClient constructs a client with initialized channels.
func NewClient(meta session.Meta) *Client {
	return &Client{
		ID:     utils.NewID(),
		Meta:   meta,
		Events: make(chan *Event, clientBuffer),
		done:   make(chan struct{}),
	}
}

// Call queues a client-side method invocation.
func (c *Client) Call(method string, args ...any) error {
	return c.push(&Event{Kind: EventCall, Method: method, Args: args})
}

// Ping queues a heartbeat.
func (c *Client) Ping(sentAt time.Time) error {
	return c.push(&Event{Kind: EventPing, SentAt: sentAt})
}

// Close asks the transport to shut the connection down. Safe to call many times.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

// CloseReason returns the reason given to Close.
func (c *Client) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Client) reply(callID string, data any, err *CoreError) {
	_ = c.push(&Event{Kind: EventReply, CallID: callID, Data: data, Error: err})
}

func (c *Client) push(ev *Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.Events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}
