package hub

import (
	"context"

	"go-notification-realtime/internal/realtime/envelope"
)

// Connection represents any type of connection (SSE, WebSocket, etc.)
// opened by one user on one channel.
type Connection interface {
	ID() string
	Type() string
	UserID() string
	Channel() string
	Send(ctx context.Context, env envelope.Envelope) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// InboundFunc receives envelopes read from a bidirectional connection.
type InboundFunc func(conn Connection, env envelope.Envelope)

// Target selects connections. Empty fields match everything.
type Target struct {
	UserID  string
	Channel string
}

// Matches reports whether conn is selected by t.
func (t Target) Matches(conn Connection) bool {
	if t.UserID != "" && conn.UserID() != t.UserID {
		return false
	}
	if t.Channel != "" && conn.Channel() != t.Channel {
		return false
	}
	return true
}

func (t Target) String() string {
	user, channel := t.UserID, t.Channel
	if user == "" {
		user = "*"
	}
	if channel == "" {
		channel = "*"
	}
	return channel + "/" + user
}

const (
	TypeSSE       = "sse"
	TypeWebSocket = "websocket"
)
