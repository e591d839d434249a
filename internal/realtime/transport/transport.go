// Package transport defines the persistent-connection capability the
// realtime client is written against, and a gorilla/websocket
// implementation of it.
package transport

import (
	"errors"
	"net/http"
)

// ErrNotOpen is returned by Conn.Send before the connection opened or after
// it closed.
var ErrNotOpen = errors.New("transport: connection not open")

// Listener receives the lifecycle of one connection. Calls for a given
// connection are serialized.
type Listener interface {
	// OnOpen is called once the connection is established.
	OnOpen()
	// OnMessage is called for every inbound text or binary frame, in
	// arrival order.
	OnMessage(data []byte)
	// OnError reports a connection-level failure. It is always followed by
	// OnClose.
	OnError(err error)
	// OnClose is called exactly once per connection, including when the
	// dial fails or Close was called. err is nil for a requested close.
	OnClose(err error)
}

// Conn is the writable side of one connection.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Transport opens connections. Open must not block on the network: the
// outcome is reported to the Listener.
type Transport interface {
	Open(url string, header http.Header, l Listener) (Conn, error)
}
