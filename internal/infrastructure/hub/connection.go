package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
)

const (
	sendBufferSize = 256

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = (pongTimeout * 9) / 10
	readLimit    = 64 << 10

	keepAliveInterval = 30 * time.Second
)

// base holds what SSE and WebSocket connections share: identity, the
// outbound queue and the close state.
type base struct {
	id      string
	userID  string
	channel string

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	send chan envelope.Envelope

	logger logger.Logger

	lastActivity time.Time
	activityMu   sync.RWMutex
}

func (c *base) init(ctx context.Context, id, userID, channel string, log logger.Logger) {
	c.id = id
	c.userID = userID
	c.channel = channel
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.send = make(chan envelope.Envelope, sendBufferSize)
	c.logger = log.WithFields(logger.Fields{
		"connection_id": id,
		"user_id":       userID,
		"channel":       channel,
	})
	c.lastActivity = time.Now()
}

// ID returns unique connection identifier
func (c *base) ID() string { return c.id }

func (c *base) UserID() string  { return c.userID }
func (c *base) Channel() string { return c.channel }

// Context returns the connection's context (for cancellation)
func (c *base) Context() context.Context { return c.ctx }

// IsClosed returns true if connection is closed
func (c *base) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// enqueue hands env to the writer. It fails fast once the connection is
// closed and gives up when ctx expires with the queue still full.
func (c *base) enqueue(ctx context.Context, env envelope.Envelope) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- env:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSendTimeout, ctx.Err())
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// markClosed flips the closed flag; it reports false when already closed.
func (c *base) markClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	c.cancel()
	return true
}

func (c *base) updateActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

// LastActivity returns when the connection last sent or received data.
func (c *base) LastActivity() time.Time {
	c.activityMu.RLock()
	defer c.activityMu.RUnlock()
	return c.lastActivity
}

// SSEConnection implements the Connection interface for Server-Sent Events.
// The handler goroutine that owns the ResponseWriter runs Serve; Send only
// queues.
type SSEConnection struct {
	base
	writer http.ResponseWriter

	keepAlive time.Duration
}

var _ Connection = (*SSEConnection)(nil)

// NewSSEConnection creates a new SSE connection
func NewSSEConnection(
	ctx context.Context,
	id, userID, channel string,
	w http.ResponseWriter,
	logger logger.Logger,
) *SSEConnection {
	conn := &SSEConnection{
		writer:    w,
		keepAlive: keepAliveInterval,
	}
	conn.init(ctx, id, userID, channel, logger)
	conn.setupSSEHeaders()
	return conn
}

// Type returns the connection type
func (c *SSEConnection) Type() string { return TypeSSE }

// Send queues an envelope for this connection
func (c *SSEConnection) Send(ctx context.Context, env envelope.Envelope) error {
	return c.enqueue(ctx, env)
}

// Close gracefully closes the connection
func (c *SSEConnection) Close() error {
	if c.markClosed() {
		c.logger.Info("SSE connection closed")
	}
	return nil
}

// Serve writes queued envelopes and keep-alives until the connection or the
// request ends.
func (c *SSEConnection) Serve() {
	defer c.Close()

	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	if err := c.write(sse.Event{
		Event: "connected",
		Data: map[string]any{
			"connection_id": c.id,
			"user_id":       c.userID,
			"channel":       c.channel,
			"timestamp":     time.Now().UTC().Format(envelope.TimestampLayout),
		},
	}); err != nil {
		c.logger.Errorf("Failed to write greeting: %v", err)
		return
	}

	for {
		select {
		case env := <-c.send:
			if err := c.write(sse.Event{Id: c.nextEventID(), Event: env.Type, Data: env}); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			keepAlive := envelope.NewBuilder(envelope.TypeKeepAlive).
				WithField("message", "connection alive").
				Build()
			if err := c.write(sse.Event{Event: keepAlive.Type, Data: keepAlive}); err != nil {
				c.logger.Errorf("Failed to send keep-alive: %v", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *SSEConnection) write(event sse.Event) error {
	if err := sse.Encode(c.writer, event); err != nil {
		return err
	}
	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	c.updateActivity()
	return nil
}

func (c *SSEConnection) nextEventID() string {
	return fmt.Sprintf("%s-%d", c.id, time.Now().UnixNano())
}

// setupSSEHeaders sets up the proper headers for SSE connection
func (c *SSEConnection) setupSSEHeaders() {
	c.writer.Header().Set("Content-Type", "text/event-stream")
	c.writer.Header().Set("Cache-Control", "no-cache")
	c.writer.Header().Set("Connection", "keep-alive")
	c.writer.Header().Set("X-Accel-Buffering", "no") // For nginx
}

// WebSocketConnection implements the Connection interface for WebSocket
// connections. Inbound envelopes are decoded and passed to the InboundFunc.
type WebSocketConnection struct {
	base
	conn      *websocket.Conn
	onInbound InboundFunc

	writeTimeout time.Duration
	pongTimeout  time.Duration
	pingPeriod   time.Duration

	done chan struct{}
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection creates a new WebSocket connection and starts its
// pumps.
func NewWebSocketConnection(
	id, userID, channel string,
	conn *websocket.Conn,
	onInbound InboundFunc,
	logger logger.Logger,
) *WebSocketConnection {
	wsConn := &WebSocketConnection{
		conn:         conn,
		onInbound:    onInbound,
		writeTimeout: writeTimeout,
		pongTimeout:  pongTimeout,
		pingPeriod:   pingPeriod,
		done:         make(chan struct{}),
	}
	wsConn.init(context.Background(), id, userID, channel, logger)

	wsConn.setupWebSocket()

	go wsConn.writePump()
	go wsConn.readPump()

	return wsConn
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string { return TypeWebSocket }

// Send queues an envelope for this WebSocket connection
func (c *WebSocketConnection) Send(ctx context.Context, env envelope.Envelope) error {
	return c.enqueue(ctx, env)
}

// Close gracefully closes the WebSocket connection. The write pump sends
// the close frame.
func (c *WebSocketConnection) Close() error {
	if c.markClosed() {
		c.logger.Info("WebSocket connection closed")
	}
	return nil
}

// Done is closed once the write pump has released the socket.
func (c *WebSocketConnection) Done() <-chan struct{} { return c.done }

// setupWebSocket configures WebSocket connection settings
func (c *WebSocketConnection) setupWebSocket() {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.updateActivity()
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				c.Close()
				return
			}
			c.updateActivity()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				c.Close()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			c.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		c.updateActivity()

		if messageType != websocket.TextMessage {
			c.logger.Debugf("Ignoring non-text message of length %d", len(data))
			continue
		}

		env, err := envelope.Decode(data)
		if err != nil {
			c.logger.Warnf("Dropping malformed message: %v", err)
			continue
		}
		if c.onInbound != nil {
			c.onInbound(c, env)
		}
	}
}
