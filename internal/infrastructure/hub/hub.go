package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
)

var (
	ErrNotRunning         = errors.New("hub is not running")
	ErrShuttingDown       = errors.New("hub is shutting down")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendTimeout        = errors.New("send timeout")
)

const (
	defaultSendTimeout     = 2 * time.Second
	defaultCleanupInterval = 30 * time.Second
)

// Hub manages connections without depending on specific interfaces
type Hub struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger  logger.Logger
	metrics *Metrics

	// Channels for internal communication
	register   chan Connection
	unregister chan string
	broadcast  chan delivery

	sendTimeout time.Duration

	startedAt         time.Time
	messagesSent      atomic.Int64
	notificationsRead atomic.Int64

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type delivery struct {
	target Target
	env    envelope.Envelope
}

// Option configures a Hub.
type Option func(*Hub)

func WithMetrics(m *Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithSendTimeout bounds how long a single connection may block a delivery.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// New creates a new Hub instance
func New(logger logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections: make(map[string]Connection),
		logger:      logger.WithField("component", "hub"),
		register:    make(chan Connection, 100),
		unregister:  make(chan string, 100),
		broadcast:   make(chan delivery, 1000),
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start starts the hub and begins processing connection events
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true
	h.startedAt = time.Now()

	go h.run(h.ctx)

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop gracefully stops the hub and disconnects all connections
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()

	h.connectionsMu.Lock()
	for _, conn := range h.connections {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
		h.metrics.connectionClosed(conn.Type())
	}
	h.connections = make(map[string]Connection)
	h.connectionsMu.Unlock()

	h.running = false
	h.logger.Info("Hub stopped successfully")
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

func (h *Hub) done() <-chan struct{} {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	if h.ctx == nil {
		return nil
	}
	return h.ctx.Done()
}

// RegisterConnection adds a new connection to the hub
func (h *Hub) RegisterConnection(conn Connection) error {
	if !h.IsRunning() {
		return ErrNotRunning
	}

	select {
	case h.register <- conn:
		return nil
	case <-h.done():
		return ErrShuttingDown
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout registering connection")
	}
}

// UnregisterConnection removes a connection from the hub
func (h *Hub) UnregisterConnection(connID string) error {
	if !h.IsRunning() {
		return ErrNotRunning
	}

	select {
	case h.unregister <- connID:
		return nil
	case <-h.done():
		return ErrShuttingDown
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout unregistering connection")
	}
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

// GetConnections returns all active connections
func (h *Hub) GetConnections() []Connection {
	return h.GetConnectionsFor(Target{})
}

// GetConnectionsFor returns the connections selected by target.
func (h *Hub) GetConnectionsFor(target Target) []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		if target.Matches(conn) {
			connections = append(connections, conn)
		}
	}
	return connections
}

// GetConnectionsByType returns connections of a specific type
func (h *Hub) GetConnectionsByType(connType string) []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	var connections []Connection
	for _, conn := range h.connections {
		if conn.Type() == connType {
			connections = append(connections, conn)
		}
	}
	return connections
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Broadcast sends an envelope to all connections
func (h *Hub) Broadcast(ctx context.Context, env envelope.Envelope) error {
	return h.Publish(ctx, Target{}, env)
}

// SendToUser sends an envelope to every connection of userID, on any channel.
func (h *Hub) SendToUser(ctx context.Context, userID string, env envelope.Envelope) error {
	return h.Publish(ctx, Target{UserID: userID}, env)
}

// Publish queues env for every connection selected by target. Deliveries
// are processed in order by the run loop, so each connection sees envelopes
// in publish order.
func (h *Hub) Publish(ctx context.Context, target Target, env envelope.Envelope) error {
	if !h.IsRunning() {
		return ErrNotRunning
	}
	if env.Type == "" {
		return errors.New("envelope type cannot be empty")
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	select {
	case h.broadcast <- delivery{target: target, env: env}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-h.done():
		return ErrShuttingDown
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout broadcasting message")
	}
}

// SendToConnection sends an envelope to a specific connection
func (h *Hub) SendToConnection(ctx context.Context, connID string, env envelope.Envelope) error {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return h.deliver(ctx, conn, env)
}

func (h *Hub) deliver(ctx context.Context, conn Connection, env envelope.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	if err := conn.Send(ctx, env); err != nil {
		h.logger.Errorf("Failed to send %s to connection %s: %v", env.Type, conn.ID(), err)
		h.metrics.sendFailed(conn.Type())
		// Auto-unregister failed connections
		go h.UnregisterConnection(conn.ID())
		return err
	}
	h.messagesSent.Add(1)
	h.metrics.messageSent(env.Type)
	return nil
}

// run is the main hub loop that processes connection events
func (h *Hub) run(ctx context.Context) {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case conn := <-h.register:
			h.handleRegister(conn)

		case connID := <-h.unregister:
			h.handleUnregister(connID)

		case d := <-h.broadcast:
			h.handleBroadcast(ctx, d)

		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

// handleRegister processes connection registration
func (h *Hub) handleRegister(conn Connection) {
	h.connectionsMu.Lock()
	h.connections[conn.ID()] = conn
	h.connectionsMu.Unlock()

	h.metrics.connectionOpened(conn.Type())
	h.logger.WithFields(logger.Fields{
		"connection_id": conn.ID(),
		"user_id":       conn.UserID(),
		"channel":       conn.Channel(),
	}).Infof("Connection registered (type: %s)", conn.Type())

	// Monitor connection context for disconnection
	go func() {
		<-conn.Context().Done()
		h.UnregisterConnection(conn.ID())
	}()
}

// handleUnregister processes connection unregistration
func (h *Hub) handleUnregister(connID string) {
	h.connectionsMu.Lock()
	conn, exists := h.connections[connID]
	if exists {
		delete(h.connections, connID)
	}
	h.connectionsMu.Unlock()

	if exists {
		conn.Close()
		h.metrics.connectionClosed(conn.Type())
		h.logger.Infof("Connection %s unregistered", connID)
	}
}

// handleBroadcast delivers one envelope to every selected connection.
func (h *Hub) handleBroadcast(ctx context.Context, d delivery) {
	connections := h.GetConnectionsFor(d.target)

	delivered := 0
	for _, conn := range connections {
		if err := h.deliver(ctx, conn, d.env); err == nil {
			delivered++
		}
	}

	h.logger.Debugf("Delivered %s to %d/%d connections (%s)", d.env.Type, delivered, len(connections), d.target)
}

// cleanupClosedConnections removes connections that have been closed
func (h *Hub) cleanupClosedConnections() {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	for id, conn := range h.connections {
		if conn.IsClosed() {
			delete(h.connections, id)
			h.metrics.connectionClosed(conn.Type())
			h.logger.Infof("Cleaned up closed connection %s", id)
		}
	}
}

// Stats is a snapshot of hub activity.
type Stats struct {
	Connections          int
	WebSocketConnections int
	SSEConnections       int
	Users                int
	MessagesSent         int64
	NotificationsRead    int64
	Uptime               time.Duration
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() Stats {
	h.connectionsMu.RLock()
	users := make(map[string]struct{})
	s := Stats{Connections: len(h.connections)}
	for _, conn := range h.connections {
		users[conn.UserID()] = struct{}{}
		switch conn.Type() {
		case TypeWebSocket:
			s.WebSocketConnections++
		case TypeSSE:
			s.SSEConnections++
		}
	}
	h.connectionsMu.RUnlock()

	s.Users = len(users)
	s.MessagesSent = h.messagesSent.Load()
	s.NotificationsRead = h.notificationsRead.Load()

	h.runningMu.RLock()
	if h.running {
		s.Uptime = time.Since(h.startedAt)
	}
	h.runningMu.RUnlock()
	return s
}

// Data renders the stats as an envelope payload.
func (s Stats) Data() envelope.Data {
	return envelope.Data{
		"connections":           s.Connections,
		"websocket_connections": s.WebSocketConnections,
		"sse_connections":       s.SSEConnections,
		"users":                 s.Users,
		"messages_sent":         s.MessagesSent,
		"notifications_read":    s.NotificationsRead,
		"uptime_seconds":        int64(s.Uptime.Seconds()),
	}
}
