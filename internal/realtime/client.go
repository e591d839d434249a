// Package realtime is the push-channel client: it keeps one websocket
// connection per (user, channel) alive with exponential backoff, decodes the
// type-tagged envelopes the server pushes and fans them out to subscribers.
//
// A Client publishes on its own eventbus.Router:
//
//   - the envelope type (e.g. "new_sale") with the envelope data as payload
//   - EventMessage with the whole envelope
//   - EventShowToast with a Toast for notification, stock_alert,
//     payment_received and new_sale
//   - EventMetricsUpdated with the data of metrics_update
//   - lifecycle events: EventConnecting, EventConnected, EventDisconnected,
//     EventReconnecting, EventError, EventGiveUp and EventStateChanged
package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
	"go-notification-realtime/internal/realtime/eventbus"
)

// Client is the entry point a consumer holds.
type Client struct {
	id     string
	userID string
	cfg    Config
	logger logger.Logger

	router     *eventbus.Router
	supervisor *Supervisor
	dispatcher *Dispatcher

	mu          sync.Mutex
	channel     string
	channelSubs []eventbus.Subscription
	closed      bool
}

// NewClient creates a disconnected client for userID.
func NewClient(userID string, opts ...Option) (*Client, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	cfg := DefaultConfig()
	cfg.apply(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := cfg.Logger.WithFields(logger.Fields{
		"user_id":   userID,
		"client_id": id,
	})
	cfg.Logger = log

	router := eventbus.New(log)
	dispatcher := NewDispatcher(router, cfg.Clock, cfg.Metrics, log)

	c := &Client{
		id:         id,
		userID:     userID,
		cfg:        cfg,
		logger:     log.WithField("component", "client"),
		router:     router,
		dispatcher: dispatcher,
	}
	c.supervisor = NewSupervisor(cfg, router, func(conn uint64, raw []byte) {
		dispatcher.Dispatch(conn, raw)
	})
	return c, nil
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Channel returns the channel of the current or last Connect call.
func (c *Client) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Router exposes the client's event router.
func (c *Client) Router() *eventbus.Router { return c.router }

// Connect opens the channel for this client's user; an empty channel means
// the configured default. It is a no-op while connecting or connected to
// the same channel. Switching channels drops channel-scoped subscriptions.
// Connection failures are reported through lifecycle events, not here.
func (c *Client) Connect(channel string) error {
	if channel == "" {
		channel = c.cfg.Channel
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var stale []eventbus.Subscription
	if c.channel != "" && c.channel != channel {
		stale = c.takeChannelSubsLocked()
	}
	c.channel = channel
	c.mu.Unlock()

	c.unsubscribe(stale)
	c.supervisor.Connect(c.cfg.endpoint(channel, c.userID), c.cfg.header())
	return nil
}

// Disconnect closes the connection, cancels any pending retry and removes
// channel-scoped subscriptions. Safe to call repeatedly and before Connect.
func (c *Client) Disconnect() {
	c.supervisor.Disconnect()

	c.mu.Lock()
	subs := c.takeChannelSubsLocked()
	c.mu.Unlock()

	c.unsubscribe(subs)
}

// Close disconnects and removes every subscription. A closed client cannot
// be reconnected.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.router.Clear()
	c.logger.Debug("client closed")
}

// Send encodes message and writes it on the live connection. While not
// connected it logs a warning and returns an error wrapping
// ErrNotConnected; the message is discarded, never queued.
func (c *Client) Send(message any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if state := c.supervisor.State(); state != StateConnected {
		c.cfg.Metrics.sendDropped()
		c.logger.Warnf("send while %s: message dropped", state)
		return fmt.Errorf("send: %w", ErrNotConnected)
	}

	data, err := envelope.Encode(message)
	if err != nil {
		c.logger.Warnf("send: %v", err)
		return err
	}
	if err := c.supervisor.Send(data); err != nil {
		c.cfg.Metrics.sendDropped()
		c.logger.Warnf("send failed: %v", err)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// MarkNotificationRead tells the server a notification was read.
func (c *Client) MarkNotificationRead(id any) error {
	return c.Send(envelope.MarkRead(id))
}

// RequestMetrics asks the server for a metrics_update.
func (c *Client) RequestMetrics() error {
	return c.Send(envelope.GetMetrics())
}

// Ping sends a ping carrying the current time.
func (c *Client) Ping() error {
	return c.Send(envelope.Ping(c.cfg.Clock.Now()))
}

func (c *Client) IsConnected() bool {
	return c.supervisor.State() == StateConnected
}

func (c *Client) ConnectionState() State {
	return c.supervisor.State()
}

// Attempts returns the current reconnection counter.
func (c *Client) Attempts() int {
	return c.supervisor.Attempts()
}

// Offline reports whether the last connect cycle gave up. It is cleared by
// the next Connect.
func (c *Client) Offline() bool {
	return c.supervisor.GaveUp()
}

func (c *Client) On(event string, h eventbus.Handler) eventbus.Subscription {
	return c.router.On(event, h)
}

func (c *Client) Once(event string, h eventbus.Handler) eventbus.Subscription {
	return c.router.Once(event, h)
}

func (c *Client) Off(sub eventbus.Subscription) {
	c.router.Off(sub)
}

// OnChannel subscribes h until the next Disconnect or channel switch.
func (c *Client) OnChannel(event string, h eventbus.Handler) eventbus.Subscription {
	sub := c.router.On(event, h)

	c.mu.Lock()
	c.channelSubs = append(c.channelSubs, sub)
	c.mu.Unlock()
	return sub
}

// WaitConnected blocks until the client is connected or timeout elapses.
func (c *Client) WaitConnected(timeout time.Duration) bool {
	done := make(chan struct{}, 1)
	sub := c.router.On(EventConnected, func(any) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer c.router.Off(sub)

	if c.IsConnected() {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return c.IsConnected()
	}
}

func (c *Client) takeChannelSubsLocked() []eventbus.Subscription {
	subs := c.channelSubs
	c.channelSubs = nil
	return subs
}

func (c *Client) unsubscribe(subs []eventbus.Subscription) {
	for _, sub := range subs {
		c.router.Off(sub)
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("realtime.Client{user=%s channel=%s state=%s}", c.userID, c.Channel(), c.ConnectionState())
}
