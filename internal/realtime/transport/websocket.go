package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-notification-realtime/internal/infrastructure/logger"
)

const (
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultPingPeriod       = (DefaultPongWait * 9) / 10
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 1 << 20
)

// WebSocket is a Transport backed by gorilla/websocket.
type WebSocket struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
	PongWait     time.Duration
	// PingPeriod is how often the client pings the server; 0 disables
	// client pings and relies on server pings to refresh the read deadline.
	PingPeriod time.Duration
	ReadLimit  int64

	logger logger.Logger
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket creates a WebSocket transport with default timeouts.
func NewWebSocket(log logger.Logger) *WebSocket {
	return &WebSocket{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		WriteTimeout: DefaultWriteTimeout,
		PongWait:     DefaultPongWait,
		PingPeriod:   DefaultPingPeriod,
		ReadLimit:    DefaultReadLimit,
		logger:       log.WithField("component", "ws-transport"),
	}
}

// Open starts dialing url in the background.
func (w *WebSocket) Open(url string, header http.Header, l Listener) (Conn, error) {
	if l == nil {
		return nil, errors.New("transport: nil listener")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		id:       "ws-" + uuid.NewString(),
		url:      url,
		header:   header.Clone(),
		cfg:      w,
		listener: l,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.logger = w.logger.WithField("connection_id", c.id)

	go c.run()
	return c, nil
}

// wsConn is one client websocket connection.
type wsConn struct {
	id       string
	url      string
	header   http.Header
	cfg      *WebSocket
	listener Listener
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	raw    net.Conn
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
	done    chan struct{}
}

func (c *wsConn) run() {
	defer close(c.done)
	defer c.cancel()

	conn, resp, err := c.dialer().DialContext(c.ctx, c.url, c.header)
	if err != nil {
		if c.isClosed() {
			c.listener.OnClose(nil)
			return
		}
		if resp != nil {
			err = fmt.Errorf("dial %s: %w (status %s)", c.url, err, resp.Status)
		} else {
			err = fmt.Errorf("dial %s: %w", c.url, err)
		}
		c.listener.OnError(err)
		c.listener.OnClose(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.listener.OnClose(nil)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.setupWebSocket(conn)
	c.logger.Debugf("websocket connected to %s", c.url)
	c.listener.OnOpen()

	if c.cfg.PingPeriod > 0 {
		go c.pingLoop(conn)
	}

	err = c.readLoop(conn)
	conn.Close()

	if c.isClosed() {
		c.listener.OnClose(nil)
		return
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.listener.OnError(err)
	}
	c.listener.OnClose(err)
}

// dialer copies the configured dialer and records the raw TCP connection so
// Close can abort a handshake that is still waiting for the server's reply.
// The handshake read does not observe ctx.
func (c *wsConn) dialer() *websocket.Dialer {
	d := *websocket.DefaultDialer
	if c.cfg.Dialer != nil {
		d = *c.cfg.Dialer
	}

	base := d.NetDialContext
	switch {
	case base != nil:
	case d.NetDial != nil:
		netDial := d.NetDial
		base = func(_ context.Context, network, addr string) (net.Conn, error) {
			return netDial(network, addr)
		}
	default:
		var nd net.Dialer
		base = nd.DialContext
	}

	d.NetDial = nil
	d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := base(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			raw.Close()
			return nil, net.ErrClosed
		}
		c.raw = raw
		return raw, nil
	}
	return &d
}

// setupWebSocket configures read limits and keeps the read deadline alive
// while the peer pings or pongs.
func (c *wsConn) setupWebSocket(conn *websocket.Conn) {
	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}
	if c.cfg.PongWait <= 0 {
		return
	}

	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
}

func (c *wsConn) readLoop(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			c.listener.OnMessage(data)
		}
	}
}

func (c *wsConn) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugf("ping failed: %v", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send writes one text frame.
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if conn == nil || closed {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close requests a normal closure. It does not wait for the read loop so it
// is safe to call from a Listener callback.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, raw := c.conn, c.raw
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		if raw != nil {
			_ = raw.Close()
		}
		return nil
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout),
	)
	return conn.Close()
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
