package realtime

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/transport"
)

const (
	DefaultURL         = "ws://localhost:8080/ws"
	DefaultChannel     = "notifications"
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

// Config configures a Client.
type Config struct {
	// URL is the websocket base; the endpoint is URL/<channel>/<userID>.
	URL string
	// Channel is used when Connect is called with an empty channel name.
	Channel string
	// Token is sent as a bearer token when non-empty.
	Token string

	BaseDelay   time.Duration
	MaxAttempts int
	// MaxDelay caps a single backoff delay. Zero means a cap of
	// BaseDelay * 2^min(MaxAttempts, 16), saturating at the largest Duration.
	MaxDelay time.Duration

	Logger    logger.Logger
	Transport transport.Transport
	Clock     Clock
	Metrics   *Metrics
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		URL:         DefaultURL,
		Channel:     DefaultChannel,
		BaseDelay:   DefaultBaseDelay,
		MaxAttempts: DefaultMaxAttempts,
		Clock:       SystemClock,
	}
}

// Option configures a Client.
type Option func(*Config)

func WithURL(u string) Option {
	return func(c *Config) { c.URL = u }
}

func WithDefaultChannel(channel string) Option {
	return func(c *Config) {
		if channel != "" {
			c.Channel = channel
		}
	}
}

func WithToken(token string) Option {
	return func(c *Config) { c.Token = token }
}

// WithBaseDelay sets the delay before the first retry; attempt n waits
// base * 2^n.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.BaseDelay = d
		}
	}
}

// WithMaxAttempts sets how many consecutive failed reconnections are
// tolerated before giving up.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithTransport(t transport.Transport) Option {
	return func(c *Config) { c.Transport = t }
}

func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

func (c *Config) apply(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogrusLogger(logger.NewDefaultConfig())
	}
	if c.Transport == nil {
		c.Transport = transport.NewWebSocket(c.Logger)
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("realtime: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("realtime: invalid url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("realtime: unsupported url scheme %q", u.Scheme)
	}
	if c.BaseDelay <= 0 {
		return errors.New("realtime: base delay must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("realtime: max attempts must be positive")
	}
	return nil
}

// endpoint returns the websocket URL for one (channel, user) pair.
func (c *Config) endpoint(channel, userID string) string {
	u, _ := url.Parse(c.URL)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	raw := strings.TrimRight(u.EscapedPath(), "/") + "/" + url.PathEscape(channel) + "/" + url.PathEscape(userID)
	u.RawPath = raw
	u.Path, _ = url.PathUnescape(raw)
	return u.String()
}

func (c *Config) header() http.Header {
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}
