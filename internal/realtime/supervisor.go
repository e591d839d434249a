package realtime

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/eventbus"
	"go-notification-realtime/internal/realtime/transport"
)

// MessageFunc receives raw inbound messages together with the sequence
// number of the connection instance that delivered them.
type MessageFunc func(conn uint64, raw []byte)

// Supervisor owns the lifecycle of one logical connection: it opens it,
// follows transport signals, and reconnects with exponential backoff until
// MaxAttempts consecutive failures.
//
// Every transport connection and every scheduled retry is tagged with the
// epoch current when it was created. Connect and Disconnect advance the
// epoch, so callbacks from a superseded connection or a retry timer that
// fires late are ignored.
type Supervisor struct {
	mu sync.Mutex

	transport transport.Transport
	router    *eventbus.Router
	clock     Clock
	metrics   *Metrics
	logger    logger.Logger
	onMessage MessageFunc

	maxAttempts int
	backoff     *backoff.ExponentialBackOff

	state    State
	url      string
	header   http.Header
	epoch    uint64
	conn     transport.Conn
	timer    Timer
	attempts int
	lastErr  error
	gaveUp   bool
}

// capDelay returns base doubled once per attempt, at most 16 times, without
// overflowing time.Duration.
func capDelay(base time.Duration, attempts int) time.Duration {
	shift := min(attempts, 16)
	if base <= 0 || shift <= 0 {
		return base
	}
	if base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

type notice struct {
	event   string
	payload any
}

// NewSupervisor creates a supervisor in the disconnected state. cfg must
// have been validated.
func NewSupervisor(cfg Config, router *eventbus.Router, onMessage MessageFunc) *Supervisor {
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = capDelay(cfg.BaseDelay, cfg.MaxAttempts)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
	b.Reset()

	if onMessage == nil {
		onMessage = func(uint64, []byte) {}
	}

	return &Supervisor{
		transport:   cfg.Transport,
		router:      router,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.WithField("component", "supervisor"),
		onMessage:   onMessage,
		maxAttempts: cfg.MaxAttempts,
		backoff:     b,
		state:       StateDisconnected,
	}
}

// State returns the authoritative connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the reconnection counter.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// URL returns the endpoint of the current or last connect cycle.
func (s *Supervisor) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// PendingRetry reports whether a reconnection timer is scheduled.
func (s *Supervisor) PendingRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// GaveUp reports whether the last connect cycle exhausted its attempts.
func (s *Supervisor) GaveUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaveUp
}

// Connect starts a connect cycle to url. It is a no-op while connecting or
// connected to the same url; a different url replaces the current
// connection. The attempt counter starts from zero.
func (s *Supervisor) Connect(url string, header http.Header) {
	s.mu.Lock()
	if s.url == url && (s.state == StateConnecting || s.state == StateConnected) {
		s.mu.Unlock()
		return
	}

	var notices []notice
	old, closing := s.teardownLocked(&notices)

	s.url = url
	s.header = header.Clone()
	s.attempts = 0
	s.lastErr = nil
	s.gaveUp = false
	s.backoff.Reset()
	epoch := s.beginAttemptLocked(&notices)
	s.mu.Unlock()

	if closing && old != nil {
		_ = old.Close()
	}
	s.flush(notices)
	s.dial(epoch)
}

// Disconnect closes the connection and cancels any pending retry. It is
// idempotent and safe before Connect. Afterwards the state is disconnected
// and no timer is pending.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	var notices []notice
	old, _ := s.teardownLocked(&notices)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.flush(notices)
}

// teardownLocked cancels the pending retry, invalidates in-flight callbacks
// and, if a connection is live, walks it through closing to disconnected.
func (s *Supervisor) teardownLocked(notices *[]notice) (transport.Conn, bool) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++

	conn := s.conn
	s.conn = nil

	if s.state != StateConnecting && s.state != StateConnected {
		return conn, false
	}

	if s.state == StateConnected {
		s.metrics.connectionClosed()
	}
	s.setStateLocked(StateClosing, notices)
	s.setStateLocked(StateDisconnected, notices)
	*notices = append(*notices, notice{EventDisconnected, DisconnectInfo{Requested: true}})
	s.logger.Infof("disconnected from %s", s.url)

	return conn, true
}

func (s *Supervisor) beginAttemptLocked(notices *[]notice) uint64 {
	s.epoch++
	s.setStateLocked(StateConnecting, notices)
	*notices = append(*notices, notice{EventConnecting, s.url})
	s.logger.Debugf("connecting to %s (attempt counter %d)", s.url, s.attempts)
	return s.epoch
}

func (s *Supervisor) setStateLocked(st State, notices *[]notice) {
	if s.state == st {
		return
	}
	s.state = st
	*notices = append(*notices, notice{EventStateChanged, st})
}

func (s *Supervisor) dial(epoch uint64) {
	s.mu.Lock()
	url, header := s.url, s.header
	s.mu.Unlock()

	conn, err := s.transport.Open(url, header, &connListener{s: s, epoch: epoch})

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		var notices []notice
		s.logger.Errorf("open %s: %v", url, err)
		s.lastErr = err
		notices = append(notices, notice{EventError, err})
		s.failLocked(err, &notices)
		s.mu.Unlock()
		s.flush(notices)
		return
	}
	// The transport may already have opened and closed the connection.
	if s.state == StateConnecting || s.state == StateConnected {
		s.conn = conn
	}
	s.mu.Unlock()
}

// failLocked moves a dropped or failed connection to disconnected and
// applies the retry policy.
func (s *Supervisor) failLocked(err error, notices *[]notice) {
	if s.state == StateConnected {
		s.metrics.connectionClosed()
	}
	s.conn = nil
	s.setStateLocked(StateDisconnected, notices)

	if s.attempts >= s.maxAttempts {
		s.gaveUp = true
		*notices = append(*notices, notice{EventDisconnected, DisconnectInfo{Err: err}})
		giveUp := &RetryExhaustedError{Attempts: s.attempts, LastErr: err}
		*notices = append(*notices, notice{EventGiveUp, giveUp})
		s.metrics.gaveUp()
		s.logger.Errorf("%v", giveUp)
		return
	}

	*notices = append(*notices, notice{EventDisconnected, DisconnectInfo{Err: err, WillRetry: true}})

	attempt := s.attempts
	delay := s.backoff.NextBackOff()
	s.attempts++
	epoch := s.epoch
	s.timer = s.clock.AfterFunc(delay, func() { s.retry(epoch) })

	*notices = append(*notices, notice{EventReconnecting, ReconnectInfo{Attempt: attempt, Delay: delay}})
	s.metrics.reconnectScheduled()
	s.logger.Warnf("connection to %s lost (%v); retry %d/%d in %s", s.url, err, attempt+1, s.maxAttempts, delay)
}

func (s *Supervisor) retry(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	var notices []notice
	next := s.beginAttemptLocked(&notices)
	s.mu.Unlock()

	s.flush(notices)
	s.dial(next)
}

// Send writes raw bytes on the live connection.
func (s *Supervisor) Send(data []byte) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(data)
}

func (s *Supervisor) flush(notices []notice) {
	for _, n := range notices {
		s.router.Emit(n.event, n.payload)
	}
}

func (s *Supervisor) handleOpen(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}

	var notices []notice
	s.setStateLocked(StateConnected, &notices)
	s.attempts = 0
	s.lastErr = nil
	s.backoff.Reset()
	s.metrics.connectionOpened()
	notices = append(notices, notice{EventConnected, s.url})
	s.logger.Infof("connected to %s", s.url)
	s.mu.Unlock()

	s.flush(notices)
}

func (s *Supervisor) handleMessage(epoch uint64, data []byte) {
	s.mu.Lock()
	current := s.epoch == epoch && s.state == StateConnected
	s.mu.Unlock()

	if !current {
		return
	}
	s.onMessage(epoch, data)
}

func (s *Supervisor) handleError(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.lastErr = err
	s.logger.Errorf("transport error on %s: %v", s.url, err)
	s.mu.Unlock()

	s.router.Emit(EventError, err)
}

func (s *Supervisor) handleClose(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch || (s.state != StateConnecting && s.state != StateConnected) {
		s.mu.Unlock()
		return
	}
	if err == nil {
		err = s.lastErr
	}

	var notices []notice
	s.failLocked(err, &notices)
	s.mu.Unlock()

	s.flush(notices)
}

// connListener binds transport callbacks to the epoch they were opened in.
type connListener struct {
	s     *Supervisor
	epoch uint64
}

func (l *connListener) OnOpen()               { l.s.handleOpen(l.epoch) }
func (l *connListener) OnMessage(data []byte) { l.s.handleMessage(l.epoch, data) }
func (l *connListener) OnError(err error)     { l.s.handleError(l.epoch, err) }
func (l *connListener) OnClose(err error)     { l.s.handleClose(l.epoch, err) }
