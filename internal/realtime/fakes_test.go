package realtime

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/transport"
)

// fakeTransport records every Open and hands out connections the test
// drives by hand.
type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	openErr error
	// dropErr makes Open connect and drop before it returns.
	dropErr error
}

func (t *fakeTransport) Open(url string, header http.Header, l transport.Listener) (transport.Conn, error) {
	t.mu.Lock()
	if t.openErr != nil {
		t.mu.Unlock()
		return nil, t.openErr
	}
	c := &fakeConn{url: url, header: header, listener: l}
	t.conns = append(t.conns, c)
	drop := t.dropErr
	t.mu.Unlock()

	if drop != nil {
		c.accept()
		c.fail(drop)
	}
	return c, nil
}

func (t *fakeTransport) opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fakeConn struct {
	url      string
	header   http.Header
	listener transport.Listener

	mu     sync.Mutex
	open   bool
	closed bool
	sent   [][]byte
}

// accept completes the handshake.
func (c *fakeConn) accept() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.listener.OnOpen()
}

func (c *fakeConn) deliver(raw string) {
	c.listener.OnMessage([]byte(raw))
}

// fail reports a transport error followed by the close.
func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	c.listener.OnError(err)
	c.listener.OnClose(err)
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.closed {
		return transport.ErrNotOpen
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	c.listener.OnClose(nil)
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

// manualClock schedules timers that only run when the test fires them.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// delays returns every delay ever scheduled, in order.
func (c *manualClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs the oldest pending timer, advancing the clock by its delay.
func (c *manualClock) fire() bool {
	c.mu.Lock()
	var next *manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.now = c.now.Add(next.delay)
	c.mu.Unlock()

	next.f()
	return true
}

// fireStale runs every stopped timer anyway, simulating a callback that was
// already on its way when Stop was called.
func (c *manualClock) fireStale() {
	c.mu.Lock()
	var stale []*manualTimer
	for _, t := range c.timers {
		if t.stopped && !t.fired {
			t.fired = true
			stale = append(stale, t)
		}
	}
	c.mu.Unlock()

	for _, t := range stale {
		t.f()
	}
}

type harness struct {
	transport *fakeTransport
	clock     *manualClock
	hook      *test.Hook
	log       logger.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	return &harness{
		transport: &fakeTransport{},
		clock:     newManualClock(),
		hook:      hook,
		log:       logger.NewFromLogrus(base),
	}
}

func (h *harness) options() []Option {
	return []Option{
		WithURL("ws://push.test/ws"),
		WithTransport(h.transport),
		WithClock(h.clock),
		WithLogger(h.log),
	}
}

func (h *harness) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient("u1", append(h.options(), opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func (h *harness) warnings() []string {
	var out []string
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

// recorder collects the payloads emitted for a set of events.
type recorder struct {
	mu     sync.Mutex
	events []string
	byName map[string][]any
}

func record(c *Client, events ...string) *recorder {
	r := &recorder{byName: make(map[string][]any)}
	for _, ev := range events {
		ev := ev
		c.On(ev, func(p any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			r.byName[ev] = append(r.byName[ev], p)
		})
	}
	return r
}

func (r *recorder) get(event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.byName[event]...)
}

func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) states() []State {
	var out []State
	for _, p := range r.get(EventStateChanged) {
		out = append(out, p.(State))
	}
	return out
}
