package realtime

import (
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-realtime/internal/realtime/eventbus"
)

var errDrop = errors.New("connection reset by peer")

func newTestSupervisor(t *testing.T, h *harness) (*Supervisor, *eventbus.Router) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.apply(h.options())
	require.NoError(t, cfg.validate())

	router := eventbus.New(h.log)
	return NewSupervisor(cfg, router, nil), router
}

func TestSupervisorConnectOpen(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	rec := record(c, EventStateChanged, EventConnecting, EventConnected)

	require.NoError(t, c.Connect(""))
	assert.Equal(t, StateConnecting, c.ConnectionState())
	require.Equal(t, 1, h.transport.opens())

	conn := h.transport.last()
	assert.Equal(t, "ws://push.test/ws/notifications/u1", conn.url)

	conn.accept()
	assert.True(t, c.IsConnected())
	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.states())
	assert.Equal(t, []any{conn.url}, rec.get(EventConnected))
}

func TestSupervisorConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	require.NoError(t, c.Connect("notifications"))
	require.NoError(t, c.Connect("notifications"))
	h.transport.last().accept()
	require.NoError(t, c.Connect("notifications"))

	assert.Equal(t, 1, h.transport.opens())
	assert.True(t, c.IsConnected())
}

func TestSupervisorRetryDelaySequenceAndGiveUp(t *testing.T) {
	h := newHarness(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := h.client(t, WithBaseDelay(time.Second), WithMaxAttempts(5), WithMetrics(metrics))
	rec := record(c, EventReconnecting, EventGiveUp, EventDisconnected)

	require.NoError(t, c.Connect(""))
	h.transport.last().accept()
	h.transport.last().fail(errDrop)

	for i := 0; i < 5; i++ {
		require.True(t, h.clock.fire(), "retry %d should be scheduled", i)
		assert.Equal(t, StateConnecting, c.ConnectionState())
		h.transport.last().fail(errDrop)
	}

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, h.clock.delays())

	reconnects := rec.get(EventReconnecting)
	require.Len(t, reconnects, 5)
	for i, p := range reconnects {
		assert.Equal(t, i, p.(ReconnectInfo).Attempt)
	}

	giveUps := rec.get(EventGiveUp)
	require.Len(t, giveUps, 1)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, giveUps[0].(error), &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.ErrorIs(t, exhausted, errDrop)

	// No further automatic attempts.
	assert.Equal(t, 0, h.clock.pending())
	assert.False(t, h.clock.fire())
	assert.Equal(t, 6, h.transport.opens())
	assert.Equal(t, StateDisconnected, c.ConnectionState())
	assert.True(t, c.Offline())

	last := rec.get(EventDisconnected)
	assert.False(t, last[len(last)-1].(DisconnectInfo).WillRetry)

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.reconnectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.giveUps))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.openConnections))
}

func TestSupervisorConnectAfterGiveUpStartsOver(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, WithMaxAttempts(1))

	require.NoError(t, c.Connect(""))
	h.transport.last().fail(errDrop)
	require.True(t, h.clock.fire())
	h.transport.last().fail(errDrop)
	require.True(t, c.Offline())

	require.NoError(t, c.Connect(""))
	assert.False(t, c.Offline())
	assert.Equal(t, 0, c.Attempts())
	assert.Equal(t, 3, h.transport.opens())

	h.transport.last().accept()
	assert.True(t, c.IsConnected())
}

func TestSupervisorSuccessfulReconnectResetsCounter(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	require.NoError(t, c.Connect(""))
	h.transport.last().accept()
	h.transport.last().fail(errDrop)
	assert.Equal(t, 1, c.Attempts())

	require.True(t, h.clock.fire())
	h.transport.last().fail(errDrop)
	assert.Equal(t, 2, c.Attempts())

	// attempt 2 succeeds
	require.True(t, h.clock.fire())
	h.transport.last().accept()
	assert.True(t, c.IsConnected())
	assert.Equal(t, 0, c.Attempts())

	h.transport.last().fail(errDrop)
	delays := h.clock.delays()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, delays)
}

func TestSupervisorDisconnectCancelsPendingRetry(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	require.NoError(t, c.Connect(""))
	h.transport.last().accept()
	h.transport.last().fail(errDrop)
	require.Equal(t, 1, h.clock.pending())

	rec := record(c, EventStateChanged, EventConnecting)
	c.Disconnect()

	assert.Equal(t, StateDisconnected, c.ConnectionState())
	assert.Equal(t, 0, h.clock.pending())

	// A retry callback that raced the cancellation must not reconnect.
	h.clock.fireStale()
	assert.Equal(t, 1, h.transport.opens())
	assert.Empty(t, rec.get(EventConnecting))
	assert.NotContains(t, rec.states(), StateConnecting)
}

func TestSupervisorDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	rec := record(c, EventDisconnected, EventStateChanged)

	c.Disconnect()
	assert.Empty(t, rec.sequence(), "disconnect before connect is a no-op")

	require.NoError(t, c.Connect(""))
	conn := h.transport.last()
	conn.accept()

	c.Disconnect()
	c.Disconnect()

	assert.True(t, conn.isClosed())
	assert.Equal(t, StateDisconnected, c.ConnectionState())
	assert.Equal(t, []State{StateConnecting, StateConnected, StateClosing, StateDisconnected}, rec.states())

	disconnects := rec.get(EventDisconnected)
	require.Len(t, disconnects, 1)
	assert.True(t, disconnects[0].(DisconnectInfo).Requested)
	assert.Equal(t, 0, h.clock.pending())
	assert.Equal(t, 1, h.transport.opens())
}

func TestSupervisorDisconnectWhileConnecting(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	require.NoError(t, c.Connect(""))
	conn := h.transport.last()
	c.Disconnect()

	// A late handshake on the abandoned connection is ignored.
	conn.listener.OnOpen()
	assert.Equal(t, StateDisconnected, c.ConnectionState())
	assert.True(t, conn.isClosed())
}

func TestSupervisorIgnoresStaleConnection(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	rec := record(c, "new_sale", EventReconnecting)

	require.NoError(t, c.Connect("a"))
	first := h.transport.last()
	first.accept()

	require.NoError(t, c.Connect("b"))
	second := h.transport.last()
	second.accept()
	assert.True(t, first.isClosed())
	assert.Equal(t, "ws://push.test/ws/b/u1", second.url)

	first.deliver(`{"type":"new_sale","data":{}}`)
	first.listener.OnError(errDrop)
	first.listener.OnClose(errDrop)

	assert.Empty(t, rec.get("new_sale"))
	assert.Empty(t, rec.get(EventReconnecting))
	assert.True(t, c.IsConnected())
}

func TestSupervisorOpenErrorSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	s, router := newTestSupervisor(t, h)

	var errs []error
	router.On(EventError, func(p any) { errs = append(errs, p.(error)) })

	h.transport.openErr = errDrop
	s.Connect("ws://push.test/ws/notifications/u1", http.Header{})

	assert.Equal(t, StateDisconnected, s.State())
	assert.True(t, s.PendingRetry())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errDrop)

	h.transport.openErr = nil
	require.True(t, h.clock.fire())
	assert.Equal(t, StateConnecting, s.State())
	assert.False(t, s.PendingRetry())
}

func TestSupervisorSendRequiresConnection(t *testing.T) {
	h := newHarness(t)
	s, _ := newTestSupervisor(t, h)

	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)

	s.Connect("ws://push.test/ws/notifications/u1", nil)
	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)

	h.transport.last().accept()
	require.NoError(t, s.Send([]byte("x")))
	assert.Equal(t, []string{"x"}, h.transport.last().sentMessages())
}

func TestSupervisorSendsBearerToken(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, WithToken("secret"))

	require.NoError(t, c.Connect(""))
	assert.Equal(t, "Bearer secret", h.transport.last().header.Get("Authorization"))
}

func TestSupervisorMaxDelayCapsBackoff(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, WithMaxAttempts(4), WithMaxDelay(3*time.Second))

	require.NoError(t, c.Connect(""))
	h.transport.last().fail(errDrop)
	for h.clock.fire() {
		h.transport.last().fail(errDrop)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, h.clock.delays())
}

func TestSupervisorIgnoresConnectionClosedDuringOpen(t *testing.T) {
	h := newHarness(t)
	s, router := newTestSupervisor(t, h)

	var states []State
	router.On(EventStateChanged, func(p any) { states = append(states, p.(State)) })

	h.transport.dropErr = errDrop
	s.Connect("ws://push.test/ws/notifications/u1", nil)

	assert.Equal(t, StateDisconnected, s.State())
	assert.True(t, s.PendingRetry())
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)

	s.mu.Lock()
	stale := s.conn
	s.mu.Unlock()
	assert.Nil(t, stale)

	h.transport.dropErr = nil
	require.True(t, h.clock.fire())
	h.transport.last().accept()
	assert.Equal(t, StateConnected, s.State())
	require.NoError(t, s.Send([]byte("x")))
	assert.Equal(t, []string{"x"}, h.transport.last().sentMessages())
}

func TestSupervisorLargeBaseDelayDoesNotOverflow(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, WithBaseDelay(48*time.Hour), WithMaxAttempts(20))

	require.NoError(t, c.Connect(""))
	h.transport.last().fail(errDrop)
	require.True(t, h.clock.fire())
	h.transport.last().fail(errDrop)

	assert.Equal(t, []time.Duration{48 * time.Hour, 96 * time.Hour}, h.clock.delays())
	assert.Equal(t, 1, h.clock.pending())
}

func TestCapDelay(t *testing.T) {
	assert.Equal(t, 32*time.Second, capDelay(time.Second, 5))
	assert.Equal(t, time.Second<<16, capDelay(time.Second, 40))
	assert.Equal(t, time.Second, capDelay(time.Second, 0))
	assert.Equal(t, time.Duration(math.MaxInt64), capDelay(48*time.Hour, 16))
	assert.Positive(t, capDelay(time.Duration(math.MaxInt64/2), 3))
}
