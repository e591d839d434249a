package realtime

import (
	"errors"
	"sync"
	"time"

	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
	"go-notification-realtime/internal/realtime/eventbus"
)

// Dispatcher decodes inbound messages and routes them on the Router: first
// under their own type with the data as payload, then under EventMessage
// with the whole envelope, then through the built-in handlers. A type that
// names one of the client's own events skips the first step.
type Dispatcher struct {
	router  *eventbus.Router
	clock   Clock
	metrics *Metrics
	logger  logger.Logger

	mu     sync.Mutex
	conn   uint64
	lastTS time.Time
}

// NewDispatcher creates a dispatcher publishing on router.
func NewDispatcher(router *eventbus.Router, clock Clock, metrics *Metrics, log logger.Logger) *Dispatcher {
	if clock == nil {
		clock = SystemClock
	}
	return &Dispatcher{
		router:  router,
		clock:   clock,
		metrics: metrics,
		logger:  log.WithField("component", "dispatcher"),
	}
}

// Dispatch handles one raw message received on connection instance conn.
// Malformed messages are logged and dropped. It reports whether the message
// was routed.
func (d *Dispatcher) Dispatch(conn uint64, raw []byte) bool {
	env, err := envelope.Decode(raw)
	if err != nil {
		d.metrics.decodeError()
		var de *envelope.DecodeError
		if errors.As(err, &de) {
			d.logger.WithField("raw", truncate(de.Raw, 256)).Warnf("dropping inbound message: %v", de.Err)
		} else {
			d.logger.Warnf("dropping inbound message: %v", err)
		}
		return false
	}

	if env.Timestamp.IsZero() {
		if text, bad := env.InvalidTimestamp(); bad {
			d.logger.WithFields(logger.Fields{
				"type":      env.Type,
				"timestamp": truncate([]byte(text), 64),
			}).Warn("unparsable inbound timestamp, using receive time")
		}
		env.Timestamp = d.clock.Now().UTC()
	}
	d.checkOrder(conn, env)

	if env.Data == nil {
		env.Data = envelope.Data{}
	}
	d.metrics.messageReceived(env.Type)

	if IsReservedEvent(env.Type) {
		d.logger.WithField("type", env.Type).Warn("inbound type collides with a client event, delivered as message only")
	} else {
		d.router.Emit(env.Type, env.Data)
	}
	d.router.Emit(EventMessage, env)
	d.builtin(env)
	return true
}

// checkOrder warns when timestamps go backwards within one connection.
func (d *Dispatcher) checkOrder(conn uint64, env envelope.Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conn != d.conn {
		d.conn = conn
		d.lastTS = env.Timestamp
		return
	}
	if env.Timestamp.Before(d.lastTS) {
		d.logger.WithFields(logger.Fields{
			"type":     env.Type,
			"previous": d.lastTS.Format(envelope.TimestampLayout),
			"current":  env.Timestamp.Format(envelope.TimestampLayout),
		}).Warn("inbound timestamp went backwards")
		return
	}
	d.lastTS = env.Timestamp
}

func (d *Dispatcher) builtin(env envelope.Envelope) {
	if env.Type == envelope.TypeMetricsUpdate {
		d.router.Emit(EventMetricsUpdated, env.Data)
		return
	}

	build, ok := builtinToasts[env.Type]
	if !ok {
		return
	}
	toast := build(env.Data)
	d.metrics.toastShown(toast.Severity)
	d.router.Emit(EventShowToast, toast)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
