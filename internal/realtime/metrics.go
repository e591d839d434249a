package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	messagesReceived  *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	toastsShown       *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	giveUps           prometheus.Counter
	sendsDropped      prometheus.Counter
	openConnections   prometheus.Gauge
}

// NewMetrics registers the client collectors on reg under the
// "realtime_client" namespace.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns, sub = "realtime", "client"

	return &Metrics{
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "messages_received_total",
			Help:      "Decoded inbound envelopes by type",
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped because they could not be decoded",
		}),
		toastsShown: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "toasts_total",
			Help:      "show_toast events emitted by severity",
		}, []string{"severity"}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts",
		}),
		giveUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "give_ups_total",
			Help:      "Connect cycles that exhausted their reconnection attempts",
		}),
		sendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "sends_dropped_total",
			Help:      "Outbound messages discarded while not connected",
		}),
		openConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "open_connections",
			Help:      "Connections currently in the connected state",
		}),
	}
}

func (m *Metrics) messageReceived(typ string) {
	if m != nil {
		m.messagesReceived.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) toastShown(severity Severity) {
	if m != nil {
		m.toastsShown.WithLabelValues(string(severity)).Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) gaveUp() {
	if m != nil {
		m.giveUps.Inc()
	}
}

func (m *Metrics) sendDropped() {
	if m != nil {
		m.sendsDropped.Inc()
	}
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.openConnections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.openConnections.Dec()
	}
}
