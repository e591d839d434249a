package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the hub's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	connections    *prometheus.GaugeVec
	messagesSent   *prometheus.CounterVec
	sendFailures   *prometheus.CounterVec
	inboundControl *prometheus.CounterVec
}

// NewMetrics registers the hub collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns, sub = "realtime", "hub"

	return &Metrics{
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "connections",
			Help:      "Registered connections by transport",
		}, []string{"transport"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "messages_sent_total",
			Help:      "Envelopes handed to connections by type",
		}, []string{"type"}),
		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "send_failures_total",
			Help:      "Failed deliveries by transport",
		}, []string{"transport"}),
		inboundControl: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "inbound_messages_total",
			Help:      "Envelopes received from clients by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) connectionOpened(transport string) {
	if m != nil {
		m.connections.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) connectionClosed(transport string) {
	if m != nil {
		m.connections.WithLabelValues(transport).Dec()
	}
}

func (m *Metrics) messageSent(typ string) {
	if m != nil {
		m.messagesSent.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) sendFailed(transport string) {
	if m != nil {
		m.sendFailures.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) inbound(typ string) {
	if m != nil {
		m.inboundControl.WithLabelValues(typ).Inc()
	}
}
