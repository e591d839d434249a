package realtime

import "time"

// Lifecycle events emitted on the client's router.
const (
	EventConnecting   = "connecting"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventReconnecting = "reconnecting"
	EventError        = "error"
	EventGiveUp       = "give_up"
	EventStateChanged = "state_changed"
)

// Events produced by the dispatcher.
const (
	// EventMessage receives every decoded envelope.Envelope.
	EventMessage = "message"
	// EventShowToast receives a Toast for built-in business types.
	EventShowToast = "show_toast"
	// EventMetricsUpdated receives the envelope.Data of metrics_update.
	EventMetricsUpdated = "metrics_updated"
)

// reservedEvents are the client's own event names. Inbound envelopes using
// one of them are only delivered as EventMessage.
var reservedEvents = map[string]struct{}{
	EventConnecting:     {},
	EventConnected:      {},
	EventDisconnected:   {},
	EventReconnecting:   {},
	EventError:          {},
	EventGiveUp:         {},
	EventStateChanged:   {},
	EventMessage:        {},
	EventShowToast:      {},
	EventMetricsUpdated: {},
}

// IsReservedEvent reports whether name is emitted by the client itself.
func IsReservedEvent(name string) bool {
	_, ok := reservedEvents[name]
	return ok
}

// DisconnectInfo is the payload of EventDisconnected.
type DisconnectInfo struct {
	// Err is the transport error, nil for a requested disconnect.
	Err error
	// Requested is true when Disconnect caused the transition.
	Requested bool
	// WillRetry is true when a reconnection has been scheduled.
	WillRetry bool
}

// ReconnectInfo is the payload of EventReconnecting.
type ReconnectInfo struct {
	// Attempt counts from 0 for the first retry after a drop.
	Attempt int
	Delay   time.Duration
}
