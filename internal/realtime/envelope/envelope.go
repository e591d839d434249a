package envelope

import (
	"fmt"
	"time"
)

// Type identifies the semantic kind of an envelope.
type Type = string

// Business event types pushed by the server.
const (
	TypeNotification    Type = "notification"
	TypeStockAlert      Type = "stock_alert"
	TypePaymentReceived Type = "payment_received"
	TypeNewSale         Type = "new_sale"
	TypeMetricsUpdate   Type = "metrics_update"
)

// Control types. The first three are sent by clients, the rest are server replies.
const (
	TypeMarkRead         Type = "mark_read"
	TypeGetMetrics       Type = "get_metrics"
	TypePing             Type = "ping"
	TypePong             Type = "pong"
	TypeNotificationRead Type = "notification_read"
	TypeKeepAlive        Type = "keepalive"
	TypeError            Type = "error_reply"
)

// Envelope is the unit of wire exchange: {type, data, timestamp}.
type Envelope struct {
	Type      Type
	Data      Data
	Timestamp time.Time

	// rawTimestamp keeps an inbound timestamp that could not be parsed.
	rawTimestamp string
}

// InvalidTimestamp returns the inbound timestamp text Decode could not
// parse. Timestamp is zero in that case.
func (e Envelope) InvalidTimestamp() (string, bool) {
	return e.rawTimestamp, e.rawTimestamp != ""
}

// Data is the type-specific payload of an envelope.
type Data map[string]any

// Value returns the raw value stored under key.
func (d Data) Value(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d[key]
	return v, ok
}

// String returns the value under key formatted as text, or "" when absent.
// Numbers decoded from the wire are float64; integral ones print without a
// fractional part.
func (d Data) String(key string) string {
	v, ok := d.Value(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%.2f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Has reports whether key is present with a non-nil value.
func (d Data) Has(key string) bool {
	v, ok := d.Value(key)
	return ok && v != nil
}

// Clone returns a shallow copy of d.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// IsControl reports whether t is a reserved client control type.
func IsControl(t Type) bool {
	switch t {
	case TypeMarkRead, TypeGetMetrics, TypePing:
		return true
	}
	return false
}
