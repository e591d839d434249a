package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Builder helps build envelopes with a fluent interface
type Builder struct {
	env Envelope
	now func() time.Time
}

// NewBuilder creates a new envelope builder
func NewBuilder(t Type) *Builder {
	return &Builder{
		env: Envelope{Type: t, Data: Data{}},
		now: time.Now,
	}
}

// WithData merges data into the payload
func (b *Builder) WithData(data Data) *Builder {
	for k, v := range data {
		b.env.Data[k] = v
	}
	return b
}

// WithField sets a single payload field
func (b *Builder) WithField(key string, value any) *Builder {
	b.env.Data[key] = value
	return b
}

// WithTimestamp pins the envelope timestamp
func (b *Builder) WithTimestamp(ts time.Time) *Builder {
	b.env.Timestamp = ts.UTC()
	return b
}

// WithClock sets the time source used when no timestamp was pinned
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build returns the constructed envelope
func (b *Builder) Build() Envelope {
	env := b.env
	env.Data = b.env.Data.Clone()
	if env.Timestamp.IsZero() {
		env.Timestamp = b.now().UTC()
	}
	return env
}

// New builds an envelope stamped with the current time.
func New(t Type, data Data) Envelope {
	return NewBuilder(t).WithData(data).Build()
}

// MarkRead asks the server to mark a notification as read.
func MarkRead(notificationID any) Envelope {
	return NewBuilder(TypeMarkRead).WithField("notification_id", notificationID).Build()
}

// GetMetrics asks the server for a metrics_update.
func GetMetrics() Envelope {
	return NewBuilder(TypeGetMetrics).Build()
}

// Ping checks liveness; the payload carries the send time.
func Ping(now time.Time) Envelope {
	return NewBuilder(TypePing).
		WithTimestamp(now).
		WithField("timestamp", now.UTC().Format(TimestampLayout)).
		Build()
}

// Validator validates envelopes before they are sent
type Validator struct{}

// NewValidator creates a new envelope validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates an envelope
func (v *Validator) Validate(env Envelope) error {
	if env.Type == "" {
		return ErrMissingType
	}
	if env.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidTimestamp)
	}
	if env.Data != nil {
		if _, err := json.Marshal(map[string]any(env.Data)); err != nil {
			return fmt.Errorf("envelope data must be JSON serializable: %w", err)
		}
	}
	return nil
}
