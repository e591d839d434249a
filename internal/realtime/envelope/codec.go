package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned when the raw text is not a JSON object.
	ErrMalformed = errors.New("envelope: malformed document")

	// ErrMissingType is returned when the decoded object has no type.
	ErrMissingType = errors.New("envelope: missing type")

	// ErrInvalidTimestamp is returned by Validator when timestamp is unset.
	ErrInvalidTimestamp = errors.New("envelope: invalid timestamp")
)

// TimestampLayout is the layout used on the wire.
const TimestampLayout = time.RFC3339Nano

// DataValueKey holds a data payload that is not a JSON object.
const DataValueKey = "value"

// inboundLayouts are tried in order when parsing a timestamp. Layouts
// without a zone read as UTC; fractional seconds are accepted by all.
var inboundLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp in any of the forms servers
// commonly send.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inboundLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// DecodeError describes an inbound message that could not be decoded.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d bytes: %v", len(e.Raw), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// MarshalJSON renders the envelope in its wire form. A nil Data map is sent
// as an empty object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = Data{}
	}
	raw, err := json.Marshal(map[string]any(data))
	if err != nil {
		return nil, err
	}

	var ts string
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.UTC().Format(TimestampLayout)
	}

	return json.Marshal(wireEnvelope{
		Type:      e.Type,
		Data:      raw,
		Timestamp: ts,
	})
}

// UnmarshalJSON parses the wire form with the same rules as Decode.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	env, err := Decode(b)
	if err != nil {
		return err
	}
	*e = env
	return nil
}

// Decode parses a raw inbound message. It never panics; every failure is a
// *DecodeError. A missing timestamp decodes as the zero time, as does one
// that cannot be parsed (see Envelope.InvalidTimestamp). Data that is not an
// object is kept under DataValueKey.
func Decode(raw []byte) (Envelope, error) {
	fail := func(err error) (Envelope, error) {
		return Envelope{}, &DecodeError{Raw: raw, Err: err}
	}

	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if w.Type == "" {
		return fail(ErrMissingType)
	}

	env := Envelope{Type: w.Type, Data: Data{}}

	if trimmed := bytes.TrimSpace(w.Data); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] == '{' {
			if err := json.Unmarshal(trimmed, &env.Data); err != nil {
				return fail(fmt.Errorf("%w: %v", ErrMalformed, err))
			}
		} else {
			var v any
			if err := json.Unmarshal(trimmed, &v); err != nil {
				return fail(fmt.Errorf("%w: %v", ErrMalformed, err))
			}
			env.Data[DataValueKey] = v
		}
	}

	if w.Timestamp != "" {
		ts, err := ParseTimestamp(w.Timestamp)
		if err != nil {
			env.rawTimestamp = w.Timestamp
		} else {
			env.Timestamp = ts
		}
	}

	return env, nil
}

// Encode renders an outbound message. Envelopes use their wire form; any
// other value is marshaled as-is.
func Encode(message any) ([]byte, error) {
	switch m := message.(type) {
	case nil:
		return nil, errors.New("envelope: nothing to encode")
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	}
	b, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode: %w", err)
	}
	return b, nil
}
