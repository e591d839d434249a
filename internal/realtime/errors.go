package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send while the connection is not open.
	// Nothing is queued.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrClosed is returned by operations on a client removed from its registry.
	ErrClosed = errors.New("realtime: client closed")

	// ErrMissingUserID is returned when a client is created without a user.
	ErrMissingUserID = errors.New("realtime: user id is required")
)

// RetryExhaustedError is the payload of EventGiveUp.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("realtime: gave up after %d reconnection attempts", e.Attempts)
	}
	return fmt.Sprintf("realtime: gave up after %d reconnection attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }
