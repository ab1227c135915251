package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("realtime: client closed")
	ErrConnectionFailed = errors.New("realtime: connection failed")
	ErrMissingAPIKey    = errors.New("realtime: missing api key")
)

// ConnectionError is returned when the websocket cannot be established.
type ConnectionError struct {
	URL    string
	Op     string
	Status int
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("realtime: %s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("realtime: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnectionFailed }

// SendError is returned when an outbound event cannot be queued or encoded.
type SendError struct {
	Type string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("realtime: send %s: %v", e.Type, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// EventError describes an inbound event that could not be decoded.
type EventError struct {
	Type string
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("realtime: decode %s: %v", e.Type, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }
