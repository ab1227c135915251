package audio

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedHeader   = errors.New("audio: malformed container header")
	ErrUnsupportedFormat = errors.New("audio: unsupported container format")
	ErrOddLength         = errors.New("audio: pcm16 byte length is odd")
	ErrPermissionDenied  = errors.New("audio: device permission denied")
	ErrDeviceUnavailable = errors.New("audio: device unavailable")
	ErrDeviceNotOpen     = errors.New("audio: device not open")
)

// CodecError describes why a container could not be decoded.
type CodecError struct {
	Kind   error
	Detail string
}

func (e *CodecError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CodecError) Unwrap() error { return e.Kind }

func (e *CodecError) Is(target error) bool { return e.Kind == target }

func malformed(format string, args ...any) error {
	return &CodecError{Kind: ErrMalformedHeader, Detail: fmt.Sprintf(format, args...)}
}

func unsupported(format string, args ...any) error {
	return &CodecError{Kind: ErrUnsupportedFormat, Detail: fmt.Sprintf(format, args...)}
}

type DeviceKind int

const (
	DeviceUnavailable DeviceKind = iota
	DevicePermissionDenied
)

func (k DeviceKind) String() string {
	if k == DevicePermissionDenied {
		return "permission_denied"
	}
	return "unavailable"
}

// DeviceError is returned when an audio device cannot be acquired or driven.
type DeviceError struct {
	Op   string
	Kind DeviceKind
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio device %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("audio device %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Kind == DevicePermissionDenied
	case ErrDeviceUnavailable:
		return e.Kind == DeviceUnavailable
	}
	return false
}

// NewDeviceError wraps err, classifying it by the sentinel it matches.
// Errors that match neither sentinel are treated as unavailable devices.
func NewDeviceError(op string, err error) *DeviceError {
	var deviceErr *DeviceError
	if errors.As(err, &deviceErr) {
		return &DeviceError{Op: op, Kind: deviceErr.Kind, Err: deviceErr.Err}
	}

	kind := DeviceUnavailable
	if errors.Is(err, ErrPermissionDenied) {
		kind = DevicePermissionDenied
	}
	return &DeviceError{Op: op, Kind: kind, Err: err}
}
