package orchestration

import "errors"

var (
	ErrCaptureNotBegun     = errors.New("orchestration: capture session not begun")
	ErrCaptureNotRecording = errors.New("orchestration: capture session not recording")
	ErrNotConnected        = errors.New("orchestration: controller not connected")
	ErrAlreadyConnected    = errors.New("orchestration: controller already connected")
	ErrNotManualMode       = errors.New("orchestration: push to talk requires manual turn mode")
	ErrControllerClosed    = errors.New("orchestration: controller closed")
)
