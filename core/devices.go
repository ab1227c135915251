package orchestration

import (
	"context"

	"github.com/koscakluka/ema-realtime/core/audio"
)

// CaptureDevice is a microphone opened for one capture session. Devices
// deliver normalized float samples on their own callback thread.
type CaptureDevice interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onSamples func(samples []float32)) error
	StopCapture() error
	Close() error
}

// PlaybackDevice is a speaker opened for one playback stream. The device
// pulls audio by calling render with a buffer to fill on every period.
type PlaybackDevice interface {
	EncodingInfo() audio.EncodingInfo
	StartPlayback(ctx context.Context, render func(out []int16)) error
	StopPlayback() error
	Close() error
}

type CaptureOpener func(ctx context.Context, info audio.EncodingInfo) (CaptureDevice, error)

type PlaybackOpener func(ctx context.Context, info audio.EncodingInfo) (PlaybackDevice, error)
