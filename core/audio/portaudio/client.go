package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-realtime/core/audio"
)

// Client wraps the PortAudio library lifetime. Streams opened through it use
// blocking reads and writes driven by their own goroutine.
type Client struct {
	bufferSize int

	mu      sync.Mutex
	closed  bool
	streams []interface{ Close() error }
}

func NewClient(bufferSize int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = 480
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, audio.NewDeviceError("initialize", classify(err))
	}
	return &Client{bufferSize: bufferSize}, nil
}

func (c *Client) OpenCapture(_ context.Context, info audio.EncodingInfo) (*Capture, error) {
	info = normalize(info)
	capture := &Capture{
		info: audio.EncodingInfo{SampleRate: info.SampleRate, Channels: 1, Format: audio.EncodingFloat32},
		in:   make([]float32, c.bufferSize),
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(info.SampleRate), c.bufferSize, capture.in)
	if err != nil {
		return nil, audio.NewDeviceError("open capture", classify(err))
	}
	capture.stream = stream
	c.track(capture)
	return capture, nil
}

func (c *Client) OpenPlayback(_ context.Context, info audio.EncodingInfo) (*Playback, error) {
	info = normalize(info)
	playback := &Playback{
		info: audio.EncodingInfo{SampleRate: info.SampleRate, Channels: 1, Format: audio.EncodingLinear16},
		out:  make([]int16, c.bufferSize),
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(info.SampleRate), c.bufferSize, playback.out)
	if err != nil {
		return nil, audio.NewDeviceError("open playback", classify(err))
	}
	playback.stream = stream
	c.track(playback)
	return playback, nil
}

func (c *Client) track(stream interface{ Close() error }) {
	c.mu.Lock()
	c.streams = append(c.streams, stream)
	c.mu.Unlock()
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	var errs error
	for _, stream := range streams {
		errs = errors.Join(errs, stream.Close())
	}
	if err := portaudio.Terminate(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to terminate portaudio: %w", err))
	}
	return errs
}

func normalize(info audio.EncodingInfo) audio.EncodingInfo {
	if info.SampleRate <= 0 {
		info.SampleRate = audio.DefaultSampleRate
	}
	return info
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
}
