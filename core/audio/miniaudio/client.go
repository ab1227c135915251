package miniaudio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
)

// Client owns the miniaudio context shared by the devices it opens.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	mu      sync.Mutex
	devices []interface{ Close() error }
	closed  bool
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", strings.TrimSpace(message)) },
	)
	if err != nil {
		return nil, audio.NewDeviceError("init context", classify(err))
	}

	return &Client{audioContext: audioCtx}, nil
}

// OpenCapture initializes a mono float32 capture device. The device is not
// started until StartCapture.
func (c *Client) OpenCapture(_ context.Context, info audio.EncodingInfo) (*Capture, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	capture := &Capture{}
	if err := capture.init(c.audioContext, normalize(info)); err != nil {
		return nil, err
	}
	c.track(capture)
	return capture, nil
}

// OpenPlayback initializes a mono PCM16 playback device. The device is not
// started until StartPlayback.
func (c *Client) OpenPlayback(_ context.Context, info audio.EncodingInfo) (*Playback, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	playback := &Playback{}
	if err := playback.init(c.audioContext, normalize(info)); err != nil {
		return nil, err
	}
	c.track(playback)
	return playback, nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return audio.NewDeviceError("open", audio.ErrDeviceNotOpen)
	}
	return nil
}

func (c *Client) track(device interface{ Close() error }) {
	c.mu.Lock()
	c.devices = append(c.devices, device)
	c.mu.Unlock()
}

// Close uninitializes every device opened through the client and then the
// context itself.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	devices := c.devices
	c.devices = nil
	c.mu.Unlock()

	for _, device := range devices {
		_ = device.Close()
	}
	if err := c.audioContext.Uninit(); err != nil {
		c.audioContext.Free()
		return fmt.Errorf("failed to uninitialize audio context: %w", err)
	}
	c.audioContext.Free()
	return nil
}

func normalize(info audio.EncodingInfo) audio.EncodingInfo {
	if info.SampleRate <= 0 {
		info.SampleRate = audio.DefaultSampleRate
	}
	info.Channels = 1
	return info
}

// classify maps miniaudio results onto the audio device sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
}
