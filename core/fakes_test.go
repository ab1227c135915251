package orchestration

import (
	"context"
	"errors"
	"sync"

	"github.com/koscakluka/ema-realtime/core/audio"
)

type fakePlaybackDevice struct {
	mu       sync.Mutex
	info     audio.EncodingInfo
	render   func(out []int16)
	started  int
	stopped  int
	closed   int
	startErr error
}

func newFakePlaybackDevice(sampleRate int) *fakePlaybackDevice {
	return &fakePlaybackDevice{info: audio.EncodingInfo{SampleRate: sampleRate, Channels: 1, Format: audio.EncodingLinear16}}
}

func (d *fakePlaybackDevice) opener() PlaybackOpener {
	return func(context.Context, audio.EncodingInfo) (PlaybackDevice, error) { return d, nil }
}

func (d *fakePlaybackDevice) EncodingInfo() audio.EncodingInfo { return d.info }

func (d *fakePlaybackDevice) StartPlayback(_ context.Context, render func(out []int16)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.render = render
	d.started++
	return nil
}

func (d *fakePlaybackDevice) StopPlayback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.render = nil
	d.stopped++
	return nil
}

func (d *fakePlaybackDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// pull simulates the device requesting n samples.
func (d *fakePlaybackDevice) pull(n int) []int16 {
	d.mu.Lock()
	render := d.render
	d.mu.Unlock()

	out := make([]int16, n)
	for i := range out {
		out[i] = -1
	}
	if render != nil {
		render(out)
	}
	return out
}

type fakeCaptureDevice struct {
	mu        sync.Mutex
	info      audio.EncodingInfo
	onSamples func(samples []float32)
	starts    int
	stops     int
	closed    int
	startErr  error
}

func newFakeCaptureDevice(sampleRate int) *fakeCaptureDevice {
	return &fakeCaptureDevice{info: audio.EncodingInfo{SampleRate: sampleRate, Channels: 1, Format: audio.EncodingFloat32}}
}

func (d *fakeCaptureDevice) opener() CaptureOpener {
	return func(context.Context, audio.EncodingInfo) (CaptureDevice, error) { return d, nil }
}

func (d *fakeCaptureDevice) EncodingInfo() audio.EncodingInfo { return d.info }

func (d *fakeCaptureDevice) StartCapture(_ context.Context, onSamples func(samples []float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.onSamples = onSamples
	d.starts++
	return nil
}

func (d *fakeCaptureDevice) StopCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSamples = nil
	d.stops++
	return nil
}

func (d *fakeCaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// push simulates the device delivering n samples of value v.
func (d *fakeCaptureDevice) push(n int, v float32) {
	d.mu.Lock()
	onSamples := d.onSamples
	d.mu.Unlock()
	if onSamples == nil {
		return
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	onSamples(samples)
}

func failingCaptureOpener(err error) CaptureOpener {
	return func(context.Context, audio.EncodingInfo) (CaptureDevice, error) { return nil, err }
}

func failingPlaybackOpener(err error) PlaybackOpener {
	return func(context.Context, audio.EncodingInfo) (PlaybackDevice, error) { return nil, err }
}

var errNoMicrophone = errors.New("no microphone")

func frameOf(n int, v int16, sampleRate int) audio.Frame {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return audio.Frame{Samples: samples, SampleRate: sampleRate}
}
