package miniaudio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
)

type Capture struct {
	device *malgo.Device
	info   audio.EncodingInfo

	mu sync.Mutex
	// onSamples is read on the device thread, which device.Stop waits for,
	// so it must never be guarded by mu.
	onSamples atomic.Pointer[func(samples []float32)]
}

func (c *Capture) init(audioContext *malgo.AllocatedContext, info audio.EncodingInfo) error {
	format := malgo.FormatF32
	bytesPerFrame := malgo.SampleSizeInBytes(format) * info.Channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(info.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(info.Channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(info.SampleRate / 50) // 20ms
	config.Periods = 3

	c.info = audio.EncodingInfo{SampleRate: info.SampleRate, Channels: info.Channels, Format: audio.EncodingFloat32}

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			if onSamples := c.onSamples.Load(); onSamples != nil {
				(*onSamples)(decodeFloat32(pInput[:n]))
			}
		},
	})
	if err != nil {
		return audio.NewDeviceError("init capture", classify(err))
	}

	return nil
}

func (c *Capture) EncodingInfo() audio.EncodingInfo { return c.info }

func (c *Capture) StartCapture(_ context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return audio.NewDeviceError("start capture", audio.ErrDeviceNotOpen)
	}

	c.onSamples.Store(&onSamples)
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		c.onSamples.Store(nil)
		return audio.NewDeviceError("start capture", classify(err))
	}
	return nil
}

func (c *Capture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return audio.NewDeviceError("stop capture", audio.ErrDeviceNotOpen)
	}

	c.onSamples.Store(nil)
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return audio.NewDeviceError("stop capture", classify(err))
	}
	return nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.onSamples.Store(nil)
	return nil
}

func decodeFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
