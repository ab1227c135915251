package miniaudio

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
)

type Playback struct {
	device *malgo.Device
	info   audio.EncodingInfo

	mu     sync.Mutex
	render atomic.Pointer[func(out []int16)]
	// scratch is only touched on the device thread
	scratch []int16
}

func (p *Playback) init(audioContext *malgo.AllocatedContext, info audio.EncodingInfo) error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * info.Channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(info.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(info.Channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(info.SampleRate / 50) // 20ms
	config.Periods = 4

	p.info = audio.EncodingInfo{SampleRate: info.SampleRate, Channels: info.Channels, Format: audio.EncodingLinear16}

	var err error
	if p.device, err = malgo.InitDevice(
		audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: p.processAudio(bytesPerFrame)},
	); err != nil {
		return audio.NewDeviceError("init playback", classify(err))
	}

	return nil
}

func (p *Playback) EncodingInfo() audio.EncodingInfo { return p.info }

// StartPlayback starts the device. Every period the device pulls samples by
// calling render with a buffer it expects to be filled completely.
func (p *Playback) StartPlayback(_ context.Context, render func(out []int16)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return audio.NewDeviceError("start playback", audio.ErrDeviceNotOpen)
	}

	p.render.Store(&render)
	if p.device.IsStarted() {
		return nil
	}
	if err := p.device.Start(); err != nil {
		p.render.Store(nil)
		return audio.NewDeviceError("start playback", classify(err))
	}
	return nil
}

func (p *Playback) StopPlayback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return audio.NewDeviceError("stop playback", audio.ErrDeviceNotOpen)
	}

	p.render.Store(nil)
	if !p.device.IsStarted() {
		return nil
	}
	if err := p.device.Stop(); err != nil {
		return audio.NewDeviceError("stop playback", classify(err))
	}
	return nil
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	p.render.Store(nil)
	return nil
}

func (p *Playback) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		if need > len(pOutput) {
			need = len(pOutput)
		}

		if cap(p.scratch) < need/2 {
			p.scratch = make([]int16, need/2)
		}
		out := p.scratch[:need/2]

		clear(out)
		if render := p.render.Load(); render != nil {
			(*render)(out)
		}
		for i, s := range out {
			binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(s))
		}
	}
}
