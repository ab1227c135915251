package portaudio

import (
	"context"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-realtime/core/audio"
)

// loop runs a blocking stream operation until stopped.
type loop struct {
	stop chan struct{}
	done chan struct{}
}

func startLoop(step func() error, onErr func(error)) *loop {
	l := &loop{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(l.done)
		for {
			select {
			case <-l.stop:
				return
			default:
			}
			if err := step(); err != nil {
				onErr(err)
			}
		}
	}()
	return l
}

func (l *loop) halt() {
	if l == nil {
		return
	}
	close(l.stop)
	<-l.done
}

type Capture struct {
	info   audio.EncodingInfo
	stream *portaudio.Stream
	in     []float32

	mu      sync.Mutex
	running *loop
}

func (c *Capture) EncodingInfo() audio.EncodingInfo { return c.info }

func (c *Capture) StartCapture(_ context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return audio.NewDeviceError("start capture", audio.ErrDeviceNotOpen)
	} else if c.running != nil {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return audio.NewDeviceError("start capture", classify(err))
	}
	c.running = startLoop(func() error {
		if err := c.stream.Read(); err != nil {
			return err
		}
		samples := make([]float32, len(c.in))
		copy(samples, c.in)
		onSamples(samples)
		return nil
	}, func(err error) {
		// input overflows are recoverable, the next read continues
		logger.Warn("failed to read from capture stream", "error", err)
	})
	return nil
}

func (c *Capture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Capture) stopLocked() error {
	if c.running == nil {
		return nil
	}
	c.running.halt()
	c.running = nil
	if err := c.stream.Stop(); err != nil {
		return audio.NewDeviceError("stop capture", classify(err))
	}
	return nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	_ = c.stopLocked()
	err := c.stream.Close()
	c.stream = nil
	return err
}

type Playback struct {
	info   audio.EncodingInfo
	stream *portaudio.Stream
	out    []int16

	mu      sync.Mutex
	running *loop
}

func (p *Playback) EncodingInfo() audio.EncodingInfo { return p.info }

// StartPlayback fills the stream buffer through render and writes it, once
// per buffer, until stopped. Write blocks until the device has room, which
// paces render at the device rate.
func (p *Playback) StartPlayback(_ context.Context, render func(out []int16)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return audio.NewDeviceError("start playback", audio.ErrDeviceNotOpen)
	} else if p.running != nil {
		return nil
	}

	if err := p.stream.Start(); err != nil {
		return audio.NewDeviceError("start playback", classify(err))
	}
	p.running = startLoop(func() error {
		clear(p.out)
		render(p.out)
		return p.stream.Write()
	}, func(err error) {
		logger.Warn("failed to write to playback stream", "error", err)
	})
	return nil
}

func (p *Playback) StopPlayback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Playback) stopLocked() error {
	if p.running == nil {
		return nil
	}
	p.running.halt()
	p.running = nil
	if err := p.stream.Stop(); err != nil {
		return audio.NewDeviceError("stop playback", classify(err))
	}
	return nil
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	_ = p.stopLocked()
	err := p.stream.Close()
	p.stream = nil
	return err
}
