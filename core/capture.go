package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-realtime/core/audio"
	"go.opentelemetry.io/otel/codes"
)

type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureBegan
	CaptureRecording
	CapturePaused
	CaptureEnded
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureBegan:
		return "began"
	case CaptureRecording:
		return "recording"
	case CapturePaused:
		return "paused"
	case CaptureEnded:
		return "ended"
	}
	return fmt.Sprintf("capture_state(%d)", int(s))
}

// FrameConsumer receives captured frames on the device callback thread. It
// must return faster than one block period or capture latency grows without
// bound.
type FrameConsumer func(frame audio.Frame)

type CaptureOption func(*CaptureSession)

func WithCaptureEncoding(info audio.EncodingInfo) CaptureOption {
	return func(s *CaptureSession) { s.info = info }
}

// WithCaptureBlockSize sets how many samples each delivered frame holds.
func WithCaptureBlockSize(samples int) CaptureOption {
	return func(s *CaptureSession) {
		if samples > 0 {
			s.blockSize = samples
		}
	}
}

func WithCaptureFFTSize(size int) CaptureOption {
	return func(s *CaptureSession) {
		if size > 1 {
			s.fftSize = size
		}
	}
}

// CaptureSession owns the microphone for its lifetime and turns device
// buffers into fixed size PCM16 frames.
//
//	Idle -> Began -> Recording <-> Paused -> Ended
type CaptureSession struct {
	open      CaptureOpener
	info      audio.EncodingInfo
	blockSize int
	fftSize   int

	mu      sync.Mutex
	state   CaptureState
	device  CaptureDevice
	started bool

	// read on the device thread, which StopCapture waits for, so none of
	// these may be guarded by mu
	analyser   atomic.Pointer[audio.Analyser]
	sampleRate atomic.Int64
	// sink is nil unless recording
	sink atomic.Pointer[FrameConsumer]

	blockMu sync.Mutex
	block   []float32
}

func NewCaptureSession(open CaptureOpener, opts ...CaptureOption) *CaptureSession {
	s := &CaptureSession{
		open:      open,
		info:      audio.GetDefaultEncodingInfo(),
		blockSize: audio.DefaultBlockSize,
		fftSize:   audio.DefaultFFTSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin acquires the microphone and the analysis window. It is a no-op when
// the device is already held and re-acquires it after End.
func (s *CaptureSession) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case CaptureBegan, CaptureRecording, CapturePaused:
		return nil
	}

	ctx, span := tracer.Start(ctx, "begin capture")
	defer span.End()

	if s.open == nil {
		err := audio.NewDeviceError("open capture", audio.ErrDeviceUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	device, err := s.open(ctx, s.info)
	if err != nil {
		deviceErr := audio.NewDeviceError("open capture", err)
		span.RecordError(deviceErr)
		span.SetStatus(codes.Error, deviceErr.Error())
		return deviceErr
	}

	if info := device.EncodingInfo(); info.SampleRate > 0 {
		s.info.SampleRate = info.SampleRate
	}
	s.device = device
	s.started = false
	s.analyser.Store(audio.NewAnalyser(s.fftSize))
	s.sampleRate.Store(int64(s.info.SampleRate))
	s.state = CaptureBegan
	return nil
}

// Record starts delivering frames to sink. The device is started on the
// first call; later calls resume a paused session or swap the sink.
func (s *CaptureSession) Record(ctx context.Context, sink FrameConsumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case CaptureBegan, CapturePaused, CaptureRecording:
	default:
		return ErrCaptureNotBegun
	}
	if sink == nil {
		sink = func(audio.Frame) {}
	}

	s.sink.Store(&sink)
	if !s.started {
		if err := s.device.StartCapture(ctx, s.onSamples); err != nil {
			s.sink.Store(nil)
			return audio.NewDeviceError("start capture", err)
		}
		s.started = true
	}

	s.state = CaptureRecording
	return nil
}

// Pause stops delivering frames but keeps the device running. Samples of an
// incomplete block are discarded.
func (s *CaptureSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case CapturePaused:
		return nil
	case CaptureRecording:
	default:
		return ErrCaptureNotRecording
	}

	s.sink.Store(nil)
	s.blockMu.Lock()
	s.block = s.block[:0]
	s.blockMu.Unlock()

	s.state = CapturePaused
	return nil
}

// End releases the device and the analysis window.
func (s *CaptureSession) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink.Store(nil)
	s.blockMu.Lock()
	s.block = nil
	s.blockMu.Unlock()

	var errs error
	if s.device != nil {
		if s.started {
			errs = errors.Join(errs, s.device.StopCapture())
		}
		errs = errors.Join(errs, s.device.Close())
		s.device = nil
	}
	s.started = false
	s.analyser.Store(nil)
	s.state = CaptureEnded

	if errs != nil {
		return fmt.Errorf("failed to release capture device: %w", errs)
	}
	return nil
}

func (s *CaptureSession) State() CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CaptureSession) IsRecording() bool { return s.State() == CaptureRecording }

func (s *CaptureSession) EncodingInfo() audio.EncodingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// FrequencySnapshot returns the spectrum of the latest analysis window, or a
// zero spectrum when not recording. It never waits for audio.
func (s *CaptureSession) FrequencySnapshot() audio.Spectrum {
	s.mu.Lock()
	recording := s.state == CaptureRecording
	s.mu.Unlock()

	analyser := s.analyser.Load()
	if !recording || analyser == nil {
		return audio.ZeroSpectrum()
	}
	return analyser.Snapshot()
}

// onSamples runs on the device thread.
func (s *CaptureSession) onSamples(samples []float32) {
	sink := s.sink.Load()
	if sink == nil {
		return
	}

	if analyser := s.analyser.Load(); analyser != nil {
		analyser.WriteFloat(samples)
	}
	sampleRate := int(s.sampleRate.Load())

	s.blockMu.Lock()
	s.block = append(s.block, samples...)
	var frames []audio.Frame
	for len(s.block) >= s.blockSize {
		frames = append(frames, audio.Frame{
			Samples:    audio.FloatToPCM16(s.block[:s.blockSize]),
			SampleRate: sampleRate,
		})
		s.block = append(s.block[:0], s.block[s.blockSize:]...)
	}
	s.blockMu.Unlock()

	for _, frame := range frames {
		// Pause may have happened while the block was assembled
		if sink := s.sink.Load(); sink != nil {
			(*sink)(frame)
		}
	}
}
