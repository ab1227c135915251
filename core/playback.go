package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-realtime/core/audio"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Track is one continuous unit of inbound audio, usually one agent utterance.
type Track struct {
	ID            string
	SamplesPlayed uint64
}

// TrackOffset is where a track stopped: the number of its samples that were
// handed to the output device.
type TrackOffset struct {
	TrackID string
	Offset  uint64
}

type PlaybackOption func(*PlaybackStream)

func WithPlaybackEncoding(info audio.EncodingInfo) PlaybackOption {
	return func(s *PlaybackStream) { s.info = info }
}

// WithTrackFinalizedCallback is called when a track is superseded by a new
// track id. It is not called for interrupted tracks, whose offset is
// returned by Interrupt instead.
func WithTrackFinalizedCallback(onFinalized func(TrackOffset)) PlaybackOption {
	return func(s *PlaybackStream) { s.onTrackFinalized = onFinalized }
}

// WithRenderedCallback is called from the device thread with the number of
// track samples rendered in each period.
func WithRenderedCallback(onRendered func(samples int)) PlaybackOption {
	return func(s *PlaybackStream) { s.onRendered = onRendered }
}

// PlaybackStream plays queued track audio through a pull based device and
// keeps an exact count of the samples rendered for the current track.
//
// Enqueue, Interrupt and the device render callback are serialized through a
// single lock.
type PlaybackStream struct {
	open PlaybackOpener
	info audio.EncodingInfo

	connectMu sync.Mutex
	device    PlaybackDevice

	mu      sync.Mutex
	current *Track
	// queue holds unrendered samples of the current track; head is the read
	// position inside queue[0]
	queue    [][]int16
	head     int
	buffered int

	analyser *audio.Analyser

	onTrackFinalized func(TrackOffset)
	onRendered       func(samples int)
}

func NewPlaybackStream(open PlaybackOpener, opts ...PlaybackOption) *PlaybackStream {
	s := &PlaybackStream{
		open:     open,
		info:     audio.GetDefaultEncodingInfo(),
		analyser: audio.NewAnalyser(audio.DefaultFFTSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens and starts the output device. Calling it again once
// connected does nothing.
func (s *PlaybackStream) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if s.device != nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "connect playback")
	defer span.End()

	device, err := s.openDevice(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if info := device.EncodingInfo(); !info.IsZero() {
		s.mu.Lock()
		s.info = info
		s.mu.Unlock()
	}

	// the device may call render before StartPlayback returns, so the stream
	// lock must not be held here
	if err := device.StartPlayback(ctx, s.render); err != nil {
		_ = device.Close()
		deviceErr := audio.NewDeviceError("start playback", err)
		span.RecordError(deviceErr)
		span.SetStatus(codes.Error, deviceErr.Error())
		return deviceErr
	}

	s.device = device
	return nil
}

func (s *PlaybackStream) openDevice(ctx context.Context) (PlaybackDevice, error) {
	if s.open == nil {
		return nil, audio.NewDeviceError("open playback", audio.ErrDeviceUnavailable)
	}
	device, err := s.open(ctx, s.EncodingInfo())
	if err != nil {
		return nil, audio.NewDeviceError("open playback", err)
	}
	return device, nil
}

func (s *PlaybackStream) IsConnected() bool {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	return s.device != nil
}

func (s *PlaybackStream) EncodingInfo() audio.EncodingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Enqueue queues a frame for trackID. A track id different from the current
// one finalizes the current track at its rendered offset, drops whatever of
// it was still queued, and starts the new track at offset zero. Frames at a
// different sample rate are resampled to the device rate.
func (s *PlaybackStream) Enqueue(frame audio.Frame, trackID string) {
	if len(frame.Samples) == 0 {
		return
	}

	s.mu.Lock()
	samples := frame.Samples
	if frame.SampleRate > 0 && frame.SampleRate != s.info.SampleRate {
		samples = audio.Resample(samples, frame.SampleRate, s.info.SampleRate)
	} else {
		samples = append([]int16(nil), samples...)
	}

	var finalized *TrackOffset
	if s.current != nil && s.current.ID != trackID {
		finalized = &TrackOffset{TrackID: s.current.ID, Offset: s.current.SamplesPlayed}
		s.clearLocked()
	}
	if s.current == nil {
		s.current = &Track{ID: trackID}
	}

	s.queue = append(s.queue, samples)
	s.buffered += len(samples)
	s.mu.Unlock()

	if finalized != nil && s.onTrackFinalized != nil {
		s.onTrackFinalized(*finalized)
	}
}

// Interrupt stops playback immediately and returns how far the current track
// got. It returns nil when no track is current. Afterwards the stream holds no
// track and no queued audio.
func (s *PlaybackStream) Interrupt() *TrackOffset {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}

	offset := &TrackOffset{TrackID: s.current.ID, Offset: s.current.SamplesPlayed}
	s.clearLocked()
	s.analyser.Reset()
	return offset
}

func (s *PlaybackStream) clearLocked() {
	s.current = nil
	s.queue = nil
	s.head = 0
	s.buffered = 0
}

// CurrentTrack returns a copy of the current track.
func (s *PlaybackStream) CurrentTrack() (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Track{}, false
	}
	return *s.current, true
}

// Buffered reports how many samples of the current track are queued but not
// yet rendered.
func (s *PlaybackStream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// FrequencySnapshot returns the spectrum of recently rendered audio, or a
// zero spectrum when no track is current.
func (s *PlaybackStream) FrequencySnapshot() audio.Spectrum {
	s.mu.Lock()
	idle := s.current == nil
	s.mu.Unlock()
	if idle {
		return audio.ZeroSpectrum()
	}
	return s.analyser.Snapshot()
}

// render fills out with queued samples in order and pads the rest with
// silence. Only samples copied here count as played.
func (s *PlaybackStream) render(out []int16) {
	s.mu.Lock()
	n := 0
	for n < len(out) && len(s.queue) > 0 {
		chunk := s.queue[0][s.head:]
		copied := copy(out[n:], chunk)
		n += copied
		s.head += copied
		if s.head == len(s.queue[0]) {
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.head = 0
		}
	}
	clear(out[n:])

	if n > 0 {
		s.buffered -= n
		s.current.SamplesPlayed += uint64(n)
		s.analyser.WritePCM16(out[:n])
	}
	s.mu.Unlock()

	if n > 0 && s.onRendered != nil {
		s.onRendered(n)
	}
}

// Close stops and releases the output device. Queued audio is dropped.
func (s *PlaybackStream) Close(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()

	if s.device == nil {
		return nil
	}

	var errs error
	if err := s.device.StopPlayback(); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := s.device.Close(); err != nil {
		errs = errors.Join(errs, err)
	}
	s.device = nil

	if errs != nil {
		recordedErr := fmt.Errorf("failed to close playback device: %w", errs)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		return recordedErr
	}
	return nil
}
