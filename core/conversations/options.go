package conversations

import (
	"context"

	"github.com/koscakluka/ema-realtime/core/audio"
)

// AudioSink receives item audio as it streams in, tagged with the item id.
type AudioSink interface {
	Enqueue(frame audio.Frame, trackID string)
}

// Responder asks the remote agent to continue generating.
type Responder interface {
	CreateResponse(ctx context.Context) error
}

// Exporter receives an encoded audio container for each completed item that
// carries audio.
type Exporter interface {
	Export(ctx context.Context, itemID string, container []byte) error
}

type ReconcilerOption func(*Reconciler)

func WithAudioSink(sink AudioSink) ReconcilerOption {
	return func(r *Reconciler) { r.sink = sink }
}

func WithResponder(responder Responder) ReconcilerOption {
	return func(r *Reconciler) { r.responder = responder }
}

func WithExporter(exporter Exporter) ReconcilerOption {
	return func(r *Reconciler) { r.exporter = exporter }
}

// WithSampleRate sets the rate of inbound audio deltas and decoded clips.
func WithSampleRate(sampleRate int) ReconcilerOption {
	return func(r *Reconciler) {
		if sampleRate > 0 {
			r.sampleRate = sampleRate
		}
	}
}

// WithDropCallback is called for every delta the reconciler rejects.
func WithDropCallback(onDrop func(err *ReconcileError)) ReconcilerOption {
	return func(r *Reconciler) { r.onDrop = onDrop }
}

// WithCompletedCallback is called with a snapshot of every item as it
// completes.
func WithCompletedCallback(onCompleted func(item Item)) ReconcilerOption {
	return func(r *Reconciler) { r.onCompleted = onCompleted }
}
