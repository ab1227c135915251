package conversations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-realtime/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type entry struct {
	item Item
	// audio accumulates streamed audio until the item completes
	audio []int16
}

// Reconciler folds an ordered stream of deltas into the conversation item
// list. Items are ordered by the arrival of their first delta and never
// re-sorted.
//
// Apply is meant to be called from a single goroutine. Readers may take
// snapshots concurrently.
type Reconciler struct {
	mu      sync.RWMutex
	entries []*entry
	index   map[string]*entry
	version uint64

	sampleRate int

	sink        AudioSink
	responder   Responder
	exporter    Exporter
	onDrop      func(err *ReconcileError)
	onCompleted func(item Item)

	now func() time.Time
}

func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		index:      map[string]*entry{},
		sampleRate: audio.DefaultSampleRate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sideEffects are collected under the lock and run after it is released.
type sideEffects struct {
	audio     []int16
	responder Responder
	completed *Item
	container []byte
}

// Apply folds one delta into the conversation. A rejected delta is dropped
// and reported as a [*ReconcileError]; the conversation is left unchanged.
func (r *Reconciler) Apply(ctx context.Context, delta Delta) error {
	effects, err := r.apply(delta)
	if err != nil {
		r.drop(ctx, err)
		return err
	}

	if len(effects.audio) > 0 && r.sink != nil {
		r.sink.Enqueue(audio.Frame{Samples: effects.audio, SampleRate: r.sampleRate}, delta.ItemID)
	}

	if effects.responder != nil {
		if err := effects.responder.CreateResponse(ctx); err != nil {
			recordedErr := fmt.Errorf("failed to request response for tool result %q: %w", delta.ItemID, err)
			span := trace.SpanFromContext(ctx)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			logger.ErrorContext(ctx, "failed to request response for tool result", "item_id", delta.ItemID, "error", err)
		}
	}

	if effects.completed != nil {
		if effects.container != nil && r.exporter != nil {
			r.export(ctx, delta.ItemID, effects.container)
		}
		if r.onCompleted != nil {
			r.onCompleted(*effects.completed)
		}
	}

	return nil
}

func (r *Reconciler) apply(delta Delta) (sideEffects, *ReconcileError) {
	var effects sideEffects
	if delta.ItemID == "" {
		return effects, &ReconcileError{Kind: ErrMissingItemID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, known := r.index[delta.ItemID]
	if known {
		if delta.Role != "" && e.item.Role != "" && delta.Role != e.item.Role {
			return effects, &ReconcileError{
				Kind:   ErrConflictingRole,
				ItemID: delta.ItemID,
				Detail: fmt.Sprintf("item is %s, delta is %s", e.item.Role, delta.Role),
			}
		}
		if e.item.IsCompleted() && (delta.hasContent() || delta.Status != "") {
			return effects, &ReconcileError{Kind: ErrItemCompleted, ItemID: delta.ItemID}
		}
	} else {
		itemType := delta.Type
		if itemType == "" {
			itemType = ItemTypeMessage
		}
		e = &entry{item: Item{
			ID:        delta.ItemID,
			Role:      delta.Role,
			Type:      itemType,
			Status:    StatusInProgress,
			CreatedAt: r.now(),
		}}
		r.entries = append(r.entries, e)
		r.index[delta.ItemID] = e
		if itemType == ItemTypeFunctionCallOutput {
			effects.responder = r.responder
		}
	}

	item := &e.item
	if item.Role == "" {
		item.Role = delta.Role
	}
	if item.SpeakerID == "" {
		item.SpeakerID = delta.SpeakerID
	}
	if item.Name == "" {
		item.Name = delta.Name
	}
	if item.CallID == "" {
		item.CallID = delta.CallID
	}
	if delta.Output != "" {
		item.Output = delta.Output
	}

	item.Text += delta.TextDelta
	item.Transcript += delta.TranscriptDelta
	item.Arguments += delta.ArgumentsDelta
	if item.Transcript == "" {
		item.Transcript = delta.FinalTranscript
	}

	if len(delta.AudioDelta) > 0 {
		e.audio = append(e.audio, delta.AudioDelta...)
		effects.audio = delta.AudioDelta
	}

	if delta.Status == StatusCompleted {
		item.Status = StatusCompleted
		item.CompletedAt = r.now()
		item.Audio = r.clip(delta, e.audio)
		e.audio = nil
		if item.Audio != nil {
			effects.container = audio.EncodeContainer(item.Audio.Samples, item.Audio.SampleRate, 1)
		}
		completed := r.snapshot(item)
		effects.completed = &completed
	}

	r.version++
	return effects, nil
}

// clip prefers inline encoded audio and falls back to what was streamed.
func (r *Reconciler) clip(delta Delta, streamed []int16) *Clip {
	if len(delta.EncodedAudio) > 0 {
		samples, err := audio.DecodeContainer(delta.EncodedAudio, r.sampleRate)
		if err == nil {
			return &Clip{Samples: samples, SampleRate: r.sampleRate}
		}
		logger.Warn("failed to decode item audio", "item_id", delta.ItemID, "error", err)
	}
	if len(streamed) == 0 {
		return nil
	}
	return &Clip{Samples: streamed, SampleRate: r.sampleRate}
}

func (r *Reconciler) export(ctx context.Context, itemID string, container []byte) {
	ctx, span := tracer.Start(ctx, "export item audio", trace.WithAttributes(attribute.String("item_id", itemID)))
	defer span.End()

	if err := r.exporter.Export(ctx, itemID, container); err != nil {
		recordedErr := fmt.Errorf("failed to export audio for item %q: %w", itemID, err)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		logger.WarnContext(ctx, "failed to export item audio", "item_id", itemID, "error", err)
	}
}

func (r *Reconciler) drop(ctx context.Context, err *ReconcileError) {
	logger.WarnContext(ctx, "dropped conversation delta", "item_id", err.ItemID, "reason", err.Kind.Error(), "error", err)
	if r.onDrop != nil {
		r.onDrop(err)
	}
}

// Items returns a deep copy of the conversation, oldest first.
func (r *Reconciler) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Item, 0, len(r.entries))
	for _, e := range r.entries {
		items = append(items, r.snapshot(&e.item))
	}
	return items
}

// Summaries returns the conversation without audio samples, oldest first.
// It is cheap enough to call on every rendered frame.
func (r *Reconciler) Summaries() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]Summary, 0, len(r.entries))
	for _, e := range r.entries {
		summary := Summary{
			ID:        e.item.ID,
			Role:      e.item.Role,
			Type:      e.item.Type,
			Status:    e.item.Status,
			SpeakerID: e.item.SpeakerID,
			Content:   e.item.Content(),
			CreatedAt: e.item.CreatedAt,
		}
		switch {
		case e.item.Audio != nil:
			summary.AudioDuration = e.item.Audio.Duration()
		case len(e.audio) > 0:
			summary.AudioDuration = Clip{Samples: e.audio, SampleRate: r.sampleRate}.Duration()
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Version changes whenever an applied delta or Reset changes the
// conversation.
func (r *Reconciler) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Item returns a copy of one item.
func (r *Reconciler) Item(id string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.index[id]
	if !ok {
		return Item{}, false
	}
	return r.snapshot(&e.item), true
}

func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SetResponder replaces the responder, e.g. when the remote reconnects.
func (r *Reconciler) SetResponder(responder Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responder = responder
}

func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.index = map[string]*entry{}
	r.version++
}

func (r *Reconciler) snapshot(item *Item) Item {
	var copied Item
	if err := copier.CopyWithOption(&copied, item, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which cannot happen for Item
		copied = *item
	}
	copied.CreatedAt = item.CreatedAt
	copied.CompletedAt = item.CompletedAt
	return copied
}
