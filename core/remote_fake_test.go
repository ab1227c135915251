package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

type fakeRemote struct {
	events    chan events.Event
	closeOnce sync.Once

	mu        sync.Mutex
	calls     []string
	sessions  []realtime.SessionConfig
	appended  []audio.Frame
	cancels   []TrackOffset
	texts     []string
	closed    int
	updateErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{events: make(chan events.Event, 64)}
}

func (r *fakeRemote) record(call string) {
	r.calls = append(r.calls, call)
}

func (r *fakeRemote) Events() <-chan events.Event { return r.events }

func (r *fakeRemote) UpdateSession(_ context.Context, config realtime.SessionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("update_session")
	if r.updateErr != nil {
		return r.updateErr
	}
	r.sessions = append(r.sessions, config)
	return nil
}

func (r *fakeRemote) AppendInputAudio(_ context.Context, frame audio.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, frame)
	return nil
}

func (r *fakeRemote) CreateResponse(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("create_response")
	return nil
}

func (r *fakeRemote) EndTurn(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("end_turn")
	return nil
}

func (r *fakeRemote) CancelResponse(_ context.Context, trackID string, offset uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("cancel_response")
	r.cancels = append(r.cancels, TrackOffset{TrackID: trackID, Offset: offset})
	return nil
}

func (r *fakeRemote) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("send_text")
	r.texts = append(r.texts, text)
	return nil
}

func (r *fakeRemote) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	r.closeOnce.Do(func() { close(r.events) })
	return nil
}

// drop simulates the connection going away.
func (r *fakeRemote) drop() {
	r.closeOnce.Do(func() { close(r.events) })
}

type remoteCalls struct {
	calls    []string
	sessions []realtime.SessionConfig
	appended []audio.Frame
	cancels  []TrackOffset
	texts    []string
	closed   int
}

func (r *fakeRemote) snapshot() remoteCalls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return remoteCalls{
		calls:    append([]string(nil), r.calls...),
		sessions: append([]realtime.SessionConfig(nil), r.sessions...),
		appended: append([]audio.Frame(nil), r.appended...),
		cancels:  append([]TrackOffset(nil), r.cancels...),
		texts:    append([]string(nil), r.texts...),
		closed:   r.closed,
	}
}

func (r *fakeRemote) count(call string) int {
	n := 0
	for _, c := range r.snapshot().calls {
		if c == call {
			n++
		}
	}
	return n
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %s", what)
}
