package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/observability"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type controllerHarness struct {
	controller *Controller
	remote     *fakeRemote
	mic        *fakeCaptureDevice
	speaker    *fakePlaybackDevice
	playback   *PlaybackStream
	capture    *CaptureSession

	mu     sync.Mutex
	errs   []error
	states []State
}

func newHarness(t *testing.T, opts ...ControllerOption) *controllerHarness {
	t.Helper()
	h := &controllerHarness{
		remote:  newFakeRemote(),
		mic:     newFakeCaptureDevice(24000),
		speaker: newFakePlaybackDevice(24000),
	}
	h.capture = NewCaptureSession(h.mic.opener())
	h.playback = NewPlaybackStream(h.speaker.opener())
	reconciler := conversations.NewReconciler(conversations.WithAudioSink(h.playback))

	opts = append([]ControllerOption{
		WithErrorCallback(func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.errs = append(h.errs, err)
		}),
		WithStateChangedCallback(func(state State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.states = append(h.states, state)
		}),
	}, opts...)
	h.controller = NewController(h.capture, h.playback, reconciler, opts...)
	t.Cleanup(func() { _ = h.controller.Close(context.Background()) })
	return h
}

func (h *controllerHarness) connect(t *testing.T) {
	t.Helper()
	if err := h.controller.Connect(context.Background(), h.remote); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
}

func (h *controllerHarness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *controllerHarness) push(evs ...events.Event) {
	for _, event := range evs {
		h.remote.events <- event
	}
}

func delta(d conversations.Delta) events.Event { return events.NewConversationDelta(d) }

func voiceActivity() realtime.SessionConfig {
	config := realtime.DefaultSessionConfig()
	config.TurnMode = realtime.TurnModeVoiceActivity
	return config
}

func TestControllerConnectConfiguresSessionAndIdles(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if h.controller.State() != ConnectedIdle {
		t.Fatalf("expected connected idle, got %s", h.controller.State())
	}
	calls := h.remote.snapshot()
	if len(calls.sessions) != 1 || calls.sessions[0].TurnMode != realtime.TurnModeManual {
		t.Fatalf("expected one manual session update, got %+v", calls.sessions)
	}
	if h.capture.State() != CaptureBegan || !h.playback.IsConnected() {
		t.Fatalf("expected both devices acquired, got capture %s", h.capture.State())
	}
}

func TestControllerConnectVoiceActivityRecordsImmediately(t *testing.T) {
	h := newHarness(t, WithSessionConfig(voiceActivity()))
	h.connect(t)

	if h.controller.State() != ConnectedRecording || !h.capture.IsRecording() {
		t.Fatalf("expected recording after connect, got %s", h.controller.State())
	}

	h.mic.push(audio.DefaultBlockSize, 0.25)
	eventually(t, "captured frame streamed to the remote", func() bool {
		return len(h.remote.snapshot().appended) == 1
	})
}

func TestControllerConnectFailureStaysDisconnected(t *testing.T) {
	h := newHarness(t)
	h.capture.open = failingCaptureOpener(audio.ErrPermissionDenied)

	err := h.controller.Connect(context.Background(), h.remote)
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if h.controller.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", h.controller.State())
	}
	if len(h.remote.snapshot().sessions) != 0 {
		t.Fatalf("expected no session update after device failure")
	}
}

func TestControllerConnectVoiceActivityCaptureFailureDisconnects(t *testing.T) {
	h := newHarness(t, WithSessionConfig(voiceActivity()))
	h.mic.startErr = audio.ErrPermissionDenied

	err := h.controller.Connect(context.Background(), h.remote)
	var deviceErr *audio.DeviceError
	if !errors.As(err, &deviceErr) || deviceErr.Kind != audio.DevicePermissionDenied {
		t.Fatalf("expected permission denied device error, got %v", err)
	}
	if h.controller.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", h.controller.State())
	}
	if h.capture.State() != CaptureEnded {
		t.Fatalf("expected microphone released, got %s", h.capture.State())
	}
	if h.remote.snapshot().closed != 0 {
		t.Fatalf("expected the remote to be left open for the caller")
	}

	h.mic.startErr = nil
	if err := h.controller.Connect(context.Background(), newFakeRemote()); err != nil {
		t.Fatalf("expected reconnect after capture failure to succeed, got %v", err)
	}
	if h.controller.State() != ConnectedRecording {
		t.Fatalf("expected recording after reconnect, got %s", h.controller.State())
	}
}

func TestControllerConnectFailsWhenSessionIsRejected(t *testing.T) {
	h := newHarness(t)
	h.remote.updateErr = errors.New("rejected")

	if err := h.controller.Connect(context.Background(), h.remote); err == nil {
		t.Fatalf("expected connect to fail")
	}
	if h.controller.State() != Disconnected || h.capture.State() != CaptureEnded {
		t.Fatalf("expected microphone released, got %s and %s", h.controller.State(), h.capture.State())
	}
}

func TestControllerConnectTwiceFails(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if err := h.controller.Connect(context.Background(), newFakeRemote()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestControllerPushToTalkStreamsAudioAndEndsTurn(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()

	if err := h.controller.PressToTalkStart(ctx, "2"); err != nil {
		t.Fatalf("expected press to talk to start, got %v", err)
	}
	if h.controller.State() != ConnectedRecording || h.controller.Speaker() != "2" {
		t.Fatalf("expected recording for speaker 2, got %s %q", h.controller.State(), h.controller.Speaker())
	}

	h.mic.push(2*audio.DefaultBlockSize, 0.5)
	eventually(t, "two frames streamed", func() bool { return len(h.remote.snapshot().appended) == 2 })

	if err := h.controller.PressToTalkEnd(ctx); err != nil {
		t.Fatalf("expected press to talk to end, got %v", err)
	}
	if h.controller.State() != ConnectedIdle || h.capture.State() != CapturePaused {
		t.Fatalf("expected paused capture, got %s %s", h.controller.State(), h.capture.State())
	}
	if h.remote.count("end_turn") != 1 {
		t.Fatalf("expected one end of turn, got %v", h.remote.snapshot().calls)
	}

	// releasing again without holding does not end another turn
	_ = h.controller.PressToTalkEnd(ctx)
	if h.remote.count("end_turn") != 1 {
		t.Fatalf("expected still one end of turn, got %v", h.remote.snapshot().calls)
	}
}

func TestControllerPushToTalkPreconditions(t *testing.T) {
	h := newHarness(t, WithSessionConfig(voiceActivity()))
	ctx := context.Background()

	if err := h.controller.PressToTalkStart(ctx, ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	h.connect(t)
	if err := h.controller.PressToTalkStart(ctx, ""); !errors.Is(err, ErrNotManualMode) {
		t.Fatalf("expected ErrNotManualMode, got %v", err)
	}
	if err := h.controller.PressToTalkEnd(ctx); !errors.Is(err, ErrNotManualMode) {
		t.Fatalf("expected ErrNotManualMode, got %v", err)
	}
}

func TestControllerBargeInCancelsAtRenderedOffset(t *testing.T) {
	metrics := observability.NewMetrics("test", nil)
	h := newHarness(t, WithMetrics(metrics))
	h.connect(t)

	h.push(delta(conversations.Delta{ItemID: "r1", Role: conversations.RoleAssistant, Type: conversations.ItemTypeMessage}))
	for range 5 {
		h.push(delta(conversations.Delta{ItemID: "r1", AudioDelta: make([]int16, 2048)}))
	}
	eventually(t, "all agent audio queued", func() bool { return h.playback.Buffered() == 5*2048 })

	h.speaker.pull(3072)
	h.push(events.NewAgentInterrupted())

	eventually(t, "a cancellation", func() bool { return len(h.remote.snapshot().cancels) == 1 })
	cancel := h.remote.snapshot().cancels[0]
	if cancel.TrackID != "r1" || cancel.Offset != 3072 {
		t.Fatalf("expected cancel of r1 at 3072, got %+v", cancel)
	}
	if h.playback.Buffered() != 0 {
		t.Fatalf("expected nothing queued, got %d", h.playback.Buffered())
	}
	if _, ok := h.playback.CurrentTrack(); ok {
		t.Fatalf("expected no current track after interrupt")
	}
	if got := testutil.ToFloat64(metrics.Cancellations); got != 1 {
		t.Fatalf("expected one cancellation counted, got %v", got)
	}
}

func TestControllerBargeInReportsOffsetAtSessionRate(t *testing.T) {
	h := newHarness(t)
	h.speaker.info.SampleRate = 48000
	h.connect(t)

	h.push(delta(conversations.Delta{ItemID: "r1", Role: conversations.RoleAssistant, Type: conversations.ItemTypeMessage}))
	h.push(delta(conversations.Delta{ItemID: "r1", AudioDelta: make([]int16, 4800)}))
	eventually(t, "agent audio resampled for the device", func() bool { return h.playback.Buffered() == 9600 })

	h.speaker.pull(6144)
	h.push(events.NewAgentInterrupted())

	eventually(t, "a cancellation", func() bool { return len(h.remote.snapshot().cancels) == 1 })
	if cancel := h.remote.snapshot().cancels[0]; cancel.Offset != 3072 {
		t.Fatalf("expected 6144 device samples reported as 3072, got %d", cancel.Offset)
	}
}

func TestControllerPushToTalkInterruptsPlayback(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(delta(conversations.Delta{ItemID: "r1", Role: conversations.RoleAssistant, AudioDelta: make([]int16, 4800)}))
	eventually(t, "agent audio queued", func() bool { return h.playback.Buffered() == 4800 })
	h.speaker.pull(1200)

	if err := h.controller.PressToTalkStart(context.Background(), ""); err != nil {
		t.Fatalf("expected press to talk to start, got %v", err)
	}
	cancels := h.remote.snapshot().cancels
	if len(cancels) != 1 || cancels[0] != (TrackOffset{TrackID: "r1", Offset: 1200}) {
		t.Fatalf("expected cancel of r1 at 1200, got %+v", cancels)
	}
	if h.controller.State() != ConnectedRecording {
		t.Fatalf("expected recording, got %s", h.controller.State())
	}
}

func TestControllerPushToTalkWithoutPlaybackSendsNoCancel(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	_ = h.controller.PressToTalkStart(context.Background(), "")
	if n := h.remote.count("cancel_response"); n != 0 {
		t.Fatalf("expected no cancellation, got %d", n)
	}
}

func TestControllerStampsSpeakerOnUserItems(t *testing.T) {
	h := newHarness(t, WithSpeaker("1"))
	h.connect(t)
	h.controller.SetSpeaker("3")

	h.push(
		delta(conversations.Delta{ItemID: "u1", Role: conversations.RoleUser, Type: conversations.ItemTypeMessage}),
		delta(conversations.Delta{ItemID: "u1", Role: conversations.RoleUser, FinalTranscript: "hi", Status: conversations.StatusCompleted}),
	)
	eventually(t, "completed user item", func() bool {
		items := h.controller.Items()
		return len(items) == 1 && items[0].IsCompleted()
	})

	item := h.controller.Items()[0]
	if item.SpeakerID != "3" || item.DisplayTranscript() != "[3]: hi" || item.Transcript != "hi" {
		t.Fatalf("expected speaker 3 transcript, got %+v", item)
	}
}

func TestControllerSummariesFollowConversationVersion(t *testing.T) {
	h := newHarness(t, WithSpeaker("2"))
	h.connect(t)
	before := h.controller.ConversationVersion()

	h.push(delta(conversations.Delta{ItemID: "u1", Role: conversations.RoleUser, Type: conversations.ItemTypeMessage, FinalTranscript: "hi", Status: conversations.StatusCompleted}))
	eventually(t, "summarized user item", func() bool {
		summaries := h.controller.Summaries()
		return len(summaries) == 1 && summaries[0].IsCompleted()
	})

	if h.controller.ConversationVersion() == before {
		t.Fatalf("expected conversation version to advance from %d", before)
	}
	if summary := h.controller.Summaries()[0]; summary.Content != "[2]: hi" || summary.AudioDuration != 0 {
		t.Fatalf("expected speaker 2 summary without audio, got %+v", summary)
	}
}

func TestControllerRecoversFromDroppedDeltas(t *testing.T) {
	metrics := observability.NewMetrics("test", nil)
	var mu sync.Mutex
	changes := 0
	h := newHarness(t, WithMetrics(metrics), WithItemsChangedCallback(func([]conversations.Item) {
		mu.Lock()
		defer mu.Unlock()
		changes++
	}))
	h.connect(t)

	h.push(
		delta(conversations.Delta{ItemID: "r1", Role: conversations.RoleAssistant, TextDelta: "a"}),
		delta(conversations.Delta{ItemID: "r1", Role: conversations.RoleUser, TextDelta: "b"}),
		delta(conversations.Delta{TextDelta: "c"}),
		delta(conversations.Delta{ItemID: "r1", TextDelta: "d"}),
	)
	eventually(t, "text after the dropped deltas", func() bool {
		items := h.controller.Items()
		return len(items) == 1 && items[0].Text == "ad"
	})

	if got := testutil.ToFloat64(metrics.DroppedDeltas.WithLabelValues("conflicting_role")); got != 1 {
		t.Fatalf("expected one conflicting role drop, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DroppedDeltas.WithLabelValues("missing_item_id")); got != 1 {
		t.Fatalf("expected one missing id drop, got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if changes != 2 {
		t.Fatalf("expected 2 item changes, got %d", changes)
	}
	if h.controller.State() != ConnectedIdle {
		t.Fatalf("expected to stay connected, got %s", h.controller.State())
	}
}

func TestControllerToolResultRequestsOneResponse(t *testing.T) {
	var mu sync.Mutex
	var ready []events.ToolResultReady
	h := newHarness(t, WithToolResultCallback(func(event events.ToolResultReady) {
		mu.Lock()
		defer mu.Unlock()
		ready = append(ready, event)
	}))
	h.connect(t)

	output := conversations.Delta{ItemID: "o1", Role: conversations.RoleSystem, Type: conversations.ItemTypeFunctionCallOutput, CallID: "c1", Output: "42"}
	h.push(
		delta(output),
		events.NewToolResultReady("o1", "c1"),
		delta(conversations.Delta{ItemID: "o1", Status: conversations.StatusCompleted}),
	)
	eventually(t, "tool result handled", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ready) == 1
	})
	eventually(t, "tool output completed", func() bool {
		items := h.controller.Items()
		return len(items) == 1 && items[0].IsCompleted()
	})

	if n := h.remote.count("create_response"); n != 1 {
		t.Fatalf("expected exactly one response request, got %d", n)
	}
}

func TestControllerSetTurnModeKeepsRecordingInvariant(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()

	if err := h.controller.SetTurnMode(ctx, realtime.TurnModeVoiceActivity); err != nil {
		t.Fatalf("expected switch to voice activity, got %v", err)
	}
	if h.controller.State() != ConnectedRecording || !h.capture.IsRecording() {
		t.Fatalf("expected recording in voice activity mode, got %s", h.controller.State())
	}

	if err := h.controller.SetTurnMode(ctx, realtime.TurnModeManual); err != nil {
		t.Fatalf("expected switch to manual, got %v", err)
	}
	if h.controller.State() != ConnectedIdle || h.capture.IsRecording() {
		t.Fatalf("expected idle in manual mode, got %s", h.controller.State())
	}

	sessions := h.remote.snapshot().sessions
	if len(sessions) != 3 || sessions[1].TurnMode != realtime.TurnModeVoiceActivity || sessions[2].TurnMode != realtime.TurnModeManual {
		t.Fatalf("expected session updates for each switch, got %+v", sessions)
	}
}

func TestControllerSetTurnModeCaptureFailureDisconnects(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.mic.startErr = audio.ErrDeviceUnavailable

	err := h.controller.SetTurnMode(context.Background(), realtime.TurnModeVoiceActivity)
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if h.controller.State() != Disconnected || h.capture.IsRecording() {
		t.Fatalf("expected disconnected without recording, got %s", h.controller.State())
	}
	if h.remote.snapshot().closed != 1 {
		t.Fatalf("expected the owned remote to be closed")
	}
}

func TestControllerSetTurnModeWhileDisconnected(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.SetTurnMode(context.Background(), "vad"); err != nil {
		t.Fatalf("expected mode change to succeed, got %v", err)
	}
	if h.controller.Config().TurnMode != realtime.TurnModeVoiceActivity {
		t.Fatalf("expected voice activity config, got %q", h.controller.Config().TurnMode)
	}
	if err := h.controller.SetTurnMode(context.Background(), "sometimes"); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}

	h.connect(t)
	if h.controller.State() != ConnectedRecording {
		t.Fatalf("expected connect to honour the new mode, got %s", h.controller.State())
	}
}

func TestControllerSendTextRequestsResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.controller.SendText(ctx, "hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	h.connect(t)
	if err := h.controller.SendText(ctx, "hello"); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}
	calls := h.remote.snapshot()
	if len(calls.texts) != 1 || calls.texts[0] != "hello" || calls.calls[len(calls.calls)-1] != "create_response" {
		t.Fatalf("expected text followed by a response request, got %+v", calls.calls)
	}
}

func TestControllerRemoteErrorsAreReported(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.push(events.NewRemoteError("invalid_request_error", "bad"))
	eventually(t, "remote error reported", func() bool { return len(h.errors()) == 1 })

	var remoteErr events.RemoteError
	if !errors.As(h.errors()[0], &remoteErr) || remoteErr.Code != "invalid_request_error" {
		t.Fatalf("expected remote error, got %v", h.errors()[0])
	}
}

func TestControllerConnectionLossDisconnects(t *testing.T) {
	h := newHarness(t, WithSessionConfig(voiceActivity()))
	h.connect(t)

	h.remote.drop()
	eventually(t, "disconnected state", func() bool { return h.controller.State() == Disconnected })

	if h.capture.State() != CaptureEnded {
		t.Fatalf("expected microphone released, got %s", h.capture.State())
	}
	eventually(t, "connection loss reported", func() bool { return len(h.errors()) == 1 })
	if errs := h.errors(); !errors.Is(errs[0], ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", errs)
	}
}

func TestControllerDisconnectAndReconnect(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()

	if err := h.controller.Disconnect(ctx); err != nil {
		t.Fatalf("expected disconnect to succeed, got %v", err)
	}
	if err := h.controller.Disconnect(ctx); err != nil {
		t.Fatalf("expected second disconnect to be a no-op, got %v", err)
	}
	if h.remote.snapshot().closed != 1 || h.capture.State() != CaptureEnded {
		t.Fatalf("expected remote closed and microphone released")
	}

	next := newFakeRemote()
	if err := h.controller.Connect(ctx, next); err != nil {
		t.Fatalf("expected reconnect to succeed, got %v", err)
	}
	if h.controller.State() != ConnectedIdle || h.capture.State() != CaptureBegan {
		t.Fatalf("expected connected idle after reconnect, got %s", h.controller.State())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	want := []State{ConnectedIdle, Disconnected, ConnectedIdle}
	if len(h.states) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, h.states)
	}
	for i := range want {
		if h.states[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, h.states)
		}
	}
}

func TestControllerCloseStopsOperations(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()

	if err := h.controller.Close(ctx); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if err := h.controller.Close(ctx); err != nil {
		t.Fatalf("expected second close to succeed, got %v", err)
	}
	if err := h.controller.Connect(ctx, newFakeRemote()); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
	if h.speaker.closed != 1 {
		t.Fatalf("expected output device released, got %d", h.speaker.closed)
	}
}

func TestControllerEventLogIsShared(t *testing.T) {
	log := events.NewLog(10)
	h := newHarness(t, WithEventLog(log))
	log.Record(events.SourceRemote, "response.audio.delta")
	log.Record(events.SourceRemote, "response.audio.delta")

	entries := h.controller.EventLog()
	if len(entries) != 1 || entries[0].RepeatCount != 2 {
		t.Fatalf("expected one collapsed entry, got %+v", entries)
	}
}

func TestControllerRecordsLocalActions(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()

	_ = h.controller.PressToTalkStart(ctx, "1")
	_ = h.controller.PressToTalkEnd(ctx)
	_ = h.controller.Disconnect(ctx)

	var kinds []string
	for _, entry := range h.controller.EventLog() {
		if entry.Source != events.SourceLocal {
			t.Fatalf("expected local entries only, got %+v", entry)
		}
		kinds = append(kinds, entry.Kind)
	}
	want := []string{actionConnect, actionTalkStart, actionTalkEnd, actionDisconnect}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}
