package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/observability"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Remote is the link to the conversational agent. Only the controller loop
// calls into it, except for AppendInputAudio which is called from the uplink
// goroutine.
type Remote interface {
	Events() <-chan events.Event
	UpdateSession(ctx context.Context, config realtime.SessionConfig) error
	AppendInputAudio(ctx context.Context, frame audio.Frame) error
	CreateResponse(ctx context.Context) error
	EndTurn(ctx context.Context) error
	CancelResponse(ctx context.Context, trackID string, offset uint64) error
	SendText(ctx context.Context, text string) error
	Close() error
}

var _ Remote = (*realtime.Client)(nil)

// Kinds the controller records into its event log next to the wire events
// recorded by the transport.
const (
	actionConnect        = "control.connect"
	actionDisconnect     = "control.disconnect"
	actionConnectionLost = "control.connection_lost"
	actionTalkStart      = "control.press_to_talk_start"
	actionTalkEnd        = "control.press_to_talk_end"
	actionTurnMode       = "control.turn_mode"
	actionSendText       = "control.send_text"
	actionInterrupt      = "control.interrupt"
)

type State int

const (
	Disconnected State = iota
	ConnectedIdle
	ConnectedRecording
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedIdle:
		return "connected_idle"
	case ConnectedRecording:
		return "connected_recording"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type command struct {
	ctx   context.Context
	run   func(ctx context.Context) error
	reply chan error
}

// Controller runs the duplex voice turn state machine. Operations and remote
// events are executed one at a time on a single loop goroutine, so the
// reconciler, the devices and the remote are never driven concurrently.
//
// Capture is recording exactly when the turn mode is manual and push to talk
// is held, or the turn mode is voice activity and the controller is
// connected.
type Controller struct {
	capture    *CaptureSession
	playback   *PlaybackStream
	reconciler *conversations.Reconciler

	commands  chan command
	closed    chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}

	// owned by the loop
	remote       Remote
	remoteEvents <-chan events.Event
	uplink       *uplink

	mu      sync.RWMutex
	state   State
	config  realtime.SessionConfig
	speaker string

	eventLog *events.Log
	metrics  *observability.Metrics

	uplinkBuffer     int
	onItemsChanged   func([]conversations.Item)
	onStateChanged   func(State)
	onError          func(error)
	onToolResult     func(events.ToolResultReady)
	onRemoteActivity func(events.Event)
}

func NewController(capture *CaptureSession, playback *PlaybackStream, reconciler *conversations.Reconciler, opts ...ControllerOption) *Controller {
	c := &Controller{
		capture:      capture,
		playback:     playback,
		reconciler:   reconciler,
		commands:     make(chan command),
		closed:       make(chan struct{}),
		loopDone:     make(chan struct{}),
		config:       realtime.DefaultSessionConfig(),
		eventLog:     events.NewLog(defaultEventLogCapacity),
		uplinkBuffer: defaultUplinkBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reconciler == nil {
		c.reconciler = conversations.NewReconciler(conversations.WithAudioSink(playback))
	}

	go c.loop()
	return c
}

func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.closed:
			return
		case cmd := <-c.commands:
			cmd.reply <- cmd.run(cmd.ctx)
		case event, ok := <-c.remoteEvents:
			if !ok {
				c.remoteLost()
				continue
			}
			c.handleEvent(context.Background(), event)
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{ctx: ctx, run: fn, reply: reply}:
	case <-c.loopDone:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect acquires both devices, configures the remote session and starts
// consuming remote events. In voice activity mode recording starts right
// away. On failure the controller stays disconnected and the remote is left
// open for the caller; on success the controller owns it.
func (c *Controller) Connect(ctx context.Context, remote Remote) error {
	return c.do(ctx, func(ctx context.Context) error {
		if c.State() != Disconnected {
			return ErrAlreadyConnected
		}

		ctx, span := tracer.Start(ctx, "connect")
		defer span.End()

		fail := func(err error) error {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		if err := c.capture.Begin(ctx); err != nil {
			return fail(err)
		}
		if err := c.playback.Connect(ctx); err != nil {
			_ = c.capture.End()
			return fail(err)
		}
		config := c.Config()
		if err := remote.UpdateSession(ctx, config); err != nil {
			_ = c.capture.End()
			return fail(fmt.Errorf("failed to configure session: %w", err))
		}

		c.remote = remote
		c.remoteEvents = remote.Events()
		c.uplink = startUplink(remote, c.uplinkBuffer, c.metrics)
		c.reconciler.SetResponder(remote)

		if config.TurnMode == realtime.TurnModeVoiceActivity {
			if err := c.capture.Record(ctx, c.uplink.send); err != nil {
				// the remote still belongs to the caller
				_ = c.release()
				return fail(err)
			}
			c.setState(ConnectedRecording)
			c.record(actionConnect)
			return nil
		}
		c.setState(ConnectedIdle)
		c.record(actionConnect)
		return nil
	})
}

// PressToTalkStart cuts off any agent audio, tells the remote how much of it
// was heard and starts recording for speakerID. An empty speakerID keeps the
// current speaker.
func (c *Controller) PressToTalkStart(ctx context.Context, speakerID string) error {
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.requireManual(); err != nil {
			return err
		}
		if speakerID != "" {
			c.setSpeaker(speakerID)
		}
		c.interrupt(ctx)
		if err := c.startRecording(ctx); err != nil {
			return err
		}
		c.record(actionTalkStart)
		return nil
	})
}

// PressToTalkEnd stops recording and ends the user turn.
func (c *Controller) PressToTalkEnd(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.requireManual(); err != nil {
			return err
		}
		if c.State() != ConnectedRecording {
			return nil
		}
		if err := c.stopRecording(); err != nil {
			return err
		}
		c.record(actionTalkEnd)
		return c.remote.EndTurn(ctx)
	})
}

// SetTurnMode switches between push to talk and voice activity turns. It
// works while disconnected, in which case it only changes the configuration
// used by the next Connect.
func (c *Controller) SetTurnMode(ctx context.Context, mode realtime.TurnMode) error {
	mode, err := realtime.ParseTurnMode(string(mode))
	if err != nil {
		return err
	}
	return c.do(ctx, func(ctx context.Context) error {
		if c.State() == ConnectedRecording {
			if err := c.stopRecording(); err != nil {
				return err
			}
		}

		c.mu.Lock()
		c.config.TurnMode = mode
		config := c.config
		c.mu.Unlock()
		c.record(actionTurnMode)

		if c.State() == Disconnected {
			return nil
		}
		if err := c.remote.UpdateSession(ctx, config); err != nil {
			return fmt.Errorf("failed to update turn mode: %w", err)
		}
		if mode == realtime.TurnModeVoiceActivity {
			if err := c.startRecording(ctx); err != nil {
				// a microphone that cannot record ends the connection
				if teardownErr := c.teardown(); teardownErr != nil {
					logger.WarnContext(ctx, "failed to release after capture failure", "error", teardownErr)
				}
				return err
			}
		}
		return nil
	})
}

// SetSpeaker selects who is talking. User items created afterwards carry the
// speaker id.
func (c *Controller) SetSpeaker(speakerID string) {
	c.setSpeaker(speakerID)
}

// SendText adds a typed user message and asks the agent to respond.
func (c *Controller) SendText(ctx context.Context, text string) error {
	return c.do(ctx, func(ctx context.Context) error {
		if c.State() == Disconnected {
			return ErrNotConnected
		}
		c.interrupt(ctx)
		c.record(actionSendText)
		if err := c.remote.SendText(ctx, text); err != nil {
			return err
		}
		return c.remote.CreateResponse(ctx)
	})
}

// Disconnect releases the microphone, stops playback and closes the remote.
func (c *Controller) Disconnect(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		if c.State() == Disconnected {
			return nil
		}
		c.record(actionDisconnect)
		return c.teardown()
	})
}

// Close disconnects, releases the output device and stops the loop.
func (c *Controller) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)
	if errors.Is(err, ErrControllerClosed) {
		return nil
	}
	c.closeOnce.Do(func() { close(c.closed) })
	<-c.loopDone
	return errors.Join(err, c.playback.Close(ctx))
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Config() realtime.SessionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *Controller) Speaker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speaker
}

func (c *Controller) Items() []conversations.Item { return c.reconciler.Items() }

// Summaries is the sample-free view of Items for renderers polling every
// frame. ConversationVersion tells them when it changed.
func (c *Controller) Summaries() []conversations.Summary { return c.reconciler.Summaries() }

func (c *Controller) ConversationVersion() uint64 { return c.reconciler.Version() }

func (c *Controller) EventLog() []events.LogEntry { return c.eventLog.Entries() }

// InputSpectrum and OutputSpectrum never block on audio.
func (c *Controller) InputSpectrum() audio.Spectrum { return c.capture.FrequencySnapshot() }

func (c *Controller) OutputSpectrum() audio.Spectrum { return c.playback.FrequencySnapshot() }

func (c *Controller) requireManual() error {
	if c.State() == Disconnected {
		return ErrNotConnected
	}
	if c.Config().TurnMode != realtime.TurnModeManual {
		return ErrNotManualMode
	}
	return nil
}

func (c *Controller) startRecording(ctx context.Context) error {
	if err := c.capture.Record(ctx, c.uplink.send); err != nil {
		return err
	}
	c.setState(ConnectedRecording)
	return nil
}

func (c *Controller) stopRecording() error {
	if err := c.capture.Pause(); err != nil && !errors.Is(err, ErrCaptureNotRecording) {
		return err
	}
	c.setState(ConnectedIdle)
	return nil
}

// interrupt stops local playback and, when a track was cut, cancels the
// response and truncates it at the rendered offset.
func (c *Controller) interrupt(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "interrupt")
	defer span.End()

	offset := c.playback.Interrupt()
	span.AddEvent("playback interrupted", trackAttributes(offset))
	if offset == nil {
		return
	}
	c.record(actionInterrupt)
	deviceRate := c.playback.EncodingInfo().SampleRate
	c.metrics.Interrupted(c.playback.EncodingInfo().Duration(int(offset.Offset)))

	// the remote counts samples at the session rate
	heard := rescaleOffset(offset.Offset, deviceRate, c.Config().SampleRate)
	if err := c.remote.CancelResponse(ctx, offset.TrackID, heard); err != nil {
		recordedErr := fmt.Errorf("failed to cancel response %q: %w", offset.TrackID, err)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		c.reportError(ctx, recordedErr)
		return
	}
	c.metrics.Cancelled()
}

func rescaleOffset(offset uint64, from, to int) uint64 {
	if from <= 0 || to <= 0 || from == to {
		return offset
	}
	return offset * uint64(to) / uint64(from)
}

func (c *Controller) handleEvent(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.ConversationDelta:
		delta := e.Delta
		if delta.Role == conversations.RoleUser && delta.Type != "" && delta.SpeakerID == "" {
			delta.SpeakerID = c.Speaker()
		}
		if err := c.reconciler.Apply(ctx, delta); err != nil {
			var reconcileErr *conversations.ReconcileError
			if errors.As(err, &reconcileErr) {
				c.metrics.DeltaDropped(dropReason(reconcileErr))
			}
			// a dropped delta leaves the conversation unchanged
			return
		}
		if c.onItemsChanged != nil {
			c.onItemsChanged(c.reconciler.Items())
		}

	case events.AgentInterrupted:
		c.interrupt(ctx)

	case events.ToolResultReady:
		logger.DebugContext(ctx, "tool result added", "item_id", e.ItemID, "call_id", e.CallID)
		if c.onToolResult != nil {
			c.onToolResult(e)
		}

	case events.RemoteError:
		c.reportError(ctx, e)

	default:
		logger.DebugContext(ctx, "remote event", "namespace", event.Kind().Namespace(), "kind", string(event.Kind()))
	}

	if c.onRemoteActivity != nil {
		c.onRemoteActivity(event)
	}
}

func (c *Controller) remoteLost() {
	ctx := context.Background()
	logger.WarnContext(ctx, "remote connection lost")
	c.record(actionConnectionLost)
	if err := c.teardown(); err != nil {
		logger.WarnContext(ctx, "failed to release after connection loss", "error", err)
	}
	c.reportError(ctx, fmt.Errorf("%w: connection lost", ErrNotConnected))
}

// teardown returns the controller to Disconnected and closes the remote. It
// runs on the loop.
func (c *Controller) teardown() error {
	remote := c.remote
	errs := c.release()
	if remote != nil {
		if err := remote.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close remote: %w", err))
		}
	}
	return errs
}

// release returns the controller to Disconnected and drops the remote
// without closing it.
func (c *Controller) release() error {
	var errs error
	if err := c.capture.End(); err != nil {
		errs = errors.Join(errs, err)
	}
	c.playback.Interrupt()
	c.uplink.stop()
	c.uplink = nil
	c.reconciler.SetResponder(nil)

	c.remote = nil
	c.remoteEvents = nil
	c.setState(Disconnected)
	return errs
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if !changed {
		return
	}
	c.metrics.StateChanged(state.String())
	if c.onStateChanged != nil {
		c.onStateChanged(state)
	}
}

func (c *Controller) record(kind string) {
	c.eventLog.Record(events.SourceLocal, kind)
}

func (c *Controller) setSpeaker(speakerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaker = speakerID
}

func (c *Controller) reportError(ctx context.Context, err error) {
	logger.WarnContext(ctx, "pipeline error", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}

func dropReason(err *conversations.ReconcileError) string {
	switch {
	case errors.Is(err, conversations.ErrConflictingRole):
		return "conflicting_role"
	case errors.Is(err, conversations.ErrItemCompleted):
		return "item_completed"
	case errors.Is(err, conversations.ErrMissingItemID):
		return "missing_item_id"
	}
	return "unknown"
}

func trackAttributes(offset *TrackOffset) trace.SpanStartEventOption {
	if offset == nil {
		return trace.WithAttributes(attribute.Bool("interrupted", false))
	}
	return trace.WithAttributes(
		attribute.Bool("interrupted", true),
		attribute.String("track_id", offset.TrackID),
		attribute.Int64("offset", int64(offset.Offset)),
	)
}
