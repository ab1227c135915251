package realtime

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UpdateSession applies config to the remote session. Manual turn mode sends
// a null turn detection so the remote waits for explicit commits.
func (c *Client) UpdateSession(ctx context.Context, config SessionConfig) error {
	ctx, span := tracer.Start(ctx, "update session", trace.WithAttributes(
		attribute.String("turn_mode", string(config.TurnMode)),
		attribute.Bool("transcription", config.TranscriptionEnabled),
	))
	defer span.End()

	if config.SampleRate <= 0 {
		config.SampleRate = WireSampleRate
	}
	if config.SampleRate != WireSampleRate {
		err := &SendError{Type: "session.update", Err: fmt.Errorf("unsupported sample rate %d, pcm16 is sent at %d Hz", config.SampleRate, WireSampleRate)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	session := wireSession{
		Modalities:        []string{"text", "audio"},
		Instructions:      config.Instructions,
		Voice:             config.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Temperature:       config.Temperature,
		Tools:             config.Tools,
	}
	if config.TranscriptionEnabled {
		session.InputAudioTranscription = &wireTranscription{Model: "whisper-1"}
	}
	switch config.TurnMode {
	case TurnModeVoiceActivity:
		session.TurnDetection = &wireTurnDetection{Type: "server_vad"}
	case TurnModeManual, "":
	default:
		err := &SendError{Type: "session.update", Err: fmt.Errorf("unknown turn mode %q", config.TurnMode)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := c.send(ctx, "session.update", sessionUpdateEvent{
		EventID: newEventID(),
		Type:    "session.update",
		Session: session,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.sampleRate.Store(int64(config.SampleRate))
	c.transcriptionEnabled.Store(config.TranscriptionEnabled)
	return nil
}

// AppendInputAudio streams one captured frame into the remote input buffer.
func (c *Client) AppendInputAudio(ctx context.Context, frame audio.Frame) error {
	if frame.Len() == 0 {
		return nil
	}
	samples := frame.Samples
	if rate := int(c.sampleRate.Load()); frame.SampleRate > 0 && frame.SampleRate != rate {
		samples = audio.Resample(samples, frame.SampleRate, rate)
	}

	err := c.send(ctx, "input_audio_buffer.append", audioAppendEvent{
		EventID: newEventID(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(audio.PCM16ToBytes(samples)),
	})
	if err != nil {
		return err
	}
	c.pendingAudio.Store(true)
	return nil
}

// CommitInput closes the input buffer into a user item.
func (c *Client) CommitInput(ctx context.Context) error {
	err := c.send(ctx, "input_audio_buffer.commit", bareEvent{EventID: newEventID(), Type: "input_audio_buffer.commit"})
	if err != nil {
		return err
	}
	c.pendingAudio.Store(false)
	return nil
}

// CreateResponse asks the agent to respond. Uncommitted input audio is
// committed first.
func (c *Client) CreateResponse(ctx context.Context) error {
	if c.pendingAudio.Load() {
		if err := c.CommitInput(ctx); err != nil {
			return err
		}
	}
	return c.send(ctx, "response.create", bareEvent{EventID: newEventID(), Type: "response.create"})
}

// EndTurn ends a manual user turn.
func (c *Client) EndTurn(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "end turn")
	defer span.End()

	if err := c.CreateResponse(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// CancelResponse cancels the active response and truncates the assistant
// item trackID at offset samples, so the remote transcript matches what was
// heard.
func (c *Client) CancelResponse(ctx context.Context, trackID string, offset uint64) error {
	ctx, span := tracer.Start(ctx, "cancel response", trace.WithAttributes(
		attribute.String("track_id", trackID),
		attribute.Int64("offset", int64(offset)),
	))
	defer span.End()

	if err := c.send(ctx, "response.cancel", bareEvent{EventID: newEventID(), Type: "response.cancel"}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if trackID == "" {
		return nil
	}

	err := c.send(ctx, "conversation.item.truncate", itemTruncateEvent{
		EventID:    newEventID(),
		Type:       "conversation.item.truncate",
		ItemID:     trackID,
		AudioEndMs: audioEndMs(offset, int(c.sampleRate.Load())),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func audioEndMs(offset uint64, sampleRate int) int64 {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return int64(offset * 1000 / uint64(sampleRate))
}

// SendText adds a typed user message. It does not ask for a response.
func (c *Client) SendText(ctx context.Context, text string) error {
	return c.send(ctx, "conversation.item.create", itemCreateEvent{
		EventID: newEventID(),
		Type:    "conversation.item.create",
		Item: wireItem{
			Type:    "message",
			Role:    "user",
			Content: []wireContent{{Type: "input_text", Text: text}},
		},
	})
}

// SendFunctionCallOutput adds the result of a tool call. The response that
// uses it is requested once the remote confirms the item.
func (c *Client) SendFunctionCallOutput(ctx context.Context, callID, output string) error {
	return c.send(ctx, "conversation.item.create", itemCreateEvent{
		EventID: newEventID(),
		Type:    "conversation.item.create",
		Item: wireItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}
