package realtime

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/events"
)

// translate maps one server event to pipeline events. Unknown types map to
// nothing.
func (c *Client) translate(eventType string, raw []byte) ([]events.Event, error) {
	switch eventType {
	case "session.created", "session.updated":
		return []events.Event{events.NewSessionUpdated()}, nil

	case "error":
		msg, err := decodeInto[errorEvent](raw)
		if err != nil {
			return nil, err
		}
		code := msg.Error.Code
		if code == "" {
			code = msg.Error.Type
		}
		return []events.Event{events.NewRemoteError(code, msg.Error.Message)}, nil

	case "conversation.item.created":
		msg, err := decodeInto[itemEvent](raw)
		if err != nil {
			return nil, err
		}
		delta := c.itemDelta(msg.Item, true)
		out := []events.Event{events.NewConversationDelta(delta)}
		if delta.Type == conversations.ItemTypeFunctionCallOutput {
			out = append(out, events.NewToolResultReady(msg.Item.ID, msg.Item.CallID))
		}
		return out, nil

	case "response.output_item.added":
		msg, err := decodeInto[itemEvent](raw)
		if err != nil {
			return nil, err
		}
		delta := c.itemDelta(msg.Item, false)
		delta.Status = conversations.StatusInProgress
		return []events.Event{events.NewConversationDelta(delta)}, nil

	case "response.output_item.done":
		msg, err := decodeInto[itemEvent](raw)
		if err != nil {
			return nil, err
		}
		delta := c.itemDelta(msg.Item, false)
		delta.Status = conversations.StatusCompleted
		return []events.Event{events.NewConversationDelta(delta)}, nil

	case "response.text.delta":
		msg, err := decodeInto[contentDeltaEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, TextDelta: msg.Delta}), nil

	case "response.audio_transcript.delta":
		msg, err := decodeInto[contentDeltaEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, TranscriptDelta: msg.Delta}), nil

	case "response.audio_transcript.done":
		msg, err := decodeInto[transcriptDoneEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, FinalTranscript: msg.Transcript}), nil

	case "response.audio.delta":
		msg, err := decodeInto[contentDeltaEvent](raw)
		if err != nil {
			return nil, err
		}
		encoded, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			return nil, fmt.Errorf("audio delta: %w", err)
		}
		samples, err := audio.BytesToPCM16(encoded)
		if err != nil {
			return nil, fmt.Errorf("audio delta: %w", err)
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, AudioDelta: samples}), nil

	case "response.function_call_arguments.delta":
		msg, err := decodeInto[contentDeltaEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, CallID: msg.CallID, ArgumentsDelta: msg.Delta}), nil

	case "conversation.item.input_audio_transcription.delta":
		msg, err := decodeInto[contentDeltaEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, Role: conversations.RoleUser, TranscriptDelta: msg.Delta}), nil

	case "conversation.item.input_audio_transcription.completed":
		msg, err := decodeInto[transcriptDoneEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{
			ItemID:          msg.ItemID,
			Role:            conversations.RoleUser,
			FinalTranscript: msg.Transcript,
			Status:          conversations.StatusCompleted,
		}), nil

	case "conversation.item.input_audio_transcription.failed":
		msg, err := decodeInto[speechEvent](raw)
		if err != nil {
			return nil, err
		}
		return deltaEvent(conversations.Delta{ItemID: msg.ItemID, Role: conversations.RoleUser, Status: conversations.StatusCompleted}), nil

	case "input_audio_buffer.speech_started":
		msg, err := decodeInto[speechEvent](raw)
		if err != nil {
			return nil, err
		}
		return []events.Event{events.NewAgentInterrupted(), events.NewUserSpeechStarted(msg.ItemID)}, nil

	case "input_audio_buffer.speech_stopped":
		msg, err := decodeInto[speechEvent](raw)
		if err != nil {
			return nil, err
		}
		return []events.Event{events.NewUserSpeechEnded(msg.ItemID)}, nil

	case "input_audio_buffer.committed", "input_audio_buffer.cleared":
		c.pendingAudio.Store(false)
		return nil, nil

	case "response.created":
		msg, err := decodeInto[responseEvent](raw)
		if err != nil {
			return nil, err
		}
		return []events.Event{events.NewAgentResponseStarted(msg.Response.ID)}, nil

	case "response.done":
		msg, err := decodeInto[responseEvent](raw)
		if err != nil {
			return nil, err
		}
		return []events.Event{events.NewTurnCompleted(msg.Response.ID, msg.Response.Status)}, nil
	}
	return nil, nil
}

func deltaEvent(delta conversations.Delta) []events.Event {
	return []events.Event{events.NewConversationDelta(delta)}
}

// itemDelta builds the delta that creates or completes an item. On creation a
// user audio item stays in progress while a transcript is expected.
func (c *Client) itemDelta(item wireItem, created bool) conversations.Delta {
	delta := conversations.Delta{
		ItemID: item.ID,
		Role:   conversations.Role(item.Role),
		Type:   conversations.ItemType(item.Type),
		Name:   item.Name,
		CallID: item.CallID,
		Output: item.Output,
	}
	if delta.Role == "" && item.Type != string(conversations.ItemTypeMessage) {
		delta.Role = conversations.RoleAssistant
		if item.Type == string(conversations.ItemTypeFunctionCallOutput) {
			delta.Role = conversations.RoleSystem
		}
	}

	hasInputAudio := false
	for _, content := range item.Content {
		switch content.Type {
		case "input_text", "text":
			// only created items carry their full text, completed ones
			// repeat what was streamed
			if created {
				delta.TextDelta += content.Text
			}
		case "input_audio":
			hasInputAudio = true
			if content.Transcript != "" {
				delta.FinalTranscript = content.Transcript
			}
		case "audio":
			if delta.FinalTranscript == "" {
				delta.FinalTranscript = content.Transcript
			}
			if content.Audio != "" {
				if encoded, err := base64.StdEncoding.DecodeString(content.Audio); err == nil && isContainer(encoded) {
					delta.EncodedAudio = encoded
				}
			}
		}
	}

	if created {
		switch {
		case hasInputAudio && c.transcriptionEnabled.Load() && delta.FinalTranscript == "":
			delta.Status = conversations.StatusInProgress
		case item.Status == "in_progress" || item.Status == "incomplete":
			delta.Status = conversations.StatusInProgress
		default:
			delta.Status = conversations.StatusCompleted
		}
	}
	return delta
}

func isContainer(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}
