package conversations

import (
	"fmt"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Clip is decoded item audio kept for replay and export.
type Clip struct {
	Samples    []int16
	SampleRate int
}

func (c Clip) Duration() time.Duration {
	return audio.Frame{Samples: c.Samples, SampleRate: c.SampleRate}.Duration()
}

// Item is one entry of the conversation as seen by readers. Items handed out
// by the reconciler are copies and never change afterwards.
type Item struct {
	ID     string
	Role   Role
	Type   ItemType
	Status Status

	Text       string
	Transcript string
	SpeakerID  string

	// function calls and their outputs
	Name      string
	CallID    string
	Arguments string
	Output    string

	Audio *Clip

	CreatedAt   time.Time
	CompletedAt time.Time
}

func (i Item) IsCompleted() bool { return i.Status == StatusCompleted }

// DisplayTranscript returns the transcript prefixed with the speaker that
// produced it, as "[speaker]: transcript". Items without a speaker are
// returned unchanged.
func (i Item) DisplayTranscript() string {
	if i.SpeakerID == "" || i.Role != RoleUser || i.Transcript == "" {
		return i.Transcript
	}
	return fmt.Sprintf("[%s]: %s", i.SpeakerID, i.Transcript)
}

// Content returns the most useful text representation of the item.
func (i Item) Content() string {
	switch {
	case i.Type == ItemTypeFunctionCall:
		return fmt.Sprintf("%s(%s)", i.Name, i.Arguments)
	case i.Type == ItemTypeFunctionCallOutput:
		return i.Output
	case i.Transcript != "":
		return i.DisplayTranscript()
	}
	return i.Text
}

// Summary is an item without its audio samples.
type Summary struct {
	ID        string
	Role      Role
	Type      ItemType
	Status    Status
	SpeakerID string
	// Content is Item.Content at the time of the summary.
	Content       string
	AudioDuration time.Duration
	CreatedAt     time.Time
}

func (s Summary) IsCompleted() bool { return s.Status == StatusCompleted }

// Delta is an incremental update to one conversation item. Zero fields carry
// no change.
type Delta struct {
	ItemID string
	Role   Role
	Type   ItemType

	TextDelta       string
	TranscriptDelta string
	ArgumentsDelta  string
	AudioDelta      []int16

	// FinalTranscript is a terminal full transcript. It only fills an item
	// whose transcript is still empty.
	FinalTranscript string

	Name   string
	CallID string
	Output string

	Status Status
	// EncodedAudio is an inline audio container delivered with completion.
	EncodedAudio []byte

	// SpeakerID names who was talking when a user item was captured.
	SpeakerID string
}

func (d Delta) hasContent() bool {
	return d.TextDelta != "" || d.TranscriptDelta != "" || d.ArgumentsDelta != "" ||
		len(d.AudioDelta) > 0 || d.FinalTranscript != "" || d.Output != "" || len(d.EncodedAudio) > 0
}
