package realtime

import "encoding/json"

// outbound client events

type sessionUpdateEvent struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Session wireSession `json:"session"`
}

type wireSession struct {
	Modalities        []string `json:"modalities"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`
	Temperature       float64  `json:"temperature,omitempty"`
	Tools             []Tool   `json:"tools,omitempty"`

	// both are sent as null to disable them
	InputAudioTranscription *wireTranscription `json:"input_audio_transcription"`
	TurnDetection           *wireTurnDetection `json:"turn_detection"`
}

type wireTranscription struct {
	Model string `json:"model"`
}

type wireTurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type audioAppendEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

type bareEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

type itemTruncateEvent struct {
	EventID      string `json:"event_id"`
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

type itemCreateEvent struct {
	EventID string   `json:"event_id"`
	Type    string   `json:"type"`
	Item    wireItem `json:"item"`
}

// inbound server events

type envelope struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

type wireItem struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Status    string        `json:"status,omitempty"`
	Content   []wireContent `json:"content,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

type wireContent struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Audio      string `json:"audio,omitempty"`
}

type itemEvent struct {
	Item wireItem `json:"item"`
}

type contentDeltaEvent struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Delta      string `json:"delta"`
}

type transcriptDoneEvent struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type functionArgumentsDoneEvent struct {
	ItemID    string `json:"item_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type speechEvent struct {
	ItemID string `json:"item_id"`
}

type responseEvent struct {
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
}

type errorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeInto[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
