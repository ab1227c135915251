package realtime

import (
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview"
)

type Config struct {
	URL    string
	APIKey string
	Model  string

	DialTimeout time.Duration
	// EventBuffer is the capacity of the inbound event channel.
	EventBuffer int
	// Header is added to the handshake request.
	Header http.Header
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

type TurnMode string

const (
	// TurnModeManual leaves turn boundaries to the client (push to talk).
	TurnModeManual TurnMode = "manual"
	// TurnModeVoiceActivity lets the remote detect turns from the audio.
	TurnModeVoiceActivity TurnMode = "voice_activity"
)

func ParseTurnMode(s string) (TurnMode, error) {
	switch TurnMode(s) {
	case TurnModeManual, TurnModeVoiceActivity:
		return TurnMode(s), nil
	case "vad", "server_vad":
		return TurnModeVoiceActivity, nil
	}
	return "", fmt.Errorf("unknown turn mode %q", s)
}

// WireSampleRate is the rate of pcm16 audio on the wire in both directions.
// The remote does not negotiate it.
const WireSampleRate = 24000

// SessionConfig is the part of the remote session the pipeline controls.
type SessionConfig struct {
	SampleRate           int
	TurnMode             TurnMode
	TranscriptionEnabled bool

	Instructions string
	Voice        string
	Temperature  float64
	Tools        []Tool
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:           WireSampleRate,
		TurnMode:             TurnModeManual,
		TranscriptionEnabled: true,
	}
}

// Tool is a function the remote agent may call.
type Tool struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// NewTool describes a function whose arguments decode into T. The parameter
// schema is reflected from T.
func NewTool[T any](name, description string) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	var zero T
	schema := reflector.ReflectFromType(reflect.TypeOf(zero))
	schema.Version = ""
	return Tool{Type: "function", Name: name, Description: description, Parameters: schema}
}
