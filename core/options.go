package orchestration

import (
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/observability"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

const (
	defaultEventLogCapacity = 200
	defaultUplinkBuffer     = 64
)

type ControllerOption func(*Controller)

// WithSessionConfig sets the session applied on every Connect.
func WithSessionConfig(config realtime.SessionConfig) ControllerOption {
	return func(c *Controller) { c.config = config }
}

// WithSpeaker sets the speaker id stamped on user items until another one is
// selected.
func WithSpeaker(speakerID string) ControllerOption {
	return func(c *Controller) { c.speaker = speakerID }
}

// WithEventLog shares log with the controller. Pass the same log to the
// transport's event hook to have wire events show up in EventLog.
func WithEventLog(log *events.Log) ControllerOption {
	return func(c *Controller) {
		if log != nil {
			c.eventLog = log
		}
	}
}

func WithMetrics(metrics *observability.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = metrics }
}

// WithUplinkBuffer sets how many captured frames may wait for the remote
// before new ones are dropped.
func WithUplinkBuffer(frames int) ControllerOption {
	return func(c *Controller) {
		if frames > 0 {
			c.uplinkBuffer = frames
		}
	}
}

// Callbacks run on the controller loop. They must not call back into
// controller operations other than the read only accessors.

func WithItemsChangedCallback(callback func(items []conversations.Item)) ControllerOption {
	return func(c *Controller) { c.onItemsChanged = callback }
}

func WithStateChangedCallback(callback func(state State)) ControllerOption {
	return func(c *Controller) { c.onStateChanged = callback }
}

// WithErrorCallback receives errors that happen outside of an operation,
// such as remote errors, failed cancellations and a lost connection.
func WithErrorCallback(callback func(err error)) ControllerOption {
	return func(c *Controller) { c.onError = callback }
}

func WithToolResultCallback(callback func(event events.ToolResultReady)) ControllerOption {
	return func(c *Controller) { c.onToolResult = callback }
}

// WithRemoteEventCallback is called with every event received from the
// remote after the controller handled it.
func WithRemoteEventCallback(callback func(event events.Event)) ControllerOption {
	return func(c *Controller) { c.onRemoteActivity = callback }
}
