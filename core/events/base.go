package events

import (
	"strings"
	"time"
)

// Kind is the namespaced name of an event, e.g. "agent.interrupted".
type Kind string

// Namespace returns the part of the kind before the first dot.
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

// Event is anything the transport delivers to the controller.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by every event and carries its kind and creation time.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind { return b.kind }

func (b Base) Timestamp() time.Time { return b.timestamp }
