package events

const (
	// KindAgentInterrupted identifies a barge-in reported by the remote.
	KindAgentInterrupted Kind = "agent.interrupted"
	// KindAgentResponseStarted identifies the start of an agent response.
	KindAgentResponseStarted Kind = "agent.response_started"
	// KindTurnCompleted identifies the end of an agent response.
	KindTurnCompleted Kind = "agent.turn_completed"
)

// AgentInterrupted asks for local playback to be cut and the response to be
// truncated at what was heard.
type AgentInterrupted struct{ Base }

// NewAgentInterrupted creates an agent interrupted event.
func NewAgentInterrupted() AgentInterrupted {
	return AgentInterrupted{Base: NewBase(KindAgentInterrupted)}
}

// AgentResponseStarted marks the start of an agent response.
type AgentResponseStarted struct {
	Base
	ResponseID string
}

// NewAgentResponseStarted creates an agent response started event.
func NewAgentResponseStarted(responseID string) AgentResponseStarted {
	return AgentResponseStarted{Base: NewBase(KindAgentResponseStarted), ResponseID: responseID}
}

// TurnCompleted marks the end of an agent response. Status is the remote's
// response status, e.g. "completed" or "cancelled".
type TurnCompleted struct {
	Base
	ResponseID string
	Status     string
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(responseID, status string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), ResponseID: responseID, Status: status}
}
