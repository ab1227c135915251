package events

const (
	// KindSessionUpdated identifies an accepted session configuration.
	KindSessionUpdated Kind = "session.updated"
	// KindRemoteError identifies an error reported by the remote.
	KindRemoteError Kind = "session.error"
)

// SessionUpdated marks that the remote applied a session configuration.
type SessionUpdated struct{ Base }

// NewSessionUpdated creates a session updated event.
func NewSessionUpdated() SessionUpdated {
	return SessionUpdated{Base: NewBase(KindSessionUpdated)}
}

// RemoteError carries an error reported by the remote.
type RemoteError struct {
	Base
	Code    string
	Message string
}

// NewRemoteError creates a remote error event.
func NewRemoteError(code, message string) RemoteError {
	return RemoteError{Base: NewBase(KindRemoteError), Code: code, Message: message}
}

func (e RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
