package events

const (
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of user speech activity.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
)

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct {
	Base
	ItemID string
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted(itemID string) UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted), ItemID: itemID}
}

// UserSpeechEnded marks when user speech activity ends.
type UserSpeechEnded struct {
	Base
	ItemID string
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(itemID string) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded), ItemID: itemID}
}
