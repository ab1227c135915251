package events

import "github.com/koscakluka/ema-realtime/core/conversations"

const (
	// KindConversationDelta identifies an incremental conversation item update.
	KindConversationDelta Kind = "conversation.delta"
	// KindToolResultReady identifies a deferred tool result added to the conversation.
	KindToolResultReady Kind = "conversation.tool_result_ready"
)

// ConversationDelta carries one delta for the reconciler.
type ConversationDelta struct {
	Base
	Delta conversations.Delta
}

// NewConversationDelta creates a conversation delta event.
func NewConversationDelta(delta conversations.Delta) ConversationDelta {
	return ConversationDelta{Base: NewBase(KindConversationDelta), Delta: delta}
}

// ToolResultReady marks a function call output item added by the remote.
type ToolResultReady struct {
	Base
	ItemID string
	CallID string
}

// NewToolResultReady creates a tool result ready event.
func NewToolResultReady(itemID, callID string) ToolResultReady {
	return ToolResultReady{Base: NewBase(KindToolResultReady), ItemID: itemID, CallID: callID}
}
