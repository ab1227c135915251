// Package events defines the typed event contract between the realtime
// transport and the turn controller.
//
// Events are delivered on a single channel and switched on by concrete type.
// Kinds are grouped by namespace:
//
//   - conversation.*
//   - user_input.*
//   - agent.*
//   - session.*
//
// conversation events
//
//   - ConversationDelta (conversation.delta): incremental update to one
//     conversation item.
//   - ToolResultReady (conversation.tool_result_ready): a deferred tool result
//     item was added to the conversation.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): remote voice activity
//     detection heard the user start speaking.
//   - UserSpeechEnded (user_input.speech_ended): remote voice activity
//     detection heard the user stop speaking.
//
// agent events
//
//   - AgentInterrupted (agent.interrupted): the user barged in while the agent
//     was speaking and local playback has to be cut.
//   - AgentResponseStarted (agent.response_started): the agent started a
//     response.
//   - TurnCompleted (agent.turn_completed): the agent finished a response.
//
// session events
//
//   - SessionUpdated (session.updated): the remote accepted a session
//     configuration.
//   - RemoteError (session.error): the remote reported an error.
package events
