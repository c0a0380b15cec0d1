package engine

import "github.com/harborsupport/console/internal/model/chat"

// EventType tags a push-channel event.
type EventType string

const (
	EventConversationPatched EventType = "conversation.patched"
	EventMessageCreated      EventType = "message.created"
	EventReactionUpdated     EventType = "reaction.updated"
)

// Event is one normalized push-channel event. Exactly the fields matching
// the Type are set.
type Event struct {
	Type           EventType
	ConversationID string

	// EventConversationPatched
	Patch *chat.ConversationPatch

	// EventMessageCreated. ReplacesClientMessageID is the replacement marker
	// set when the message originated from a send in this session.
	Message                 *chat.Message
	ReplacesClientMessageID string

	// EventReactionUpdated carries the full, authoritative list.
	MessageID string
	Reactions []chat.Reaction
}

// UpdateKind classifies a local state change for subscribers (the SSE feed).
type UpdateKind string

const (
	UpdateDirectory UpdateKind = "directory"
	UpdateTimeline  UpdateKind = "timeline"
)

// Update is the notification emitted after the engine mutates state.
type Update struct {
	Kind           UpdateKind `json:"kind"`
	ConversationID string     `json:"conversationId,omitempty"`
}
