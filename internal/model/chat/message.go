package chat

import "time"

// SenderRole distinguishes the two parties of a support conversation.
type SenderRole string

const (
	SenderCustomer SenderRole = "customer"
	SenderAgent    SenderRole = "agent"
)

// DeliveryState is the per-message lifecycle. A locally originated message
// starts Pending and transitions in place to Confirmed when the
// acknowledgment (or the equivalent push event) arrives. Failed marks a send
// whose network call errored; a late confirmation can still promote it to
// Confirmed.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Attachment is a remote file descriptor. Immutable once part of a sent
// message.
type Attachment struct {
	URL       string `json:"url"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

// Reaction is one user's emoji on one message. At most one reaction per
// (user, message); a second reaction from the same user replaces it.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is a single timeline entry.
type Message struct {
	ServerID        string        `json:"serverId,omitempty"`
	ClientMessageID string        `json:"clientMessageId,omitempty"`
	ConversationID  string        `json:"conversationId"`
	Sender          SenderRole    `json:"sender"`
	Content         string        `json:"content"`
	Attachments     []Attachment  `json:"attachments,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	Reactions       []Reaction    `json:"reactions,omitempty"`
	Delivery        DeliveryState `json:"delivery"`
}

// Pending reports whether the message is still awaiting confirmation.
func (m Message) Pending() bool {
	return m.Delivery == DeliveryPending
}
