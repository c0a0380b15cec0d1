package chat

import "time"

// Status is the workflow state of a support conversation.
type Status string

const (
	StatusUnassigned Status = "UNASSIGNED"
	StatusOpen       Status = "OPEN"
	StatusResolved   Status = "RESOLVED"
)

// Tab identifies a sidebar filter view.
type Tab string

const (
	TabAll        Tab = "all"
	TabMine       Tab = "mine"
	TabUnassigned Tab = "unassigned"
)

// Conversation is one customer thread as shown in the sidebar.
type Conversation struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Contact            string    `json:"contact"`
	Status             Status    `json:"status"`
	AssigneeID         string    `json:"assigneeId,omitempty"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	UnreadForAssignee  int       `json:"unreadForAssignee"`
}

// ConversationPatch is a partial update delivered by the push channel or
// produced locally after an upstream action. Nil fields are left untouched.
type ConversationPatch struct {
	Name               *string    `json:"name,omitempty"`
	Contact            *string    `json:"contact,omitempty"`
	Status             *Status    `json:"status,omitempty"`
	AssigneeID         *string    `json:"assigneeId,omitempty"`
	LastMessagePreview *string    `json:"lastMessagePreview,omitempty"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
	UnreadForAssignee  *int       `json:"unreadForAssignee,omitempty"`
}
