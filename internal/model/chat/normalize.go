package chat

import (
	"encoding/json"
	"path"
	"strings"
	"time"
)

// The upstream API and the push channel do not agree on field names or on
// how attachments are encoded (sometimes a bare URL string, sometimes an
// object with one of several possible key sets). Everything is normalized
// here, once, at the ingestion boundary; nothing downstream ever sees a raw
// payload variant.

// FlexTime decodes either an RFC3339 string or a unix-millisecond number.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` || s == "" {
		t.Time = time.Time{}
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// ReactionDTO mirrors the wire shape of a single reaction.
type ReactionDTO struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// MessageDTO mirrors the wire shape of a message from the REST API or the
// push channel.
type MessageDTO struct {
	ID              string            `json:"id"`
	ClientMessageID string            `json:"clientMessageId"`
	ConversationID  string            `json:"conversationId"`
	Sender          string            `json:"sender"`
	Content         string            `json:"content"`
	Attachments     []json.RawMessage `json:"attachments"`
	CreatedAt       FlexTime          `json:"createdAt"`
	Reactions       []ReactionDTO     `json:"reactions"`
}

// Normalize converts the wire shape into the canonical Message. Server-
// originated messages are confirmed by construction.
func (d MessageDTO) Normalize() Message {
	msg := Message{
		ServerID:        d.ID,
		ClientMessageID: d.ClientMessageID,
		ConversationID:  d.ConversationID,
		Sender:          normalizeSender(d.Sender),
		Content:         d.Content,
		CreatedAt:       d.CreatedAt.Time,
		Delivery:        DeliveryConfirmed,
	}
	for _, raw := range d.Attachments {
		if att, ok := NormalizeAttachment(raw); ok {
			msg.Attachments = append(msg.Attachments, att)
		}
	}
	for _, r := range d.Reactions {
		msg.Reactions = append(msg.Reactions, Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}
	return msg
}

func normalizeSender(raw string) SenderRole {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "agent", "operator", "assignee":
		return SenderAgent
	default:
		return SenderCustomer
	}
}

// NormalizeAttachment accepts either a bare URL string or an object using
// any of the known key variants and returns the canonical Attachment. The
// second return value is false when no URL could be extracted.
func NormalizeAttachment(raw json.RawMessage) (Attachment, bool) {
	var url string
	if err := json.Unmarshal(raw, &url); err == nil {
		url = strings.TrimSpace(url)
		if url == "" {
			return Attachment{}, false
		}
		return Attachment{URL: url, Name: path.Base(url)}, true
	}

	var obj struct {
		URL         string `json:"url"`
		FileURL     string `json:"fileUrl"`
		Href        string `json:"href"`
		Name        string `json:"name"`
		FileName    string `json:"fileName"`
		Filename    string `json:"filename"`
		SizeBytes   int64  `json:"sizeBytes"`
		Size        int64  `json:"size"`
		FileSize    int64  `json:"fileSize"`
		MimeType    string `json:"mimeType"`
		ContentType string `json:"contentType"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Attachment{}, false
	}

	att := Attachment{
		URL:       firstNonEmpty(obj.URL, obj.FileURL, obj.Href),
		Name:      firstNonEmpty(obj.Name, obj.FileName, obj.Filename),
		SizeBytes: firstNonZero(obj.SizeBytes, obj.Size, obj.FileSize),
		MimeType:  firstNonEmpty(obj.MimeType, obj.ContentType),
	}
	if att.URL == "" {
		return Attachment{}, false
	}
	if att.Name == "" {
		att.Name = path.Base(att.URL)
	}
	return att, true
}

// ConversationDTO mirrors the wire shape of a directory snapshot entry.
type ConversationDTO struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	CustomerName       string   `json:"customerName"`
	Contact            string   `json:"contact"`
	Email              string   `json:"email"`
	Phone              string   `json:"phone"`
	Status             string   `json:"status"`
	AssigneeID         string   `json:"assigneeId"`
	LastMessagePreview string   `json:"lastMessagePreview"`
	LastMessage        string   `json:"lastMessage"`
	LastMessageAt      FlexTime `json:"lastMessageAt"`
	UpdatedAt          FlexTime `json:"updatedAt"`
	UnreadForAssignee  int      `json:"unreadForAssignee"`
	UnreadCount        int      `json:"unreadCount"`
}

// Normalize converts the snapshot entry into the canonical Conversation.
func (d ConversationDTO) Normalize() Conversation {
	at := d.LastMessageAt.Time
	if at.IsZero() {
		at = d.UpdatedAt.Time
	}
	unread := d.UnreadForAssignee
	if unread == 0 {
		unread = d.UnreadCount
	}
	return Conversation{
		ID:                 d.ID,
		Name:               firstNonEmpty(d.Name, d.CustomerName),
		Contact:            firstNonEmpty(d.Contact, d.Email, d.Phone),
		Status:             NormalizeStatus(d.Status),
		AssigneeID:         d.AssigneeID,
		LastMessagePreview: firstNonEmpty(d.LastMessagePreview, d.LastMessage),
		LastMessageAt:      at,
		UnreadForAssignee:  unread,
	}
}

// NormalizeStatus maps the upstream status vocabulary onto the three
// canonical states.
func NormalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OPEN", "ASSIGNED", "ACTIVE":
		return StatusOpen
	case "RESOLVED", "CLOSED", "DONE":
		return StatusResolved
	default:
		return StatusUnassigned
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
