// Package engine owns the per-conversation synchronization state and routes
// push-channel events to it. Each conversation gets its own timeline unit
// with a single writer; different conversations never contend with each
// other.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/logger"
	"github.com/harborsupport/console/internal/model/chat"
	"github.com/harborsupport/console/internal/service/directory"
	"github.com/harborsupport/console/internal/service/reaction"
	"github.com/harborsupport/console/internal/service/timeline"
)

type unit struct {
	timeline *timeline.Timeline
	epoch    uint64
}

// Engine composes the conversation directory with one timeline unit per
// conversation. Asynchronous completions (send acks, upload results) carry
// the epoch captured when they started; a deletion bumps the epoch so late
// results are discarded instead of mutating a closed conversation.
type Engine struct {
	mu      sync.Mutex
	agentID string
	sigTTL  time.Duration
	units   map[string]*unit
	epochs  map[string]uint64
	dir     *directory.Directory
	notify  func(Update)
}

// New creates an engine for the given agent identity.
func New(agentID string, signatureTTL time.Duration) *Engine {
	return &Engine{
		agentID: agentID,
		sigTTL:  signatureTTL,
		units:   make(map[string]*unit),
		epochs:  make(map[string]uint64),
		dir:     directory.New(agentID),
	}
}

// SetNotify installs the callback invoked after every state change. Must be
// set before events flow.
func (e *Engine) SetNotify(fn func(Update)) {
	e.notify = fn
}

// AgentID returns the local agent identity.
func (e *Engine) AgentID() string {
	return e.agentID
}

// Directory exposes the conversation directory.
func (e *Engine) Directory() *directory.Directory {
	return e.dir
}

func (e *Engine) unitFor(conversationID string) *unit {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.units[conversationID]
	if !ok {
		u = &unit{
			timeline: timeline.New(conversationID, e.sigTTL),
			epoch:    e.epochs[conversationID],
		}
		e.units[conversationID] = u
	}
	return u
}

func (e *Engine) lookup(conversationID string, epoch uint64) (*unit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.units[conversationID]
	if !ok || u.epoch != epoch {
		return nil, false
	}
	return u, true
}

func (e *Engine) emit(kind UpdateKind, conversationID string) {
	if e.notify != nil {
		e.notify(Update{Kind: kind, ConversationID: conversationID})
	}
}

// MergeDirectory upserts a normalized snapshot into the directory.
func (e *Engine) MergeDirectory(snapshot []chat.Conversation) {
	e.dir.Merge(snapshot)
	e.emit(UpdateDirectory, "")
}

// LoadHistory replaces a conversation's timeline with fetched history.
func (e *Engine) LoadHistory(conversationID string, messages []chat.Message) {
	e.unitFor(conversationID).timeline.LoadHistory(messages)
	e.emit(UpdateTimeline, conversationID)
}

// Timeline returns the reconciled message list for a conversation.
func (e *Engine) Timeline(conversationID string) []chat.Message {
	return e.unitFor(conversationID).timeline.Messages()
}

// Send inserts a pending message and returns the clientMessageId for the
// network call along with the epoch the completion must present.
func (e *Engine) Send(conversationID, content string, attachments []chat.Attachment) (clientID string, epoch uint64, msg chat.Message) {
	u := e.unitFor(conversationID)
	clientID, msg = u.timeline.Send(chat.SenderAgent, content, attachments)

	preview := previewText(content, attachments)
	at := msg.CreatedAt
	e.dir.ApplyPatch(conversationID, chat.ConversationPatch{
		LastMessagePreview: &preview,
		LastMessageAt:      &at,
	})

	e.emit(UpdateTimeline, conversationID)
	e.emit(UpdateDirectory, "")
	return clientID, u.epoch, msg
}

// Resolve applies a direct send acknowledgment. Completions presenting a
// stale epoch are discarded; the conversation was deleted in the meantime.
func (e *Engine) Resolve(conversationID string, epoch uint64, clientID string, confirmed chat.Message) bool {
	u, ok := e.lookup(conversationID, epoch)
	if !ok {
		logger.Debug("discarding late ack for closed conversation",
			zap.String("conversation_id", conversationID),
			zap.String("client_message_id", clientID))
		return false
	}
	if !u.timeline.Resolve(clientID, confirmed) {
		return false
	}
	e.emit(UpdateTimeline, conversationID)
	return true
}

// Fail marks a pending send as failed after its network call errored.
func (e *Engine) Fail(conversationID string, epoch uint64, clientID string) bool {
	u, ok := e.lookup(conversationID, epoch)
	if !ok {
		return false
	}
	if !u.timeline.Fail(clientID) {
		return false
	}
	e.emit(UpdateTimeline, conversationID)
	return true
}

// HandleEvent routes one normalized push-channel event to the owning state.
// Duplicate or out-of-order delivery is absorbed silently, never surfaced.
func (e *Engine) HandleEvent(ev Event) {
	switch ev.Type {
	case EventConversationPatched:
		if ev.Patch == nil {
			return
		}
		if !e.dir.ApplyPatch(ev.ConversationID, *ev.Patch) {
			e.dir.Merge([]chat.Conversation{conversationFromPatch(ev.ConversationID, *ev.Patch)})
		}
		e.emit(UpdateDirectory, "")

	case EventMessageCreated:
		if ev.Message == nil {
			return
		}
		u := e.unitFor(ev.ConversationID)
		if !u.timeline.Ingest(*ev.Message, ev.ReplacesClientMessageID) {
			return
		}
		preview := previewText(ev.Message.Content, ev.Message.Attachments)
		at := ev.Message.CreatedAt
		patch := chat.ConversationPatch{
			LastMessagePreview: &preview,
			LastMessageAt:      &at,
		}
		if !e.dir.ApplyPatch(ev.ConversationID, patch) {
			e.dir.Merge([]chat.Conversation{conversationFromPatch(ev.ConversationID, patch)})
		}
		if ev.Message.Sender == chat.SenderCustomer {
			e.dir.BumpUnread(ev.ConversationID)
		}
		e.emit(UpdateTimeline, ev.ConversationID)
		e.emit(UpdateDirectory, "")

	case EventReactionUpdated:
		u := e.unitFor(ev.ConversationID)
		if u.timeline.SetReactions(ev.MessageID, ev.Reactions) {
			e.emit(UpdateTimeline, ev.ConversationID)
		}

	default:
		logger.Warn("unknown push event type", zap.String("type", string(ev.Type)))
	}
}

// previewText derives the sidebar preview for a message. An attachment-only
// message shows its first attachment's name rather than a blank line.
func previewText(content string, attachments []chat.Attachment) string {
	if content != "" {
		return content
	}
	if len(attachments) > 0 {
		return attachments[0].Name
	}
	return ""
}

// conversationFromPatch seeds a directory entry from the first event that
// references a conversation the startup snapshot never contained, such as one
// created by a first customer contact mid-session.
func conversationFromPatch(conversationID string, patch chat.ConversationPatch) chat.Conversation {
	c := chat.Conversation{ID: conversationID, Status: chat.StatusUnassigned}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Contact != nil {
		c.Contact = *patch.Contact
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.AssigneeID != nil {
		c.AssigneeID = *patch.AssigneeID
	}
	if patch.LastMessagePreview != nil {
		c.LastMessagePreview = *patch.LastMessagePreview
	}
	if patch.LastMessageAt != nil {
		c.LastMessageAt = *patch.LastMessageAt
	}
	if patch.UnreadForAssignee != nil {
		c.UnreadForAssignee = *patch.UnreadForAssignee
	}
	return c
}

// ToggleReaction applies an optimistic local toggle and returns the prior
// list so a failed upstream call can revert it.
func (e *Engine) ToggleReaction(conversationID, messageID, userID, emoji string) (prev []chat.Reaction, ok bool) {
	u := e.unitFor(conversationID)
	prev, ok = u.timeline.Reactions(messageID)
	if !ok {
		return nil, false
	}
	u.timeline.SetReactions(messageID, reaction.Toggle(prev, userID, emoji))
	e.emit(UpdateTimeline, conversationID)
	return prev, true
}

// RevertReactions restores a reaction list captured before an optimistic
// toggle whose upstream call failed.
func (e *Engine) RevertReactions(conversationID, messageID string, prev []chat.Reaction) {
	u := e.unitFor(conversationID)
	if u.timeline.SetReactions(messageID, prev) {
		e.emit(UpdateTimeline, conversationID)
	}
}

// OpenConversation marks a conversation as open locally, resetting unread.
func (e *Engine) OpenConversation(conversationID string) {
	e.dir.SetOpen(conversationID)
	e.emit(UpdateDirectory, "")
}

// RemoveConversation optimistically deletes a conversation: the directory
// entry goes away, the timeline unit is dropped, and the epoch is bumped so
// in-flight completions for it are discarded. The removed entry and its
// position are returned for rollback.
func (e *Engine) RemoveConversation(conversationID string) (chat.Conversation, int, bool) {
	removed, idx, ok := e.dir.Remove(conversationID)
	if !ok {
		return chat.Conversation{}, 0, false
	}

	e.mu.Lock()
	delete(e.units, conversationID)
	e.epochs[conversationID]++
	e.mu.Unlock()

	e.emit(UpdateDirectory, "")
	return removed, idx, true
}

// RestoreConversation rolls back a failed deletion. The timeline starts
// empty under a fresh epoch; history is refetched on next open.
func (e *Engine) RestoreConversation(c chat.Conversation, index int) {
	e.dir.Restore(c, index)
	e.emit(UpdateDirectory, "")
}

// Epoch returns the current epoch for a conversation.
func (e *Engine) Epoch(conversationID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if u, ok := e.units[conversationID]; ok {
		return u.epoch
	}
	return e.epochs[conversationID]
}
