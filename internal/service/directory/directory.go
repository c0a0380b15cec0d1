// Package directory maintains the filtered, sorted conversation list shown
// in the console sidebar.
package directory

import (
	"sort"
	"strings"
	"sync"

	"github.com/harborsupport/console/internal/model/chat"
)

// Directory holds every known conversation and serves filtered views of it.
// Snapshots are merged in, push patches are applied in place, and deletions
// are optimistic with an explicit restore path for rollback.
type Directory struct {
	mu      sync.RWMutex
	agentID string
	items   []chat.Conversation
	openID  string
}

// New creates an empty directory for the given agent identity. The agent id
// drives the "mine" tab filter.
func New(agentID string) *Directory {
	return &Directory{agentID: agentID}
}

// Merge upserts a normalized snapshot into the directory. Existing entries
// are replaced field-for-field; unknown ids are appended.
func (d *Directory) Merge(snapshot []chat.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, incoming := range snapshot {
		if incoming.ID == "" {
			continue
		}
		if incoming.ID == d.openID {
			incoming.UnreadForAssignee = 0
		}
		if idx := d.indexOf(incoming.ID); idx >= 0 {
			d.items[idx] = incoming
		} else {
			d.items = append(d.items, incoming)
		}
	}
}

// List returns the conversations matching the tab and query, sorted by last
// activity descending.
func (d *Directory) List(tab chat.Tab, query string) []chat.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]chat.Conversation, 0, len(d.items))
	for _, c := range d.items {
		if !d.matchesTab(c, tab) {
			continue
		}
		if query != "" && !matchesQuery(c, query) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

func (d *Directory) matchesTab(c chat.Conversation, tab chat.Tab) bool {
	switch tab {
	case chat.TabUnassigned:
		return c.Status == chat.StatusUnassigned
	case chat.TabMine:
		return c.AssigneeID == d.agentID && c.Status != chat.StatusResolved
	default:
		return true
	}
}

func matchesQuery(c chat.Conversation, query string) bool {
	return strings.Contains(strings.ToLower(c.Name), query) ||
		strings.Contains(strings.ToLower(c.Contact), query) ||
		strings.Contains(strings.ToLower(c.LastMessagePreview), query)
}

// ApplyPatch updates a conversation in place. When the patched conversation
// is the one currently open locally, its unread count is forced back to
// zero no matter what the patch says.
func (d *Directory) ApplyPatch(conversationID string, patch chat.ConversationPatch) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexOf(conversationID)
	if idx < 0 {
		return false
	}

	c := &d.items[idx]
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
	if conversationID == d.openID {
		c.UnreadForAssignee = 0
	}
	return true
}

// BumpUnread increments the unread counter for a conversation unless it is
// the one currently open locally.
func (d *Directory) BumpUnread(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexOf(conversationID)
	if idx < 0 {
		return false
	}
	if conversationID != d.openID {
		d.items[idx].UnreadForAssignee++
	}
	return true
}

// SetOpen marks a conversation as the one currently open locally and zeroes
// its unread count. An empty id means nothing is open.
func (d *Directory) SetOpen(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.openID = conversationID
	if idx := d.indexOf(conversationID); idx >= 0 {
		d.items[idx].UnreadForAssignee = 0
	}
}

// Open returns the id of the conversation currently open locally.
func (d *Directory) Open() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.openID
}

// Get returns one conversation by id.
func (d *Directory) Get(conversationID string) (chat.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if idx := d.indexOf(conversationID); idx >= 0 {
		return d.items[idx], true
	}
	return chat.Conversation{}, false
}

// Remove deletes a conversation optimistically, before the network call
// confirming the deletion completes. It returns the removed entry and its
// position so a failed deletion can be rolled back with Restore.
func (d *Directory) Remove(conversationID string) (chat.Conversation, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexOf(conversationID)
	if idx < 0 {
		return chat.Conversation{}, 0, false
	}
	removed := d.items[idx]
	d.items = append(d.items[:idx], d.items[idx+1:]...)
	if d.openID == conversationID {
		d.openID = ""
	}
	return removed, idx, true
}

// Restore re-inserts a conversation removed by Remove at its prior position.
func (d *Directory) Restore(c chat.Conversation, index int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index < 0 || index > len(d.items) {
		index = len(d.items)
	}
	d.items = append(d.items, chat.Conversation{})
	copy(d.items[index+1:], d.items[index:])
	d.items[index] = c
}

// Len reports how many conversations are known.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items)
}

func (d *Directory) indexOf(conversationID string) int {
	for i := range d.items {
		if d.items[i].ID == conversationID {
			return i
		}
	}
	return -1
}
