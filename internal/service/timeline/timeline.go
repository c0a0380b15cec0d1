package timeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborsupport/console/internal/model/chat"
)

// DefaultSignatureTTL bounds how long a content signature can stand in for a
// missing server id.
const DefaultSignatureTTL = 5 * time.Second

// Timeline is the ordered, duplicate-free message list for one conversation.
// It composes the dedup guard and the outbox tracker; all three share a
// single writer, the Timeline's own mutex.
//
// Ordering is append/replace-only. A confirmation replaces the pending entry
// at the position where it was first inserted, so the visible order reflects
// arrival order of first-seen content.
type Timeline struct {
	mu             sync.Mutex
	conversationID string
	entries        []chat.Message
	dedup          *DedupGuard
	outbox         *OutboxTracker
	now            func() time.Time
}

// New creates an empty timeline for the given conversation.
func New(conversationID string, signatureTTL time.Duration) *Timeline {
	if signatureTTL <= 0 {
		signatureTTL = DefaultSignatureTTL
	}
	return &Timeline{
		conversationID: conversationID,
		dedup:          NewDedupGuard(signatureTTL),
		outbox:         NewOutboxTracker(),
		now:            time.Now,
	}
}

// ConversationID returns the owning conversation.
func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// LoadHistory replaces the entire timeline with a fetched page of history
// and re-seeds the dedup guard with every server id present. Outbox
// bookkeeping is dropped along with the entries it pointed at.
func (t *Timeline) LoadHistory(messages []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make([]chat.Message, len(messages))
	copy(t.entries, messages)

	ids := make([]string, 0, len(messages))
	for i := range t.entries {
		if t.entries[i].Delivery == "" {
			t.entries[i].Delivery = chat.DeliveryConfirmed
		}
		if t.entries[i].ServerID != "" {
			ids = append(ids, t.entries[i].ServerID)
		}
	}
	t.dedup.Reset(ids)
	t.outbox.Clear()
}

// Send inserts a pending message at the tail and returns the generated
// clientMessageId for the network call together with the inserted entry.
func (t *Timeline) Send(sender chat.SenderRole, content string, attachments []chat.Attachment) (string, chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	clientID := uuid.NewString()
	msg := chat.Message{
		ClientMessageID: clientID,
		ConversationID:  t.conversationID,
		Sender:          sender,
		Content:         content,
		Attachments:     attachments,
		CreatedAt:       t.now().UTC(),
		Delivery:        chat.DeliveryPending,
	}
	t.entries = append(t.entries, msg)
	t.outbox.Track(clientID, len(t.entries)-1)
	return clientID, msg
}

// Resolve replaces the pending entry recorded for clientMessageID with its
// confirmed counterpart, preserving its position, and admits the confirmed
// server id. Resolving an unknown id is a silent no-op; both the direct ack
// and an equivalent push event may race here and the loser must do nothing.
func (t *Timeline) Resolve(clientMessageID string, confirmed chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(clientMessageID, confirmed)
}

func (t *Timeline) resolveLocked(clientMessageID string, confirmed chat.Message) bool {
	idx, ok := t.outbox.Lookup(clientMessageID)
	if !ok || idx >= len(t.entries) {
		return false
	}
	if t.dedup.Seen(confirmed.ServerID) {
		// The same message already entered through a push event that carried
		// no replacement marker. Keeping both would put the server id in the
		// timeline twice, so the pending entry is dropped instead.
		t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
		t.outbox.Forget(clientMessageID)
		t.outbox.Reindex(idx)
		return true
	}
	confirmed.ConversationID = t.conversationID
	confirmed.ClientMessageID = clientMessageID
	confirmed.Delivery = chat.DeliveryConfirmed
	t.entries[idx] = confirmed
	t.dedup.Admit(confirmed.ServerID)
	t.outbox.Forget(clientMessageID)
	return true
}

// Fail marks a pending send as failed after its network call errored. The
// outbox mapping is kept: if the server did process the send and a push
// event with a replacement marker arrives later, it still resolves in place
// instead of surfacing a duplicate.
func (t *Timeline) Fail(clientMessageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.outbox.Lookup(clientMessageID)
	if !ok || idx >= len(t.entries) {
		return false
	}
	t.entries[idx].Delivery = chat.DeliveryFailed
	return true
}

// Ingest applies a server-originated message. replacesClientMessageID is the
// replacement marker carried by push events that echo a send from this
// session; when it matches a tracked pending entry the event is a
// confirmation, not a new message.
func (t *Timeline) Ingest(incoming chat.Message, replacesClientMessageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if replacesClientMessageID != "" {
		if t.resolveLocked(replacesClientMessageID, incoming) {
			return true
		}
	}

	sig := Signature(incoming.Sender, incoming.Content, incoming.CreatedAt)
	if !t.dedup.ShouldAccept(incoming.ServerID, sig) {
		return false
	}

	incoming.ConversationID = t.conversationID
	incoming.Delivery = chat.DeliveryConfirmed
	t.entries = append(t.entries, incoming)
	t.dedup.Admit(incoming.ServerID)
	return true
}

// SetReactions applies the authoritative reaction list for one message. The
// server list replaces the local one wholesale; this is an overwrite, not a
// merge, so any number of optimistic toggles converges to the server state.
func (t *Timeline) SetReactions(serverID string, reactions []chat.Reaction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ServerID == serverID && serverID != "" {
			t.entries[i].Reactions = append([]chat.Reaction(nil), reactions...)
			return true
		}
	}
	return false
}

// Reactions returns a copy of the current reaction list for one message.
func (t *Timeline) Reactions(serverID string) ([]chat.Reaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ServerID == serverID && serverID != "" {
			return append([]chat.Reaction(nil), t.entries[i].Reactions...), true
		}
	}
	return nil, false
}

// Messages returns a copy of the timeline in order.
func (t *Timeline) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chat.Message(nil), t.entries...)
}

// PendingCount reports how many sends still await confirmation.
func (t *Timeline) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outbox.Len()
}
