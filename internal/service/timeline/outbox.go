package timeline

// OutboxTracker remembers where each locally sent, not-yet-confirmed message
// sits in the timeline so that its confirmation can replace it in place.
// Like DedupGuard it relies on the owning Timeline for serialization.
type OutboxTracker struct {
	pending map[string]int // clientMessageID -> timeline index
}

// NewOutboxTracker returns an empty tracker.
func NewOutboxTracker() *OutboxTracker {
	return &OutboxTracker{pending: make(map[string]int)}
}

// Track records the timeline position of a pending send.
func (o *OutboxTracker) Track(clientMessageID string, index int) {
	o.pending[clientMessageID] = index
}

// Lookup returns the recorded position for a pending send.
func (o *OutboxTracker) Lookup(clientMessageID string) (int, bool) {
	idx, ok := o.pending[clientMessageID]
	return idx, ok
}

// Forget drops the bookkeeping for a resolved send. Forgetting an unknown id
// is a no-op; that is exactly what absorbs the ack/push race, whichever
// arrives second finds nothing to do.
func (o *OutboxTracker) Forget(clientMessageID string) {
	delete(o.pending, clientMessageID)
}

// Reindex decrements every recorded position greater than index. Called
// after an entry below a pending send is removed from the timeline.
func (o *OutboxTracker) Reindex(index int) {
	for id, idx := range o.pending {
		if idx > index {
			o.pending[id] = idx - 1
		}
	}
}

// Clear drops all bookkeeping. Used when a history fetch replaces the
// timeline and the recorded indexes no longer mean anything.
func (o *OutboxTracker) Clear() {
	o.pending = make(map[string]int)
}

// Len reports how many sends are still awaiting confirmation.
func (o *OutboxTracker) Len() int {
	return len(o.pending)
}
