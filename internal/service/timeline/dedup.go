package timeline

import (
	"fmt"
	"time"

	"github.com/harborsupport/console/internal/model/chat"
)

// signatureBucket is the coarse timestamp bucket used for signature-based
// dedup. It only needs to cover the brief race window between a fetch and a
// push event delivering the same not-yet-identified message.
const signatureBucket = 2 * time.Second

// Signature derives the content fingerprint used when no server id is known
// yet.
func Signature(sender chat.SenderRole, content string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%d", sender, content, at.Truncate(signatureBucket).Unix())
}

// DedupGuard tracks which server ids and content signatures have already
// been admitted to a timeline. It is not safe for concurrent use on its own;
// the owning Timeline serializes access.
type DedupGuard struct {
	seen map[string]struct{}
	sigs map[string]time.Time // signature -> expiry
	ttl  time.Duration
	now  func() time.Time
}

// NewDedupGuard creates a guard whose signature entries expire after ttl.
func NewDedupGuard(ttl time.Duration) *DedupGuard {
	return &DedupGuard{
		seen: make(map[string]struct{}),
		sigs: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen reports whether a server id has already been admitted.
func (g *DedupGuard) Seen(serverID string) bool {
	if serverID == "" {
		return false
	}
	_, ok := g.seen[serverID]
	return ok
}

// Admit records a server id as seen. Idempotent.
func (g *DedupGuard) Admit(serverID string) {
	if serverID == "" {
		return
	}
	g.seen[serverID] = struct{}{}
}

// Reset forgets everything, then admits the given server ids. Used when a
// history fetch replaces the whole timeline.
func (g *DedupGuard) Reset(serverIDs []string) {
	g.seen = make(map[string]struct{}, len(serverIDs))
	g.sigs = make(map[string]time.Time)
	for _, id := range serverIDs {
		g.Admit(id)
	}
}

// ShouldAccept decides whether an incoming message may enter the timeline.
// With a server id the decision is a plain seen-set lookup. Without one the
// signature map covers the race window: the first sighting records the
// signature and is accepted, later sightings inside the TTL are rejected.
// Expiry is lazy; an expired entry counts as absent whether or not it has
// been physically removed.
func (g *DedupGuard) ShouldAccept(serverID, signature string) bool {
	if serverID != "" {
		_, dup := g.seen[serverID]
		return !dup
	}
	if exp, ok := g.sigs[signature]; ok && g.now().Before(exp) {
		return false
	}
	g.sigs[signature] = g.now().Add(g.ttl)
	return true
}
