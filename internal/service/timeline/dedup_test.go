package timeline

import (
	"testing"
	"time"

	"github.com/harborsupport/console/internal/model/chat"
)

func TestDedupGuardRejectsSeenServerID(t *testing.T) {
	g := NewDedupGuard(time.Second)
	g.Admit("42")

	if g.ShouldAccept("42", "") {
		t.Fatal("admitted server id must be rejected")
	}
	if !g.ShouldAccept("43", "") {
		t.Fatal("unseen server id must be accepted")
	}
}

func TestDedupGuardAdmitIdempotent(t *testing.T) {
	g := NewDedupGuard(time.Second)
	g.Admit("42")
	g.Admit("42")

	if g.ShouldAccept("42", "") {
		t.Fatal("double admit must still reject")
	}
}

func TestDedupGuardSignatureWindow(t *testing.T) {
	g := NewDedupGuard(3 * time.Second)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := base
	g.now = func() time.Time { return now }

	sig := Signature(chat.SenderCustomer, "hi there", base)
	if !g.ShouldAccept("", sig) {
		t.Fatal("first sighting must be accepted")
	}
	if g.ShouldAccept("", sig) {
		t.Fatal("second sighting inside TTL must be rejected")
	}

	// Lazy eviction: once the TTL has elapsed the signature counts as absent.
	now = base.Add(4 * time.Second)
	if !g.ShouldAccept("", sig) {
		t.Fatal("expired signature must be accepted again")
	}
}

func TestDedupGuardResetReseeds(t *testing.T) {
	g := NewDedupGuard(time.Second)
	g.Admit("old")
	g.Reset([]string{"a", "b"})

	if !g.ShouldAccept("old", "") {
		t.Fatal("reset must forget previously admitted ids")
	}
	if g.ShouldAccept("a", "") || g.ShouldAccept("b", "") {
		t.Fatal("reset must admit the reseeded ids")
	}
}

func TestSignatureBucketsCoarsely(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	a := Signature(chat.SenderAgent, "hello", at)
	b := Signature(chat.SenderAgent, "hello", at.Add(500*time.Millisecond))
	if a != b {
		t.Fatalf("timestamps in the same bucket must share a signature: %s vs %s", a, b)
	}

	c := Signature(chat.SenderCustomer, "hello", at)
	if a == c {
		t.Fatal("sender role must be part of the signature")
	}
}
