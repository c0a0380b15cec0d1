package timeline_test

import (
	"testing"
	"time"

	"github.com/harborsupport/console/internal/model/chat"
	"github.com/harborsupport/console/internal/service/timeline"
)

func confirmed(serverID, content string, clientID string) chat.Message {
	return chat.Message{
		ServerID:        serverID,
		ClientMessageID: clientID,
		Sender:          chat.SenderAgent,
		Content:         content,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestSendThenAckReplacesInPlace(t *testing.T) {
	tl := timeline.New("conv-1", 0)

	clientID, msg := tl.Send(chat.SenderAgent, "Hello", nil)
	if !msg.Pending() {
		t.Fatal("fresh send must be pending")
	}
	if got := tl.Messages(); len(got) != 1 || got[0].ClientMessageID != clientID {
		t.Fatalf("unexpected timeline after send: %+v", got)
	}

	if !tl.Resolve(clientID, confirmed("42", "Hello", clientID)) {
		t.Fatal("resolve must succeed for a tracked send")
	}

	got := tl.Messages()
	if len(got) != 1 {
		t.Fatalf("resolve must not change length, got %d entries", len(got))
	}
	if got[0].ServerID != "42" || got[0].Delivery != chat.DeliveryConfirmed {
		t.Fatalf("entry not confirmed in place: %+v", got[0])
	}
	if tl.PendingCount() != 0 {
		t.Fatal("outbox must be empty after resolve")
	}
}

func TestPushBeforeAckSameEndState(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	clientID, _ := tl.Send(chat.SenderAgent, "Hello", nil)

	// The push event carrying the replacement marker wins the race.
	if !tl.Ingest(confirmed("42", "Hello", clientID), clientID) {
		t.Fatal("push with replacement marker must resolve the pending entry")
	}

	// The direct acknowledgment arrives second and must be a no-op.
	if tl.Resolve(clientID, confirmed("42", "Hello", clientID)) {
		t.Fatal("second resolution must find nothing to do")
	}

	got := tl.Messages()
	if len(got) != 1 {
		t.Fatalf("duplicate entry after race, got %d entries", len(got))
	}
	if got[0].ServerID != "42" || got[0].Delivery != chat.DeliveryConfirmed {
		t.Fatalf("unexpected end state: %+v", got[0])
	}
}

func TestAckBeforePushDropsDuplicatePush(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	clientID, _ := tl.Send(chat.SenderAgent, "Hello", nil)

	if !tl.Resolve(clientID, confirmed("42", "Hello", clientID)) {
		t.Fatal("resolve must succeed")
	}
	if tl.Ingest(confirmed("42", "Hello", clientID), clientID) {
		t.Fatal("push after ack must be dropped")
	}
	if got := tl.Messages(); len(got) != 1 {
		t.Fatalf("expected single entry, got %d", len(got))
	}
}

func TestIngestIdempotentByServerID(t *testing.T) {
	tl := timeline.New("conv-1", 0)

	msg := confirmed("7", "ping", "")
	if !tl.Ingest(msg, "") {
		t.Fatal("first ingest must be accepted")
	}
	if tl.Ingest(msg, "") {
		t.Fatal("identical event must be dropped the second time")
	}
	if got := tl.Messages(); len(got) != 1 {
		t.Fatalf("timeline changed by duplicate ingest: %d entries", len(got))
	}
}

func TestIngestSignatureRaceWithoutServerID(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	at := time.Now().UTC()

	first := chat.Message{Sender: chat.SenderCustomer, Content: "same text", CreatedAt: at}
	second := chat.Message{Sender: chat.SenderCustomer, Content: "same text", CreatedAt: at}

	if !tl.Ingest(first, "") {
		t.Fatal("first sighting must be accepted")
	}
	if tl.Ingest(second, "") {
		t.Fatal("same content inside the signature window must be dropped")
	}
}

func TestIngestAppendsAtTail(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	tl.Ingest(confirmed("1", "a", ""), "")
	tl.Ingest(confirmed("2", "b", ""), "")

	got := tl.Messages()
	if len(got) != 2 || got[0].ServerID != "1" || got[1].ServerID != "2" {
		t.Fatalf("order must reflect arrival order: %+v", got)
	}
}

func TestLoadHistoryReplacesAndReseedsDedup(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	tl.Send(chat.SenderAgent, "stale pending", nil)

	tl.LoadHistory([]chat.Message{
		confirmed("10", "first", ""),
		confirmed("11", "second", ""),
	})

	got := tl.Messages()
	if len(got) != 2 {
		t.Fatalf("history must fully replace the timeline, got %d entries", len(got))
	}
	if tl.PendingCount() != 0 {
		t.Fatal("outbox must be cleared by a full replace")
	}

	// Ids present in the history must be rejected on re-delivery.
	if tl.Ingest(confirmed("10", "first", ""), "") {
		t.Fatal("history ids must be admitted to the dedup guard")
	}
}

func TestFailMarksEntryAndKeepsPosition(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	tl.Ingest(confirmed("1", "before", ""), "")
	clientID, _ := tl.Send(chat.SenderAgent, "doomed", nil)

	if !tl.Fail(clientID) {
		t.Fatal("fail must find the pending entry")
	}

	got := tl.Messages()
	if got[1].Delivery != chat.DeliveryFailed {
		t.Fatalf("entry not marked failed: %+v", got[1])
	}

	// A late confirmation still resolves in place rather than duplicating.
	if !tl.Ingest(confirmed("42", "doomed", clientID), clientID) {
		t.Fatal("late confirmation must resolve the failed entry")
	}
	got = tl.Messages()
	if len(got) != 2 || got[1].ServerID != "42" || got[1].Delivery != chat.DeliveryConfirmed {
		t.Fatalf("late confirmation mishandled: %+v", got)
	}
}

func TestUnmarkedPushThenAckKeepsServerIDUnique(t *testing.T) {
	// A push event is not required to carry a replacement marker. When the
	// unmarked echo of an own send arrives before the direct acknowledgment,
	// it is appended as a new entry; the ack must then drop the pending entry
	// instead of confirming it with an already-admitted server id.
	tl := timeline.New("conv-1", 0)
	clientID, _ := tl.Send(chat.SenderAgent, "Hello", nil)

	if !tl.Ingest(confirmed("42", "Hello", ""), "") {
		t.Fatal("unmarked push must be accepted as a new entry")
	}
	if !tl.Resolve(clientID, confirmed("42", "Hello", clientID)) {
		t.Fatal("ack must be absorbed, not ignored")
	}

	got := tl.Messages()
	count := 0
	for _, m := range got {
		if m.ServerID == "42" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("server id 42 must appear exactly once, got %d entries: %+v", count, got)
	}
	if tl.PendingCount() != 0 {
		t.Fatal("the dropped send must leave no outbox entry")
	}
}

func TestDroppedPendingEntryReindexesLaterSends(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	firstID, _ := tl.Send(chat.SenderAgent, "first", nil)
	secondID, _ := tl.Send(chat.SenderAgent, "second", nil)

	// Unmarked echo of the first send, then its ack: the first pending entry
	// is dropped and everything after it shifts down one position.
	tl.Ingest(confirmed("42", "first", ""), "")
	tl.Resolve(firstID, confirmed("42", "first", firstID))

	if !tl.Resolve(secondID, confirmed("43", "second", secondID)) {
		t.Fatal("second send must still resolve after the shift")
	}

	got := tl.Messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	if got[0].ServerID != "43" || got[1].ServerID != "42" {
		t.Fatalf("second send resolved at the wrong position: %+v", got)
	}
}

func TestReplacementMarkerForUnknownClientIDFallsThrough(t *testing.T) {
	// A replacement marker from another session of the same agent does not
	// match any pending entry here and must be treated as a normal message.
	tl := timeline.New("conv-1", 0)

	if !tl.Ingest(confirmed("42", "from elsewhere", "other-session"), "other-session") {
		t.Fatal("unmatched replacement must fall through to a normal append")
	}
	if got := tl.Messages(); len(got) != 1 || got[0].ServerID != "42" {
		t.Fatalf("unexpected timeline: %+v", got)
	}
}

func TestSetReactionsOverwrites(t *testing.T) {
	tl := timeline.New("conv-1", 0)
	tl.Ingest(confirmed("9", "react to me", ""), "")

	if !tl.SetReactions("9", []chat.Reaction{{UserID: "u1", Emoji: "👍"}}) {
		t.Fatal("set reactions must find the entry")
	}
	if !tl.SetReactions("9", []chat.Reaction{{UserID: "u2", Emoji: "🎉"}}) {
		t.Fatal("second overwrite must succeed")
	}

	rs, ok := tl.Reactions("9")
	if !ok || len(rs) != 1 || rs[0].UserID != "u2" {
		t.Fatalf("authoritative overwrite must replace, not merge: %+v", rs)
	}

	if tl.SetReactions("missing", nil) {
		t.Fatal("unknown message id must report false")
	}
}
