package reaction

import (
	"reflect"
	"testing"

	"github.com/harborsupport/console/internal/model/chat"
)

func TestToggleIsInvolution(t *testing.T) {
	var rs []chat.Reaction
	rs = Toggle(rs, "u1", "👍")
	rs = Toggle(rs, "u1", "👍")

	if len(rs) != 0 {
		t.Fatalf("double toggle must restore the original state, got %+v", rs)
	}
}

func TestToggleReplacesExistingReaction(t *testing.T) {
	rs := Toggle(nil, "u1", "👍")
	rs = Toggle(rs, "u1", "😡")

	groups := Groups(rs)
	if len(groups) != 1 {
		t.Fatalf("a second emoji must replace, not append: %+v", groups)
	}
	if groups[0].Emoji != "😡" || groups[0].Count != 1 {
		t.Fatalf("unexpected group: %+v", groups[0])
	}
	if !reflect.DeepEqual(groups[0].UserIDs, []string{"u1"}) {
		t.Fatalf("unexpected users: %+v", groups[0].UserIDs)
	}
}

func TestToggleDoesNotTouchOtherUsers(t *testing.T) {
	rs := []chat.Reaction{
		{UserID: "u1", Emoji: "👍"},
		{UserID: "u2", Emoji: "👍"},
	}
	rs = Toggle(rs, "u1", "👍")

	if len(rs) != 1 || rs[0].UserID != "u2" {
		t.Fatalf("other users' reactions must survive: %+v", rs)
	}
}

func TestGroupsCountMatchesUsers(t *testing.T) {
	rs := []chat.Reaction{
		{UserID: "u1", Emoji: "👍"},
		{UserID: "u2", Emoji: "👍"},
		{UserID: "u3", Emoji: "🎉"},
	}

	for _, g := range Groups(rs) {
		if g.Count != len(g.UserIDs) {
			t.Fatalf("count %d does not match users %v for %s", g.Count, g.UserIDs, g.Emoji)
		}
	}
}

func TestGroupsSortedByCountThenEmoji(t *testing.T) {
	rs := []chat.Reaction{
		{UserID: "u1", Emoji: "🎉"},
		{UserID: "u2", Emoji: "👀"},
		{UserID: "u3", Emoji: "👍"},
		{UserID: "u4", Emoji: "👍"},
	}

	groups := Groups(rs)
	if groups[0].Emoji != "👍" || groups[0].Count != 2 {
		t.Fatalf("highest count must sort first: %+v", groups)
	}
	// The two singletons tie on count and must sort by emoji ascending.
	if groups[1].Emoji >= groups[2].Emoji {
		t.Fatalf("tie-break must be emoji ascending: %+v", groups)
	}
}

func TestGroupsEmptyInput(t *testing.T) {
	if got := Groups(nil); len(got) != 0 {
		t.Fatalf("no reactions must produce no groups, got %+v", got)
	}
}
