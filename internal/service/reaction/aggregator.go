// Package reaction reduces flat per-user reaction lists into display-ready
// summaries and implements the one-reaction-per-user toggle semantics.
package reaction

import (
	"sort"

	"github.com/harborsupport/console/internal/model/chat"
)

// Group is one row of the grouped summary shown under a message.
type Group struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// Toggle applies one user's optimistic toggle to a reaction list and returns
// the resulting list. Toggling the emoji the user already has removes it;
// any other emoji replaces the user's existing reaction, never appends a
// second one. The input slice is not mutated.
func Toggle(reactions []chat.Reaction, userID, emoji string) []chat.Reaction {
	out := make([]chat.Reaction, 0, len(reactions)+1)
	removed := false
	for _, r := range reactions {
		if r.UserID == userID {
			if r.Emoji == emoji {
				removed = true
			}
			continue
		}
		out = append(out, r)
	}
	if !removed {
		out = append(out, chat.Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}

// Groups collapses a flat reaction list into one entry per distinct emoji,
// sorted by count descending then emoji ascending. The tie-break keeps
// rendering and assertions stable.
func Groups(reactions []chat.Reaction) []Group {
	byEmoji := make(map[string]*Group)
	order := make([]string, 0, len(reactions))
	for _, r := range reactions {
		g, ok := byEmoji[r.Emoji]
		if !ok {
			g = &Group{Emoji: r.Emoji}
			byEmoji[r.Emoji] = g
			order = append(order, r.Emoji)
		}
		g.Count++
		g.UserIDs = append(g.UserIDs, r.UserID)
	}

	out := make([]Group, 0, len(order))
	for _, emoji := range order {
		out = append(out, *byEmoji[emoji])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out
}
