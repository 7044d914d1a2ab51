package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sandwichfarm/quartz/internal/aggregates"
	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/entities"
	"github.com/sandwichfarm/quartz/internal/event"
)

func (s *session) authorName(pubkey string) string {
	if u, ok := s.store.User(pubkey); ok {
		return u.DisplayName()
	}
	return s.store.GetOrCreateUser(pubkey).DisplayName()
}

// printNote writes a note with its author, readable references and
// interaction counters, indented by depth
func (s *session) printNote(w io.Writer, note *cache.Note, depth int) {
	ev := note.Event()
	if ev == nil {
		return
	}
	indent := strings.Repeat("  ", depth)

	content, err := s.account.DecryptContent(note)
	if err != nil {
		content = "(encrypted)"
	}
	if r, ok := note.Payload().(*event.Repost); ok && len(r.Boosted) > 0 {
		if boosted, ok := s.store.Note(r.Boosted[0]); ok && boosted.Loaded() {
			content = "boosted " + s.authorName(boosted.Author()) + ": " + boosted.Event().Content
		}
	}
	content = s.resolver.ReplaceEntities(content, func(e *entities.Entity) string {
		if e.Target == entities.TargetUser {
			return "@" + e.DisplayName
		}
		return "[" + e.DisplayName + "]"
	})

	when := ev.CreatedAt.Time().Format(time.DateTime)
	fmt.Fprintf(w, "%s%s  %s  %s\n", indent, s.authorName(note.Author()), when, note.Bech32())
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		fmt.Fprintf(w, "%s  %s\n", indent, line)
	}

	sum := aggregates.Summarize(note)
	if !sum.HasInteractions() {
		return
	}
	parts := make([]string, 0, 4)
	if c := aggregates.ShowCount(sum.ReplyCount); c != "" {
		parts = append(parts, c+" replies")
	}
	if c := aggregates.ShowCount(sum.BoostCount); c != "" {
		parts = append(parts, c+" boosts")
	}
	for _, r := range sum.TopReactions(3) {
		parts = append(parts, r.Symbol+" "+aggregates.ShowCount(r.Count))
	}
	if sum.ZapSatsTotal > 0 {
		parts = append(parts, "⚡"+aggregates.ShowAmount(float64(sum.ZapSatsTotal)))
	}
	fmt.Fprintf(w, "%s  [%s]\n", indent, strings.Join(parts, ", "))
}
