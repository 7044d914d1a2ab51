// Package aggregates summarizes the interactions the graph has collected
// for notes and formats counts for display.
package aggregates

import (
	"cmp"
	"slices"

	"github.com/sandwichfarm/quartz/internal/cache"
)

// Summary of the interactions on one note
type Summary struct {
	Key            string
	ReplyCount     int
	ReactionTotal  int
	ReactionCounts map[string]int
	BoostCount     int
	ZapSatsTotal   int64
}

// Summarize reads a note's current interaction counts
func Summarize(note *cache.Note) Summary {
	counts := note.ReactionCounts()
	total := 0
	for _, c := range counts {
		total += c
	}
	return Summary{
		Key:            note.Key(),
		ReplyCount:     note.ReplyCount(),
		ReactionTotal:  total,
		ReactionCounts: counts,
		BoostCount:     len(note.Boosts()),
		ZapSatsTotal:   note.ZapTotalSats(),
	}
}

// HasInteractions returns true if the note has any interactions
func (s Summary) HasInteractions() bool {
	return s.ReplyCount > 0 || s.ReactionTotal > 0 || s.BoostCount > 0 || s.ZapSatsTotal > 0
}

// InteractionScore returns a simple score for sorting by interaction
func (s Summary) InteractionScore() int64 {
	// Weight: 1 point per reply, reaction and boost, 0.001 per sat
	score := int64(s.ReplyCount + s.ReactionTotal + s.BoostCount)
	score += s.ZapSatsTotal / 1000
	return score
}

// ReactionStat is a reaction symbol and its count
type ReactionStat struct {
	Symbol string
	Count  int
}

// TopReactions returns the most used reactions, most used first. limit <= 0
// returns all of them.
func (s Summary) TopReactions(limit int) []ReactionStat {
	stats := make([]ReactionStat, 0, len(s.ReactionCounts))
	for symbol, count := range s.ReactionCounts {
		stats = append(stats, ReactionStat{Symbol: symbol, Count: count})
	}
	slices.SortFunc(stats, func(a, b ReactionStat) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})

	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}
