package aggregates

import (
	"cmp"
	"slices"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

// SortMode orders a list of notes
type SortMode string

const (
	SortChronological SortMode = "chronological"
	SortEngagement    SortMode = "engagement"
	SortZaps          SortMode = "zaps"
	SortReactions     SortMode = "reactions"
)

// ContentFilter drops notes with too little engagement. Zero fields are off.
type ContentFilter struct {
	MinReactions       int
	MinZapSats         int64
	MinEngagement      int64
	HideNoInteractions bool
}

// Passes checks if a summary passes the filter
func (f ContentFilter) Passes(s Summary) bool {
	if f.MinReactions > 0 && s.ReactionTotal < f.MinReactions {
		return false
	}
	if f.MinZapSats > 0 && s.ZapSatsTotal < f.MinZapSats {
		return false
	}
	if f.MinEngagement > 0 && s.InteractionScore() < f.MinEngagement {
		return false
	}
	if f.HideNoInteractions && !s.HasInteractions() {
		return false
	}
	return true
}

// EnrichedNote is a note with its interaction summary
type EnrichedNote struct {
	Note    *cache.Note
	Summary Summary
}

// Enrich summarizes notes, keeping their order
func Enrich(notes []*cache.Note) []*EnrichedNote {
	enriched := make([]*EnrichedNote, 0, len(notes))
	for _, n := range notes {
		enriched = append(enriched, &EnrichedNote{Note: n, Summary: Summarize(n)})
	}
	return enriched
}

// FilterAndSort applies the filter then orders by mode. Chronological is
// newest first; the other modes keep that order between equals.
func FilterAndSort(enriched []*EnrichedNote, filter ContentFilter, mode SortMode) []*EnrichedNote {
	out := make([]*EnrichedNote, 0, len(enriched))
	for _, e := range enriched {
		if filter.Passes(e.Summary) {
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b *EnrichedNote) int {
		return cmp.Compare(b.Note.CreatedAt(), a.Note.CreatedAt())
	})

	var key func(*EnrichedNote) int64
	switch mode {
	case SortEngagement:
		key = func(e *EnrichedNote) int64 { return e.Summary.InteractionScore() }
	case SortZaps:
		key = func(e *EnrichedNote) int64 { return e.Summary.ZapSatsTotal }
	case SortReactions:
		key = func(e *EnrichedNote) int64 { return int64(e.Summary.ReactionTotal) }
	default:
		return out
	}
	slices.SortStableFunc(out, func(a, b *EnrichedNote) int {
		return cmp.Compare(key(b), key(a))
	})
	return out
}

// Popular returns the limit most engaging loaded notes of the store
func Popular(store *cache.Store, limit int) []*EnrichedNote {
	notes := make([]*cache.Note, 0)
	for n := range store.Notes() {
		if n.Loaded() && !n.IsDeleted() {
			switch event.Kind(n.Kind()) {
			case event.KindTextNote, event.KindLongTextNote:
				notes = append(notes, n)
			}
		}
	}

	popular := FilterAndSort(Enrich(notes), ContentFilter{HideNoInteractions: true}, SortEngagement)
	if limit > 0 && len(popular) > limit {
		popular = popular[:limit]
	}
	return popular
}

// ThreadNode is a note in a thread tree
type ThreadNode struct {
	Note     *cache.Note
	Summary  Summary
	Children []*ThreadNode
}

// ThreadView is a full thread with its root and nested replies
type ThreadView struct {
	Root    *ThreadNode
	FocusID string
}

// Thread builds the thread a note belongs to from the graph. It returns
// nil when the note was never loaded.
func Thread(store *cache.Store, noteID string) *ThreadView {
	focus, ok := store.Note(noteID)
	if !ok || !focus.Loaded() {
		return nil
	}

	root := focus
	if info, err := event.ParseThreadInfo(focus.Event()); err == nil && info.RootEventID != "" {
		// Fallback to focus as root if root not found
		if n, ok := store.Note(info.RootEventID); ok && n.Loaded() {
			root = n
		}
	}

	rootNode := &ThreadNode{Note: root, Summary: Summarize(root)}
	nodes := map[string]*ThreadNode{root.Key(): rootNode}
	parents := make(map[string]string)

	// First pass: collect every reply below the root
	queue := []*cache.Note{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, key := range current.Replies() {
			if _, seen := nodes[key]; seen {
				continue
			}
			reply, ok := store.Note(key)
			if !ok || !reply.Loaded() || reply.IsDeleted() {
				continue
			}
			nodes[key] = &ThreadNode{Note: reply, Summary: Summarize(reply)}
			parents[key] = current.Key()
			if info, err := event.ParseThreadInfo(reply.Event()); err == nil && info.ReplyToID != "" {
				parents[key] = info.ReplyToID
			}
			queue = append(queue, reply)
		}
	}

	// Second pass: attach children to parents
	for key, node := range nodes {
		if node == rootNode {
			continue
		}
		parent, ok := nodes[parents[key]]
		if !ok || parent == node {
			parent = rootNode
		}
		parent.Children = append(parent.Children, node)
	}
	sortThreadNodes(rootNode)

	return &ThreadView{Root: rootNode, FocusID: noteID}
}

// sortThreadNodes orders children chronologically for readability
func sortThreadNodes(node *ThreadNode) {
	slices.SortFunc(node.Children, func(a, b *ThreadNode) int {
		if c := cmp.Compare(a.Note.CreatedAt(), b.Note.CreatedAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.Note.Key(), b.Note.Key())
	})
	for _, child := range node.Children {
		sortThreadNodes(child)
	}
}

// Walk visits the thread depth first with each node's depth
func (v *ThreadView) Walk(fn func(node *ThreadNode, depth int)) {
	var walk func(n *ThreadNode, depth int)
	walk = func(n *ThreadNode, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(v.Root, 0)
}
