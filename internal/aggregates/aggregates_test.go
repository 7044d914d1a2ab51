package aggregates

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

type author struct {
	sk string
	pk string
}

func newAuthor() author {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	return author{sk: sk, pk: pk}
}

func (a author) publish(t *testing.T, store *cache.Store, ev nostr.Event, at int64) *nostr.Event {
	t.Helper()
	ev.CreatedAt = nostr.Timestamp(at)
	if ev.Tags == nil {
		ev.Tags = nostr.Tags{}
	}
	if err := ev.Sign(a.sk); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	store.Consume(&ev, "wss://a")
	return &ev
}

func TestSummarize(t *testing.T) {
	store := cache.New(nil, nil)
	alice, bob, carol := newAuthor(), newAuthor(), newAuthor()

	root := alice.publish(t, store, nostr.Event{Kind: 1, Content: "gm"}, 100)
	ref := event.RefTo(root)
	bob.publish(t, store, event.NewReaction(ref, "+"), 110)
	carol.publish(t, store, event.NewReaction(ref, "+"), 111)
	carol.publish(t, store, event.NewReaction(ref, "🤙"), 112)
	bob.publish(t, store, event.NewTextNote("gm alice", []event.Ref{ref}, []string{alice.pk}), 120)
	carol.publish(t, store, event.NewRepost(root), 130)

	note, _ := store.Note(root.ID)
	s := Summarize(note)

	if s.ReplyCount != 1 {
		t.Errorf("ReplyCount = %d, want 1", s.ReplyCount)
	}
	if s.ReactionTotal != 3 {
		t.Errorf("ReactionTotal = %d, want 3", s.ReactionTotal)
	}
	if s.BoostCount != 1 {
		t.Errorf("BoostCount = %d, want 1", s.BoostCount)
	}
	if !s.HasInteractions() {
		t.Error("Expected interactions")
	}
	if got := s.InteractionScore(); got != 5 {
		t.Errorf("InteractionScore() = %d, want 5", got)
	}

	top := s.TopReactions(1)
	if len(top) != 1 || top[0] != (ReactionStat{Symbol: "+", Count: 2}) {
		t.Errorf("TopReactions(1) = %v", top)
	}
	if all := s.TopReactions(0); len(all) != 2 {
		t.Errorf("Expected 2 reaction symbols, got %d", len(all))
	}
}

func TestContentFilterPasses(t *testing.T) {
	tests := []struct {
		name    string
		filter  ContentFilter
		summary Summary
		want    bool
	}{
		{"no filter", ContentFilter{}, Summary{}, true},
		{"meets min reactions", ContentFilter{MinReactions: 5}, Summary{ReactionTotal: 10}, true},
		{"fails min reactions", ContentFilter{MinReactions: 10}, Summary{ReactionTotal: 5}, false},
		{"meets min zap sats", ContentFilter{MinZapSats: 1000}, Summary{ZapSatsTotal: 5000}, true},
		{"fails min zap sats", ContentFilter{MinZapSats: 1000}, Summary{ZapSatsTotal: 500}, false},
		{"meets min engagement", ContentFilter{MinEngagement: 10}, Summary{ReplyCount: 5, ReactionTotal: 3, ZapSatsTotal: 2000}, true},
		{"fails min engagement", ContentFilter{MinEngagement: 10}, Summary{ReplyCount: 2, ReactionTotal: 3}, false},
		{"hides no interactions", ContentFilter{HideNoInteractions: true}, Summary{}, false},
		{"boost counts as interaction", ContentFilter{HideNoInteractions: true}, Summary{BoostCount: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Passes(tt.summary); got != tt.want {
				t.Errorf("Passes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterAndSort(t *testing.T) {
	store := cache.New(nil, nil)
	alice, bob := newAuthor(), newAuthor()

	quiet := alice.publish(t, store, nostr.Event{Kind: 1, Content: "quiet"}, 300)
	liked := alice.publish(t, store, nostr.Event{Kind: 1, Content: "liked"}, 200)
	discussed := alice.publish(t, store, nostr.Event{Kind: 1, Content: "discussed"}, 100)

	bob.publish(t, store, event.NewReaction(event.RefTo(liked), "+"), 210)
	for i, text := range []string{"a", "b"} {
		bob.publish(t, store, event.NewTextNote(text, []event.Ref{event.RefTo(discussed)}, nil), int64(110+i))
	}

	var notes []*cache.Note
	for _, ev := range []*nostr.Event{discussed, quiet, liked} {
		n, _ := store.Note(ev.ID)
		notes = append(notes, n)
	}
	enriched := Enrich(notes)

	ids := func(list []*EnrichedNote) []string {
		out := make([]string, 0, len(list))
		for _, e := range list {
			out = append(out, e.Note.EventID())
		}
		return out
	}
	equal := func(got, want []string) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	tests := []struct {
		name   string
		filter ContentFilter
		mode   SortMode
		want   []string
	}{
		{"chronological", ContentFilter{}, SortChronological, []string{quiet.ID, liked.ID, discussed.ID}},
		{"engagement", ContentFilter{}, SortEngagement, []string{discussed.ID, liked.ID, quiet.ID}},
		{"reactions keeps recency between equals", ContentFilter{}, SortReactions, []string{liked.ID, quiet.ID, discussed.ID}},
		{"hide quiet", ContentFilter{HideNoInteractions: true}, SortChronological, []string{liked.ID, discussed.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(FilterAndSort(enriched, tt.filter, tt.mode))
			if !equal(got, tt.want) {
				t.Errorf("FilterAndSort() = %v, want %v", got, tt.want)
			}
		})
	}

	popular := Popular(store, 1)
	if len(popular) != 1 || popular[0].Note.EventID() != discussed.ID {
		t.Errorf("Expected the discussed note to be the most popular")
	}
}

func TestThread(t *testing.T) {
	store := cache.New(nil, nil)
	alice, bob := newAuthor(), newAuthor()

	root := alice.publish(t, store, nostr.Event{Kind: 1, Content: "root"}, 100)
	first := bob.publish(t, store, nostr.Event{Kind: 1, Content: "first", Tags: nostr.Tags{
		{"e", root.ID, "", "root"},
	}}, 110)
	nested := alice.publish(t, store, nostr.Event{Kind: 1, Content: "nested", Tags: nostr.Tags{
		{"e", root.ID, "", "root"},
		{"e", first.ID, "", "reply"},
	}}, 120)
	second := bob.publish(t, store, nostr.Event{Kind: 1, Content: "second", Tags: nostr.Tags{
		{"e", root.ID, "", "root"},
	}}, 130)

	view := Thread(store, nested.ID)
	if view == nil {
		t.Fatal("Expected a thread view")
	}
	if view.Root.Note.EventID() != root.ID {
		t.Errorf("Expected the thread to start at the root")
	}
	if view.FocusID != nested.ID {
		t.Errorf("FocusID = %s, want %s", view.FocusID, nested.ID)
	}

	type line struct {
		id    string
		depth int
	}
	var got []line
	view.Walk(func(n *ThreadNode, depth int) {
		got = append(got, line{n.Note.EventID(), depth})
	})
	want := []line{{root.ID, 0}, {first.ID, 1}, {nested.ID, 2}, {second.ID, 1}}
	if len(got) != len(want) {
		t.Fatalf("Walk visited %d nodes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("node %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if Thread(store, "missing") != nil {
		t.Error("Expected nil for an unknown note")
	}
}

func TestShowCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, ""},
		{1, "1"},
		{999, "999"},
		{1000, "1k"},
		{1499, "1k"},
		{1500, "2k"},
		{2_400_000, "2M"},
		{3_000_000_000, "3G"},
	}
	for _, tt := range tests {
		if got := ShowCount(tt.in); got != tt.want {
			t.Errorf("ShowCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShowAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, ""},
		{0.001, ""},
		{21, "21"},
		{999, "999"},
		{1500, "1.5k"},
		{2_000_000, "2.0M"},
		{1_250_000_000, "1.3G"},
	}
	for _, tt := range tests {
		if got := ShowAmount(tt.in); got != tt.want {
			t.Errorf("ShowAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSats(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 sats"},
		{500, "500 sats"},
		{1500, "1.5K sats"},
		{2_500_000, "2.50M sats"},
	}
	for _, tt := range tests {
		if got := FormatSats(tt.in); got != tt.want {
			t.Errorf("FormatSats(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
