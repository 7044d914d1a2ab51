package sync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/config"
)

func signed(t *testing.T, sk string, ev nostr.Event) *nostr.Event {
	t.Helper()
	if ev.CreatedAt == 0 {
		ev.CreatedAt = nostr.Timestamp(1_700_000_000)
	}
	if ev.Tags == nil {
		ev.Tags = nostr.Tags{}
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return &ev
}

type memArchive struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (a *memArchive) Save(_ context.Context, ev *nostr.Event) error {
	if a.fail {
		return errors.New("disk full")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, ev.ID)
	return nil
}

func (a *memArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

type fakeFetcher struct {
	events []*nostr.Event
	filter nostr.Filter
}

func (f *fakeFetcher) FetchEvents(_ context.Context, _ []string, filter nostr.Filter) ([]*nostr.Event, error) {
	f.filter = filter
	return f.events, nil
}

func TestEngineIngestsValidEvents(t *testing.T) {
	store := cache.New(nil, testLogger())
	archive := &memArchive{}
	engine := NewEngine(context.Background(), store, archive, &config.Sync{Workers: 1, QueueSize: 10}, testLogger())

	var mu sync.Mutex
	var seen []string
	engine.AddEventHandler(func(_ context.Context, ev *nostr.Event, _ string) {
		mu.Lock()
		seen = append(seen, ev.ID)
		mu.Unlock()
	})
	engine.Start()
	defer engine.Stop()

	sk := nostr.GeneratePrivateKey()
	note := signed(t, sk, nostr.Event{Kind: 1, Content: "hello"})

	forged := *signed(t, sk, nostr.Event{Kind: 1, Content: "original"})
	forged.Content = "tampered"

	engine.Enqueue(note, "wss://a")
	engine.Enqueue(note, "wss://b")
	engine.Enqueue(&forged, "wss://a")

	waitFor(t, func() bool {
		s := engine.Stats()
		return s.Ingested+s.Duplicates+s.Invalid == 3
	})

	stats := engine.Stats()
	if stats.Ingested != 1 || stats.Duplicates != 1 || stats.Invalid != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	got, ok := store.Note(note.ID)
	if !ok || !got.Loaded() {
		t.Fatal("Expected the note in the store")
	}
	waitFor(t, func() bool { return len(got.Relays()) == 2 })

	if _, ok := store.Note(forged.ID); ok {
		t.Error("Expected the forged event to be rejected")
	}
	if archive.count() != 1 {
		t.Errorf("Expected one archived event, got %d", archive.count())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != note.ID {
		t.Errorf("Expected handler to see the note once, got %v", seen)
	}
}

func TestEngineRejectsTamperedDuplicates(t *testing.T) {
	store := cache.New(nil, testLogger())
	engine := NewEngine(context.Background(), store, nil, &config.Sync{Workers: 1, QueueSize: 10}, testLogger())

	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	followed := nostr.GeneratePrivateKey()
	followedPK, _ := nostr.GetPublicKey(followed)

	contacts := signed(t, sk, nostr.Event{Kind: 3, CreatedAt: 1000, Tags: nostr.Tags{{"p", followedPK}}})
	if err := engine.Accept(contacts, "wss://a"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	tampered := *contacts
	tampered.CreatedAt = 2000
	tampered.Tags = nostr.Tags{{"p", "bb"}}
	tampered.Sig = "00"
	if err := engine.Accept(&tampered, "wss://evil"); err == nil {
		t.Error("Expected a tampered copy of a known id to be rejected")
	}

	user, _ := store.User(pk)
	if latest := user.LatestContactList(); latest == nil || latest.CreatedAt != 1000 {
		t.Fatalf("Expected the signed contact list to stay latest, got %v", latest)
	}
	if !user.IsFollowing(followedPK) {
		t.Error("Expected follows to survive the tampered copy")
	}

	copyOf := *contacts
	if err := engine.Accept(&copyOf, "wss://b"); err != nil {
		t.Errorf("Accept() of an identical copy error = %v", err)
	}
	stats := engine.Stats()
	if stats.Duplicates != 1 || stats.Invalid != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestEngineSurvivesPanickingHandler(t *testing.T) {
	store := cache.New(nil, testLogger())
	engine := NewEngine(context.Background(), store, nil, &config.Sync{Workers: 1, QueueSize: 10}, testLogger())

	var mu sync.Mutex
	calls := 0
	engine.AddEventHandler(func(_ context.Context, ev *nostr.Event, _ string) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			panic("handler failed")
		}
	})
	engine.Start()
	defer engine.Stop()

	sk := nostr.GeneratePrivateKey()
	engine.Enqueue(signed(t, sk, nostr.Event{Kind: 1, Content: "one"}), "wss://a")
	second := signed(t, sk, nostr.Event{Kind: 1, Content: "two"})
	engine.Enqueue(second, "wss://a")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
	if _, ok := store.Note(second.ID); !ok {
		t.Error("Expected the worker to keep ingesting after a panic")
	}
}

func TestEngineIngestReportsArchiveErrors(t *testing.T) {
	store := cache.New(nil, testLogger())
	engine := NewEngine(context.Background(), store, &memArchive{fail: true}, nil, testLogger())

	ev := signed(t, nostr.GeneratePrivateKey(), nostr.Event{Kind: 1, Content: "x"})
	if err := engine.Ingest(context.Background(), ev, ""); err == nil {
		t.Error("Expected archive error")
	}
	if _, ok := store.Note(ev.ID); !ok {
		t.Error("Expected the store to consume the event regardless")
	}
}

func TestEngineEnqueueAfterStop(t *testing.T) {
	engine := NewEngine(context.Background(), cache.New(nil, testLogger()), nil, &config.Sync{Workers: 1, QueueSize: 1}, testLogger())
	engine.Start()
	engine.Stop()

	ev := signed(t, nostr.GeneratePrivateKey(), nostr.Event{Kind: 1})
	// the queue has room for one at most, nothing may block
	rejected := 0
	for range 3 {
		if !engine.Enqueue(ev, "") {
			rejected++
		}
	}
	if rejected < 2 {
		t.Errorf("Expected enqueue to fail once stopped, %d rejected", rejected)
	}
}

func TestBootstrapIngestsOwnEvents(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	friend, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())

	contacts := signed(t, sk, nostr.Event{Kind: 3, Tags: nostr.Tags{{"p", friend}}})
	fetcher := &fakeFetcher{events: []*nostr.Event{contacts}}

	store := cache.New(nil, testLogger())
	engine := NewEngine(context.Background(), store, nil, nil, testLogger())

	n, err := engine.Bootstrap(context.Background(), fetcher, []string{"wss://a"}, pk, NewFilterBuilder(nil))
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected one event, got %d", n)
	}
	if fetcher.filter.Authors[0] != pk {
		t.Errorf("Expected own events to be requested, got %v", fetcher.filter.Authors)
	}
	if !store.GetOrCreateUser(pk).IsFollowing(friend) {
		t.Error("Expected the contact list to be in the store")
	}

	if _, err := engine.Bootstrap(context.Background(), fetcher, nil, pk, NewFilterBuilder(nil)); err == nil {
		t.Error("Expected error without relays")
	}
}

func TestRecentIDsEvictsOldest(t *testing.T) {
	r := newRecentIDs(2)
	r.Add("a")
	r.Add("b")
	r.Add("a")
	r.Add("c")

	if r.Contains("a") {
		t.Error("Expected a to be evicted")
	}
	if !r.Contains("b") || !r.Contains("c") {
		t.Error("Expected b and c to be kept")
	}
}
