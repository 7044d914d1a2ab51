package entities

import (
	"errors"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

type fixture struct {
	store   *cache.Store
	pubkey  string
	note    *nostr.Event
	article *nostr.Event
}

func setupStore(t *testing.T) fixture {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	store := cache.New(nil, nil)

	sign := func(ev nostr.Event) *nostr.Event {
		ev.CreatedAt = 1_700_000_000
		if ev.Tags == nil {
			ev.Tags = nostr.Tags{}
		}
		if err := ev.Sign(sk); err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		store.Consume(&ev, "wss://a")
		return &ev
	}

	sign(nostr.Event{Kind: 0, Content: `{"name":"alice","display_name":"Alice"}`})
	note := sign(nostr.Event{Kind: 1, Content: "first line\nsecond line"})
	article := sign(nostr.Event{Kind: 30023, Content: "body", Tags: nostr.Tags{{"d", "intro"}, {"title", "Hello World"}}})

	return fixture{store: store, pubkey: pk, note: note, article: article}
}

func TestResolve(t *testing.T) {
	f := setupStore(t)
	r := NewResolver(f.store)

	npub, _ := nip19.EncodePublicKey(f.pubkey)
	nprofile, _ := nip19.EncodeProfile(f.pubkey, []string{"wss://hint"})
	note, _ := nip19.EncodeNote(f.note.ID)
	nevent, _ := nip19.EncodeEvent(f.note.ID, []string{"wss://hint"}, f.pubkey)
	naddr, _ := nip19.EncodeEntity(f.pubkey, 30023, "intro", nil)

	tests := []struct {
		name        string
		input       string
		wantType    string
		wantTarget  Target
		wantDisplay string
	}{
		{"npub", npub, "npub", TargetUser, "Alice"},
		{"nprofile with prefix", "nostr:" + nprofile, "nprofile", TargetUser, "Alice"},
		{"note", note, "note", TargetNote, "first line"},
		{"nevent", nevent, "nevent", TargetNote, "first line"},
		{"naddr", naddr, "naddr", TargetAddress, "Hello World"},
		{"hex note", f.note.ID, "hex", TargetNote, "first line"},
		{"hex pubkey", f.pubkey, "hex", TargetUser, "Alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := r.Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if e.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", e.Type, tt.wantType)
			}
			if e.Target != tt.wantTarget {
				t.Errorf("Target = %v, want %v", e.Target, tt.wantTarget)
			}
			if e.DisplayName != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", e.DisplayName, tt.wantDisplay)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(cache.New(nil, nil))

	nsec, _ := nip19.EncodePrivateKey(nostr.GeneratePrivateKey())
	if _, err := r.Resolve(nsec); !errors.Is(err, ErrUnsupportedEntity) {
		t.Errorf("Expected ErrUnsupportedEntity for nsec, got %v", err)
	}
	if _, err := r.Resolve("npub1garbage"); err == nil {
		t.Error("Expected error for an invalid bech32 string")
	}
}

func TestUnknownEntitiesFallBack(t *testing.T) {
	r := NewResolver(cache.New(nil, nil))
	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	id := strings.Repeat("ab", 32)

	npub, _ := nip19.EncodePublicKey(pk)
	e, err := r.Resolve(npub)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if e.DisplayName != pk[:8]+"..."+pk[len(pk)-8:] {
		t.Errorf("Expected a truncated pubkey, got %q", e.DisplayName)
	}

	note, _ := nip19.EncodeNote(id)
	e, _ = r.Resolve(note)
	if e.DisplayName != "Note ababa..." {
		t.Errorf("Unexpected note fallback %q", e.DisplayName)
	}

	placeholder, ok := r.Note(e)
	if !ok || placeholder.Loaded() {
		t.Error("Expected an unloaded placeholder note")
	}
	if _, ok := r.User(e); ok {
		t.Error("A note entity is not a user")
	}
}

func TestAddressEntityFindsNote(t *testing.T) {
	f := setupStore(t)
	r := NewResolver(f.store)

	naddr, _ := nip19.EncodeEntity(f.pubkey, 30023, "intro", nil)
	e, err := r.Resolve(naddr)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	note, ok := r.Note(e)
	if !ok || note.EventID() != f.article.ID {
		t.Error("Expected the naddr to lead to the stored article")
	}
	if *e.Address != (event.Address{Kind: 30023, PubKey: f.pubkey, DTag: "intro"}) {
		t.Errorf("Unexpected address %+v", e.Address)
	}
}

func TestReplaceEntities(t *testing.T) {
	f := setupStore(t)
	r := NewResolver(f.store)

	npub, _ := nip19.EncodePublicKey(f.pubkey)
	text := "gm nostr:" + npub + " and nostr:" + npub + " and nostr:npub1broken"

	out, found := r.ReplaceEntitiesWithMetadata(text, func(e *Entity) string { return "@" + e.DisplayName })
	if out != "gm @Alice and @Alice and nostr:npub1broken" {
		t.Errorf("Unexpected replacement %q", out)
	}
	if len(found) != 2 {
		t.Errorf("Expected 2 resolved entities, got %d", len(found))
	}
	if unique := DedupeEntities(found); len(unique) != 1 {
		t.Errorf("Expected 1 unique entity, got %d", len(unique))
	}

	if got := r.FindEntities(text); len(got) != 3 {
		t.Errorf("Expected 3 references, got %d", len(got))
	}
}
