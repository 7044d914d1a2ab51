// Package entities resolves NIP-19 identifiers and nostr: references
// against the local event graph.
package entities

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

// ErrUnsupportedEntity is returned for inputs that do not point at a user,
// a note or an addressable event
var ErrUnsupportedEntity = errors.New("unsupported entity")

// Target says what an entity points at
type Target int

const (
	TargetUser Target = iota
	TargetNote
	TargetAddress
)

// Entity is a resolved identifier
type Entity struct {
	Type         string // npub, nprofile, note, nevent, naddr or hex
	Target       Target
	PubKey       string
	EventID      string
	Address      *event.Address
	Relays       []string
	DisplayName  string
	OriginalText string
}

// Resolver looks entities up in a store
type Resolver struct {
	store *cache.Store
}

// NewResolver creates a resolver over store
func NewResolver(store *cache.Store) *Resolver {
	return &Resolver{store: store}
}

var nostrEntityRegex = regexp.MustCompile(`nostr:(npub1[a-z0-9]+|nprofile1[a-z0-9]+|note1[a-z0-9]+|nevent1[a-z0-9]+|naddr1[a-z0-9]+)`)

// FindEntities returns the bech32 part of every nostr: reference in text
func (r *Resolver) FindEntities(text string) []string {
	matches := nostrEntityRegex.FindAllString(text, -1)
	entities := make([]string, len(matches))
	for i, match := range matches {
		entities[i] = strings.TrimPrefix(match, "nostr:")
	}
	return entities
}

// Resolve decodes an npub, nprofile, note, nevent, naddr or 64 char hex
// id, with or without the nostr: prefix. Hex ids resolve to a note when
// the store has one loaded and to a user otherwise.
func (r *Resolver) Resolve(input string) (*Entity, error) {
	original := strings.TrimSpace(input)
	code := strings.TrimPrefix(original, "nostr:")

	if nostr.IsValid32ByteHex(code) {
		e := &Entity{Type: "hex", OriginalText: original}
		if note, ok := r.store.Note(code); ok && note.Loaded() {
			e.Target = TargetNote
			e.EventID = code
			e.PubKey = note.Author()
			e.DisplayName = noteTitle(note)
			return e, nil
		}
		e.Target = TargetUser
		e.PubKey = code
		e.DisplayName = r.userName(code)
		return e, nil
	}

	prefix, decoded, err := nip19.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", code, err)
	}

	e := &Entity{Type: prefix, OriginalText: original}
	switch prefix {
	case "npub":
		e.Target = TargetUser
		e.PubKey = decoded.(string)
		e.DisplayName = r.userName(e.PubKey)

	case "nprofile":
		p := decoded.(nostr.ProfilePointer)
		e.Target = TargetUser
		e.PubKey = p.PublicKey
		e.Relays = p.Relays
		e.DisplayName = r.userName(e.PubKey)

	case "note":
		e.Target = TargetNote
		e.EventID = decoded.(string)
		e.DisplayName = r.noteName(e.EventID)

	case "nevent":
		p := decoded.(nostr.EventPointer)
		e.Target = TargetNote
		e.EventID = p.ID
		e.PubKey = p.Author
		e.Relays = p.Relays
		e.DisplayName = r.noteName(e.EventID)

	case "naddr":
		p := decoded.(nostr.EntityPointer)
		e.Target = TargetAddress
		e.PubKey = p.PublicKey
		e.Address = &event.Address{Kind: event.Kind(p.Kind), PubKey: p.PublicKey, DTag: p.Identifier}
		e.Relays = p.Relays
		e.DisplayName = r.addressName(*e.Address)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEntity, prefix)
	}

	return e, nil
}

// User returns the store's user for a user entity, creating it if needed
func (r *Resolver) User(e *Entity) (*cache.User, bool) {
	if e.Target != TargetUser {
		return nil, false
	}
	return r.store.GetOrCreateUser(e.PubKey), true
}

// Note returns the store's note for a note or address entity, creating a
// placeholder if the event was not seen yet
func (r *Resolver) Note(e *Entity) (*cache.Note, bool) {
	switch e.Target {
	case TargetNote:
		return r.store.GetOrCreateNote(e.EventID), true
	case TargetAddress:
		return r.store.GetOrCreateAddressableNote(*e.Address), true
	default:
		return nil, false
	}
}

func (r *Resolver) userName(pubkey string) string {
	if u, ok := r.store.User(pubkey); ok {
		return u.DisplayName()
	}
	return truncatePubkey(pubkey)
}

func (r *Resolver) noteName(id string) string {
	if note, ok := r.store.Note(id); ok && note.Loaded() {
		return noteTitle(note)
	}
	return fmt.Sprintf("Note %s...", truncate(id, 8))
}

func (r *Resolver) addressName(addr event.Address) string {
	if note, ok := r.store.AddressableNote(addr); ok && note.Loaded() {
		if title := titleTag(note.Event()); title != "" {
			return title
		}
	}
	if addr.DTag != "" {
		return addr.DTag
	}
	return fmt.Sprintf("Article by %s", truncatePubkey(addr.PubKey))
}

// noteTitle uses the title tag of articles and the first line of anything else
func noteTitle(note *cache.Note) string {
	ev := note.Event()
	if ev == nil {
		return fmt.Sprintf("Note %s...", truncate(note.Key(), 8))
	}
	if title := titleTag(ev); title != "" {
		return title
	}
	if line, _, _ := strings.Cut(ev.Content, "\n"); strings.TrimSpace(line) != "" {
		return truncate(line, 40)
	}
	return fmt.Sprintf("Event %s...", truncate(ev.ID, 8))
}

func titleTag(ev *nostr.Event) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "title" {
			return tag[1]
		}
	}
	return ""
}

// ReplaceEntities replaces every nostr: reference in text with formatter's
// rendering of the resolved entity.
func (r *Resolver) ReplaceEntities(text string, formatter func(*Entity) string) string {
	result, _ := r.ReplaceEntitiesWithMetadata(text, formatter)
	return result
}

// ReplaceEntitiesWithMetadata is ReplaceEntities that also returns the
// resolved entities. References that fail to resolve are kept as they are.
func (r *Resolver) ReplaceEntitiesWithMetadata(text string, formatter func(*Entity) string) (string, []*Entity) {
	resolved := make([]*Entity, 0)

	replaced := nostrEntityRegex.ReplaceAllStringFunc(text, func(match string) string {
		entity, err := r.Resolve(match)
		if err != nil {
			return match
		}
		resolved = append(resolved, entity)
		return formatter(entity)
	})

	return replaced, resolved
}

// DedupeEntities removes duplicate entities by OriginalText, preserving order
func DedupeEntities(entities []*Entity) []*Entity {
	seen := make(map[string]struct{})
	unique := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := seen[e.OriginalText]; ok {
			continue
		}
		seen[e.OriginalText] = struct{}{}
		unique = append(unique, e)
	}
	return unique
}

func truncatePubkey(pubkey string) string {
	if len(pubkey) <= 16 {
		return pubkey
	}
	return pubkey[:8] + "..." + pubkey[len(pubkey)-8:]
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
