package event

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// BookmarkDTag is the d tag of the account's bookmark list
const BookmarkDTag = "bookmark"

// Bookmarks is one side (public or private) of a bookmark list
type Bookmarks struct {
	Events    []string
	Users     []string
	Addresses []string
}

// Public returns the public side of a bookmark list
func (bl *BookmarkList) Public() Bookmarks {
	b := Bookmarks{Events: bl.Events, Users: bl.Users}
	for _, a := range bl.Addresses {
		b.Addresses = append(b.Addresses, a.String())
	}
	return b
}

// Has reports whether an event id or address is bookmarked
func (b Bookmarks) Has(idOrAddress string) bool {
	return contains(b.Events, idOrAddress) || contains(b.Addresses, idOrAddress)
}

// With returns a copy with the id (or address, when isAddress) appended if absent
func (b Bookmarks) With(key string, isAddress bool) Bookmarks {
	out := b.clone()
	if isAddress {
		if !contains(out.Addresses, key) {
			out.Addresses = append(out.Addresses, key)
		}
	} else if !contains(out.Events, key) {
		out.Events = append(out.Events, key)
	}
	return out
}

// Without returns a copy with every occurrence of the id (or address) removed
func (b Bookmarks) Without(key string, isAddress bool) Bookmarks {
	out := b.clone()
	if isAddress {
		out.Addresses = remove(out.Addresses, key)
	} else {
		out.Events = remove(out.Events, key)
	}
	return out
}

func (b Bookmarks) clone() Bookmarks {
	return Bookmarks{
		Events:    append([]string(nil), b.Events...),
		Users:     append([]string(nil), b.Users...),
		Addresses: append([]string(nil), b.Addresses...),
	}
}

// EncodePrivateBookmarks serializes private bookmarks as a JSON array of tags,
// the plaintext that gets encrypted to self.
func EncodePrivateBookmarks(b Bookmarks) (string, error) {
	tags := make([][]string, 0, len(b.Events)+len(b.Users)+len(b.Addresses))
	for _, id := range b.Events {
		tags = append(tags, []string{"e", id})
	}
	for _, pk := range b.Users {
		tags = append(tags, []string{"p", pk})
	}
	for _, a := range b.Addresses {
		tags = append(tags, []string{"a", a})
	}

	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode private bookmarks: %w", err)
	}
	return string(data), nil
}

// DecodePrivateBookmarks parses decrypted private bookmark content
func DecodePrivateBookmarks(plaintext string) (Bookmarks, error) {
	var b Bookmarks
	if plaintext == "" {
		return b, nil
	}

	var tags [][]string
	if err := json.Unmarshal([]byte(plaintext), &tags); err != nil {
		return b, fmt.Errorf("failed to decode private bookmarks: %w", err)
	}

	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			b.Events = append(b.Events, tag[1])
		case "p":
			b.Users = append(b.Users, tag[1])
		case "a":
			b.Addresses = append(b.Addresses, tag[1])
		}
	}
	return b, nil
}

// NewBookmarkList builds an unsigned bookmark list. privateContent must
// already be encrypted.
func NewBookmarkList(public Bookmarks, privateContent string) nostr.Event {
	tags := nostr.Tags{{"d", BookmarkDTag}}
	for _, id := range public.Events {
		tags = append(tags, nostr.Tag{"e", id})
	}
	for _, pk := range public.Users {
		tags = append(tags, nostr.Tag{"p", pk})
	}
	for _, a := range public.Addresses {
		tags = append(tags, nostr.Tag{"a", a})
	}

	return nostr.Event{
		Kind:      int(KindBookmarkList),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   privateContent,
	}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func remove(values []string, v string) []string {
	out := make([]string, 0, len(values))
	for _, x := range values {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
