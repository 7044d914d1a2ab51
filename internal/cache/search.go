package cache

import (
	"cmp"
	"iter"
	"slices"
	"strings"

	"github.com/sandwichfarm/quartz/internal/event"
)

// Match ranks: identifier prefix beats name prefix beats text containment
const (
	rankIdentifier = iota
	rankPrefix
	rankContains
	rankNone
)

type ranked[T any] struct {
	item T
	rank int
	at   int64
	key  string
}

func sortedSeq[T any](matches []ranked[T]) iter.Seq[T] {
	slices.SortFunc(matches, func(a, b ranked[T]) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		if c := cmp.Compare(b.at, a.at); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	return func(yield func(T) bool) {
		for _, m := range matches {
			if !yield(m.item) {
				return
			}
		}
	}
}

// FindUsersStartingWith matches pubkey/npub prefixes, name prefixes and
// profile text, case-insensitively. The sequence is recomputed on every
// iteration and ordered by relevance then recency.
func (s *Store) FindUsersStartingWith(prefix string) iter.Seq[*User] {
	return func(yield func(*User) bool) {
		q := strings.ToLower(strings.TrimSpace(prefix))
		if q == "" {
			return
		}

		matches := make([]ranked[*User], 0)
		s.users.Range(func(_ string, u *User) bool {
			if r := rankUser(u, q); r != rankNone {
				matches = append(matches, ranked[*User]{item: u, rank: r, at: int64(u.LastActive()), key: u.PubKey()})
			}
			return true
		})

		for u := range sortedSeq(matches) {
			if !yield(u) {
				return
			}
		}
	}
}

func rankUser(u *User, q string) int {
	if strings.HasPrefix(u.PubKey(), q) || strings.HasPrefix(strings.ToLower(u.Npub()), q) {
		return rankIdentifier
	}

	p := u.Profile()
	for _, name := range []string{p.Name, p.DisplayName} {
		if anyWordHasPrefix(name, q) {
			return rankPrefix
		}
	}

	for _, text := range []string{p.About, p.NIP05, p.LUD16} {
		if strings.Contains(strings.ToLower(text), q) {
			return rankContains
		}
	}
	return rankNone
}

// FindNotesStartingWith matches note id/bech32 prefixes and note text,
// case-insensitively. Deleted notes and encrypted content are never matched.
func (s *Store) FindNotesStartingWith(text string) iter.Seq[*Note] {
	return func(yield func(*Note) bool) {
		q := strings.ToLower(strings.TrimSpace(text))
		if q == "" {
			return
		}

		matches := make([]ranked[*Note], 0)
		for n := range s.Notes() {
			if r := rankNote(n, q); r != rankNone {
				matches = append(matches, ranked[*Note]{item: n, rank: r, at: int64(n.CreatedAt()), key: n.Key()})
			}
		}

		for n := range sortedSeq(matches) {
			if !yield(n) {
				return
			}
		}
	}
}

func rankNote(n *Note, q string) int {
	if strings.HasPrefix(n.EventID(), q) || strings.HasPrefix(strings.ToLower(n.Bech32()), q) {
		return rankIdentifier
	}

	switch n.Payload().(type) {
	case *event.TextNote, *event.LongTextNote, *event.ChannelMessage:
	default:
		return rankNone
	}

	content := strings.ToLower(n.Event().Content)
	if strings.HasPrefix(content, q) {
		return rankPrefix
	}
	if strings.Contains(content, q) {
		return rankContains
	}
	return rankNone
}

// FindChannelsStartingWith matches channel id prefixes, names and descriptions
func (s *Store) FindChannelsStartingWith(text string) iter.Seq[*Channel] {
	return func(yield func(*Channel) bool) {
		q := strings.ToLower(strings.TrimSpace(text))
		if q == "" {
			return
		}

		matches := make([]ranked[*Channel], 0)
		s.channels.Range(func(_ string, c *Channel) bool {
			if r := rankChannel(c, q); r != rankNone {
				matches = append(matches, ranked[*Channel]{item: c, rank: r, at: int64(c.UpdatedAt()), key: c.ID()})
			}
			return true
		})

		for c := range sortedSeq(matches) {
			if !yield(c) {
				return
			}
		}
	}
}

func rankChannel(c *Channel, q string) int {
	if strings.HasPrefix(c.ID(), q) {
		return rankIdentifier
	}
	info := c.Info()
	if anyWordHasPrefix(info.Name, q) {
		return rankPrefix
	}
	if strings.Contains(strings.ToLower(info.About), q) {
		return rankContains
	}
	return rankNone
}

func anyWordHasPrefix(text, q string) bool {
	text = strings.ToLower(text)
	if text == "" {
		return false
	}
	if strings.HasPrefix(text, q) {
		return true
	}
	for _, w := range strings.Fields(text) {
		if strings.HasPrefix(w, q) {
			return true
		}
	}
	return false
}
