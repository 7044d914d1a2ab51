// Package relay describes relay configurations: which relays the account
// talks to, in which direction, and for which feeds.
package relay

import (
	"slices"
	"sort"
	"strings"

	"github.com/sandwichfarm/quartz/internal/config"
)

// FeedType is a class of subscription a relay is used for
type FeedType string

const (
	FeedFollows     FeedType = "follows"
	FeedPublicChats FeedType = "public_chats"
	FeedPrivateDMs  FeedType = "private_dms"
	FeedGlobal      FeedType = "global"
	FeedSearch      FeedType = "search"
)

// AllFeedTypes lists every feed type in display order
var AllFeedTypes = []FeedType{FeedFollows, FeedPublicChats, FeedPrivateDMs, FeedGlobal, FeedSearch}

// Relay is one entry of a relay set
type Relay struct {
	URL       string
	Read      bool
	Write     bool
	FeedTypes []FeedType
}

// Has reports whether the relay is active for a feed type
func (r Relay) Has(ft FeedType) bool {
	return slices.Contains(r.FeedTypes, ft)
}

// key is the structural identity used by SameSet
func (r Relay) key() string {
	fts := make([]string, 0, len(r.FeedTypes))
	for _, ft := range r.FeedTypes {
		fts = append(fts, string(ft))
	}
	sort.Strings(fts)
	fts = slices.Compact(fts)

	var b strings.Builder
	b.WriteString(NormalizeURL(r.URL))
	if r.Read {
		b.WriteString("|r")
	}
	if r.Write {
		b.WriteString("|w")
	}
	b.WriteString("|")
	b.WriteString(strings.Join(fts, ","))
	return b.String()
}

// SameSet compares two relay sets structurally, ignoring order
func SameSet(a, b []Relay) bool {
	if len(a) != len(b) {
		return false
	}

	ka := make([]string, 0, len(a))
	for _, r := range a {
		ka = append(ka, r.key())
	}
	kb := make([]string, 0, len(b))
	for _, r := range b {
		kb = append(kb, r.key())
	}
	sort.Strings(ka)
	sort.Strings(kb)

	return slices.Equal(ka, kb)
}

// NormalizeURL lowercases the scheme and host and drops a trailing slash
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimSuffix(u, "/")
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		host, path, _ := strings.Cut(rest, "/")
		u = strings.ToLower(u[:i+3]+host) + pathSuffix(path)
	}
	return u
}

func pathSuffix(path string) string {
	if path == "" {
		return ""
	}
	return "/" + path
}

// FromConfig converts configured relay entries
func FromConfig(setups []config.RelaySetup) []Relay {
	out := make([]Relay, 0, len(setups))
	for _, s := range setups {
		out = append(out, fromSetup(s))
	}
	return out
}

// ForcedSearch returns the configured search relay
func ForcedSearch(cfg *config.Relays) Relay {
	return fromSetup(cfg.ForcedSearch)
}

func fromSetup(s config.RelaySetup) Relay {
	r := Relay{URL: NormalizeURL(s.URL), Read: s.Read, Write: s.Write}
	for _, ft := range s.FeedTypes {
		r.FeedTypes = append(r.FeedTypes, FeedType(ft))
	}
	return r
}

// ToConfig converts relays back into configuration entries
func ToConfig(relays []Relay) []config.RelaySetup {
	out := make([]config.RelaySetup, 0, len(relays))
	for _, r := range relays {
		s := config.RelaySetup{URL: r.URL, Read: r.Read, Write: r.Write}
		for _, ft := range r.FeedTypes {
			s.FeedTypes = append(s.FeedTypes, string(ft))
		}
		out = append(out, s)
	}
	return out
}

// Defaults returns the built-in relay set used before any contact list exists
func Defaults() []Relay {
	return FromConfig(config.Default().Relays.Local)
}

// URLs returns the URLs of relays matching the predicate
func URLs(relays []Relay, keep func(Relay) bool) []string {
	out := make([]string, 0, len(relays))
	for _, r := range relays {
		if keep == nil || keep(r) {
			out = append(out, r.URL)
		}
	}
	return out
}

// Writable keeps write-enabled relays
func Writable(r Relay) bool { return r.Write }

// Readable keeps read-enabled relays
func Readable(r Relay) bool { return r.Read }
