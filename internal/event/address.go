package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Address identifies an addressable event as kind:pubkey:d
type Address struct {
	Kind   Kind
	PubKey string
	DTag   string
}

// String formats the address as it appears in "a" tags
func (a Address) String() string {
	return fmt.Sprintf("%d:%s:%s", a.Kind, a.PubKey, a.DTag)
}

// ParseAddress parses a kind:pubkey:d string
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("malformed address %q", s)
	}

	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return Address{}, fmt.Errorf("malformed address kind %q: %w", parts[0], err)
	}
	if !nostr.IsValid32ByteHex(parts[1]) {
		return Address{}, fmt.Errorf("malformed address pubkey %q", parts[1])
	}

	return Address{Kind: Kind(kind), PubKey: parts[1], DTag: parts[2]}, nil
}

// AddressOf returns the address of an addressable event
func AddressOf(ev *nostr.Event) (Address, bool) {
	if !Kind(ev.Kind).IsAddressable() {
		return Address{}, false
	}
	return Address{Kind: Kind(ev.Kind), PubKey: ev.PubKey, DTag: DTag(ev)}, true
}

// DTag returns the first "d" tag value, or ""
func DTag(ev *nostr.Event) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			return tag[1]
		}
	}
	return ""
}

// Ref points at an event that a new event refers to
type Ref struct {
	ID      string
	PubKey  string
	Address *Address
}

// RefTo builds a Ref from a full event
func RefTo(ev *nostr.Event) Ref {
	ref := Ref{ID: ev.ID, PubKey: ev.PubKey}
	if addr, ok := AddressOf(ev); ok {
		ref.Address = &addr
	}
	return ref
}

// tags appends e/p/a tags pointing at the reference
func (r Ref) tags() nostr.Tags {
	tags := make(nostr.Tags, 0, 3)
	if r.ID != "" {
		tags = append(tags, nostr.Tag{"e", r.ID})
	}
	if r.PubKey != "" {
		tags = append(tags, nostr.Tag{"p", r.PubKey})
	}
	if r.Address != nil {
		tags = append(tags, nostr.Tag{"a", r.Address.String()})
	}
	return tags
}

// tagValues returns the second element of every tag with the given name
func tagValues(ev *nostr.Event, name string) []string {
	values := make([]string, 0)
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name && tag[1] != "" {
			values = append(values, tag[1])
		}
	}
	return values
}

// addressValues parses every "a" tag, skipping malformed ones
func addressValues(ev *nostr.Event) []Address {
	addrs := make([]Address, 0)
	for _, v := range tagValues(ev, "a") {
		if addr, err := ParseAddress(v); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
