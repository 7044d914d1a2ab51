package event

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// RelayHint is one entry of a NIP-65 relay list
type RelayHint struct {
	Relay    string
	CanRead  bool
	CanWrite bool
}

// ParseRelayHints extracts relay hints from a NIP-65 kind 10002 event
func ParseRelayHints(ev *nostr.Event) ([]RelayHint, error) {
	if Kind(ev.Kind) != KindRelayList {
		return nil, fmt.Errorf("expected kind 10002, got %d", ev.Kind)
	}

	hints := make([]RelayHint, 0, len(ev.Tags))

	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}

		relay := strings.TrimSpace(tag[1])
		if relay == "" || !nostr.IsValidRelayURL(relay) {
			continue
		}

		hint := RelayHint{
			Relay:    relay,
			CanRead:  true,
			CanWrite: true,
		}

		// Check for read/write markers
		if len(tag) >= 3 {
			switch strings.ToLower(tag[2]) {
			case "read":
				hint.CanWrite = false
			case "write":
				hint.CanRead = false
			}
		}

		hints = append(hints, hint)
	}

	return hints, nil
}

// NewRelayList builds an unsigned NIP-65 relay list
func NewRelayList(hints []RelayHint) nostr.Event {
	ev := nostr.Event{
		Kind:      int(KindRelayList),
		CreatedAt: nostr.Now(),
		Tags:      make(nostr.Tags, 0, len(hints)),
	}

	for _, hint := range hints {
		tag := nostr.Tag{"r", hint.Relay}

		if hint.CanRead && !hint.CanWrite {
			tag = append(tag, "read")
		} else if hint.CanWrite && !hint.CanRead {
			tag = append(tag, "write")
		}

		ev.Tags = append(ev.Tags, tag)
	}

	return ev
}
