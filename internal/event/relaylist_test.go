package event

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestParseRelayHints(t *testing.T) {
	tests := []struct {
		name      string
		event     *nostr.Event
		wantCount int
		wantErr   bool
	}{
		{
			name: "read/write markers",
			event: &nostr.Event{
				Kind: 10002,
				Tags: nostr.Tags{
					{"r", "wss://relay1.test", "read"},
					{"r", "wss://relay2.test", "write"},
					{"r", "wss://relay3.test"},
				},
			},
			wantCount: 3,
		},
		{
			name:    "invalid kind",
			event:   &nostr.Event{Kind: 1, Tags: nostr.Tags{{"r", "wss://relay.test"}}},
			wantErr: true,
		},
		{
			name: "mixed and empty tags",
			event: &nostr.Event{
				Kind: 10002,
				Tags: nostr.Tags{
					{"r", ""},
					{"e", "event-id"},
					{"r", "wss://relay2.test"},
				},
			},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints, err := ParseRelayHints(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRelayHints() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(hints) != tt.wantCount {
				t.Errorf("Expected %d hints, got %d", tt.wantCount, len(hints))
			}
		})
	}
}

func TestRelayListRoundTrip(t *testing.T) {
	hints := []RelayHint{
		{Relay: "wss://read.test", CanRead: true},
		{Relay: "wss://write.test", CanWrite: true},
		{Relay: "wss://both.test", CanRead: true, CanWrite: true},
	}

	ev := NewRelayList(hints)
	if ev.Tags[0][2] != "read" || ev.Tags[1][2] != "write" || len(ev.Tags[2]) != 2 {
		t.Errorf("Unexpected tags %v", ev.Tags)
	}

	parsed := Parse(&ev).(*RelayList)
	if len(parsed.Hints) != 3 {
		t.Fatalf("Expected 3 hints, got %d", len(parsed.Hints))
	}
	for i, h := range parsed.Hints {
		if h != hints[i] {
			t.Errorf("Hint %d = %+v, want %+v", i, h, hints[i])
		}
	}
}
