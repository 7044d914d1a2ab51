package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

const (
	alice = "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"
	bob   = "b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0"
)

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name string
		ev   *nostr.Event
		want Kind
	}{
		{"metadata", &nostr.Event{Kind: 0, Content: `{"name":"alice"}`}, KindMetadata},
		{"text note", &nostr.Event{Kind: 1}, KindTextNote},
		{"contact list", &nostr.Event{Kind: 3}, KindContactList},
		{"dm", &nostr.Event{Kind: 4}, KindPrivateDM},
		{"deletion", &nostr.Event{Kind: 5}, KindDeletion},
		{"repost", &nostr.Event{Kind: 6}, KindRepost},
		{"reaction", &nostr.Event{Kind: 7}, KindReaction},
		{"channel create", &nostr.Event{Kind: 40}, KindChannelCreate},
		{"channel metadata", &nostr.Event{Kind: 41}, KindChannelMetadata},
		{"channel message", &nostr.Event{Kind: 42}, KindChannelMessage},
		{"report", &nostr.Event{Kind: 1984}, KindReport},
		{"zap request", &nostr.Event{Kind: 9734}, KindZapRequest},
		{"zap", &nostr.Event{Kind: 9735}, KindZap},
		{"relay list", &nostr.Event{Kind: 10002}, KindRelayList},
		{"wallet request", &nostr.Event{Kind: 23194}, KindZapPaymentRequest},
		{"bookmarks", &nostr.Event{Kind: 30001}, KindBookmarkList},
		{"long form", &nostr.Event{Kind: 30023}, KindLongTextNote},
		{"unknown", &nostr.Event{Kind: 31337}, Kind(31337)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.ev)
			if p.Kind() != tt.want {
				t.Errorf("Parse().Kind() = %v, want %v", p.Kind(), tt.want)
			}
		})
	}

	if _, ok := Parse(&nostr.Event{Kind: 31337}).(*Unknown); !ok {
		t.Error("Expected unknown kinds to parse as *Unknown")
	}
}

func TestParseContactList(t *testing.T) {
	ev := &nostr.Event{
		Kind: 3,
		Tags: nostr.Tags{
			{"p", alice, "wss://alice.relay"},
			{"p", "not-hex"},
			{"p"},
			{"p", bob},
			{"t", "nostr"},
		},
		Content: `{"wss://relay.damus.io":{"read":true,"write":true},"wss://nos.lol":{"read":true,"write":false}}`,
	}

	cl := Parse(ev).(*ContactList)

	if len(cl.Follows) != 2 {
		t.Fatalf("Expected 2 follows, got %v", cl.Follows)
	}
	if cl.Follows[0].RelayURL != "wss://alice.relay" {
		t.Errorf("Expected relay hint, got %q", cl.Follows[0].RelayURL)
	}
	if len(cl.Tags) != 1 || cl.Tags[0] != "nostr" {
		t.Errorf("Expected tag nostr, got %v", cl.Tags)
	}
	if rw := cl.Relays["wss://nos.lol"]; !rw.Read || rw.Write {
		t.Errorf("Expected nos.lol read-only, got %+v", rw)
	}
}

func TestParseRelayMapMalformed(t *testing.T) {
	for _, content := range []string{"", "not json", `["a"]`, `{}`} {
		if got := ParseRelayMap(content); got != nil {
			t.Errorf("ParseRelayMap(%q) = %v, want nil", content, got)
		}
	}
}

func TestContactListRoundTrip(t *testing.T) {
	relays := map[string]ReadWrite{"wss://relay.damus.io": {Read: true, Write: true}}
	ev := NewContactList([]Contact{{PubKey: alice}, {PubKey: bob, RelayURL: "wss://bob"}}, []string{"bitcoin"}, relays)

	if ev.Kind != int(KindContactList) {
		t.Fatalf("Expected kind 3, got %d", ev.Kind)
	}

	cl := Parse(&ev).(*ContactList)
	if _, ok := cl.FollowKeys()[bob]; !ok {
		t.Error("Expected bob to be followed")
	}
	if _, ok := cl.FollowTags()["bitcoin"]; !ok {
		t.Error("Expected bitcoin tag to be followed")
	}
	if !cl.Relays["wss://relay.damus.io"].Write {
		t.Error("Expected relay map to survive")
	}
}

func TestParseReaction(t *testing.T) {
	ev := &nostr.Event{Kind: 7, Tags: nostr.Tags{{"e", "note1"}, {"p", alice}}}
	r := Parse(ev).(*Reaction)
	if r.Symbol != "+" {
		t.Errorf("Expected empty content to mean '+', got %q", r.Symbol)
	}
	if len(r.Targets) != 1 || r.Targets[0] != "note1" {
		t.Errorf("Expected target note1, got %v", r.Targets)
	}
}

func TestParseReport(t *testing.T) {
	ev := NewNoteReport(Ref{ID: "note1", PubKey: alice}, ReportSpam, "buy now")
	r := Parse(&ev).(*Report)

	if len(r.Notes) != 1 || r.Notes[0].Type != ReportSpam {
		t.Errorf("Expected spam note report, got %+v", r.Notes)
	}
	if len(r.Users) != 1 || r.Users[0].Key != alice {
		t.Errorf("Expected author report, got %+v", r.Users)
	}

	untyped := &nostr.Event{Kind: 1984, Tags: nostr.Tags{{"p", bob}}}
	if got := Parse(untyped).(*Report).Users[0].Type; got != ReportOther {
		t.Errorf("Expected untyped report to default to other, got %s", got)
	}
}

func TestParseChannelMessage(t *testing.T) {
	ev := NewChannelMessage("hi", "chan1", []string{"msg1"}, []string{alice})
	msg := Parse(&ev).(*ChannelMessage)

	if msg.ChannelID != "chan1" {
		t.Errorf("Expected channel chan1, got %q", msg.ChannelID)
	}
	if len(msg.ReplyTos) != 1 || msg.ReplyTos[0] != "msg1" {
		t.Errorf("Expected reply to msg1, got %v", msg.ReplyTos)
	}
}

func TestParseChannelInfo(t *testing.T) {
	ev := NewChannelCreate(ChannelInfo{Name: "quartz", About: "dev chat"})
	info := Parse(&ev).(*ChannelCreate).Info
	if info.Name != "quartz" || info.About != "dev chat" {
		t.Errorf("Unexpected channel info %+v", info)
	}

	if got := ParseChannelInfo("{broken"); got != (ChannelInfo{}) {
		t.Errorf("Expected empty info for broken content, got %+v", got)
	}
}

func TestParseProfile(t *testing.T) {
	p := ParseProfile(`{"name":"alice","displayName":"Alice A","lud16":"alice@ln.example"}`)
	if p.BestName() != "Alice A" {
		t.Errorf("Expected display name fallback, got %q", p.BestName())
	}
	if p.LUD16 != "alice@ln.example" {
		t.Errorf("Expected lud16, got %q", p.LUD16)
	}
	if ParseProfile("nope").Name != "" {
		t.Error("Expected empty profile for invalid JSON")
	}
}

func TestParseZap(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	req := NewZapRequest(Ref{ID: "note1", PubKey: alice}, []string{"wss://relay.damus.io"}, 21000, "gm")
	if err := req.Sign(sk); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	desc, _ := json.Marshal(req)

	receipt := &nostr.Event{
		Kind: 9735,
		Tags: nostr.Tags{
			{"p", alice},
			{"e", "note1"},
			{"bolt11", "lnbc210n1pjexample"},
			{"description", string(desc)},
		},
	}

	z := Parse(receipt).(*Zap)
	if z.Request == nil || z.Request.ID != req.ID {
		t.Fatalf("Expected embedded request %s, got %+v", req.ID, z.Request)
	}
	if z.Sender() != req.PubKey {
		t.Errorf("Expected sender %s, got %s", req.PubKey, z.Sender())
	}
	if z.AmountSats != 21 {
		t.Errorf("Expected 21 sats, got %d", z.AmountSats)
	}

	zr := Parse(z.Request).(*ZapRequest)
	if zr.AmountMsats != 21000 || len(zr.Relays) != 1 {
		t.Errorf("Unexpected zap request %+v", zr)
	}
}

func TestParseInvoiceAmount(t *testing.T) {
	tests := []struct {
		invoice string
		want    int64
		wantErr bool
	}{
		{"lnbc1m1abc", 100000, false},
		{"lnbc25u1abc", 2500, false},
		{"lnbc210n1abc", 21, false},
		{"lnbc10000p1abc", 1, false},
		{"lnbc1abc", 100000000, false},
		{"garbage", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseInvoiceAmount(tt.invoice)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInvoiceAmount(%q) error = %v, wantErr %v", tt.invoice, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInvoiceAmount(%q) = %d, want %d", tt.invoice, got, tt.want)
		}
	}
}

func TestPayInvoiceRequest(t *testing.T) {
	got := PayInvoiceRequest("lnbc1abc")
	if !strings.Contains(got, `"method":"pay_invoice"`) || !strings.Contains(got, `"invoice":"lnbc1abc"`) {
		t.Errorf("Unexpected pay request %s", got)
	}
}

func TestAddress(t *testing.T) {
	addr, err := ParseAddress("30023:" + alice + ":my-article")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addr.Kind != KindLongTextNote || addr.DTag != "my-article" {
		t.Errorf("Unexpected address %+v", addr)
	}
	if addr.String() != "30023:"+alice+":my-article" {
		t.Errorf("String() = %s", addr.String())
	}

	for _, bad := range []string{"", "30023", "x:" + alice + ":d", "30023:nothex:d"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("ParseAddress(%q) expected error", bad)
		}
	}
}

func TestIsNewThread(t *testing.T) {
	root := NewTextNote("gm", nil, nil)
	reply := NewTextNote("gm to you", []Ref{{ID: "note1"}}, nil)
	repost := &nostr.Event{Kind: 6, Tags: nostr.Tags{{"e", "note1"}}}

	if !IsNewThread(Parse(&root)) {
		t.Error("Expected root note to start a thread")
	}
	if IsNewThread(Parse(&reply)) {
		t.Error("Expected reply not to start a thread")
	}
	if !IsNewThread(Parse(repost)) {
		t.Error("Expected repost to count as a new thread")
	}
}

func TestNewTextNote(t *testing.T) {
	addr := Address{Kind: KindLongTextNote, PubKey: alice, DTag: "post"}
	ev := NewTextNote("hello #Nostr and #nostr", []Ref{{ID: "note1"}, {ID: "note2", Address: &addr}}, []string{bob, bob})

	note := Parse(&ev).(*TextNote)
	if len(note.ReplyTos) != 1 || note.ReplyTos[0] != "note1" {
		t.Errorf("Expected e tag for note1 only, got %v", note.ReplyTos)
	}
	if len(note.Addresses) != 1 {
		t.Errorf("Expected a tag for addressable target, got %v", note.Addresses)
	}
	if len(note.Mentions) != 1 {
		t.Errorf("Expected deduplicated mentions, got %v", note.Mentions)
	}
	if len(note.Hashtags) != 2 {
		t.Errorf("Expected both hashtag spellings, got %v", note.Hashtags)
	}
}
