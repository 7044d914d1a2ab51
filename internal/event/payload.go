package event

import (
	"github.com/nbd-wtf/go-nostr"
)

// Payload is the typed content of an event. The set of implementations is
// closed: one per Kind plus Unknown.
type Payload interface {
	Kind() Kind
	sealed()
}

// TextNote is a short text note (kind 1)
type TextNote struct {
	Thread    *ThreadInfo
	ReplyTos  []string
	Mentions  []string
	Addresses []Address
	Hashtags  []string
}

// LongTextNote is a long-form article (kind 30023)
type LongTextNote struct {
	TextNote
	DTag        string
	Title       string
	Summary     string
	PublishedAt int64
}

// ContactList is a follow list with optional relay configuration (kind 3)
type ContactList struct {
	Follows []Contact
	Tags    []string
	Relays  map[string]ReadWrite
}

// Reaction is a reaction to other events (kind 7)
type Reaction struct {
	Targets         []string
	TargetAuthors   []string
	TargetAddresses []Address
	Symbol          string
}

// Repost boosts other events (kind 6)
type Repost struct {
	Boosted          []string
	BoostedAuthors   []string
	BoostedAddresses []Address
}

// Report flags notes and users (kind 1984)
type Report struct {
	Notes  []ReportTarget
	Users  []ReportTarget
	Reason string
}

// Deletion asks for the author's own events to be removed (kind 5)
type Deletion struct {
	Events    []string
	Addresses []Address
}

// ChannelCreate opens a public chat channel (kind 40)
type ChannelCreate struct {
	Info ChannelInfo
}

// ChannelMetadata updates a channel's info (kind 41)
type ChannelMetadata struct {
	ChannelID string
	Info      ChannelInfo
}

// ChannelMessage is a message posted to a channel (kind 42)
type ChannelMessage struct {
	ChannelID string
	ReplyTos  []string
	Mentions  []string
}

// PrivateDM is an encrypted direct message (kind 4)
type PrivateDM struct {
	Recipient string
	ReplyTos  []string
}

// ZapRequest asks a lightning service to pay a note or user (kind 9734)
type ZapRequest struct {
	Targets         []string
	TargetAddresses []Address
	Recipient       string
	Relays          []string
	AmountMsats     int64
}

// Zap is a receipt for a paid zap request (kind 9735)
type Zap struct {
	Targets    []string
	Recipient  string
	Request    *nostr.Event
	AmountSats int64
}

// ZapPaymentRequest is a wallet connect pay request (kind 23194)
type ZapPaymentRequest struct {
	Wallet string
}

// BookmarkList holds public bookmarks in tags and private ones encrypted in content (kind 30001)
type BookmarkList struct {
	DTag           string
	Events         []string
	Users          []string
	Addresses      []Address
	PrivateContent string
}

// RelayList is a NIP-65 relay list (kind 10002)
type RelayList struct {
	Hints []RelayHint
}

// Metadata is a user profile (kind 0)
type Metadata struct {
	Profile Profile
}

// Unknown is any kind quartz does not interpret
type Unknown struct {
	RawKind int
}

func (*TextNote) Kind() Kind          { return KindTextNote }
func (*LongTextNote) Kind() Kind      { return KindLongTextNote }
func (*ContactList) Kind() Kind       { return KindContactList }
func (*Reaction) Kind() Kind          { return KindReaction }
func (*Repost) Kind() Kind            { return KindRepost }
func (*Report) Kind() Kind            { return KindReport }
func (*Deletion) Kind() Kind          { return KindDeletion }
func (*ChannelCreate) Kind() Kind     { return KindChannelCreate }
func (*ChannelMetadata) Kind() Kind   { return KindChannelMetadata }
func (*ChannelMessage) Kind() Kind    { return KindChannelMessage }
func (*PrivateDM) Kind() Kind         { return KindPrivateDM }
func (*ZapRequest) Kind() Kind        { return KindZapRequest }
func (*Zap) Kind() Kind               { return KindZap }
func (*ZapPaymentRequest) Kind() Kind { return KindZapPaymentRequest }
func (*BookmarkList) Kind() Kind      { return KindBookmarkList }
func (*RelayList) Kind() Kind         { return KindRelayList }
func (*Metadata) Kind() Kind          { return KindMetadata }
func (u *Unknown) Kind() Kind         { return Kind(u.RawKind) }

func (*TextNote) sealed()          {}
func (*LongTextNote) sealed()      {}
func (*ContactList) sealed()       {}
func (*Reaction) sealed()          {}
func (*Repost) sealed()            {}
func (*Report) sealed()            {}
func (*Deletion) sealed()          {}
func (*ChannelCreate) sealed()     {}
func (*ChannelMetadata) sealed()   {}
func (*ChannelMessage) sealed()    {}
func (*PrivateDM) sealed()         {}
func (*ZapRequest) sealed()        {}
func (*Zap) sealed()               {}
func (*ZapPaymentRequest) sealed() {}
func (*BookmarkList) sealed()      {}
func (*RelayList) sealed()         {}
func (*Metadata) sealed()          {}
func (*Unknown) sealed()           {}

// Parse interprets an event. Malformed fields are left empty; Parse never fails.
func Parse(ev *nostr.Event) Payload {
	switch Kind(ev.Kind) {
	case KindMetadata:
		return &Metadata{Profile: ParseProfile(ev.Content)}
	case KindTextNote:
		return parseTextNote(ev)
	case KindLongTextNote:
		return parseLongTextNote(ev)
	case KindContactList:
		return parseContactList(ev)
	case KindPrivateDM:
		return &PrivateDM{Recipient: first(tagValues(ev, "p")), ReplyTos: tagValues(ev, "e")}
	case KindDeletion:
		return &Deletion{Events: tagValues(ev, "e"), Addresses: addressValues(ev)}
	case KindRepost:
		return &Repost{
			Boosted:          tagValues(ev, "e"),
			BoostedAuthors:   tagValues(ev, "p"),
			BoostedAddresses: addressValues(ev),
		}
	case KindReaction:
		return parseReaction(ev)
	case KindChannelCreate:
		return &ChannelCreate{Info: ParseChannelInfo(ev.Content)}
	case KindChannelMetadata:
		return &ChannelMetadata{ChannelID: first(tagValues(ev, "e")), Info: ParseChannelInfo(ev.Content)}
	case KindChannelMessage:
		return parseChannelMessage(ev)
	case KindReport:
		return parseReport(ev)
	case KindZapRequest:
		return parseZapRequest(ev)
	case KindZap:
		return parseZap(ev)
	case KindZapPaymentRequest:
		return &ZapPaymentRequest{Wallet: first(tagValues(ev, "p"))}
	case KindBookmarkList:
		return &BookmarkList{
			DTag:           DTag(ev),
			Events:         tagValues(ev, "e"),
			Users:          tagValues(ev, "p"),
			Addresses:      addressValues(ev),
			PrivateContent: ev.Content,
		}
	case KindRelayList:
		hints, _ := ParseRelayHints(ev)
		return &RelayList{Hints: hints}
	default:
		return &Unknown{RawKind: ev.Kind}
	}
}

func parseTextNote(ev *nostr.Event) *TextNote {
	note := &TextNote{
		ReplyTos:  tagValues(ev, "e"),
		Mentions:  tagValues(ev, "p"),
		Addresses: addressValues(ev),
		Hashtags:  tagValues(ev, "t"),
	}
	note.Thread, _ = ParseThreadInfo(ev)
	return note
}

func parseLongTextNote(ev *nostr.Event) *LongTextNote {
	note := &LongTextNote{
		TextNote: *parseTextNote(ev),
		DTag:     DTag(ev),
		Title:    first(tagValues(ev, "title")),
		Summary:  first(tagValues(ev, "summary")),
	}
	if ts := first(tagValues(ev, "published_at")); ts != "" {
		note.PublishedAt = parseInt(ts)
	}
	return note
}

func parseReaction(ev *nostr.Event) *Reaction {
	symbol := ev.Content
	if symbol == "" {
		symbol = "+"
	}
	return &Reaction{
		Targets:         tagValues(ev, "e"),
		TargetAuthors:   tagValues(ev, "p"),
		TargetAddresses: addressValues(ev),
		Symbol:          symbol,
	}
}

func parseChannelMessage(ev *nostr.Event) *ChannelMessage {
	msg := &ChannelMessage{Mentions: tagValues(ev, "p")}

	info, err := ParseThreadInfo(ev)
	if err != nil {
		return msg
	}
	// The channel is the thread root; everything else is a reply target
	msg.ChannelID = info.RootEventID
	for _, id := range tagValues(ev, "e") {
		if id != msg.ChannelID {
			msg.ReplyTos = append(msg.ReplyTos, id)
		}
	}
	return msg
}

// IsNewThread reports whether a note starts a thread rather than replying
func IsNewThread(p Payload) bool {
	switch v := p.(type) {
	case *Repost:
		return true
	case *TextNote:
		return len(v.ReplyTos) == 0 && len(v.Addresses) == 0
	case *LongTextNote:
		return len(v.ReplyTos) == 0
	default:
		return false
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
