// Package event gives the raw Nostr events seen by quartz a closed set of
// typed payloads, and builds the unsigned events the account publishes.
package event

// Kind is a Nostr event kind understood by quartz
type Kind int

const (
	KindMetadata          Kind = 0
	KindTextNote          Kind = 1
	KindContactList       Kind = 3
	KindPrivateDM         Kind = 4
	KindDeletion          Kind = 5
	KindRepost            Kind = 6
	KindReaction          Kind = 7
	KindChannelCreate     Kind = 40
	KindChannelMetadata   Kind = 41
	KindChannelMessage    Kind = 42
	KindReport            Kind = 1984
	KindZapRequest        Kind = 9734
	KindZap               Kind = 9735
	KindRelayList         Kind = 10002
	KindZapPaymentRequest Kind = 23194
	KindBookmarkList      Kind = 30001
	KindLongTextNote      Kind = 30023
)

var kindNames = map[Kind]string{
	KindMetadata:          "metadata",
	KindTextNote:          "text-note",
	KindContactList:       "contact-list",
	KindPrivateDM:         "private-dm",
	KindDeletion:          "deletion",
	KindRepost:            "repost",
	KindReaction:          "reaction",
	KindChannelCreate:     "channel-create",
	KindChannelMetadata:   "channel-metadata",
	KindChannelMessage:    "channel-message",
	KindReport:            "report",
	KindZapRequest:        "zap-request",
	KindZap:               "zap",
	KindRelayList:         "relay-list",
	KindZapPaymentRequest: "zap-payment-request",
	KindBookmarkList:      "bookmark-list",
	KindLongTextNote:      "long-text-note",
}

// String returns the kind name, or "unknown"
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether quartz understands the kind
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// IsReplaceable reports whether only the latest event per author is kept
func (k Kind) IsReplaceable() bool {
	return k == KindMetadata || k == KindContactList || (k >= 10000 && k < 20000)
}

// IsAddressable reports whether events are keyed by kind:pubkey:d
func (k Kind) IsAddressable() bool {
	return k >= 30000 && k < 40000
}
