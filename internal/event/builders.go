package event

import (
	"github.com/nbd-wtf/go-nostr"
)

// NewTextNote builds an unsigned text note. Addressable reply targets are
// referenced with "a" tags, the rest with positional "e" tags. Hashtags found
// in the message are added as "t" tags.
func NewTextNote(message string, replyTo []Ref, mentions []string) nostr.Event {
	tags := make(nostr.Tags, 0, len(replyTo)+len(mentions))
	for _, r := range replyTo {
		if r.Address != nil {
			tags = append(tags, nostr.Tag{"a", r.Address.String()})
		} else if r.ID != "" {
			tags = append(tags, nostr.Tag{"e", r.ID})
		}
	}

	seen := make(map[string]struct{}, len(mentions))
	for _, pk := range mentions {
		if _, ok := seen[pk]; ok {
			continue
		}
		seen[pk] = struct{}{}
		tags = append(tags, nostr.Tag{"p", pk})
	}

	for _, t := range FindHashtags(message) {
		tags = append(tags, nostr.Tag{"t", t})
	}

	return nostr.Event{
		Kind:      int(KindTextNote),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   message,
	}
}

// NewReaction builds an unsigned reaction
func NewReaction(target Ref, symbol string) nostr.Event {
	return nostr.Event{
		Kind:      int(KindReaction),
		CreatedAt: nostr.Now(),
		Tags:      target.tags(),
		Content:   symbol,
	}
}

// NewRepost builds an unsigned repost carrying the boosted event as content
func NewRepost(boosted *nostr.Event) nostr.Event {
	return nostr.Event{
		Kind:      int(KindRepost),
		CreatedAt: nostr.Now(),
		Tags:      RefTo(boosted).tags(),
		Content:   boosted.String(),
	}
}

// NewDeletion builds an unsigned deletion of the given events
func NewDeletion(ids []string) nostr.Event {
	tags := make(nostr.Tags, 0, len(ids))
	for _, id := range ids {
		tags = append(tags, nostr.Tag{"e", id})
	}
	return nostr.Event{
		Kind:      int(KindDeletion),
		CreatedAt: nostr.Now(),
		Tags:      tags,
	}
}

// NewChannelMessage builds an unsigned channel message with NIP-10 markers
func NewChannelMessage(message, channelID string, replyTos []string, mentions []string) nostr.Event {
	tags := nostr.Tags{{"e", channelID, "", "root"}}
	for _, id := range replyTos {
		tags = append(tags, nostr.Tag{"e", id, "", "reply"})
	}
	for _, pk := range mentions {
		tags = append(tags, nostr.Tag{"p", pk})
	}
	return nostr.Event{
		Kind:      int(KindChannelMessage),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   message,
	}
}

// NewPrivateDM builds an unsigned direct message. The content must already
// be encrypted to the recipient.
func NewPrivateDM(ciphertext, recipient string, replyTo string) nostr.Event {
	tags := nostr.Tags{{"p", recipient}}
	if replyTo != "" {
		tags = append(tags, nostr.Tag{"e", replyTo})
	}
	return nostr.Event{
		Kind:      int(KindPrivateDM),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   ciphertext,
	}
}
