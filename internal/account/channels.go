package account

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

// FollowingChannels returns the channels the account joined
func (a *Account) FollowingChannels() []*cache.Channel {
	ids := a.Settings().FollowingChannels
	out := make([]*cache.Channel, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.store.GetOrCreateChannel(id))
	}
	return out
}

// JoinChannel adds a channel to the followed channels
func (a *Account) JoinChannel(id string) {
	a.update(func(s *Settings) { s.FollowingChannels = withItem(s.FollowingChannels, id) })
}

// LeaveChannel removes a channel from the followed channels
func (a *Account) LeaveChannel(id string) {
	a.update(func(s *Settings) { s.FollowingChannels = withoutItem(s.FollowingChannels, id) })
}

// SendChannelMessage posts to a public chat channel
func (a *Account) SendChannelMessage(message, channelID string, replyTo *cache.Note, mentions []string) *nostr.Event {
	if !a.writeable("channel message") {
		return nil
	}
	var replyTos []string
	if replyTo != nil {
		replyTos = []string{replyTo.Key()}
	}
	return a.publish("channel message", event.NewChannelMessage(message, channelID, replyTos, mentions))
}

// SendCreateNewChannel creates a channel and joins it
func (a *Account) SendCreateNewChannel(name, about, picture string) *nostr.Event {
	if !a.writeable("create channel") {
		return nil
	}
	ev := a.publish("create channel", event.NewChannelCreate(event.ChannelInfo{Name: name, About: about, Picture: picture}))
	if ev != nil {
		a.JoinChannel(ev.ID)
	}
	return ev
}

// SendChangeChannel publishes new info for a channel and joins it
func (a *Account) SendChangeChannel(name, about, picture, channelID string) *nostr.Event {
	if !a.writeable("change channel") {
		return nil
	}
	ev := a.publish("change channel", event.NewChannelMetadata(channelID, event.ChannelInfo{Name: name, About: about, Picture: picture}))
	if ev != nil {
		a.JoinChannel(channelID)
	}
	return ev
}

// SendPrivateMessage sends an encrypted direct message to a user the store
// already knows
func (a *Account) SendPrivateMessage(message, to string, replyTo *cache.Note) *nostr.Event {
	if !a.writeable("private message") {
		return nil
	}
	if _, ok := a.store.User(to); !ok {
		a.logger.LogMutationSkipped("private message", "unknown recipient")
		return nil
	}

	cipher, err := a.signer.Encrypt(message, to)
	if err != nil {
		a.logger.LogMutationSkipped("private message", err.Error())
		return nil
	}
	replyID := ""
	if replyTo != nil {
		replyID = replyTo.Key()
	}
	return a.publish("private message", event.NewPrivateDM(cipher, to, replyID))
}

// DecryptContent returns the readable text of a note. Direct messages are
// decrypted with the counterparty's key; anything else is returned as is.
func (a *Account) DecryptContent(note *cache.Note) (string, error) {
	ev := note.Event()
	if ev == nil {
		return "", nil
	}
	dm, ok := note.Payload().(*event.PrivateDM)
	if !ok {
		return ev.Content, nil
	}
	if a.signer == nil {
		return "", ErrUndecryptable
	}

	counterparty := ev.PubKey
	if ev.PubKey == a.pubkey && dm.Recipient != "" {
		counterparty = dm.Recipient
	}
	plaintext, err := a.signer.Decrypt(ev.Content, counterparty)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return plaintext, nil
}
