package account

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/relay"
)

// Warning is the reaction sent alongside a note report
const Warning = "⚠️"

// SendNewRelayList publishes the relay map as part of the contact list. An
// account that follows nobody only applies it locally, so a good list on
// the relays is never replaced by an empty one.
func (a *Account) SendNewRelayList(relays map[string]event.ReadWrite) {
	if !a.writeable("relay list") {
		return
	}

	contacts := a.UserProfile().Contacts()
	if contacts != nil && len(contacts.Follows) > 0 {
		a.publish("relay list", event.NewContactList(contacts.Follows, contacts.Tags, relays))
		return
	}
	a.publishLocal("relay list", event.NewContactList(nil, nil, relays))
}

// SendNewUserMetadata publishes a new profile
func (a *Account) SendNewUserMetadata(content string, claims []event.IdentityClaim) {
	if !a.writeable("metadata") {
		return
	}
	a.publish("metadata", event.NewMetadata(content, claims))
}

// HasReacted reports whether the account reacted to the note with symbol
func (a *Account) HasReacted(note *cache.Note, symbol string) bool {
	return note.HasReacted(a.pubkey, reactionSymbol(symbol))
}

func reactionSymbol(symbol string) string {
	if symbol == "" {
		return "+"
	}
	return symbol
}

// ReactTo reacts to a note, once per symbol
func (a *Account) ReactTo(note *cache.Note, symbol string) {
	if !a.writeable("react") {
		return
	}
	symbol = reactionSymbol(symbol)
	if a.HasReacted(note, symbol) {
		a.logger.LogMutationSkipped("react", "already reacted")
		return
	}
	if !note.Loaded() {
		a.logger.LogMutationSkipped("react", "note not loaded")
		return
	}
	a.publish("react", event.NewReaction(note.Ref(), symbol))
}

// HasBoosted reports whether the account ever reposted the note
func (a *Account) HasBoosted(note *cache.Note) bool {
	return len(note.BoostsBy(a.pubkey)) > 0
}

// Boost reposts a note unless the account already did within the boost window
func (a *Account) Boost(note *cache.Note) {
	if !a.writeable("boost") {
		return
	}
	if note.HasBoostedSince(a.pubkey, a.now().Add(-a.policy.BoostWindow)) {
		a.logger.LogMutationSkipped("boost", "boosted within window")
		return
	}
	ev := note.Event()
	if ev == nil {
		a.logger.LogMutationSkipped("boost", "note not loaded")
		return
	}
	a.publish("boost", event.NewRepost(ev))
}

// Broadcast re-sends a note's event as is, signed by whoever wrote it
func (a *Account) Broadcast(note *cache.Note) {
	if ev := note.Event(); ev != nil {
		a.transport.Send(ev)
	}
}

// Delete asks relays to remove the account's own notes among those given
func (a *Account) Delete(notes ...*cache.Note) {
	if !a.writeable("delete") {
		return
	}

	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		if n.Author() == a.pubkey && n.EventID() != "" {
			ids = append(ids, n.EventID())
		}
	}
	if len(ids) == 0 {
		a.logger.LogMutationSkipped("delete", "no notes authored by account")
		return
	}
	a.publish("delete", event.NewDeletion(ids))
}

// ReportNote reports a note and its author. A warning reaction is sent too
// unless the account already left one.
func (a *Account) ReportNote(note *cache.Note, rt event.ReportType, reason string) {
	if !a.writeable("report") {
		return
	}
	if note.HasReport(a.pubkey, rt) {
		a.logger.LogMutationSkipped("report", "already reported")
		return
	}
	if !note.Loaded() {
		a.logger.LogMutationSkipped("report", "note not loaded")
		return
	}

	if !a.HasReacted(note, Warning) {
		a.publish("report", event.NewReaction(note.Ref(), Warning))
	}
	a.publish("report", event.NewNoteReport(note.Ref(), rt, reason))
}

// ReportUser reports a user
func (a *Account) ReportUser(pubkey string, rt event.ReportType, reason string) {
	if !a.writeable("report") {
		return
	}
	if a.store.GetOrCreateUser(pubkey).HasReport(a.pubkey, rt) {
		a.logger.LogMutationSkipped("report", "already reported")
		return
	}
	a.publish("report", event.NewUserReport(pubkey, rt, reason))
}

// contactListParts returns what a new contact list starts from: the current
// one, or an empty list on the default relays
func (a *Account) contactListParts() (follows []event.Contact, tags []string, relays map[string]event.ReadWrite, exists bool) {
	contacts := a.UserProfile().Contacts()
	if contacts == nil {
		return nil, nil, a.defaultRelayMap(), false
	}
	return slices.Clone(contacts.Follows), slices.Clone(contacts.Tags), maps.Clone(contacts.Relays), true
}

func (a *Account) defaultRelayMap() map[string]event.ReadWrite {
	out := make(map[string]event.ReadWrite, len(a.defaults))
	for _, r := range a.defaults {
		out[r.URL] = event.ReadWrite{Read: r.Read, Write: r.Write}
	}
	return out
}

// Follow adds a user to the contact list, creating the list if needed
func (a *Account) Follow(pubkey string) {
	if !a.writeable("follow") {
		return
	}
	if !nostr.IsValid32ByteHex(pubkey) {
		a.logger.LogMutationSkipped("follow", "invalid pubkey")
		return
	}

	follows, tags, relays, _ := a.contactListParts()
	for _, c := range follows {
		if c.PubKey == pubkey {
			a.logger.LogMutationSkipped("follow", "already following")
			return
		}
	}
	follows = append(follows, event.Contact{PubKey: pubkey})
	a.publish("follow", event.NewContactList(follows, tags, relays))
}

// FollowTag adds a hashtag to the contact list, creating the list if needed
func (a *Account) FollowTag(tag string) {
	if !a.writeable("follow tag") {
		return
	}
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return
	}

	follows, tags, relays, _ := a.contactListParts()
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			a.logger.LogMutationSkipped("follow tag", "already following")
			return
		}
	}
	tags = append(tags, tag)
	a.publish("follow tag", event.NewContactList(follows, tags, relays))
}

// Unfollow removes a user from the contact list. Without a contact list
// there is nothing to remove.
func (a *Account) Unfollow(pubkey string) {
	if !a.writeable("unfollow") {
		return
	}

	follows, tags, relays, exists := a.contactListParts()
	if !exists || (len(follows) == 0 && len(tags) == 0) {
		a.logger.LogMutationSkipped("unfollow", "no contact list")
		return
	}
	follows = slices.DeleteFunc(follows, func(c event.Contact) bool { return c.PubKey == pubkey })
	a.publish("unfollow", event.NewContactList(follows, tags, relays))
}

// UnfollowTag removes a hashtag from the contact list, ignoring case
func (a *Account) UnfollowTag(tag string) {
	if !a.writeable("unfollow tag") {
		return
	}
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")

	follows, tags, relays, exists := a.contactListParts()
	if !exists || (len(follows) == 0 && len(tags) == 0) {
		a.logger.LogMutationSkipped("unfollow tag", "no contact list")
		return
	}
	tags = slices.DeleteFunc(tags, func(t string) bool { return strings.EqualFold(t, tag) })
	a.publish("unfollow tag", event.NewContactList(follows, tags, relays))
}

// SendPost publishes a text note replying to the given notes
func (a *Account) SendPost(message string, replyTo []*cache.Note, mentions []string) *nostr.Event {
	if !a.writeable("post") {
		return nil
	}
	refs := make([]event.Ref, 0, len(replyTo))
	for _, n := range replyTo {
		refs = append(refs, n.Ref())
	}
	return a.publish("post", event.NewTextNote(message, refs, mentions))
}

// zapRelays are the relays receipts should be published to
func (a *Account) zapRelays() []string {
	if relays := a.UserProfile().ContactRelays(); len(relays) > 0 {
		return slices.Sorted(maps.Keys(relays))
	}
	urls := make([]string, 0)
	for _, r := range a.Settings().LocalRelays {
		urls = append(urls, r.URL)
	}
	return urls
}

// CreateZapRequestFor signs a zap request for a note. The request is handed
// to the recipient's lightning service, not published.
func (a *Account) CreateZapRequestFor(note *cache.Note, amountMsats int64, message string) (*nostr.Event, error) {
	if a.signer == nil {
		return nil, ErrReadOnly
	}
	if !note.Loaded() {
		return nil, fmt.Errorf("note %s is not loaded", note.Key())
	}
	return a.sign(event.NewZapRequest(note.Ref(), a.zapRelays(), amountMsats, message))
}

// CreateZapRequestForUser signs a zap request for a user's profile
func (a *Account) CreateZapRequestForUser(pubkey string, amountMsats int64, message string) (*nostr.Event, error) {
	if a.signer == nil {
		return nil, ErrReadOnly
	}
	return a.sign(event.NewZapRequest(event.Ref{PubKey: pubkey}, a.zapRelays(), amountMsats, message))
}

// HasWalletConnectSetup reports whether zap payments can be sent to a wallet
func (a *Account) HasWalletConnectSetup() bool {
	return a.Settings().ZapPaymentRequest != nil
}

// SendZapPaymentRequestFor asks the wallet service to pay an invoice. The
// request goes to the wallet's relay only and is not kept locally.
func (a *Account) SendZapPaymentRequestFor(invoice string) {
	if !a.writeable("zap payment") {
		return
	}
	wc := a.Settings().ZapPaymentRequest
	if wc == nil {
		a.logger.LogMutationSkipped("zap payment", "no wallet connect setup")
		return
	}

	cipher, err := a.signer.Encrypt(event.PayInvoiceRequest(invoice), wc.PubKey)
	if err != nil {
		a.logger.LogMutationSkipped("zap payment", err.Error())
		return
	}
	ev, err := a.sign(event.NewZapPaymentRequest(cipher, wc.PubKey))
	if err != nil {
		a.logger.LogMutationSkipped("zap payment", err.Error())
		return
	}
	a.transport.Send(ev, wc.RelayURL)
}

// SaveRelayList replaces the local relay set and publishes it
func (a *Account) SaveRelayList(relays []relay.Relay) {
	a.mu.Lock()
	a.settings.LocalRelays = relay.ToConfig(relays)
	a.mu.Unlock()

	relayMap := make(map[string]event.ReadWrite, len(relays))
	for _, r := range relays {
		relayMap[r.URL] = event.ReadWrite{Read: r.Read, Write: r.Write}
	}
	a.SendNewRelayList(relayMap)

	a.saveable.Invalidate()
	a.reconnect.Invalidate()
}
