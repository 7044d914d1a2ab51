package cache

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/sandwichfarm/quartz/internal/event"
)

// Zap pairs a zap request with its receipt, once the receipt is seen
type Zap struct {
	RequestID  string
	Sender     string
	ReceiptID  string
	AmountSats int64
}

type boost struct {
	author    string
	createdAt nostr.Timestamp
}

// Note is one event in the graph. A note may be a placeholder: referenced by
// other events but not loaded yet.
type Note struct {
	key     string
	address *event.Address

	mu        sync.RWMutex
	ev        *nostr.Event
	payload   event.Payload
	replyTo   []string
	channel   string
	replies   map[string]struct{}
	reactions map[string]map[string]map[string]struct{} // symbol -> author -> reaction keys
	boosts    map[string]boost
	zaps      map[string]Zap
	reports   map[string]Report
	relays    map[string]struct{}

	deleted   bool
	deletedAt nostr.Timestamp
	// authors who asked to delete this note before it was loaded
	pendingDeletes map[string]nostr.Timestamp
}

func newNote(key string, addr *event.Address) *Note {
	return &Note{
		key:            key,
		address:        addr,
		replies:        make(map[string]struct{}),
		reactions:      make(map[string]map[string]map[string]struct{}),
		boosts:         make(map[string]boost),
		zaps:           make(map[string]Zap),
		reports:        make(map[string]Report),
		relays:         make(map[string]struct{}),
		pendingDeletes: make(map[string]nostr.Timestamp),
	}
}

// Key returns the note's key: the event id, or the address for addressable notes
func (n *Note) Key() string { return n.key }

// Address returns the address of an addressable note, or nil
func (n *Note) Address() *event.Address { return n.address }

// IsAddressable reports whether the note is keyed by address
func (n *Note) IsAddressable() bool { return n.address != nil }

// Event returns the loaded event, or nil for placeholders. Events are shared
// and must not be modified.
func (n *Note) Event() *nostr.Event {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ev
}

// Payload returns the typed payload, or nil for placeholders
func (n *Note) Payload() event.Payload {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.payload
}

// Loaded reports whether the note's event has been seen
func (n *Note) Loaded() bool {
	return n.Event() != nil
}

// EventID returns the id of the loaded event, or ""
func (n *Note) EventID() string {
	if ev := n.Event(); ev != nil {
		return ev.ID
	}
	return ""
}

// Author returns the author pubkey, or "" for placeholders
func (n *Note) Author() string {
	if ev := n.Event(); ev != nil {
		return ev.PubKey
	}
	if n.address != nil {
		return n.address.PubKey
	}
	return ""
}

// CreatedAt returns the event time, or 0 for placeholders
func (n *Note) CreatedAt() nostr.Timestamp {
	if ev := n.Event(); ev != nil {
		return ev.CreatedAt
	}
	return 0
}

// Kind returns the event kind, or -1 for placeholders
func (n *Note) Kind() int {
	if ev := n.Event(); ev != nil {
		return ev.Kind
	}
	return -1
}

// Bech32 returns note1... for regular notes and naddr1... for addressable ones
func (n *Note) Bech32() string {
	if n.address != nil {
		s, err := nip19.EncodeEntity(n.address.PubKey, int(n.address.Kind), n.address.DTag, nil)
		if err == nil {
			return s
		}
		return n.key
	}
	s, err := nip19.EncodeNote(n.key)
	if err != nil {
		return n.key
	}
	return s
}

// Ref returns a reference usable when building events that point here
func (n *Note) Ref() event.Ref {
	ref := event.Ref{ID: n.EventID(), PubKey: n.Author(), Address: n.address}
	if ref.ID == "" && n.address == nil {
		ref.ID = n.key
	}
	return ref
}

// IsDeleted reports whether the author deleted the note
func (n *Note) IsDeleted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deleted
}

// ReplyTo returns the keys of notes this note replies to, reacts to or boosts
func (n *Note) ReplyTo() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.replyTo)
}

// Channel returns the channel id of a channel message, or ""
func (n *Note) Channel() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.channel
}

// Replies returns the keys of replies
func (n *Note) Replies() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Sorted(maps.Keys(n.replies))
}

// ReplyCount returns the number of replies
func (n *Note) ReplyCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.replies)
}

// ReactionCounts returns, per symbol, the number of distinct reacting authors
func (n *Note) ReactionCounts() map[string]int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	counts := make(map[string]int, len(n.reactions))
	for symbol, byAuthor := range n.reactions {
		if len(byAuthor) > 0 {
			counts[symbol] = len(byAuthor)
		}
	}
	return counts
}

// ReactionCount returns the number of distinct reacting authors for a symbol
func (n *Note) ReactionCount(symbol string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.reactions[symbol])
}

// HasReacted reports whether author reacted with symbol
func (n *Note) HasReacted(author, symbol string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.reactions[symbol][author]) > 0
}

// ReactionsBy returns the keys of every reaction by author, any symbol
func (n *Note) ReactionsBy(author string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0)
	for _, byAuthor := range n.reactions {
		for key := range byAuthor[author] {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

// Boosts returns the keys of reposts of this note
func (n *Note) Boosts() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Sorted(maps.Keys(n.boosts))
}

// BoostsBy returns the keys of reposts by author
func (n *Note) BoostsBy(author string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0)
	for key, b := range n.boosts {
		if b.author == author {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

// HasBoostedSince reports whether author reposted the note at or after since
func (n *Note) HasBoostedSince(author string, since time.Time) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, b := range n.boosts {
		if b.author == author && int64(b.createdAt) >= since.Unix() {
			return true
		}
	}
	return false
}

// Zaps returns a copy of the zaps keyed by zap request id
func (n *Note) Zaps() map[string]Zap {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return maps.Clone(n.zaps)
}

// ZapTotalSats sums the amounts of paid zaps
func (n *Note) ZapTotalSats() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var total int64
	for _, z := range n.zaps {
		total += z.AmountSats
	}
	return total
}

// Reports returns every report filed against the note
func (n *Note) Reports() []Report {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Collect(maps.Values(n.reports))
}

// ReportsBy returns reports against the note filed by any of the authors
func (n *Note) ReportsBy(authors map[string]struct{}) []Report {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return reportsBy(n.reports, authors)
}

// HasReport reports whether author filed a report of type rt against the note
func (n *Note) HasReport(author string, rt event.ReportType) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return hasReport(n.reports, author, rt)
}

// CountReportAuthors counts distinct authors, among the given set, who reported the note
func (n *Note) CountReportAuthors(among map[string]struct{}) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return countReportAuthors(n.reports, among)
}

// Relays returns the relays the note was seen on
func (n *Note) Relays() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Sorted(maps.Keys(n.relays))
}

func (n *Note) addRelay(relayURL string) {
	if relayURL == "" {
		return
	}
	n.mu.Lock()
	n.relays[relayURL] = struct{}{}
	n.mu.Unlock()
}

// load fills a placeholder. It reports false when the note was already
// loaded, in which case only the relay is merged.
func (n *Note) load(ev *nostr.Event, payload event.Payload, relayURL string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if relayURL != "" {
		n.relays[relayURL] = struct{}{}
	}
	if n.ev != nil {
		return false
	}

	n.ev = ev
	n.payload = payload
	n.replyTo, n.channel = references(payload)

	if at, ok := n.pendingDeletes[ev.PubKey]; ok {
		n.deleted = true
		n.deletedAt = at
	}
	n.pendingDeletes = nil
	return true
}

// replace swaps the event of an addressable note when ev is strictly newer.
// It returns the payload that was replaced, if any.
func (n *Note) replace(ev *nostr.Event, payload event.Payload, relayURL string) (replaced bool, previous event.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ev != nil && ev.CreatedAt <= n.ev.CreatedAt {
		if ev.ID == n.ev.ID && relayURL != "" {
			n.relays[relayURL] = struct{}{}
		}
		return false, nil
	}

	previous = n.payload
	n.ev = ev
	n.payload = payload
	n.replyTo, n.channel = references(payload)
	if relayURL != "" {
		n.relays[relayURL] = struct{}{}
	}

	if at, ok := n.pendingDeletes[ev.PubKey]; ok && ev.CreatedAt <= at {
		n.deleted = true
		n.deletedAt = at
	}
	if n.deleted && ev.CreatedAt > n.deletedAt {
		n.deleted = false
	}
	return true, previous
}

// requestDeletion tombstones the note if deleter is its author. It reports
// whether the note went from live to deleted.
func (n *Note) requestDeletion(deleter string, at nostr.Timestamp) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ev == nil {
		if n.pendingDeletes == nil {
			n.pendingDeletes = make(map[string]nostr.Timestamp)
		}
		if prev, ok := n.pendingDeletes[deleter]; !ok || at > prev {
			n.pendingDeletes[deleter] = at
		}
		return false
	}
	if n.ev.PubKey != deleter || n.deleted {
		return false
	}
	if n.address != nil && n.ev.CreatedAt > at {
		return false
	}

	n.deleted = true
	n.deletedAt = at
	return true
}

func (n *Note) addReply(key string) {
	n.mu.Lock()
	n.replies[key] = struct{}{}
	n.mu.Unlock()
}

func (n *Note) removeReply(key string) {
	n.mu.Lock()
	delete(n.replies, key)
	n.mu.Unlock()
}

func (n *Note) addReaction(symbol, author, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	byAuthor, ok := n.reactions[symbol]
	if !ok {
		byAuthor = make(map[string]map[string]struct{})
		n.reactions[symbol] = byAuthor
	}
	keys, ok := byAuthor[author]
	if !ok {
		keys = make(map[string]struct{})
		byAuthor[author] = keys
	}
	keys[key] = struct{}{}
}

func (n *Note) removeReaction(symbol, author, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	keys := n.reactions[symbol][author]
	delete(keys, key)
	if len(keys) == 0 {
		delete(n.reactions[symbol], author)
	}
	if len(n.reactions[symbol]) == 0 {
		delete(n.reactions, symbol)
	}
}

func (n *Note) addBoost(key, author string, at nostr.Timestamp) {
	n.mu.Lock()
	n.boosts[key] = boost{author: author, createdAt: at}
	n.mu.Unlock()
}

func (n *Note) removeBoost(key string) {
	n.mu.Lock()
	delete(n.boosts, key)
	n.mu.Unlock()
}

// addZap records a request or a receipt. A receipt completes an earlier
// request entry; a late request never overwrites a receipt.
func (n *Note) addZap(z Zap) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.zaps[z.RequestID]; ok && existing.ReceiptID != "" && z.ReceiptID == "" {
		return
	}
	n.zaps[z.RequestID] = z
}

func (n *Note) removeZap(requestID string) {
	n.mu.Lock()
	delete(n.zaps, requestID)
	n.mu.Unlock()
}

// removeReceipt turns the zap paid by receiptID back into a bare request
func (n *Note) removeReceipt(requestID, receiptID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if z, ok := n.zaps[requestID]; ok && z.ReceiptID == receiptID {
		n.zaps[requestID] = Zap{RequestID: z.RequestID, Sender: z.Sender}
	}
}

func (n *Note) addReport(r Report) {
	n.mu.Lock()
	n.reports[r.ID] = r
	n.mu.Unlock()
}

func (n *Note) removeReport(id string) {
	n.mu.Lock()
	delete(n.reports, id)
	n.mu.Unlock()
}

// references lists the keys a payload points at, and its channel
func references(p event.Payload) (replyTo []string, channel string) {
	add := func(ids []string, addrs []event.Address) {
		replyTo = append(replyTo, ids...)
		for _, a := range addrs {
			replyTo = append(replyTo, a.String())
		}
	}

	switch v := p.(type) {
	case *event.TextNote:
		add(v.ReplyTos, v.Addresses)
	case *event.LongTextNote:
		add(v.ReplyTos, v.Addresses)
	case *event.ChannelMessage:
		add(v.ReplyTos, nil)
		channel = v.ChannelID
	case *event.Reaction:
		add(v.Targets, v.TargetAddresses)
	case *event.Repost:
		add(v.Boosted, v.BoostedAddresses)
	case *event.PrivateDM:
		add(v.ReplyTos, nil)
	case *event.ChannelMetadata:
		channel = v.ChannelID
	}
	return replyTo, channel
}
