package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/sandwichfarm/quartz/internal/event"
)

// Report is one report note filed against a note or user
type Report struct {
	ID        string
	Author    string
	Types     []event.ReportType
	CreatedAt nostr.Timestamp
}

// User is everything known about one pubkey
type User struct {
	pubkey string

	mu           sync.RWMutex
	metadata     *nostr.Event
	profile      event.Profile
	contactList  *nostr.Event
	contacts     *event.ContactList
	followKeys   map[string]struct{}
	followTags   map[string]struct{}
	relayList    *nostr.Event
	relayHints   []event.RelayHint
	bookmarkList *nostr.Event
	notes        map[string]struct{}
	reports      map[string]Report
	zaps         map[string]Zap
	relaysSeen   map[string]struct{}
	lastActive   nostr.Timestamp
}

func newUser(pubkey string) *User {
	return &User{
		pubkey:     pubkey,
		notes:      make(map[string]struct{}),
		reports:    make(map[string]Report),
		zaps:       make(map[string]Zap),
		relaysSeen: make(map[string]struct{}),
	}
}

// PubKey returns the user's hex pubkey
func (u *User) PubKey() string { return u.pubkey }

// Npub returns the bech32 form of the pubkey
func (u *User) Npub() string {
	npub, err := nip19.EncodePublicKey(u.pubkey)
	if err != nil {
		return u.pubkey
	}
	return npub
}

// Profile returns the latest parsed metadata
func (u *User) Profile() event.Profile {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.profile
}

// DisplayName returns the best available name, or a shortened npub
func (u *User) DisplayName() string {
	if name := u.Profile().BestName(); name != "" {
		return name
	}
	npub := u.Npub()
	if len(npub) > 16 {
		return npub[:12] + "..." + npub[len(npub)-4:]
	}
	return npub
}

// LatestMetadata returns the newest metadata event, or nil
func (u *User) LatestMetadata() *nostr.Event {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.metadata
}

// LatestContactList returns the newest contact list event, or nil
func (u *User) LatestContactList() *nostr.Event {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.contactList
}

// Contacts returns the parsed newest contact list, or nil
func (u *User) Contacts() *event.ContactList {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.contacts
}

// ContactRelays returns the relay map of the newest contact list, or nil
func (u *User) ContactRelays() map[string]event.ReadWrite {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.contacts == nil || u.contacts.Relays == nil {
		return nil
	}
	return maps.Clone(u.contacts.Relays)
}

// LatestBookmarkList returns the newest bookmark list event, or nil
func (u *User) LatestBookmarkList() *nostr.Event {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.bookmarkList
}

// LatestRelayList returns the newest NIP-65 relay list event, or nil
func (u *User) LatestRelayList() *nostr.Event {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.relayList
}

// RelayHints returns the entries of the newest NIP-65 relay list
func (u *User) RelayHints() []event.RelayHint {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Clone(u.relayHints)
}

// FollowingKeySet returns a copy of the followed pubkeys
func (u *User) FollowingKeySet() map[string]struct{} {
	u.mu.RLock()
	if u.followKeys != nil || u.contacts == nil {
		defer u.mu.RUnlock()
		return maps.Clone(orEmpty(u.followKeys))
	}
	u.mu.RUnlock()

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.followKeys == nil && u.contacts != nil {
		u.followKeys = u.contacts.FollowKeys()
	}
	return maps.Clone(orEmpty(u.followKeys))
}

// FollowingTagSet returns a copy of the followed hashtags
func (u *User) FollowingTagSet() map[string]struct{} {
	u.mu.RLock()
	if u.followTags != nil || u.contacts == nil {
		defer u.mu.RUnlock()
		return maps.Clone(orEmpty(u.followTags))
	}
	u.mu.RUnlock()

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.followTags == nil && u.contacts != nil {
		u.followTags = u.contacts.FollowTags()
	}
	return maps.Clone(orEmpty(u.followTags))
}

// IsFollowing reports whether the user's contact list includes pubkey
func (u *User) IsFollowing(pubkey string) bool {
	_, ok := u.FollowingKeySet()[pubkey]
	return ok
}

// IsFollowingTag reports whether the user follows a hashtag, ignoring case
func (u *User) IsFollowingTag(tag string) bool {
	for t := range u.FollowingTagSet() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// FollowCount returns the number of followed pubkeys
func (u *User) FollowCount() int {
	return len(u.FollowingKeySet())
}

// NoteKeys returns the keys of notes authored by the user
func (u *User) NoteKeys() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Sorted(maps.Keys(u.notes))
}

// Reports returns every report filed against the user
func (u *User) Reports() []Report {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Collect(maps.Values(u.reports))
}

// ReportsBy returns reports against the user filed by any of the authors
func (u *User) ReportsBy(authors map[string]struct{}) []Report {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return reportsBy(u.reports, authors)
}

// HasReport reports whether author filed a report of type rt against the user
func (u *User) HasReport(author string, rt event.ReportType) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return hasReport(u.reports, author, rt)
}

// CountReportAuthors counts distinct authors, among the given set, who reported the user
func (u *User) CountReportAuthors(among map[string]struct{}) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return countReportAuthors(u.reports, among)
}

// ZapTotalSats sums profile zaps received
func (u *User) ZapTotalSats() int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var total int64
	for _, z := range u.zaps {
		total += z.AmountSats
	}
	return total
}

// Relays returns the relays the user's events were seen on
func (u *User) Relays() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Sorted(maps.Keys(u.relaysSeen))
}

// LastActive returns the newest created_at seen from the user
func (u *User) LastActive() nostr.Timestamp {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastActive
}

func (u *User) seen(relayURL string, at nostr.Timestamp) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if relayURL != "" {
		u.relaysSeen[relayURL] = struct{}{}
	}
	if at > u.lastActive {
		u.lastActive = at
	}
}

func (u *User) updateMetadata(ev *nostr.Event) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.metadata != nil && ev.CreatedAt <= u.metadata.CreatedAt {
		return false
	}
	u.metadata = ev
	u.profile = event.ParseProfile(ev.Content)
	return true
}

// updateContactList reports whether the list was replaced and whether the
// relay map changed with it
func (u *User) updateContactList(ev *nostr.Event, cl *event.ContactList) (updated, relaysChanged bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.contactList != nil && ev.CreatedAt <= u.contactList.CreatedAt {
		return false, false
	}

	var before map[string]event.ReadWrite
	if u.contacts != nil {
		before = u.contacts.Relays
	}

	u.contactList = ev
	u.contacts = cl
	u.followKeys = nil
	u.followTags = nil
	return true, !maps.Equal(before, cl.Relays)
}

func (u *User) updateRelayList(ev *nostr.Event, hints []event.RelayHint) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.relayList != nil && ev.CreatedAt <= u.relayList.CreatedAt {
		return false
	}
	u.relayList = ev
	u.relayHints = hints
	return true
}

func (u *User) updateBookmarkList(ev *nostr.Event) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bookmarkList != nil && ev.CreatedAt <= u.bookmarkList.CreatedAt {
		return false
	}
	u.bookmarkList = ev
	return true
}

func (u *User) addNote(key string) {
	u.mu.Lock()
	u.notes[key] = struct{}{}
	u.mu.Unlock()
}

func (u *User) removeNote(key string) {
	u.mu.Lock()
	delete(u.notes, key)
	u.mu.Unlock()
}

func (u *User) addReport(r Report) {
	u.mu.Lock()
	u.reports[r.ID] = r
	u.mu.Unlock()
}

func (u *User) removeReport(id string) {
	u.mu.Lock()
	delete(u.reports, id)
	u.mu.Unlock()
}

func (u *User) addZap(z Zap) {
	u.mu.Lock()
	u.zaps[z.RequestID] = z
	u.mu.Unlock()
}

func (u *User) removeReceipt(requestID, receiptID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if z, ok := u.zaps[requestID]; ok && z.ReceiptID == receiptID {
		delete(u.zaps, requestID)
	}
}

func reportsBy(reports map[string]Report, authors map[string]struct{}) []Report {
	out := make([]Report, 0)
	for _, r := range reports {
		if _, ok := authors[r.Author]; ok {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Report) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func hasReport(reports map[string]Report, author string, rt event.ReportType) bool {
	for _, r := range reports {
		if r.Author == author && slices.Contains(r.Types, rt) {
			return true
		}
	}
	return false
}

func countReportAuthors(reports map[string]Report, among map[string]struct{}) int {
	authors := make(map[string]struct{})
	for _, r := range reports {
		if _, ok := among[r.Author]; ok {
			authors[r.Author] = struct{}{}
		}
	}
	return len(authors)
}

func orEmpty(m map[string]struct{}) map[string]struct{} {
	if m == nil {
		return map[string]struct{}{}
	}
	return m
}
