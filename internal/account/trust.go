package account

import (
	"cmp"
	"maps"
	"slices"

	"github.com/sandwichfarm/quartz/internal/antispam"
	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

// FollowingKeySet returns the pubkeys the account follows
func (a *Account) FollowingKeySet() map[string]struct{} {
	return a.UserProfile().FollowingKeySet()
}

// FollowingTagSet returns the hashtags the account follows
func (a *Account) FollowingTagSet() map[string]struct{} {
	return a.UserProfile().FollowingTagSet()
}

// IsFollowing reports whether the account follows pubkey
func (a *Account) IsFollowing(pubkey string) bool {
	_, ok := a.FollowingKeySet()[pubkey]
	return ok
}

// IsHidden reports whether a user is hidden, durably or for this session
func (a *Account) IsHidden(pubkey string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.transientHidden[pubkey]; ok {
		return true
	}
	return slices.Contains(a.settings.HiddenUsers, pubkey)
}

// HiddenUsers returns every hidden user, durable and transient
func (a *Account) HiddenUsers() []*cache.User {
	a.mu.RLock()
	keys := make(map[string]struct{}, len(a.settings.HiddenUsers)+len(a.transientHidden))
	for _, pk := range a.settings.HiddenUsers {
		keys[pk] = struct{}{}
	}
	maps.Copy(keys, a.transientHidden)
	a.mu.RUnlock()

	out := make([]*cache.User, 0, len(keys))
	for _, pk := range slices.Sorted(maps.Keys(keys)) {
		out = append(out, a.store.GetOrCreateUser(pk))
	}
	return out
}

// HideUser hides a user durably
func (a *Account) HideUser(pubkey string) {
	a.update(func(s *Settings) { s.HiddenUsers = withItem(s.HiddenUsers, pubkey) })
}

// ShowUser lifts both durable and transient hiding
func (a *Account) ShowUser(pubkey string) {
	a.mu.Lock()
	delete(a.transientHidden, pubkey)
	a.mu.Unlock()
	a.update(func(s *Settings) { s.HiddenUsers = withoutItem(s.HiddenUsers, pubkey) })
}

// hideSpammers hides, for this session, flagged authors who are neither the
// account itself nor followed
func (a *Account) hideSpammers(spammers []antispam.Spammer) {
	following := a.FollowingKeySet()
	hidden := false
	for _, s := range spammers {
		if s.PubKey == a.pubkey {
			continue
		}
		if _, ok := following[s.PubKey]; ok {
			continue
		}

		a.mu.Lock()
		_, already := a.transientHidden[s.PubKey]
		if !already {
			a.transientHidden[s.PubKey] = struct{}{}
		}
		a.mu.Unlock()

		if !already {
			a.logger.LogSpamHide(s.PubKey, s.Duplicates)
			hidden = true
		}
	}
	if hidden {
		a.live.Invalidate()
	}
}

func (a *Account) me() map[string]struct{} {
	return map[string]struct{}{a.pubkey: {}}
}

// IsAcceptable reports whether a user should be shown: not hidden, not
// reported by the account, and reported by fewer than ReportThreshold
// followed accounts. Reports from accounts not followed never count.
func (a *Account) IsAcceptable(user *cache.User) bool {
	return !a.IsHidden(user.PubKey()) &&
		len(user.ReportsBy(a.me())) == 0 &&
		user.CountReportAuthors(a.FollowingKeySet()) < a.policy.ReportThreshold
}

// IsAcceptableDirect applies the report rules to the note itself
func (a *Account) IsAcceptableDirect(note *cache.Note) bool {
	return len(note.ReportsBy(a.me())) == 0 &&
		note.CountReportAuthors(a.FollowingKeySet()) < a.policy.ReportThreshold
}

// IsAcceptableNote combines author and note acceptability. A repost is only
// acceptable if at least one boosted note is directly acceptable.
func (a *Account) IsAcceptableNote(note *cache.Note) bool {
	if author := note.Author(); author != "" && !a.IsAcceptable(a.store.GetOrCreateUser(author)) {
		return false
	}
	if !a.IsAcceptableDirect(note) {
		return false
	}
	if _, ok := note.Payload().(*event.Repost); !ok {
		return true
	}
	for _, key := range note.ReplyTo() {
		if boosted, ok := a.store.Note(key); ok && a.IsAcceptableDirect(boosted) {
			return true
		}
	}
	return false
}

// GetRelevantReports collects reports against a note and its author filed
// by the account or the accounts it follows, including reports against the
// boosted notes of a repost. Newest first.
func (a *Account) GetRelevantReports(note *cache.Note) []cache.Report {
	reporters := a.FollowingKeySet()
	reporters[a.pubkey] = struct{}{}

	found := make(map[string]cache.Report)
	a.collectReports(note, reporters, found, make(map[string]struct{}))

	out := slices.Collect(maps.Values(found))
	slices.SortFunc(out, func(x, y cache.Report) int {
		if c := cmp.Compare(y.CreatedAt, x.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out
}

func (a *Account) collectReports(note *cache.Note, reporters map[string]struct{}, found map[string]cache.Report, visited map[string]struct{}) {
	if _, ok := visited[note.Key()]; ok {
		return
	}
	visited[note.Key()] = struct{}{}

	for _, r := range note.ReportsBy(reporters) {
		found[r.ID] = r
	}
	if author := note.Author(); author != "" {
		for _, r := range a.store.GetOrCreateUser(author).ReportsBy(reporters) {
			found[r.ID] = r
		}
	}

	if _, ok := note.Payload().(*event.Repost); !ok {
		return
	}
	for _, key := range note.ReplyTo() {
		if boosted, ok := a.store.Note(key); ok {
			a.collectReports(boosted, reporters, found, visited)
		}
	}
}
