package sync

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
)

// FeedAccount is what the home feed needs to know about the account
type FeedAccount interface {
	FollowingKeySet() map[string]struct{}
	FollowingTagSet() map[string]struct{}
	IsHidden(pubkey string) bool
}

// HomeNewThreadFeed lists the thread-starting notes, reposts and articles
// written by followed authors or tagged with a followed hashtag, skipping
// hidden authors. Newest first.
func HomeNewThreadFeed(store *cache.Store, acc FeedAccount) []*cache.Note {
	follows := acc.FollowingKeySet()
	tags := lowerTags(acc.FollowingTagSet())

	var out []*cache.Note
	for note := range store.Notes() {
		if inHomeFeed(note, acc, follows, tags) {
			out = append(out, note)
		}
	}

	slices.SortFunc(out, func(a, b *cache.Note) int {
		if c := cmp.Compare(b.CreatedAt(), a.CreatedAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.Key(), b.Key())
	})
	return out
}

// InHomeFeed reports whether a single note belongs in the home feed
func InHomeFeed(note *cache.Note, acc FeedAccount) bool {
	return inHomeFeed(note, acc, acc.FollowingKeySet(), lowerTags(acc.FollowingTagSet()))
}

func inHomeFeed(note *cache.Note, acc FeedAccount, follows, tags map[string]struct{}) bool {
	payload := note.Payload()
	switch payload.(type) {
	case *event.TextNote, *event.Repost, *event.LongTextNote:
	default:
		return false
	}
	if !event.IsNewThread(payload) {
		return false
	}

	author := note.Author()
	_, followed := follows[author]
	if !followed && !taggedWith(payload, tags) {
		return false
	}
	return author == "" || !acc.IsHidden(author)
}

func lowerTags(set map[string]struct{}) map[string]struct{} {
	tags := make(map[string]struct{}, len(set))
	for t := range set {
		tags[strings.ToLower(t)] = struct{}{}
	}
	return tags
}

func taggedWith(p event.Payload, tags map[string]struct{}) bool {
	if len(tags) == 0 {
		return false
	}
	var hashtags []string
	switch v := p.(type) {
	case *event.TextNote:
		hashtags = v.Hashtags
	case *event.LongTextNote:
		hashtags = v.Hashtags
	}
	for _, h := range hashtags {
		if _, ok := tags[strings.ToLower(h)]; ok {
			return true
		}
	}
	return false
}
