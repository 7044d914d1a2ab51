package sync

import (
	"maps"
	"slices"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/event"
)

// homeKinds are the kinds shown in the home feed
var homeKinds = []int{int(event.KindTextNote), int(event.KindLongTextNote)}

// ownKinds are the account's own replaceable events fetched at bootstrap
var ownKinds = []int{
	int(event.KindMetadata),
	int(event.KindContactList),
	int(event.KindRelayList),
	int(event.KindBookmarkList),
}

// FilterBuilder creates Nostr filters based on sync configuration
type FilterBuilder struct {
	config *config.Sync
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder(cfg *config.Sync) *FilterBuilder {
	if cfg == nil {
		cfg = &config.Default().Sync
	}
	return &FilterBuilder{
		config: cfg,
	}
}

// FollowAccountsFilter requests notes and articles from the followed
// authors and the account itself
func (fb *FilterBuilder) FollowAccountsFilter(follows map[string]struct{}, self string) nostr.Filter {
	authors := make(map[string]struct{}, len(follows)+1)
	maps.Copy(authors, follows)
	if self != "" {
		authors[self] = struct{}{}
	}

	return nostr.Filter{
		Kinds:   homeKinds,
		Authors: slices.Sorted(maps.Keys(authors)),
		Limit:   fb.config.FollowsLimit,
	}
}

// FollowTagsFilter requests notes and articles carrying a followed hashtag,
// in every spelling relays may have indexed. It returns nil when no hashtag
// is followed.
func (fb *FilterBuilder) FollowTagsFilter(tags map[string]struct{}) *nostr.Filter {
	if len(tags) == 0 {
		return nil
	}

	var values []string
	for _, tag := range slices.Sorted(maps.Keys(tags)) {
		for _, v := range event.HashtagVariants(tag) {
			if !slices.Contains(values, v) {
				values = append(values, v)
			}
		}
	}

	return &nostr.Filter{
		Kinds: homeKinds,
		Tags:  nostr.TagMap{"t": values},
		Limit: fb.config.TagsLimit,
	}
}

// HomeFilters combines the follow filters of the home feed
func (fb *FilterBuilder) HomeFilters(follows, tags map[string]struct{}, self string) nostr.Filters {
	filters := nostr.Filters{fb.FollowAccountsFilter(follows, self)}
	if f := fb.FollowTagsFilter(tags); f != nil {
		filters = append(filters, *f)
	}
	return filters
}

// OwnReplaceablesFilter fetches the account's metadata, contact list, relay
// list and bookmarks
func (fb *FilterBuilder) OwnReplaceablesFilter(self string) nostr.Filter {
	return nostr.Filter{
		Kinds:   ownKinds,
		Authors: []string{self},
	}
}

// DirectMessagesFilters requests direct messages sent to and by the account
func (fb *FilterBuilder) DirectMessagesFilters(self string) nostr.Filters {
	if self == "" {
		return nil
	}
	return nostr.Filters{
		{Kinds: []int{int(event.KindPrivateDM)}, Tags: nostr.TagMap{"p": []string{self}}},
		{Kinds: []int{int(event.KindPrivateDM)}, Authors: []string{self}},
	}
}

// ChannelFilters requests the creation, metadata and recent messages of the
// joined channels. It returns nil when no channel is joined.
func (fb *FilterBuilder) ChannelFilters(channelIDs []string) nostr.Filters {
	if len(channelIDs) == 0 {
		return nil
	}
	ids := slices.Sorted(slices.Values(channelIDs))
	ids = slices.Compact(ids)

	return nostr.Filters{
		{Kinds: []int{int(event.KindChannelCreate)}, IDs: ids},
		{Kinds: []int{int(event.KindChannelMetadata), int(event.KindChannelMessage)}, Tags: nostr.TagMap{"e": ids}, Limit: fb.config.FollowsLimit},
	}
}
