package sync

import (
	"slices"
	"testing"

	"github.com/sandwichfarm/quartz/internal/config"
)

func TestNewFilterBuilder(t *testing.T) {
	cfg := &config.Sync{FollowsLimit: 10, TagsLimit: 5}

	fb := NewFilterBuilder(cfg)
	if fb == nil {
		t.Fatal("Expected filter builder, got nil")
	}

	if fb.config != cfg {
		t.Error("Config not set correctly")
	}

	if NewFilterBuilder(nil).config.FollowsLimit != 400 {
		t.Error("Expected defaults for a nil config")
	}
}

func TestFollowAccountsFilter(t *testing.T) {
	fb := NewFilterBuilder(&config.Sync{FollowsLimit: 400, TagsLimit: 100})

	tests := []struct {
		name    string
		follows map[string]struct{}
		self    string
		authors []string
	}{
		{
			name:    "self only",
			follows: nil,
			self:    "me",
			authors: []string{"me"},
		},
		{
			name:    "follows sorted with self",
			follows: map[string]struct{}{"carol": {}, "alice": {}},
			self:    "me",
			authors: []string{"alice", "carol", "me"},
		},
		{
			name:    "self already followed",
			follows: map[string]struct{}{"me": {}},
			self:    "me",
			authors: []string{"me"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fb.FollowAccountsFilter(tt.follows, tt.self)
			if !slices.Equal(f.Authors, tt.authors) {
				t.Errorf("Expected authors %v, got %v", tt.authors, f.Authors)
			}
			if !slices.Equal(f.Kinds, []int{1, 30023}) {
				t.Errorf("Expected kinds [1 30023], got %v", f.Kinds)
			}
			if f.Limit != 400 {
				t.Errorf("Expected limit 400, got %d", f.Limit)
			}
		})
	}
}

func TestFollowTagsFilter(t *testing.T) {
	fb := NewFilterBuilder(&config.Sync{FollowsLimit: 400, TagsLimit: 100})

	if fb.FollowTagsFilter(nil) != nil {
		t.Error("Expected no filter without followed hashtags")
	}

	f := fb.FollowTagsFilter(map[string]struct{}{"nostr": {}})
	if f == nil {
		t.Fatal("Expected a filter")
	}
	want := []string{"nostr", "NOSTR", "Nostr"}
	if !slices.Equal(f.Tags["t"], want) {
		t.Errorf("Expected variants %v, got %v", want, f.Tags["t"])
	}
	if f.Limit != 100 {
		t.Errorf("Expected limit 100, got %d", f.Limit)
	}
}

func TestHomeFilters(t *testing.T) {
	fb := NewFilterBuilder(nil)

	if got := fb.HomeFilters(nil, nil, "me"); len(got) != 1 {
		t.Errorf("Expected only the accounts filter, got %d filters", len(got))
	}
	if got := fb.HomeFilters(nil, map[string]struct{}{"go": {}}, "me"); len(got) != 2 {
		t.Errorf("Expected accounts and tags filters, got %d filters", len(got))
	}
}

func TestChannelAndMessageFilters(t *testing.T) {
	fb := NewFilterBuilder(nil)

	if fb.ChannelFilters(nil) != nil {
		t.Error("Expected no channel filters without joined channels")
	}
	got := fb.ChannelFilters([]string{"b", "a", "b"})
	if len(got) != 2 || !slices.Equal(got[0].IDs, []string{"a", "b"}) {
		t.Errorf("Unexpected channel filters %v", got)
	}

	if fb.DirectMessagesFilters("") != nil {
		t.Error("Expected no DM filters without a pubkey")
	}
	dms := fb.DirectMessagesFilters("me")
	if len(dms) != 2 || dms[0].Tags["p"][0] != "me" || dms[1].Authors[0] != "me" {
		t.Errorf("Unexpected DM filters %v", dms)
	}

	own := fb.OwnReplaceablesFilter("me")
	if !slices.Equal(own.Kinds, []int{0, 3, 10002, 30001}) {
		t.Errorf("Unexpected own kinds %v", own.Kinds)
	}
}
