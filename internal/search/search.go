// Package search finds hashtags, users, notes and channels in the local
// graph while the user types.
package search

import (
	"cmp"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/entities"
	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/ops"
)

// DefaultDelay is how long the input must stay unchanged before a search runs
const DefaultDelay = 300 * time.Millisecond

// Results of one query
type Results struct {
	Query    string
	Hashtags []string
	Users    []*cache.User
	Notes    []*cache.Note
	Channels []*cache.Channel
}

// Empty reports whether nothing matched
func (r Results) Empty() bool {
	return len(r.Hashtags) == 0 && len(r.Users) == 0 && len(r.Notes) == 0 && len(r.Channels) == 0
}

// HiddenFilter hides users the account does not want to see
type HiddenFilter interface {
	IsHidden(pubkey string) bool
}

// Options tune a search
type Options struct {
	Limit  int
	Hidden HiddenFilter
}

// Run searches the store synchronously. Identifiers (npub, note, naddr, hex
// ids) are resolved first and put on top of their section.
func Run(store *cache.Store, query string, opts Options) Results {
	q := strings.TrimSpace(query)
	res := Results{Query: q}
	if q == "" {
		return res
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	hidden := func(pubkey string) bool {
		return opts.Hidden != nil && opts.Hidden.IsHidden(pubkey)
	}

	r := entities.NewResolver(store)
	if e, err := r.Resolve(q); err == nil {
		if u, ok := r.User(e); ok && !hidden(u.PubKey()) {
			res.Users = append(res.Users, u)
		}
		if n, ok := r.Note(e); ok && n.Loaded() && !hidden(n.Author()) {
			res.Notes = append(res.Notes, n)
		}
	} else {
		res.Hashtags = hashtags(store, q, limit)
	}

	res.Users = collect(res.Users, store.FindUsersStartingWith(q), limit, func(u *cache.User) bool {
		return !hidden(u.PubKey())
	}, (*cache.User).PubKey)
	res.Notes = collect(res.Notes, store.FindNotesStartingWith(q), limit, func(n *cache.Note) bool {
		return !hidden(n.Author())
	}, (*cache.Note).Key)
	res.Channels = collect(nil, store.FindChannelsStartingWith(q), limit, func(*cache.Channel) bool { return true }, (*cache.Channel).ID)

	return res
}

func collect[T any](into []T, seq iter.Seq[T], limit int, keep func(T) bool, key func(T) string) []T {
	seen := make(map[string]struct{}, len(into))
	for _, item := range into {
		seen[key(item)] = struct{}{}
	}
	for item := range seq {
		if len(into) >= limit {
			break
		}
		if _, dup := seen[key(item)]; dup || !keep(item) {
			continue
		}
		seen[key(item)] = struct{}{}
		into = append(into, item)
	}
	return into
}

// hashtags suggests the query itself as a tag followed by the most used
// tags in the graph that start with it
func hashtags(store *cache.Store, query string, limit int) []string {
	q := strings.ToLower(strings.TrimPrefix(query, "#"))
	if q == "" || strings.ContainsAny(q, " \t\n") {
		return nil
	}

	counts := make(map[string]int)
	for note := range store.Notes() {
		ev := note.Event()
		if ev == nil {
			continue
		}
		for _, tag := range ev.Tags {
			if len(tag) < 2 || tag[0] != "t" {
				continue
			}
			t := strings.ToLower(tag[1])
			if t != q && strings.HasPrefix(t, q) {
				counts[t]++
			}
		}
	}

	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	slices.SortFunc(tags, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	out := append([]string{q}, tags...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Searcher runs the latest query once typing pauses and hands the results
// to a callback. Only the last query of a burst is searched.
type Searcher struct {
	store     *cache.Store
	opts      Options
	onResults func(Results)
	debounced func(f func())
	logger    *ops.Logger

	mu    sync.Mutex
	query string
}

// NewSearcher creates a searcher. delay <= 0 uses DefaultDelay.
func NewSearcher(store *cache.Store, delay time.Duration, opts Options, onResults func(Results), logger *ops.Logger) *Searcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = ops.Default()
	}
	return &Searcher{
		store:     store,
		opts:      opts,
		onResults: onResults,
		debounced: debounce.New(delay),
		logger:    logger.WithComponent("search"),
	}
}

// Search records query as the current input
func (s *Searcher) Search(query string) {
	s.mu.Lock()
	s.query = query
	s.mu.Unlock()

	s.debounced(s.run)
}

func (s *Searcher) run() {
	s.mu.Lock()
	q := s.query
	s.mu.Unlock()

	start := time.Now()
	res := Run(s.store, q, s.opts)
	s.logger.Debug("search", "query", q,
		"users", len(res.Users), "notes", len(res.Notes), "channels", len(res.Channels),
		"duration_ms", time.Since(start).Milliseconds())
	s.onResults(res)
}

// IsHashtag reports whether query looks like a single hashtag
func IsHashtag(query string) bool {
	q := strings.TrimSpace(query)
	return strings.HasPrefix(q, "#") && !strings.ContainsAny(q, " \t\n") && len(event.FindHashtags(q)) == 1
}
