// Package antispam detects authors who keep sending the same message.
package antispam

import (
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/minio/sha256-simd"
	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/notify"
	"github.com/sandwichfarm/quartz/internal/ops"
)

// Options tunes the tracker
type Options struct {
	// Threshold is the number of copies of one message that marks a spammer
	Threshold int
	// MinContentLength skips short messages like "gm"
	MinContentLength int
	// MaxEntries bounds memory; the oldest entries are evicted first
	MaxEntries int
	// Window is the notification batch window
	Window time.Duration
}

// DefaultOptions returns the standard tracker settings
func DefaultOptions() Options {
	return Options{
		Threshold:        5,
		MinContentLength: 50,
		MaxEntries:       1000,
		Window:           notify.DefaultWindow,
	}
}

// Spammer is an author and their worst duplicate count
type Spammer struct {
	PubKey     string
	Duplicates int
}

type entryKey struct {
	fingerprint string
	pubkey      string
}

// Tracker records, per message fingerprint and author, the distinct events
// carrying that message
type Tracker struct {
	opts   Options
	logger *ops.Logger

	mu      sync.Mutex
	entries map[entryKey]map[string]struct{}
	order   []entryKey

	live *notify.Live[[]Spammer]
}

// New creates a tracker. Zero option fields take their defaults.
func New(opts Options, logger *ops.Logger) *Tracker {
	def := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = def.MinContentLength
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if logger == nil {
		logger = ops.Default().WithComponent("antispam")
	}

	t := &Tracker{
		opts:    opts,
		logger:  logger,
		entries: make(map[entryKey]map[string]struct{}),
	}
	t.live = notify.NewLive(opts.Window, t.Spammers)
	return t
}

// Threshold returns the duplicate count that marks a spammer
func (t *Tracker) Threshold() int { return t.opts.Threshold }

// Fingerprint hashes a message's normalized content and its tags
func Fingerprint(ev *nostr.Event) string {
	h := sha256.New()
	h.Write([]byte(normalize(ev.Content)))
	for _, tag := range ev.Tags {
		for _, v := range tag {
			h.Write([]byte{0})
			h.Write([]byte(v))
		}
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// Observe records a text note or channel message. It reports whether the
// event was a new copy of a message the author already sent.
func (t *Tracker) Observe(ev *nostr.Event) bool {
	if ev == nil {
		return false
	}
	switch event.Kind(ev.Kind) {
	case event.KindTextNote, event.KindChannelMessage:
	default:
		return false
	}
	if utf8.RuneCountInString(strings.TrimSpace(ev.Content)) < t.opts.MinContentLength {
		return false
	}

	key := entryKey{fingerprint: Fingerprint(ev), pubkey: ev.PubKey}

	t.mu.Lock()
	ids, ok := t.entries[key]
	if !ok {
		ids = make(map[string]struct{})
		t.entries[key] = ids
		t.order = append(t.order, key)
		t.evict()
	}
	_, seen := ids[ev.ID]
	ids[ev.ID] = struct{}{}
	count := len(ids)
	t.mu.Unlock()

	if seen || count < 2 {
		return false
	}
	if count == t.opts.Threshold {
		t.logger.Debug("duplicate threshold reached", "pubkey", ev.PubKey, "duplicates", count)
	}
	t.live.Invalidate()
	return true
}

func (t *Tracker) evict() {
	for len(t.order) > t.opts.MaxEntries {
		delete(t.entries, t.order[0])
		t.order = t.order[1:]
	}
}

// Spammers returns every author with at least Threshold copies of one
// message, sorted by pubkey
func (t *Tracker) Spammers() []Spammer {
	t.mu.Lock()
	worst := make(map[string]int)
	for key, ids := range t.entries {
		if n := len(ids); n >= t.opts.Threshold && n > worst[key.pubkey] {
			worst[key.pubkey] = n
		}
	}
	t.mu.Unlock()

	out := make([]Spammer, 0, len(worst))
	for pk, n := range worst {
		out = append(out, Spammer{PubKey: pk, Duplicates: n})
	}
	slices.SortFunc(out, func(a, b Spammer) int { return strings.Compare(a.PubKey, b.PubKey) })
	return out
}

// Duplicates returns the author's highest copy count for any message
func (t *Tracker) Duplicates(pubkey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := 0
	for key, ids := range t.entries {
		if key.pubkey == pubkey && len(ids) > best {
			best = len(ids)
		}
	}
	return best
}

// Subscribe delivers the spammer list after each batch of new duplicates
func (t *Tracker) Subscribe() (<-chan []Spammer, func()) {
	return t.live.Subscribe()
}

// Close stops notifications
func (t *Tracker) Close() {
	t.live.Stop()
}
