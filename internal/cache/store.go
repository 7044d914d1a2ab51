// Package cache holds the local event graph: users, notes, addressable notes
// and channels built from every event quartz has seen, with backlinks.
package cache

import (
	"iter"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/ops"
)

// SpamObserver is told about every text note and channel message ingested
type SpamObserver interface {
	Observe(ev *nostr.Event) bool
}

// ChangeKind classifies what changed in the graph
type ChangeKind int

const (
	ChangeNote ChangeKind = iota
	ChangeMetadata
	ChangeFollows
	ChangeRelays
	ChangeRelayList
	ChangeBookmarks
	ChangeReports
	ChangeChannel
)

// Change describes one graph update. PubKey is the user the change belongs
// to (the author for notes, the target for reports). Key is the note,
// address or channel key when relevant.
type Change struct {
	Kind   ChangeKind
	PubKey string
	Key    string
}

// Store is the local event graph. All entities live in the store's maps;
// references between them are keys.
type Store struct {
	users        *xsync.MapOf[string, *User]
	notes        *xsync.MapOf[string, *Note]
	addressables *xsync.MapOf[string, *Note]
	channels     *xsync.MapOf[string, *Channel]

	spam   SpamObserver
	logger *ops.Logger

	listenersMu sync.RWMutex
	listeners   map[int]func(Change)
	nextID      int
}

// New creates an empty store. spam may be nil.
func New(spam SpamObserver, logger *ops.Logger) *Store {
	if logger == nil {
		logger = ops.Default().WithComponent("cache")
	}
	return &Store{
		users:        xsync.NewMapOf[string, *User](),
		notes:        xsync.NewMapOf[string, *Note](),
		addressables: xsync.NewMapOf[string, *Note](),
		channels:     xsync.NewMapOf[string, *Channel](),
		spam:         spam,
		logger:       logger,
		listeners:    make(map[int]func(Change)),
	}
}

// Subscribe registers a change listener. Listeners run synchronously on the
// ingesting goroutine and must not block.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.listenersMu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// GetOrCreateUser returns the one User for a pubkey, creating it if needed
func (s *Store) GetOrCreateUser(pubkey string) *User {
	u, _ := s.users.LoadOrCompute(pubkey, func() *User { return newUser(pubkey) })
	return u
}

// User returns a known user
func (s *Store) User(pubkey string) (*User, bool) {
	return s.users.Load(pubkey)
}

// GetOrCreateNote returns the one Note for an event id, creating a
// placeholder if the event has not been seen yet
func (s *Store) GetOrCreateNote(id string) *Note {
	n, _ := s.notes.LoadOrCompute(id, func() *Note { return newNote(id, nil) })
	return n
}

// Note returns a known note, loaded or placeholder
func (s *Store) Note(id string) (*Note, bool) {
	if n, ok := s.notes.Load(id); ok {
		return n, true
	}
	return s.addressables.Load(id)
}

// GetOrCreateAddressableNote returns the one Note for an address
func (s *Store) GetOrCreateAddressableNote(addr event.Address) *Note {
	key := addr.String()
	n, _ := s.addressables.LoadOrCompute(key, func() *Note { return newNote(key, &addr) })
	return n
}

// AddressableNote returns a known addressable note
func (s *Store) AddressableNote(addr event.Address) (*Note, bool) {
	return s.addressables.Load(addr.String())
}

// GetOrCreateChannel returns the one Channel for a creation event id
func (s *Store) GetOrCreateChannel(id string) *Channel {
	c, _ := s.channels.LoadOrCompute(id, func() *Channel { return newChannel(id) })
	return c
}

// Channel returns a known channel
func (s *Store) Channel(id string) (*Channel, bool) {
	return s.channels.Load(id)
}

// Users iterates over every known user
func (s *Store) Users() iter.Seq[*User] {
	return func(yield func(*User) bool) {
		s.users.Range(func(_ string, u *User) bool {
			return yield(u)
		})
	}
}

// Notes iterates over every loaded, not deleted note, addressable ones included
func (s *Store) Notes() iter.Seq[*Note] {
	return func(yield func(*Note) bool) {
		keep := true
		visit := func(_ string, n *Note) bool {
			if !n.Loaded() || n.IsDeleted() {
				return true
			}
			keep = yield(n)
			return keep
		}
		s.notes.Range(visit)
		if keep {
			s.addressables.Range(visit)
		}
	}
}

// Channels iterates over every known channel
func (s *Store) Channels() iter.Seq[*Channel] {
	return func(yield func(*Channel) bool) {
		s.channels.Range(func(_ string, c *Channel) bool {
			return yield(c)
		})
	}
}

// Stats reports entity counts
type Stats struct {
	Users        int
	Notes        int
	Addressables int
	Channels     int
}

// Stats returns the number of entities in each map
func (s *Store) Stats() Stats {
	return Stats{
		Users:        s.users.Size(),
		Notes:        s.notes.Size(),
		Addressables: s.addressables.Size(),
		Channels:     s.channels.Size(),
	}
}
