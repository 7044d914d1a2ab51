// Package account turns user intent into signed events and derives the
// account's view of the graph: who it follows, what it hides and which
// relays it should be connected to.
package account

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/antispam"
	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/notify"
	"github.com/sandwichfarm/quartz/internal/ops"
	"github.com/sandwichfarm/quartz/internal/relay"
)

var (
	// ErrReadOnly is returned by helpers that need the private key
	ErrReadOnly = errors.New("account is read-only")
	// ErrUndecryptable is returned when content is not encrypted to this account
	ErrUndecryptable = errors.New("content cannot be decrypted by this account")
)

// Signer signs and encrypts on behalf of one key pair
type Signer interface {
	PubKey() string
	Sign(ev *nostr.Event) error
	Encrypt(plaintext, counterparty string) (string, error)
	Decrypt(ciphertext, counterparty string) (string, error)
}

// Transport is the relay pool. Send must not block on the network.
type Transport interface {
	Send(ev *nostr.Event, relayURLs ...string)
	Connect(relays []relay.Relay)
	Disconnect()
	IsSameRelaySetConfig(relays []relay.Relay) bool
	RequestAndWatch()
}

// SpamFeed delivers batches of authors flagged for duplicate messages
type SpamFeed interface {
	Subscribe() (<-chan []antispam.Spammer, func())
}

// Options configures an Account
type Options struct {
	PubKey string
	// Signer is nil for read-only accounts
	Signer    Signer
	Store     *cache.Store
	Transport Transport
	Spam      SpamFeed
	Settings  Settings
	Policy    Policy
	// DefaultRelays seed a contact list created from scratch
	DefaultRelays []relay.Relay
	ForcedSearch  relay.Relay
	// Now is the clock used for created_at and the boost window
	Now func() time.Time
	// OnPublish sees every event the account creates
	OnPublish func(ev *nostr.Event)
	Logger    *ops.Logger
}

// Account is one logged-in identity. Whether it can write is fixed for its
// lifetime by the presence of a signer.
type Account struct {
	pubkey    string
	signer    Signer
	store     *cache.Store
	transport Transport
	spam      SpamFeed
	policy    Policy
	defaults  []relay.Relay
	forced    relay.Relay
	now       func() time.Time
	onPublish func(ev *nostr.Event)
	logger    *ops.Logger

	mu              sync.RWMutex
	settings        Settings
	transientHidden map[string]struct{}

	live          *notify.Live[State]
	liveLanguages *notify.Live[State]
	saveable      *notify.Live[Settings]
	reconnect     *notify.Bundler
	reconnectMu   sync.Mutex

	stopMu sync.Mutex
	stops  []func()
}

// New creates an account. Call Start to begin observing the store.
func New(opts Options) (*Account, error) {
	if !nostr.IsValid32ByteHex(opts.PubKey) {
		return nil, fmt.Errorf("invalid account pubkey %q", opts.PubKey)
	}
	if opts.Signer != nil && opts.Signer.PubKey() != opts.PubKey {
		return nil, fmt.Errorf("signer key %s does not match account %s", opts.Signer.PubKey(), opts.PubKey)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("account needs a store")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("account needs a transport")
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = ops.Default().WithComponent("account")
	}
	if len(opts.DefaultRelays) == 0 {
		opts.DefaultRelays = relay.Defaults()
	}
	opts.Policy = opts.Policy.withDefaults()

	a := &Account{
		pubkey:          opts.PubKey,
		signer:          opts.Signer,
		store:           opts.Store,
		transport:       opts.Transport,
		spam:            opts.Spam,
		policy:          opts.Policy,
		defaults:        opts.DefaultRelays,
		forced:          opts.ForcedSearch,
		now:             opts.Now,
		onPublish:       opts.OnPublish,
		logger:          opts.Logger,
		settings:        opts.Settings.clone(),
		transientHidden: make(map[string]struct{}),
	}
	if len(a.settings.LocalRelays) == 0 {
		a.settings.LocalRelays = relay.ToConfig(a.defaults)
	}

	a.live = notify.NewLive(a.policy.BatchWindow, a.State)
	a.liveLanguages = notify.NewLive(a.policy.BatchWindow, a.State)
	a.saveable = notify.NewLive(a.policy.BatchWindow, a.Settings)
	a.reconnect = notify.NewBundler(a.policy.BatchWindow, a.ReconnectIfRelaysHaveChanged)
	return a, nil
}

// PubKey returns the account's public key in hex
func (a *Account) PubKey() string { return a.pubkey }

// IsWriteable reports whether the account holds a private key
func (a *Account) IsWriteable() bool { return a.signer != nil }

// UserProfile returns the account's own user in the store
func (a *Account) UserProfile() *cache.User {
	return a.store.GetOrCreateUser(a.pubkey)
}

// Start restores the backup contact list if the store has none, then
// follows the store for changes to the account's own lists and the spam
// feed for duplicate senders.
func (a *Account) Start() {
	if backup := a.Settings().BackupContactList; backup != nil && a.UserProfile().LatestContactList() == nil {
		a.logger.Info("restoring saved contact list", "event_id", backup.ID)
		a.store.Consume(backup, "")
	}

	unsubscribe := a.store.Subscribe(func(c cache.Change) {
		if c.PubKey != a.pubkey {
			return
		}
		switch c.Kind {
		case cache.ChangeFollows:
			a.updateBackupContactList()
			a.live.Invalidate()
			a.reconnect.Invalidate()
		case cache.ChangeRelays:
			a.reconnect.Invalidate()
		case cache.ChangeBookmarks, cache.ChangeMetadata:
			a.live.Invalidate()
		}
	})
	a.addStop(unsubscribe)

	if a.spam != nil {
		ch, unsubscribe := a.spam.Subscribe()
		a.addStop(unsubscribe)
		go func() {
			for spammers := range ch {
				a.hideSpammers(spammers)
			}
		}()
	}
}

// Stop detaches the account from the store and spam feed and cancels
// pending notifications. Pending saves are flushed first.
func (a *Account) Stop() {
	a.saveable.Flush()

	a.stopMu.Lock()
	stops := a.stops
	a.stops = nil
	a.stopMu.Unlock()
	for _, stop := range stops {
		stop()
	}

	a.reconnect.Stop()
	a.live.Stop()
	a.liveLanguages.Stop()
	a.saveable.Stop()
}

func (a *Account) addStop(fn func()) {
	a.stopMu.Lock()
	a.stops = append(a.stops, fn)
	a.stopMu.Unlock()
}

// Subscribe delivers account state snapshots, batched
func (a *Account) Subscribe() (<-chan State, func()) { return a.live.Subscribe() }

// SubscribeLanguages delivers snapshots after language preference changes
func (a *Account) SubscribeLanguages() (<-chan State, func()) { return a.liveLanguages.Subscribe() }

// SubscribeSaveable delivers the durable settings whenever they need saving
func (a *Account) SubscribeSaveable() (<-chan Settings, func()) { return a.saveable.Subscribe() }

func (a *Account) changed() {
	a.live.Invalidate()
	a.saveable.Invalidate()
}

// publish signs a template as the account, applies it to the local graph
// and hands it to the transport
func (a *Account) publish(op string, tmpl nostr.Event, relayURLs ...string) *nostr.Event {
	ev, err := a.sign(tmpl)
	if err != nil {
		a.logger.LogMutationSkipped(op, err.Error())
		return nil
	}
	a.store.Consume(ev, "")
	if a.onPublish != nil {
		a.onPublish(ev)
	}
	a.transport.Send(ev, relayURLs...)
	return ev
}

// publishLocal signs and applies an event without sending it anywhere
func (a *Account) publishLocal(op string, tmpl nostr.Event) *nostr.Event {
	ev, err := a.sign(tmpl)
	if err != nil {
		a.logger.LogMutationSkipped(op, err.Error())
		return nil
	}
	a.store.Consume(ev, "")
	return ev
}

func (a *Account) sign(tmpl nostr.Event) (*nostr.Event, error) {
	if a.signer == nil {
		return nil, ErrReadOnly
	}
	ev := tmpl
	ev.PubKey = a.pubkey
	ev.CreatedAt = nostr.Timestamp(a.now().Unix())
	if latest := a.latestReplaced(&ev); ev.CreatedAt <= latest {
		ev.CreatedAt = latest + 1
	}
	if err := a.signer.Sign(&ev); err != nil {
		return nil, fmt.Errorf("failed to sign kind %d: %w", ev.Kind, err)
	}
	return &ev, nil
}

// latestReplaced returns the created_at of the event ev would replace in
// the store, or 0. The store only takes strictly newer versions, so a new
// version signed within the same second must move past it.
func (a *Account) latestReplaced(ev *nostr.Event) nostr.Timestamp {
	kind := event.Kind(ev.Kind)
	var latest *nostr.Event
	switch {
	case kind == event.KindMetadata:
		latest = a.UserProfile().LatestMetadata()
	case kind == event.KindContactList:
		latest = a.UserProfile().LatestContactList()
	case kind == event.KindRelayList:
		latest = a.UserProfile().LatestRelayList()
	case kind.IsAddressable():
		if addr, ok := event.AddressOf(ev); ok {
			if note, ok := a.store.AddressableNote(addr); ok {
				latest = note.Event()
			}
		}
	case kind == event.KindChannelMetadata:
		if p, ok := event.Parse(ev).(*event.ChannelMetadata); ok {
			if ch, ok := a.store.Channel(p.ChannelID); ok {
				return ch.UpdatedAt()
			}
		}
	}
	if latest == nil {
		return 0
	}
	return latest.CreatedAt
}

// writeable guards a mutation, logging why it was skipped
func (a *Account) writeable(op string) bool {
	if a.signer == nil {
		a.logger.LogMutationSkipped(op, "read-only account")
		return false
	}
	return true
}
