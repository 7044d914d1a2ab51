package sync

import (
	"slices"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/account"
	internalnostr "github.com/sandwichfarm/quartz/internal/nostr"
	"github.com/sandwichfarm/quartz/internal/ops"
	"github.com/sandwichfarm/quartz/internal/relay"
)

// AccountSource is the account state a data source follows
type AccountSource interface {
	State() account.State
	Subscribe() (<-chan account.State, func())
}

// Subscriber registers long-lived relay subscriptions
type Subscriber interface {
	Subscribe(sub internalnostr.Subscription)
	Unsubscribe(name string)
}

// DataSource keeps one named relay subscription in line with the account.
// Filters are rebuilt on every account notification and the subscription is
// only replaced when they change.
type DataSource struct {
	name    string
	feed    relay.FeedType
	build   func(account.State) nostr.Filters
	account AccountSource
	client  Subscriber
	logger  *ops.Logger

	mu      sync.Mutex
	current nostr.Filters
	active  bool
	stop    func()
	done    chan struct{}
}

func newDataSource(name string, feed relay.FeedType, build func(account.State) nostr.Filters, acc AccountSource, client Subscriber, logger *ops.Logger) *DataSource {
	if logger == nil {
		logger = ops.Default()
	}
	return &DataSource{
		name:    name,
		feed:    feed,
		build:   build,
		account: acc,
		client:  client,
		logger:  logger.WithComponent("datasource").WithFields("name", name),
	}
}

// NewHomeDataSource follows the accounts and hashtags the account follows
func NewHomeDataSource(acc AccountSource, client Subscriber, fb *FilterBuilder, logger *ops.Logger) *DataSource {
	return newDataSource("home", relay.FeedFollows, func(s account.State) nostr.Filters {
		return fb.HomeFilters(s.Following, s.FollowingTags, s.PubKey)
	}, acc, client, logger)
}

// NewDirectMessagesDataSource follows the account's direct messages
func NewDirectMessagesDataSource(acc AccountSource, client Subscriber, fb *FilterBuilder, logger *ops.Logger) *DataSource {
	return newDataSource("dms", relay.FeedPrivateDMs, func(s account.State) nostr.Filters {
		return fb.DirectMessagesFilters(s.PubKey)
	}, acc, client, logger)
}

// NewChannelsDataSource follows the channels the account joined
func NewChannelsDataSource(acc AccountSource, client Subscriber, fb *FilterBuilder, logger *ops.Logger) *DataSource {
	return newDataSource("channels", relay.FeedPublicChats, func(s account.State) nostr.Filters {
		return fb.ChannelFilters(s.Settings.FollowingChannels)
	}, acc, client, logger)
}

// Name returns the subscription name
func (d *DataSource) Name() string { return d.name }

// Filters returns the filters currently subscribed
func (d *DataSource) Filters() nostr.Filters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.current)
}

// Start subscribes with the current state and then follows account changes
func (d *DataSource) Start() {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return
	}
	updates, unsubscribe := d.account.Subscribe()
	d.stop = unsubscribe
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	d.update(d.account.State())

	go func() {
		defer close(done)
		for state := range updates {
			d.update(state)
		}
	}()
}

// Stop drops the subscription and stops following the account
func (d *DataSource) Stop() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done

	d.mu.Lock()
	d.current = nil
	d.active = false
	d.mu.Unlock()
	d.client.Unsubscribe(d.name)
}

func (d *DataSource) update(state account.State) {
	filters := d.build(state)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active && slices.EqualFunc(d.current, filters, nostr.FilterEqual) {
		return
	}
	d.current = filters

	if len(filters) == 0 {
		if d.active {
			d.client.Unsubscribe(d.name)
			d.active = false
		}
		return
	}

	d.active = true
	d.logger.Debug("filters changed", "filters", len(filters))
	d.client.Subscribe(internalnostr.Subscription{Name: d.name, Feed: d.feed, Filters: filters})
}
