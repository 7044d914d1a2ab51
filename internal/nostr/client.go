package nostr

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/ops"
	"github.com/sandwichfarm/quartz/internal/relay"
)

// Sink receives every event delivered by a live subscription
type Sink func(ev *nostr.Event, relayURL string)

// Subscription is a named, long-lived request. It is sent to the readable
// relays that serve its feed type and re-issued on every reconnect.
type Subscription struct {
	Name    string
	Feed    relay.FeedType
	Filters nostr.Filters
}

type watch struct {
	sub    Subscription
	cancel context.CancelFunc
}

// Client is the relay pool the account publishes through and the sync
// layer subscribes with
type Client struct {
	relayConfig *config.Relays
	ctx         context.Context
	logger      *ops.Logger

	mu        sync.RWMutex
	pool      *nostr.SimplePool
	relays    []relay.Relay
	connected bool
	sink      Sink

	// subMu serializes changes to running subscriptions
	subMu   sync.Mutex
	watches *xsync.MapOf[string, *watch]

	sends sync.WaitGroup
}

// New creates a new Nostr client with the given configuration
func New(ctx context.Context, relayConfig *config.Relays, logger *ops.Logger) *Client {
	if logger == nil {
		logger = ops.Default()
	}
	return &Client{
		relayConfig: relayConfig,
		ctx:         ctx,
		logger:      logger.WithComponent("relays"),
		pool:        nostr.NewSimplePool(ctx),
		watches:     xsync.NewMapOf[string, *watch](),
	}
}

// Pool returns the underlying SimplePool for advanced operations
func (c *Client) Pool() *nostr.SimplePool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// SetSink sets where subscription events are delivered
func (c *Client) SetSink(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Relays returns the relay set the client is connected to
func (c *Client) Relays() []relay.Relay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.relays)
}

// Connect records the relay set and dials each relay in the background
func (c *Client) Connect(relays []relay.Relay) {
	c.mu.Lock()
	c.relays = slices.Clone(relays)
	c.connected = true
	pool := c.pool
	c.mu.Unlock()

	for _, r := range relays {
		go func(url string) {
			_, err := pool.EnsureRelay(url)
			c.logger.LogRelayConnection(url, err == nil, err)
		}(r.URL)
	}
}

// Disconnect stops every running subscription and closes the pool. The
// subscriptions stay registered and come back with RequestAndWatch.
func (c *Client) Disconnect() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.watches.Range(func(_ string, w *watch) bool {
		if w.cancel != nil {
			w.cancel()
			w.cancel = nil
		}
		return true
	})

	c.mu.Lock()
	old := c.pool
	c.pool = nostr.NewSimplePool(c.ctx)
	c.relays = nil
	c.connected = false
	c.mu.Unlock()

	go old.Close("relay set changed")
}

// IsSameRelaySetConfig reports whether the client is connected to exactly
// the given relay set
func (c *Client) IsSameRelaySetConfig(relays []relay.Relay) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && relay.SameSet(c.relays, relays)
}

// Send publishes an event without waiting for the relays. With no URLs the
// event goes to every writable relay.
func (c *Client) Send(ev *nostr.Event, relayURLs ...string) {
	if ev == nil {
		return
	}
	if len(relayURLs) == 0 {
		relayURLs = relay.URLs(c.Relays(), relay.Writable)
	}
	if len(relayURLs) == 0 {
		c.logger.Debug("no writable relay", "event_id", ev.ID)
		return
	}

	c.sends.Add(1)
	go func() {
		defer c.sends.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.publishTimeout())
		defer cancel()
		if err := c.PublishEvent(ctx, relayURLs, ev); err != nil {
			c.logger.Warn("event not delivered", "event_id", ev.ID, "error", err)
		}
	}()
}

// Flush waits for the events handed to Send to reach their relays, or for
// ctx to end
func (c *Client) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.sends.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a subscription, replacing one with the same name.
// It starts right away when the client is connected.
func (c *Client) Subscribe(sub Subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	w := &watch{sub: sub}
	if old, ok := c.watches.LoadAndStore(sub.Name, w); ok && old.cancel != nil {
		old.cancel()
	}

	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		w.cancel = c.start(sub)
	}
}

// Unsubscribe stops and forgets a subscription
func (c *Client) Unsubscribe(name string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if w, ok := c.watches.LoadAndDelete(name); ok && w.cancel != nil {
		w.cancel()
	}
}

// Subscriptions returns the names of the registered subscriptions
func (c *Client) Subscriptions() []string {
	var names []string
	c.watches.Range(func(name string, _ *watch) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// RequestAndWatch re-issues every registered subscription against the
// current relay set
func (c *Client) RequestAndWatch() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.watches.Range(func(_ string, w *watch) bool {
		if w.cancel != nil {
			w.cancel()
		}
		w.cancel = c.start(w.sub)
		return true
	})
}

func (c *Client) start(sub Subscription) context.CancelFunc {
	c.mu.RLock()
	pool := c.pool
	sink := c.sink
	urls := relay.URLs(c.relays, func(r relay.Relay) bool { return r.Read && r.Has(sub.Feed) })
	c.mu.RUnlock()

	if len(urls) == 0 || len(sub.Filters) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	go func() {
		c.logger.Debug("subscription started", "name", sub.Name, "relays", len(urls))
		for relayEvent := range pool.SubMany(ctx, urls, sub.Filters) {
			if relayEvent.Event == nil || sink == nil {
				continue
			}
			url := ""
			if relayEvent.Relay != nil {
				url = relayEvent.Relay.URL
			}
			sink(relayEvent.Event, url)
		}
	}()
	return cancel
}

// FetchEvents fetches events from the given relays matching the filter
func (c *Client) FetchEvents(ctx context.Context, relays []string, filter nostr.Filter) ([]*nostr.Event, error) {
	events := make([]*nostr.Event, 0)

	// Use SubManyEose to get events and wait for EOSE
	for relayEvent := range c.Pool().SubManyEose(ctx, relays, nostr.Filters{filter}) {
		if relayEvent.Event != nil {
			events = append(events, relayEvent.Event)
		}
	}

	return events, nil
}

// FetchEvent fetches a single event by ID from the given relays
func (c *Client) FetchEvent(ctx context.Context, relays []string, eventID string) (*nostr.Event, error) {
	filter := nostr.Filter{
		IDs: []string{eventID},
	}

	result := c.Pool().QuerySingle(ctx, relays, filter)
	if result == nil || result.Event == nil {
		return nil, fmt.Errorf("event not found: %s", eventID)
	}

	return result.Event, nil
}

// PublishEvent publishes an event to the given relays and waits for them
func (c *Client) PublishEvent(ctx context.Context, relays []string, event *nostr.Event) error {
	results := c.Pool().PublishMany(ctx, relays, *event)

	var lastErr error
	successCount := 0

	for result := range results {
		c.logger.LogPublish(result.RelayURL, event.ID, event.Kind, result.Error)
		if result.Error != nil {
			lastErr = result.Error
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("failed to publish to any relay: %w", lastErr)
	}

	return nil
}

// Close stops every subscription and closes all relay connections
func (c *Client) Close() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.watches.Range(func(name string, w *watch) bool {
		if w.cancel != nil {
			w.cancel()
		}
		c.watches.Delete(name)
		return true
	})
	c.Pool().Close("client shutting down")
}

// GetDefaultTimeout returns the configured timeout duration
func (c *Client) GetDefaultTimeout() time.Duration {
	if c.relayConfig == nil || c.relayConfig.Policy.ConnectTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.relayConfig.Policy.ConnectTimeoutMs) * time.Millisecond
}

func (c *Client) publishTimeout() time.Duration {
	if c.relayConfig == nil || c.relayConfig.Policy.PublishTimeoutMs == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.relayConfig.Policy.PublishTimeoutMs) * time.Millisecond
}
