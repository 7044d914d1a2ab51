// Package archive keeps a durable copy of every ingested event in an
// eventstore, rebuilds the graph from it on start and can expose it to
// other clients as a read-only khatru relay.
package archive

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fiatjaf/eventstore"
	"github.com/fiatjaf/eventstore/slicestore"
	"github.com/fiatjaf/eventstore/sqlite3"
	"github.com/fiatjaf/khatru"
	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/ops"
)

// Archive stores events behind a khatru relay
type Archive struct {
	store   eventstore.Store
	wrapper eventstore.RelayWrapper
	relay   *khatru.Relay
	config  *config.Storage
	logger  *ops.Logger
}

// New creates an Archive with the configured backend
func New(ctx context.Context, cfg *config.Storage, logger *ops.Logger) (*Archive, error) {
	if logger == nil {
		logger = ops.Default()
	}
	a := &Archive{
		config: cfg,
		logger: logger.WithComponent("archive"),
	}

	limit := cfg.ReplayLimit
	if limit <= 0 {
		limit = config.Default().Storage.ReplayLimit
	}

	// Initialize the appropriate backend
	switch cfg.Driver {
	case "memory":
		a.store = &slicestore.SliceStore{MaxLimit: limit}
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create archive directory: %w", err)
			}
		}
		a.store = &sqlite3.SQLite3Backend{DatabaseURL: cfg.SQLitePath, QueryLimit: limit}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	start := time.Now()
	err := a.store.Init()
	a.logger.LogStorageOperation("init", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s archive: %w", cfg.Driver, err)
	}
	a.wrapper = eventstore.RelayWrapper{Store: a.store}
	a.relay = a.newRelay()

	return a, nil
}

func (a *Archive) newRelay() *khatru.Relay {
	relay := khatru.NewRelay()
	relay.Info.Name = "quartz archive"
	relay.Info.Description = "events seen by this quartz account"
	relay.Info.Software = "https://github.com/sandwichfarm/quartz"

	relay.QueryEvents = append(relay.QueryEvents, a.store.QueryEvents)
	relay.RejectEvent = append(relay.RejectEvent, func(ctx context.Context, ev *nostr.Event) (bool, string) {
		return true, "blocked: this archive is read-only"
	})
	return relay
}

// Relay returns the underlying Khatru relay instance
func (a *Archive) Relay() *khatru.Relay {
	return a.relay
}

// Save archives an event. Replaceable events replace the older version and
// deletions remove the author's own targets.
func (a *Archive) Save(ctx context.Context, ev *nostr.Event) error {
	if ev == nil {
		return nil
	}

	if event.Kind(ev.Kind) == event.KindDeletion {
		if err := a.applyDeletion(ctx, ev); err != nil {
			return err
		}
	}

	if err := a.wrapper.Publish(ctx, *ev); err != nil && !errors.Is(err, eventstore.ErrDupEvent) {
		return fmt.Errorf("failed to store event: %w", err)
	}
	a.relay.BroadcastEvent(ev)
	return nil
}

func (a *Archive) applyDeletion(ctx context.Context, deletion *nostr.Event) error {
	var ids []string
	for _, tag := range deletion.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			ids = append(ids, tag[1])
		}
	}
	if len(ids) == 0 {
		return nil
	}

	targets, err := a.QueryEvents(ctx, nostr.Filter{IDs: ids, Authors: []string{deletion.PubKey}})
	if err != nil {
		return fmt.Errorf("failed to query event before delete: %w", err)
	}
	for _, target := range targets {
		if err := a.store.DeleteEvent(ctx, target); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
	}
	return nil
}

// QueryEvents queries archived events using Nostr filters
func (a *Archive) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	events, err := a.wrapper.QuerySync(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

// EventExists checks if an event is archived
func (a *Archive) EventExists(ctx context.Context, eventID string) (bool, error) {
	events, err := a.QueryEvents(ctx, nostr.Filter{IDs: []string{eventID}, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// Replay feeds the newest archived events, up to the replay limit, to
// consume in chronological order. It returns how many were replayed.
func (a *Archive) Replay(ctx context.Context, consume func(ev *nostr.Event)) (int, error) {
	limit := a.config.ReplayLimit
	if limit <= 0 {
		limit = config.Default().Storage.ReplayLimit
	}

	start := time.Now()
	events, err := a.QueryEvents(ctx, nostr.Filter{Limit: limit})
	a.logger.LogStorageOperation("replay", time.Since(start), err)
	if err != nil {
		return 0, err
	}

	slices.SortStableFunc(events, func(x, y *nostr.Event) int {
		return cmp.Compare(x.CreatedAt, y.CreatedAt)
	})
	for _, ev := range events {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		consume(ev)
	}
	return len(events), nil
}

// Serve exposes the archive relay over WebSocket until ctx is done
func (a *Archive) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.relay,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("archive relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("archive relay failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close closes the storage backend
func (a *Archive) Close() {
	a.store.Close()
}
