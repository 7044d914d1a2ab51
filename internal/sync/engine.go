package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/ops"
)

// Archiver keeps a durable copy of ingested events
type Archiver interface {
	Save(ctx context.Context, ev *nostr.Event) error
}

// Fetcher runs one-shot queries against relays
type Fetcher interface {
	FetchEvents(ctx context.Context, relays []string, filter nostr.Filter) ([]*nostr.Event, error)
}

// EventHandler is notified for each ingested event.
type EventHandler func(ctx context.Context, ev *nostr.Event, relayURL string)

type incoming struct {
	ev       *nostr.Event
	relayURL string
}

// Stats counts what the engine did with the events it received
type Stats struct {
	Ingested   int64
	Duplicates int64
	Invalid    int64
}

// Engine moves relay events into the local graph. A pool of workers checks
// each event, hands it to the store, mirrors it into the archive and then
// notifies the handlers.
type Engine struct {
	store   *cache.Store
	archive Archiver
	config  *config.Sync
	logger  *ops.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventChan chan incoming
	recent    *recentIDs

	handlersMu    sync.RWMutex
	eventHandlers []EventHandler

	started    atomic.Bool
	ingested   atomic.Int64
	duplicates atomic.Int64
	invalid    atomic.Int64
}

// NewEngine creates a sync engine feeding store. archive may be nil.
func NewEngine(ctx context.Context, store *cache.Store, archive Archiver, cfg *config.Sync, logger *ops.Logger) *Engine {
	if cfg == nil {
		cfg = &config.Default().Sync
	}
	if logger == nil {
		logger = ops.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	engineCtx, cancel := context.WithCancel(ctx)
	return &Engine{
		store:     store,
		archive:   archive,
		config:    cfg,
		logger:    logger.WithComponent("sync"),
		ctx:       engineCtx,
		cancel:    cancel,
		eventChan: make(chan incoming, queueSize),
		recent:    newRecentIDs(queueSize * 5),
	}
}

// AddEventHandler registers an optional event handler.
func (e *Engine) AddEventHandler(handler EventHandler) {
	if handler == nil {
		return
	}
	e.handlersMu.Lock()
	e.eventHandlers = append(e.eventHandlers, handler)
	e.handlersMu.Unlock()
}

// Start launches the ingestion workers
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}

	workerCount := e.config.Workers
	if workerCount <= 0 {
		workerCount = 4 // Safety fallback
	}
	e.logger.Debug("starting workers", "workers", workerCount)
	for i := 0; i < workerCount; i++ {
		e.wg.Add(1)
		go e.eventWorker(i + 1)
	}
}

// Stop gracefully stops the sync engine, dropping queued events
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// Enqueue hands a relay event to the workers. It blocks while the queue is
// full and returns false once the engine is stopped.
func (e *Engine) Enqueue(ev *nostr.Event, relayURL string) bool {
	if ev == nil {
		return false
	}
	select {
	case e.eventChan <- incoming{ev: ev, relayURL: relayURL}:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Sink adapts Enqueue to the relay client's event sink
func (e *Engine) Sink() func(ev *nostr.Event, relayURL string) {
	return func(ev *nostr.Event, relayURL string) { e.Enqueue(ev, relayURL) }
}

// Stats returns the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Ingested:   e.ingested.Load(),
		Duplicates: e.duplicates.Load(),
		Invalid:    e.invalid.Load(),
	}
}

func (e *Engine) eventWorker(workerID int) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case in := <-e.eventChan:
			e.work(workerID, in)
		}
	}
}

// work processes one queued event. A panic in a handler is logged and the
// worker moves on to the next event.
func (e *Engine) work(workerID int, in incoming) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.LogPanic(r, string(debug.Stack()))
		}
	}()
	if err := e.processEvent(in.ev, in.relayURL); err != nil {
		e.logger.Debug("event rejected", "worker", workerID, "event_id", in.ev.ID, "error", err)
	}
}

// processEvent ingests one relay event. The signature is checked the first
// time an id is seen. Later copies must hash to their id, which makes them
// identical to the verified one, and then only add their relay to the note.
func (e *Engine) processEvent(ev *nostr.Event, relayURL string) error {
	if e.recent.Contains(ev.ID) {
		if ev.GetID() != ev.ID {
			e.invalid.Add(1)
			return fmt.Errorf("invalid event %s: id does not match content", ev.ID)
		}
		e.duplicates.Add(1)
		e.store.Consume(ev, relayURL)
		return nil
	}

	if ok, err := ev.CheckSignature(); err != nil || !ok {
		e.invalid.Add(1)
		if err == nil {
			err = fmt.Errorf("bad signature")
		}
		return fmt.Errorf("invalid event %s: %w", ev.ID, err)
	}
	e.recent.Add(ev.ID)

	return e.Ingest(e.ctx, ev, relayURL)
}

// Accept checks and ingests one event synchronously, the way queued
// relay events are
func (e *Engine) Accept(ev *nostr.Event, relayURL string) error {
	return e.processEvent(ev, relayURL)
}

// Ingest consumes a trusted event synchronously: store, archive, handlers
func (e *Engine) Ingest(ctx context.Context, ev *nostr.Event, relayURL string) error {
	start := time.Now()
	e.store.Consume(ev, relayURL)

	var archiveErr error
	if e.archive != nil {
		if err := e.archive.Save(ctx, ev); err != nil {
			archiveErr = fmt.Errorf("failed to archive event: %w", err)
		}
	}

	e.notifyEventHandlers(ctx, ev, relayURL)
	e.ingested.Add(1)
	e.logger.LogIngest(relayURL, ev.ID, ev.Kind, time.Since(start))
	return archiveErr
}

func (e *Engine) notifyEventHandlers(ctx context.Context, ev *nostr.Event, relayURL string) {
	e.handlersMu.RLock()
	handlers := e.eventHandlers
	e.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, ev, relayURL)
	}
}

// Bootstrap fetches the account's own replaceable events from relays and
// ingests them before anything else runs
func (e *Engine) Bootstrap(ctx context.Context, fetcher Fetcher, relays []string, pubkey string, fb *FilterBuilder) (int, error) {
	if len(relays) == 0 {
		return 0, fmt.Errorf("no relays to bootstrap from")
	}

	wait := time.Duration(e.config.BootstrapWaitMs) * time.Millisecond
	if wait <= 0 {
		wait = 4 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	events, err := fetcher.FetchEvents(fetchCtx, relays, fb.OwnReplaceablesFilter(pubkey))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch account events: %w", err)
	}

	count := 0
	for _, ev := range events {
		if err := e.processEvent(ev, ""); err != nil {
			e.logger.Warn("bootstrap event skipped", "event_id", ev.ID, "error", err)
			continue
		}
		count++
	}
	e.logger.Info("bootstrap complete", "relays", len(relays), "events", count)
	return count, nil
}

// recentIDs is a bounded set of event ids, evicting the oldest first
type recentIDs struct {
	ids   *xsync.MapOf[string, struct{}]
	mu    sync.Mutex
	order []string
	max   int
}

func newRecentIDs(max int) *recentIDs {
	return &recentIDs{ids: xsync.NewMapOf[string, struct{}](), max: max}
}

func (r *recentIDs) Contains(id string) bool {
	_, ok := r.ids.Load(id)
	return ok
}

func (r *recentIDs) Add(id string) {
	if _, loaded := r.ids.LoadOrStore(id, struct{}{}); loaded {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
	if len(r.order) > r.max {
		r.ids.Delete(r.order[0])
		r.order = r.order[1:]
	}
}
