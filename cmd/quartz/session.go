package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"

	"github.com/sandwichfarm/quartz/internal/account"
	"github.com/sandwichfarm/quartz/internal/antispam"
	"github.com/sandwichfarm/quartz/internal/archive"
	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/entities"
	qnostr "github.com/sandwichfarm/quartz/internal/nostr"
	"github.com/sandwichfarm/quartz/internal/ops"
	"github.com/sandwichfarm/quartz/internal/prefs"
	"github.com/sandwichfarm/quartz/internal/relay"
	qsync "github.com/sandwichfarm/quartz/internal/sync"
)

var errReadOnly = errors.New("no private key configured, set QUARTZ_NSEC to publish")

// session is one running account with everything it is wired to
type session struct {
	ctx    context.Context
	cfg    *config.Config
	logger *ops.Logger

	tracker  *antispam.Tracker
	store    *cache.Store
	archive  *archive.Archive
	client   *qnostr.Client
	engine   *qsync.Engine
	prefs    prefs.Store
	account  *account.Account
	filters  *qsync.FilterBuilder
	resolver *entities.Resolver

	stopSaver func()
}

// open loads the configuration, rebuilds the graph from the archive,
// bootstraps the account's own lists from its relays and starts the account
func open(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.Bool("debug") {
		cfg.Logging.Level = "debug"
	}

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)

	s := &session{ctx: c.Context, cfg: cfg, logger: logger}
	if err := s.init(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) init() error {
	ctx := s.ctx
	cfg := s.cfg

	var signer account.Signer
	pubkey := ""
	if cfg.Identity.Nsec != "" {
		ks, err := qnostr.NewKeySigner(cfg.Identity.Nsec)
		if err != nil {
			return err
		}
		signer = ks
		pubkey = ks.PubKey()
	} else {
		pk, err := qnostr.ParsePubKey(cfg.Identity.Npub)
		if err != nil {
			return err
		}
		pubkey = pk
	}

	s.tracker = antispam.New(antispam.Options{
		Threshold:        cfg.Policy.SpamThreshold,
		MinContentLength: cfg.Policy.SpamMinContentLength,
		Window:           time.Duration(cfg.Policy.BatchWindowMs) * time.Millisecond,
	}, s.logger.WithComponent("antispam"))
	s.store = cache.New(s.tracker, s.logger)
	s.resolver = entities.NewResolver(s.store)
	s.filters = qsync.NewFilterBuilder(&cfg.Sync)

	arch, err := archive.New(ctx, &cfg.Storage, s.logger)
	if err != nil {
		return err
	}
	s.archive = arch
	replayed, err := arch.Replay(ctx, func(ev *nostr.Event) { s.store.Consume(ev, "") })
	if err != nil {
		return fmt.Errorf("failed to replay archive: %w", err)
	}
	s.logger.Info("graph rebuilt from archive", "events", replayed)

	s.client = qnostr.New(ctx, &cfg.Relays, s.logger)
	s.engine = qsync.NewEngine(ctx, s.store, arch, &cfg.Sync, s.logger)
	s.client.SetSink(s.engine.Sink())
	s.engine.Start()

	s.prefs, err = prefs.Open(ctx, &cfg.Prefs)
	if err != nil {
		return err
	}
	settings, found, err := s.prefs.Load(ctx, pubkey)
	if err != nil {
		return err
	}
	if !found {
		settings = account.DefaultSettings(cfg)
	}

	defaults := relay.FromConfig(cfg.Relays.Local)
	if len(defaults) == 0 {
		defaults = relay.Defaults()
	}
	s.account, err = account.New(account.Options{
		PubKey:        pubkey,
		Signer:        signer,
		Store:         s.store,
		Transport:     s.client,
		Spam:          s.tracker,
		Settings:      settings,
		Policy:        account.PolicyFromConfig(&cfg.Policy),
		DefaultRelays: defaults,
		ForcedSearch:  relay.ForcedSearch(&cfg.Relays),
		OnPublish: func(ev *nostr.Event) {
			if err := arch.Save(ctx, ev); err != nil {
				s.logger.Warn("failed to archive own event", "event_id", ev.ID, "error", err)
			}
		},
		Logger: s.logger,
	})
	if err != nil {
		return err
	}

	// the account's own lists decide which relays to use, so fetch them
	// from the local relay set before anything observes the store
	s.account.ReconnectIfRelaysHaveChanged()
	readable := relay.URLs(s.account.LocalRelays(), relay.Readable)
	if n, err := s.engine.Bootstrap(ctx, s.client, readable, pubkey, s.filters); err != nil {
		s.logger.Warn("bootstrap failed", "error", err)
	} else {
		s.logger.Debug("bootstrapped account", "events", n)
	}

	s.account.Start()
	_, s.stopSaver = prefs.StartSaver(ctx, s.account, s.prefs, s.logger)
	s.account.ReconnectIfRelaysHaveChanged()
	return nil
}

// close flushes pending publishes and settings, then releases everything
func (s *session) close() {
	if s.account != nil {
		s.account.Stop()
	}
	if s.stopSaver != nil {
		s.stopSaver()
	}
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := s.client.Flush(ctx); err != nil {
			s.logger.Warn("some events may not have reached their relays", "error", err)
		}
		cancel()
	}
	if s.engine != nil {
		s.engine.Stop()
	}
	if s.client != nil {
		s.client.Close()
	}
	if s.archive != nil {
		s.archive.Close()
	}
	if s.prefs != nil {
		if err := s.prefs.Close(); err != nil {
			s.logger.Warn("failed to close settings store", "error", err)
		}
	}
	if s.tracker != nil {
		s.tracker.Close()
	}
}

func (s *session) writeable() error {
	if !s.account.IsWriteable() {
		return errReadOnly
	}
	return nil
}

// user resolves an npub, nprofile or hex key to a pubkey
func (s *session) user(input string) (string, error) {
	e, err := s.resolver.Resolve(input)
	if err != nil {
		return "", err
	}
	u, ok := s.resolver.User(e)
	if !ok {
		return "", fmt.Errorf("%s is not a user", input)
	}
	return u.PubKey(), nil
}

// note resolves a note reference, fetching the event from relays when the
// graph has not seen it yet
func (s *session) note(input string) (*cache.Note, error) {
	e, err := s.resolver.Resolve(input)
	if err != nil {
		return nil, err
	}
	note, ok := s.resolver.Note(e)
	if !ok {
		return nil, fmt.Errorf("%s is not a note", input)
	}
	if note.Loaded() {
		return note, nil
	}

	urls := append(e.Relays, relay.URLs(s.client.Relays(), relay.Readable)...)
	ctx, cancel := context.WithTimeout(s.ctx, s.client.GetDefaultTimeout())
	defer cancel()

	var events []*nostr.Event
	if e.Address == nil {
		ev, err := s.client.FetchEvent(ctx, urls, e.EventID)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	} else {
		events, err = s.client.FetchEvents(ctx, urls, nostr.Filter{
			Kinds:   []int{int(e.Address.Kind)},
			Authors: []string{e.Address.PubKey},
			Tags:    nostr.TagMap{"d": []string{e.Address.DTag}},
		})
		if err != nil {
			return nil, err
		}
	}
	for _, ev := range events {
		if err := s.engine.Accept(ev, ""); err != nil {
			s.logger.Debug("fetched event rejected", "event_id", ev.ID, "error", err)
		}
	}

	if !note.Loaded() {
		return nil, fmt.Errorf("note %s not found on %d relays", input, len(urls))
	}
	return note, nil
}
