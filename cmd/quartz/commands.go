package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"

	"github.com/sandwichfarm/quartz/internal/aggregates"
	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/config"
	"github.com/sandwichfarm/quartz/internal/event"
	qnostr "github.com/sandwichfarm/quartz/internal/nostr"
	"github.com/sandwichfarm/quartz/internal/relay"
	"github.com/sandwichfarm/quartz/internal/search"
	qsync "github.com/sandwichfarm/quartz/internal/sync"
)

// withSession opens a session around fn and closes it afterwards
func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := open(c)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(c, s)
	}
}

// withWriter is withSession for commands that publish
func withWriter(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return withSession(func(c *cli.Context, s *session) error {
		if err := s.writeable(); err != nil {
			return err
		}
		return fn(c, s)
	})
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: quartz %s %s", c.Command.Name, usage)
	}
	return nil
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "print an example configuration",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write to this file instead of stdout"},
	},
	Action: func(c *cli.Context) error {
		exampleConfig, err := config.GetExampleConfig()
		if err != nil {
			return fmt.Errorf("failed to read example config: %w", err)
		}
		if path := c.String("output"); path != "" {
			return os.WriteFile(path, exampleConfig, 0o600)
		}
		fmt.Print(string(exampleConfig))
		return nil
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "follow the home feed, direct messages and channels until interrupted",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "serve", Usage: "expose the event archive as a read-only relay"},
		&cli.StringFlag{Name: "addr", Usage: "archive relay listen address (overrides serve.addr)"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		s.logger.LogStartup(version, commit, map[string]interface{}{
			"pubkey":    s.account.PubKey(),
			"writeable": s.account.IsWriteable(),
			"storage":   s.cfg.Storage.Driver,
			"prefs":     s.cfg.Prefs.Engine,
		})

		feed := qsync.HomeNewThreadFeed(s.store, s.account)
		for i := len(feed) - 1; i >= 0; i-- {
			s.printNote(os.Stdout, feed[i], 0)
		}

		s.engine.AddEventHandler(func(_ context.Context, ev *nostr.Event, _ string) {
			note, ok := s.store.Note(ev.ID)
			if !ok {
				return
			}
			switch {
			case qsync.InHomeFeed(note, s.account):
				s.printNote(os.Stdout, note, 0)
			case ev.Kind == int(event.KindPrivateDM) && ev.PubKey != s.account.PubKey():
				fmt.Print("✉ ")
				s.printNote(os.Stdout, note, 0)
			}
		})

		sources := []*qsync.DataSource{
			qsync.NewHomeDataSource(s.account, s.client, s.filters, s.logger),
			qsync.NewDirectMessagesDataSource(s.account, s.client, s.filters, s.logger),
			qsync.NewChannelsDataSource(s.account, s.client, s.filters, s.logger),
		}
		for _, src := range sources {
			src.Start()
			defer src.Stop()
		}
		s.client.RequestAndWatch()

		if c.Bool("serve") || s.cfg.Serve.Enabled {
			addr := c.String("addr")
			if addr == "" {
				addr = s.cfg.Serve.Addr
			}
			go func() {
				if err := s.archive.Serve(ctx, addr); err != nil {
					s.logger.Error("archive relay stopped", "error", err)
				}
			}()
		}

		<-ctx.Done()
		s.logger.LogShutdown("interrupted")
		return nil
	}),
}

var followCmd = &cli.Command{
	Name:      "follow",
	Usage:     "follow users (npub, nprofile, hex) or hashtags (#tag)",
	ArgsUsage: "<npub|#tag>...",
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<npub|#tag>..."); err != nil {
			return err
		}
		for _, arg := range c.Args().Slice() {
			if tag, ok := strings.CutPrefix(arg, "#"); ok {
				s.account.FollowTag(tag)
				fmt.Printf("following #%s\n", tag)
				continue
			}
			pk, err := s.user(arg)
			if err != nil {
				return err
			}
			s.account.Follow(pk)
			fmt.Printf("following %s\n", s.authorName(pk))
		}
		return nil
	}),
}

var unfollowCmd = &cli.Command{
	Name:      "unfollow",
	Usage:     "stop following users or hashtags",
	ArgsUsage: "<npub|#tag>...",
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<npub|#tag>..."); err != nil {
			return err
		}
		for _, arg := range c.Args().Slice() {
			if tag, ok := strings.CutPrefix(arg, "#"); ok {
				s.account.UnfollowTag(tag)
				continue
			}
			pk, err := s.user(arg)
			if err != nil {
				return err
			}
			s.account.Unfollow(pk)
		}
		return nil
	}),
}

var postCmd = &cli.Command{
	Name:      "post",
	Usage:     "publish a text note",
	ArgsUsage: "<message>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "reply", Aliases: []string{"r"}, Usage: "note to reply to"},
		&cli.StringSliceFlag{Name: "mention", Aliases: []string{"m"}, Usage: "user to mention"},
	},
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<message>"); err != nil {
			return err
		}
		var replyTo []*cache.Note
		for _, ref := range c.StringSlice("reply") {
			note, err := s.note(ref)
			if err != nil {
				return err
			}
			replyTo = append(replyTo, note)
		}
		var mentions []string
		for _, m := range c.StringSlice("mention") {
			pk, err := s.user(m)
			if err != nil {
				return err
			}
			mentions = append(mentions, pk)
		}

		ev := s.account.SendPost(strings.Join(c.Args().Slice(), " "), replyTo, mentions)
		if ev == nil {
			return fmt.Errorf("note was not published")
		}
		note, _ := s.store.Note(ev.ID)
		s.printNote(os.Stdout, note, 0)
		return nil
	}),
}

var reactCmd = &cli.Command{
	Name:      "react",
	Usage:     "react to a note",
	ArgsUsage: "<note>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Value: "+", Usage: "reaction content"},
	},
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<note>"); err != nil {
			return err
		}
		note, err := s.note(c.Args().First())
		if err != nil {
			return err
		}
		if s.account.HasReacted(note, c.String("symbol")) {
			fmt.Println("already reacted")
			return nil
		}
		s.account.ReactTo(note, c.String("symbol"))
		return nil
	}),
}

var boostCmd = &cli.Command{
	Name:      "boost",
	Usage:     "repost a note",
	ArgsUsage: "<note>",
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<note>"); err != nil {
			return err
		}
		note, err := s.note(c.Args().First())
		if err != nil {
			return err
		}
		if s.account.HasBoosted(note) {
			fmt.Println("already boosted recently")
			return nil
		}
		s.account.Boost(note)
		return nil
	}),
}

var reportTypes = []event.ReportType{
	event.ReportSpam, event.ReportExplicit, event.ReportIllegal, event.ReportImpersonation,
	event.ReportNudity, event.ReportProfanity, event.ReportMalware, event.ReportOther,
}

var reportCmd = &cli.Command{
	Name:      "report",
	Usage:     "report a note or a user",
	ArgsUsage: "<note|npub>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: string(event.ReportSpam), Usage: "spam, explicit, illegal, impersonation, nudity, profanity, malware or other"},
		&cli.StringFlag{Name: "reason", Usage: "free text explanation"},
	},
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<note|npub>"); err != nil {
			return err
		}
		rt := event.ReportType(c.String("type"))
		if !slices.Contains(reportTypes, rt) {
			return fmt.Errorf("unknown report type %q", rt)
		}

		target := c.Args().First()
		if pk, err := s.user(target); err == nil {
			s.account.ReportUser(pk, rt, c.String("reason"))
			return nil
		}
		note, err := s.note(target)
		if err != nil {
			return err
		}
		s.account.ReportNote(note, rt, c.String("reason"))
		return nil
	}),
}

var deleteCmd = &cli.Command{
	Name:      "delete",
	Usage:     "ask relays to delete your notes",
	ArgsUsage: "<note>...",
	Action: withWriter(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<note>..."); err != nil {
			return err
		}
		var notes []*cache.Note
		for _, ref := range c.Args().Slice() {
			note, err := s.note(ref)
			if err != nil {
				return err
			}
			notes = append(notes, note)
		}
		s.account.Delete(notes...)
		return nil
	}),
}

var bookmarkCmd = &cli.Command{
	Name:      "bookmark",
	Usage:     "add or remove a bookmark, or list bookmarks without arguments",
	ArgsUsage: "[note]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "private", Aliases: []string{"p"}, Usage: "use the encrypted bookmark list"},
		&cli.BoolFlag{Name: "remove", Usage: "remove instead of add"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		if c.NArg() == 0 {
			bookmarks := s.account.PublicBookmarks()
			if c.Bool("private") {
				var err error
				if bookmarks, err = s.account.PrivateBookmarks(); err != nil {
					return err
				}
			}
			for _, id := range bookmarks.Events {
				if note, ok := s.store.Note(id); ok && note.Loaded() {
					s.printNote(os.Stdout, note, 0)
				}
			}
			for _, a := range bookmarks.Addresses {
				addr, err := event.ParseAddress(a)
				if err != nil {
					continue
				}
				if note, ok := s.store.AddressableNote(addr); ok && note.Loaded() {
					s.printNote(os.Stdout, note, 0)
				}
			}
			return nil
		}

		if err := s.writeable(); err != nil {
			return err
		}
		note, err := s.note(c.Args().First())
		if err != nil {
			return err
		}
		switch {
		case c.Bool("private") && c.Bool("remove"):
			s.account.RemovePrivateBookmark(note)
		case c.Bool("private"):
			s.account.AddPrivateBookmark(note)
		case c.Bool("remove"):
			s.account.RemovePublicBookmark(note)
		default:
			s.account.AddPublicBookmark(note)
		}
		return nil
	}),
}

var relaysCmd = &cli.Command{
	Name:  "relays",
	Usage: "show and probe the account's relays",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "print the relays the account uses",
			Action: withSession(func(c *cli.Context, s *session) error {
				for _, r := range s.account.DesiredRelays() {
					printRelay(r)
				}
				return nil
			}),
		},
		{
			Name:      "probe",
			Usage:     "fetch relay information documents and suggest feed types",
			ArgsUsage: "[url]...",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "apply", Usage: "store the probed feed types in the local relay set"},
			},
			Action: withSession(func(c *cli.Context, s *session) error {
				prober := qnostr.NewProber(s.client.GetDefaultTimeout(), s.logger)

				local := s.account.LocalRelays()
				urls := c.Args().Slice()
				if len(urls) == 0 {
					urls = relay.URLs(local, nil)
				}

				changed := false
				for _, url := range urls {
					info, err := prober.Probe(s.ctx, url)
					if err != nil {
						fmt.Printf("%s: %v\n", url, err)
						continue
					}
					fmt.Printf("%s: %s %s %s, NIPs %v\n", url, info.Name, info.Software, info.Version, info.SupportedNIPs)

					for i, r := range local {
						if relay.NormalizeURL(r.URL) == relay.NormalizeURL(url) && !slices.Equal(r.FeedTypes, info.FeedTypes()) {
							local[i].FeedTypes = info.FeedTypes()
							changed = true
						}
					}
				}

				if c.Bool("apply") && changed {
					if err := s.writeable(); err != nil {
						return err
					}
					s.account.SaveRelayList(local)
				}
				return nil
			}),
		},
	},
}

func printRelay(r relay.Relay) {
	mode := ""
	if r.Read {
		mode += "r"
	}
	if r.Write {
		mode += "w"
	}
	feeds := make([]string, 0, len(r.FeedTypes))
	for _, f := range r.FeedTypes {
		feeds = append(feeds, string(f))
	}
	fmt.Printf("%-40s %-2s %s\n", r.URL, mode, strings.Join(feeds, ","))
}

var searchCmd = &cli.Command{
	Name:      "search",
	Usage:     "search users, notes, channels and hashtags in the local graph",
	ArgsUsage: "<query>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<query>"); err != nil {
			return err
		}
		res := search.Run(s.store, strings.Join(c.Args().Slice(), " "), search.Options{
			Limit:  c.Int("limit"),
			Hidden: s.account,
		})
		if res.Empty() {
			fmt.Println("no results")
			return nil
		}

		for _, tag := range res.Hashtags {
			fmt.Printf("#%s\n", tag)
		}
		for _, u := range res.Users {
			fmt.Printf("%s  %s\n", u.DisplayName(), u.Npub())
		}
		for _, ch := range res.Channels {
			fmt.Printf("%s  (%d messages)\n", ch.Info().Name, ch.MessageCount())
		}
		for _, n := range res.Notes {
			s.printNote(os.Stdout, n, 0)
		}
		return nil
	}),
}

var threadCmd = &cli.Command{
	Name:      "thread",
	Usage:     "print the thread a note belongs to",
	ArgsUsage: "<note>",
	Action: withSession(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<note>"); err != nil {
			return err
		}
		note, err := s.note(c.Args().First())
		if err != nil {
			return err
		}

		// replies live on the relays the note came from
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		replies, err := s.client.FetchEvents(ctx, append(note.Relays(), relay.URLs(s.client.Relays(), relay.Readable)...),
			nostr.Filter{Kinds: []int{int(event.KindTextNote)}, Tags: nostr.TagMap{"e": []string{note.EventID()}}})
		if err == nil {
			for _, ev := range replies {
				_ = s.engine.Accept(ev, "")
			}
		}

		view := aggregates.Thread(s.store, note.EventID())
		if view == nil {
			return fmt.Errorf("note %s is not loaded", c.Args().First())
		}
		view.Walk(func(n *aggregates.ThreadNode, depth int) {
			if s.account.IsAcceptableNote(n.Note) {
				s.printNote(os.Stdout, n.Note, depth)
			}
		})
		return nil
	}),
}

var dmCmd = &cli.Command{
	Name:      "dm",
	Usage:     "send a direct message, or read the conversation without a message",
	ArgsUsage: "<npub> [message]",
	Action: withSession(func(c *cli.Context, s *session) error {
		if err := requireArgs(c, 1, "<npub> [message]"); err != nil {
			return err
		}
		to, err := s.user(c.Args().First())
		if err != nil {
			return err
		}

		if c.NArg() == 1 {
			return s.printConversation(to)
		}

		if err := s.writeable(); err != nil {
			return err
		}
		if ev := s.account.SendPrivateMessage(strings.Join(c.Args().Tail(), " "), to, nil); ev == nil {
			return fmt.Errorf("message was not sent")
		}
		return nil
	}),
}

func (s *session) printConversation(with string) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	me := s.account.PubKey()
	for _, f := range s.filters.DirectMessagesFilters(me) {
		events, err := s.client.FetchEvents(ctx, relay.URLs(s.client.Relays(), relay.Readable), f)
		if err != nil {
			return err
		}
		for _, ev := range events {
			_ = s.engine.Accept(ev, "")
		}
	}

	var messages []*cache.Note
	for note := range s.store.Notes() {
		dm, ok := note.Payload().(*event.PrivateDM)
		if !ok {
			continue
		}
		if (note.Author() == me && dm.Recipient == with) || (note.Author() == with && dm.Recipient == me) {
			messages = append(messages, note)
		}
	}
	slices.SortFunc(messages, func(a, b *cache.Note) int {
		return cmp.Compare(a.CreatedAt(), b.CreatedAt())
	})
	for _, m := range messages {
		s.printNote(os.Stdout, m, 0)
	}
	return nil
}
