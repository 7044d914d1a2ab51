package cache

import (
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/quartz/internal/event"
)

// Consume ingests one event seen on relayURL ("" for locally created events).
// Ingesting the same event again only adds relay provenance.
func (s *Store) Consume(ev *nostr.Event, relayURL string) {
	if ev == nil || ev.ID == "" || ev.PubKey == "" {
		return
	}
	start := time.Now()

	s.GetOrCreateUser(ev.PubKey).seen(relayURL, ev.CreatedAt)

	kind := event.Kind(ev.Kind)
	switch {
	case kind == event.KindMetadata:
		s.consumeMetadata(ev)
	case kind == event.KindContactList:
		s.consumeContactList(ev)
	case kind == event.KindRelayList:
		s.consumeRelayList(ev)
	case kind.IsAddressable():
		s.consumeAddressable(ev, relayURL)
	default:
		s.consumeNote(ev, relayURL)
	}

	s.logger.LogIngest(relayURL, ev.ID, ev.Kind, time.Since(start))
}

func (s *Store) consumeMetadata(ev *nostr.Event) {
	if s.GetOrCreateUser(ev.PubKey).updateMetadata(ev) {
		s.notify(Change{Kind: ChangeMetadata, PubKey: ev.PubKey})
	}
}

func (s *Store) consumeContactList(ev *nostr.Event) {
	cl, _ := event.Parse(ev).(*event.ContactList)
	updated, relaysChanged := s.GetOrCreateUser(ev.PubKey).updateContactList(ev, cl)
	if !updated {
		return
	}
	s.notify(Change{Kind: ChangeFollows, PubKey: ev.PubKey})
	if relaysChanged {
		s.notify(Change{Kind: ChangeRelays, PubKey: ev.PubKey})
	}
}

func (s *Store) consumeRelayList(ev *nostr.Event) {
	rl, _ := event.Parse(ev).(*event.RelayList)
	if s.GetOrCreateUser(ev.PubKey).updateRelayList(ev, rl.Hints) {
		s.notify(Change{Kind: ChangeRelayList, PubKey: ev.PubKey})
	}
}

func (s *Store) consumeNote(ev *nostr.Event, relayURL string) {
	note := s.GetOrCreateNote(ev.ID)
	payload := event.Parse(ev)
	if !note.load(ev, payload, relayURL) {
		return
	}

	s.GetOrCreateUser(ev.PubKey).addNote(note.Key())

	if s.spam != nil {
		switch payload.(type) {
		case *event.TextNote, *event.ChannelMessage:
			s.spam.Observe(ev)
		}
	}

	s.indexLoaded(note, payload)
	s.notify(Change{Kind: ChangeNote, PubKey: ev.PubKey, Key: note.Key()})
}

func (s *Store) consumeAddressable(ev *nostr.Event, relayURL string) {
	addr, _ := event.AddressOf(ev)
	note := s.GetOrCreateAddressableNote(addr)
	payload := event.Parse(ev)

	replaced, previous := note.replace(ev, payload, relayURL)
	if !replaced {
		return
	}
	if previous != nil {
		s.unindex(note.Key(), ev.PubKey, previous)
	}

	user := s.GetOrCreateUser(ev.PubKey)
	user.addNote(note.Key())

	if _, ok := payload.(*event.BookmarkList); ok && addr.DTag == event.BookmarkDTag {
		if user.updateBookmarkList(ev) {
			s.notify(Change{Kind: ChangeBookmarks, PubKey: ev.PubKey, Key: note.Key()})
		}
	}

	s.indexLoaded(note, payload)
	s.notify(Change{Kind: ChangeNote, PubKey: ev.PubKey, Key: note.Key()})
}

// indexLoaded writes the backlinks of a freshly loaded note, then undoes them
// if a deletion raced in while they were being written
func (s *Store) indexLoaded(note *Note, payload event.Payload) {
	ev := note.Event()
	if note.IsDeleted() {
		return
	}
	s.index(note.Key(), ev, payload)
	if note.IsDeleted() {
		s.unindex(note.Key(), ev.PubKey, payload)
	}
}

// index adds the backlinks that an event creates on the entities it references
func (s *Store) index(key string, ev *nostr.Event, payload event.Payload) {
	switch p := payload.(type) {
	case *event.TextNote:
		s.indexReplies(key, p.ReplyTos, p.Addresses)

	case *event.LongTextNote:
		s.indexReplies(key, p.ReplyTos, p.Addresses)

	case *event.ChannelMessage:
		if p.ChannelID != "" {
			s.GetOrCreateChannel(p.ChannelID).addMessage(key)
			s.notify(Change{Kind: ChangeChannel, Key: p.ChannelID})
		}
		s.indexReplies(key, p.ReplyTos, nil)

	case *event.PrivateDM:
		s.indexReplies(key, p.ReplyTos, nil)

	case *event.Reaction:
		for _, target := range s.targets(p.Targets, p.TargetAddresses) {
			target.addReaction(p.Symbol, ev.PubKey, key)
		}

	case *event.Repost:
		for _, target := range s.targets(p.Boosted, p.BoostedAddresses) {
			target.addBoost(key, ev.PubKey, ev.CreatedAt)
		}

	case *event.Report:
		for _, rt := range p.Notes {
			s.GetOrCreateNote(rt.Key).addReport(reportFrom(key, ev, p.Notes, rt.Key))
		}
		for _, rt := range p.Users {
			s.GetOrCreateUser(rt.Key).addReport(reportFrom(key, ev, p.Users, rt.Key))
			s.notify(Change{Kind: ChangeReports, PubKey: rt.Key, Key: key})
		}

	case *event.Deletion:
		s.applyDeletion(ev, p)

	case *event.ZapRequest:
		for _, target := range s.targets(p.Targets, p.TargetAddresses) {
			target.addZap(Zap{RequestID: key, Sender: ev.PubKey})
		}

	case *event.Zap:
		if p.Request == nil {
			return
		}
		z := Zap{RequestID: p.Request.ID, Sender: p.Request.PubKey, ReceiptID: key, AmountSats: p.AmountSats}
		if len(p.Targets) == 0 && p.Recipient != "" {
			s.GetOrCreateUser(p.Recipient).addZap(z)
		}
		for _, target := range s.targets(p.Targets, nil) {
			target.addZap(z)
		}

	case *event.ChannelCreate:
		if s.GetOrCreateChannel(key).create(ev.PubKey, p.Info, ev.CreatedAt) {
			s.notify(Change{Kind: ChangeChannel, PubKey: ev.PubKey, Key: key})
		}

	case *event.ChannelMetadata:
		if p.ChannelID == "" {
			return
		}
		if s.GetOrCreateChannel(p.ChannelID).updateInfo(ev.PubKey, p.Info, ev.CreatedAt) {
			s.notify(Change{Kind: ChangeChannel, PubKey: ev.PubKey, Key: p.ChannelID})
		}
	}
}

// unindex removes the backlinks index added for the same payload
func (s *Store) unindex(key, author string, payload event.Payload) {
	switch p := payload.(type) {
	case *event.TextNote:
		s.unindexReplies(key, p.ReplyTos, p.Addresses)

	case *event.LongTextNote:
		s.unindexReplies(key, p.ReplyTos, p.Addresses)

	case *event.ChannelMessage:
		if ch, ok := s.Channel(p.ChannelID); ok {
			ch.removeMessage(key)
		}
		s.unindexReplies(key, p.ReplyTos, nil)

	case *event.PrivateDM:
		s.unindexReplies(key, p.ReplyTos, nil)

	case *event.Reaction:
		for _, target := range s.targets(p.Targets, p.TargetAddresses) {
			target.removeReaction(p.Symbol, author, key)
		}

	case *event.Repost:
		for _, target := range s.targets(p.Boosted, p.BoostedAddresses) {
			target.removeBoost(key)
		}

	case *event.Report:
		for _, rt := range p.Notes {
			if n, ok := s.Note(rt.Key); ok {
				n.removeReport(key)
			}
		}
		for _, rt := range p.Users {
			if u, ok := s.User(rt.Key); ok {
				u.removeReport(key)
				s.notify(Change{Kind: ChangeReports, PubKey: rt.Key, Key: key})
			}
		}

	case *event.ZapRequest:
		for _, target := range s.targets(p.Targets, p.TargetAddresses) {
			target.removeZap(key)
		}

	case *event.Zap:
		if p.Request == nil {
			return
		}
		if len(p.Targets) == 0 && p.Recipient != "" {
			if u, ok := s.User(p.Recipient); ok {
				u.removeReceipt(p.Request.ID, key)
			}
		}
		for _, target := range s.targets(p.Targets, nil) {
			target.removeReceipt(p.Request.ID, key)
		}
	}
}

func (s *Store) indexReplies(key string, ids []string, addrs []event.Address) {
	for _, target := range s.targets(ids, addrs) {
		target.addReply(key)
	}
}

func (s *Store) unindexReplies(key string, ids []string, addrs []event.Address) {
	for _, target := range s.targets(ids, addrs) {
		target.removeReply(key)
	}
}

// targets resolves ids and addresses to notes, creating placeholders
func (s *Store) targets(ids []string, addrs []event.Address) []*Note {
	out := make([]*Note, 0, len(ids)+len(addrs))
	for _, id := range ids {
		out = append(out, s.GetOrCreateNote(id))
	}
	for _, a := range addrs {
		out = append(out, s.GetOrCreateAddressableNote(a))
	}
	return out
}

// applyDeletion tombstones the deleter's own notes and drops their backlinks
func (s *Store) applyDeletion(ev *nostr.Event, p *event.Deletion) {
	for _, target := range s.targets(p.Events, p.Addresses) {
		if !target.requestDeletion(ev.PubKey, ev.CreatedAt) {
			continue
		}
		s.unindex(target.Key(), ev.PubKey, target.Payload())
		s.notify(Change{Kind: ChangeNote, PubKey: ev.PubKey, Key: target.Key()})
	}
}

func reportFrom(key string, ev *nostr.Event, targets []event.ReportTarget, targetKey string) Report {
	r := Report{ID: key, Author: ev.PubKey, CreatedAt: ev.CreatedAt}
	for _, t := range targets {
		if t.Key == targetKey {
			r.Types = append(r.Types, t.Type)
		}
	}
	return r
}
