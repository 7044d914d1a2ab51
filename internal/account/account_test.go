package account

import (
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/quartz/internal/antispam"
	"github.com/sandwichfarm/quartz/internal/cache"
	"github.com/sandwichfarm/quartz/internal/event"
	"github.com/sandwichfarm/quartz/internal/relay"
)

type testKey struct {
	sk string
	pk string
}

func newKey(t *testing.T) testKey {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return testKey{sk: sk, pk: pk}
}

func (k testKey) sign(t *testing.T, ev nostr.Event, at int64) *nostr.Event {
	t.Helper()
	ev.CreatedAt = nostr.Timestamp(at)
	require.NoError(t, ev.Sign(k.sk))
	return &ev
}

// keySigner signs with a raw key
type keySigner struct{ testKey }

func (k keySigner) PubKey() string { return k.pk }

func (k keySigner) Sign(ev *nostr.Event) error { return ev.Sign(k.sk) }

func (k keySigner) Encrypt(plaintext, counterparty string) (string, error) {
	shared, err := nip04.ComputeSharedSecret(counterparty, k.sk)
	if err != nil {
		return "", err
	}
	return nip04.Encrypt(plaintext, shared)
}

func (k keySigner) Decrypt(ciphertext, counterparty string) (string, error) {
	shared, err := nip04.ComputeSharedSecret(counterparty, k.sk)
	if err != nil {
		return "", err
	}
	return nip04.Decrypt(ciphertext, shared)
}

type sent struct {
	ev     *nostr.Event
	relays []string
}

type fakeTransport struct {
	mu          sync.Mutex
	sent        []sent
	connected   []relay.Relay
	connects    int
	disconnects int
	requests    int
}

func (f *fakeTransport) Send(ev *nostr.Event, relayURLs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{ev: ev, relays: relayURLs})
}

func (f *fakeTransport) Connect(relays []relay.Relay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = relays
	f.connects++
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = nil
	f.disconnects++
}

func (f *fakeTransport) IsSameRelaySetConfig(relays []relay.Relay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects > 0 && relay.SameSet(f.connected, relays)
}

func (f *fakeTransport) RequestAndWatch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
}

func (f *fakeTransport) sentKinds() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.ev.Kind)
	}
	return out
}

func (f *fakeTransport) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) counts() (connects, disconnects, requests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, f.requests
}

// clock advances one second on every read so successive events are
// strictly newer
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	account   *Account
	store     *cache.Store
	transport *fakeTransport
	clock     *clock
	key       testKey
}

var forcedSearch = relay.Relay{URL: "wss://search.example", Read: true, FeedTypes: []relay.FeedType{relay.FeedSearch}}

func newHarness(t *testing.T, writeable bool, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store:     cache.New(nil, nil),
		transport: &fakeTransport{},
		clock:     &clock{t: time.Unix(1_700_000_000, 0)},
		key:       newKey(t),
	}

	opts := Options{
		PubKey:       h.key.pk,
		Store:        h.store,
		Transport:    h.transport,
		Policy:       Policy{BatchWindow: 20 * time.Millisecond},
		ForcedSearch: forcedSearch,
		Now:          h.clock.Now,
	}
	if writeable {
		opts.Signer = keySigner{h.key}
	}
	for _, m := range mutate {
		m(&opts)
	}

	a, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	h.account = a
	return h
}

func (h *harness) note(t *testing.T, author testKey, content string) *cache.Note {
	t.Helper()
	ev := author.sign(t, event.NewTextNote(content, nil, nil), 1_600_000_000)
	h.store.Consume(ev, "wss://seen")
	return h.store.GetOrCreateNote(ev.ID)
}

func TestNewValidatesIdentity(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	store := cache.New(nil, nil)

	_, err := New(Options{PubKey: "nope", Store: store, Transport: &fakeTransport{}})
	assert.Error(t, err)

	_, err = New(Options{PubKey: key.pk, Signer: keySigner{other}, Store: store, Transport: &fakeTransport{}})
	assert.Error(t, err)

	_, err = New(Options{PubKey: key.pk, Transport: &fakeTransport{}})
	assert.Error(t, err)
}

func TestReadOnlyAccountNeverPublishes(t *testing.T) {
	h := newHarness(t, false)
	a := h.account
	bob := newKey(t)
	n := h.note(t, bob, "hello")

	a.Follow(bob.pk)
	a.FollowTag("nostr")
	a.ReactTo(n, "+")
	a.Boost(n)
	a.ReportNote(n, event.ReportSpam, "")
	a.ReportUser(bob.pk, event.ReportSpam, "")
	a.AddPublicBookmark(n)
	a.AddPrivateBookmark(n)
	a.SendPost("hi", nil, nil)
	a.SendNewRelayList(map[string]event.ReadWrite{"wss://a": {Read: true}})
	a.SendNewUserMetadata(`{"name":"x"}`, nil)
	a.SendPrivateMessage("psst", bob.pk, nil)
	a.SendCreateNewChannel("c", "", "")
	a.SendZapPaymentRequestFor("lnbc1")

	assert.False(t, a.IsWriteable())
	assert.Empty(t, h.transport.sentKinds())
	assert.Nil(t, a.UserProfile().LatestContactList())

	_, err := a.CreateZapRequestFor(n, 1000, "")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = a.PrivateBookmarks()
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMutationsWithinOneSecondBuildOnEachOther(t *testing.T) {
	frozen := time.Unix(1_700_000_000, 0)
	h := newHarness(t, true, func(o *Options) {
		o.Now = func() time.Time { return frozen }
	})
	a := h.account
	bob, carol, dave := newKey(t), newKey(t), newKey(t)

	a.Follow(bob.pk)
	a.Follow(carol.pk)
	assert.True(t, a.IsFollowing(bob.pk))
	assert.True(t, a.IsFollowing(carol.pk))

	a.Follow(dave.pk)
	last := h.transport.last().ev
	assert.Len(t, last.Tags.GetAll([]string{"p"}), 3)
	assert.Greater(t, last.CreatedAt, nostr.Timestamp(frozen.Unix()))

	first := h.note(t, bob, "first")
	second := h.note(t, bob, "second")
	a.AddPublicBookmark(first)
	a.AddPublicBookmark(second)
	assert.True(t, a.IsInPublicBookmarks(first))
	assert.True(t, a.IsInPublicBookmarks(second))
}

func TestFollowWithoutContactListSeedsDefaultRelays(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	bob := newKey(t)

	a.Unfollow(bob.pk)
	assert.Empty(t, h.transport.sentKinds())

	a.Follow(bob.pk)
	require.Equal(t, []int{int(event.KindContactList)}, h.transport.sentKinds())
	assert.True(t, a.IsFollowing(bob.pk))

	relays := a.UserProfile().ContactRelays()
	assert.ElementsMatch(t, relay.URLs(relay.Defaults(), nil), keys(relays))

	// following again changes nothing
	a.Follow(bob.pk)
	assert.Len(t, h.transport.sentKinds(), 1)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestFollowUnfollowUsersAndTags(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	bob := newKey(t)
	carol := newKey(t)

	a.Follow(bob.pk)
	a.Follow(carol.pk)
	a.FollowTag("#Nostr")
	a.FollowTag("nostr")

	assert.Len(t, a.FollowingKeySet(), 2)
	assert.Equal(t, map[string]struct{}{"Nostr": {}}, a.FollowingTagSet())

	relaysBefore := a.UserProfile().ContactRelays()
	a.Unfollow(bob.pk)
	a.UnfollowTag("NOSTR")

	assert.False(t, a.IsFollowing(bob.pk))
	assert.True(t, a.IsFollowing(carol.pk))
	assert.Empty(t, a.FollowingTagSet())
	assert.Equal(t, relaysBefore, a.UserProfile().ContactRelays())
	assert.Len(t, h.transport.sentKinds(), 5)
}

func TestReactOncePerSymbol(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	n := h.note(t, newKey(t), "hello")

	a.ReactTo(n, "")
	a.ReactTo(n, "+")
	a.ReactTo(n, "🤙")

	assert.Equal(t, []int{int(event.KindReaction), int(event.KindReaction)}, h.transport.sentKinds())
	assert.True(t, a.HasReacted(n, "+"))
	assert.True(t, a.HasReacted(n, "🤙"))
	assert.Equal(t, 1, n.ReactionCount("+"))
}

func TestBoostWindow(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	n := h.note(t, newKey(t), "boost me")
	t0 := time.Unix(1_700_000_000, 0)

	h.clock.Set(t0)
	a.Boost(n)
	require.Len(t, h.transport.sentKinds(), 1)

	h.clock.Set(t0.Add(200 * time.Second))
	a.Boost(n)
	assert.Len(t, h.transport.sentKinds(), 1)

	h.clock.Set(t0.Add(400 * time.Second))
	a.Boost(n)
	assert.Len(t, h.transport.sentKinds(), 2)
	assert.True(t, a.HasBoosted(n))
	assert.Len(t, n.BoostsBy(a.PubKey()), 2)
}

func TestReportThresholdCountsFollowedReportersOnly(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	target := newKey(t)
	u := h.store.GetOrCreateUser(target.pk)

	followed := make([]testKey, 5)
	for i := range followed {
		followed[i] = newKey(t)
		a.Follow(followed[i].pk)
	}

	for i := 0; i < 10; i++ {
		stranger := newKey(t)
		h.store.Consume(stranger.sign(t, event.NewUserReport(target.pk, event.ReportSpam, ""), 100), "")
	}
	assert.True(t, a.IsAcceptable(u))

	for i := 0; i < 4; i++ {
		h.store.Consume(followed[i].sign(t, event.NewUserReport(target.pk, event.ReportSpam, ""), 100), "")
	}
	assert.True(t, a.IsAcceptable(u))

	h.store.Consume(followed[4].sign(t, event.NewUserReport(target.pk, event.ReportSpam, ""), 100), "")
	assert.False(t, a.IsAcceptable(u))
}

func TestOwnReportHidesImmediately(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	bob := newKey(t)
	n := h.note(t, bob, "bad")

	require.True(t, a.IsAcceptableNote(n))
	a.ReportNote(n, event.ReportSpam, "spam")
	a.ReportNote(n, event.ReportSpam, "spam")

	assert.Equal(t, []int{int(event.KindReaction), int(event.KindReport)}, h.transport.sentKinds())
	assert.True(t, a.HasReacted(n, Warning))
	assert.False(t, a.IsAcceptableDirect(n))
	assert.False(t, a.IsAcceptableNote(n))
	assert.False(t, a.IsAcceptable(h.store.GetOrCreateUser(bob.pk)))

	// another type is a new report, the warning is not repeated
	a.ReportNote(n, event.ReportProfanity, "")
	assert.Equal(t, int(event.KindReport), h.transport.last().ev.Kind)
	assert.Len(t, h.transport.sentKinds(), 3)
}

func TestRepostOfReportedNote(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	alice := newKey(t)
	booster := newKey(t)

	original := alice.sign(t, event.NewTextNote("widely reported", nil, nil), 100)
	h.store.Consume(original, "")
	repost := booster.sign(t, event.NewRepost(original), 110)
	h.store.Consume(repost, "")
	boost := h.store.GetOrCreateNote(repost.ID)

	reporters := make([]testKey, 5)
	for i := range reporters {
		reporters[i] = newKey(t)
		a.Follow(reporters[i].pk)
	}
	require.True(t, a.IsAcceptableNote(boost))

	for i, r := range reporters {
		h.store.Consume(r.sign(t, nostr.Event{
			Kind: int(event.KindReport),
			Tags: nostr.Tags{{"e", original.ID, "spam"}},
		}, int64(200+i)), "")
	}

	assert.True(t, a.IsAcceptable(h.store.GetOrCreateUser(booster.pk)))
	assert.True(t, a.IsAcceptableDirect(boost))
	assert.False(t, a.IsAcceptableNote(boost))

	reports := a.GetRelevantReports(boost)
	assert.Len(t, reports, 5)
	assert.Equal(t, reporters[4].pk, reports[0].Author)
}

func TestGetRelevantReportsIgnoresStrangers(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	bob := newKey(t)
	friend := newKey(t)
	n := h.note(t, bob, "hm")

	a.Follow(friend.pk)
	h.store.Consume(newKey(t).sign(t, event.NewNoteReport(n.Ref(), event.ReportSpam, ""), 100), "")
	friendReport := friend.sign(t, event.NewNoteReport(n.Ref(), event.ReportNudity, ""), 101)
	h.store.Consume(friendReport, "")
	a.ReportUser(bob.pk, event.ReportImpersonation, "")

	reports := a.GetRelevantReports(n)
	require.Len(t, reports, 2)
	ids := []string{reports[0].ID, reports[1].ID}
	assert.Contains(t, ids, friendReport.ID)
}

func TestBookmarkRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	author := newKey(t)
	n1 := h.note(t, author, "one")
	n2 := h.note(t, author, "two")
	n3 := h.note(t, author, "three")

	a.AddPublicBookmark(n1)
	a.AddPrivateBookmark(n2)

	public := a.PublicBookmarks()
	private, err := a.PrivateBookmarks()
	require.NoError(t, err)
	assert.Equal(t, []string{n1.Key()}, public.Events)
	assert.Equal(t, []string{n2.Key()}, private.Events)

	a.AddPrivateBookmark(n3)
	assert.True(t, a.IsInPrivateBookmarks(n3))
	assert.False(t, a.IsInPublicBookmarks(n3))
	a.RemovePrivateBookmark(n3)

	a.AddPublicBookmark(n3)
	assert.True(t, a.IsInPublicBookmarks(n3))
	a.RemovePublicBookmark(n3)

	afterPrivate, err := a.PrivateBookmarks()
	require.NoError(t, err)
	assert.Equal(t, public, a.PublicBookmarks())
	assert.Equal(t, private, afterPrivate)

	// the private side never leaks into tags
	latest := a.UserProfile().LatestBookmarkList()
	for _, tag := range latest.Tags {
		assert.NotEqual(t, n2.Key(), tag.Value())
	}
}

func TestBookmarkAddressableNote(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	author := newKey(t)

	article := author.sign(t, nostr.Event{
		Kind:    int(event.KindLongTextNote),
		Tags:    nostr.Tags{{"d", "essay"}},
		Content: "long",
	}, 100)
	h.store.Consume(article, "")
	addr, _ := event.AddressOf(article)
	n := h.store.GetOrCreateAddressableNote(addr)

	a.AddPublicBookmark(n)
	assert.Equal(t, []string{addr.String()}, a.PublicBookmarks().Addresses)
	assert.True(t, a.IsInPublicBookmarks(n))
}

func TestDeleteOnlyOwnNotes(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	other := h.note(t, newKey(t), "not mine")

	a.Delete(other)
	assert.Empty(t, h.transport.sentKinds())

	mine := a.SendPost("mine", nil, nil)
	require.NotNil(t, mine)
	a.Delete(other, h.store.GetOrCreateNote(mine.ID))

	last := h.transport.last().ev
	assert.Equal(t, int(event.KindDeletion), last.Kind)
	assert.Len(t, last.Tags, 1)
	assert.True(t, h.store.GetOrCreateNote(mine.ID).IsDeleted())
	assert.False(t, other.IsDeleted())
}

func TestRelayListWithoutFollowsStaysLocal(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	relays := map[string]event.ReadWrite{"wss://a": {Read: true, Write: true}}

	a.SendNewRelayList(relays)
	assert.Empty(t, h.transport.sentKinds())
	assert.Equal(t, relays, a.UserProfile().ContactRelays())

	a.Follow(newKey(t).pk)
	a.SendNewRelayList(map[string]event.ReadWrite{"wss://b": {Read: true}})
	assert.Len(t, h.transport.sentKinds(), 2)
	assert.Len(t, a.FollowingKeySet(), 1)
}

func TestActiveRelays(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	assert.Nil(t, a.ActiveRelays())
	assert.Equal(t, a.LocalRelays(), a.DesiredRelays())

	a.SaveRelayList([]relay.Relay{
		{URL: "wss://a", Read: true, Write: true, FeedTypes: []relay.FeedType{relay.FeedFollows}},
	})
	active := a.ActiveRelays()
	require.Len(t, active, 2)
	assert.Equal(t, "wss://a", active[0].URL)
	assert.Equal(t, []relay.FeedType{relay.FeedFollows}, active[0].FeedTypes)
	assert.Equal(t, forcedSearch, active[1])

	// a contact list relay unknown locally serves every feed, search included
	a.SendNewRelayList(map[string]event.ReadWrite{"wss://z": {Read: true}})
	active = a.ActiveRelays()
	require.Len(t, active, 1)
	assert.True(t, active[0].Has(relay.FeedSearch))
}

func TestReconnectOnlyWhenRelaysChange(t *testing.T) {
	h := newHarness(t, true)
	a := h.account

	a.ReconnectIfRelaysHaveChanged()
	connects, disconnects, requests := h.transport.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, 1, requests)

	a.ReconnectIfRelaysHaveChanged()
	connects, _, _ = h.transport.counts()
	assert.Equal(t, 1, connects)

	a.SaveRelayList([]relay.Relay{{URL: "wss://new", Read: true, Write: true, FeedTypes: []relay.FeedType{relay.FeedFollows}}})
	require.Eventually(t, func() bool {
		c, _, _ := h.transport.counts()
		return c == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	connects, _, requests = h.transport.counts()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 2, requests)
}

type fakeSpam struct{ ch chan []antispam.Spammer }

func (f *fakeSpam) Subscribe() (<-chan []antispam.Spammer, func()) {
	return f.ch, func() {}
}

func TestSpammersHiddenForSession(t *testing.T) {
	spam := &fakeSpam{ch: make(chan []antispam.Spammer, 1)}
	t.Cleanup(func() { close(spam.ch) })
	h := newHarness(t, true, func(o *Options) { o.Spam = spam })
	a := h.account

	friend := newKey(t)
	stranger := newKey(t)
	a.Follow(friend.pk)
	a.Start()

	spam.ch <- []antispam.Spammer{
		{PubKey: stranger.pk, Duplicates: 5},
		{PubKey: friend.pk, Duplicates: 9},
		{PubKey: a.PubKey(), Duplicates: 6},
	}

	require.Eventually(t, func() bool { return a.IsHidden(stranger.pk) }, time.Second, 5*time.Millisecond)
	assert.False(t, a.IsHidden(friend.pk))
	assert.False(t, a.IsHidden(a.PubKey()))
	assert.NotContains(t, a.Settings().HiddenUsers, stranger.pk)
	assert.False(t, a.IsAcceptable(h.store.GetOrCreateUser(stranger.pk)))

	a.ShowUser(stranger.pk)
	assert.False(t, a.IsHidden(stranger.pk))
}

func TestBackupContactList(t *testing.T) {
	key := newKey(t)
	bob := newKey(t)
	carol := newKey(t)
	backup := key.sign(t, event.NewContactList([]event.Contact{{PubKey: bob.pk}}, nil, nil), 100)

	h := newHarness(t, true, func(o *Options) {
		o.PubKey = key.pk
		o.Signer = keySigner{key}
		o.Settings = Settings{BackupContactList: backup}
	})
	a := h.account
	a.Start()

	assert.True(t, a.IsFollowing(bob.pk))

	a.Follow(carol.pk)
	latest := a.UserProfile().LatestContactList()
	require.NotNil(t, latest)
	assert.Equal(t, latest.ID, a.Settings().BackupContactList.ID)
}

func TestSettingsChangesAreSaveable(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	ch, unsubscribe := a.SubscribeSaveable()
	defer unsubscribe()

	a.HideUser("abc")
	a.JoinChannel("chan")
	a.ChangeZapAmounts([]int64{21})

	select {
	case s := <-ch:
		assert.Equal(t, []string{"abc"}, s.HiddenUsers)
		assert.Equal(t, []string{"chan"}, s.FollowingChannels)
		assert.Equal(t, []int64{21}, s.ZapAmountChoices)
	case <-time.After(time.Second):
		t.Fatal("settings were not saved")
	}
}

func TestLanguagePreferences(t *testing.T) {
	h := newHarness(t, false)
	a := h.account
	ch, unsubscribe := a.SubscribeLanguages()
	defer unsubscribe()

	a.AddDontTranslateFrom("pt")
	a.UpdateTranslateTo("de")
	a.Prefer("pt", "de", "pt")

	assert.Equal(t, "pt", a.PreferenceBetween("pt", "de"))
	assert.Equal(t, "", a.PreferenceBetween("de", "pt"))

	select {
	case s := <-ch:
		assert.Contains(t, s.Settings.DontTranslateFrom, "pt")
		assert.Equal(t, "de", s.Settings.TranslateTo)
	case <-time.After(time.Second):
		t.Fatal("no language notification")
	}
}

func TestPrivateMessages(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	bob := newKey(t)

	assert.Nil(t, a.SendPrivateMessage("hi", bob.pk, nil))

	h.store.GetOrCreateUser(bob.pk)
	ev := a.SendPrivateMessage("hi bob", bob.pk, nil)
	require.NotNil(t, ev)
	assert.NotEqual(t, "hi bob", ev.Content)

	n := h.store.GetOrCreateNote(ev.ID)
	text, err := a.DecryptContent(n)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", text)

	bobAccount, err := New(Options{PubKey: bob.pk, Signer: keySigner{bob}, Store: h.store, Transport: &fakeTransport{}})
	require.NoError(t, err)
	defer bobAccount.Stop()
	text, err = bobAccount.DecryptContent(n)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", text)

	readOnly, err := New(Options{PubKey: bob.pk, Store: h.store, Transport: &fakeTransport{}})
	require.NoError(t, err)
	defer readOnly.Stop()
	_, err = readOnly.DecryptContent(n)
	assert.ErrorIs(t, err, ErrUndecryptable)

	plain := h.note(t, bob, "clear text")
	text, err = readOnly.DecryptContent(plain)
	require.NoError(t, err)
	assert.Equal(t, "clear text", text)
}

func TestChannels(t *testing.T) {
	h := newHarness(t, true)
	a := h.account

	create := a.SendCreateNewChannel("quartz", "dev chat", "")
	require.NotNil(t, create)
	assert.Contains(t, a.Settings().FollowingChannels, create.ID)

	a.SendChangeChannel("quartz dev", "dev chat", "", create.ID)
	ch := h.store.GetOrCreateChannel(create.ID)
	assert.Equal(t, "quartz dev", ch.Info().Name)

	a.SendChannelMessage("hello channel", create.ID, nil, nil)
	assert.Equal(t, 1, ch.MessageCount())

	a.LeaveChannel(create.ID)
	assert.Empty(t, a.FollowingChannels())
}

func TestZapRequestsAndWalletPayments(t *testing.T) {
	h := newHarness(t, true)
	a := h.account
	n := h.note(t, newKey(t), "zap me")

	req, err := a.CreateZapRequestFor(n, 21000, "nice")
	require.NoError(t, err)
	assert.Equal(t, int(event.KindZapRequest), req.Kind)
	assert.Empty(t, h.transport.sentKinds())
	_, stored := h.store.Note(req.ID)
	assert.False(t, stored)

	assert.False(t, a.HasWalletConnectSetup())
	a.SendZapPaymentRequestFor("lnbc210n1p")
	assert.Empty(t, h.transport.sentKinds())

	wallet := newKey(t)
	a.ChangeZapPaymentRequest(&WalletConnect{PubKey: wallet.pk, RelayURL: "wss://wallet.example"})
	require.True(t, a.HasWalletConnectSetup())
	a.SendZapPaymentRequestFor("lnbc210n1p")

	last := h.transport.last()
	assert.Equal(t, int(event.KindZapPaymentRequest), last.ev.Kind)
	assert.Equal(t, []string{"wss://wallet.example"}, last.relays)
	_, stored = h.store.Note(last.ev.ID)
	assert.False(t, stored)

	plaintext, err := keySigner{wallet}.Decrypt(last.ev.Content, a.PubKey())
	require.NoError(t, err)
	assert.Contains(t, plaintext, "pay_invoice")
}

func TestBroadcastResendsAsIs(t *testing.T) {
	h := newHarness(t, false)
	n := h.note(t, newKey(t), "spread the word")

	h.account.Broadcast(n)
	assert.Equal(t, n.Event(), h.transport.last().ev)
}
