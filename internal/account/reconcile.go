package account

import (
	"maps"
	"slices"

	"github.com/sandwichfarm/quartz/internal/relay"
)

// LocalRelays returns the locally configured relay set
func (a *Account) LocalRelays() []relay.Relay {
	return relay.FromConfig(a.Settings().LocalRelays)
}

// ActiveRelays derives the relay set from the relay map of the account's
// contact list, taking feed types from the matching local relay (all feed
// types otherwise). When no relay serves search, the forced search relay is
// appended. It returns nil while the account has no contact list relays.
func (a *Account) ActiveRelays() []relay.Relay {
	relays := a.UserProfile().ContactRelays()
	if relays == nil {
		return nil
	}

	local := make(map[string]relay.Relay)
	for _, r := range a.LocalRelays() {
		local[relay.NormalizeURL(r.URL)] = r
	}

	out := make([]relay.Relay, 0, len(relays)+1)
	for _, url := range slices.Sorted(maps.Keys(relays)) {
		rw := relays[url]
		feeds := slices.Clone(relay.AllFeedTypes)
		if l, ok := local[relay.NormalizeURL(url)]; ok {
			feeds = slices.Clone(l.FeedTypes)
		}
		out = append(out, relay.Relay{URL: relay.NormalizeURL(url), Read: rw.Read, Write: rw.Write, FeedTypes: feeds})
	}

	hasSearch := slices.ContainsFunc(out, func(r relay.Relay) bool { return r.Has(relay.FeedSearch) })
	if !hasSearch && a.forced.URL != "" {
		out = append(out, a.forced)
	}
	return out
}

// DesiredRelays is the relay set the transport should be connected to
func (a *Account) DesiredRelays() []relay.Relay {
	if active := a.ActiveRelays(); active != nil {
		return active
	}
	return a.LocalRelays()
}

// ReconnectIfRelaysHaveChanged reconnects the transport when the desired
// relay set differs structurally from the connected one, then re-issues
// every subscription. An unchanged set is left alone.
func (a *Account) ReconnectIfRelaysHaveChanged() {
	a.reconnectMu.Lock()
	defer a.reconnectMu.Unlock()

	desired := a.DesiredRelays()
	if a.transport.IsSameRelaySetConfig(desired) {
		return
	}

	a.logger.LogReconnect(relay.URLs(desired, nil))
	a.transport.Disconnect()
	a.transport.Connect(desired)
	a.transport.RequestAndWatch()
}
