package event

import (
	"encoding/json"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

// Contact is one followed user in a contact list
type Contact struct {
	PubKey   string
	RelayURL string
}

// ReadWrite is the per-relay direction stored in contact list content
type ReadWrite struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

func parseContactList(ev *nostr.Event) *ContactList {
	cl := &ContactList{
		Follows: make([]Contact, 0),
		Tags:    tagValues(ev, "t"),
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "p" || !nostr.IsValid32ByteHex(tag[1]) {
			continue
		}
		c := Contact{PubKey: tag[1]}
		if len(tag) >= 3 {
			c.RelayURL = tag[2]
		}
		cl.Follows = append(cl.Follows, c)
	}

	cl.Relays = ParseRelayMap(ev.Content)
	return cl
}

// ParseRelayMap reads the {"wss://...": {"read": true, "write": true}} content
// of a contact list. Returns nil when the content carries no relay map.
func ParseRelayMap(content string) map[string]ReadWrite {
	content = strings.TrimSpace(content)
	if content == "" || !gjson.Valid(content) {
		return nil
	}

	parsed := gjson.Parse(content)
	if !parsed.IsObject() {
		return nil
	}

	relays := make(map[string]ReadWrite)
	parsed.ForEach(func(key, value gjson.Result) bool {
		url := strings.TrimSpace(key.String())
		if url == "" {
			return true
		}
		relays[url] = ReadWrite{
			Read:  value.Get("read").Bool(),
			Write: value.Get("write").Bool(),
		}
		return true
	})

	if len(relays) == 0 {
		return nil
	}
	return relays
}

// FollowKeys returns the followed pubkeys as a set
func (cl *ContactList) FollowKeys() map[string]struct{} {
	set := make(map[string]struct{}, len(cl.Follows))
	for _, c := range cl.Follows {
		set[c.PubKey] = struct{}{}
	}
	return set
}

// FollowTags returns the followed hashtags as a set
func (cl *ContactList) FollowTags() map[string]struct{} {
	set := make(map[string]struct{}, len(cl.Tags))
	for _, t := range cl.Tags {
		set[t] = struct{}{}
	}
	return set
}

// NewContactList builds an unsigned contact list
func NewContactList(follows []Contact, tags []string, relays map[string]ReadWrite) nostr.Event {
	evTags := make(nostr.Tags, 0, len(follows)+len(tags))
	for _, c := range follows {
		if c.RelayURL != "" {
			evTags = append(evTags, nostr.Tag{"p", c.PubKey, c.RelayURL})
		} else {
			evTags = append(evTags, nostr.Tag{"p", c.PubKey})
		}
	}
	for _, t := range tags {
		evTags = append(evTags, nostr.Tag{"t", t})
	}

	content := ""
	if relays != nil {
		// encoding/json sorts map keys, so equal maps give equal content
		if data, err := json.Marshal(relays); err == nil {
			content = string(data)
		}
	}

	return nostr.Event{
		Kind:      int(KindContactList),
		CreatedAt: nostr.Now(),
		Tags:      evTags,
		Content:   content,
	}
}
