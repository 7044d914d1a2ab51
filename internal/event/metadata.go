package event

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

// Profile is the parsed content of a metadata event
type Profile struct {
	Name        string
	DisplayName string
	About       string
	Picture     string
	Banner      string
	Website     string
	NIP05       string
	LUD06       string
	LUD16       string
}

// BestName returns the display name, falling back to name
func (p Profile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// ParseProfile reads metadata content. Invalid JSON yields an empty profile.
func ParseProfile(content string) Profile {
	if !gjson.Valid(content) {
		return Profile{}
	}

	r := gjson.GetMany(content,
		"name", "display_name", "displayName", "about", "picture",
		"banner", "website", "nip05", "lud06", "lud16")

	p := Profile{
		Name:        r[0].String(),
		DisplayName: r[1].String(),
		About:       r[3].String(),
		Picture:     r[4].String(),
		Banner:      r[5].String(),
		Website:     r[6].String(),
		NIP05:       r[7].String(),
		LUD06:       r[8].String(),
		LUD16:       r[9].String(),
	}
	if p.DisplayName == "" {
		p.DisplayName = r[2].String()
	}
	return p
}

// IdentityClaim is a NIP-39 external identity ("i" tag)
type IdentityClaim struct {
	Platform string
	Identity string
	Proof    string
}

// NewMetadata builds an unsigned metadata event from raw profile JSON
func NewMetadata(content string, claims []IdentityClaim) nostr.Event {
	tags := make(nostr.Tags, 0, len(claims))
	for _, c := range claims {
		tags = append(tags, nostr.Tag{"i", c.Platform + ":" + c.Identity, c.Proof})
	}
	return nostr.Event{
		Kind:      int(KindMetadata),
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   content,
	}
}

// ChannelInfo is the descriptive content of a channel
type ChannelInfo struct {
	Name    string `json:"name"`
	About   string `json:"about"`
	Picture string `json:"picture"`
}

// ParseChannelInfo reads channel create/metadata content
func ParseChannelInfo(content string) ChannelInfo {
	if !gjson.Valid(content) {
		return ChannelInfo{}
	}
	r := gjson.GetMany(content, "name", "about", "picture")
	return ChannelInfo{Name: r[0].String(), About: r[1].String(), Picture: r[2].String()}
}

func (ci ChannelInfo) json() string {
	data, err := json.Marshal(ci)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// NewChannelCreate builds an unsigned channel creation event
func NewChannelCreate(info ChannelInfo) nostr.Event {
	return nostr.Event{
		Kind:      int(KindChannelCreate),
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
		Content:   info.json(),
	}
}

// NewChannelMetadata builds an unsigned channel info update
func NewChannelMetadata(channelID string, info ChannelInfo) nostr.Event {
	return nostr.Event{
		Kind:      int(KindChannelMetadata),
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"e", channelID, ""}},
		Content:   info.json(),
	}
}
