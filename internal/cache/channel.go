package cache

import (
	"maps"
	"slices"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/quartz/internal/event"
)

// Channel is a public chat channel keyed by its creation event id
type Channel struct {
	id string

	mu            sync.RWMutex
	creator       string
	createdAt     nostr.Timestamp
	info          event.ChannelInfo
	infoUpdatedAt nostr.Timestamp
	messages      map[string]struct{}

	// newest metadata per author, held until the creator is known
	pendingInfo map[string]pendingInfo
}

type pendingInfo struct {
	info event.ChannelInfo
	at   nostr.Timestamp
}

func newChannel(id string) *Channel {
	return &Channel{id: id, messages: make(map[string]struct{})}
}

// ID returns the channel creation event id
func (c *Channel) ID() string { return c.id }

// Info returns the newest channel info
func (c *Channel) Info() event.ChannelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Creator returns the creator pubkey, or "" if the creation event is unseen
func (c *Channel) Creator() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creator
}

// UpdatedAt returns the time of the newest info
func (c *Channel) UpdatedAt() nostr.Timestamp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.infoUpdatedAt
}

// MessageKeys returns the keys of the channel's messages
func (c *Channel) MessageKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.messages))
}

// MessageCount returns the number of messages
func (c *Channel) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func (c *Channel) create(creator string, info event.ChannelInfo, at nostr.Timestamp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creator != "" {
		return false
	}
	c.creator = creator
	c.createdAt = at
	c.info = info
	c.infoUpdatedAt = at
	if p, ok := c.pendingInfo[creator]; ok && p.at > at {
		c.info = p.info
		c.infoUpdatedAt = p.at
	}
	c.pendingInfo = nil
	return true
}

// updateInfo applies channel metadata from the creator that is strictly
// newer than the current info. Metadata seen before the creation event is
// held per author and settled by create.
func (c *Channel) updateInfo(author string, info event.ChannelInfo, at nostr.Timestamp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creator == "" {
		if p, ok := c.pendingInfo[author]; !ok || at > p.at {
			if c.pendingInfo == nil {
				c.pendingInfo = make(map[string]pendingInfo)
			}
			c.pendingInfo[author] = pendingInfo{info: info, at: at}
		}
		return false
	}
	if c.creator != author || at <= c.infoUpdatedAt {
		return false
	}
	c.info = info
	c.infoUpdatedAt = at
	return true
}

func (c *Channel) addMessage(key string) {
	c.mu.Lock()
	c.messages[key] = struct{}{}
	c.mu.Unlock()
}

func (c *Channel) removeMessage(key string) {
	c.mu.Lock()
	delete(c.messages, key)
	c.mu.Unlock()
}
