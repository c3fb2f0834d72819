package discord

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const nameTTL = 5 * time.Minute

// nameCache remembers looked-up display names for nameTTL. Failed lookups
// are not cached.
type nameCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]cachedName
}

type cachedName struct {
	name    string
	expires time.Time
}

func newNameCache() *nameCache {
	return &nameCache{now: time.Now, entries: make(map[string]cachedName)}
}

func (c *nameCache) get(id string, fetch func(string) (string, bool)) string {
	c.mu.Lock()
	e, hit := c.entries[id]
	c.mu.Unlock()
	if hit && c.now().Before(e.expires) {
		return e.name
	}
	name, ok := fetch(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		delete(c.entries, id)
		return ""
	}
	c.entries[id] = cachedName{name: name, expires: c.now().Add(nameTTL)}
	return name
}

// Resolver turns Discord ids into display names for logs. A nil Resolver,
// or one without a session, resolves nothing.
type Resolver struct {
	s        *discordgo.Session
	users    *nameCache
	guilds   *nameCache
	channels *nameCache
}

func NewResolver(s *discordgo.Session) *Resolver {
	return &Resolver{s: s, users: newNameCache(), guilds: newNameCache(), channels: newNameCache()}
}

func (r *Resolver) usable(id string) bool {
	return r != nil && r.s != nil && id != ""
}

func (r *Resolver) UserName(userID string) string {
	if !r.usable(userID) {
		return ""
	}
	return r.users.get(userID, func(id string) (string, bool) {
		u, err := r.s.User(id)
		if err != nil || u == nil {
			return "", false
		}
		return u.Username, true
	})
}

// GuildName prefers the gateway state cache over a REST call.
func (r *Resolver) GuildName(guildID string) string {
	if !r.usable(guildID) {
		return ""
	}
	return r.guilds.get(guildID, func(id string) (string, bool) {
		if r.s.State != nil {
			if g, err := r.s.State.Guild(id); err == nil && g != nil {
				return g.Name, true
			}
		}
		g, err := r.s.Guild(id)
		if err != nil || g == nil {
			return "", false
		}
		return g.Name, true
	})
}

// ChannelName prefers the gateway state cache over a REST call.
func (r *Resolver) ChannelName(channelID string) string {
	if !r.usable(channelID) {
		return ""
	}
	return r.channels.get(channelID, func(id string) (string, bool) {
		if r.s.State != nil {
			if ch, err := r.s.State.Channel(id); err == nil && ch != nil {
				return ch.Name, true
			}
		}
		ch, err := r.s.Channel(id)
		if err != nil || ch == nil {
			return "", false
		}
		return ch.Name, true
	})
}
