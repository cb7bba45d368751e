package voice

import (
	"context"
	"time"

	"voicestats/internal/cache"
)

// UnknownName is the placeholder label when a display name was never cached
// or has expired. Name resolution is best-effort and never blocks accrual.
const UnknownName = "UNKNOWN"

const nameTTL = 7 * 24 * time.Hour

// NameCache keeps last-known display labels for channels and users so the
// flush can stamp them onto aggregate rows without a gateway round trip.
type NameCache struct {
	cache *cache.Client
}

// NewNameCache creates a cache-backed name cache.
func NewNameCache(c *cache.Client) *NameCache {
	return &NameCache{cache: c}
}

// SetChannelName caches a channel's display name.
func (n *NameCache) SetChannelName(ctx context.Context, guildID, channelID, name string) error {
	if name == "" {
		return nil
	}
	return n.cache.Set(ctx, channelNameKey(guildID, channelID), name, nameTTL)
}

// ChannelName returns the cached channel name or UnknownName.
func (n *NameCache) ChannelName(ctx context.Context, guildID, channelID string) string {
	name, err := n.cache.Get(ctx, channelNameKey(guildID, channelID))
	if err != nil || name == "" {
		return UnknownName
	}
	return name
}

// SetUserName caches a user's display name.
func (n *NameCache) SetUserName(ctx context.Context, guildID, userID, name string) error {
	if name == "" {
		return nil
	}
	return n.cache.Set(ctx, userNameKey(guildID, userID), name, nameTTL)
}

// UserName returns the cached user name or UnknownName.
func (n *NameCache) UserName(ctx context.Context, guildID, userID string) string {
	name, err := n.cache.Get(ctx, userNameKey(guildID, userID))
	if err != nil || name == "" {
		return UnknownName
	}
	return name
}

// ClearGuild invalidates all cached names for a guild.
func (n *NameCache) ClearGuild(ctx context.Context, guildID string) error {
	for _, pattern := range []string{
		channelNameKey(guildID, "*"),
		userNameKey(guildID, "*"),
	} {
		keys, err := n.cache.ScanKeys(ctx, pattern)
		if err != nil {
			return err
		}
		if err := n.cache.Del(ctx, keys...); err != nil {
			return err
		}
	}
	return nil
}
