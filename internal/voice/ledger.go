package voice

import (
	"context"

	"voicestats/internal/cache"
)

// Mic ledger states.
const (
	MicStateOn  = "on"
	MicStateOff = "off"
)

// Ledger holds the per-day duration counters awaiting flush. Entries are
// increment-only until the flush drains and deletes them.
type Ledger struct {
	cache *cache.Client
}

// NewLedger creates a cache-backed duration ledger.
func NewLedger(c *cache.Client) *Ledger {
	return &Ledger{cache: c}
}

// AddChannelSeconds credits seconds spent in a channel on a given day.
func (l *Ledger) AddChannelSeconds(ctx context.Context, guildID, userID, day, channelID string, seconds int64) error {
	_, err := l.cache.IncrBy(ctx, channelDurationKey(guildID, userID, day, channelID), seconds)
	return err
}

// AddMicSeconds credits seconds spent with the mic in the given state.
func (l *Ledger) AddMicSeconds(ctx context.Context, guildID, userID, day, state string, seconds int64) error {
	_, err := l.cache.IncrBy(ctx, micDurationKey(guildID, userID, day, state), seconds)
	return err
}

// AddAloneSeconds credits seconds spent alone in a channel.
func (l *Ledger) AddAloneSeconds(ctx context.Context, guildID, userID, day string, seconds int64) error {
	_, err := l.cache.IncrBy(ctx, aloneDurationKey(guildID, userID, day), seconds)
	return err
}

// ChannelKeys enumerates the channel duration keys for one user and day.
func (l *Ledger) ChannelKeys(ctx context.Context, guildID, userID, day string) ([]string, error) {
	return l.cache.ScanKeys(ctx, channelDurationPattern(guildID, userID, day))
}

// MicKey returns the ledger key for a mic state.
func (l *Ledger) MicKey(guildID, userID, day, state string) string {
	return micDurationKey(guildID, userID, day, state)
}

// AloneKey returns the ledger key for the alone counter.
func (l *Ledger) AloneKey(guildID, userID, day string) string {
	return aloneDurationKey(guildID, userID, day)
}

// Value reads the current counter at key; missing keys read as 0.
func (l *Ledger) Value(ctx context.Context, key string) (int64, error) {
	return l.cache.GetInt(ctx, key)
}

// Clear deletes a drained ledger key. Called only after the durable upsert
// for that key has succeeded.
func (l *Ledger) Clear(ctx context.Context, key string) error {
	return l.cache.Del(ctx, key)
}

// Owner identifies a (guild, user) pair with live ledger entries.
type Owner struct {
	GuildID string
	UserID  string
}

// Owners returns the distinct (guild, user) pairs that have any ledger
// entry for the given day.
func (l *Ledger) Owners(ctx context.Context, day string) ([]Owner, error) {
	keys, err := l.cache.ScanKeys(ctx, durationPrefix+"*")
	if err != nil {
		return nil, err
	}

	seen := make(map[Owner]bool)
	var owners []Owner
	for _, key := range keys {
		guildID, userID, keyDay, ok := parseDurationKey(key)
		if !ok || keyDay != day {
			continue
		}
		owner := Owner{GuildID: guildID, UserID: userID}
		if !seen[owner] {
			seen[owner] = true
			owners = append(owners, owner)
		}
	}
	return owners, nil
}
