package voice

import (
	"context"
	"time"

	"voicestats/internal/cache"
)

// sessionTTL bounds how long an orphaned session can survive a missed leave
// event (bot restart, gateway disconnect). Expiry drops the open tail
// interval uncredited, which is the accepted loss bound.
const sessionTTL = 12 * time.Hour

// Session is the live voice state for one (guild, user). The interval
// [LastAccrualAt, now) has not yet been credited to any counter.
type Session struct {
	ChannelID     string    `json:"channelId"`
	JoinedAt      time.Time `json:"joinedAt"`
	LastAccrualAt time.Time `json:"lastAccrualAt"`
	MicOn         bool      `json:"micOn"`
	Alone         bool      `json:"alone"`
	Day           string    `json:"day"`
}

// SessionStore keeps the current session per (guild, user) in the cache.
type SessionStore struct {
	cache *cache.Client
}

// NewSessionStore creates a cache-backed session store.
func NewSessionStore(c *cache.Client) *SessionStore {
	return &SessionStore{cache: c}
}

// Get returns the live session for a user, or nil if none is tracked.
func (s *SessionStore) Get(ctx context.Context, guildID, userID string) (*Session, error) {
	var sess Session
	found, err := s.cache.GetJSON(ctx, sessionKey(guildID, userID), &sess)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

// Put stores the session with the safety-net TTL.
func (s *SessionStore) Put(ctx context.Context, guildID, userID string, sess *Session) error {
	return s.cache.SetJSON(ctx, sessionKey(guildID, userID), sess, sessionTTL)
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, guildID, userID string) error {
	return s.cache.Del(ctx, sessionKey(guildID, userID))
}
