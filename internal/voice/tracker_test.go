package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 12:00 KST on a fixed day, well clear of midnight.
var baseTime = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)

func atSeconds(offset int64) time.Time {
	return baseTime.Add(time.Duration(offset) * time.Second)
}

func (e *engine) setNow(t time.Time) {
	e.tracker.now = func() time.Time { return t }
	e.flusher.now = func() time.Time { return t }
}

func TestJoinCreatesSessionWithoutCrediting(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.setNow(atSeconds(0))

	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: true, Alone: true,
	}))

	sess, err := e.sessions.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "c1", sess.ChannelID)
	assert.True(t, sess.MicOn)
	assert.True(t, sess.Alone)
	assert.Equal(t, "20260314", sess.Day)
	assert.WithinDuration(t, atSeconds(0), sess.LastAccrualAt, 0)

	keys, err := e.ledger.ChannelKeys(ctx, "g1", "u1", sess.Day)
	require.NoError(t, err)
	assert.Empty(t, keys, "join must not credit any interval")
}

func TestJoinMicToggleLeaveScenario(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	day := "20260314"

	e.setNow(atSeconds(0))
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: true, Alone: true,
	}))

	e.setNow(atSeconds(10))
	require.NoError(t, e.tracker.HandleMicToggle(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: false, Alone: false,
	}))

	e.setNow(atSeconds(40))
	require.NoError(t, e.tracker.HandleLeave(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1",
	}))

	// Leave flushes, so the totals land in the durable store.
	assert.Equal(t, int64(40), e.store.channelSec["g1|u1|"+day+"|c1"])
	assert.Equal(t, int64(10), e.store.micOnSec["g1|u1|"+day])
	assert.Equal(t, int64(30), e.store.micOffSec["g1|u1|"+day])
	assert.Equal(t, int64(10), e.store.aloneSec["g1|u1|"+day], "alone only held during [0,10)")

	sess, err := e.sessions.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Nil(t, sess, "session is deleted on leave")
}

func TestChannelTotalsEqualSessionSpan(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	day := "20260314"

	e.setNow(atSeconds(0))
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "a", MicOn: true,
	}))

	e.setNow(atSeconds(25))
	require.NoError(t, e.tracker.HandleMove(ctx, "a", StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "b", MicOn: false,
	}))

	e.setNow(atSeconds(70))
	require.NoError(t, e.tracker.HandleMove(ctx, "b", StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c", MicOn: true,
	}))

	e.setNow(atSeconds(100))
	require.NoError(t, e.tracker.HandleLeave(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1",
	}))

	var channelTotal int64
	for _, ch := range []string{"a", "b", "c"} {
		channelTotal += e.store.channelSec["g1|u1|"+day+"|"+ch]
	}
	assert.Equal(t, int64(100), channelTotal, "channel totals cover the whole span")

	micTotal := e.store.micOnSec["g1|u1|"+day] + e.store.micOffSec["g1|u1|"+day]
	assert.Equal(t, int64(100), micTotal, "mic on+off covers the whole span")
}

func TestMoveCreditsPreviousChannelOnly(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	day := "20260314"

	e.setNow(atSeconds(0))
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "a", MicOn: true,
	}))

	e.setNow(atSeconds(30))
	require.NoError(t, e.tracker.HandleMove(ctx, "a", StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "b", MicOn: true,
	}))

	aSec, err := e.ledger.Value(ctx, e.cacheKeyChannel("g1", "u1", day, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), aSec)

	bSec, err := e.ledger.Value(ctx, e.cacheKeyChannel("g1", "u1", day, "b"))
	require.NoError(t, err)
	assert.Zero(t, bSec, "destination channel gains nothing until the next accrual")

	sess, err := e.sessions.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "b", sess.ChannelID)
	assert.WithinDuration(t, atSeconds(30), sess.LastAccrualAt, 0)
}

func (e *engine) cacheKeyChannel(guildID, userID, day, channelID string) string {
	return channelDurationKey(guildID, userID, day, channelID)
}

func TestLeaveWithoutSessionIsNoOp(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.setNow(atSeconds(0))

	require.NoError(t, e.tracker.HandleLeave(ctx, StateUpdate{
		GuildID: "g1", UserID: "ghost",
	}))

	assert.Zero(t, e.store.calls, "no durable writes")
	keys, err := e.cache.ScanKeys(ctx, "voice:duration:*")
	require.NoError(t, err)
	assert.Empty(t, keys, "no ledger mutation")
}

func TestMicToggleWithoutSessionIsNoOp(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.setNow(atSeconds(0))

	require.NoError(t, e.tracker.HandleMicToggle(ctx, StateUpdate{
		GuildID: "g1", UserID: "ghost", ChannelID: "c1", MicOn: false,
	}))

	sess, err := e.sessions.Get(ctx, "g1", "ghost")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestDuplicateEventCreditsNothing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	day := "20260314"

	e.setNow(atSeconds(0))
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: true,
	}))

	// Same timestamp redelivered: zero elapsed, no credit, state still updates.
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: false,
	}))

	sec, err := e.ledger.Value(ctx, e.cacheKeyChannel("g1", "u1", day, "c1"))
	require.NoError(t, err)
	assert.Zero(t, sec)

	sess, err := e.sessions.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.False(t, sess.MicOn, "state update still applies")
}

func TestClockSkewNeverCreditsNegative(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	day := "20260314"

	e.setNow(atSeconds(100))
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: true,
	}))

	// Event carried by a lagging clock.
	e.setNow(atSeconds(60))
	require.NoError(t, e.tracker.HandleMicToggle(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: false,
	}))

	sec, err := e.ledger.Value(ctx, e.cacheKeyChannel("g1", "u1", day, "c1"))
	require.NoError(t, err)
	assert.Zero(t, sec)

	sess, err := e.sessions.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.WithinDuration(t, atSeconds(100), sess.LastAccrualAt, 0, "watermark never moves backwards")
}

func TestDayRolloverSplitsAtMidnight(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// 23:59:50 KST on March 14 = 14:59:50 UTC.
	beforeMidnight := time.Date(2026, 3, 14, 14, 59, 50, 0, time.UTC)
	afterMidnight := beforeMidnight.Add(20 * time.Second) // 00:00:10 KST next day

	e.setNow(beforeMidnight)
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: true,
	}))

	e.setNow(afterMidnight)
	require.NoError(t, e.tracker.HandleLeave(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1",
	}))

	// 10s belong to March 14, 10s to March 15, both flushed by the leave.
	assert.Equal(t, int64(10), e.store.channelSec["g1|u1|20260314|c1"])
	assert.Equal(t, int64(10), e.store.channelSec["g1|u1|20260315|c1"])
}

func TestDayRolloverFlushesOldDayBeforeDayChanges(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	beforeMidnight := time.Date(2026, 3, 14, 14, 59, 50, 0, time.UTC)
	afterMidnight := beforeMidnight.Add(20 * time.Second)

	e.setNow(beforeMidnight)
	require.NoError(t, e.tracker.HandleJoin(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: true,
	}))

	// Mid-session event after midnight triggers the rollover.
	e.setNow(afterMidnight)
	require.NoError(t, e.tracker.HandleMicToggle(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", MicOn: false,
	}))

	// Old day is already durable and its ledger keys are gone.
	assert.Equal(t, int64(10), e.store.channelSec["g1|u1|20260314|c1"])
	oldSec, err := e.ledger.Value(ctx, e.cacheKeyChannel("g1", "u1", "20260314", "c1"))
	require.NoError(t, err)
	assert.Zero(t, oldSec)

	sess, err := e.sessions.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "20260315", sess.Day)

	// The new day's tail is still in the ledger, not yet durable.
	newSec, err := e.ledger.Value(ctx, e.cacheKeyChannel("g1", "u1", "20260315", "c1"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), newSec)
}

func TestAloneGatedOnChannelPresence(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	day := "20260314"

	// Force a session with no channel but the alone flag set; nothing may accrue.
	require.NoError(t, e.sessions.Put(ctx, "g1", "u1", &Session{
		ChannelID:     "",
		JoinedAt:      atSeconds(0),
		LastAccrualAt: atSeconds(0),
		Alone:         true,
		Day:           day,
	}))

	e.setNow(atSeconds(30))
	require.NoError(t, e.tracker.HandleMicToggle(ctx, StateUpdate{
		GuildID: "g1", UserID: "u1", ChannelID: "", MicOn: true, Alone: true,
	}))

	sec, err := e.ledger.Value(ctx, e.ledger.AloneKey("g1", "u1", day))
	require.NoError(t, err)
	assert.Zero(t, sec, "alone time accrues only while a channel is occupied")
}
