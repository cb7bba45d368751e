package voice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voicestats/internal/clock"
)

// sweepSafetyMargin keeps the periodic sweep away from sessions that are
// still actively accruing, so it never drains a key between a live session's
// read and increment.
const sweepSafetyMargin = 5 * time.Minute

// AggregateStore is the durable sink for drained ledger counters. Every
// method must be an atomic accumulate-or-insert on the daily row.
type AggregateStore interface {
	AddChannelSeconds(guildID, userID, day, channelID, channelName, userName string, seconds int64) error
	AddMicSeconds(guildID, userID, day string, onSeconds, offSeconds int64) error
	AddAloneSeconds(guildID, userID, day string, seconds int64) error
}

// Flusher drains ledger counters into the durable daily aggregates. A ledger
// key is cleared only after its upsert succeeds, so a crashed or failed
// flush retries the same delta instead of losing or doubling it.
type Flusher struct {
	ledger   *Ledger
	names    *NameCache
	sessions *SessionStore
	store    AggregateStore
	calendar *clock.Calendar
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewFlusher creates a flusher over the given ledger and durable store.
func NewFlusher(ledger *Ledger, names *NameCache, sessions *SessionStore, store AggregateStore, calendar *clock.Calendar, log *zap.SugaredLogger) *Flusher {
	return &Flusher{
		ledger:   ledger,
		names:    names,
		sessions: sessions,
		store:    store,
		calendar: calendar,
		log:      log,
		now:      time.Now,
	}
}

// FlushDay drains every ledger counter for (guild, user, day) into the
// aggregate store. Re-running against already-cleared keys is a no-op.
func (f *Flusher) FlushDay(ctx context.Context, guildID, userID, day string) error {
	userName := f.names.UserName(ctx, guildID, userID)

	channelKeys, err := f.ledger.ChannelKeys(ctx, guildID, userID, day)
	if err != nil {
		return err
	}
	for _, key := range channelKeys {
		seconds, err := f.ledger.Value(ctx, key)
		if err != nil {
			return err
		}
		if seconds <= 0 {
			continue
		}
		channelID := channelIDFromKey(key)
		channelName := f.names.ChannelName(ctx, guildID, channelID)
		if err := f.store.AddChannelSeconds(guildID, userID, day, channelID, channelName, userName, seconds); err != nil {
			return err
		}
		if err := f.ledger.Clear(ctx, key); err != nil {
			return err
		}
	}

	for _, state := range []string{MicStateOn, MicStateOff} {
		key := f.ledger.MicKey(guildID, userID, day, state)
		seconds, err := f.ledger.Value(ctx, key)
		if err != nil {
			return err
		}
		if seconds <= 0 {
			continue
		}
		var onSec, offSec int64
		if state == MicStateOn {
			onSec = seconds
		} else {
			offSec = seconds
		}
		if err := f.store.AddMicSeconds(guildID, userID, day, onSec, offSec); err != nil {
			return err
		}
		if err := f.ledger.Clear(ctx, key); err != nil {
			return err
		}
	}

	aloneKey := f.ledger.AloneKey(guildID, userID, day)
	seconds, err := f.ledger.Value(ctx, aloneKey)
	if err != nil {
		return err
	}
	if seconds > 0 {
		if err := f.store.AddAloneSeconds(guildID, userID, day, seconds); err != nil {
			return err
		}
		if err := f.ledger.Clear(ctx, aloneKey); err != nil {
			return err
		}
	}

	return nil
}

// FlushAllToday sweeps every (guild, user) with live ledger entries for the
// current day. Owners whose open session accrued recently are skipped; their
// keys are drained on leave, at rollover or by a later sweep.
func (f *Flusher) FlushAllToday(ctx context.Context) error {
	today := f.calendar.DayOf(f.now())

	owners, err := f.ledger.Owners(ctx, today)
	if err != nil {
		return err
	}

	var flushed int
	for _, owner := range owners {
		sess, err := f.sessions.Get(ctx, owner.GuildID, owner.UserID)
		if err != nil {
			f.log.Warnw("sweep session lookup failed", "guild", owner.GuildID,
				"user", owner.UserID, "error", err)
			continue
		}
		if sess != nil && sess.Day == today && f.now().Sub(sess.LastAccrualAt) < sweepSafetyMargin {
			continue
		}
		if err := f.FlushDay(ctx, owner.GuildID, owner.UserID, today); err != nil {
			f.log.Warnw("sweep flush failed", "guild", owner.GuildID,
				"user", owner.UserID, "day", today, "error", err)
			continue
		}
		flushed++
	}

	f.log.Infow("daily sweep complete", "day", today, "owners", len(owners), "flushed", flushed)
	return nil
}
