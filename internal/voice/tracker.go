package voice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voicestats/internal/clock"
)

// StateUpdate is one presence transition as delivered by the gateway,
// already validated to carry guild and user ids.
type StateUpdate struct {
	GuildID   string
	UserID    string
	ChannelID string
	ParentID  string
	MicOn     bool
	Alone     bool
}

// Tracker is the accrual state machine. It consumes presence transitions for
// one (guild, user) at a time, closes out the elapsed interval against the
// ledger and keeps the session record current.
//
// Events for the same user must be handled sequentially; the gateway's
// per-connection dispatch provides that ordering.
type Tracker struct {
	sessions *SessionStore
	ledger   *Ledger
	flusher  *Flusher
	calendar *clock.Calendar
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewTracker creates the accrual state machine.
func NewTracker(sessions *SessionStore, ledger *Ledger, flusher *Flusher, calendar *clock.Calendar, log *zap.SugaredLogger) *Tracker {
	return &Tracker{
		sessions: sessions,
		ledger:   ledger,
		flusher:  flusher,
		calendar: calendar,
		log:      log,
		now:      time.Now,
	}
}

// HandleJoin opens a session for a user entering a channel, or folds the
// event into the existing session on redelivery.
func (t *Tracker) HandleJoin(ctx context.Context, upd StateUpdate) error {
	now := t.now()

	sess, err := t.sessions.Get(ctx, upd.GuildID, upd.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		return t.openSession(ctx, upd, now)
	}

	if err := t.rollover(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}
	if err := t.accrue(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}

	sess.ChannelID = upd.ChannelID
	sess.MicOn = upd.MicOn
	sess.Alone = upd.Alone
	return t.sessions.Put(ctx, upd.GuildID, upd.UserID, sess)
}

// HandleMove closes the interval spent in the previous channel and opens a
// new one under the destination channel.
func (t *Tracker) HandleMove(ctx context.Context, prevChannelID string, upd StateUpdate) error {
	now := t.now()

	sess, err := t.sessions.Get(ctx, upd.GuildID, upd.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		// Move without a tracked session, e.g. after a restart. Treat as a
		// fresh join into the destination channel.
		return t.openSession(ctx, upd, now)
	}

	if err := t.rollover(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}

	// The occupant spent the elapsed interval in the previous channel, so
	// credit it there even if the session record disagrees.
	sess.ChannelID = prevChannelID
	if err := t.accrue(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}

	sess.ChannelID = upd.ChannelID
	sess.JoinedAt = now
	sess.MicOn = upd.MicOn
	sess.Alone = upd.Alone
	t.log.Debugw("voice move", "guild", upd.GuildID, "user", upd.UserID,
		"from", prevChannelID, "to", upd.ChannelID)
	return t.sessions.Put(ctx, upd.GuildID, upd.UserID, sess)
}

// HandleMicToggle closes the interval under the old mic state and carries on
// under the new one. Without a tracked session this is a no-op.
func (t *Tracker) HandleMicToggle(ctx context.Context, upd StateUpdate) error {
	now := t.now()

	sess, err := t.sessions.Get(ctx, upd.GuildID, upd.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		t.log.Debugw("mic toggle without session", "guild", upd.GuildID, "user", upd.UserID)
		return nil
	}

	if err := t.rollover(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}
	if err := t.accrue(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}

	sess.ChannelID = upd.ChannelID
	sess.MicOn = upd.MicOn
	sess.Alone = upd.Alone
	return t.sessions.Put(ctx, upd.GuildID, upd.UserID, sess)
}

// HandleLeave credits the closing interval, flushes the session's day and
// drops the session. A leave without a tracked session is a no-op: the
// gateway redelivers events and a restart may have lost the session.
func (t *Tracker) HandleLeave(ctx context.Context, upd StateUpdate) error {
	now := t.now()

	sess, err := t.sessions.Get(ctx, upd.GuildID, upd.UserID)
	if err != nil {
		return err
	}
	if sess == nil {
		t.log.Debugw("leave without session", "guild", upd.GuildID, "user", upd.UserID)
		return nil
	}

	if err := t.rollover(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}
	if err := t.accrue(ctx, upd.GuildID, upd.UserID, sess, now); err != nil {
		return err
	}

	// Persist the closed-out session before deleting so a redelivered leave
	// finds a consistent record instead of a half-cleared one.
	day := sess.Day
	sess.ChannelID = ""
	sess.Alone = false
	if err := t.sessions.Put(ctx, upd.GuildID, upd.UserID, sess); err != nil {
		return err
	}

	// Flush while the name caches are still warm for this user.
	if err := t.flusher.FlushDay(ctx, upd.GuildID, upd.UserID, day); err != nil {
		t.log.Warnw("flush on leave failed", "guild", upd.GuildID, "user", upd.UserID,
			"day", day, "error", err)
	}

	return t.sessions.Delete(ctx, upd.GuildID, upd.UserID)
}

func (t *Tracker) openSession(ctx context.Context, upd StateUpdate, now time.Time) error {
	sess := &Session{
		ChannelID:     upd.ChannelID,
		JoinedAt:      now,
		LastAccrualAt: now,
		MicOn:         upd.MicOn,
		Alone:         upd.Alone,
		Day:           t.calendar.DayOf(now),
	}
	return t.sessions.Put(ctx, upd.GuildID, upd.UserID, sess)
}

// rollover closes out the tail of the previous day when a session spans
// midnight: credit the old day, flush it so its ledger keys do not linger,
// then restart the open interval on today.
func (t *Tracker) rollover(ctx context.Context, guildID, userID string, sess *Session, now time.Time) error {
	today := t.calendar.DayOf(now)
	if sess.Day == today {
		return nil
	}

	// Credit the old day only up to its midnight; the watermark then sits at
	// the day boundary so the next accrue credits the remainder to today.
	endOfDay := t.endOfDay(sess.Day)
	if endOfDay.After(now) || sess.LastAccrualAt.After(endOfDay) {
		endOfDay = now
	}
	if err := t.accrue(ctx, guildID, userID, sess, endOfDay); err != nil {
		return err
	}
	if err := t.flusher.FlushDay(ctx, guildID, userID, sess.Day); err != nil {
		t.log.Warnw("rollover flush failed", "guild", guildID, "user", userID,
			"day", sess.Day, "error", err)
	}

	sess.Day = today
	return nil
}

// endOfDay returns the first instant after the given YYYYMMDD day.
func (t *Tracker) endOfDay(day string) time.Time {
	start, err := time.ParseInLocation("20060102", day, t.calendar.Location())
	if err != nil {
		return time.Time{}
	}
	return start.Add(24 * time.Hour)
}

// accrue credits the interval [sess.LastAccrualAt, now) to the ledger under
// the session's day and state, then advances the watermark. Zero or negative
// elapsed time is absorbed without crediting.
func (t *Tracker) accrue(ctx context.Context, guildID, userID string, sess *Session, now time.Time) error {
	if sess.LastAccrualAt.IsZero() {
		sess.LastAccrualAt = now
		return nil
	}

	elapsed := int64(now.Sub(sess.LastAccrualAt) / time.Second)
	if elapsed > 0 && sess.ChannelID != "" {
		if err := t.ledger.AddChannelSeconds(ctx, guildID, userID, sess.Day, sess.ChannelID, elapsed); err != nil {
			return err
		}
		state := MicStateOff
		if sess.MicOn {
			state = MicStateOn
		}
		if err := t.ledger.AddMicSeconds(ctx, guildID, userID, sess.Day, state, elapsed); err != nil {
			return err
		}
		if sess.Alone {
			if err := t.ledger.AddAloneSeconds(ctx, guildID, userID, sess.Day, elapsed); err != nil {
				return err
			}
		}
	}

	if now.After(sess.LastAccrualAt) {
		sess.LastAccrualAt = now
	}
	return nil
}
