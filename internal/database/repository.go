package database

import (
	"fmt"
	"log"
)

// GlobalChannelID is the sentinel channel id for mic and alone totals that
// are not tied to one channel.
const GlobalChannelID = "GLOBAL"

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// AddChannelSeconds adds channel duration seconds to a daily row, refreshing
// the cached display names on the way
func (r *Repository) AddChannelSeconds(guildID, userID, day, channelID, channelName, userName string, seconds int64) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO voice_daily (guild_id, user_id, day, channel_id, channel_name, user_name, channel_duration_sec)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (guild_id, user_id, day, channel_id) DO UPDATE SET
			channel_duration_sec = voice_daily.channel_duration_sec + EXCLUDED.channel_duration_sec,
			channel_name = EXCLUDED.channel_name,
			user_name = EXCLUDED.user_name`,
		guildID, userID, day, channelID, channelName, userName, seconds)
	if err != nil {
		return fmt.Errorf("failed to add channel seconds: %w", err)
	}
	return nil
}

// AddMicSeconds adds mic on/off seconds to the GLOBAL daily row
func (r *Repository) AddMicSeconds(guildID, userID, day string, onSeconds, offSeconds int64) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO voice_daily (guild_id, user_id, day, channel_id, mic_on_sec, mic_off_sec)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id, user_id, day, channel_id) DO UPDATE SET
			mic_on_sec = voice_daily.mic_on_sec + EXCLUDED.mic_on_sec,
			mic_off_sec = voice_daily.mic_off_sec + EXCLUDED.mic_off_sec`,
		guildID, userID, day, GlobalChannelID, onSeconds, offSeconds)
	if err != nil {
		return fmt.Errorf("failed to add mic seconds: %w", err)
	}
	return nil
}

// AddAloneSeconds adds alone seconds to the GLOBAL daily row
func (r *Repository) AddAloneSeconds(guildID, userID, day string, seconds int64) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO voice_daily (guild_id, user_id, day, channel_id, alone_sec)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guild_id, user_id, day, channel_id) DO UPDATE SET
			alone_sec = voice_daily.alone_sec + EXCLUDED.alone_sec`,
		guildID, userID, day, GlobalChannelID, seconds)
	if err != nil {
		return fmt.Errorf("failed to add alone seconds: %w", err)
	}
	return nil
}

// DayTotals summarizes one user's day across all dimensions
type DayTotals struct {
	GuildID    string
	UserID     string
	Day        string
	ChannelSec int64
	MicOnSec   int64
	MicOffSec  int64
	AloneSec   int64
}

// GetDayTotals gets a user's totals for one day
func (r *Repository) GetDayTotals(guildID, userID, day string) (*DayTotals, error) {
	totals := &DayTotals{GuildID: guildID, UserID: userID, Day: day}
	err := r.db.conn.QueryRow(`
		SELECT
			COALESCE(SUM(channel_duration_sec), 0),
			COALESCE(SUM(mic_on_sec), 0),
			COALESCE(SUM(mic_off_sec), 0),
			COALESCE(SUM(alone_sec), 0)
		FROM voice_daily
		WHERE guild_id = $1 AND user_id = $2 AND day = $3`,
		guildID, userID, day).Scan(
		&totals.ChannelSec, &totals.MicOnSec, &totals.MicOffSec, &totals.AloneSec)
	if err != nil {
		return nil, fmt.Errorf("failed to get day totals: %w", err)
	}
	return totals, nil
}

// ChannelTotal is one channel's accumulated duration for a user
type ChannelTotal struct {
	ChannelID    string
	ChannelName  string
	TotalSeconds int64
}

// GetUserChannelTotals gets per-channel voice totals for a user in a guild
func (r *Repository) GetUserChannelTotals(guildID, userID string) ([]ChannelTotal, error) {
	rows, err := r.db.conn.Query(`
		SELECT channel_id, MAX(channel_name), SUM(channel_duration_sec)
		FROM voice_daily
		WHERE guild_id = $1 AND user_id = $2 AND channel_id <> $3
		GROUP BY channel_id
		ORDER BY SUM(channel_duration_sec) DESC`,
		guildID, userID, GlobalChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel totals: %w", err)
	}
	defer rows.Close()

	var totals []ChannelTotal
	for rows.Next() {
		var ct ChannelTotal
		if err := rows.Scan(&ct.ChannelID, &ct.ChannelName, &ct.TotalSeconds); err != nil {
			log.Printf("Error scanning channel total row: %v", err)
			continue
		}
		totals = append(totals, ct)
	}

	return totals, nil
}

// UserTotal is one user's accumulated voice duration
type UserTotal struct {
	UserID       string
	UserName     string
	TotalSeconds int64
}

// GetTopVoiceUsers gets the guild leaderboard by total channel duration
func (r *Repository) GetTopVoiceUsers(guildID string, limit int) ([]UserTotal, error) {
	rows, err := r.db.conn.Query(`
		SELECT user_id, MAX(user_name), SUM(channel_duration_sec)
		FROM voice_daily
		WHERE guild_id = $1 AND channel_id <> $2
		GROUP BY user_id
		ORDER BY SUM(channel_duration_sec) DESC
		LIMIT $3`,
		guildID, GlobalChannelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top voice users: %w", err)
	}
	defer rows.Close()

	var totals []UserTotal
	for rows.Next() {
		var ut UserTotal
		if err := rows.Scan(&ut.UserID, &ut.UserName, &ut.TotalSeconds); err != nil {
			log.Printf("Error scanning user total row: %v", err)
			continue
		}
		totals = append(totals, ut)
	}

	return totals, nil
}
