package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"voicestats/pkg/utils"
)

// handleVoiceCommand handles the !voice command
func (b *Bot) handleVoiceCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	totals, err := b.repo.GetUserChannelTotals(m.GuildID, m.Author.ID)
	if err != nil {
		b.log.Warnw("voice command failed", "user", m.Author.ID, "error", err)
		s.ChannelMessageSend(m.ChannelID, "Could not fetch your voice stats.")
		return
	}

	var lines []string
	var totalSeconds int64
	for _, ct := range totals {
		lines = append(lines, fmt.Sprintf("%s: %s",
			utils.FormatChannelMention(ct.ChannelID), utils.FormatDuration(ct.TotalSeconds)))
		totalSeconds += ct.TotalSeconds
	}
	if len(lines) == 0 {
		lines = append(lines, "(no channel data yet)")
	}

	msg := fmt.Sprintf("🔊 %s, voice per channel:\n%s\nTotal: %s",
		m.Author.Username, strings.Join(lines, "\n"), utils.FormatDuration(totalSeconds))
	s.ChannelMessageSend(m.ChannelID, msg)
}

// handleTodayCommand handles the !today command
func (b *Bot) handleTodayCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	totals, err := b.repo.GetDayTotals(m.GuildID, m.Author.ID, b.calendar.Today())
	if err != nil {
		b.log.Warnw("today command failed", "user", m.Author.ID, "error", err)
		s.ChannelMessageSend(m.ChannelID, "Could not fetch today's stats.")
		return
	}

	msg := fmt.Sprintf("📊 %s, today so far:\nVoice: %s\nMic on: %s\nMic off: %s\nAlone: %s",
		m.Author.Username,
		utils.FormatDuration(totals.ChannelSec),
		utils.FormatDuration(totals.MicOnSec),
		utils.FormatDuration(totals.MicOffSec),
		utils.FormatDuration(totals.AloneSec))
	s.ChannelMessageSend(m.ChannelID, msg)
}

// handleTopCommand handles the !top command
func (b *Bot) handleTopCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	totals, err := b.repo.GetTopVoiceUsers(m.GuildID, 10)
	if err != nil {
		b.log.Warnw("top command failed", "guild", m.GuildID, "error", err)
		s.ChannelMessageSend(m.ChannelID, "Could not fetch the leaderboard.")
		return
	}

	if len(totals) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No voice activity recorded yet.")
		return
	}

	var lines []string
	for i, ut := range totals {
		lines = append(lines, utils.FormatLeaderboardEntry(i+1,
			utils.FormatUserMention(ut.UserID), utils.FormatDuration(ut.TotalSeconds)))
	}

	msg := "🏆 Voice leaderboard:\n" + strings.Join(lines, "\n")
	s.ChannelMessageSend(m.ChannelID, msg)
}
