package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"voicestats/internal/clock"
	"voicestats/internal/database"
	"voicestats/internal/voice"
)

// handlerTimeout bounds every cache/db round trip made from a gateway
// handler so event processing never blocks indefinitely.
const handlerTimeout = 10 * time.Second

// Bot represents the Discord bot
type Bot struct {
	session  *discordgo.Session
	tracker  *voice.Tracker
	temps    *voice.TempChannelManager
	names    *voice.NameCache
	repo     *database.Repository
	calendar *clock.Calendar
	log      *zap.SugaredLogger
}

// New creates a new Discord bot
func New(token string, tracker *voice.Tracker, names *voice.NameCache, repo *database.Repository,
	calendar *clock.Calendar, policy *voice.TempChannelPolicy, registry *voice.TempChannelRegistry,
	log *zap.SugaredLogger) (*Bot, error) {

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages

	bot := &Bot{
		session:  session,
		tracker:  tracker,
		names:    names,
		repo:     repo,
		calendar: calendar,
		log:      log,
	}
	bot.temps = voice.NewTempChannelManager(policy, registry, &sessionGateway{session: session}, log)

	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.guildDelete)

	return bot, nil
}

// guildDelete drops cached display names for a guild the bot left.
func (b *Bot) guildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.names.ClearGuild(ctx, g.ID); err != nil {
		b.log.Warnw("guild name cache clear failed", "guild", g.ID, "error", err)
	}
}

// Start starts the bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.log.Infow("bot is running")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

// voiceStateUpdate classifies a raw voice state transition into join, leave,
// move or mic toggle and feeds it to the accrual tracker. Gateway handlers
// run sequentially per connection, which gives the tracker its required
// one-writer-per-user ordering.
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.GuildID == "" || vs.UserID == "" {
		b.log.Debugw("dropping malformed voice state", "guild", vs.GuildID, "user", vs.UserID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	prevChannelID := ""
	if vs.BeforeUpdate != nil {
		prevChannelID = vs.BeforeUpdate.ChannelID
	}

	b.cacheNames(ctx, s, vs)

	upd := voice.StateUpdate{
		GuildID:   vs.GuildID,
		UserID:    vs.UserID,
		ChannelID: vs.ChannelID,
		ParentID:  b.channelParentID(s, vs.ChannelID),
		MicOn:     !vs.SelfMute,
		Alone:     b.isAlone(s, vs.GuildID, vs.ChannelID),
	}

	var err error
	switch {
	case vs.ChannelID != "" && prevChannelID == "":
		err = b.tracker.HandleJoin(ctx, upd)
		if err == nil {
			err = b.temps.OnEnter(ctx, vs.GuildID, vs.UserID, vs.ChannelID, upd.ParentID)
		}

	case vs.ChannelID == "" && prevChannelID != "":
		err = b.tracker.HandleLeave(ctx, upd)
		if err == nil {
			err = b.temps.OnVacate(ctx, vs.GuildID, vs.UserID, prevChannelID)
		}

	case vs.ChannelID != prevChannelID:
		err = b.tracker.HandleMove(ctx, prevChannelID, upd)
		if err == nil {
			if err = b.temps.OnVacate(ctx, vs.GuildID, vs.UserID, prevChannelID); err == nil {
				err = b.temps.OnEnter(ctx, vs.GuildID, vs.UserID, vs.ChannelID, upd.ParentID)
			}
		}

	case vs.ChannelID != "":
		err = b.tracker.HandleMicToggle(ctx, upd)

	default:
		return
	}

	if err != nil {
		// The event is dropped; the next event or the periodic sweep
		// compensates (best-effort accounting).
		b.log.Warnw("voice state handling failed", "guild", vs.GuildID, "user", vs.UserID,
			"channel", vs.ChannelID, "error", err)
	}
}

// isAlone reports whether the channel has exactly one occupant according to
// the session state.
func (b *Bot) isAlone(s *discordgo.Session, guildID, channelID string) bool {
	if channelID == "" {
		return false
	}
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return false
	}
	occupants := 0
	for _, state := range guild.VoiceStates {
		if state.ChannelID == channelID {
			occupants++
		}
	}
	return occupants == 1
}

func (b *Bot) channelParentID(s *discordgo.Session, channelID string) string {
	if channelID == "" {
		return ""
	}
	channel, err := s.State.Channel(channelID)
	if err != nil {
		return ""
	}
	return channel.ParentID
}

// cacheNames refreshes the best-effort display-name caches so the flush can
// stamp readable labels onto aggregate rows. Failures never block accrual.
func (b *Bot) cacheNames(ctx context.Context, s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.ChannelID != "" {
		if channel, err := s.State.Channel(vs.ChannelID); err == nil {
			if err := b.names.SetChannelName(ctx, vs.GuildID, vs.ChannelID, channel.Name); err != nil {
				b.log.Debugw("channel name cache failed", "channel", vs.ChannelID, "error", err)
			}
		}
	}

	name := ""
	if vs.Member != nil && vs.Member.User != nil {
		name = vs.Member.User.Username
		if vs.Member.Nick != "" {
			name = vs.Member.Nick
		}
	}
	if name == "" {
		if member, err := s.State.Member(vs.GuildID, vs.UserID); err == nil && member.User != nil {
			name = member.User.Username
		}
	}
	if name != "" {
		if err := b.names.SetUserName(ctx, vs.GuildID, vs.UserID, name); err != nil {
			b.log.Debugw("user name cache failed", "user", vs.UserID, "error", err)
		}
	}
}

// messageCreate handles message creation events
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}

	content := strings.TrimSpace(m.Content)

	switch {
	case content == "!voice":
		b.handleVoiceCommand(s, m)
	case content == "!today":
		b.handleTodayCommand(s, m)
	case content == "!top":
		b.handleTopCommand(s, m)
	}
}
