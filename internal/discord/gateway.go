package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// sessionGateway adapts a discordgo session to the channel provisioning
// surface the temp-channel lifecycle needs.
type sessionGateway struct {
	session *discordgo.Session
}

func (g *sessionGateway) CreateVoiceChannel(ctx context.Context, guildID, name, parentID string) (string, error) {
	channel, err := g.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: parentID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create voice channel: %w", err)
	}
	return channel.ID, nil
}

func (g *sessionGateway) MoveUser(ctx context.Context, guildID, userID, channelID string) error {
	if err := g.session.GuildMemberMove(guildID, userID, &channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to move user: %w", err)
	}
	return nil
}

func (g *sessionGateway) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := g.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}
