package voice

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicestats/internal/cache"
)

// Gateway is the platform surface needed to provision and tear down
// temporary voice channels.
type Gateway interface {
	CreateVoiceChannel(ctx context.Context, guildID, name, parentID string) (string, error)
	MoveUser(ctx context.Context, guildID, userID, channelID string) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// TempChannelRegistry tracks the channels this bot created so they can be
// torn down once empty. It is bookkeeping, not a mirror of the platform's
// channel list, and survives restarts because it lives in the cache.
type TempChannelRegistry struct {
	cache *cache.Client
}

// NewTempChannelRegistry creates a cache-backed registry.
func NewTempChannelRegistry(c *cache.Client) *TempChannelRegistry {
	return &TempChannelRegistry{cache: c}
}

// Register marks a channel as managed by this bot.
func (r *TempChannelRegistry) Register(ctx context.Context, guildID, channelID string) error {
	return r.cache.SAdd(ctx, tempChannelsKey(guildID), channelID)
}

// Unregister removes a channel and its membership set.
func (r *TempChannelRegistry) Unregister(ctx context.Context, guildID, channelID string) error {
	if err := r.cache.SRem(ctx, tempChannelsKey(guildID), channelID); err != nil {
		return err
	}
	return r.cache.Del(ctx, tempMembersKey(channelID))
}

// IsManaged reports whether the channel was created by this bot.
func (r *TempChannelRegistry) IsManaged(ctx context.Context, guildID, channelID string) (bool, error) {
	return r.cache.SIsMember(ctx, tempChannelsKey(guildID), channelID)
}

// AddMember records a user occupying a managed channel.
func (r *TempChannelRegistry) AddMember(ctx context.Context, channelID, userID string) error {
	return r.cache.SAdd(ctx, tempMembersKey(channelID), userID)
}

// RemoveMember records a user leaving a managed channel.
func (r *TempChannelRegistry) RemoveMember(ctx context.Context, channelID, userID string) error {
	return r.cache.SRem(ctx, tempMembersKey(channelID), userID)
}

// IsEmpty reports whether a managed channel has no recorded occupants.
func (r *TempChannelRegistry) IsEmpty(ctx context.Context, channelID string) (bool, error) {
	n, err := r.cache.SCard(ctx, tempMembersKey(channelID))
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// TempChannelPolicy decides when a presence event should create or destroy
// a dynamically provisioned channel.
type TempChannelPolicy struct {
	spawnChannels map[string]bool
	registry      *TempChannelRegistry
}

// NewTempChannelPolicy creates a policy with the given spawn-point channels.
func NewTempChannelPolicy(spawnChannelIDs []string, registry *TempChannelRegistry) *TempChannelPolicy {
	spawn := make(map[string]bool, len(spawnChannelIDs))
	for _, id := range spawnChannelIDs {
		if id != "" {
			spawn[id] = true
		}
	}
	return &TempChannelPolicy{spawnChannels: spawn, registry: registry}
}

// ShouldProvision reports whether joining this channel spawns a temp channel.
func (p *TempChannelPolicy) ShouldProvision(channelID string) bool {
	return p.spawnChannels[channelID]
}

// ShouldTeardown reports whether a managed channel is now empty and should
// be deleted.
func (p *TempChannelPolicy) ShouldTeardown(ctx context.Context, guildID, channelID string) (bool, error) {
	managed, err := p.registry.IsManaged(ctx, guildID, channelID)
	if err != nil || !managed {
		return false, err
	}
	return p.registry.IsEmpty(ctx, channelID)
}

// TempChannelManager applies the policy against the provisioning gateway.
// It consumes the same event stream as the accrual tracker and runs after
// it, so provisioning never races an open accrual step.
type TempChannelManager struct {
	policy   *TempChannelPolicy
	registry *TempChannelRegistry
	gateway  Gateway
	log      *zap.SugaredLogger
}

// NewTempChannelManager creates the lifecycle manager.
func NewTempChannelManager(policy *TempChannelPolicy, registry *TempChannelRegistry, gateway Gateway, log *zap.SugaredLogger) *TempChannelManager {
	return &TempChannelManager{policy: policy, registry: registry, gateway: gateway, log: log}
}

// OnEnter handles a user arriving in channelID: spawn-point joins provision
// a fresh channel and relocate the user; entering a managed channel records
// membership.
func (m *TempChannelManager) OnEnter(ctx context.Context, guildID, userID, channelID, parentID string) error {
	if m.policy.ShouldProvision(channelID) {
		return m.provision(ctx, guildID, userID, parentID)
	}

	managed, err := m.registry.IsManaged(ctx, guildID, channelID)
	if err != nil {
		return err
	}
	if managed {
		return m.registry.AddMember(ctx, channelID, userID)
	}
	return nil
}

// OnVacate handles a user leaving channelID: membership is dropped and the
// channel torn down once the registry says it is empty.
func (m *TempChannelManager) OnVacate(ctx context.Context, guildID, userID, channelID string) error {
	if channelID == "" {
		return nil
	}

	if err := m.registry.RemoveMember(ctx, channelID, userID); err != nil {
		return err
	}

	teardown, err := m.policy.ShouldTeardown(ctx, guildID, channelID)
	if err != nil || !teardown {
		return err
	}

	if err := m.registry.Unregister(ctx, guildID, channelID); err != nil {
		return err
	}
	if err := m.gateway.DeleteChannel(ctx, channelID); err != nil {
		return err
	}
	m.log.Infow("temp channel removed", "guild", guildID, "channel", channelID)
	return nil
}

func (m *TempChannelManager) provision(ctx context.Context, guildID, userID, parentID string) error {
	name := "temp-" + strings.Split(uuid.NewString(), "-")[0]
	channelID, err := m.gateway.CreateVoiceChannel(ctx, guildID, name, parentID)
	if err != nil {
		return err
	}

	if err := m.registry.Register(ctx, guildID, channelID); err != nil {
		return err
	}
	if err := m.registry.AddMember(ctx, channelID, userID); err != nil {
		return err
	}
	if err := m.gateway.MoveUser(ctx, guildID, userID, channelID); err != nil {
		return err
	}
	m.log.Infow("temp channel created", "guild", guildID, "channel", channelID, "user", userID)
	return nil
}
