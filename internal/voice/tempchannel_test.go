package voice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records provisioning calls without touching the platform.
type fakeGateway struct {
	nextChannelID string
	created       []string
	moved         []string
	deleted       []string
}

func (g *fakeGateway) CreateVoiceChannel(_ context.Context, _, name, _ string) (string, error) {
	g.created = append(g.created, name)
	return g.nextChannelID, nil
}

func (g *fakeGateway) MoveUser(_ context.Context, _, userID, channelID string) error {
	g.moved = append(g.moved, userID+"->"+channelID)
	return nil
}

func (g *fakeGateway) DeleteChannel(_ context.Context, channelID string) error {
	g.deleted = append(g.deleted, channelID)
	return nil
}

func newTempFixture(t *testing.T) (*TempChannelRegistry, *TempChannelPolicy, *TempChannelManager, *fakeGateway) {
	t.Helper()
	c := newTestCache(t)
	registry := NewTempChannelRegistry(c)
	policy := NewTempChannelPolicy([]string{"spawn"}, registry)
	gateway := &fakeGateway{nextChannelID: "temp1"}
	manager := NewTempChannelManager(policy, registry, gateway, testLogger())
	return registry, policy, manager, gateway
}

func TestShouldProvisionOnlyForSpawnChannels(t *testing.T) {
	_, policy, _, _ := newTempFixture(t)

	assert.True(t, policy.ShouldProvision("spawn"))
	assert.False(t, policy.ShouldProvision("other"))
	assert.False(t, policy.ShouldProvision(""))
}

func TestProvisionFlowRegistersAndMovesUser(t *testing.T) {
	registry, _, manager, gateway := newTempFixture(t)
	ctx := context.Background()

	require.NoError(t, manager.OnEnter(ctx, "g1", "u1", "spawn", "cat1"))

	require.Len(t, gateway.created, 1)
	assert.Equal(t, []string{"u1->temp1"}, gateway.moved)

	managed, err := registry.IsManaged(ctx, "g1", "temp1")
	require.NoError(t, err)
	assert.True(t, managed)

	empty, err := registry.IsEmpty(ctx, "temp1")
	require.NoError(t, err)
	assert.False(t, empty, "triggering user is a member")
}

func TestTeardownWhenLastMemberVacates(t *testing.T) {
	registry, policy, manager, gateway := newTempFixture(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, "g1", "temp1"))
	require.NoError(t, registry.AddMember(ctx, "temp1", "u1"))
	require.NoError(t, registry.AddMember(ctx, "temp1", "u2"))

	require.NoError(t, manager.OnVacate(ctx, "g1", "u1", "temp1"))
	assert.Empty(t, gateway.deleted, "channel still occupied")

	require.NoError(t, manager.OnVacate(ctx, "g1", "u2", "temp1"))
	assert.Equal(t, []string{"temp1"}, gateway.deleted)

	managed, err := registry.IsManaged(ctx, "g1", "temp1")
	require.NoError(t, err)
	assert.False(t, managed, "torn-down channel is unregistered")

	teardown, err := policy.ShouldTeardown(ctx, "g1", "temp1")
	require.NoError(t, err)
	assert.False(t, teardown)
}

func TestVacateUnmanagedChannelIsNoOp(t *testing.T) {
	_, _, manager, gateway := newTempFixture(t)
	ctx := context.Background()

	require.NoError(t, manager.OnVacate(ctx, "g1", "u1", "regular"))
	assert.Empty(t, gateway.deleted)

	require.NoError(t, manager.OnVacate(ctx, "g1", "u1", ""))
}

func TestEnterManagedChannelRecordsMembership(t *testing.T) {
	registry, _, manager, _ := newTempFixture(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, "g1", "temp1"))
	require.NoError(t, manager.OnEnter(ctx, "g1", "u9", "temp1", ""))

	empty, err := registry.IsEmpty(ctx, "temp1")
	require.NoError(t, err)
	assert.False(t, empty)
}
