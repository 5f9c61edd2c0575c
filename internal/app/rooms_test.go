package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/internal/collab"
	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
)

func openRooms() *Rooms {
	auth := collab.NewStaticAuthority()
	auth.AllowAll = true
	return NewRooms(auth, nil)
}

func TestJoinBidirectionalInvariant(t *testing.T) {
	rooms := openRooms()
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))

	assert.Contains(t, rooms.MembersOf("general"), core.ConnID("c1"))
	assert.Contains(t, rooms.RoomsOf("c1"), domain.RoomID("general"))
	assert.True(t, rooms.Joined("c1", "general"))
}

func TestJoinIdempotent(t *testing.T) {
	rooms := openRooms()
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))
	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))

	assert.Len(t, rooms.MembersOf("general"), 1)
	assert.Len(t, rooms.RoomsOf("c1"), 1)
}

func TestLeaveIdempotent(t *testing.T) {
	rooms := openRooms()
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))
	rooms.Leave("c1", "general")
	rooms.Leave("c1", "general")
	rooms.Leave("c1", "never-joined")

	assert.Empty(t, rooms.MembersOf("general"))
	assert.Empty(t, rooms.RoomsOf("c1"))
}

func TestJoinRefusedWithoutMembership(t *testing.T) {
	auth := collab.NewStaticAuthority()
	auth.Grant("u1", "general")
	rooms := NewRooms(auth, nil)
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))

	err := rooms.Join(ctx, "c2", testUser("u2"), "general")
	require.ErrorIs(t, err, core.ErrNotAuthorized)
	assert.Empty(t, rooms.RoomsOf("c2"))
}

func TestJoinAllowedForSuperAdmin(t *testing.T) {
	auth := collab.NewStaticAuthority()
	rooms := NewRooms(auth, nil)

	admin, err := domain.NewUser("root", "root", domain.RoleSuperAdmin)
	require.NoError(t, err)

	require.NoError(t, rooms.Join(context.Background(), "c1", admin, "general"))
	assert.True(t, rooms.Joined("c1", "general"))
}

func TestJoinRefusedForDeadConnection(t *testing.T) {
	auth := collab.NewStaticAuthority()
	auth.AllowAll = true
	rooms := NewRooms(auth, func(core.ConnID) bool { return false })

	err := rooms.Join(context.Background(), "c1", testUser("u1"), "general")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, rooms.MembersOf("general"))
}

func TestMembersOfSnapshotIsolation(t *testing.T) {
	rooms := openRooms()
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))
	snap := rooms.MembersOf("general")

	require.NoError(t, rooms.Join(ctx, "c2", testUser("u2"), "general"))
	rooms.Leave("c1", "general")

	assert.Equal(t, []core.ConnID{"c1"}, snap, "snapshot must not observe later mutations")
}

func TestEvictAllRemovesEveryMembership(t *testing.T) {
	rooms := openRooms()
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))
	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "random"))
	require.NoError(t, rooms.Join(ctx, "c2", testUser("u2"), "general"))

	left := rooms.EvictAll("c1")
	assert.ElementsMatch(t, []domain.RoomID{"general", "random"}, left)

	assert.Empty(t, rooms.RoomsOf("c1"))
	for _, info := range rooms.List() {
		assert.NotContains(t, rooms.MembersOf(info.ID), core.ConnID("c1"))
	}
	assert.Contains(t, rooms.MembersOf("general"), core.ConnID("c2"))
}

func TestListCounts(t *testing.T) {
	rooms := openRooms()
	ctx := context.Background()

	require.NoError(t, rooms.Join(ctx, "c1", testUser("u1"), "general"))
	require.NoError(t, rooms.Join(ctx, "c2", testUser("u2"), "general"))

	list := rooms.List()
	require.Len(t, list, 1)
	assert.Equal(t, domain.RoomID("general"), list[0].ID)
	assert.Equal(t, 2, list[0].MemberCount)
}
