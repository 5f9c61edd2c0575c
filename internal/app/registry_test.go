package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/internal/domain"
)

func testUser(id string) *domain.User {
	u, _ := domain.NewUser(domain.UserID(id), id)
	return u
}

func TestRegistryRegisterLookup(t *testing.T) {
	reg := NewRegistry()
	conn := &fakeConn{}

	cid := reg.Register(testUser("u1"), conn, nil)
	require.NotEmpty(t, cid)

	u, ok := reg.Identity(cid)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), u.ID)

	sig, ok := reg.SignalOf(cid)
	require.True(t, ok)
	assert.Same(t, conn, sig.(*fakeConn))
	assert.True(t, reg.Alive(cid))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryUnknownConn(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Identity("nope")
	assert.False(t, ok)
	_, ok = reg.SignalOf("nope")
	assert.False(t, ok)
	assert.False(t, reg.Alive("nope"))
}

func TestRegistryMarkClosedHidesIdentity(t *testing.T) {
	reg := NewRegistry()
	cid := reg.Register(testUser("u1"), &fakeConn{}, nil)

	require.True(t, reg.MarkClosed(cid))
	assert.False(t, reg.MarkClosed(cid), "second MarkClosed must report already closed")

	_, ok := reg.Identity(cid)
	assert.False(t, ok)
	assert.False(t, reg.Alive(cid))

	// outbound pushes still resolve while draining
	_, ok = reg.SignalOf(cid)
	assert.True(t, ok)
}

func TestRegistryRemoveIdempotentAndCancels(t *testing.T) {
	reg := NewRegistry()
	canceled := false
	cid := reg.Register(testUser("u1"), &fakeConn{}, func() { canceled = true })

	reg.Remove(cid)
	assert.True(t, canceled)
	assert.Equal(t, 0, reg.Count())

	reg.Remove(cid) // no panic, no effect
	assert.Equal(t, 0, reg.Count())
}
