package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/internal/collab"
	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
)

type bcastFixture struct {
	reg   *Registry
	rooms *Rooms
	b     *Broadcaster
}

func newBcastFixture() *bcastFixture {
	auth := collab.NewStaticAuthority()
	auth.AllowAll = true
	reg := NewRegistry()
	rooms := NewRooms(auth, reg.Alive)
	return &bcastFixture{reg: reg, rooms: rooms, b: &Broadcaster{Rooms: rooms, Registry: reg}}
}

func (f *bcastFixture) joinNew(t *testing.T, uid string, room domain.RoomID) (core.ConnID, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	cid := f.reg.Register(testUser(uid), conn, nil)
	require.NoError(t, f.rooms.Join(context.Background(), cid, testUser(uid), room))
	return cid, conn
}

func mustMessage(t *testing.T, sender string, room domain.RoomID, content string) *domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(testUser(sender), room, content, domain.KindText)
	require.NoError(t, err)
	return msg
}

func decodeEvent(t *testing.T, frame core.Frame) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(frame, &out))
	return out
}

func TestBroadcastIncludesSender(t *testing.T) {
	f := newBcastFixture()
	_, connA := f.joinNew(t, "alice", "general")
	_, connB := f.joinNew(t, "bob", "general")

	res := f.b.Broadcast(mustMessage(t, "alice", "general", "hi"))
	assert.Equal(t, 2, res.SentTo)
	assert.Empty(t, res.Dropped)

	for _, conn := range []*fakeConn{connA, connB} {
		frames := conn.Frames()
		require.Len(t, frames, 1)
		ev := decodeEvent(t, frames[0])
		assert.Equal(t, "new-message", ev["type"])
		assert.Equal(t, "hi", ev["content"])
	}
}

func TestBroadcastDoesNotLeakAcrossRooms(t *testing.T) {
	f := newBcastFixture()
	f.joinNew(t, "alice", "general")
	_, other := f.joinNew(t, "carol", "random")

	f.b.Broadcast(mustMessage(t, "alice", "general", "hi"))
	assert.Empty(t, other.Frames())
}

func TestBroadcastOrderingPerSender(t *testing.T) {
	f := newBcastFixture()
	f.joinNew(t, "alice", "general")
	_, connB := f.joinNew(t, "bob", "general")

	f.b.Broadcast(mustMessage(t, "alice", "general", "first"))
	f.b.Broadcast(mustMessage(t, "alice", "general", "second"))

	frames := connB.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "first", decodeEvent(t, frames[0])["content"])
	assert.Equal(t, "second", decodeEvent(t, frames[1])["content"])
}

func TestBroadcastIsolatesFailedPush(t *testing.T) {
	f := newBcastFixture()
	_, connA := f.joinNew(t, "alice", "general")
	cidB, connB := f.joinNew(t, "bob", "general")
	_, connC := f.joinNew(t, "carol", "general")
	connB.fail = true

	res := f.b.Broadcast(mustMessage(t, "alice", "general", "hi"))
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, []core.ConnID{cidB}, res.Dropped)

	require.Len(t, connA.Frames(), 1)
	require.Len(t, connC.Frames(), 1)
	assert.Empty(t, connB.Frames())
}

func TestBroadcastSnapshotSemantics(t *testing.T) {
	f := newBcastFixture()
	f.joinNew(t, "alice", "general")

	// registered but joins only after the broadcast ran
	late := &fakeConn{}
	cid := f.reg.Register(testUser("dave"), late, nil)

	f.b.Broadcast(mustMessage(t, "alice", "general", "hi"))
	require.NoError(t, f.rooms.Join(context.Background(), cid, testUser("dave"), "general"))

	assert.Empty(t, late.Frames())
}

func TestPublishExcludesConnection(t *testing.T) {
	f := newBcastFixture()
	cidA, connA := f.joinNew(t, "alice", "general")
	_, connB := f.joinNew(t, "bob", "general")

	f.b.Publish("general", map[string]any{"type": "member-joined"}, cidA)

	assert.Empty(t, connA.Frames())
	require.Len(t, connB.Frames(), 1)
}
