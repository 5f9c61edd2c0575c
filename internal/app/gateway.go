package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/collab"
	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
	"github.com/hivechat/relay/internal/metrics"
	"github.com/hivechat/relay/internal/peers"
)

// Gateway is the composition root of the realtime layer. The transport
// adapter calls into it; it never touches the websocket itself.
type Gateway struct {
	Registry  *Registry
	Rooms     *Rooms
	Broadcast *Broadcaster
	Peers     *peers.Relay
	Verifier  collab.Verifier
	Store     collab.MessageStore
	Policy    Policy
}

func NewGateway(verifier collab.Verifier, authority collab.Authority, store collab.MessageStore) *Gateway {
	reg := NewRegistry()
	rooms := NewRooms(authority, reg.Alive)
	return &Gateway{
		Registry:  reg,
		Rooms:     rooms,
		Broadcast: &Broadcaster{Rooms: rooms, Registry: reg},
		Peers:     peers.NewRelay(),
		Verifier:  verifier,
		Store:     store,
		Policy:    SimplePolicy{},
	}
}

// Register authenticates the handshake token and records the
// connection. On verification failure nothing is registered.
func (g *Gateway) Register(ctx context.Context, token string, sig core.SignalConnection, cancel context.CancelFunc) (core.ConnID, *domain.User, error) {
	user, err := g.Verifier.Verify(ctx, token)
	if err != nil {
		metrics.AuthFailures.Inc()
		return "", nil, core.ErrAuthentication
	}
	cid := g.Registry.Register(user, sig, cancel)
	metrics.ConnectionsTotal.Inc()
	metrics.ActiveConnections.Inc()
	return cid, user, nil
}

// Deregister tears the connection down: its peer session is released,
// it is evicted from every room before the entry disappears, and the
// rooms it left see a presence broadcast. Idempotent.
func (g *Gateway) Deregister(cid core.ConnID) {
	user, _ := g.Registry.Identity(cid)
	if !g.Registry.MarkClosed(cid) {
		return
	}
	g.Peers.ReleaseOwned(cid)
	left := g.Rooms.EvictAll(cid)
	g.Registry.Remove(cid)
	metrics.ActiveConnections.Dec()

	if user != nil {
		for _, room := range left {
			g.Broadcast.Publish(room, presenceEvent{Type: "member-left", Room: room, User: *user}, cid)
		}
	}
	log.Info().Str("module", "app.gateway").Str("cid", string(cid)).Msg("deregistered")
}

type presenceEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
	User domain.User   `json:"user"`
}

// JoinRoom checks membership rights and joins. The returned snapshot
// feeds the room-state acknowledgment.
func (g *Gateway) JoinRoom(ctx context.Context, cid core.ConnID, room domain.RoomID) ([]core.MemberDTO, error) {
	user, ok := g.Registry.Identity(cid)
	if !ok {
		return nil, core.ErrNotFound
	}
	already := g.Rooms.Joined(cid, room)
	if err := g.Rooms.Join(ctx, cid, user, room); err != nil {
		return nil, err
	}
	if !already {
		g.Broadcast.Publish(room, presenceEvent{Type: "member-joined", Room: room, User: *user}, cid)
	}
	return g.MembersSnapshot(room), nil
}

// JoinVideoRoom places the connection in the derived presence room;
// rights are checked against the underlying channel.
func (g *Gateway) JoinVideoRoom(ctx context.Context, cid core.ConnID, room domain.RoomID) error {
	user, ok := g.Registry.Identity(cid)
	if !ok {
		return core.ErrNotFound
	}
	allowed, err := g.roomAllowed(ctx, user, room)
	if err != nil {
		return err
	}
	if !allowed {
		return core.ErrNotAuthorized
	}
	// the video room itself is open to anyone admitted to the channel
	return g.Rooms.joinUnchecked(cid, domain.VideoRoom(room))
}

func (g *Gateway) LeaveVideoRoom(cid core.ConnID, room domain.RoomID) {
	g.Rooms.Leave(cid, domain.VideoRoom(room))
}

func (g *Gateway) roomAllowed(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error) {
	return g.Rooms.authorized(ctx, user, room)
}

// LeaveRoom is idempotent; leaving a room never fails.
func (g *Gateway) LeaveRoom(cid core.ConnID, room domain.RoomID) {
	user, ok := g.Registry.Identity(cid)
	joined := g.Rooms.Joined(cid, room)
	g.Rooms.Leave(cid, room)
	if ok && joined {
		g.Broadcast.Publish(room, presenceEvent{Type: "member-left", Room: room, User: *user}, cid)
	}
}

// SendMessage validates, persists best-effort, then broadcasts to the
// room snapshot including the sender. A storage failure is logged and
// broadcast still happens; that matches the system this replaces and
// is recorded as a design note, not a guarantee.
func (g *Gateway) SendMessage(ctx context.Context, cid core.ConnID, room domain.RoomID, content string, kind domain.ContentKind) (*domain.Message, error) {
	user, ok := g.Registry.Identity(cid)
	if !ok {
		return nil, core.ErrNotFound
	}
	if !g.Rooms.Joined(cid, room) {
		return nil, core.ErrNotAuthorized
	}
	msg, err := domain.NewMessage(user, room, content, kind)
	if err != nil {
		return nil, err
	}
	msg.ID = uuid.NewString()

	if err := g.Store.Persist(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.gateway").Str("room", string(room)).Msg("persist failed, broadcasting anyway")
	}

	res := g.Broadcast.Broadcast(msg)
	g.reap(res.Dropped)
	return msg, nil
}

// reap applies the backpressure policy to recipients whose push failed.
func (g *Gateway) reap(dropped []core.ConnID) {
	if g.Policy == nil {
		return
	}
	for _, cid := range dropped {
		switch g.Policy.OnBackPressure(cid) {
		case KickMember:
			if sig, ok := g.Registry.SignalOf(cid); ok {
				sig.Close()
			}
			g.Deregister(cid)
		case MarkSlow, DropFrame, NoAction:
		}
	}
}

// AllocatePeer issues a peer id for the connection.
func (g *Gateway) AllocatePeer(cid core.ConnID) (peers.PeerID, error) {
	sig, ok := g.Registry.SignalOf(cid)
	if !ok {
		return "", core.ErrNotFound
	}
	return g.Peers.Allocate(cid, sig), nil
}

// RelaySignal routes an opaque call payload to the target peer. The
// declared from id defaults to the caller's own session when present.
func (g *Gateway) RelaySignal(cid core.ConnID, from, to peers.PeerID, payload json.RawMessage) error {
	if from == "" {
		if own, ok := g.Peers.PeerOf(cid); ok {
			from = own
		}
	}
	err := g.Peers.Relay(from, to, payload)
	if err != nil && !errors.Is(err, core.ErrPeerNotFound) {
		log.Warn().Err(err).Str("module", "app.gateway").Str("to", string(to)).Msg("relay push failed")
	}
	return err
}

// EndCall releases the connection's peer session, signaling the paired
// remote best-effort.
func (g *Gateway) EndCall(cid core.ConnID) {
	g.Peers.ReleaseOwned(cid)
}

// MembersSnapshot resolves the room's current members to identity DTOs.
func (g *Gateway) MembersSnapshot(room domain.RoomID) []core.MemberDTO {
	cids := g.Rooms.MembersOf(room)
	out := make([]core.MemberDTO, 0, len(cids))
	for _, cid := range cids {
		if u, ok := g.Registry.Identity(cid); ok {
			out = append(out, core.MemberDTO{ID: u.ID, Username: u.Username})
		}
	}
	return out
}
