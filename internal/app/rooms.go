package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/collab"
	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
)

// Rooms is the single mutation authority for room membership. It keeps
// both sides of the membership relation (room -> conns, conn -> rooms)
// under one lock, so the bidirectional invariant holds at every point
// an observer can reach.
type Rooms struct {
	authority collab.Authority

	// alive is consulted under the lock so that a join racing a
	// disconnect cannot resurrect membership after EvictAll.
	alive func(core.ConnID) bool

	mu      sync.RWMutex
	members map[domain.RoomID]map[core.ConnID]struct{}
	joined  map[core.ConnID]map[domain.RoomID]struct{}
}

func NewRooms(authority collab.Authority, alive func(core.ConnID) bool) *Rooms {
	return &Rooms{
		authority: authority,
		alive:     alive,
		members:   make(map[domain.RoomID]map[core.ConnID]struct{}),
		joined:    make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join adds the connection to the room after an authority check.
// Idempotent: re-joining an already-joined room is a no-op success.
func (r *Rooms) Join(ctx context.Context, cid core.ConnID, user *domain.User, room domain.RoomID) error {
	allowed, err := r.authorized(ctx, user, room)
	if err != nil {
		return err
	}
	if !allowed {
		log.Warn().Str("module", "app.rooms").Str("cid", string(cid)).Str("room", string(room)).Msg("join refused")
		return core.ErrNotAuthorized
	}

	return r.joinUnchecked(cid, room)
}

// joinUnchecked records membership without an authority round-trip.
// Video presence rooms use it once the channel check has passed.
func (r *Rooms) joinUnchecked(cid core.ConnID, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.alive != nil && !r.alive(cid) {
		return core.ErrNotFound
	}
	if r.members[room] == nil {
		r.members[room] = make(map[core.ConnID]struct{})
	}
	if r.joined[cid] == nil {
		r.joined[cid] = make(map[domain.RoomID]struct{})
	}
	r.members[room][cid] = struct{}{}
	r.joined[cid][room] = struct{}{}
	log.Info().Str("module", "app.rooms").Str("cid", string(cid)).Str("room", string(room)).Msg("member joined")
	return nil
}

// authorized resolves membership rights outside the lock; the authority
// call may suspend on an external collaborator.
func (r *Rooms) authorized(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error) {
	super, err := r.authority.IsSuperAdmin(ctx, user)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	return r.authority.IsMember(ctx, user, room)
}

// Leave removes the connection from the room. Idempotent.
func (r *Rooms) Leave(cid core.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(cid, room)
}

// drop must be called with the lock held.
func (r *Rooms) drop(cid core.ConnID, room domain.RoomID) {
	if set, ok := r.members[room]; ok {
		delete(set, cid)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if set, ok := r.joined[cid]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(r.joined, cid)
		}
	}
}

// MembersOf returns a snapshot of the room's member set. Later joins
// and leaves do not affect the returned slice.
func (r *Rooms) MembersOf(room domain.RoomID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.members[room]
	out := make([]core.ConnID, 0, len(set))
	for cid := range set {
		out = append(out, cid)
	}
	return out
}

// RoomsOf returns a snapshot of the rooms the connection has joined.
func (r *Rooms) RoomsOf(cid core.ConnID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.joined[cid]
	out := make([]domain.RoomID, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	return out
}

// Joined reports current membership of one connection in one room.
func (r *Rooms) Joined(cid core.ConnID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][cid]
	return ok
}

// EvictAll removes the connection from every room in one logical step
// and returns the rooms it was evicted from.
func (r *Rooms) EvictAll(cid core.ConnID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.joined[cid]
	out := make([]domain.RoomID, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	for _, room := range out {
		r.drop(cid, room)
	}
	if len(out) > 0 {
		log.Info().Str("module", "app.rooms").Str("cid", string(cid)).Int("rooms", len(out)).Msg("evicted from all rooms")
	}
	return out
}

// List reports every non-empty room with its member count.
func (r *Rooms) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.members))
	for room, set := range r.members {
		out = append(out, core.RoomInfo{ID: room, MemberCount: len(set)})
	}
	return out
}
