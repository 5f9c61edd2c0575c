// Package peers is a minimal rendezvous service for call negotiation.
// It issues peer identifiers and routes opaque payloads between two
// identified peers. It never interprets offer/answer semantics and
// takes no part in media.
package peers

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/metrics"
)

type PeerID string

type State int

const (
	Allocated State = iota
	Paired
	Ended
)

type session struct {
	id     PeerID
	owner  core.ConnID
	sig    core.SignalConnection
	state  State
	remote PeerID
}

// Relay owns the active session table. One session per connection: a
// re-allocation ends the previous session first.
type Relay struct {
	mu       sync.Mutex
	sessions map[PeerID]*session
	byOwner  map[core.ConnID]PeerID
}

func NewRelay() *Relay {
	return &Relay{
		sessions: make(map[PeerID]*session),
		byOwner:  make(map[core.ConnID]PeerID),
	}
}

// Allocate creates a session and returns its peer id. The id space is
// uuid-sized, so collisions among active sessions are negligible.
func (r *Relay) Allocate(owner core.ConnID, sig core.SignalConnection) PeerID {
	r.mu.Lock()
	if prev, ok := r.byOwner[owner]; ok {
		r.endLocked(prev)
	}
	id := PeerID(uuid.NewString())
	r.sessions[id] = &session{id: id, owner: owner, sig: sig, state: Allocated}
	r.byOwner[owner] = id
	r.mu.Unlock()

	metrics.PeersActive.Inc()
	log.Info().Str("module", "peers").Str("peer", string(id)).Str("cid", string(owner)).Msg("peer allocated")
	return id
}

type signalEvent struct {
	Type    string          `json:"type"`
	From    PeerID          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Relay forwards the payload unchanged to the target peer's transport.
// The from id is taken as declared; it does not need an active session
// of its own, but when it has one the two sessions become paired.
func (r *Relay) Relay(from, to PeerID, payload json.RawMessage) error {
	r.mu.Lock()
	target, ok := r.sessions[to]
	if !ok {
		r.mu.Unlock()
		return core.ErrPeerNotFound
	}
	if caller, ok := r.sessions[from]; ok {
		caller.state = Paired
		caller.remote = to
		target.state = Paired
		target.remote = from
	}
	sig := target.sig
	r.mu.Unlock()

	frame, err := json.Marshal(signalEvent{Type: "call-signal", From: from, Payload: payload})
	if err != nil {
		return err
	}
	if err := sig.TrySend(frame); err != nil {
		return err
	}
	metrics.SignalsRelayed.Inc()
	return nil
}

// Release ends the session. A paired remote gets a best-effort
// call-ended notification. Idempotent: releasing an unknown or already
// ended id is a no-op.
func (r *Relay) Release(id PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLocked(id)
}

// ReleaseOwned ends the session owned by the connection, if any.
// Called by the gateway on disconnect.
func (r *Relay) ReleaseOwned(owner core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byOwner[owner]; ok {
		r.endLocked(id)
	}
}

// PeerOf returns the connection's active peer id.
func (r *Relay) PeerOf(owner core.ConnID) (PeerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOwner[owner]
	return id, ok
}

func (r *Relay) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// endLocked transitions the session to Ended and drops it from the
// table; there is no transition out of Ended.
func (r *Relay) endLocked(id PeerID) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.state = Ended
	delete(r.sessions, id)
	delete(r.byOwner, s.owner)
	metrics.PeersActive.Dec()

	if remote, ok := r.sessions[s.remote]; ok && remote.remote == id {
		remote.state = Allocated
		remote.remote = ""
		if frame, err := json.Marshal(signalEvent{Type: "call-ended", From: id}); err == nil {
			// fire and forget: the remote may itself be gone
			_ = remote.sig.TrySend(frame)
		}
	}
	log.Info().Str("module", "peers").Str("peer", string(id)).Msg("peer released")
}
