package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
)

type connEntry struct {
	User   *domain.User
	Signal core.SignalConnection
	Cancel context.CancelFunc

	// closed marks the connection as draining: lookups fail, so no
	// new room joins can land while rooms are being evicted.
	closed bool
}

// Registry tracks every live connection, its authenticated identity and
// its transport endpoint. It is the single owner of the conn table.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*connEntry)}
}

// Register records an authenticated connection and returns its id.
// Identity verification happens before this call, in the gateway.
func (r *Registry) Register(user *domain.User, sig core.SignalConnection, cancel context.CancelFunc) core.ConnID {
	cid := core.ConnID(uuid.NewString())
	r.mu.Lock()
	r.conns[cid] = &connEntry{User: user, Signal: sig, Cancel: cancel}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(user.ID)).Msg("connection registered")
	return cid
}

// Identity returns the connection's authenticated user.
func (r *Registry) Identity(cid core.ConnID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.closed {
		return nil, false
	}
	return e.User, true
}

// SignalOf returns the transport endpoint used to push outbound frames.
func (r *Registry) SignalOf(cid core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil, false
	}
	return e.Signal, true
}

// Alive reports whether the connection is registered and not draining.
// The room manager checks it under its own lock so that a join cannot
// land after eviction has started.
func (r *Registry) Alive(cid core.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	return ok && !e.closed
}

// MarkClosed begins teardown: the connection stays resolvable for
// outbound pushes but Identity/Alive fail from now on. Idempotent.
func (r *Registry) MarkClosed(cid core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok || e.closed {
		return false
	}
	e.closed = true
	return true
}

// Remove drops the connection entirely and cancels its context.
// Idempotent; room eviction must have happened already.
func (r *Registry) Remove(cid core.ConnID) {
	r.mu.Lock()
	e, ok := r.conns[cid]
	delete(r.conns, cid)
	r.mu.Unlock()
	if !ok {
		return
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("connection removed")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
