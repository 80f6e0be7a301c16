package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Broadcast/internal/app/peer"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps viewer identities to their live peer sessions on the publisher side.
// At most one session exists per viewer.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*peer.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.PeerID]*peer.Session)}
}

// Put stores s under id and returns the session it replaced, if any.
func (r *Registry) Put(id domain.PeerID, s *peer.Session) (*peer.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.sessions[id]
	r.sessions[id] = s
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Bool("replaced", ok).Msg("bound session")
	return prev, ok
}

func (r *Registry) Get(id domain.PeerID) (*peer.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes id only while it still maps to s, so a stale teardown
// never evicts a newer session for a reused identity.
func (r *Registry) Remove(id domain.PeerID, s *peer.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[id]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("unbind session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the registered identities in sorted order.
func (r *Registry) IDs() []domain.PeerID {
	r.mu.RLock()
	out := make([]domain.PeerID, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Drain empties the registry and returns what it held.
func (r *Registry) Drain() map[domain.PeerID]*peer.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sessions
	r.sessions = make(map[domain.PeerID]*peer.Session)
	return out
}
