package core

import (
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory broadcast room.
// It never closes adapter-owned resources.
type roomImpl struct {
	name      domain.RoomName
	mu        sync.RWMutex
	publisher MemberSession
	viewers   map[domain.PeerID]MemberSession
}

func NewRoomService(name domain.RoomName) RoomService {
	return &roomImpl{
		name:    name,
		viewers: make(map[domain.PeerID]MemberSession),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := RoomInfo{Name: r.name, ViewerCount: len(r.viewers)}
	if r.publisher != nil {
		info.Live = true
		info.Publisher = r.publisher.ID()
	}
	return info
}

func (r *roomImpl) SetPublisher(ms MemberSession) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.publisher
	r.publisher = ms
	delete(r.viewers, ms.ID())
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(ms.ID())).Msg("publisher set")
	return prev, prev != nil && prev != ms
}

func (r *roomImpl) Publisher() (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher, r.publisher != nil
}

func (r *roomImpl) AddViewer(ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[ms.ID()] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(ms.ID())).Int("viewers", len(r.viewers)).Msg("viewer added")
}

func (r *roomImpl) Viewer(id domain.PeerID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.viewers[id]
	return ms, ok
}

func (r *roomImpl) ViewersSnapshot() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.viewers))
	for _, ms := range r.viewers {
		out = append(out, ms)
	}
	return out
}

func (r *roomImpl) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

func (r *roomImpl) Remove(id domain.PeerID) (domain.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publisher != nil && r.publisher.ID() == id {
		r.publisher = nil
		log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(id)).Msg("publisher removed")
		return domain.RolePublisher, true
	}
	if _, ok := r.viewers[id]; ok {
		delete(r.viewers, id)
		log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(id)).Msg("viewer removed")
		return domain.RoleViewer, true
	}
	return "", false
}

func (r *roomImpl) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher == nil && len(r.viewers) == 0
}
