package signal

import (
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (h *Hub) handlePing(conn *WsSignalConn) {
	h.sendTo(nil, nil, conn, protocol.Message{Type: protocol.KindPong})
}

// roomFor resolves the room named in a registration message.
func (h *Hub) roomFor(conn *WsSignalConn, m protocol.Message) (domain.RoomName, bool) {
	raw := string(m.Room)
	if raw == "" {
		raw = string(conn.room)
	}
	name, err := domain.NormalizeRoomName(raw)
	if err != nil {
		h.sendTo(nil, nil, conn, protocol.Error(err.Error()))
		return "", false
	}
	return name, true
}

// handleBroadcaster makes conn the room's publisher and announces every waiting viewer to it.
// A previous publisher is disconnected and its viewers are told it left.
func (h *Hub) handleBroadcaster(conn *WsSignalConn, m protocol.Message) {
	name, ok := h.roomFor(conn, m)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.role != "" && conn.room != name {
		h.leaveLocked(conn)
	}
	if conn.role == domain.RoleViewer {
		h.leaveLocked(conn)
	}

	room := h.Rooms.GetOrCreate(name)
	me := core.NewMemberSession(conn.id, domain.RolePublisher, conn)
	prev, replaced := room.SetPublisher(me)
	replaced = replaced && prev.ID() != conn.id
	conn.room = name
	if conn.role != domain.RolePublisher {
		metrics.ActiveBroadcasters.Inc()
	}
	conn.role = domain.RolePublisher
	log.Info().Str("module", "signal").Str("sid", string(conn.id)).Str("room", string(name)).Msg("broadcaster registered")

	viewers := room.ViewersSnapshot()
	if replaced {
		log.Info().Str("module", "signal").Str("sid", string(prev.ID())).Str("room", string(name)).Msg("broadcaster replaced")
		metrics.ActiveBroadcasters.Dec()
		for _, v := range viewers {
			h.sendTo(room, v, v.Signal(), protocol.PeerLeft(prev.ID()))
		}
		prev.Signal().Close()
	}
	for _, v := range viewers {
		h.sendTo(room, me, conn, protocol.ViewerJoined(v.ID()))
	}
}

// handleWatcher adds conn as a viewer and announces it to the publisher, if any.
// Registering again re-announces the viewer.
func (h *Hub) handleWatcher(conn *WsSignalConn, m protocol.Message) {
	name, ok := h.roomFor(conn, m)
	if !ok {
		return
	}
	if h.Limiter != nil && !h.Limiter.Allow(conn.key) {
		log.Warn().Str("module", "signal").Str("sid", string(conn.id)).Msg("watcher rate limited")
		h.sendTo(nil, nil, conn, protocol.Error("rate limited"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.role == domain.RolePublisher || (conn.role != "" && conn.room != name) {
		h.leaveLocked(conn)
	}

	room := h.Rooms.GetOrCreate(name)
	me := core.NewMemberSession(conn.id, domain.RoleViewer, conn)
	room.AddViewer(me)
	conn.room = name
	if conn.role != domain.RoleViewer {
		metrics.ActiveWatchers.Inc()
	}
	conn.role = domain.RoleViewer
	log.Info().Str("module", "signal").Str("sid", string(conn.id)).Str("room", string(name)).Msg("watcher registered")

	if pub, ok := room.Publisher(); ok {
		h.sendTo(room, pub, pub.Signal(), protocol.ViewerJoined(conn.id))
	}
}

// handleRoute relays a negotiation message to its addressee, rewriting
// PeerID to the sender. Publishers address viewers and viewers address the publisher.
func (h *Hub) handleRoute(conn *WsSignalConn, m protocol.Message) {
	if conn.role == "" {
		h.sendTo(nil, nil, conn, protocol.Error("not registered"))
		return
	}
	if (m.Type == protocol.KindOffer && conn.role != domain.RolePublisher) ||
		(m.Type == protocol.KindAnswer && conn.role != domain.RoleViewer) {
		log.Warn().Str("module", "signal").Str("sid", string(conn.id)).Str("type", string(m.Type)).Msg("message not allowed for role")
		h.sendTo(nil, nil, conn, protocol.Error(string(m.Type)+" not allowed"))
		return
	}

	room, ok := h.Rooms.Get(conn.room)
	if !ok {
		return
	}
	var target core.MemberSession
	if conn.role == domain.RolePublisher {
		target, ok = room.Viewer(m.PeerID)
	} else {
		target, ok = room.Publisher()
		ok = ok && target.ID() == m.PeerID
	}
	if !ok {
		log.Debug().Str("module", "signal").Str("sid", string(conn.id)).Str("to", string(m.PeerID)).Str("type", string(m.Type)).Msg("addressee gone")
		return
	}

	m.PeerID = conn.id
	m.Room = ""
	h.sendTo(room, target, target.Signal(), m)
}

func (h *Hub) disconnect(conn *WsSignalConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn)
}

// leaveLocked removes conn from its room and tells the other side.
func (h *Hub) leaveLocked(conn *WsSignalConn) {
	if conn.role == "" {
		return
	}
	defer func() { conn.role = "" }()

	room, ok := h.Rooms.Get(conn.room)
	if !ok {
		return
	}
	role, removed := room.Remove(conn.id)
	if !removed {
		// Already replaced by another publisher.
		return
	}
	switch role {
	case domain.RolePublisher:
		metrics.ActiveBroadcasters.Dec()
		for _, v := range room.ViewersSnapshot() {
			h.sendTo(room, v, v.Signal(), protocol.PeerLeft(conn.id))
		}
	case domain.RoleViewer:
		metrics.ActiveWatchers.Dec()
		if pub, ok := room.Publisher(); ok {
			h.sendTo(room, pub, pub.Signal(), protocol.PeerLeft(conn.id))
		}
	}
	if h.Rooms.StopIfEmpty(room.Name()) {
		log.Info().Str("module", "signal").Str("room", string(room.Name())).Msg("room closed")
	}
	log.Info().Str("module", "signal").Str("sid", string(conn.id)).Str("room", string(conn.room)).Str("role", string(role)).Msg("left")
}
