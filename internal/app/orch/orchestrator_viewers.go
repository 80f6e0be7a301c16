package orch

import (
	"github.com/dkeye/Broadcast/internal/app/peer"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var publisherRole = string(domain.RolePublisher)

// OnViewerJoined replaces any live session for id and starts a fresh offer.
// Transports are created and closed outside mu.
func (o *Orchestrator) OnViewerJoined(id domain.PeerID) {
	if !o.live() {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("viewer joined before start or after stop")
		return
	}

	conn, err := o.Transport.NewConnection(id)
	if err != nil {
		metrics.NegotiationFailuresTotal.WithLabelValues(publisherRole).Inc()
		log.Error().Str("module", "orch").Str("peer", string(id)).Err(err).Msg("create media connection")
		return
	}

	o.mu.Lock()
	if o.stopped || o.source == nil {
		o.mu.Unlock()
		_ = conn.Close()
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("broadcast stopped while connecting")
		return
	}
	var stale *peer.Session
	if prev, ok := o.Registry.Get(id); ok {
		log.Info().Str("module", "orch").Str("peer", string(id)).Msg("replacing stale session")
		o.removeLocked(id, prev)
		stale = prev
	}

	s := peer.New(id, domain.RolePublisher, conn, peer.Hooks{
		Emit:   o.Channel.Send,
		Failed: o.onSessionFailed,
	})
	o.Registry.Put(id, s)
	metrics.PeerSessionsCreatedTotal.WithLabelValues(publisherRole).Inc()
	metrics.ActivePeerSessions.WithLabelValues(publisherRole).Inc()

	s.Offer(o.source.Tracks())
	o.notifyCount(o.Registry.Len())
	o.mu.Unlock()

	closeSession(stale)
}

// OnAnswer applies a viewer's answer. Unknown viewers are ignored.
func (o *Orchestrator) OnAnswer(id domain.PeerID, d webrtc.SessionDescription) {
	s, ok := o.Registry.Get(id)
	if !ok {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("answer for unknown session")
		return
	}
	s.ApplyAnswer(d)
}

// OnCandidate applies or buffers a viewer's candidate. Unknown viewers are ignored.
func (o *Orchestrator) OnCandidate(id domain.PeerID, c webrtc.ICECandidateInit) {
	s, ok := o.Registry.Get(id)
	if !ok {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("candidate for unknown session")
		return
	}
	s.AddCandidate(c)
}

// OnPeerLeft tears down the viewer's session. It is a no-op for unknown viewers.
func (o *Orchestrator) OnPeerLeft(id domain.PeerID) {
	o.mu.Lock()
	s, ok := o.Registry.Get(id)
	if !ok {
		o.mu.Unlock()
		return
	}
	o.removeLocked(id, s)
	o.mu.Unlock()

	closeSession(s)
	log.Info().Str("module", "orch").Str("peer", string(id)).Msg("viewer left")
}

func (o *Orchestrator) onSessionFailed(s *peer.Session, err error) {
	metrics.NegotiationFailuresTotal.WithLabelValues(publisherRole).Inc()
	log.Warn().Str("module", "orch").Str("peer", string(s.ID())).Err(err).Msg("tearing down failed session")

	o.mu.Lock()
	o.removeLocked(s.ID(), s)
	o.mu.Unlock()

	closeSession(s)
}

func (o *Orchestrator) live() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.stopped && o.source != nil
}

// removeLocked drops s from the registry if it is still the session for id.
func (o *Orchestrator) removeLocked(id domain.PeerID, s *peer.Session) {
	if o.Registry.Remove(id, s) {
		o.notifyCount(o.Registry.Len())
	}
}

func closeSession(s *peer.Session) {
	if s != nil && s.Close() {
		sessionClosed()
	}
}

func sessionClosed() {
	metrics.ActivePeerSessions.WithLabelValues(publisherRole).Dec()
}
