// Package viewer drives the receiving side of a broadcast: exactly one
// inbound peer session, replaced whenever the publisher sends a new offer.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/app/peer"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrChannel = errors.New("signaling channel failed")

var viewerRole = string(domain.RoleViewer)

type Controller struct {
	transport core.MediaTransport
	channel   core.SignalChannel
	surface   core.ViewerSurface
	room      domain.RoomName

	mu        sync.Mutex
	session   *peer.Session
	publisher domain.PeerID
	status    domain.ViewerStatus
	muted     bool
	stopped   bool
}

// New returns a controller that starts muted and connecting.
func New(transport core.MediaTransport, channel core.SignalChannel, surface core.ViewerSurface, room domain.RoomName) *Controller {
	return &Controller{
		transport: transport,
		channel:   channel,
		surface:   surface,
		room:      room,
		status:    domain.ViewerConnecting,
		muted:     true,
	}
}

// Start registers as a watcher of the room.
func (c *Controller) Start(_ context.Context) error {
	c.surface.SetMuted(c.Muted())
	c.surface.StatusChanged(c.Status())
	if err := c.channel.Send(protocol.Watcher(c.room)); err != nil {
		err = fmt.Errorf("%w: %w", ErrChannel, err)
		c.surface.Fatal(err)
		c.Stop()
		return err
	}
	log.Info().Str("module", "viewer").Str("room", string(c.room)).Msg("watching")
	return nil
}

// Handle dispatches one inbound signaling message.
func (c *Controller) Handle(m protocol.Message) {
	if err := m.Validate(); err != nil {
		log.Warn().Str("module", "viewer").Err(err).Msg("dropping invalid message")
		return
	}
	switch m.Type {
	case protocol.KindOffer:
		c.OnOffer(m.PeerID, *m.Description)
	case protocol.KindCandidate:
		c.OnCandidate(m.PeerID, *m.Candidate)
	case protocol.KindPeerLeft:
		c.OnPeerLeft(m.PeerID)
	case protocol.KindWelcome:
		log.Info().Str("module", "viewer").Str("peer", string(m.PeerID)).Msg("signaling identity assigned")
	case protocol.KindError:
		log.Warn().Str("module", "viewer").Str("error", m.Error).Msg("signaling server error")
	case protocol.KindPong:
	default:
		log.Debug().Str("module", "viewer").Str("type", string(m.Type)).Msg("ignored message")
	}
}

// OnOffer replaces any prior negotiation with a new session answering d.
func (c *Controller) OnOffer(id domain.PeerID, d webrtc.SessionDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.session != nil {
		log.Info().Str("module", "viewer").Str("peer", string(id)).Msg("offer replaces current session")
		c.teardownLocked()
	}

	conn, err := c.transport.NewConnection(id)
	if err != nil {
		metrics.NegotiationFailuresTotal.WithLabelValues(viewerRole).Inc()
		log.Error().Str("module", "viewer").Err(err).Msg("create media connection")
		c.setStatusLocked(domain.ViewerDisconnected)
		return
	}
	s := peer.New(id, domain.RoleViewer, conn, peer.Hooks{
		Emit:   c.channel.Send,
		Failed: c.onSessionFailed,
		Track:  c.onTrack,
	})
	c.session = s
	c.publisher = id
	metrics.PeerSessionsCreatedTotal.WithLabelValues(viewerRole).Inc()
	metrics.ActivePeerSessions.WithLabelValues(viewerRole).Inc()

	c.setStatusLocked(domain.ViewerConnecting)
	s.Accept(d)
}

// OnCandidate applies or buffers a candidate from the current publisher.
func (c *Controller) OnCandidate(id domain.PeerID, cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	s, from := c.session, c.publisher
	c.mu.Unlock()
	if s == nil || from != id {
		log.Debug().Str("module", "viewer").Str("peer", string(id)).Msg("candidate for unknown session")
		return
	}
	s.AddCandidate(cand)
}

// OnPeerLeft ends the broadcast when the departing peer is the current publisher.
func (c *Controller) OnPeerLeft(id domain.PeerID) {
	c.mu.Lock()
	current := c.publisher
	c.mu.Unlock()
	if current != "" && current != id {
		return
	}
	c.OnBroadcastEnded()
}

// OnBroadcastEnded tears the session down regardless of its state.
// A later offer starts a new session.
func (c *Controller) OnBroadcastEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.setStatusLocked(domain.ViewerDisconnected)
	log.Info().Str("module", "viewer").Msg("broadcast ended")
}

// ToggleMute flips local playback muting and returns the new value.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	c.mu.Unlock()
	c.surface.SetMuted(muted)
	return muted
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Controller) Status() domain.ViewerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State is the negotiation state of the current session, closed when there is none.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return domain.StateClosed
	}
	return s.State()
}

// Stop tears down the session and closes the channel. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.teardownLocked()
	c.setStatusLocked(domain.ViewerDisconnected)
	c.mu.Unlock()

	if err := c.channel.Close(); err != nil {
		log.Warn().Str("module", "viewer").Err(err).Msg("closing signaling channel")
	}
}

// OnChannelClosed reports a channel that dropped on its own and stops the controller.
func (c *Controller) OnChannelClosed(err error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	c.surface.Fatal(fmt.Errorf("%w: %w", ErrChannel, err))
	c.Stop()
}

func (c *Controller) onTrack(s *peer.Session, t core.RemoteTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	log.Info().
		Str("module", "viewer").
		Str("kind", t.Kind().String()).
		Str("track", t.ID()).
		Msg("inbound track")
	c.surface.AttachTrack(t)
	c.setStatusLocked(domain.ViewerConnected)
}

func (c *Controller) onSessionFailed(s *peer.Session, err error) {
	metrics.NegotiationFailuresTotal.WithLabelValues(viewerRole).Inc()
	log.Warn().Str("module", "viewer").Err(err).Msg("tearing down failed session")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		if s.Close() {
			metrics.ActivePeerSessions.WithLabelValues(viewerRole).Dec()
		}
		return
	}
	c.teardownLocked()
	c.setStatusLocked(domain.ViewerDisconnected)
}

func (c *Controller) teardownLocked() {
	if c.session == nil {
		return
	}
	if c.session.Close() {
		metrics.ActivePeerSessions.WithLabelValues(viewerRole).Dec()
	}
	c.session = nil
	c.publisher = ""
	c.surface.DetachAll()
}

func (c *Controller) setStatusLocked(st domain.ViewerStatus) {
	if c.status == st {
		return
	}
	c.status = st
	c.surface.StatusChanged(st)
}
