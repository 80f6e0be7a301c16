// Package peer implements one negotiated media session between the publisher
// and a single viewer. Every negotiation step of a session runs on the
// session's own goroutine in arrival order, so a stalled session never delays
// another one and callers never block on a session.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed          = errors.New("peer session closed")
	ErrTransportFailed = errors.New("transport failed")
)

// Hooks connect a session to its owner. All hooks are optional.
type Hooks struct {
	// Emit sends a signaling message produced by the session.
	Emit func(protocol.Message) error
	// Failed is called when a negotiation step fails. The owner is expected to tear the session down.
	Failed func(s *Session, err error)
	// Track is called for every inbound media track.
	Track func(s *Session, t core.RemoteTrack)
	// Connected is called once, on the transition to connected.
	Connected func(s *Session)
}

type Session struct {
	id     domain.PeerID
	role   domain.Role
	conn   core.MediaConnection
	hooks  Hooks
	logger zerolog.Logger

	mu      sync.Mutex
	state   domain.SessionState
	local   *webrtc.SessionDescription
	remote  *webrtc.SessionDescription
	pending []webrtc.ICECandidateInit
	queue   []func()

	// outbound local candidates are held until the description they belong to has been sent.
	outMu     sync.Mutex
	announced bool
	outbound  []webrtc.ICECandidateInit

	wake chan struct{}
	done chan struct{}
}

// New wraps conn into a session and starts its step loop.
// role is the local role: RolePublisher offers, RoleViewer answers.
func New(id domain.PeerID, role domain.Role, conn core.MediaConnection, hooks Hooks) *Session {
	s := &Session{
		id:    id,
		role:  role,
		conn:  conn,
		hooks: hooks,
		logger: log.With().
			Str("module", "peer").
			Str("sid", string(id)).
			Str("role", string(role)).
			Logger(),
		state: domain.StateIdle,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	conn.OnICECandidate(s.localCandidate)
	conn.OnTrack(func(t core.RemoteTrack) {
		s.enqueue(func() { s.trackArrived(t) })
	})
	conn.OnStateChange(func(st webrtc.PeerConnectionState) {
		s.enqueue(func() { s.transportState(st) })
	})

	go s.run()
	return s
}

func (s *Session) ID() domain.PeerID { return s.id }
func (s *Session) Role() domain.Role { return s.role }

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Closed() bool {
	return s.State() == domain.StateClosed
}

// PendingCandidates is the number of remote candidates waiting for the remote description.
func (s *Session) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) LocalDescription() (webrtc.SessionDescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return webrtc.SessionDescription{}, false
	}
	return *s.local, true
}

func (s *Session) RemoteDescription() (webrtc.SessionDescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return webrtc.SessionDescription{}, false
	}
	return *s.remote, true
}

// Offer attaches tracks and starts the offer side of the negotiation.
func (s *Session) Offer(tracks []webrtc.TrackLocal) bool {
	return s.enqueue(func() { s.offer(tracks) })
}

// ApplyAnswer applies the viewer's answer. Answers outside awaiting-answer are ignored.
func (s *Session) ApplyAnswer(d webrtc.SessionDescription) bool {
	return s.enqueue(func() { s.applyAnswer(d) })
}

// Accept applies a publisher offer and answers it.
func (s *Session) Accept(offer webrtc.SessionDescription) bool {
	return s.enqueue(func() { s.accept(offer) })
}

// AddCandidate applies c, or buffers it until the remote description is set.
func (s *Session) AddCandidate(c webrtc.ICECandidateInit) bool {
	return s.enqueue(func() { s.addCandidate(c) })
}

// Wait blocks until every step enqueued before the call has run.
func (s *Session) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	if !s.enqueue(func() { close(ch) }) {
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the transport and discards buffered candidates.
// It reports false when the session was already closed.
func (s *Session) Close() bool {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = domain.StateClosed
	s.pending = nil
	s.queue = nil
	s.mu.Unlock()

	close(s.done)
	s.outMu.Lock()
	s.outbound = nil
	s.outMu.Unlock()

	if err := s.conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("transport close error")
	}
	s.logger.Info().Str("from", prev.String()).Msg("session closed")
	return true
}

func (s *Session) enqueue(step func()) bool {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, step)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.state == domain.StateClosed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			step := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()

			step()
		}
	}
}

// advance moves from -> to. It fails when the session left from in the meantime.
func (s *Session) advance(from, to domain.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	return true
}

func (s *Session) offer(tracks []webrtc.TrackLocal) {
	if s.State() != domain.StateIdle {
		s.logger.Debug().Msg("offer: session already negotiated")
		return
	}
	for _, t := range tracks {
		if err := s.conn.AddLocalTrack(t); err != nil {
			s.fail("attach track", err)
			return
		}
	}
	if !s.advance(domain.StateIdle, domain.StateNegotiatingOffer) {
		return
	}

	desc, err := s.conn.GenerateOffer()
	if err != nil {
		s.fail("generate offer", err)
		return
	}
	if err := s.conn.SetLocalDescription(desc); err != nil {
		s.fail("apply local offer", err)
		return
	}

	s.mu.Lock()
	if s.state != domain.StateNegotiatingOffer {
		s.mu.Unlock()
		return
	}
	s.local = &desc
	s.state = domain.StateAwaitingAnswer
	s.mu.Unlock()

	s.announce(protocol.Offer(s.id, desc))
	s.logger.Info().Msg("offer sent")
}

func (s *Session) applyAnswer(d webrtc.SessionDescription) {
	if st := s.State(); st != domain.StateAwaitingAnswer {
		s.logger.Debug().Str("state", st.String()).Msg("answer ignored")
		return
	}
	if err := s.conn.SetRemoteDescription(d); err != nil {
		s.fail("apply answer", err)
		return
	}

	s.mu.Lock()
	if s.state != domain.StateAwaitingAnswer {
		s.mu.Unlock()
		return
	}
	s.remote = &d
	s.state = domain.StateConnecting
	s.mu.Unlock()

	s.logger.Info().Msg("answer applied")
	s.flushCandidates()
}

func (s *Session) accept(offer webrtc.SessionDescription) {
	if st := s.State(); st != domain.StateIdle {
		s.logger.Debug().Str("state", st.String()).Msg("offer ignored")
		return
	}
	if err := s.conn.SetRemoteDescription(offer); err != nil {
		s.fail("apply offer", err)
		return
	}

	s.mu.Lock()
	if s.state != domain.StateIdle {
		s.mu.Unlock()
		return
	}
	s.remote = &offer
	s.mu.Unlock()

	s.flushCandidates()

	answer, err := s.conn.GenerateAnswer()
	if err != nil {
		s.fail("generate answer", err)
		return
	}
	if err := s.conn.SetLocalDescription(answer); err != nil {
		s.fail("apply local answer", err)
		return
	}

	s.mu.Lock()
	if s.state != domain.StateIdle {
		s.mu.Unlock()
		return
	}
	s.local = &answer
	s.state = domain.StateConnecting
	s.mu.Unlock()

	s.announce(protocol.Answer(s.id, answer))
	s.logger.Info().Msg("answer sent")
}

func (s *Session) addCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return
	}
	if s.remote == nil {
		s.pending = append(s.pending, c)
		n := len(s.pending)
		s.mu.Unlock()
		s.logger.Debug().Int("pending", n).Msg("candidate buffered")
		return
	}
	s.mu.Unlock()
	s.applyCandidate(c)
}

func (s *Session) flushCandidates() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) > 0 {
		s.logger.Debug().Int("count", len(pending)).Msg("flushing buffered candidates")
	}
	for _, c := range pending {
		if s.Closed() {
			return
		}
		s.applyCandidate(c)
	}
}

func (s *Session) applyCandidate(c webrtc.ICECandidateInit) {
	if err := s.conn.AddICECandidate(c); err != nil && !s.Closed() {
		s.logger.Warn().Err(err).Str("candidate", c.Candidate).Msg("add ice candidate")
	}
}

func (s *Session) trackArrived(t core.RemoteTrack) {
	if s.Closed() {
		return
	}
	if s.hooks.Track != nil {
		s.hooks.Track(s, t)
	}
	s.markConnected()
}

func (s *Session) transportState(st webrtc.PeerConnectionState) {
	s.logger.Info().Str("peer_connection_state", st.String()).Msg("transport state")
	switch st {
	case webrtc.PeerConnectionStateConnected:
		// Publisher-side connectivity comes from the transport, viewers wait for media.
		if s.role == domain.RolePublisher {
			s.markConnected()
		}
	case webrtc.PeerConnectionStateFailed:
		s.fail("transport", ErrTransportFailed)
	}
}

func (s *Session) markConnected() {
	if !s.advance(domain.StateConnecting, domain.StateConnected) {
		return
	}
	s.logger.Info().Msg("connected")
	if s.hooks.Connected != nil {
		s.hooks.Connected(s)
	}
}

func (s *Session) fail(op string, err error) {
	if s.Closed() {
		return
	}
	s.logger.Warn().Err(err).Str("op", op).Msg("negotiation failed")
	if s.hooks.Failed != nil {
		s.hooks.Failed(s, fmt.Errorf("%s: %w", op, err))
	}
}

func (s *Session) localCandidate(c webrtc.ICECandidateInit) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.Closed() {
		return
	}
	if !s.announced {
		s.outbound = append(s.outbound, c)
		return
	}
	s.emit(protocol.Candidate(s.id, c))
}

// announce sends the local description, then every local candidate gathered before it.
func (s *Session) announce(m protocol.Message) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	s.emit(m)
	s.announced = true
	for _, c := range s.outbound {
		s.emit(protocol.Candidate(s.id, c))
	}
	s.outbound = nil
}

func (s *Session) emit(m protocol.Message) {
	if s.hooks.Emit == nil {
		return
	}
	if err := s.hooks.Emit(m); err != nil {
		s.logger.Warn().Err(err).Str("type", string(m.Type)).Msg("emit failed")
	}
}
