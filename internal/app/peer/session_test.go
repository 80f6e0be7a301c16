package peer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/app/apptest"
	"github.com/dkeye/Broadcast/internal/app/peer"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	conn   *apptest.Connection
	ch     *apptest.Channel
	s      *peer.Session
	mu     sync.Mutex
	failed []error
	tracks []core.RemoteTrack
}

func newHarness(t *testing.T, role domain.Role, prepare func(*apptest.Connection)) *harness {
	t.Helper()
	h := &harness{conn: apptest.NewConnection("v1"), ch: &apptest.Channel{}}
	if prepare != nil {
		prepare(h.conn)
	}
	h.s = peer.New("v1", role, h.conn, peer.Hooks{
		Emit: h.ch.Send,
		Failed: func(_ *peer.Session, err error) {
			h.mu.Lock()
			h.failed = append(h.failed, err)
			h.mu.Unlock()
		},
		Track: func(_ *peer.Session, tr core.RemoteTrack) {
			h.mu.Lock()
			h.tracks = append(h.tracks, tr)
			h.mu.Unlock()
		},
	})
	t.Cleanup(func() { h.s.Close() })
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.s.Wait(ctx))
}

func (h *harness) failures() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.failed...)
}

func answer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
}

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestOfferAttachesTracksAndAwaitsAnswer(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	src := apptest.NewSource()

	require.True(t, h.s.Offer(src.Tracks()))
	h.wait(t)

	assert.Equal(t, domain.StateAwaitingAnswer, h.s.State())
	assert.Len(t, h.conn.Tracks(), 2)
	require.NotNil(t, h.conn.Local())

	offers := h.ch.SentOf(protocol.KindOffer, "v1")
	require.Len(t, offers, 1)
	assert.Equal(t, h.conn.Local().SDP, offers[0].Description.SDP)

	local, ok := h.s.LocalDescription()
	require.True(t, ok)
	assert.Equal(t, webrtc.SDPTypeOffer, local.Type)
	assert.Equal(t, offers[0].Description.SDP, local.SDP)
	_, ok = h.s.RemoteDescription()
	assert.False(t, ok)

	h.s.ApplyAnswer(answer("a1"))
	h.wait(t)
	remote, ok := h.s.RemoteDescription()
	require.True(t, ok)
	assert.Equal(t, answer("a1"), remote)
}

func TestCandidatesBeforeAnswerAreFlushedInOrder(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	h.s.Offer(nil)
	h.s.AddCandidate(cand("c1"))
	h.s.AddCandidate(cand("c2"))
	h.wait(t)

	assert.Equal(t, 2, h.s.PendingCandidates())
	assert.Empty(t, h.conn.Candidates())

	h.s.ApplyAnswer(answer("a1"))
	h.s.AddCandidate(cand("c3"))
	h.wait(t)

	assert.Equal(t, domain.StateConnecting, h.s.State())
	assert.Zero(t, h.s.PendingCandidates())
	assert.Equal(t, []string{"c1", "c2", "c3"}, h.conn.Candidates())
	assert.Empty(t, h.failures())
}

func TestDuplicateAnswerIsIgnored(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	h.s.Offer(nil)
	h.s.ApplyAnswer(answer("a1"))
	h.s.ApplyAnswer(answer("a2"))
	h.wait(t)

	assert.Equal(t, "a1", h.conn.Remote().SDP)
	assert.Equal(t, domain.StateConnecting, h.s.State())
	assert.Empty(t, h.failures())
}

func TestAnswerBeforeOfferIsIgnored(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	h.s.ApplyAnswer(answer("early"))
	h.wait(t)

	assert.Nil(t, h.conn.Remote())
	assert.Equal(t, domain.StateIdle, h.s.State())
}

func TestCloseIsIdempotentAndStopsEvents(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	h.s.Offer(nil)
	h.s.AddCandidate(cand("c1"))
	h.wait(t)

	assert.True(t, h.s.Close())
	assert.False(t, h.s.Close())
	assert.True(t, h.conn.Closed())
	assert.Equal(t, domain.StateClosed, h.s.State())
	assert.Zero(t, h.s.PendingCandidates())

	assert.False(t, h.s.ApplyAnswer(answer("late")))
	assert.False(t, h.s.AddCandidate(cand("late")))
	assert.ErrorIs(t, h.s.Wait(context.Background()), peer.ErrClosed)
	assert.Nil(t, h.conn.Remote())
}

func TestCloseDuringInFlightStepIsNotAFailure(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, domain.RolePublisher, func(c *apptest.Connection) { c.RemoteGate = gate })
	h.s.Offer(nil)
	h.wait(t)

	h.s.ApplyAnswer(answer("a1"))
	h.s.Close()

	assert.Equal(t, domain.StateClosed, h.s.State())
	assert.Never(t, func() bool { return len(h.failures()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Nil(t, h.conn.Remote())
}

func TestNegotiationFailureReportsToOwner(t *testing.T) {
	boom := errors.New("boom")
	h := newHarness(t, domain.RolePublisher, func(c *apptest.Connection) { c.OfferErr = boom })
	h.s.Offer(nil)
	h.wait(t)

	errs := h.failures()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Empty(t, h.ch.Sent())
}

func TestLocalCandidatesFollowTheOffer(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	h.conn.GatherCandidate("early")
	h.s.Offer(nil)
	h.wait(t)
	h.conn.GatherCandidate("late")

	sent := h.ch.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, protocol.KindOffer, sent[0].Type)
	assert.Equal(t, "early", sent[1].Candidate.Candidate)
	assert.Equal(t, "late", sent[2].Candidate.Candidate)
	for _, m := range sent {
		assert.Equal(t, domain.PeerID("v1"), m.PeerID)
	}
}

func TestAcceptAnswersAndConnectsOnFirstTrack(t *testing.T) {
	h := newHarness(t, domain.RoleViewer, nil)
	h.s.AddCandidate(cand("c0"))
	h.s.Accept(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o1"})
	h.wait(t)

	assert.Equal(t, domain.StateConnecting, h.s.State())
	assert.Equal(t, []string{"c0"}, h.conn.Candidates())
	answers := h.ch.SentOf(protocol.KindAnswer, "v1")
	require.Len(t, answers, 1)

	remote, ok := h.s.RemoteDescription()
	require.True(t, ok)
	assert.Equal(t, "o1", remote.SDP)
	local, ok := h.s.LocalDescription()
	require.True(t, ok)
	assert.Equal(t, webrtc.SDPTypeAnswer, local.Type)
	assert.Equal(t, answers[0].Description.SDP, local.SDP)

	h.conn.DeliverTrack(apptest.NewRemoteTrack("video", webrtc.RTPCodecTypeVideo))
	h.wait(t)

	assert.Equal(t, domain.StateConnected, h.s.State())
	h.mu.Lock()
	assert.Len(t, h.tracks, 1)
	h.mu.Unlock()
}

func TestPublisherConnectivityFromTransportState(t *testing.T) {
	h := newHarness(t, domain.RolePublisher, nil)
	h.s.Offer(nil)
	h.s.ApplyAnswer(answer("a1"))
	h.wait(t)

	h.conn.SetState(webrtc.PeerConnectionStateDisconnected)
	h.wait(t)
	assert.Equal(t, domain.StateConnecting, h.s.State())

	h.conn.SetState(webrtc.PeerConnectionStateConnected)
	h.wait(t)
	assert.Equal(t, domain.StateConnected, h.s.State())

	h.conn.SetState(webrtc.PeerConnectionStateFailed)
	h.wait(t)
	errs := h.failures()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], peer.ErrTransportFailed)
}
