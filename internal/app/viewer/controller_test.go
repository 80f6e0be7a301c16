package viewer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/app/apptest"
	"github.com/dkeye/Broadcast/internal/app/viewer"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const publisher = domain.PeerID("pub")

type fixture struct {
	c         *viewer.Controller
	transport *apptest.Transport
	ch        *apptest.Channel
	surface   *apptest.ViewerSurface
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transport: apptest.NewTransport(),
		ch:        &apptest.Channel{},
		surface:   &apptest.ViewerSurface{},
	}
	f.c = viewer.New(f.transport, f.ch, f.surface, domain.DefaultRoomName)
	t.Cleanup(f.c.Stop)
	return f
}

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func (f *fixture) waitState(t *testing.T, want domain.SessionState) {
	t.Helper()
	require.Eventually(t, func() bool { return f.c.State() == want }, 2*time.Second, 5*time.Millisecond)
}

func (f *fixture) waitAnswer(t *testing.T, id domain.PeerID) {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.ch.SentOf(protocol.KindAnswer, id)) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestStartRegistersAsWatcherMuted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(context.Background()))

	sent := f.ch.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.KindWatcher, sent[0].Type)
	assert.Equal(t, []bool{true}, f.surface.Muted())
	assert.Equal(t, []domain.ViewerStatus{domain.ViewerConnecting}, f.surface.Statuses())
}

func TestStartFailsOnChannel(t *testing.T) {
	f := newFixture(t)
	f.ch.SendErr = errors.New("closed")

	err := f.c.Start(context.Background())
	require.ErrorIs(t, err, viewer.ErrChannel)
	require.Len(t, f.surface.Errors(), 1)
	assert.Equal(t, domain.ViewerDisconnected, f.c.Status())
}

func TestOfferIsAnswered(t *testing.T) {
	f := newFixture(t)
	f.c.OnOffer(publisher, offer("o1"))
	f.waitAnswer(t, publisher)
	assert.Equal(t, domain.StateConnecting, f.c.State())

	answers := f.ch.SentOf(protocol.KindAnswer, publisher)
	require.Len(t, answers, 1)
	assert.Equal(t, webrtc.SDPTypeAnswer, answers[0].Description.Type)
	assert.Equal(t, "o1", f.transport.Last(publisher).Remote().SDP)
	assert.Equal(t, domain.ViewerConnecting, f.c.Status())
}

func TestFirstTrackMarksConnected(t *testing.T) {
	f := newFixture(t)
	f.c.OnOffer(publisher, offer("o1"))
	f.waitState(t, domain.StateConnecting)

	tr := apptest.NewRemoteTrack("video", webrtc.RTPCodecTypeVideo)
	defer tr.Stop()
	f.transport.Last(publisher).DeliverTrack(tr)
	f.waitState(t, domain.StateConnected)

	assert.Equal(t, domain.ViewerConnected, f.c.Status())
	assert.Equal(t, 1, f.surface.Attached())
}

func TestNewOfferReplacesSession(t *testing.T) {
	f := newFixture(t)
	f.c.OnOffer(publisher, offer("o1"))
	f.c.OnOffer(publisher, offer("o2"))
	f.waitState(t, domain.StateConnecting)

	conns := f.transport.Conns(publisher)
	require.Len(t, conns, 2)
	assert.True(t, conns[0].Closed())
	assert.Equal(t, "o2", conns[1].Remote().SDP)
	assert.Equal(t, 1, f.surface.Detached())
}

func TestCandidatesBufferedUntilOfferApplied(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.transport.Prepare = func(c *apptest.Connection) { c.RemoteGate = gate }

	f.c.OnOffer(publisher, offer("o1"))
	f.c.OnCandidate(publisher, webrtc.ICECandidateInit{Candidate: "c1"})
	f.c.OnCandidate("someone-else", webrtc.ICECandidateInit{Candidate: "x"})
	f.c.OnCandidate(publisher, webrtc.ICECandidateInit{Candidate: "c2"})
	close(gate)
	f.waitState(t, domain.StateConnecting)

	require.Eventually(t, func() bool {
		return len(f.transport.Last(publisher).Candidates()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"c1", "c2"}, f.transport.Last(publisher).Candidates())
}

func TestBroadcastEndedMidNegotiation(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.transport.Prepare = func(c *apptest.Connection) { c.RemoteGate = gate }

	f.c.OnOffer(publisher, offer("o1"))
	f.c.OnPeerLeft(publisher)

	assert.Equal(t, domain.ViewerDisconnected, f.c.Status())
	assert.Equal(t, domain.StateClosed, f.c.State())
	assert.True(t, f.transport.Last(publisher).Closed())
	assert.Empty(t, f.ch.SentOf(protocol.KindAnswer, publisher))

	f.c.OnCandidate(publisher, webrtc.ICECandidateInit{Candidate: "late"})
	assert.Empty(t, f.transport.Last(publisher).Candidates())
}

func TestBroadcastEndedIsRearmedByNewOffer(t *testing.T) {
	f := newFixture(t)
	f.c.OnOffer(publisher, offer("o1"))
	f.waitState(t, domain.StateConnecting)
	f.c.OnBroadcastEnded()
	f.c.OnBroadcastEnded()
	assert.Equal(t, domain.ViewerDisconnected, f.c.Status())

	f.c.OnOffer("pub2", offer("o2"))
	f.waitAnswer(t, "pub2")
	assert.Equal(t, domain.ViewerConnecting, f.c.Status())
	assert.Len(t, f.ch.SentOf(protocol.KindAnswer, "pub2"), 1)
}

func TestPeerLeftOfOtherIdentityIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.c.OnOffer(publisher, offer("o1"))
	f.waitState(t, domain.StateConnecting)

	f.c.OnPeerLeft("someone-else")
	assert.Equal(t, domain.StateConnecting, f.c.State())
	assert.Equal(t, domain.ViewerConnecting, f.c.Status())
}

func TestNegotiationFailureDisconnects(t *testing.T) {
	f := newFixture(t)
	f.transport.Prepare = func(c *apptest.Connection) { c.AnswerErr = errors.New("no codecs") }

	f.c.OnOffer(publisher, offer("o1"))
	require.Eventually(t, func() bool { return f.c.Status() == domain.ViewerDisconnected }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.transport.Last(publisher).Closed())
	assert.Empty(t, f.surface.Errors())
}

func TestToggleMuteIsLocal(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.c.Muted())
	assert.False(t, f.c.ToggleMute())
	assert.True(t, f.c.ToggleMute())
	assert.Equal(t, []bool{false, true}, f.surface.Muted())
	assert.Empty(t, f.ch.Sent())
}

func TestStopClosesChannelOnce(t *testing.T) {
	f := newFixture(t)
	f.c.OnOffer(publisher, offer("o1"))
	f.c.Stop()
	f.c.Stop()

	assert.True(t, f.ch.Closed())
	assert.True(t, f.transport.Last(publisher).Closed())

	f.c.OnOffer(publisher, offer("o2"))
	assert.Len(t, f.transport.Conns(publisher), 1)
}

func TestHandleDispatchesMessages(t *testing.T) {
	f := newFixture(t)
	f.c.Handle(protocol.Offer(publisher, offer("o1")))
	f.waitState(t, domain.StateConnecting)
	f.c.Handle(protocol.PeerLeft(publisher))
	assert.Equal(t, domain.ViewerDisconnected, f.c.Status())
}
