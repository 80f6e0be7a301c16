package rtc_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/adapters/rtc"
	"github.com/dkeye/Broadcast/internal/app/peer"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(t *testing.T) *rtc.Transport {
	t.Helper()
	tr, err := rtc.NewTransport(rtc.Options{IncludeLoopback: true})
	require.NoError(t, err)
	return tr
}

func newVideoTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "broadcast")
	require.NoError(t, err)
	return track
}

func TestDescriptionExchange(t *testing.T) {
	tr := newTransport(t)
	pub, err := tr.NewConnection("pub")
	require.NoError(t, err)
	defer pub.Close()
	view, err := tr.NewConnection("view")
	require.NoError(t, err)
	defer view.Close()

	require.NoError(t, pub.AddLocalTrack(newVideoTrack(t)))

	offer, err := pub.GenerateOffer()
	require.NoError(t, err)
	require.NoError(t, pub.SetLocalDescription(offer))
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")

	require.NoError(t, view.SetRemoteDescription(offer))
	answer, err := view.GenerateAnswer()
	require.NoError(t, err)
	require.NoError(t, view.SetLocalDescription(answer))
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, pub.SetRemoteDescription(answer))
}

func TestCandidateBeforeRemoteDescriptionIsRejected(t *testing.T) {
	tr := newTransport(t)
	c, err := tr.NewConnection("x")
	require.NoError(t, err)
	defer c.Close()

	err = c.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host"})
	assert.Error(t, err)
}

func TestLoggerFactoryWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	f := rtc.NewLoggerFactory(zerolog.New(&buf))
	f.NewLogger("ice").Warnf("candidate %d dropped", 3)

	out := buf.String()
	assert.Contains(t, out, `"scope":"ice"`)
	assert.Contains(t, out, "candidate 3 dropped")
	assert.Contains(t, out, `"level":"warn"`)
}

// Two peer sessions negotiate over real pion connections on the loopback interface.
func TestSessionsConnectOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("network test")
	}
	tr := newTransport(t)
	pubConn, err := tr.NewConnection("viewer-1")
	require.NoError(t, err)
	viewConn, err := tr.NewConnection("publisher")
	require.NoError(t, err)

	var pub, view *peer.Session
	trackCh := make(chan core.RemoteTrack, 1)

	pub = peer.New("viewer-1", domain.RolePublisher, pubConn, peer.Hooks{
		Emit: func(m protocol.Message) error {
			switch m.Type {
			case protocol.KindOffer:
				view.Accept(*m.Description)
			case protocol.KindCandidate:
				view.AddCandidate(*m.Candidate)
			}
			return nil
		},
	})
	view = peer.New("publisher", domain.RoleViewer, viewConn, peer.Hooks{
		Emit: func(m protocol.Message) error {
			switch m.Type {
			case protocol.KindAnswer:
				pub.ApplyAnswer(*m.Description)
			case protocol.KindCandidate:
				pub.AddCandidate(*m.Candidate)
			}
			return nil
		},
		Track: func(_ *peer.Session, t core.RemoteTrack) {
			select {
			case trackCh <- t:
			default:
			}
		},
	})
	defer pub.Close()
	defer view.Close()

	track := newVideoTrack(t)
	pub.Offer([]webrtc.TrackLocal{track})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		var seq uint16
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				seq++
				_ = track.WriteRTP(&rtp.Packet{
					Header: rtp.Header{
						Version:        2,
						PayloadType:    96,
						SequenceNumber: seq,
						Timestamp:      uint32(seq) * 3000,
						SSRC:           1,
					},
					Payload: []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a},
				})
			}
		}
	}()

	select {
	case got := <-trackCh:
		assert.Equal(t, webrtc.RTPCodecTypeVideo, got.Kind())
		assert.True(t, strings.EqualFold(got.ID(), "video"))
	case <-ctx.Done():
		t.Fatal("no track delivered")
	}

	require.Eventually(t, func() bool {
		return pub.State() == domain.StateConnected && view.State() == domain.StateConnected
	}, 10*time.Second, 50*time.Millisecond)
}
