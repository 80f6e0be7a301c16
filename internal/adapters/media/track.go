// Package media provides the publisher's local media source: captured RTP is
// written once into a shared static track per kind, which every peer session
// attaches without copying.
package media

import (
	"errors"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrTrackEnded = errors.New("track ended")

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateEnded
)

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
}

// Track is one shared outgoing track with an enabled gate.
type Track struct {
	Local *webrtc.TrackLocalStaticRTP
	kind  webrtc.RTPCodecType
	out   rtpWriter
	state atomic.Int32 // Zero by default (TrackStateLive)
}

func NewTrack(kind webrtc.RTPCodecType, mimeType, id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mimeType}, id, streamID)
	if err != nil {
		return nil, err
	}
	return &Track{Local: local, kind: kind, out: local}, nil
}

func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }

func (t *Track) State() TrackState {
	return TrackState(t.state.Load())
}

// SetEnabled toggles between live and muted. An ended track stays ended.
func (t *Track) SetEnabled(enabled bool) {
	next := TrackStateMuted
	if enabled {
		next = TrackStateLive
	}
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackStateEnded {
			return
		}
		if t.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (t *Track) Enabled() bool {
	return t.State() == TrackStateLive
}

func (t *Track) MarkEnded() {
	t.state.Store(int32(TrackStateEnded))
}

// WriteRTP forwards pkt to every bound session. Muted tracks drop packets.
func (t *Track) WriteRTP(pkt *rtp.Packet) error {
	switch t.State() {
	case TrackStateEnded:
		return ErrTrackEnded
	case TrackStateMuted:
		return nil
	}
	return t.out.WriteRTP(pkt)
}
