package core

import (
	"context"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is one peer-to-peer media transport.
type MediaConnection interface {
	// AddLocalTrack attaches a shared local track; the track is not copied.
	AddLocalTrack(track webrtc.TrackLocal) error
	GenerateOffer() (webrtc.SessionDescription, error)
	GenerateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// OnStateChange reports transport connectivity transitions.
	OnStateChange(func(webrtc.PeerConnectionState))
	// Close should stop all underlying media resources.
	Close() error
}

// MediaTransport creates media connections; one per peer session.
type MediaTransport interface {
	NewConnection(id domain.PeerID) (MediaConnection, error)
}

// RemoteTrack is an inbound media track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// MediaSource is the publisher's capture device. Its tracks are shared by every session.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	// SetTrackEnabled flips the enabled flag for every track of kind.
	// It reports false when the source has no track of that kind.
	SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) bool
	TrackEnabled(kind webrtc.RTPCodecType) bool
	// Release stops capture. It is safe to call more than once.
	Release()
}

type MediaAcquirer interface {
	Acquire(ctx context.Context, c domain.Constraints) (MediaSource, error)
}
