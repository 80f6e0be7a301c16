// Package protocol defines the signaling messages exchanged between the
// publisher, the viewers and the signaling server.
package protocol

import (
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	// Negotiation messages.
	KindViewerJoined Kind = "viewer-joined"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindCandidate    Kind = "candidate"
	KindPeerLeft     Kind = "peer-left"

	// Channel control messages.
	KindBroadcaster Kind = "broadcaster"
	KindWatcher     Kind = "watcher"
	KindWelcome     Kind = "welcome"
	KindPing        Kind = "ping"
	KindPong        Kind = "pong"
	KindError       Kind = "error"
)

// Message is the single envelope carried by the signaling channel.
// PeerID is the addressee when a client sends and the origin when the server delivers.
type Message struct {
	Type        Kind                       `json:"type"`
	PeerID      domain.PeerID              `json:"peerId,omitempty"`
	Room        domain.RoomName            `json:"room,omitempty"`
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

func ViewerJoined(id domain.PeerID) Message {
	return Message{Type: KindViewerJoined, PeerID: id}
}

func Offer(id domain.PeerID, d webrtc.SessionDescription) Message {
	return Message{Type: KindOffer, PeerID: id, Description: &d}
}

func Answer(id domain.PeerID, d webrtc.SessionDescription) Message {
	return Message{Type: KindAnswer, PeerID: id, Description: &d}
}

func Candidate(id domain.PeerID, c webrtc.ICECandidateInit) Message {
	return Message{Type: KindCandidate, PeerID: id, Candidate: &c}
}

func PeerLeft(id domain.PeerID) Message {
	return Message{Type: KindPeerLeft, PeerID: id}
}

func Broadcaster(room domain.RoomName) Message {
	return Message{Type: KindBroadcaster, Room: room}
}

func Watcher(room domain.RoomName) Message {
	return Message{Type: KindWatcher, Room: room}
}

func Welcome(id domain.PeerID) Message {
	return Message{Type: KindWelcome, PeerID: id}
}

func Error(text string) Message {
	return Message{Type: KindError, Error: text}
}

// Routed reports whether the server forwards this kind to the peer named in PeerID.
func (k Kind) Routed() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate:
		return true
	}
	return false
}
