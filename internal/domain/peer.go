// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxPeerIDLen = 64

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
)

// PeerID is the opaque token the signaling server assigns to one connection.
// It is unique at any instant but may be reused after a reconnect.
type PeerID string

// NewPeerID is a tiny helper to avoid ad-hoc uuid calls in adapters.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

func (id PeerID) Validate() error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

// Role is the side a connection plays in a broadcast.
type Role string

const (
	RolePublisher Role = "broadcaster"
	RoleViewer    Role = "watcher"
)
