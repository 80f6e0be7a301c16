package core

import (
	"github.com/dkeye/Broadcast/internal/domain"
)

// MemberSession binds a connection identity, its role and its transport endpoint.
// This is what a room stores and routes to.
type MemberSession interface {
	ID() domain.PeerID
	Role() domain.Role
	Signal() SignalConnection
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	Live        bool            `json:"live"`
	Publisher   domain.PeerID   `json:"publisher,omitempty"`
	ViewerCount int             `json:"viewer_count"`
}

// RoomService is one broadcast: at most one publisher and a set of viewers.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	Info() RoomInfo

	// SetPublisher installs ms as publisher and returns the one it replaced, if any.
	SetPublisher(ms MemberSession) (MemberSession, bool)
	Publisher() (MemberSession, bool)
	AddViewer(ms MemberSession)
	Viewer(id domain.PeerID) (MemberSession, bool)
	ViewersSnapshot() []MemberSession
	ViewerCount() int
	// Remove drops id from the room and reports the role it had.
	Remove(id domain.PeerID) (domain.Role, bool)
	Empty() bool
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	// StopIfEmpty deletes the room when nobody is left in it.
	StopIfEmpty(name domain.RoomName) bool
}
