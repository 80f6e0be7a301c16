package core

import (
	"testing"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(Frame) error { return nil }
func (nopConn) Close()              {}

func member(id string, role domain.Role) MemberSession {
	return NewMemberSession(domain.PeerID(id), role, nopConn{})
}

func TestRoom_PublisherReplacement(t *testing.T) {
	r := NewRoomService("main")

	prev, replaced := r.SetPublisher(member("p1", domain.RolePublisher))
	assert.False(t, replaced)
	assert.Nil(t, prev)

	prev, replaced = r.SetPublisher(member("p2", domain.RolePublisher))
	require.True(t, replaced)
	assert.Equal(t, domain.PeerID("p1"), prev.ID())

	pub, ok := r.Publisher()
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("p2"), pub.ID())
}

func TestRoom_RemoveReportsRole(t *testing.T) {
	r := NewRoomService("main")
	r.SetPublisher(member("p", domain.RolePublisher))
	r.AddViewer(member("v1", domain.RoleViewer))
	r.AddViewer(member("v2", domain.RoleViewer))
	assert.Equal(t, 2, r.ViewerCount())

	role, ok := r.Remove("v1")
	require.True(t, ok)
	assert.Equal(t, domain.RoleViewer, role)

	role, ok = r.Remove("p")
	require.True(t, ok)
	assert.Equal(t, domain.RolePublisher, role)

	_, ok = r.Remove("p")
	assert.False(t, ok)

	info := r.Info()
	assert.False(t, info.Live)
	assert.Equal(t, 1, info.ViewerCount)
	assert.False(t, r.Empty())

	r.Remove("v2")
	assert.True(t, r.Empty())
}

func TestRoom_ViewerPromotedToPublisher(t *testing.T) {
	r := NewRoomService("main")
	r.AddViewer(member("x", domain.RoleViewer))
	r.SetPublisher(member("x", domain.RolePublisher))
	assert.Equal(t, 0, r.ViewerCount())
}
