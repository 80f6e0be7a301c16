package core

import "github.com/dkeye/Broadcast/internal/domain"

// memberSession implements MemberSession by pairing identity, role and transport.
type memberSession struct {
	id   domain.PeerID
	role domain.Role
	conn SignalConnection
}

func NewMemberSession(id domain.PeerID, role domain.Role, conn SignalConnection) MemberSession {
	return &memberSession{id: id, role: role, conn: conn}
}

func (m *memberSession) ID() domain.PeerID        { return m.id }
func (m *memberSession) Role() domain.Role        { return m.role }
func (m *memberSession) Signal() SignalConnection { return m.conn }
