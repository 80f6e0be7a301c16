package app

import (
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose outbound signaling buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks a stuck publisher and drops frames for slow viewers.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	if member.Role() == domain.RolePublisher {
		return KickMember
	}
	return DropFrame
}
