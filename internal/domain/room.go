package domain

import (
	"errors"
	"strings"
)

const (
	MaxRoomNameLen  = 36
	DefaultRoomName = RoomName("main")
)

var ErrRoomNameTooLong = errors.New("room name too long")

// RoomName identifies one broadcast: at most one publisher and any number of viewers.
type RoomName string

// NormalizeRoomName trims the raw name and falls back to DefaultRoomName.
func NormalizeRoomName(raw string) (RoomName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultRoomName, nil
	}
	if len(name) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(name), nil
}
