package core

import "github.com/dkeye/Broadcast/internal/protocol"

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts the server side of one websocket client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalChannel is the client side of the signaling bus as seen by the
// publisher orchestrator and the viewer controller.
type SignalChannel interface {
	Send(protocol.Message) error
	Close() error
}
