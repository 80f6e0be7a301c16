package domain

// SessionState is the negotiation state of one peer session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateNegotiatingOffer
	StateAwaitingAnswer
	StateConnecting
	StateConnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiatingOffer:
		return "negotiating-offer"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ViewerStatus is what the viewing surface shows to the user.
type ViewerStatus int

const (
	ViewerConnecting ViewerStatus = iota
	ViewerConnected
	ViewerDisconnected
)

func (s ViewerStatus) String() string {
	switch s {
	case ViewerConnecting:
		return "connecting"
	case ViewerConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Label is the human readable status line.
func (s ViewerStatus) Label() string {
	switch s {
	case ViewerConnecting:
		return "Connecting..."
	case ViewerConnected:
		return "Connected"
	default:
		return "Disconnected"
	}
}
