package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrMalformed   = errors.New("malformed message")
)

// Decode parses one frame and checks that the payload required by its kind is present.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func (m Message) Validate() error {
	switch m.Type {
	case KindOffer, KindAnswer:
		if m.PeerID == "" {
			return fmt.Errorf("%w: %s without peer id", ErrMalformed, m.Type)
		}
		if m.Description == nil || m.Description.SDP == "" {
			return fmt.Errorf("%w: %s without description", ErrMalformed, m.Type)
		}
	case KindCandidate:
		if m.PeerID == "" {
			return fmt.Errorf("%w: candidate without peer id", ErrMalformed)
		}
		if m.Candidate == nil {
			return fmt.Errorf("%w: candidate without payload", ErrMalformed)
		}
	case KindViewerJoined, KindPeerLeft, KindWelcome:
		if m.PeerID == "" {
			return fmt.Errorf("%w: %s without peer id", ErrMalformed, m.Type)
		}
	case KindBroadcaster, KindWatcher, KindPing, KindPong, KindError:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}
	return nil
}
