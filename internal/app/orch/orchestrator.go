// Package orch drives the publisher side of a broadcast: one peer session per
// viewer, all fed from a single local media source.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrMediaAcquisition = errors.New("media acquisition failed")
	ErrChannel          = errors.New("signaling channel failed")
	ErrStopped          = errors.New("broadcast stopped")
)

// Orchestrator fans the local media source out to independently negotiated viewer sessions.
// Registry mutations are serialized by mu; negotiation runs on each session's own goroutine.
type Orchestrator struct {
	Registry    *app.Registry
	Transport   core.MediaTransport
	Acquirer    core.MediaAcquirer
	Channel     core.SignalChannel
	Surface     core.PublisherSurface
	Room        domain.RoomName
	Constraints domain.Constraints

	mu      sync.Mutex
	source  core.MediaSource
	stopped bool
}

// Start acquires the local media source and registers as the room's broadcaster.
// A failure here is fatal and reported to the surface once.
func (o *Orchestrator) Start(ctx context.Context) error {
	src, err := o.Acquirer.Acquire(ctx, o.Constraints)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
		o.fatal(err)
		return err
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		src.Release()
		return ErrStopped
	}
	o.source = src
	o.mu.Unlock()

	if err := o.Channel.Send(protocol.Broadcaster(o.Room)); err != nil {
		err = fmt.Errorf("%w: %w", ErrChannel, err)
		o.fatal(err)
		o.StopBroadcast()
		return err
	}
	log.Info().
		Str("module", "orch").
		Str("room", string(o.Room)).
		Int("tracks", len(src.Tracks())).
		Msg("broadcast started")
	return nil
}

// Handle dispatches one inbound signaling message.
func (o *Orchestrator) Handle(m protocol.Message) {
	if err := m.Validate(); err != nil {
		log.Warn().Str("module", "orch").Err(err).Msg("dropping invalid message")
		return
	}
	switch m.Type {
	case protocol.KindViewerJoined:
		o.OnViewerJoined(m.PeerID)
	case protocol.KindAnswer:
		o.OnAnswer(m.PeerID, *m.Description)
	case protocol.KindCandidate:
		o.OnCandidate(m.PeerID, *m.Candidate)
	case protocol.KindPeerLeft:
		o.OnPeerLeft(m.PeerID)
	case protocol.KindWelcome:
		log.Info().Str("module", "orch").Str("peer", string(m.PeerID)).Msg("signaling identity assigned")
	case protocol.KindError:
		log.Warn().Str("module", "orch").Str("error", m.Error).Msg("signaling server error")
	case protocol.KindPong:
	default:
		log.Debug().Str("module", "orch").Str("type", string(m.Type)).Msg("ignored message")
	}
}

// OnChannelClosed ends the broadcast when the signaling channel drops on its own.
func (o *Orchestrator) OnChannelClosed(err error) {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	o.fatal(fmt.Errorf("%w: %w", ErrChannel, err))
	o.StopBroadcast()
}

// StopBroadcast tears down every session, releases the media source and closes the channel.
// It is safe to call at any time and more than once.
func (o *Orchestrator) StopBroadcast() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	sessions := o.Registry.Drain()
	src := o.source
	o.source = nil
	o.mu.Unlock()

	for id, s := range sessions {
		closeSession(s)
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("session stopped")
	}
	if src != nil {
		src.Release()
	}
	if o.Channel != nil {
		if err := o.Channel.Close(); err != nil {
			log.Warn().Str("module", "orch").Err(err).Msg("closing signaling channel")
		}
	}
	o.notifyCount(0)
	log.Info().Str("module", "orch").Int("sessions", len(sessions)).Msg("broadcast stopped")
}

func (o *Orchestrator) ViewerCount() int {
	return o.Registry.Len()
}

func (o *Orchestrator) notifyCount(n int) {
	if o.Surface != nil {
		o.Surface.ViewerCountChanged(n)
	}
}

func (o *Orchestrator) fatal(err error) {
	log.Error().Str("module", "orch").Err(err).Msg("broadcast failed")
	if o.Surface != nil {
		o.Surface.Fatal(err)
	}
}
