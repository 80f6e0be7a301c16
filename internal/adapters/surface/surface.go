// Package surface holds the headless surfaces used by the agents: state is
// logged and inbound media is drained.
package surface

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Publisher logs the viewer counter. Fatal errors are delivered on Errors.
type Publisher struct {
	count  atomic.Int64
	errors chan error
}

func NewPublisher() *Publisher {
	return &Publisher{errors: make(chan error, 1)}
}

func (p *Publisher) ViewerCountChanged(n int) {
	p.count.Store(int64(n))
	log.Info().Str("module", "surface").Int("viewers", n).Msg(domain.ViewerCountLabel(n))
}

func (p *Publisher) ViewerCount() int { return int(p.count.Load()) }

func (p *Publisher) Fatal(err error) {
	log.Error().Str("module", "surface").Err(err).Msg("broadcast failed")
	select {
	case p.errors <- err:
	default:
	}
}

func (p *Publisher) Errors() <-chan error { return p.errors }

// Viewer drains every attached track until it ends or is detached.
type Viewer struct {
	mu      sync.Mutex
	status  domain.ViewerStatus
	muted   bool
	tracks  []core.RemoteTrack
	wg      sync.WaitGroup
	stopped chan struct{}
	errors  chan error

	packets atomic.Int64
}

func NewViewer() *Viewer {
	return &Viewer{
		stopped: make(chan struct{}),
		errors:  make(chan error, 1),
	}
}

func (v *Viewer) StatusChanged(s domain.ViewerStatus) {
	v.mu.Lock()
	v.status = s
	v.mu.Unlock()
	log.Info().Str("module", "surface").Str("status", s.String()).Msg(s.Label())
}

func (v *Viewer) Status() domain.ViewerStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *Viewer) AttachTrack(t core.RemoteTrack) {
	v.mu.Lock()
	v.tracks = append(v.tracks, t)
	stopped := v.stopped
	v.mu.Unlock()

	log.Info().Str("module", "surface").Str("kind", t.Kind().String()).Str("track", t.ID()).Msg("track attached")
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.drain(t, stopped)
	}()
}

func (v *Viewer) drain(t core.RemoteTrack, stopped <-chan struct{}) {
	kind := t.Kind().String()
	for {
		pkt, _, err := t.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("module", "surface").Str("kind", kind).Err(err).Msg("track read stopped")
			}
			return
		}
		select {
		case <-stopped:
			return
		default:
		}
		v.packets.Add(1)
		metrics.RTPPacketsTotal.WithLabelValues("received").Inc()
		metrics.RTPBytesTotal.WithLabelValues("received").Add(float64(len(pkt.Payload)))
	}
}

// DetachAll stops accounting for the current tracks. Their readers end when
// the owning connection closes.
func (v *Viewer) DetachAll() {
	v.mu.Lock()
	n := len(v.tracks)
	v.tracks = nil
	close(v.stopped)
	v.stopped = make(chan struct{})
	v.mu.Unlock()
	if n > 0 {
		log.Info().Str("module", "surface").Int("tracks", n).Msg("tracks detached")
	}
}

func (v *Viewer) Attached() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tracks)
}

func (v *Viewer) Packets() int64 { return v.packets.Load() }

func (v *Viewer) SetMuted(m bool) {
	v.mu.Lock()
	v.muted = m
	v.mu.Unlock()
	log.Info().Str("module", "surface").Bool("muted", m).Msg("audio output")
}

func (v *Viewer) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

func (v *Viewer) Fatal(err error) {
	log.Error().Str("module", "surface").Err(err).Msg("viewer failed")
	select {
	case v.errors <- err:
	default:
	}
}

func (v *Viewer) Errors() <-chan error { return v.errors }

// Wait blocks until every drain goroutine has returned.
func (v *Viewer) Wait() { v.wg.Wait() }
