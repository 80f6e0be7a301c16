package media

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PacketReader yields batches of encoded RTP packets.
// mediadevices.RTPReadCloser satisfies it.
type PacketReader interface {
	Read() ([]*rtp.Packet, func(), error)
	Close() error
}

// Feed couples a capture reader with the track it fills.
type Feed struct {
	Track  *Track
	Reader PacketReader
	// Stop releases the underlying device, if any.
	Stop func()
}

// Source owns the feeds of one broadcast and pumps each into its track.
type Source struct {
	feeds  []Feed
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewSource(ctx context.Context, feeds []Feed) *Source {
	ctx, cancel := context.WithCancel(ctx)
	s := &Source{feeds: feeds, cancel: cancel}
	for _, f := range feeds {
		logger := log.With().
			Str("module", "media").
			Str("kind", f.Track.Kind().String()).
			Logger()
		s.wg.Add(1)
		go func(f Feed) {
			defer s.wg.Done()
			pump(ctx, f.Reader, f.Track, &logger)
		}(f)
	}
	return s
}

// pump reads captured packets and forwards them to the track until the reader or track ends.
func pump(ctx context.Context, r PacketReader, t *Track, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("pump ctx done")
			return
		default:
		}
		pkts, release, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Info().Msg("capture ended")
			} else {
				logger.Error().Err(err).Msg("capture read error, stopping")
			}
			t.MarkEnded()
			return
		}
		ended := forward(pkts, t, logger)
		if release != nil {
			release()
		}
		if ended {
			return
		}
	}
}

func forward(pkts []*rtp.Packet, t *Track, logger *zerolog.Logger) bool {
	for _, pkt := range pkts {
		if pkt == nil {
			continue
		}
		if err := t.WriteRTP(pkt); err != nil {
			if errors.Is(err, ErrTrackEnded) {
				return true
			}
			logger.Warn().Err(err).Msg("write RTP")
			continue
		}
		metrics.RTPPacketsTotal.WithLabelValues("sent").Inc()
		metrics.RTPBytesTotal.WithLabelValues("sent").Add(float64(len(pkt.Payload)))
	}
	return false
}

func (s *Source) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, f.Track.Local)
	}
	return out
}

func (s *Source) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) bool {
	found := false
	for _, f := range s.feeds {
		if f.Track.Kind() == kind {
			f.Track.SetEnabled(enabled)
			found = true
		}
	}
	return found
}

func (s *Source) TrackEnabled(kind webrtc.RTPCodecType) bool {
	for _, f := range s.feeds {
		if f.Track.Kind() == kind {
			return f.Track.Enabled()
		}
	}
	return false
}

// Release stops every pump and the devices behind them.
func (s *Source) Release() {
	s.once.Do(func() {
		s.cancel()
		for _, f := range s.feeds {
			f.Track.MarkEnded()
			if err := f.Reader.Close(); err != nil {
				log.Warn().Str("module", "media").Err(err).Msg("close reader")
			}
		}
		s.wg.Wait()
		for _, f := range s.feeds {
			if f.Stop != nil {
				f.Stop()
			}
		}
		log.Info().Str("module", "media").Int("tracks", len(s.feeds)).Msg("source released")
	})
}
