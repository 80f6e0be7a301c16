//go:build cgo

package media

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const defaultMTU = 1200

// DeviceAcquirer captures the local camera and microphone, encoded as VP8 and Opus.
type DeviceAcquirer struct {
	MTU          int
	VideoBitRate int
}

func (a DeviceAcquirer) Acquire(ctx context.Context, c domain.Constraints) (core.MediaSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	if a.VideoBitRate > 0 {
		vpxParams.BitRate = a.VideoBitRate
	} else {
		vpxParams.BitRate = 1_500_000
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	constraints := mediadevices.MediaStreamConstraints{
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}
	if c.Video {
		constraints.Video = func(m *mediadevices.MediaTrackConstraints) {
			m.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			m.Width = prop.Int(c.Width)
			m.Height = prop.Int(c.Height)
			m.FrameRate = prop.Float(c.FrameRate)
		}
	}
	if c.Audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	mtu := a.MTU
	if mtu <= 0 {
		mtu = defaultMTU
	}

	var feeds []Feed
	fail := func(err error) (core.MediaSource, error) {
		for _, f := range feeds {
			_ = f.Reader.Close()
		}
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
		return nil, err
	}

	for _, mt := range stream.GetTracks() {
		mimeType := webrtc.MimeTypeOpus
		if mt.Kind() == webrtc.RTPCodecTypeVideo {
			mimeType = webrtc.MimeTypeVP8
		}
		track, err := NewTrack(mt.Kind(), mimeType, mt.Kind().String(), "broadcast")
		if err != nil {
			return fail(fmt.Errorf("local %s track: %w", mt.Kind(), err))
		}
		reader, err := mt.NewRTPReader(mimeType, rand.Uint32(), mtu)
		if err != nil {
			return fail(fmt.Errorf("%s rtp reader: %w", mt.Kind(), err))
		}
		mt.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Str("module", "media").Err(err).Str("kind", track.Kind().String()).Msg("device track ended")
			}
		})
		dev := mt
		feeds = append(feeds, Feed{Track: track, Reader: reader, Stop: func() { _ = dev.Close() }})
	}
	if len(feeds) == 0 {
		return fail(fmt.Errorf("get user media: no tracks"))
	}

	log.Info().Str("module", "media").Int("tracks", len(feeds)).Msg("local media captured")
	return NewSource(ctx, feeds), nil
}
