package orch

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// SetVideoEnabled flips the shared video track for every session at once.
// It reports false when there is no video track.
func (o *Orchestrator) SetVideoEnabled(enabled bool) bool {
	return o.setEnabled(webrtc.RTPCodecTypeVideo, enabled)
}

func (o *Orchestrator) SetAudioEnabled(enabled bool) bool {
	return o.setEnabled(webrtc.RTPCodecTypeAudio, enabled)
}

// ToggleVideo inverts the video flag and returns the new value.
func (o *Orchestrator) ToggleVideo() bool {
	return o.toggle(webrtc.RTPCodecTypeVideo)
}

func (o *Orchestrator) ToggleAudio() bool {
	return o.toggle(webrtc.RTPCodecTypeAudio)
}

func (o *Orchestrator) VideoEnabled() bool {
	return o.enabled(webrtc.RTPCodecTypeVideo)
}

func (o *Orchestrator) AudioEnabled() bool {
	return o.enabled(webrtc.RTPCodecTypeAudio)
}

func (o *Orchestrator) setEnabled(kind webrtc.RTPCodecType, enabled bool) bool {
	o.mu.Lock()
	src := o.source
	o.mu.Unlock()
	if src == nil {
		return false
	}
	if !src.SetTrackEnabled(kind, enabled) {
		return false
	}
	log.Info().Str("module", "orch").Str("kind", kind.String()).Bool("enabled", enabled).Msg("track toggled")
	return true
}

func (o *Orchestrator) toggle(kind webrtc.RTPCodecType) bool {
	next := !o.enabled(kind)
	if !o.setEnabled(kind, next) {
		return false
	}
	return next
}

func (o *Orchestrator) enabled(kind webrtc.RTPCodecType) bool {
	o.mu.Lock()
	src := o.source
	o.mu.Unlock()
	return src != nil && src.TrackEnabled(kind)
}
