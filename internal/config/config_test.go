package config

import (
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, domain.DefaultConstraints(), cfg.Media)
	assert.Equal(t, domain.DefaultRoomName, cfg.Room())
	require.Len(t, cfg.WebRTC.ICEServers, 3)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.ICEServers[0].URLs)
	assert.Equal(t, 64, cfg.Hub.SendBuffer)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("BROADCAST_PORT", "9090")
	t.Setenv("BROADCAST_SIGNAL_ROOM", "lobby")
	t.Setenv("BROADCAST_MEDIA_FRAME_RATE", "15")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, domain.RoomName("lobby"), cfg.Room())
	assert.Equal(t, 15, cfg.Media.FrameRate)
}

func TestLoadFlagsWinOverEnv(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("BROADCAST_SIGNAL_ROOM", "lobby")

	fs := Flags("test")
	require.NoError(t, fs.Parse([]string{
		"--room", "stage",
		"--ice-server", "stun:example.org:3478",
		"--ice-server", "turn:example.org:3478",
		"--no-audio",
		"--width", "640",
	}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("stage"), cfg.Room())
	require.Len(t, cfg.WebRTC.ICEServers, 2)
	assert.Equal(t, []string{"turn:example.org:3478"}, cfg.WebRTC.ICEServers[1].URLs)
	assert.False(t, cfg.Media.Audio)
	assert.Equal(t, 640, cfg.Media.Width)
	assert.Equal(t, 720, cfg.Media.Height)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:   8080,
			Hub:    HubConfig{SendBuffer: 8},
			Media:  domain.DefaultConstraints(),
			Signal: SignalConfig{Room: "main"},
		}
	}

	cases := map[string]func(*Config){
		"port":        func(c *Config) { c.Port = 0 },
		"send buffer": func(c *Config) { c.Hub.SendBuffer = 0 },
		"resolution":  func(c *Config) { c.Media.Width = 0 },
		"no tracks":   func(c *Config) { c.Media.Video, c.Media.Audio = false, false },
		"room":        func(c *Config) { c.Signal.Room = "a-room-name-that-is-far-too-long-to-be-valid" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := base()
	assert.NoError(t, c.Validate())
}
