package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type WebRTCConfig struct {
	ICEServers []ICEServer `mapstructure:"ice_servers"`
	// RelayOnly restricts candidates to TURN relays.
	RelayOnly           bool          `mapstructure:"relay_only"`
	DisconnectedTimeout time.Duration `mapstructure:"disconnected_timeout"`
	FailedTimeout       time.Duration `mapstructure:"failed_timeout"`
	KeepAliveInterval   time.Duration `mapstructure:"keepalive_interval"`
}

// SignalConfig is the agents' view of the signaling server.
type SignalConfig struct {
	URL  string `mapstructure:"url"`
	Room string `mapstructure:"room"`
}

// HubConfig tunes the server side websocket hub.
type HubConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	WatchLimit     int           `mapstructure:"watch_limit"`
	WatchInterval  time.Duration `mapstructure:"watch_interval"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Hub    HubConfig          `mapstructure:"hub"`
	WebRTC WebRTCConfig       `mapstructure:"webrtc"`
	Signal SignalConfig       `mapstructure:"signal"`
	Media  domain.Constraints `mapstructure:"media"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.write_timeout", "5s")
	v.SetDefault("hub.watch_limit", 5)
	v.SetDefault("hub.watch_interval", "10s")
	v.SetDefault("hub.allow_any_origin", true)

	v.SetDefault("webrtc.ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
		{"urls": []string{"stun:stun1.l.google.com:19302"}},
		{"urls": []string{"stun:stun2.l.google.com:19302"}},
	})
	v.SetDefault("webrtc.relay_only", false)
	v.SetDefault("webrtc.disconnected_timeout", "5s")
	v.SetDefault("webrtc.failed_timeout", "25s")
	v.SetDefault("webrtc.keepalive_interval", "2s")

	v.SetDefault("signal.url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("signal.room", string(domain.DefaultRoomName))

	c := domain.DefaultConstraints()
	v.SetDefault("media.width", c.Width)
	v.SetDefault("media.height", c.Height)
	v.SetDefault("media.frame_rate", c.FrameRate)
	v.SetDefault("media.video", c.Video)
	v.SetDefault("media.audio", c.Audio)
}

// Flags returns the command line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Int("port", 8080, "HTTP listen port")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("signal-url", "", "signaling websocket URL")
	fs.String("room", "", "broadcast room name")
	fs.StringSlice("ice-server", nil, "STUN/TURN URL, repeatable")
	fs.Bool("relay-only", false, "use TURN relay candidates only")
	fs.Int("width", 0, "capture width")
	fs.Int("height", 0, "capture height")
	fs.Int("fps", 0, "capture frame rate")
	fs.Bool("no-audio", false, "disable audio capture")
	return fs
}

var flagKeys = map[string]string{
	"port":       "port",
	"log-level":  "log_level",
	"signal-url": "signal.url",
	"room":       "signal.room",
	"relay-only": "webrtc.relay_only",
	"width":      "media.width",
	"height":     "media.height",
	"fps":        "media.frame_rate",
}

// Load reads config/config.<CONFIG_ENV>.yaml, then BROADCAST_* environment
// variables, then any changed flags in fs. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BROADCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if fs != nil {
		if f := fs.Lookup("ice-server"); f != nil && f.Changed {
			urls, _ := fs.GetStringSlice("ice-server")
			cfg.WebRTC.ICEServers = cfg.WebRTC.ICEServers[:0]
			for _, u := range urls {
				cfg.WebRTC.ICEServers = append(cfg.WebRTC.ICEServers, ICEServer{URLs: []string{u}})
			}
		}
		if f := fs.Lookup("no-audio"); f != nil && f.Changed {
			noAudio, _ := fs.GetBool("no-audio")
			cfg.Media.Audio = !noAudio
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive, got %d", c.Hub.SendBuffer)
	}
	if c.Media.Video && (c.Media.Width <= 0 || c.Media.Height <= 0 || c.Media.FrameRate <= 0) {
		return fmt.Errorf("invalid media constraints %dx%d@%d", c.Media.Width, c.Media.Height, c.Media.FrameRate)
	}
	if !c.Media.Video && !c.Media.Audio {
		return fmt.Errorf("media: at least one of video or audio must be enabled")
	}
	if _, err := domain.NormalizeRoomName(c.Signal.Room); err != nil {
		return fmt.Errorf("signal.room: %w", err)
	}
	return nil
}

// Room is the configured room name, normalized.
func (c *Config) Room() domain.RoomName {
	name, _ := domain.NormalizeRoomName(c.Signal.Room)
	return name
}
