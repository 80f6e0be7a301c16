package rtc

import (
	"fmt"
	"time"

	"github.com/dkeye/Broadcast/internal/config"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

type Options struct {
	ICEServers []webrtc.ICEServer
	// RelayOnly limits ICE to TURN relay candidates.
	RelayOnly bool

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration

	// IncludeLoopback lets two endpoints on one host connect; tests use it.
	IncludeLoopback bool

	LoggerFactory logging.LoggerFactory
}

// OptionsFromConfig maps the webrtc config section onto transport options.
func OptionsFromConfig(c config.WebRTCConfig) Options {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}
	return Options{
		ICEServers:          servers,
		RelayOnly:           c.RelayOnly,
		DisconnectedTimeout: c.DisconnectedTimeout,
		FailedTimeout:       c.FailedTimeout,
		KeepAliveInterval:   c.KeepAliveInterval,
	}
}

// Transport creates pion peer connections sharing one API instance.
type Transport struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewTransport(o Options) (*Transport, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if o.LoggerFactory != nil {
		se.LoggerFactory = o.LoggerFactory
	}
	if o.DisconnectedTimeout > 0 && o.FailedTimeout > 0 && o.KeepAliveInterval > 0 {
		se.SetICETimeouts(o.DisconnectedTimeout, o.FailedTimeout, o.KeepAliveInterval)
	}
	if o.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	cfg := webrtc.Configuration{
		ICEServers:   o.ICEServers,
		BundlePolicy: webrtc.BundlePolicyMaxBundle,
	}
	if o.RelayOnly {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return &Transport{api: api, cfg: cfg}, nil
}

func (t *Transport) NewConnection(id domain.PeerID) (core.MediaConnection, error) {
	pc, err := t.api.NewPeerConnection(t.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc, id), nil
}
