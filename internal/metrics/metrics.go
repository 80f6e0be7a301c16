package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_active_websocket_connections",
		Help: "Number of active signaling websocket connections",
	})

	WebSocketConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_websocket_connections_total",
		Help: "Total number of signaling websocket connections",
	})

	ActiveBroadcasters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_active_broadcasters",
		Help: "Number of rooms with a registered broadcaster",
	})

	ActiveWatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_active_watchers",
		Help: "Number of registered watchers across all rooms",
	})

	// SignallingMessagesTotal counts signaling messages by kind and direction ("in" | "out").
	SignallingMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_signalling_messages_total",
		Help: "Total signaling messages",
	}, []string{"type", "direction"})

	DroppedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_dropped_frames_total",
		Help: "Signaling frames dropped because a client send buffer was full",
	})

	// ActivePeerSessions tracks live peer sessions by role ("broadcaster" | "watcher").
	ActivePeerSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "broadcast_active_peer_sessions",
		Help: "Number of live peer sessions",
	}, []string{"role"})

	PeerSessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_peer_sessions_created_total",
		Help: "Total number of peer sessions created",
	}, []string{"role"})

	NegotiationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_negotiation_failures_total",
		Help: "Peer sessions torn down after a failed negotiation step",
	}, []string{"role"})

	RTPPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_rtp_packets_total",
		Help: "Total RTP packets processed",
	}, []string{"direction"}) // "sent" | "received"

	RTPBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_rtp_bytes_total",
		Help: "Total RTP payload bytes processed",
	}, []string{"direction"})
)
