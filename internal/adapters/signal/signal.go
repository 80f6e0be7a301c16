// Package signal is the server side of the signaling channel: a websocket hub
// that pairs one broadcaster with its watchers per room and relays
// negotiation messages between them.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	ReadLimit      int64
	PingPeriod     time.Duration
	AllowAnyOrigin bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	return o
}

// Hub owns every signaling connection of the server.
type Hub struct {
	Rooms   core.RoomManager
	Policy  app.Policy
	Limiter *RoomRateLimiter

	opts     Options
	upgrader websocket.Upgrader

	// mu serializes membership changes so announcements never interleave.
	mu sync.Mutex
}

func NewHub(rooms core.RoomManager, policy app.Policy, limiter *RoomRateLimiter, opts Options) *Hub {
	opts = opts.withDefaults()
	h := &Hub{
		Rooms:   rooms,
		Policy:  policy,
		Limiter: limiter,
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowAnyOrigin {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
	return h
}

// WsSignalConn is one websocket client. Writes go through send and the write pump.
type WsSignalConn struct {
	id  domain.PeerID
	key string
	ws  *websocket.Conn

	send chan core.Frame

	mu     sync.RWMutex
	closed bool

	// Touched only by the read pump.
	room domain.RoomName
	role domain.Role
}

func (c *WsSignalConn) ID() domain.PeerID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

// ServeWS upgrades the request and runs the connection until it drops.
// room is used when a registration message names none; key identifies the
// client across reconnects for rate limiting.
func (h *Hub) ServeWS(ctx context.Context, c *gin.Context, room domain.RoomName, key string) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(h.opts.ReadLimit)

	conn := &WsSignalConn{
		id:   domain.NewPeerID(),
		key:  key,
		ws:   ws,
		send: make(chan core.Frame, h.opts.SendBuffer),
		room: room,
	}
	if conn.key == "" {
		conn.key = string(conn.id)
	}
	log.Info().Str("module", "signal").Str("sid", string(conn.id)).Str("room", string(room)).Msg("new WS connection")
	metrics.ActiveWebSocketConnections.Inc()
	metrics.WebSocketConnectionsTotal.Inc()

	h.sendTo(nil, nil, conn, protocol.Welcome(conn.id))

	ctx, cancel := context.WithCancel(ctx)
	go h.writePump(ctx, conn)
	go func() {
		defer cancel()
		h.readPump(ctx, conn)
	}()
}

// Run prunes the rate limiter until ctx is done.
func (h *Hub) Run(ctx context.Context, every time.Duration) {
	if h.Limiter == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Limiter.Prune()
		}
	}
}

// sendTo encodes m for conn. A full buffer is resolved by the backpressure policy.
func (h *Hub) sendTo(room core.RoomService, member core.MemberSession, conn core.SignalConnection, m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode")
		return
	}
	err = conn.TrySend(data)
	switch {
	case err == nil:
		metrics.SignallingMessagesTotal.WithLabelValues(string(m.Type), "out").Inc()
	case errors.Is(err, ErrBackpressure):
		h.onBackpressure(room, member, conn)
	default:
		log.Debug().Err(err).Str("module", "signal").Str("type", string(m.Type)).Msg("send skipped")
	}
}

func (h *Hub) onBackpressure(room core.RoomService, member core.MemberSession, conn core.SignalConnection) {
	action := app.DropFrame
	if room != nil && member != nil && h.Policy != nil {
		action = h.Policy.OnBackPressure(room, member)
	}
	switch action {
	case app.KickMember:
		log.Warn().Str("module", "signal").Str("sid", string(member.ID())).Msg("kicking stuck member")
		conn.Close()
	case app.DropFrame:
		metrics.DroppedFramesTotal.Inc()
	}
}
