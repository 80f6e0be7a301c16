package signal

import (
	"context"
	"time"

	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (h *Hub) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("readPump closing")
		h.disconnect(c)
		c.Close()
		metrics.ActiveWebSocketConnections.Dec()
	}()

	pongWait := h.opts.PingPeriod * 10 / 9
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("readPump read error")
				}
				return
			}
			_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
			h.handleSignal(c, data)
		}
	}
}

func (h *Hub) handleSignal(c *WsSignalConn, data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("bad message")
		h.sendTo(nil, nil, c, protocol.Error(err.Error()))
		return
	}
	metrics.SignallingMessagesTotal.WithLabelValues(string(m.Type), "in").Inc()

	if m.Type.Routed() {
		h.handleRoute(c, m)
		return
	}
	switch m.Type {
	case protocol.KindBroadcaster:
		h.handleBroadcaster(c, m)
	case protocol.KindWatcher:
		h.handleWatcher(c, m)
	case protocol.KindPing:
		h.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(m.Type)).Msg("unexpected signal from client")
	}
}
