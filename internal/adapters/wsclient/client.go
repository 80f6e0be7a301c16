// Package wsclient is the agent side of the signaling channel.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Broadcast/internal/metrics"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed       = errors.New("signaling channel closed")
	ErrBackpressure = errors.New("signaling send buffer full")
)

type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	Header       http.Header
}

// Client is a websocket signaling channel. It implements core.SignalChannel.
type Client struct {
	ws   *websocket.Conn
	opts Options
	send chan []byte
	done chan struct{}

	mu        sync.RWMutex
	closed    bool
	onMessage func(protocol.Message)
	onClose   func(error)

	startOnce sync.Once
	closeOnce sync.Once
}

// Dial connects to the signaling server. Handlers are registered before Start.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "wsclient").Str("url", url).Msg("connected")
	return &Client{
		ws:   ws,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}, nil
}

func (c *Client) OnMessage(fn func(protocol.Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnClose is called once when the server side drops the connection. A local Close does not call it.
func (c *Client) OnClose(fn func(error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Start runs the read and write pumps.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		go c.writePump()
		go c.readPump()
	})
}

// Done is closed once the channel is closed for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		metrics.SignallingMessagesTotal.WithLabelValues(string(m.Type), "out").Inc()
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) Close() error {
	c.shutdown(nil, false)
	return nil
}

// shutdown closes the connection once. The close handler runs after the
// close completes, so it may call Close again.
func (c *Client) shutdown(cause error, notify bool) {
	var onClose func(error)
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		if notify {
			onClose = c.onClose
		}
		c.mu.Unlock()

		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
		close(c.done)
		log.Info().Str("module", "wsclient").Err(cause).Msg("closed")
	})
	if onClose != nil {
		onClose(cause)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.shutdown(fmt.Errorf("ping: %w", err), true)
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.shutdown(fmt.Errorf("set write deadline: %w", err), true)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(fmt.Errorf("write: %w", err), true)
				return
			}
		}
	}
}

func (c *Client) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.shutdown(fmt.Errorf("read: %w", err), true)
			}
			return
		}
		m, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("dropping bad frame")
			continue
		}
		metrics.SignallingMessagesTotal.WithLabelValues(string(m.Type), "in").Inc()

		c.mu.RLock()
		fn := c.onMessage
		c.mu.RUnlock()
		if fn != nil {
			fn(m)
		}
	}
}
