package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rogue-56/pinch/internal/logging"
	"github.com/Rogue-56/pinch/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	closeGrace     = time.Second
)

// ErrClosed is returned by Send once the connection is closed or lost.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one participant's websocket to the relay. Each room session owns
// its own Conn.
type Conn struct {
	ws    *websocket.Conn
	codec protocol.Codec
	log   *slog.Logger

	incoming chan *protocol.Message
	outgoing chan *protocol.Message

	closing   chan struct{} // Close was called
	done      chan struct{} // connection is gone
	closeOnce sync.Once
	doneOnce  sync.Once
}

// Dial connects to the relay at url, framing envelopes with codec.
func Dial(ctx context.Context, url string, codec protocol.Codec, logger *slog.Logger) (*Conn, error) {
	if codec == nil {
		codec = protocol.JSON
	}
	if logger == nil {
		logger = logging.Discard()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		NetDialContext:   newResolver().dialContext,
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Conn{
		ws:       ws,
		codec:    codec,
		log:      logger.With("component", "transport"),
		incoming: make(chan *protocol.Message, 64),
		outgoing: make(chan *protocol.Message, 64),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// readPump reads messages from the WebSocket connection.
func (c *Conn) readPump() {
	defer func() {
		c.finish()
		close(c.incoming)
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}

		var msg protocol.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping malformed frame", "err", err)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.closing:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outgoing:
			data, err := c.codec.Marshal(msg)
			if err != nil {
				c.log.Error("encode failed", "type", msg.Type, "err", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.finish()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish()
				return
			}

		case <-c.closing:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.done:
			return
		}
	}
}

func (c *Conn) finish() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Send queues msg for the relay.
func (c *Conn) Send(msg *protocol.Message) error {
	select {
	case <-c.closing:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	}
}

// Incoming delivers relay events in arrival order. It is closed when the
// connection goes away.
func (c *Conn) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once the connection is gone for any reason.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears the connection down. It is safe to
// call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		select {
		case <-c.done:
		case <-time.After(closeGrace):
			c.finish()
		}
	})
	return nil
}
