package signaling

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Rogue-56/pinch/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	DefaultPingInterval    = 30 * time.Second
	DefaultSendQueue       = 256
	DefaultMaxMessageBytes = 64 * 1024 // enough for SDP with many candidates
)

// Client is a wrapper for a single websocket connection (a participant).
// Its ID is assigned on upgrade and never reused.
type Client struct {
	ID string

	hub   *Hub
	conn  *websocket.Conn
	codec protocol.Codec

	// send is the outbound queue. Only the hub goroutine writes to it and
	// only the hub closes it; WritePump drains it onto the websocket.
	send chan *protocol.Message

	log *slog.Logger
}

// NewClient wraps conn for hub. The caller starts the pumps after Register.
func (h *Hub) NewClient(conn *websocket.Conn, codec protocol.Codec) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	id := uuid.NewString()
	return &Client{
		ID:    id,
		hub:   h,
		conn:  conn,
		codec: codec,
		send:  make(chan *protocol.Message, h.opts.SendQueue),
		log:   h.log.With("conn", id, "codec", codec.Name()),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pongWait := 2 * c.hub.opts.PingInterval
	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}

		var msg protocol.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.log.Debug("malformed frame", "err", err)
			if !c.hub.Dispatch(c, nil, errMalformed) {
				return
			}
			continue
		}
		if !c.hub.Dispatch(c, &msg, nil) {
			return
		}
	}
}

var errMalformed = errors.New("malformed message")

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := c.codec.Marshal(msg)
			if err != nil {
				c.log.Error("encode failed", "type", msg.Type, "err", err)
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
