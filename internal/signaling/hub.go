package signaling

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Rogue-56/pinch/internal/protocol"
	"github.com/Rogue-56/pinch/internal/room"
)

// Options tune per-connection behaviour. Zero values select defaults.
type Options struct {
	SendQueue       int
	PingInterval    time.Duration
	MaxMessageBytes int64
}

type inbound struct {
	client *Client
	msg    *protocol.Message
	err    error
}

// Hub is the central brain of the signaling server.
// It owns every connected client and drives the room registry.
//
// All state changes happen on the goroutine running Run, so a joining member's
// snapshot and the notices sent to others are never interleaved with another
// event.
type Hub struct {
	registry *room.Registry
	opts     Options
	log      *slog.Logger

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(registry *room.Registry, opts Options, logger *slog.Logger) *Hub {
	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		registry:   registry,
		opts:       opts,
		log:        logger,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry the hub mutates.
func (h *Hub) Registry() *room.Registry { return h.registry }

// Register hands a freshly upgraded client to the hub.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister reports that a client's connection is gone.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues an inbound message for processing. It reports false once
// the hub has stopped.
func (h *Hub) Dispatch(c *Client, msg *protocol.Message, err error) bool {
	select {
	case h.inbound <- inbound{client: c, msg: msg, err: err}:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.drop(c)
		case in := <-h.inbound:
			if in.err != nil {
				h.reply(in.client, protocol.NewError(in.err.Error()))
				continue
			}
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.ID] = c
	c.log.Debug("client registered")
}

// drop removes a client and tells the rest of its room. Safe to call more
// than once; only the first call has an effect.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.send)

	roomID, remaining, ok := h.registry.Leave(c.ID)
	if !ok {
		c.log.Debug("client unregistered")
		return
	}
	c.log.Info("left room", "room", roomID, "remaining", len(remaining))

	notice := protocol.MustMessage(protocol.TypeUserDisconnected, protocol.Peer{ID: c.ID})
	for _, m := range remaining {
		h.deliver(m.ID, notice)
	}
}

// deliver enqueues msg for the connection id without blocking. A client whose
// queue is full is treated as a slow consumer and disconnected.
func (h *Hub) deliver(id string, msg *protocol.Message) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send queue full, closing slow consumer", "type", msg.Type)
		h.drop(c)
	}
}

func (h *Hub) reply(c *Client, msg *protocol.Message) {
	h.deliver(c.ID, msg)
}

func (h *Hub) handle(c *Client, msg *protocol.Message) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	switch {
	case msg.Type == protocol.TypeJoinRoom:
		h.handleJoin(c, msg)
	case protocol.IsNegotiation(msg.Type):
		h.handleNegotiation(c, msg)
	case msg.Type == protocol.TypeStartScreenShare:
		h.handleScreenShare(c, true)
	case msg.Type == protocol.TypeStopScreenShare:
		h.handleScreenShare(c, false)
	case msg.Type == protocol.TypeSendMessage:
		h.handleChat(c, msg)
	default:
		c.log.Debug("unknown message type", "type", msg.Type)
		h.reply(c, protocol.NewError("unknown message type: "+msg.Type))
	}
}

func (h *Hub) handleJoin(c *Client, msg *protocol.Message) {
	var req protocol.JoinRoomPayload
	if len(msg.Payload) > 0 {
		if err := msg.DecodePayload(&req); err != nil {
			h.reply(c, protocol.NewError("invalid join payload"))
			return
		}
	}

	self, others, err := h.registry.Join(msg.RoomID, c.ID, req.Name)
	if err != nil {
		c.log.Debug("join rejected", "room", msg.RoomID, "err", err)
		h.reply(c, protocol.NewError(err.Error()))
		return
	}
	c.log.Info("joined room", "room", msg.RoomID, "name", self.Name, "others", len(others))

	h.reply(c, protocol.MustMessage(protocol.TypeNameAssigned, self.Peer()))
	h.reply(c, protocol.MustMessage(protocol.TypeExistingUsers, room.Peers(others)))
	h.reply(c, protocol.MustMessage(protocol.TypeChatHistory, h.registry.History(msg.RoomID)))
	for _, s := range h.registry.Sharers(msg.RoomID) {
		h.reply(c, protocol.MustMessage(protocol.TypeUserStartedScreenShare, s.Peer()))
	}
	if _, ok := h.clients[c.ID]; !ok {
		// dropped while receiving its snapshot; others already saw it leave
		return
	}

	joined := protocol.MustMessage(protocol.TypeUserJoined, self.Peer())
	for _, m := range others {
		h.deliver(m.ID, joined)
	}
}

func (h *Hub) handleNegotiation(c *Client, msg *protocol.Message) {
	if msg.Target == "" || msg.Target == c.ID || !h.registry.SameRoom(c.ID, msg.Target) {
		c.log.Debug("dropping negotiation message", "type", msg.Type, "target", msg.Target)
		return
	}
	h.deliver(msg.Target, &protocol.Message{
		Type:    msg.Type,
		From:    c.ID,
		Payload: msg.Payload,
	})
}

func (h *Hub) handleScreenShare(c *Client, on bool) {
	self, changed, err := h.registry.SetSharing(c.ID, on)
	if err != nil {
		h.reply(c, protocol.NewError(err.Error()))
		return
	}
	if !changed {
		return
	}
	_, roomID, _ := h.registry.Lookup(c.ID)
	c.log.Info("screen share changed", "room", roomID, "sharing", on)

	notice := protocol.MustMessage(protocol.TypeUserStoppedScreenShare, protocol.Peer{ID: self.ID})
	if on {
		notice = protocol.MustMessage(protocol.TypeUserStartedScreenShare, self.Peer())
	}
	for _, m := range h.registry.MembersOf(roomID) {
		if m.ID != c.ID {
			h.deliver(m.ID, notice)
		}
	}
}

func (h *Hub) handleChat(c *Client, msg *protocol.Message) {
	var req protocol.SendMessagePayload
	if err := msg.DecodePayload(&req); err != nil {
		h.reply(c, protocol.NewError("invalid message payload"))
		return
	}

	chat, roomID, err := h.registry.PostMessage(c.ID, req.Text)
	if err != nil {
		c.log.Debug("chat rejected", "err", err)
		h.reply(c, protocol.NewError(err.Error()))
		return
	}

	out := protocol.MustMessage(protocol.TypeNewMessage, chat)
	for _, m := range h.registry.MembersOf(roomID) {
		h.deliver(m.ID, out)
	}
}
