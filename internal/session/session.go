// Package session runs one participant's stay in one room: it owns the relay
// connection, the local camera-mic stream and the mesh coordinator, and it
// feeds relay events to both the coordinator and the UI.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Rogue-56/pinch/internal/capture"
	"github.com/Rogue-56/pinch/internal/engine"
	"github.com/Rogue-56/pinch/internal/logging"
	"github.com/Rogue-56/pinch/internal/mesh"
	"github.com/Rogue-56/pinch/internal/protocol"
	"github.com/Rogue-56/pinch/internal/transport"
)

// Transport is the relay connection a session drives.
type Transport interface {
	Send(*protocol.Message) error
	Incoming() <-chan *protocol.Message
	Done() <-chan struct{}
	Close() error
}

// DialFunc opens the relay connection.
type DialFunc func(ctx context.Context) (Transport, error)

// Observer receives room events. Calls come from the session's dispatch
// goroutine, or from the coordinator for the embedded mesh events.
type Observer interface {
	mesh.Observer
	Joined(self protocol.Peer)
	Existing([]protocol.Peer)
	PeerJoined(protocol.Peer)
	PeerLeft(protocol.Peer)
	ChatHistory([]protocol.ChatMessage)
	ChatMessage(protocol.ChatMessage)
	ScreenShareNotice(p protocol.Peer, sharing bool)
	RelayError(reason string)
	// Ended reports a session that stopped without Leave.
	Ended(err error)
}

// NopObserver ignores every event. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) LinkChanged(mesh.LinkInfo)                 {}
func (NopObserver) RemoteTrack(mesh.Key, *webrtc.TrackRemote) {}
func (NopObserver) ScreenShareChanged(bool)                   {}
func (NopObserver) Joined(protocol.Peer)                      {}
func (NopObserver) Existing([]protocol.Peer)                  {}
func (NopObserver) PeerJoined(protocol.Peer)                  {}
func (NopObserver) PeerLeft(protocol.Peer)                    {}
func (NopObserver) ChatHistory([]protocol.ChatMessage)        {}
func (NopObserver) ChatMessage(protocol.ChatMessage)          {}
func (NopObserver) ScreenShareNotice(protocol.Peer, bool)     {}
func (NopObserver) RelayError(string)                         {}
func (NopObserver) Ended(error)                               {}

// Options configure Join.
type Options struct {
	RoomID string
	// Name is the proposed display name; the relay picks one when empty.
	Name string

	// URL and Codec are used by the default dialer.
	URL   string
	Codec protocol.Codec
	// Dial replaces the default websocket dialer.
	Dial DialFunc

	Engine             engine.Factory
	Capture            capture.Provider
	NegotiationTimeout time.Duration
	Observer           Observer
	Logger             *slog.Logger
}

// Session is a joined room. Create it with Join and end it with Leave.
type Session struct {
	roomID string
	tr     Transport
	coord  *mesh.Coordinator
	local  *capture.Stream
	obs    Observer
	log    *slog.Logger

	mu     sync.Mutex
	self   protocol.Peer
	roster []protocol.Peer

	leaving atomic.Bool
	endOnce sync.Once
	done    chan struct{}
	err     error
}

// Join acquires the camera and microphone, connects to the relay and asks to
// join opts.RoomID. A capture failure aborts the join.
func Join(ctx context.Context, opts Options) (*Session, error) {
	roomID := strings.TrimSpace(opts.RoomID)
	if roomID == "" {
		return nil, NewError("join room", ErrEmptyRoomID)
	}
	if opts.Engine == nil {
		return nil, NewError("join room", ErrNoEngine)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("room", roomID)
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	provider := opts.Capture
	if provider == nil {
		provider = capture.Synthetic{}
	}

	local, err := provider.Acquire(ctx, capture.KindCameraMic)
	if err != nil {
		return nil, NewError("acquire camera and microphone", err)
	}

	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context) (Transport, error) {
			return transport.Dial(ctx, opts.URL, opts.Codec, logger)
		}
	}
	tr, err := dial(ctx)
	if err != nil {
		local.Stop()
		return nil, WrapError("connect to relay", err, opts.URL)
	}

	s := &Session{
		roomID: roomID,
		tr:     tr,
		local:  local,
		obs:    obs,
		log:    logger,
		done:   make(chan struct{}),
	}
	s.coord = mesh.New(mesh.Options{
		Engine:             opts.Engine,
		Transport:          tr,
		Capture:            provider,
		Local:              local,
		NegotiationTimeout: opts.NegotiationTimeout,
		Observer:           obs,
		Logger:             logger,
	})

	join, err := protocol.NewMessage(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Name: opts.Name})
	if err == nil {
		join.RoomID = roomID
		err = tr.Send(join)
	}
	if err != nil {
		s.coord.Leave()
		return nil, NewError("join room", err)
	}

	go s.dispatch()
	logger.Info("joined room")
	return s, nil
}

func (s *Session) dispatch() {
	for msg := range s.tr.Incoming() {
		s.handle(msg)
	}
	var reason error
	if !s.leaving.Load() {
		reason = ErrDisconnected
	}
	s.end(reason)
}

func (s *Session) end(reason error) {
	s.endOnce.Do(func() {
		if err := s.coord.Leave(); err != nil {
			s.log.Debug("teardown", "err", err)
		}
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()
		close(s.done)
		if reason != nil {
			s.log.Warn("session ended", "err", reason)
			s.obs.Ended(reason)
		}
	})
}

func (s *Session) handle(msg *protocol.Message) {
	if protocol.IsNegotiation(msg.Type) {
		s.coord.Negotiation(msg)
		return
	}

	switch msg.Type {
	case protocol.TypeNameAssigned:
		var self protocol.Peer
		if !s.decode(msg, &self) {
			return
		}
		s.mu.Lock()
		s.self = self
		s.mu.Unlock()
		s.coord.SetSelf(self.ID)
		s.obs.Joined(self)

	case protocol.TypeExistingUsers:
		var peers []protocol.Peer
		if !s.decode(msg, &peers) {
			return
		}
		for _, p := range peers {
			s.addPeer(p)
		}
		// the observer learns of peers before their links report state
		s.obs.Existing(peers)
		s.coord.ExistingUsers(peers)

	case protocol.TypeUserJoined:
		var p protocol.Peer
		if !s.decode(msg, &p) {
			return
		}
		if s.addPeer(p) {
			s.obs.PeerJoined(p)
		}
		s.coord.UserJoined(p)

	case protocol.TypeUserDisconnected:
		var p protocol.Peer
		if !s.decode(msg, &p) {
			return
		}
		p, known := s.removePeer(p.ID)
		s.coord.UserDisconnected(p.ID)
		if known {
			s.obs.PeerLeft(p)
		}

	case protocol.TypeChatHistory:
		var history []protocol.ChatMessage
		if s.decode(msg, &history) {
			s.obs.ChatHistory(history)
		}

	case protocol.TypeNewMessage:
		var m protocol.ChatMessage
		if s.decode(msg, &m) {
			s.obs.ChatMessage(m)
		}

	case protocol.TypeUserStartedScreenShare:
		var p protocol.Peer
		if !s.decode(msg, &p) {
			return
		}
		s.coord.ScreenShareStarted(p)
		s.obs.ScreenShareNotice(p, true)

	case protocol.TypeUserStoppedScreenShare:
		var p protocol.Peer
		if !s.decode(msg, &p) {
			return
		}
		s.coord.ScreenShareStopped(p.ID)
		s.obs.ScreenShareNotice(s.lookup(p.ID), false)

	case protocol.TypeError:
		var e protocol.ErrorPayload
		if s.decode(msg, &e) {
			s.log.Warn("relay rejected a request", "reason", e.Error)
			s.obs.RelayError(e.Error)
		}

	default:
		s.log.Debug("ignoring event", "type", msg.Type)
	}
}

func (s *Session) decode(msg *protocol.Message, v any) bool {
	if err := msg.DecodePayload(v); err != nil {
		s.log.Debug("bad payload", "type", msg.Type, "err", err)
		return false
	}
	return true
}

func (s *Session) addPeer(p protocol.Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" || p.ID == s.self.ID {
		return false
	}
	for _, known := range s.roster {
		if known.ID == p.ID {
			return false
		}
	}
	s.roster = append(s.roster, p)
	return true
}

func (s *Session) removePeer(id string) (protocol.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.roster {
		if p.ID == id {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			return p, true
		}
	}
	return protocol.Peer{ID: id}, false
}

func (s *Session) lookup(id string) protocol.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.roster {
		if p.ID == id {
			return p
		}
	}
	return protocol.Peer{ID: id}
}

// RoomID returns the joined room.
func (s *Session) RoomID() string { return s.roomID }

// Self returns the identity and name the relay assigned, empty until the
// relay confirms the join.
func (s *Session) Self() protocol.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Roster lists the other members in arrival order.
func (s *Session) Roster() []protocol.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Peer{}, s.roster...)
}

// Links returns the coordinator's current links.
func (s *Session) Links() []mesh.LinkInfo { return s.coord.Links() }

// SendChat posts text to the room. The message comes back through
// Observer.ChatMessage like everyone else's.
func (s *Session) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewError("send message", ErrEmptyMessage)
	}
	if s.closed() {
		return NewError("send message", ErrSessionClosed)
	}
	msg, err := protocol.NewMessage(protocol.TypeSendMessage, protocol.SendMessagePayload{Text: text})
	if err != nil {
		return NewError("send message", err)
	}
	if err := s.tr.Send(msg); err != nil {
		return NewError("send message", err)
	}
	return nil
}

// ToggleScreenShare starts or stops sharing the screen and reports whether
// the screen is now shared.
func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	if s.closed() {
		return false, NewError("toggle screen share", ErrSessionClosed)
	}
	on, err := s.coord.ToggleScreenShare(ctx)
	if err != nil {
		return false, NewError("toggle screen share", err)
	}
	return on, nil
}

// ToggleAudio mutes or unmutes the microphone and reports whether it is on.
func (s *Session) ToggleAudio() bool { return s.toggle(capture.Audio) }

// ToggleVideo turns the camera off or on and reports whether it is on.
func (s *Session) ToggleVideo() bool { return s.toggle(capture.Video) }

func (s *Session) toggle(m capture.Media) bool {
	on := !s.local.Enabled(m)
	if !s.local.SetEnabled(m, on) {
		return false
	}
	s.log.Debug("local track toggled", "media", string(m), "enabled", on)
	return on
}

// AudioEnabled reports whether the microphone is on.
func (s *Session) AudioEnabled() bool { return s.local.Enabled(capture.Audio) }

// VideoEnabled reports whether the camera is on.
func (s *Session) VideoEnabled() bool { return s.local.Enabled(capture.Video) }

// Sharing reports whether the screen is being shared.
func (s *Session) Sharing() bool { return s.coord.Sharing() }

// Leave tears the session down and waits for it to finish. It is safe to call
// more than once and after the connection was lost.
func (s *Session) Leave() error {
	s.leaving.Store(true)
	err := s.coord.Leave()
	<-s.done
	if err != nil {
		return NewError("leave room", err)
	}
	return nil
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended: nil after Leave, ErrDisconnected when
// the relay connection was lost.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
