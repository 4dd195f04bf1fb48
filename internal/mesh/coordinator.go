package mesh

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Rogue-56/pinch/internal/capture"
	"github.com/Rogue-56/pinch/internal/engine"
	"github.com/Rogue-56/pinch/internal/logging"
	"github.com/Rogue-56/pinch/internal/protocol"
)

// Options configure a Coordinator.
type Options struct {
	Engine    engine.Factory
	Transport Transport
	// Capture acquires the screen stream when sharing starts.
	Capture capture.Provider
	// Local is the camera-mic stream attached to every media link. The
	// coordinator releases it on Leave.
	Local *capture.Stream
	// NegotiationTimeout destroys links that are still negotiating after
	// this long. Zero disables it.
	NegotiationTimeout time.Duration
	Observer           Observer
	Logger             *slog.Logger
}

type link struct {
	key   Key
	role  engine.Role
	conn  engine.Conn
	state State
	timer *time.Timer
}

func (l *link) info(err error) LinkInfo {
	return LinkInfo{Key: l.key, Role: l.role, State: l.state, Err: err}
}

// Coordinator owns every peer link of one participant. All methods are safe
// for concurrent use and tolerate repeated delivery of the same event.
type Coordinator struct {
	opts Options
	obs  Observer
	log  *slog.Logger

	mu    sync.Mutex
	self  string
	links map[Key]*link
	left  bool

	screen   *capture.Stream
	starting bool
	// sharers holds remotes announced as sharing whose screen link could
	// not be opened yet.
	sharers map[string]bool
	// deferred holds remotes our own share waits for.
	deferred map[string]bool
}

// New returns a Coordinator with no links.
func New(opts Options) *Coordinator {
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		opts:     opts,
		obs:      obs,
		log:      logger.With("component", "mesh"),
		links:    make(map[Key]*link),
		sharers:  make(map[string]bool),
		deferred: make(map[string]bool),
	}
}

// SetSelf records the local connection identity assigned by the relay.
func (c *Coordinator) SetSelf(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = id
}

// Self returns the local identity, empty until SetSelf.
func (c *Coordinator) Self() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// ExistingUsers answers every member that was in the room before us.
func (c *Coordinator) ExistingUsers(peers []protocol.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left {
		return
	}
	for _, p := range peers {
		if p.ID == "" || p.ID == c.self {
			continue
		}
		key := Key{Remote: p.ID, Mesh: Media}
		if _, ok := c.links[key]; ok {
			continue
		}
		c.open(key, engine.Receiver, c.localTracks())
	}
}

// UserJoined initiates toward a newcomer, on the screen mesh too while we
// are sharing.
func (c *Coordinator) UserJoined(p protocol.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left || p.ID == "" || p.ID == c.self {
		return
	}
	key := Key{Remote: p.ID, Mesh: Media}
	if _, ok := c.links[key]; ok {
		return
	}
	c.open(key, engine.Initiator, c.localTracks())
	if c.screen != nil {
		c.shareTo(p.ID)
	}
}

// UserDisconnected removes every link to id.
func (c *Coordinator) UserDisconnected(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sharers, id)
	delete(c.deferred, id)
	for _, m := range []Mesh{Media, Screen} {
		if l, ok := c.links[Key{Remote: id, Mesh: m}]; ok {
			c.remove(l, nil)
		}
	}
}

// ScreenShareStarted opens a receiving screen link to a remote sharer.
func (c *Coordinator) ScreenShareStarted(p protocol.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left || p.ID == "" || p.ID == c.self {
		return
	}
	key := Key{Remote: p.ID, Mesh: Screen}
	if l, ok := c.links[key]; ok {
		if l.role == engine.Initiator {
			// our own share holds the slot until we stop
			c.sharers[p.ID] = true
		}
		return
	}
	delete(c.sharers, p.ID)
	c.open(key, engine.Receiver, nil)
}

// ScreenShareStopped drops the receiving screen link to id and, if our own
// share was waiting on it, offers ours instead.
//
// When both sides started sharing before hearing of each other, each holds
// an outgoing link the other side never answers. The side that stops opens a
// receiver for us, so our unanswered outgoing link is replaced by a fresh one.
func (c *Coordinator) ScreenShareStopped(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	crossed := c.sharers[id]
	delete(c.sharers, id)
	key := Key{Remote: id, Mesh: Screen}
	if l, ok := c.links[key]; ok {
		switch {
		case l.role == engine.Receiver:
			c.remove(l, nil)
		case crossed && l.state != Connected && c.screen != nil && !c.left:
			c.log.Debug("replacing crossed screen link", "link", key.String())
			c.remove(l, nil)
			c.shareTo(id)
			return
		}
	}
	if c.deferred[id] {
		delete(c.deferred, id)
		if c.screen != nil && !c.left {
			c.shareTo(id)
		}
	}
}

// Negotiation applies an inbound offer, answer or candidate to the link it
// belongs to. Payloads for links that no longer exist are dropped.
func (c *Coordinator) Negotiation(msg *protocol.Message) {
	var sig engine.Signal
	if err := json.Unmarshal(msg.Payload, &sig); err != nil {
		c.log.Debug("undecodable negotiation payload", "type", msg.Type, "from", msg.From, "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left {
		return
	}
	key := Key{Remote: msg.From, Mesh: meshOf(msg.Type)}
	l, ok := c.links[key]
	if !ok || l.conn.Destroyed() {
		c.log.Debug("negotiation for unknown link dropped", "link", key.String(), "type", msg.Type)
		return
	}
	if err := l.conn.Signal(sig); err != nil {
		c.log.Warn("signal rejected", "link", key.String(), "type", msg.Type, "err", err)
	}
}

// Links returns a snapshot of the live links, ordered by mesh then remote.
func (c *Coordinator) Links() []LinkInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LinkInfo, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l.info(nil))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Mesh != out[j].Key.Mesh {
			return out[i].Key.Mesh < out[j].Key.Mesh
		}
		return out[i].Key.Remote < out[j].Key.Remote
	})
	return out
}

// Sharing reports whether the local participant is sharing its screen.
func (c *Coordinator) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}

// StartScreenShare acquires the screen, announces it and offers it to every
// media peer. It is a no-op while a share is active or starting.
func (c *Coordinator) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return ErrLeft
	}
	if c.screen != nil || c.starting {
		c.mu.Unlock()
		return nil
	}
	if c.opts.Capture == nil {
		c.mu.Unlock()
		return capture.ErrUnavailable
	}
	c.starting = true
	c.mu.Unlock()

	stream, err := c.opts.Capture.Acquire(ctx, capture.KindScreen)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	if err != nil {
		return err
	}
	if c.left {
		stream.Stop()
		return ErrLeft
	}

	c.screen = stream
	c.send(&protocol.Message{Type: protocol.TypeStartScreenShare})
	for key := range c.links {
		if key.Mesh == Media {
			c.shareTo(key.Remote)
		}
	}
	c.obs.ScreenShareChanged(true)
	go c.watchScreen(stream)
	return nil
}

// StopScreenShare ends the local share. It is a no-op when not sharing.
func (c *Coordinator) StopScreenShare() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopScreen()
}

// ToggleScreenShare starts or stops the local share and reports the new state.
func (c *Coordinator) ToggleScreenShare(ctx context.Context) (bool, error) {
	if c.Sharing() {
		c.StopScreenShare()
		return false, nil
	}
	if err := c.StartScreenShare(ctx); err != nil {
		return false, err
	}
	return c.Sharing(), nil
}

func (c *Coordinator) watchScreen(s *capture.Stream) {
	select {
	case <-s.Ended():
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.screen == s {
			c.log.Info("screen capture ended")
			c.stopScreen()
		}
	case <-s.Done():
	}
}

func (c *Coordinator) stopScreen() {
	if c.screen == nil {
		return
	}
	s := c.screen
	c.screen = nil
	s.Stop()
	c.send(&protocol.Message{Type: protocol.TypeStopScreenShare})

	for key, l := range c.links {
		if key.Mesh == Screen && l.role == engine.Initiator {
			c.remove(l, nil)
		}
	}
	clear(c.deferred)

	// remotes that started sharing while our share held their slot
	for id := range c.sharers {
		delete(c.sharers, id)
		key := Key{Remote: id, Mesh: Screen}
		if _, ok := c.links[key]; !ok {
			c.open(key, engine.Receiver, nil)
		}
	}
	c.obs.ScreenShareChanged(false)
}

// shareTo offers the local screen to remote, or defers it while remote's own
// share occupies the screen slot.
func (c *Coordinator) shareTo(remote string) {
	key := Key{Remote: remote, Mesh: Screen}
	if l, ok := c.links[key]; ok {
		if l.role == engine.Receiver {
			c.deferred[remote] = true
		}
		return
	}
	c.open(key, engine.Initiator, c.screen.Tracks())
}

// Leave destroys every link, releases the capture streams and closes the
// transport, in that order. Later calls return nil.
func (c *Coordinator) Leave() error {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	for _, l := range c.links {
		c.remove(l, nil)
	}
	if c.screen != nil {
		c.screen.Stop()
		c.screen = nil
	}
	if c.opts.Local != nil {
		c.opts.Local.Stop()
	}
	c.mu.Unlock()

	if c.opts.Transport == nil {
		return nil
	}
	return c.opts.Transport.Close()
}

func (c *Coordinator) localTracks() []webrtc.TrackLocal {
	if c.opts.Local == nil {
		return nil
	}
	return c.opts.Local.Tracks()
}

// open creates a link under key. Callers hold c.mu and have checked the key
// is free.
func (c *Coordinator) open(key Key, role engine.Role, tracks []webrtc.TrackLocal) {
	l := &link{key: key, role: role, state: Negotiating}
	conn, err := c.opts.Engine.NewConn(engine.Options{
		Role:   role,
		Label:  key.String(),
		Tracks: tracks,
	}, c.handlers(l))
	if err != nil {
		c.log.Error("create link failed", "link", key.String(), "role", role.String(), "err", err)
		l.state = Closed
		c.obs.LinkChanged(l.info(err))
		return
	}
	l.conn = conn
	c.links[key] = l
	if d := c.opts.NegotiationTimeout; d > 0 {
		l.timer = time.AfterFunc(d, func() { c.expire(l) })
	}
	c.log.Debug("link opened", "link", key.String(), "role", role.String())
	c.obs.LinkChanged(l.info(nil))
}

// remove destroys l and forgets it. Callers hold c.mu.
func (c *Coordinator) remove(l *link, reason error) {
	if c.links[l.key] != l {
		return
	}
	delete(c.links, l.key)
	if l.timer != nil {
		l.timer.Stop()
	}
	if !l.conn.Destroyed() {
		if err := l.conn.Destroy(); err != nil {
			c.log.Debug("destroy link", "link", l.key.String(), "err", err)
		}
	}
	l.state = Closed
	c.log.Debug("link closed", "link", l.key.String(), "reason", reason)
	c.obs.LinkChanged(l.info(reason))
}

func (c *Coordinator) current(l *link) bool {
	return !c.left && c.links[l.key] == l
}

func (c *Coordinator) expire(l *link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(l) || l.state != Negotiating {
		return
	}
	c.log.Warn("negotiation timed out", "link", l.key.String(), "after", c.opts.NegotiationTimeout)
	c.remove(l, ErrNegotiationTimeout)
}

func (c *Coordinator) handlers(l *link) engine.Handlers {
	return engine.Handlers{
		OnSignal: func(s engine.Signal) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.current(l) {
				return
			}
			payload, err := json.Marshal(s)
			if err != nil {
				c.log.Debug("encode signal", "link", l.key.String(), "err", err)
				return
			}
			c.send(&protocol.Message{
				Type:    messageType(l.key.Mesh, s.Kind()),
				Target:  l.key.Remote,
				Payload: payload,
			})
		},
		OnTrack: func(t *webrtc.TrackRemote) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.current(l) {
				c.obs.RemoteTrack(l.key, t)
			}
		},
		OnConnected: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.current(l) || l.state != Negotiating {
				return
			}
			l.state = Connected
			if l.timer != nil {
				l.timer.Stop()
			}
			c.log.Info("link connected", "link", l.key.String(), "role", l.role.String())
			c.obs.LinkChanged(l.info(nil))
		},
		OnClosed: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.current(l) {
				c.remove(l, err)
			}
		},
	}
}

// send is called with c.mu held so events leave in the order they were
// decided.
func (c *Coordinator) send(msg *protocol.Message) {
	if c.opts.Transport == nil {
		return
	}
	if err := c.opts.Transport.Send(msg); err != nil {
		c.log.Debug("send failed", "type", msg.Type, "target", msg.Target, "err", err)
	}
}
