package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	ptransport "github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"

	"github.com/Rogue-56/pinch/internal/config"
	"github.com/Rogue-56/pinch/internal/logging"
)

// PionConfig configures the pion-backed Factory.
type PionConfig struct {
	ICEServers []webrtc.ICEServer
	RelayOnly  bool
	Logger     *slog.Logger

	// Net replaces the host network, e.g. with a pion vnet in tests.
	Net ptransport.Net
}

// ConfigFromClient builds the ICE setup from client configuration. With a
// TURN server configured, relay-only mode is also chosen when the host looks
// like it is behind a VPN or carrier NAT.
func ConfigFromClient(cfg *config.Client, logger *slog.Logger) PionConfig {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}
	return PionConfig{
		ICEServers: servers,
		RelayOnly:  cfg.TURNServer != "" && (cfg.ForceRelay || restrictedNetwork()),
		Logger:     logger,
	}
}

// Pion creates pion/webrtc peer connections.
type Pion struct {
	api *webrtc.API
	cfg webrtc.Configuration
	log *slog.Logger
}

// NewPion builds an API with the default codecs and interceptors.
func NewPion(cfg PionConfig) (*Pion, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(cfg.Logger)}
	if cfg.Net != nil {
		se.SetNet(cfg.Net)
	}

	policy := webrtc.ICETransportPolicyAll
	if cfg.RelayOnly {
		policy = webrtc.ICETransportPolicyRelay
	}

	return &Pion{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		cfg: webrtc.Configuration{
			ICEServers:         cfg.ICEServers,
			ICETransportPolicy: policy,
		},
		log: cfg.Logger,
	}, nil
}

type pionConn struct {
	pc    *webrtc.PeerConnection
	role  Role
	h     Handlers
	log   *slog.Logger
	label string

	events chan func()
	quit   chan struct{}

	mu         sync.Mutex
	remoteSDP  string
	remoteSet  bool
	pending    []webrtc.ICECandidateInit
	destroyed  atomic.Bool
	closedOnce sync.Once
}

// NewConn creates a peer connection. Initiators create and emit their offer
// before returning.
func (p *Pion) NewConn(opts Options, h Handlers) (Conn, error) {
	pc, err := p.api.NewPeerConnection(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	c := &pionConn{
		pc:     pc,
		role:   opts.Role,
		h:      h,
		log:    p.log.With("link", opts.Label, "role", opts.Role.String()),
		label:  opts.Label,
		events: make(chan func(), 256),
		quit:   make(chan struct{}),
	}

	for _, track := range opts.Tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		go drainRTCP(sender)
	}
	if len(opts.Tracks) == 0 && opts.Role == Initiator {
		// an offer without tracks still needs m-lines to negotiate
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		c.emit(func() { c.signal(Signal{Candidate: &init}) })
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Debug("remote track", "kind", track.Kind().String(), "id", track.ID())
		c.emit(func() {
			if c.h.OnTrack != nil {
				c.h.OnTrack(track)
			}
		})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Debug("connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			c.emit(func() {
				if c.h.OnConnected != nil {
					c.h.OnConnected()
				}
			})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.emit(func() { c.closed(fmt.Errorf("peer connection %s", state)) })
		}
	})

	go c.loop()

	if opts.Role == Initiator {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			c.Destroy()
			return nil, fmt.Errorf("create offer: %w", err)
		}
		// queued before SetLocalDescription so it precedes every candidate
		c.emit(func() { c.signal(Signal{SDP: &offer}) })
		if err := pc.SetLocalDescription(offer); err != nil {
			c.Destroy()
			return nil, fmt.Errorf("set local description: %w", err)
		}
	}

	return c, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *pionConn) loop() {
	for {
		select {
		case fn := <-c.events:
			if !c.destroyed.Load() {
				fn()
			}
		case <-c.quit:
			return
		}
	}
}

func (c *pionConn) emit(fn func()) {
	if c.destroyed.Load() {
		return
	}
	select {
	case c.events <- fn:
	case <-c.quit:
	}
}

func (c *pionConn) signal(s Signal) {
	if c.h.OnSignal != nil {
		c.h.OnSignal(s)
	}
}

func (c *pionConn) closed(err error) {
	c.closedOnce.Do(func() {
		if c.h.OnClosed != nil {
			c.h.OnClosed(err)
		}
	})
}

func (c *pionConn) Signal(s Signal) error {
	if c.destroyed.Load() {
		return ErrDestroyed
	}

	switch s.Kind() {
	case KindOffer:
		if c.role != Receiver {
			return fmt.Errorf("%w: offer on %s %s link", ErrUnexpectedSignal, c.role, c.label)
		}
		applied, err := c.setRemote(*s.SDP)
		if err != nil || !applied {
			return err
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		c.emit(func() { c.signal(Signal{SDP: &answer}) })
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return nil

	case KindAnswer:
		if c.role != Initiator {
			return fmt.Errorf("%w: answer on %s %s link", ErrUnexpectedSignal, c.role, c.label)
		}
		_, err := c.setRemote(*s.SDP)
		return err

	case KindCandidate:
		c.mu.Lock()
		if !c.remoteSet {
			c.pending = append(c.pending, *s.Candidate)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		if err := c.pc.AddICECandidate(*s.Candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil
	}
	return ErrEmptySignal
}

// setRemote applies a remote description once. A redelivered copy of the
// same description is ignored and reported as not applied.
func (c *pionConn) setRemote(desc webrtc.SessionDescription) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remoteSet {
		if desc.SDP == c.remoteSDP {
			return false, nil
		}
		return false, fmt.Errorf("%w: second remote %s on %s link", ErrUnexpectedSignal, desc.Type, c.label)
	}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return false, fmt.Errorf("set remote description: %w", err)
	}
	c.remoteSet = true
	c.remoteSDP = desc.SDP

	var errs []error
	for _, cand := range c.pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			errs = append(errs, err)
		}
	}
	c.pending = nil
	if err := errors.Join(errs...); err != nil {
		c.log.Debug("queued candidates rejected", "err", err)
	}
	return true, nil
}

func (c *pionConn) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.quit)
	return c.pc.Close()
}

func (c *pionConn) Destroyed() bool {
	return c.destroyed.Load()
}
