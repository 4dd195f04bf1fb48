// Package mesh keeps one peer connection per (remote participant, mesh) pair
// for a participant in a room. It has two independent meshes: media carries
// the camera and microphone, screen carries screen shares.
package mesh

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/Rogue-56/pinch/internal/engine"
	"github.com/Rogue-56/pinch/internal/protocol"
)

var (
	ErrLeft               = errors.New("mesh: already left the room")
	ErrNegotiationTimeout = errors.New("mesh: negotiation timed out")
)

// Mesh names one of the two link families.
type Mesh string

const (
	Media  Mesh = "media"
	Screen Mesh = "screen"
)

// InitiatorRule pins which side of a new pair creates the offer. Both ends of
// every link must agree on it, so it is part of the protocol.
type InitiatorRule int

const (
	// ExistingMemberInitiates has members already in the room offer to a
	// newcomer. The newcomer answers every link it learns about from its
	// existing-users snapshot.
	ExistingMemberInitiates InitiatorRule = iota
)

// Rule is the tie-break in use.
const Rule = ExistingMemberInitiates

// State is a link's lifecycle position. Closed is terminal.
type State int

const (
	Negotiating State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Key identifies a link.
type Key struct {
	Remote string
	Mesh   Mesh
}

func (k Key) String() string { return string(k.Mesh) + "/" + k.Remote }

// LinkInfo is a snapshot of one link.
type LinkInfo struct {
	Key   Key
	Role  engine.Role
	State State
	// Err is set on a Closed link that failed or timed out.
	Err error
}

// Observer receives coordinator events. Calls are made with the coordinator's
// lock held: implementations must not block, for example by dropping events
// when their own queue is full, and must not call back into the Coordinator.
type Observer interface {
	LinkChanged(LinkInfo)
	RemoteTrack(Key, *webrtc.TrackRemote)
	ScreenShareChanged(sharing bool)
}

type nopObserver struct{}

func (nopObserver) LinkChanged(LinkInfo)                 {}
func (nopObserver) RemoteTrack(Key, *webrtc.TrackRemote) {}
func (nopObserver) ScreenShareChanged(bool)              {}

// Transport is the coordinator's side of the relay connection.
type Transport interface {
	Send(*protocol.Message) error
	Close() error
}

// messageType maps an engine signal kind to the event that carries it on m.
func messageType(m Mesh, kind string) string {
	switch kind {
	case engine.KindOffer:
		if m == Screen {
			return protocol.TypeScreenOffer
		}
		return protocol.TypeOffer
	case engine.KindAnswer:
		if m == Screen {
			return protocol.TypeScreenAnswer
		}
		return protocol.TypeAnswer
	case engine.KindCandidate:
		if m == Screen {
			return protocol.TypeScreenICECandidate
		}
		return protocol.TypeICECandidate
	}
	return ""
}

// meshOf reports which mesh a negotiation event belongs to.
func meshOf(msgType string) Mesh {
	if protocol.IsScreenNegotiation(msgType) {
		return Screen
	}
	return Media
}
