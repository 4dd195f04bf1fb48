// Package engine abstracts the peer connection that carries media between two
// participants. The coordinator only sees Conn; the pion implementation lives
// in pion.go.
package engine

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	ErrDestroyed        = errors.New("engine: connection destroyed")
	ErrUnexpectedSignal = errors.New("engine: unexpected signal")
	ErrEmptySignal      = errors.New("engine: empty signal")
)

// Role says which side of a link creates the offer.
type Role int

const (
	Initiator Role = iota
	Receiver
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "receiver"
}

// Signal kinds.
const (
	KindOffer     = "offer"
	KindAnswer    = "answer"
	KindCandidate = "candidate"
)

// Signal is one negotiation message produced or consumed by a Conn. Exactly
// one of SDP and Candidate is set. On the wire it is the bare session
// description or ICE candidate JSON.
type Signal struct {
	SDP       *webrtc.SessionDescription
	Candidate *webrtc.ICECandidateInit
}

// Kind classifies the signal by shape.
func (s Signal) Kind() string {
	switch {
	case s.SDP != nil && s.SDP.Type == webrtc.SDPTypeOffer:
		return KindOffer
	case s.SDP != nil && s.SDP.Type == webrtc.SDPTypeAnswer:
		return KindAnswer
	case s.Candidate != nil:
		return KindCandidate
	}
	return ""
}

func (s Signal) MarshalJSON() ([]byte, error) {
	switch {
	case s.SDP != nil:
		return json.Marshal(s.SDP)
	case s.Candidate != nil:
		return json.Marshal(s.Candidate)
	}
	return nil, ErrEmptySignal
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	var probe struct {
		SDP       *string `json:"sdp"`
		Candidate *string `json:"candidate"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch {
	case probe.SDP != nil:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(data, &desc); err != nil {
			return err
		}
		*s = Signal{SDP: &desc}
	case probe.Candidate != nil:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(data, &cand); err != nil {
			return err
		}
		*s = Signal{Candidate: &cand}
	default:
		return ErrEmptySignal
	}
	return nil
}

// Handlers receive a Conn's events. They are called from a goroutine owned by
// the Conn, one at a time, never from inside NewConn, Signal or Destroy.
// Any of them may be nil.
type Handlers struct {
	OnSignal    func(Signal)
	OnTrack     func(*webrtc.TrackRemote)
	OnConnected func()
	// OnClosed reports a connection that failed or was closed by the remote
	// side. It is not called after Destroy.
	OnClosed func(error)
}

// Options describe a connection to create.
type Options struct {
	Role Role
	// Label names the link in logs, e.g. "media" or "screen".
	Label  string
	Tracks []webrtc.TrackLocal
}

// Conn is one peer connection.
type Conn interface {
	// Signal applies a remote negotiation message.
	Signal(Signal) error
	// Destroy closes the connection and releases its resources. Safe to call
	// more than once.
	Destroy() error
	Destroyed() bool
}

// Factory creates connections. An Initiator conn starts negotiating right
// away and emits its offer through OnSignal.
type Factory interface {
	NewConn(Options, Handlers) (Conn, error)
}
