// Package capture supplies the local media a participant sends: the
// camera-mic stream for the media mesh and the screen stream for the screen
// mesh.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Kind selects what to capture.
type Kind string

const (
	KindCameraMic Kind = "camera-mic"
	KindScreen    Kind = "screen"
)

// Media identifies one track of a stream.
type Media string

const (
	Audio Media = "audio"
	Video Media = "video"
)

var ErrUnavailable = errors.New("capture: source unavailable")

// Provider acquires local streams.
type Provider interface {
	Acquire(ctx context.Context, kind Kind) (*Stream, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, kind Kind) (*Stream, error)

func (f ProviderFunc) Acquire(ctx context.Context, kind Kind) (*Stream, error) {
	return f(ctx, kind)
}

// Stream is an acquired capture. Tracks stay valid until Stop.
type Stream struct {
	kind   Kind
	tracks map[Media]*webrtc.TrackLocalStaticSample

	enabled map[Media]*atomic.Bool

	ended    chan struct{}
	endOnce  sync.Once
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newStream(kind Kind) *Stream {
	return &Stream{
		kind:    kind,
		tracks:  make(map[Media]*webrtc.TrackLocalStaticSample),
		enabled: make(map[Media]*atomic.Bool),
		ended:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Stream) addTrack(m Media, t *webrtc.TrackLocalStaticSample) {
	s.tracks[m] = t
	on := &atomic.Bool{}
	on.Store(true)
	s.enabled[m] = on
}

func (s *Stream) Kind() Kind { return s.kind }

// Tracks returns the stream's tracks, audio first.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	for _, m := range []Media{Audio, Video} {
		if t, ok := s.tracks[m]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Has reports whether the stream carries m.
func (s *Stream) Has(m Media) bool {
	_, ok := s.tracks[m]
	return ok
}

// SetEnabled mutes or unmutes one track. The track stays negotiated; a
// disabled track just stops producing samples.
func (s *Stream) SetEnabled(m Media, on bool) bool {
	flag, ok := s.enabled[m]
	if !ok {
		return false
	}
	flag.Store(on)
	return true
}

// Enabled reports whether m is currently producing samples.
func (s *Stream) Enabled(m Media) bool {
	flag, ok := s.enabled[m]
	return ok && flag.Load()
}

// Ended is closed when the source stops on its own, e.g. the user ends a
// screen share from the system picker.
func (s *Stream) Ended() <-chan struct{} { return s.ended }

// End signals that the source stopped outside the application.
func (s *Stream) End() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Done is closed once Stop has been called.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Stop releases the stream. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// Stopped reports whether Stop was called.
func (s *Stream) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
