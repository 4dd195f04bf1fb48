package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = time.Second / 15
)

var (
	// opusSilence is a single Opus frame encoding 20ms of silence.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// vp8Black is a placeholder frame; receivers only need a steady stream.
	vp8Black = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x02, 0x00, 0x02, 0x00}
)

// Synthetic produces silent audio and placeholder video without touching any
// device. The terminal client uses it since it has no camera pipeline.
type Synthetic struct {
	// StreamID prefixes track stream ids; a random one is used when empty.
	StreamID string
}

func (p Synthetic) Acquire(ctx context.Context, kind Kind) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := p.StreamID
	if streamID == "" {
		streamID = "pinch-" + uuid.NewString()[:8]
	}
	streamID += "-" + string(kind)

	s := newStream(kind)
	switch kind {
	case KindCameraMic:
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", streamID)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
		s.addTrack(Audio, audio)
		fallthrough
	case KindScreen:
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		s.addTrack(Video, video)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrUnavailable, kind)
	}

	for m, t := range s.tracks {
		payload, every := vp8Black, videoFrame
		if m == Audio {
			payload, every = opusSilence, audioFrame
		}
		s.wg.Add(1)
		go s.pump(m, t, payload, every)
	}
	return s, nil
}

func (s *Stream) pump(m Media, t *webrtc.TrackLocalStaticSample, payload []byte, every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.Enabled(m) {
				continue
			}
			// no bound peers yet is not an error worth surfacing
			_ = t.WriteSample(media.Sample{Data: payload, Duration: every})
		case <-s.ended:
			return
		case <-s.done:
			return
		}
	}
}
