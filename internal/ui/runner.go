package ui

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"

	"github.com/Rogue-56/pinch/internal/mesh"
	"github.com/Rogue-56/pinch/internal/protocol"
)

// RoomUI runs the room view and receives room events from the session.
// Events are queued on a channel so callers never wait on the render loop
// while holding their own locks.
type RoomUI struct {
	model   *RoomModel
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger
}

// NewRoomUI creates the view for roomID. Attach a controller before Run.
func NewRoomUI(roomID, roomLink string, logger *slog.Logger) *RoomUI {
	updates := make(chan tea.Msg, 256)
	return &RoomUI{
		model:   NewRoomModel(roomID, roomLink, nil, updates),
		updates: updates,
		done:    make(chan struct{}),
		log:     logger,
	}
}

// Attach sets what the view's commands act on.
func (u *RoomUI) Attach(ctrl Controller) {
	u.model.ctrl = ctrl
}

// Run blocks until the user leaves or the session ends. It returns the
// session's end reason, if any.
func (u *RoomUI) Run(in io.Reader, out io.Writer) error {
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	u.program = tea.NewProgram(u.model, opts...)
	defer u.Stop()
	if _, err := u.program.Run(); err != nil {
		return err
	}
	return u.model.Ended()
}

// Stop releases anyone still delivering events.
func (u *RoomUI) Stop() {
	u.once.Do(func() { close(u.done) })
}

// push queues msg without waiting. Room events arrive under the
// coordinator's lock, so a stalled view drops events instead of stalling
// the call.
func (u *RoomUI) push(msg tea.Msg) {
	select {
	case u.updates <- msg:
	case <-u.done:
	default:
		if u.log != nil {
			u.log.Warn("room view is behind, dropping event", "event", fmt.Sprintf("%T", msg))
		}
	}
}

// pushWait queues msg, waiting for room in the queue until the view stops.
func (u *RoomUI) pushWait(msg tea.Msg) {
	select {
	case u.updates <- msg:
	case <-u.done:
	}
}

func (u *RoomUI) LinkChanged(info mesh.LinkInfo) { u.push(linkMsg{info: info}) }

// RemoteTrack records the track and reads it to the end. The terminal has
// no way to play media.
func (u *RoomUI) RemoteTrack(key mesh.Key, t *webrtc.TrackRemote) {
	u.push(trackMsg{key: key, kind: t.Kind()})
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := t.Read(buf); err != nil {
				if u.log != nil {
					u.log.Debug("remote track ended", "link", key.String(), "err", err)
				}
				return
			}
		}
	}()
}

func (u *RoomUI) ScreenShareChanged(sharing bool) { u.push(localShareMsg{sharing: sharing}) }

// Session events come from the dispatch goroutine, outside the coordinator's
// lock, so they wait for room in the queue rather than being dropped.

func (u *RoomUI) Joined(self protocol.Peer)          { u.pushWait(joinedMsg{self: self}) }
func (u *RoomUI) Existing(peers []protocol.Peer)     { u.pushWait(existingMsg{peers: peers}) }
func (u *RoomUI) PeerJoined(p protocol.Peer)         { u.pushWait(peerJoinedMsg{peer: p}) }
func (u *RoomUI) PeerLeft(p protocol.Peer)           { u.pushWait(peerLeftMsg{peer: p}) }
func (u *RoomUI) ChatMessage(m protocol.ChatMessage) { u.pushWait(chatMsg{msg: m}) }
func (u *RoomUI) RelayError(reason string)           { u.pushWait(relayErrorMsg{reason: reason}) }
func (u *RoomUI) Ended(err error)                    { u.pushWait(endedMsg{err: err}) }

func (u *RoomUI) ChatHistory(h []protocol.ChatMessage) {
	u.pushWait(historyMsg{history: h})
}

func (u *RoomUI) ScreenShareNotice(p protocol.Peer, sharing bool) {
	u.pushWait(shareNoticeMsg{peer: p, sharing: sharing})
}
