package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pion/webrtc/v4"

	"github.com/Rogue-56/pinch/internal/mesh"
	"github.com/Rogue-56/pinch/internal/protocol"
)

const (
	maxLines     = 200
	shareTimeout = 30 * time.Second
)

// Controller is what the room view drives. The view only calls it from
// commands, never from Update.
type Controller interface {
	SendChat(text string) error
	ToggleScreenShare(ctx context.Context) (bool, error)
	ToggleAudio() bool
	ToggleVideo() bool
}

// room events, delivered through RoomUI's update channel
type (
	joinedMsg      struct{ self protocol.Peer }
	existingMsg    struct{ peers []protocol.Peer }
	peerJoinedMsg  struct{ peer protocol.Peer }
	peerLeftMsg    struct{ peer protocol.Peer }
	historyMsg     struct{ history []protocol.ChatMessage }
	chatMsg        struct{ msg protocol.ChatMessage }
	shareNoticeMsg struct {
		peer    protocol.Peer
		sharing bool
	}
	relayErrorMsg struct{ reason string }
	endedMsg      struct{ err error }
	linkMsg       struct{ info mesh.LinkInfo }
	trackMsg      struct {
		key  mesh.Key
		kind webrtc.RTPCodecType
	}
	localShareMsg struct{ sharing bool }
)

// results of controller commands
type (
	audioMsg  struct{ on bool }
	videoMsg  struct{ on bool }
	shareMsg  struct{ err error }
	sentMsg   struct{ err error }
	updateMsg struct{ msg tea.Msg }
)

type peerState struct {
	peer    protocol.Peer
	links   map[mesh.Mesh]mesh.LinkInfo
	tracks  map[mesh.Mesh][]string
	sharing bool
}

// RoomModel is the bubbletea model of a joined room.
type RoomModel struct {
	roomID   string
	roomLink string
	ctrl     Controller
	updates  <-chan tea.Msg

	self    protocol.Peer
	joined  bool
	peers   []*peerState
	lines   []string
	audioOn bool
	videoOn bool
	sharing bool

	input   textinput.Model
	spinner spinner.Model
	width   int

	ended    error
	quitting bool
}

// NewRoomModel returns a model for roomID driven by ctrl. updates may be nil.
func NewRoomModel(roomID, roomLink string, ctrl Controller, updates <-chan tea.Msg) *RoomModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /help"
	ti.CharLimit = 4000
	ti.Width = 60
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomModel{
		roomID:   roomID,
		roomLink: roomLink,
		ctrl:     ctrl,
		updates:  updates,
		audioOn:  true,
		videoOn:  true,
		input:    ti,
		spinner:  s,
		width:    100,
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listenForUpdates())
}

func (m *RoomModel) listenForUpdates() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-m.updates
		if !ok {
			return nil
		}
		return updateMsg{msg: msg}
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		_, cmd := m.Update(msg.msg)
		return m, tea.Batch(cmd, m.listenForUpdates())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			return m, m.submit(line)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-8)

	case spinner.TickMsg:
		if m.joined {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case joinedMsg:
		m.self = msg.self
		m.joined = true
		m.system(fmt.Sprintf("You joined as %s", SelfSenderStyle.Render(msg.self.Name)))

	case existingMsg:
		for _, p := range msg.peers {
			m.peer(p)
		}
		if len(msg.peers) > 0 {
			m.system(fmt.Sprintf("%d already here", len(msg.peers)))
		}

	case peerJoinedMsg:
		m.peer(msg.peer)
		m.system(fmt.Sprintf("%s %s joined", IconPeer, nameOf(msg.peer)))

	case peerLeftMsg:
		m.dropPeer(msg.peer.ID)
		m.system(fmt.Sprintf("%s left", nameOf(msg.peer)))

	case historyMsg:
		for _, c := range msg.history {
			m.chat(c)
		}

	case chatMsg:
		m.chat(msg.msg)

	case shareNoticeMsg:
		if p := m.find(msg.peer.ID); p != nil {
			p.sharing = msg.sharing
		}
		verb := "stopped"
		if msg.sharing {
			verb = "started"
		}
		m.system(fmt.Sprintf("%s %s %s sharing their screen", IconScreen, nameOf(msg.peer), verb))

	case relayErrorMsg:
		m.errorLine("relay: " + msg.reason)

	case endedMsg:
		m.ended = msg.err
		m.errorLine(msg.err.Error())
		return m, tea.Quit

	case linkMsg:
		m.link(msg.info)

	case trackMsg:
		if p := m.find(msg.key.Remote); p != nil {
			p.tracks[msg.key.Mesh] = append(p.tracks[msg.key.Mesh], msg.kind.String())
		}

	case localShareMsg:
		m.sharing = msg.sharing

	case audioMsg:
		m.audioOn = msg.on

	case videoMsg:
		m.videoOn = msg.on

	case shareMsg:
		if msg.err != nil {
			m.errorLine("screen share: " + msg.err.Error())
		}

	case sentMsg:
		if msg.err != nil {
			m.errorLine(msg.err.Error())
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit turns one input line into a command.
func (m *RoomModel) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		ctrl := m.ctrl
		return func() tea.Msg { return sentMsg{err: ctrl.SendChat(line)} }
	}

	switch strings.Fields(line)[0] {
	case "/quit", "/leave":
		m.quitting = true
		return tea.Quit
	case "/mute", "/mic":
		ctrl := m.ctrl
		return func() tea.Msg { return audioMsg{on: ctrl.ToggleAudio()} }
	case "/video", "/cam":
		ctrl := m.ctrl
		return func() tea.Msg { return videoMsg{on: ctrl.ToggleVideo()} }
	case "/share":
		ctrl := m.ctrl
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), shareTimeout)
			defer cancel()
			_, err := ctrl.ToggleScreenShare(ctx)
			return shareMsg{err: err}
		}
	case "/link":
		m.system(IconLink + " " + m.roomLink)
	case "/help":
		m.system("/share  toggle screen share   /mute  toggle microphone   /video  toggle camera")
		m.system("/link   show the room link     /quit  leave the room")
	default:
		m.errorLine("unknown command " + line)
	}
	return nil
}

func (m *RoomModel) peer(p protocol.Peer) *peerState {
	if ps := m.find(p.ID); ps != nil {
		if p.Name != "" {
			ps.peer.Name = p.Name
		}
		return ps
	}
	ps := &peerState{
		peer:   p,
		links:  make(map[mesh.Mesh]mesh.LinkInfo),
		tracks: make(map[mesh.Mesh][]string),
	}
	m.peers = append(m.peers, ps)
	return ps
}

func (m *RoomModel) find(id string) *peerState {
	for _, p := range m.peers {
		if p.peer.ID == id {
			return p
		}
	}
	return nil
}

func (m *RoomModel) dropPeer(id string) {
	for i, p := range m.peers {
		if p.peer.ID == id {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			return
		}
	}
}

func (m *RoomModel) link(info mesh.LinkInfo) {
	p := m.find(info.Key.Remote)
	if p == nil {
		if info.State == mesh.Closed {
			if info.Err != nil {
				m.errorLine(fmt.Sprintf("%s link to %s failed: %v", info.Key.Mesh, info.Key.Remote, info.Err))
			}
			return
		}
		p = m.peer(protocol.Peer{ID: info.Key.Remote})
	}
	if info.State == mesh.Closed {
		delete(p.links, info.Key.Mesh)
		delete(p.tracks, info.Key.Mesh)
		if info.Err != nil {
			m.errorLine(fmt.Sprintf("%s link to %s failed: %v", info.Key.Mesh, nameOf(p.peer), info.Err))
		}
		return
	}
	p.links[info.Key.Mesh] = info
}

func (m *RoomModel) chat(c protocol.ChatMessage) {
	style := SenderStyle
	if c.SenderID != "" && c.SenderID == m.self.ID {
		style = SelfSenderStyle
	}
	m.appendLine(fmt.Sprintf("%s %s", style.Render(c.SenderName+":"), c.Text))
}

func (m *RoomModel) system(s string) {
	m.appendLine(MutedStyle.Render("· " + s))
}

func (m *RoomModel) errorLine(s string) {
	m.appendLine(ErrorStyle.Render(IconError + " " + s))
}

func (m *RoomModel) appendLine(s string) {
	m.lines = append(m.lines, s)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

func nameOf(p protocol.Peer) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func linkLabel(p *peerState, m mesh.Mesh) string {
	info, ok := p.links[m]
	if !ok {
		return "-"
	}
	label := info.State.String()
	if tracks := p.tracks[m]; len(tracks) > 0 {
		label += " (" + strings.Join(tracks, "+") + ")"
	}
	return label
}

// Rows returns the participants panel content.
func (m *RoomModel) Rows() []ParticipantRow {
	rows := make([]ParticipantRow, 0, len(m.peers))
	for _, p := range m.peers {
		rows = append(rows, ParticipantRow{
			Name:    nameOf(p.peer),
			Media:   linkLabel(p, mesh.Media),
			Screen:  linkLabel(p, mesh.Screen),
			Sharing: p.sharing,
		})
	}
	return rows
}

// Ended reports why the room closed underneath the view, if it did.
func (m *RoomModel) Ended() error { return m.ended }

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := fmt.Sprintf("pinch %s %s", IconRoom, m.roomID)
	if m.joined {
		title += "  " + m.self.Name + " (you)"
	}
	b.WriteString(HeaderStyle.Render(title) + " " + m.status() + "\n\n")

	if !m.joined {
		b.WriteString(fmt.Sprintf("%s Waiting for the relay...\n", m.spinner.View()))
	}

	chatWidth := max(30, m.width*3/5)
	start := max(0, len(m.lines)-20)
	chat := PanelStyle.Width(chatWidth).Render(strings.Join(m.lines[start:], "\n"))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chat, " ", ParticipantTable(m.Rows())))
	b.WriteString("\n" + m.input.View() + "\n")
	b.WriteString(FooterStyle.Render("/share  /mute  /video  /link  /quit"))
	return b.String()
}

func (m *RoomModel) status() string {
	mic := IconMic + " on"
	if !m.audioOn {
		mic = IconMuted + " muted"
	}
	cam := IconCamera + " on"
	if !m.videoOn {
		cam = IconCamera + " off"
	}
	parts := []string{mic, cam}
	if m.sharing {
		parts = append(parts, IconScreen+" sharing")
	}
	return StatusStyle.Render(strings.Join(parts, "  "))
}
