package room

import (
	"slices"
	"sort"
	"sync"

	"github.com/Rogue-56/pinch/internal/protocol"
)

// Member is one connection's presence in a room.
type Member struct {
	ID   string
	Name string
}

// Peer converts the member to its wire shape.
func (m Member) Peer() protocol.Peer {
	return protocol.Peer{ID: m.ID, Name: m.Name}
}

// Peers converts members to their wire shape, keeping order.
func Peers(members []Member) []protocol.Peer {
	out := make([]protocol.Peer, 0, len(members))
	for _, m := range members {
		out = append(out, m.Peer())
	}
	return out
}

// Info summarises a room for listings.
type Info struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
	Sharing int    `json:"sharing"`
}

// Options configure a Registry. Zero values select defaults.
type Options struct {
	ChatHistoryLimit int
	MaxMessageBytes  int
	Namer            Namer
}

type room struct {
	id      string
	members []Member // arrival order
	joins   int
	sharers map[string]struct{}
	chat    *chatLog
}

func (r *room) indexOf(connID string) int {
	return slices.IndexFunc(r.members, func(m Member) bool { return m.ID == connID })
}

// Registry tracks which connections are in which room. Rooms are created on
// first join and removed when their last member leaves, taking their chat
// history and sharer set with them.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	opts     Options
	rooms    map[string]*room
	memberOf map[string]string // connID -> roomID
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	if opts.ChatHistoryLimit <= 0 {
		opts.ChatHistoryLimit = DefaultChatHistoryLimit
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.Namer == nil {
		opts.Namer = WordsNamer
	}
	return &Registry{
		opts:     opts,
		rooms:    make(map[string]*room),
		memberOf: make(map[string]string),
	}
}

// Join adds connID to roomID, creating the room if needed. It returns the new
// member and a snapshot of the members that were already present.
func (r *Registry) Join(roomID, connID, proposedName string) (Member, []Member, error) {
	if roomID == "" {
		return Member{}, nil, ErrEmptyRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.memberOf[connID]; ok {
		return Member{}, nil, ErrAlreadyJoined
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:      roomID,
			sharers: make(map[string]struct{}),
			chat:    newChatLog(r.opts.ChatHistoryLimit),
		}
		r.rooms[roomID] = rm
	}

	others := slices.Clone(rm.members)

	rm.joins++
	name, ok := cleanName(proposedName)
	if !ok {
		name = r.opts.Namer.Name(rm.joins)
	}
	m := Member{ID: connID, Name: name}
	rm.members = append(rm.members, m)
	r.memberOf[connID] = roomID

	return m, others, nil
}

// Leave removes connID from its room. ok is false if it was not in one.
func (r *Registry) Leave(connID string) (roomID string, remaining []Member, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok = r.memberOf[connID]
	if !ok {
		return "", nil, false
	}
	delete(r.memberOf, connID)

	rm := r.rooms[roomID]
	if i := rm.indexOf(connID); i >= 0 {
		rm.members = slices.Delete(rm.members, i, i+1)
	}
	delete(rm.sharers, connID)

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		return roomID, nil, true
	}
	return roomID, slices.Clone(rm.members), true
}

// MembersOf returns the members of roomID in arrival order.
func (r *Registry) MembersOf(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(rm.members)
}

// Lookup finds the member record and room of connID.
func (r *Registry) Lookup(connID string) (Member, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.memberOf[connID]
	if !ok {
		return Member{}, "", false
	}
	rm := r.rooms[roomID]
	i := rm.indexOf(connID)
	if i < 0 {
		return Member{}, "", false
	}
	return rm.members[i], roomID, true
}

// SameRoom reports whether both connections are members of the same room.
func (r *Registry) SameRoom(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ra, ok := r.memberOf[a]
	if !ok {
		return false
	}
	rb, ok := r.memberOf[b]
	return ok && ra == rb
}

// Rooms lists the live rooms sorted by id.
func (r *Registry) Rooms() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.rooms))
	for id, rm := range r.rooms {
		out = append(out, Info{ID: id, Members: len(rm.members), Sharing: len(rm.sharers)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetSharing records whether connID is sharing its screen. changed is false
// when the member was already in the requested state.
func (r *Registry) SetSharing(connID string, on bool) (m Member, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.memberOf[connID]
	if !ok {
		return Member{}, false, ErrNotInRoom
	}
	rm := r.rooms[roomID]
	m = rm.members[rm.indexOf(connID)]

	_, sharing := rm.sharers[connID]
	switch {
	case on && !sharing:
		rm.sharers[connID] = struct{}{}
		return m, true, nil
	case !on && sharing:
		delete(rm.sharers, connID)
		return m, true, nil
	}
	return m, false, nil
}

// Sharers returns the members of roomID currently sharing, in arrival order.
func (r *Registry) Sharers(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	var out []Member
	for _, m := range rm.members {
		if _, ok := rm.sharers[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

// PostMessage appends text from connID to its room's chat log.
func (r *Registry) PostMessage(connID, text string) (protocol.ChatMessage, string, error) {
	text, err := normalizeText(text, r.opts.MaxMessageBytes)
	if err != nil {
		return protocol.ChatMessage{}, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.memberOf[connID]
	if !ok {
		return protocol.ChatMessage{}, "", ErrNotInRoom
	}
	rm := r.rooms[roomID]
	sender := rm.members[rm.indexOf(connID)]
	return rm.chat.append(sender.ID, sender.Name, text), roomID, nil
}

// History returns the retained chat messages of roomID, oldest first.
func (r *Registry) History(roomID string) []protocol.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return []protocol.ChatMessage{}
	}
	return rm.chat.history()
}
