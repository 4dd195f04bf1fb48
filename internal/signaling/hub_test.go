package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Rogue-56/pinch/internal/protocol"
	"github.com/Rogue-56/pinch/internal/room"
)

func newTestHub(queue int) *Hub {
	reg := room.NewRegistry(room.Options{Namer: room.GuestNamer})
	return NewHub(reg, Options{SendQueue: queue}, nil)
}

// connect registers a client without a websocket, as the hub goroutine would.
func connect(h *Hub) *Client {
	c := h.NewClient(nil, protocol.JSON)
	h.addClient(c)
	return c
}

func join(h *Hub, c *Client, roomID string) {
	h.handle(c, &protocol.Message{Type: protocol.TypeJoinRoom, RoomID: roomID})
}

// drain returns everything queued for c so far.
func drain(c *Client) []*protocol.Message {
	var out []*protocol.Message
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []*protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func expectTypes(t *testing.T, got []*protocol.Message, want ...string) {
	t.Helper()
	gt := types(got)
	if len(gt) != len(want) {
		t.Fatalf("expected %v, got %v", want, gt)
	}
	for i := range want {
		if gt[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, gt)
		}
	}
}

func decode[T any](t *testing.T, m *protocol.Message) T {
	t.Helper()
	var v T
	if err := m.DecodePayload(&v); err != nil {
		t.Fatalf("decode %s: %v", m.Type, err)
	}
	return v
}

func TestThreeParticipantsJoin(t *testing.T) {
	h := newTestHub(32)
	a, b, c := connect(h), connect(h), connect(h)

	join(h, a, "r")
	got := drain(a)
	expectTypes(t, got, protocol.TypeNameAssigned, protocol.TypeExistingUsers, protocol.TypeChatHistory)
	if self := decode[protocol.Peer](t, got[0]); self.ID != a.ID {
		t.Errorf("name-assigned should carry own id, got %+v", self)
	}
	if existing := decode[[]protocol.Peer](t, got[1]); len(existing) != 0 {
		t.Errorf("first member should see nobody, got %v", existing)
	}

	join(h, b, "r")
	got = drain(b)
	expectTypes(t, got, protocol.TypeNameAssigned, protocol.TypeExistingUsers, protocol.TypeChatHistory)
	if existing := decode[[]protocol.Peer](t, got[1]); len(existing) != 1 || existing[0].ID != a.ID {
		t.Errorf("b should see [a], got %v", existing)
	}
	got = drain(a)
	expectTypes(t, got, protocol.TypeUserJoined)
	if p := decode[protocol.Peer](t, got[0]); p.ID != b.ID || p.Name != "Guest-2" {
		t.Errorf("unexpected user-joined: %+v", p)
	}

	join(h, c, "r")
	got = drain(c)
	existing := decode[[]protocol.Peer](t, got[1])
	if len(existing) != 2 || existing[0].ID != a.ID || existing[1].ID != b.ID {
		t.Errorf("c should see [a b], got %v", existing)
	}
	expectTypes(t, drain(a), protocol.TypeUserJoined)
	expectTypes(t, drain(b), protocol.TypeUserJoined)
}

func TestDoubleJoinIsRejected(t *testing.T) {
	h := newTestHub(8)
	a := connect(h)
	join(h, a, "r1")
	drain(a)

	join(h, a, "r2")
	got := drain(a)
	expectTypes(t, got, protocol.TypeError)
	if len(h.registry.MembersOf("r2")) != 0 {
		t.Errorf("second join must not add a to r2")
	}
}

func TestNegotiationIsForwardedWithOrigin(t *testing.T) {
	h := newTestHub(8)
	a, b := connect(h), connect(h)
	join(h, a, "r")
	join(h, b, "r")
	drain(a)
	drain(b)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	h.handle(a, &protocol.Message{Type: protocol.TypeOffer, Target: b.ID, Payload: payload})

	got := drain(b)
	expectTypes(t, got, protocol.TypeOffer)
	if got[0].From != a.ID || got[0].Target != "" {
		t.Errorf("expected from=%s and no target, got %+v", a.ID, got[0])
	}
	if string(got[0].Payload) != string(payload) {
		t.Errorf("payload altered: %s", got[0].Payload)
	}
	if len(drain(a)) != 0 {
		t.Errorf("sender must not receive its own offer")
	}
}

func TestNegotiationDroppedForAbsentOrForeignTarget(t *testing.T) {
	h := newTestHub(8)
	a, b, x := connect(h), connect(h), connect(h)
	join(h, a, "r")
	join(h, b, "r")
	join(h, x, "other")
	drain(a)
	drain(b)
	drain(x)

	h.handle(a, &protocol.Message{Type: protocol.TypeICECandidate, Target: "nobody", Payload: json.RawMessage(`{}`)})
	h.handle(a, &protocol.Message{Type: protocol.TypeScreenOffer, Target: x.ID, Payload: json.RawMessage(`{}`)})

	for _, c := range []*Client{a, b, x} {
		if got := drain(c); len(got) != 0 {
			t.Errorf("expected nothing delivered, %s got %v", c.ID, types(got))
		}
	}
}

func TestDisconnectNotifiesRemainingOnce(t *testing.T) {
	h := newTestHub(8)
	a, b, c := connect(h), connect(h), connect(h)
	for _, cl := range []*Client{a, b, c} {
		join(h, cl, "r")
	}
	drain(a)
	drain(b)
	drain(c)

	h.drop(b)
	h.drop(b)

	for _, cl := range []*Client{a, c} {
		got := drain(cl)
		expectTypes(t, got, protocol.TypeUserDisconnected)
		if p := decode[protocol.Peer](t, got[0]); p.ID != b.ID {
			t.Errorf("unexpected disconnect payload %+v", p)
		}
	}
	if _, ok := <-b.send; ok {
		t.Errorf("dropped client's queue should be closed")
	}
	if m := h.registry.MembersOf("r"); len(m) != 2 {
		t.Errorf("expected 2 members left, got %v", m)
	}
}

func TestChatBroadcastIncludesSenderInOrder(t *testing.T) {
	h := newTestHub(16)
	a, b := connect(h), connect(h)
	join(h, a, "r")
	join(h, b, "r")
	drain(a)
	drain(b)

	send := func(c *Client, text string) {
		h.handle(c, protocol.MustMessage(protocol.TypeSendMessage, protocol.SendMessagePayload{Text: text}))
	}
	send(a, "one")
	send(b, "two")
	send(a, "  ")

	for _, cl := range []*Client{a, b} {
		got := drain(cl)
		var chats []protocol.ChatMessage
		for _, m := range got {
			if m.Type == protocol.TypeNewMessage {
				chats = append(chats, decode[protocol.ChatMessage](t, m))
			}
		}
		if len(chats) != 2 || chats[0].Text != "one" || chats[1].Text != "two" || chats[0].Seq >= chats[1].Seq {
			t.Errorf("unexpected chat sequence: %+v", chats)
		}
	}

	// late joiner gets the same history
	c := connect(h)
	join(h, c, "r")
	got := drain(c)
	history := decode[[]protocol.ChatMessage](t, got[2])
	if len(history) != 2 || history[0].Text != "one" || history[1].SenderID != b.ID {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestEmptyChatIsRejectedOnlyForSender(t *testing.T) {
	h := newTestHub(8)
	a, b := connect(h), connect(h)
	join(h, a, "r")
	join(h, b, "r")
	drain(a)
	drain(b)

	h.handle(a, protocol.MustMessage(protocol.TypeSendMessage, protocol.SendMessagePayload{Text: "\n\t"}))
	expectTypes(t, drain(a), protocol.TypeError)
	if len(drain(b)) != 0 {
		t.Errorf("rejected chat must not reach others")
	}
}

func TestScreenShareNotices(t *testing.T) {
	h := newTestHub(8)
	a, b := connect(h), connect(h)
	join(h, a, "r")
	join(h, b, "r")
	drain(a)
	drain(b)

	h.handle(a, &protocol.Message{Type: protocol.TypeStartScreenShare})
	h.handle(a, &protocol.Message{Type: protocol.TypeStartScreenShare})
	expectTypes(t, drain(b), protocol.TypeUserStartedScreenShare)
	if len(drain(a)) != 0 {
		t.Errorf("sharer should not be notified of its own share")
	}

	// a newcomer learns about the ongoing share right after its snapshot
	c := connect(h)
	join(h, c, "r")
	got := drain(c)
	expectTypes(t, got, protocol.TypeNameAssigned, protocol.TypeExistingUsers,
		protocol.TypeChatHistory, protocol.TypeUserStartedScreenShare)
	if p := decode[protocol.Peer](t, got[3]); p.ID != a.ID {
		t.Errorf("expected sharer a, got %+v", p)
	}
	drain(b)

	h.handle(a, &protocol.Message{Type: protocol.TypeStopScreenShare})
	expectTypes(t, drain(b), protocol.TypeUserStoppedScreenShare)
	expectTypes(t, drain(c), protocol.TypeUserStoppedScreenShare)
}

func TestEventsBeforeJoin(t *testing.T) {
	h := newTestHub(8)
	a := connect(h)

	h.handle(a, &protocol.Message{Type: protocol.TypeStartScreenShare})
	h.handle(a, protocol.MustMessage(protocol.TypeSendMessage, protocol.SendMessagePayload{Text: "hi"}))
	h.handle(a, &protocol.Message{Type: "dance"})
	expectTypes(t, drain(a), protocol.TypeError, protocol.TypeError, protocol.TypeError)
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	h := newTestHub(2)
	a, b := connect(h), connect(h)
	join(h, a, "r")
	drain(a)
	join(h, b, "r") // name-assigned and existing-users fill b's queue, chat-history overflows it

	if _, ok := h.clients[b.ID]; ok {
		t.Fatalf("b should have been dropped as a slow consumer")
	}
	expectTypes(t, drain(a), protocol.TypeUserDisconnected)
	if m := h.registry.MembersOf("r"); len(m) != 1 || m[0].ID != a.ID {
		t.Errorf("expected only a in room, got %v", m)
	}
}

func TestRunProcessesDispatchedMessages(t *testing.T) {
	h := newTestHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	a := h.NewClient(nil, protocol.JSON)
	if !h.Register(a) {
		t.Fatalf("register failed")
	}
	h.Dispatch(a, &protocol.Message{Type: protocol.TypeJoinRoom, RoomID: "r"}, nil)

	select {
	case m := <-a.send:
		if m.Type != protocol.TypeNameAssigned {
			t.Fatalf("expected name-assigned, got %s", m.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for join reply")
	}

	h.Dispatch(a, nil, errMalformed)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub did not stop")
	}
	if h.Register(h.NewClient(nil, protocol.JSON)) {
		t.Errorf("register after stop should fail")
	}
}
