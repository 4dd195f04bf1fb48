package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rogue-56/pinch/internal/protocol"
	"github.com/Rogue-56/pinch/internal/room"
	"github.com/Rogue-56/pinch/internal/signaling"
)

type testConn struct {
	t     *testing.T
	ws    *websocket.Conn
	codec protocol.Codec
}

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub(room.NewRegistry(room.Options{Namer: room.GuestNamer}), signaling.Options{}, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, Options{}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, codec protocol.Codec) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=" + codec.Name()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return &testConn{t: t, ws: ws, codec: codec}
}

func (c *testConn) send(msg *protocol.Message) {
	c.t.Helper()
	data, err := c.codec.Marshal(msg)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	if err := c.ws.WriteMessage(c.codec.FrameType(), data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testConn) next() *protocol.Message {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	if mt != c.codec.FrameType() {
		c.t.Fatalf("frame type %d, want %d", mt, c.codec.FrameType())
	}
	var msg protocol.Message
	if err := c.codec.Unmarshal(data, &msg); err != nil {
		c.t.Fatalf("unmarshal: %v", err)
	}
	return &msg
}

func (c *testConn) expect(typ string) *protocol.Message {
	c.t.Helper()
	msg := c.next()
	if msg.Type != typ {
		c.t.Fatalf("expected %s, got %s (%s)", typ, msg.Type, msg.Payload)
	}
	return msg
}

func (c *testConn) join(roomID string) protocol.Peer {
	c.t.Helper()
	c.send(&protocol.Message{Type: protocol.TypeJoinRoom, RoomID: roomID})
	var self protocol.Peer
	if err := c.expect(protocol.TypeNameAssigned).DecodePayload(&self); err != nil {
		c.t.Fatalf("decode name-assigned: %v", err)
	}
	c.expect(protocol.TypeExistingUsers)
	c.expect(protocol.TypeChatHistory)
	return self
}

func TestRelayAcrossCodecs(t *testing.T) {
	srv := startRelay(t)
	a := dial(t, srv, protocol.JSON)
	b := dial(t, srv, protocol.Msgpack)

	aSelf := a.join("demo")
	bSelf := b.join("demo")

	var joined protocol.Peer
	a.expect(protocol.TypeUserJoined).DecodePayload(&joined)
	if joined.ID != bSelf.ID {
		t.Fatalf("a saw %+v join, want %s", joined, bSelf.ID)
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	b.send(&protocol.Message{Type: protocol.TypeOffer, Target: aSelf.ID, Payload: offer})
	got := a.expect(protocol.TypeOffer)
	if got.From != bSelf.ID {
		t.Errorf("offer from %q, want %q", got.From, bSelf.ID)
	}
	if string(got.Payload) != string(offer) {
		t.Errorf("payload changed: %s", got.Payload)
	}

	a.send(protocol.MustMessage(protocol.TypeSendMessage, protocol.SendMessagePayload{Text: "hello"}))
	for _, c := range []*testConn{a, b} {
		var chat protocol.ChatMessage
		c.expect(protocol.TypeNewMessage).DecodePayload(&chat)
		if chat.Text != "hello" || chat.SenderID != aSelf.ID {
			t.Errorf("unexpected chat %+v", chat)
		}
	}

	a.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	a.ws.Close()

	var left protocol.Peer
	b.expect(protocol.TypeUserDisconnected).DecodePayload(&left)
	if left.ID != aSelf.ID {
		t.Errorf("disconnect for %q, want %q", left.ID, aSelf.ID)
	}
}

func TestMalformedFrameGetsError(t *testing.T) {
	srv := startRelay(t)
	a := dial(t, srv, protocol.JSON)

	if err := a.ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	a.expect(protocol.TypeError)

	// the connection survives
	a.join("still-here")
}

func TestRoomsAndHealthEndpoints(t *testing.T) {
	srv := startRelay(t)
	a := dial(t, srv, protocol.JSON)
	a.join("listed")

	resp, err := http.Get(srv.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("get rooms: %v", err)
	}
	defer resp.Body.Close()
	var rooms []room.Info
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "listed" || rooms[0].Members != 1 {
		t.Errorf("unexpected rooms: %+v", rooms)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health status %d", health.StatusCode)
	}
}

func TestUnknownCodecRejected(t *testing.T) {
	srv := startRelay(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=xml"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

func TestRoomsListingAllowsBrowsers(t *testing.T) {
	srv := startRelay(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get rooms: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	opts := corsOptions(Options{AllowedOrigins: []string{"https://app.example"}})
	if len(opts.AllowedOrigins) != 1 || opts.AllowedOrigins[0] != "https://app.example" {
		t.Errorf("configured origins not kept: %v", opts.AllowedOrigins)
	}
}
