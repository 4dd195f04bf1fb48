package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
)

func TestCodecByName(t *testing.T) {
	cases := map[string]string{
		"":        CodecJSON,
		"json":    CodecJSON,
		"JSON":    CodecJSON,
		"msgpack": CodecMsgpack,
		" mpk ":   CodecMsgpack,
	}
	for in, want := range cases {
		c, err := CodecByName(in)
		if err != nil {
			t.Fatalf("CodecByName(%q): %v", in, err)
		}
		if c.Name() != want {
			t.Fatalf("CodecByName(%q)=%s, want %s", in, c.Name(), want)
		}
	}
	if _, err := CodecByName("protobuf"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

func TestCodecFrameTypes(t *testing.T) {
	if JSON.FrameType() != websocket.TextMessage {
		t.Fatalf("json must use text frames")
	}
	if Msgpack.FrameType() != websocket.BinaryMessage {
		t.Fatalf("msgpack must use binary frames")
	}
}

// An offer encoded by a JSON client must reach a msgpack client with the
// payload bytes untouched, since the relay re-frames without decoding it.
func TestNegotiationPayloadSurvivesReframing(t *testing.T) {
	sdp := []byte(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)
	in := []byte(`{"type":"offer","target":"b","payload":` + string(sdp) + `}`)

	var decoded Message
	if err := JSON.Unmarshal(in, &decoded); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	decoded.Target = ""
	decoded.From = "a"

	framed, err := Msgpack.Marshal(&decoded)
	if err != nil {
		t.Fatalf("msgpack marshal: %v", err)
	}
	var out Message
	if err := Msgpack.Unmarshal(framed, &out); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}

	if out.Type != TypeOffer || out.From != "a" || out.Target != "" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	if !bytes.Equal(out.Payload, sdp) {
		t.Fatalf("payload changed:\n got %s\nwant %s", out.Payload, sdp)
	}
	var desc struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(out.Payload, &desc); err != nil || desc.Type != "offer" {
		t.Fatalf("payload not decodable: %v %+v", err, desc)
	}
}

func TestMessageDecodePayload(t *testing.T) {
	msg := MustMessage(TypeUserJoined, Peer{ID: "u1", Name: "Sleepy Panda"})

	var p Peer
	if err := msg.DecodePayload(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "u1" || p.Name != "Sleepy Panda" {
		t.Fatalf("unexpected peer: %+v", p)
	}

	empty := &Message{Type: TypeUserJoined}
	if err := empty.DecodePayload(&p); err == nil {
		t.Fatalf("expected error on empty payload")
	}
}

func TestNegotiationClassification(t *testing.T) {
	for _, typ := range []string{TypeOffer, TypeAnswer, TypeICECandidate} {
		if !IsNegotiation(typ) || IsScreenNegotiation(typ) {
			t.Fatalf("%s misclassified", typ)
		}
	}
	for _, typ := range []string{TypeScreenOffer, TypeScreenAnswer, TypeScreenICECandidate} {
		if !IsNegotiation(typ) || !IsScreenNegotiation(typ) {
			t.Fatalf("%s misclassified", typ)
		}
	}
	if IsNegotiation(TypeSendMessage) {
		t.Fatalf("send-message is not a negotiation type")
	}
}
