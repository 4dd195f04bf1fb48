package protocol

import (
	"encoding/json"
	"fmt"
)

// Message defines the structure for all C2S (client to server)
// and S2C (server to client) websocket messages.
//
// Payload is always a JSON document, whatever codec frames the envelope, so
// the relay can forward negotiation payloads between clients without looking
// inside them.
type Message struct {
	Type    string          `json:"type" msgpack:"type"`
	RoomID  string          `json:"room_id,omitempty" msgpack:"room_id,omitempty"`
	Target  string          `json:"target,omitempty" msgpack:"target,omitempty"`
	From    string          `json:"from,omitempty" msgpack:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Client to server message types.
const (
	TypeJoinRoom         = "join-room"
	TypeStartScreenShare = "start-screen-share"
	TypeStopScreenShare  = "stop-screen-share"
	TypeSendMessage      = "send-message"
)

// Negotiation message types. They travel in both directions: a client sends
// them with Target set, the relay forwards them with From set.
const (
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeICECandidate       = "ice-candidate"
	TypeScreenOffer        = "screen-offer"
	TypeScreenAnswer       = "screen-answer"
	TypeScreenICECandidate = "screen-ice-candidate"
)

// Server to client message types.
const (
	TypeNameAssigned           = "name-assigned"
	TypeExistingUsers          = "existing-users"
	TypeUserJoined             = "user-joined"
	TypeUserDisconnected       = "user-disconnected"
	TypeChatHistory            = "chat-history"
	TypeNewMessage             = "new-message"
	TypeUserStartedScreenShare = "user-started-screen-share"
	TypeUserStoppedScreenShare = "user-stopped-screen-share"
	TypeError                  = "error"
)

// IsNegotiation reports whether t is one of the six relayed negotiation types.
func IsNegotiation(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate,
		TypeScreenOffer, TypeScreenAnswer, TypeScreenICECandidate:
		return true
	}
	return false
}

// IsScreenNegotiation reports whether t belongs to the screen-share namespace.
func IsScreenNegotiation(t string) bool {
	switch t {
	case TypeScreenOffer, TypeScreenAnswer, TypeScreenICECandidate:
		return true
	}
	return false
}

// Peer identifies a room member on the wire.
type Peer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// JoinRoomPayload optionally carries the name a participant would like to use.
type JoinRoomPayload struct {
	Name string `json:"name,omitempty"`
}

// SendMessagePayload is the body of a send-message request.
type SendMessagePayload struct {
	Text string `json:"text"`
}

// ChatMessage is one entry of a room's chat log. Seq is assigned by the relay
// in arrival order and is the only ordering guarantee.
type ChatMessage struct {
	Seq        uint64 `json:"seq"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage creates a new Message with the given type and JSON payload.
func NewMessage(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = b
	return msg, nil
}

// MustMessage is NewMessage for payloads that are known to marshal.
func MustMessage(t string, payload any) *Message {
	msg, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// DecodePayload decodes the message payload into the provided value.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// NewError builds an error message for the client.
func NewError(reason string) *Message {
	return MustMessage(TypeError, ErrorPayload{Error: reason})
}
