package room

import (
	"strings"

	"github.com/Rogue-56/pinch/internal/protocol"
)

const (
	DefaultChatHistoryLimit = 200
	DefaultMaxMessageBytes  = 4000
)

// chatLog is a room's append-only message history. Only the most recent
// limit entries are retained; sequence numbers keep counting past evictions.
type chatLog struct {
	limit int
	seq   uint64
	msgs  []protocol.ChatMessage
}

func newChatLog(limit int) *chatLog {
	if limit <= 0 {
		limit = DefaultChatHistoryLimit
	}
	return &chatLog{limit: limit}
}

func (l *chatLog) append(senderID, senderName, text string) protocol.ChatMessage {
	l.seq++
	msg := protocol.ChatMessage{
		Seq:        l.seq,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
	}
	l.msgs = append(l.msgs, msg)
	if over := len(l.msgs) - l.limit; over > 0 {
		// shift in place so the backing array does not grow forever
		n := copy(l.msgs, l.msgs[over:])
		clear(l.msgs[n:])
		l.msgs = l.msgs[:n]
	}
	return msg
}

func (l *chatLog) history() []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// normalizeText trims the text and checks it against maxBytes.
func normalizeText(text string, maxBytes int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if maxBytes > 0 && len(text) > maxBytes {
		return "", ErrMessageTooLong
	}
	return text, nil
}
