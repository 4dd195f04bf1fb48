package room

import "errors"

var (
	ErrEmptyRoomID    = errors.New("room id is required")
	ErrAlreadyJoined  = errors.New("connection already joined a room")
	ErrNotInRoom      = errors.New("connection is not in a room")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text is too long")
)
