package session

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyRoomID   = errors.New("room id is empty")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrDisconnected  = errors.New("lost connection to the relay")
	ErrSessionClosed = errors.New("session closed")
	ErrNoEngine      = errors.New("no connection engine configured")
)

// Error records which step of a session failed.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
