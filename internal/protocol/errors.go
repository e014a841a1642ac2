package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a malformed or incomplete message.
	ErrProtocol = errors.New("protocol error")
	// ErrConflict marks a second broadcaster for an occupied room, or a
	// directory registration that does not own the room.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a relay target or directory lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrBadPassword marks a directory lookup with the wrong password.
	ErrBadPassword = errors.New("bad password")
	// ErrTransport marks a peer negotiation or connection failure.
	ErrTransport = errors.New("transport error")
)

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

func NewOpError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
