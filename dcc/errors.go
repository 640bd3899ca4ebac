package dcc

import (
	"errors"
	"fmt"
)

// Common errors for DCC transfers
var (
	// ErrConnect indicates the data channel could not be opened
	ErrConnect = errors.New("data channel connect failed")

	// ErrAck indicates an acknowledgment could not be written
	ErrAck = errors.New("acknowledgment write failed")

	// ErrMalformed indicates a DCC payload did not have the expected fields
	ErrMalformed = errors.New("malformed DCC payload")

	// ErrPassiveUnsupported indicates a reverse (port 0) DCC offer
	ErrPassiveUnsupported = errors.New("passive DCC is not supported")
)

// Operations recorded in Error.Op.
const (
	OpDial = "dial"
	OpAck  = "ack"
	OpRead = "read"
)

// Error represents a data channel error with additional context
type Error struct {
	Op   string // operation that caused the error
	Addr string // peer address if relevant
	Err  error  // underlying error
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("dcc %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("dcc %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps the operation onto the matching sentinel so callers can test
// errors.Is(err, ErrConnect) without knowing the socket error.
func (e *Error) Is(target error) bool {
	switch e.Op {
	case OpDial:
		return target == ErrConnect
	case OpAck:
		return target == ErrAck
	}
	return false
}

func newError(op, addr string, err error) *Error {
	return &Error{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
