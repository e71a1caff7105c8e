package l2cap

import (
	"errors"
	"fmt"
)

// Common errors for L2CAP channels
var (
	// ErrInvalidAddress indicates a malformed Bluetooth device address
	ErrInvalidAddress = errors.New("invalid Bluetooth address")

	// ErrConnectionClosed indicates the channel has been closed
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTimeout indicates a timeout occurred
	ErrTimeout = errors.New("operation timed out")

	// ErrUnsupported indicates the platform has no Bluetooth socket support
	ErrUnsupported = errors.New("L2CAP sockets are not supported on this platform")
)

// OpError represents a channel error with additional context
type OpError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("l2cap %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("l2cap %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a timeout, for net.Error callers.
func (e *OpError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// Temporary is part of net.Error; no L2CAP failure is retried.
func (e *OpError) Temporary() bool {
	return false
}

func newOpError(op, addr string, err error) *OpError {
	return &OpError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
