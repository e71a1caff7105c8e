package player

import "errors"

var (
	// ErrBufferUnavailable is returned when the shared buffer is missing,
	// invalid or has no capacity.
	ErrBufferUnavailable = errors.New("player: shared buffer unavailable")

	// ErrIllegalState is returned for calls the current state does not
	// allow, such as playing without an open transport.
	ErrIllegalState = errors.New("player: illegal state")

	// ErrTimeout is returned by RequestConsume when no data arrived in time.
	ErrTimeout = errors.New("player: timeout")

	// ErrClosed is returned once the producer closed the buffer and
	// everything written has been consumed.
	ErrClosed = errors.New("player: buffer closed")
)
