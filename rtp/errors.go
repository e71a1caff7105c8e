package rtp

import "errors"

var (
	// ErrNotConnected is returned when the media channel is not open.
	ErrNotConnected = errors.New("rtp: transport not connected")

	// ErrEncodeFailed is returned when not a single frame could be
	// encoded from a non-empty input.
	ErrEncodeFailed = errors.New("rtp: encode failed")

	// ErrSendFailed wraps write errors on the media channel.
	ErrSendFailed = errors.New("rtp: send failed")

	// ErrTimeout is returned when closing the channel takes too long.
	ErrTimeout = errors.New("rtp: timeout")
)
