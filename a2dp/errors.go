package a2dp

import "errors"

// Sentinel errors for a2dp package operations.
// These errors enable reliable error classification using errors.Is().

// Capability errors.
var (
	// ErrMalformedCapability indicates a media codec or content protection
	// element that is too short or carries the wrong type octets.
	ErrMalformedCapability = errors.New("malformed capability element")

	// ErrUnsupportedCodec indicates an operation on a codec variant that is
	// recorded but not implemented.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrNoCodec indicates an endpoint without a usable media codec.
	ErrNoCodec = errors.New("endpoint has no media codec")
)

// Negotiation errors.
var (
	// ErrBadRequest indicates requested codec settings the remote cannot
	// satisfy (sample rate or channel layout missing or unsupported).
	ErrBadRequest = errors.New("unsupported codec parameters requested")

	// ErrNotImplemented indicates an operation with no implementation,
	// currently SBC decoding.
	ErrNotImplemented = errors.New("not implemented")
)

// Endpoint command errors.
var (
	// ErrCommandFailed indicates an AVDTP command that timed out or was
	// rejected. The underlying error is wrapped alongside it.
	ErrCommandFailed = errors.New("endpoint command failed")

	// ErrConfigurationMismatch indicates the read-back configuration differs
	// from what was requested.
	ErrConfigurationMismatch = errors.New("remote reports a different configuration")

	// ErrNotConnected indicates a signalling operation without a channel.
	ErrNotConnected = errors.New("signalling channel not connected")
)
