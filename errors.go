package a2dpsink

import "errors"

// Session errors. Each is returned wrapped with context; use errors.Is.
var (
	// ErrIllegalState indicates an operation the current session state does
	// not allow, such as Start before Open.
	ErrIllegalState = errors.New("illegal session state")

	// ErrUnavailable indicates a resource held by someone else: the device
	// callback slot, an already open stream, or missing content protection.
	ErrUnavailable = errors.New("resource unavailable")

	// ErrBadDevice indicates a remote without a usable audio sink.
	ErrBadDevice = errors.New("device is not a usable audio sink")

	// ErrBadRequest indicates an out of range argument.
	ErrBadRequest = errors.New("bad request")

	// ErrOpeningFailed indicates the media transport could not be brought up
	// after the stream was opened.
	ErrOpeningFailed = errors.New("opening media transport failed")
)

// Configuration errors.
var (
	// ErrInvalidOptions indicates options failing schema validation.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrInvalidSettings indicates persisted device settings that cannot be
	// decoded.
	ErrInvalidSettings = errors.New("invalid device settings")

	// ErrNotFound indicates no settings are stored for a device.
	ErrNotFound = errors.New("no settings stored for device")
)
