package sdp

import (
	"errors"
	"fmt"
)

// Protocol errors.
var (
	// ErrMalformedElement indicates a data element that cannot be decoded.
	ErrMalformedElement = errors.New("malformed data element")

	// ErrMalformedPDU indicates a response PDU with an invalid layout.
	ErrMalformedPDU = errors.New("malformed SDP PDU")

	// ErrContinuationLoop indicates a server that kept returning continuation
	// state past the request limit.
	ErrContinuationLoop = errors.New("too many continuation requests")
)

// Channel errors.
var (
	ErrTimeout      = errors.New("SDP request timed out")
	ErrClosed       = errors.New("SDP channel closed")
	ErrNotConnected = errors.New("SDP channel not connected")
)

// Record errors.
var (
	// ErrInvalidRecord indicates a persisted record failing validation.
	ErrInvalidRecord = errors.New("invalid audio service record")
)

// ErrorCode is the code of an SDP error response.
type ErrorCode uint16

const (
	ErrorInvalidVersion           ErrorCode = 0x0001
	ErrorInvalidRecordHandle      ErrorCode = 0x0002
	ErrorInvalidSyntax            ErrorCode = 0x0003
	ErrorInvalidPDUSize           ErrorCode = 0x0004
	ErrorInvalidContinuationState ErrorCode = 0x0005
	ErrorInsufficientResources    ErrorCode = 0x0006
)

// String returns the string representation of ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrorInvalidVersion:
		return "INVALID_SDP_VERSION"
	case ErrorInvalidRecordHandle:
		return "INVALID_SERVICE_RECORD_HANDLE"
	case ErrorInvalidSyntax:
		return "INVALID_REQUEST_SYNTAX"
	case ErrorInvalidPDUSize:
		return "INVALID_PDU_SIZE"
	case ErrorInvalidContinuationState:
		return "INVALID_CONTINUATION_STATE"
	case ErrorInsufficientResources:
		return "INSUFFICIENT_RESOURCES"
	default:
		return fmt.Sprintf("ErrorCode(0x%04X)", uint16(c))
	}
}

// ErrorResponse is returned when the server answers with an error PDU.
type ErrorResponse struct {
	Code ErrorCode
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("sdp error response: %s", e.Code)
}
