package avdtp

import (
	"errors"
	"fmt"
)

// Wire format errors.
var (
	// ErrMalformedPacket indicates a signalling packet that cannot be parsed.
	ErrMalformedPacket = errors.New("malformed AVDTP packet")

	// ErrMalformedCapability indicates a truncated or invalid capability TLV.
	ErrMalformedCapability = errors.New("malformed service capability")
)

// Command errors.
var (
	// ErrTimeout indicates no matching response arrived in time.
	ErrTimeout = errors.New("AVDTP command timed out")

	// ErrClosed indicates the signalling channel has been closed.
	ErrClosed = errors.New("AVDTP signalling channel closed")
)

// RejectError is returned when the remote answers a command with a reject
// or general reject message.
type RejectError struct {
	Signal   SignalID
	General  bool
	Code     ErrorCode
	Category Category // set for SET_CONFIGURATION rejects
}

func (e *RejectError) Error() string {
	if e.General {
		return fmt.Sprintf("avdtp %s: general reject", e.Signal)
	}
	if e.Category != 0 {
		return fmt.Sprintf("avdtp %s: rejected (%s, category %s)", e.Signal, e.Code, e.Category)
	}
	return fmt.Sprintf("avdtp %s: rejected (%s)", e.Signal, e.Code)
}

// parseReject builds a RejectError from a reject payload. SET_CONFIGURATION
// and RECONFIGURE prefix the code with the failing category; START and
// SUSPEND prefix it with the failing SEID.
func parseReject(signal SignalID, payload []byte) *RejectError {
	r := &RejectError{Signal: signal}
	if len(payload) == 0 {
		return r
	}
	r.Code = ErrorCode(payload[len(payload)-1])
	if (signal == SignalSetConfiguration || signal == SignalReconfigure) && len(payload) >= 2 {
		r.Category = Category(payload[0])
	}
	return r
}
