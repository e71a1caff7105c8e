package avdtp

import "fmt"

// SignalID identifies an AVDTP signalling procedure.
type SignalID uint8

const (
	SignalDiscover         SignalID = 0x01
	SignalGetCapabilities  SignalID = 0x02
	SignalSetConfiguration SignalID = 0x03
	SignalGetConfiguration SignalID = 0x04
	SignalReconfigure      SignalID = 0x05
	SignalOpen             SignalID = 0x06
	SignalStart            SignalID = 0x07
	SignalClose            SignalID = 0x08
	SignalSuspend          SignalID = 0x09
	SignalAbort            SignalID = 0x0A
	SignalSecurityControl  SignalID = 0x0B
	SignalGetAllCapability SignalID = 0x0C
	SignalDelayReport      SignalID = 0x0D
)

// the two upper bits of the signal octet are reserved
const signalIDMask uint8 = 0x3F

// String returns the string representation of SignalID.
func (s SignalID) String() string {
	switch s {
	case SignalDiscover:
		return "DISCOVER"
	case SignalGetCapabilities:
		return "GET_CAPABILITIES"
	case SignalSetConfiguration:
		return "SET_CONFIGURATION"
	case SignalGetConfiguration:
		return "GET_CONFIGURATION"
	case SignalReconfigure:
		return "RECONFIGURE"
	case SignalOpen:
		return "OPEN"
	case SignalStart:
		return "START"
	case SignalClose:
		return "CLOSE"
	case SignalSuspend:
		return "SUSPEND"
	case SignalAbort:
		return "ABORT"
	case SignalSecurityControl:
		return "SECURITY_CONTROL"
	case SignalGetAllCapability:
		return "GET_ALL_CAPABILITIES"
	case SignalDelayReport:
		return "DELAYREPORT"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(s))
	}
}

// MessageType is the two-bit message type field of the signalling header.
type MessageType uint8

const (
	MessageCommand       MessageType = 0x00
	MessageGeneralReject MessageType = 0x01
	MessageAccept        MessageType = 0x02
	MessageReject        MessageType = 0x03
)

// String returns the string representation of MessageType.
func (m MessageType) String() string {
	switch m {
	case MessageCommand:
		return "Command"
	case MessageGeneralReject:
		return "GeneralReject"
	case MessageAccept:
		return "Accept"
	case MessageReject:
		return "Reject"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// PacketType is the two-bit fragmentation field of the signalling header.
type PacketType uint8

const (
	PacketSingle   PacketType = 0x00
	PacketStart    PacketType = 0x01
	PacketContinue PacketType = 0x02
	PacketEnd      PacketType = 0x03
)

// MediaType is the media type of a stream endpoint.
type MediaType uint8

const (
	MediaAudio      MediaType = 0x00
	MediaVideo      MediaType = 0x01
	MediaMultimedia MediaType = 0x02
)

// String returns the string representation of MediaType.
func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "Audio"
	case MediaVideo:
		return "Video"
	case MediaMultimedia:
		return "Multimedia"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// EndpointType is the TSEP bit of a stream endpoint.
type EndpointType uint8

const (
	EndpointSource EndpointType = 0x00
	EndpointSink   EndpointType = 0x01
)

// String returns the string representation of EndpointType.
func (e EndpointType) String() string {
	if e == EndpointSink {
		return "Sink"
	}
	return "Source"
}

// ErrorCode is an AVDTP reject reason.
type ErrorCode uint8

const (
	ErrorBadHeaderFormat          ErrorCode = 0x01
	ErrorBadLength                ErrorCode = 0x11
	ErrorBadACPSEID               ErrorCode = 0x12
	ErrorSEPInUse                 ErrorCode = 0x13
	ErrorSEPNotInUse              ErrorCode = 0x14
	ErrorBadServiceCategory       ErrorCode = 0x17
	ErrorBadPayloadFormat         ErrorCode = 0x18
	ErrorNotSupportedCommand      ErrorCode = 0x19
	ErrorInvalidCapabilities      ErrorCode = 0x1A
	ErrorBadRecoveryType          ErrorCode = 0x22
	ErrorBadMediaTransportFormat  ErrorCode = 0x23
	ErrorBadRecoveryFormat        ErrorCode = 0x25
	ErrorBadROHCFormat            ErrorCode = 0x26
	ErrorBadCPFormat              ErrorCode = 0x27
	ErrorBadMultiplexingFormat    ErrorCode = 0x28
	ErrorUnsupportedConfiguration ErrorCode = 0x29
	ErrorBadState                 ErrorCode = 0x31
)

// String returns the string representation of ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorBadHeaderFormat:
		return "BAD_HEADER_FORMAT"
	case ErrorBadLength:
		return "BAD_LENGTH"
	case ErrorBadACPSEID:
		return "BAD_ACP_SEID"
	case ErrorSEPInUse:
		return "SEP_IN_USE"
	case ErrorSEPNotInUse:
		return "SEP_NOT_IN_USE"
	case ErrorBadServiceCategory:
		return "BAD_SERV_CATEGORY"
	case ErrorBadPayloadFormat:
		return "BAD_PAYLOAD_FORMAT"
	case ErrorNotSupportedCommand:
		return "NOT_SUPPORTED_COMMAND"
	case ErrorInvalidCapabilities:
		return "INVALID_CAPABILITIES"
	case ErrorBadRecoveryType:
		return "BAD_RECOVERY_TYPE"
	case ErrorBadMediaTransportFormat:
		return "BAD_MEDIA_TRANSPORT_FORMAT"
	case ErrorBadRecoveryFormat:
		return "BAD_RECOVERY_FORMAT"
	case ErrorBadROHCFormat:
		return "BAD_ROHC_FORMAT"
	case ErrorBadCPFormat:
		return "BAD_CP_FORMAT"
	case ErrorBadMultiplexingFormat:
		return "BAD_MULTIPLEXING_FORMAT"
	case ErrorUnsupportedConfiguration:
		return "UNSUPPORTED_CONFIGURATION"
	case ErrorBadState:
		return "BAD_STATE"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(e))
	}
}
