package a2dpsink

import "fmt"

// State is the lifecycle state of a SinkSession.
type State uint8

const (
	// StateUnassigned: no device callback is registered.
	StateUnassigned State = iota
	// StateDisconnected: assigned, waiting for the device to connect.
	StateDisconnected
	// StateConnectedBadDevice: connected, but no usable sink was found.
	StateConnectedBadDevice
	// StateConnectedRestricted: connected, but the device is not bonded.
	StateConnectedRestricted
	// StateConnected: an SBC sink endpoint is known and configured or idle.
	StateConnected
	// StateReady: the stream and its media transport are open.
	StateReady
	// StateStreaming: audio is flowing.
	StateStreaming
)

var stateNames = [...]string{
	StateUnassigned:          "UNASSIGNED",
	StateDisconnected:        "DISCONNECTED",
	StateConnectedBadDevice:  "CONNECTED_BAD_DEVICE",
	StateConnectedRestricted: "CONNECTED_RESTRICTED",
	StateConnected:           "CONNECTED",
	StateReady:               "READY",
	StateStreaming:           "STREAMING",
}

// String returns the upper-case state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsConnected reports whether the state implies a live device link.
func (s State) IsConnected() bool {
	return s >= StateConnectedBadDevice
}
