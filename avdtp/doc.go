// Package avdtp implements the signalling side of the Audio/Video
// Distribution Transport Protocol.
//
// Signalling messages start with a one or three octet header
//
//	[label:4][packet type:2][message type:2] [packets]? [signal id]
//
// followed by a signal specific payload. Stream endpoint identifiers occupy
// the upper six bits of their octet. Service capabilities are encoded as
// (category, length, data) triplets and are handled by ParseCapabilities and
// Capabilities.Marshal.
//
// Client drives the initiator role over any packet-preserving net.Conn: it
// numbers transactions, reassembles fragmented responses, matches them by
// label and signal, and answers commands initiated by the remote with a
// general reject.
package avdtp
