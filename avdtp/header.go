package avdtp

import (
	"fmt"
)

// Header is the signalling packet header. Start packets carry an extra
// number-of-signal-packets octet; continue and end packets carry neither
// that nor the signal identifier.
type Header struct {
	Label       uint8 // transaction label, 4 bits
	PacketType  PacketType
	MessageType MessageType
	Signal      SignalID
	Packets     uint8 // start packets only
}

// Marshal encodes the header.
func (h Header) Marshal() []byte {
	first := (h.Label&0x0F)<<4 | uint8(h.PacketType&0x03)<<2 | uint8(h.MessageType&0x03)
	switch h.PacketType {
	case PacketStart:
		return []byte{first, h.Packets, uint8(h.Signal) & signalIDMask}
	case PacketContinue, PacketEnd:
		return []byte{first}
	default:
		return []byte{first, uint8(h.Signal) & signalIDMask}
	}
}

// ParseHeader decodes the header at the start of b and returns it with the
// remaining payload.
func ParseHeader(b []byte) (Header, []byte, error) {
	var h Header
	if len(b) < 1 {
		return h, nil, fmt.Errorf("%w: empty packet", ErrMalformedPacket)
	}
	h.Label = b[0] >> 4
	h.PacketType = PacketType((b[0] >> 2) & 0x03)
	h.MessageType = MessageType(b[0] & 0x03)

	switch h.PacketType {
	case PacketStart:
		if len(b) < 3 {
			return h, nil, fmt.Errorf("%w: short start packet", ErrMalformedPacket)
		}
		h.Packets = b[1]
		h.Signal = SignalID(b[2] & signalIDMask)
		return h, b[3:], nil
	case PacketContinue, PacketEnd:
		return h, b[1:], nil
	default:
		if len(b) < 2 {
			return h, nil, fmt.Errorf("%w: short packet", ErrMalformedPacket)
		}
		h.Signal = SignalID(b[1] & signalIDMask)
		return h, b[2:], nil
	}
}

// Message is a reassembled signalling message.
type Message struct {
	Label   uint8
	Type    MessageType
	Signal  SignalID
	Payload []byte
}

// Marshal encodes the message as a single packet.
func (m Message) Marshal() []byte {
	hdr := Header{Label: m.Label, PacketType: PacketSingle, MessageType: m.Type, Signal: m.Signal}
	return append(hdr.Marshal(), m.Payload...)
}

// assembler reassembles fragmented signalling messages.
type assembler struct {
	active    bool
	label     uint8
	remaining uint8
	msg       Message
}

// feed consumes one packet and returns a complete message when one is ready.
func (a *assembler) feed(packet []byte) (*Message, error) {
	h, payload, err := ParseHeader(packet)
	if err != nil {
		return nil, err
	}

	switch h.PacketType {
	case PacketSingle:
		a.active = false
		return &Message{Label: h.Label, Type: h.MessageType, Signal: h.Signal, Payload: append([]byte(nil), payload...)}, nil
	case PacketStart:
		if h.Packets < 2 {
			return nil, fmt.Errorf("%w: start packet announces %d packets", ErrMalformedPacket, h.Packets)
		}
		a.active = true
		a.label = h.Label
		a.remaining = h.Packets - 1
		a.msg = Message{Label: h.Label, Type: h.MessageType, Signal: h.Signal, Payload: append([]byte(nil), payload...)}
		return nil, nil
	default:
		if !a.active || h.Label != a.label {
			a.active = false
			return nil, fmt.Errorf("%w: unexpected continuation for label %d", ErrMalformedPacket, h.Label)
		}
		a.msg.Payload = append(a.msg.Payload, payload...)
		a.remaining--
		if h.PacketType == PacketEnd || a.remaining == 0 {
			a.active = false
			msg := a.msg
			return &msg, nil
		}
		return nil, nil
	}
}
