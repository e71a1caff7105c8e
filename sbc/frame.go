package sbc

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

// FrameHeader is the decoded, checksum-verified header of one SBC frame.
type FrameHeader struct {
	Params
	Join         uint8
	ScaleFactors [2][8]int
}

// ParseFrameHeader decodes the header, join mask and scale factors at the
// start of frame and verifies the CRC.
func ParseFrameHeader(frame []byte) (FrameHeader, error) {
	var h FrameHeader
	if len(frame) < 4 {
		return h, fmt.Errorf("%w: %d bytes", ErrTruncatedFrame, len(frame))
	}
	if frame[0] != syncword {
		return h, fmt.Errorf("%w: 0x%02X", ErrBadSyncword, frame[0])
	}

	r := bitio.NewReader(bytes.NewReader(frame[1:]))
	h.Frequency = Frequency(r.TryReadBits(2))
	h.Blocks = int(r.TryReadBits(2)+1) * 4
	h.Mode = Mode(r.TryReadBits(2))
	h.Allocation = Allocation(r.TryReadBits(1))
	h.Subbands = 4
	if r.TryReadBits(1) == 1 {
		h.Subbands = 8
	}
	h.Bitpool = r.TryReadByte()
	expected := r.TryReadByte()
	if r.TryError != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncatedFrame, r.TryError)
	}

	crc := newCRC8()
	crc.writeBits(uint64(frame[1]), 8)
	crc.writeBits(uint64(frame[2]), 8)
	if h.Mode == ModeJointStereo {
		h.Join = uint8(r.TryReadBits(uint8(h.Subbands)))
		crc.writeBits(uint64(h.Join), uint8(h.Subbands))
	}
	for ch := 0; ch < h.Channels(); ch++ {
		for sb := 0; sb < h.Subbands; sb++ {
			sf := r.TryReadBits(4)
			h.ScaleFactors[ch][sb] = int(sf)
			crc.writeBits(sf, 4)
		}
	}
	if r.TryError != nil {
		return h, fmt.Errorf("%w: %v", ErrTruncatedFrame, r.TryError)
	}
	if crc.sum() != expected {
		return h, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrBadCRC, expected, crc.sum())
	}
	if len(frame) < h.FrameLength() {
		return h, fmt.Errorf("%w: %d bytes, header declares %d", ErrTruncatedFrame, len(frame), h.FrameLength())
	}
	return h, nil
}
