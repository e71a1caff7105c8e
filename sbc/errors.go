package sbc

import "errors"

var (
	// ErrInvalidParams indicates a configuration the frame syntax cannot express.
	ErrInvalidParams = errors.New("invalid SBC parameters")

	// ErrShortInput indicates fewer PCM bytes than one frame consumes.
	ErrShortInput = errors.New("not enough PCM input for one frame")

	// ErrShortOutput indicates the output buffer cannot hold one frame.
	ErrShortOutput = errors.New("output buffer too small for one frame")

	// ErrBadSyncword indicates a frame that does not start with 0x9C.
	ErrBadSyncword = errors.New("bad SBC syncword")

	// ErrBadCRC indicates a frame header checksum mismatch.
	ErrBadCRC = errors.New("SBC header CRC mismatch")

	// ErrTruncatedFrame indicates a frame shorter than its header declares.
	ErrTruncatedFrame = errors.New("truncated SBC frame")
)
