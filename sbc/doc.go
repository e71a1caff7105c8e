// Package sbc implements a low-complexity subband codec (SBC) encoder, the
// mandatory A2DP audio codec.
//
// The encoder consumes interleaved signed 16-bit little-endian PCM and emits
// one frame per call:
//
//	enc, err := sbc.NewEncoder(sbc.DefaultParams())
//	if err != nil {
//		return err
//	}
//	read, written, err := enc.Encode(pcm, frame)
//
// Frames follow the standard bitstream layout: a 0x9C syncword, the packed
// configuration byte, the bitpool, a CRC-8 over the header and scale
// factors, the optional joint-stereo mask, 4-bit scale factors and the
// quantised subband samples. ParseFrameHeader decodes and verifies that
// header, which is how the transport layer and tests check encoder output.
package sbc
