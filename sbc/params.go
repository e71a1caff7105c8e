package sbc

import (
	"fmt"
)

// Frequency is the SBC sampling frequency as coded in the frame header.
type Frequency uint8

const (
	// Freq16000 is 16 kHz
	Freq16000 Frequency = iota
	// Freq32000 is 32 kHz
	Freq32000
	// Freq44100 is 44.1 kHz
	Freq44100
	// Freq48000 is 48 kHz
	Freq48000
)

// Hz returns the sampling rate in hertz.
func (f Frequency) Hz() int {
	switch f {
	case Freq16000:
		return 16000
	case Freq32000:
		return 32000
	case Freq44100:
		return 44100
	case Freq48000:
		return 48000
	default:
		return 0
	}
}

// String returns the string representation of Frequency.
func (f Frequency) String() string {
	if hz := f.Hz(); hz != 0 {
		return fmt.Sprintf("%d Hz", hz)
	}
	return fmt.Sprintf("Unknown(%d)", uint8(f))
}

// FrequencyFromHz maps a sampling rate onto its header code.
func FrequencyFromHz(hz int) (Frequency, bool) {
	switch hz {
	case 16000:
		return Freq16000, true
	case 32000:
		return Freq32000, true
	case 44100:
		return Freq44100, true
	case 48000:
		return Freq48000, true
	}
	return 0, false
}

// Mode is the SBC channel mode.
type Mode uint8

const (
	// ModeMono carries a single channel
	ModeMono Mode = iota
	// ModeDualChannel carries two independently allocated channels
	ModeDualChannel
	// ModeStereo carries two channels sharing one bitpool
	ModeStereo
	// ModeJointStereo is stereo with per-subband mid/side coding
	ModeJointStereo
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	switch m {
	case ModeMono:
		return "Mono"
	case ModeDualChannel:
		return "DualChannel"
	case ModeStereo:
		return "Stereo"
	case ModeJointStereo:
		return "JointStereo"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// Channels returns the number of PCM channels the mode carries.
func (m Mode) Channels() int {
	if m == ModeMono {
		return 1
	}
	return 2
}

// Allocation is the SBC bit allocation method.
type Allocation uint8

const (
	// AllocationLoudness weights subbands by a psychoacoustic offset table
	AllocationLoudness Allocation = iota
	// AllocationSNR allocates by scale factor only
	AllocationSNR
)

// String returns the string representation of Allocation.
func (a Allocation) String() string {
	switch a {
	case AllocationLoudness:
		return "Loudness"
	case AllocationSNR:
		return "SNR"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(a))
	}
}

// MinBitpool is the smallest bitpool accepted by the encoder.
const MinBitpool = 2

// Params describes one SBC stream configuration.
type Params struct {
	Frequency  Frequency
	Mode       Mode
	Allocation Allocation
	Subbands   int // 4 or 8
	Blocks     int // 4, 8, 12 or 16
	Bitpool    uint8
}

// DefaultParams returns the configuration most sinks accept: 44.1 kHz joint
// stereo, 8 subbands, 16 blocks, loudness allocation, bitpool 53.
func DefaultParams() Params {
	return Params{
		Frequency:  Freq44100,
		Mode:       ModeJointStereo,
		Allocation: AllocationLoudness,
		Subbands:   8,
		Blocks:     16,
		Bitpool:    53,
	}
}

// MaxBitpool returns the largest bitpool the frame syntax allows for the
// given mode and subband count.
func MaxBitpool(mode Mode, subbands int) uint8 {
	if mode == ModeMono || mode == ModeDualChannel {
		return uint8(16 * subbands)
	}
	v := 32 * subbands
	if v > 250 {
		v = 250
	}
	return uint8(v)
}

// Validate checks the parameters against the frame syntax.
func (p Params) Validate() error {
	if p.Frequency.Hz() == 0 {
		return fmt.Errorf("%w: sampling frequency %d", ErrInvalidParams, p.Frequency)
	}
	if p.Mode > ModeJointStereo {
		return fmt.Errorf("%w: channel mode %d", ErrInvalidParams, p.Mode)
	}
	if p.Allocation > AllocationSNR {
		return fmt.Errorf("%w: allocation method %d", ErrInvalidParams, p.Allocation)
	}
	if p.Subbands != 4 && p.Subbands != 8 {
		return fmt.Errorf("%w: %d subbands", ErrInvalidParams, p.Subbands)
	}
	switch p.Blocks {
	case 4, 8, 12, 16:
	default:
		return fmt.Errorf("%w: %d blocks", ErrInvalidParams, p.Blocks)
	}
	if p.Bitpool < MinBitpool || p.Bitpool > MaxBitpool(p.Mode, p.Subbands) {
		return fmt.Errorf("%w: bitpool %d outside [%d, %d]", ErrInvalidParams,
			p.Bitpool, MinBitpool, MaxBitpool(p.Mode, p.Subbands))
	}
	return nil
}

// Channels returns the number of PCM channels.
func (p Params) Channels() int {
	return p.Mode.Channels()
}

// CodeSize returns the number of PCM bytes (16-bit samples) one frame consumes.
func (p Params) CodeSize() int {
	return p.Subbands * p.Blocks * p.Channels() * 2
}

// FrameLength returns the encoded frame size in bytes.
func (p Params) FrameLength() int {
	channels := p.Channels()
	length := 4 + (4*p.Subbands*channels)/8
	bitpool := int(p.Bitpool)

	var bits int
	switch p.Mode {
	case ModeMono, ModeDualChannel:
		bits = p.Blocks * channels * bitpool
	case ModeStereo:
		bits = p.Blocks * bitpool
	case ModeJointStereo:
		bits = p.Subbands + p.Blocks*bitpool
	}
	return length + (bits+7)/8
}

// FrameDuration returns the playback duration of one frame in microseconds.
func (p Params) FrameDuration() uint32 {
	hz := p.Frequency.Hz()
	if hz == 0 {
		return 0
	}
	return uint32((p.Blocks * p.Subbands * 1000000) / hz)
}

// BitRate returns the stream bit rate in bits per second.
func (p Params) BitRate() uint32 {
	if p.Subbands == 0 || p.Blocks == 0 {
		return 0
	}
	return uint32((8 * p.FrameLength() * p.Frequency.Hz()) / (p.Subbands * p.Blocks))
}

func (p Params) blocksCode() uint8 {
	return uint8(p.Blocks/4 - 1)
}

func (p Params) subbandsCode() uint8 {
	if p.Subbands == 8 {
		return 1
	}
	return 0
}
