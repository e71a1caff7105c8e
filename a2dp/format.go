package a2dp

import (
	"fmt"
	"sort"

	"github.com/opd-ai/a2dpsink/sbc"
)

// MediaTypeAudio is the media type octet of every A2DP audio codec element.
const MediaTypeAudio uint8 = 0x00

// A2DP codec type octets.
const (
	CodecTypeSBC        uint8 = 0x00
	CodecTypeMPEG12     uint8 = 0x01
	CodecTypeMPEG24AAC  uint8 = 0x02
	CodecTypeATRAC      uint8 = 0x04
	CodecTypeNonA2DP    uint8 = 0xFF
	sbcElementLength          = 6
	minCodecElementSize       = sbcElementLength
)

// SBC capability bit values. Each field of SBCFormat is a bitmask of these;
// a negotiated format has exactly one bit set per field.
const (
	SamplingFrequency16000 uint8 = 0x08
	SamplingFrequency32000 uint8 = 0x04
	SamplingFrequency44100 uint8 = 0x02
	SamplingFrequency48000 uint8 = 0x01

	ChannelModeMono        uint8 = 0x08
	ChannelModeDualChannel uint8 = 0x04
	ChannelModeStereo      uint8 = 0x02
	ChannelModeJointStereo uint8 = 0x01

	BlockLength4  uint8 = 0x08
	BlockLength8  uint8 = 0x04
	BlockLength12 uint8 = 0x02
	BlockLength16 uint8 = 0x01

	Subbands4 uint8 = 0x02
	Subbands8 uint8 = 0x01

	AllocationSNR      uint8 = 0x02
	AllocationLoudness uint8 = 0x01
)

// Bitpool limits of the A2DP SBC element.
const (
	MinBitpool = 2
	MaxBitpool = 250
)

// SBCFormat is the SBC codec specific information element.
type SBCFormat struct {
	SamplingFrequency uint8
	ChannelMode       uint8
	BlockLength       uint8
	Subbands          uint8
	AllocationMethod  uint8
	MinBitpool        uint8
	MaxBitpool        uint8
}

// defaultSBCFormat is the starting point of a negotiated format: 44.1 kHz
// joint stereo, 16 blocks, 8 subbands, loudness.
func defaultSBCFormat() SBCFormat {
	return SBCFormat{
		SamplingFrequency: SamplingFrequency44100,
		ChannelMode:       ChannelModeJointStereo,
		BlockLength:       BlockLength16,
		Subbands:          Subbands8,
		AllocationMethod:  AllocationLoudness,
		MinBitpool:        MinBitpool,
		MaxBitpool:        MinBitpool,
	}
}

// ParseSBCFormat parses a media codec element: the two type octets
// followed by the four SBC octets. Bitpool limits are clamped to
// [MinBitpool, MaxBitpool].
func ParseSBCFormat(element []byte) (SBCFormat, error) {
	var f SBCFormat
	if len(element) < sbcElementLength {
		return f, fmt.Errorf("%w: SBC element of %d bytes", ErrMalformedCapability, len(element))
	}
	if element[0]>>4 != MediaTypeAudio {
		return f, fmt.Errorf("%w: media type 0x%02X is not audio", ErrMalformedCapability, element[0]>>4)
	}
	if element[1] != CodecTypeSBC {
		return f, fmt.Errorf("%w: codec type 0x%02X is not SBC", ErrMalformedCapability, element[1])
	}

	f.SamplingFrequency = element[2] >> 4
	f.ChannelMode = element[2] & 0x0F
	f.BlockLength = element[3] >> 4
	f.Subbands = (element[3] >> 2) & 0x03
	f.AllocationMethod = element[3] & 0x03
	f.MinBitpool = element[4]
	f.MaxBitpool = element[5]

	if f.MinBitpool < MinBitpool {
		f.MinBitpool = MinBitpool
	}
	if f.MaxBitpool > MaxBitpool {
		f.MaxBitpool = MaxBitpool
	}
	if f.MaxBitpool < f.MinBitpool {
		return f, fmt.Errorf("%w: bitpool range [%d, %d]", ErrMalformedCapability, f.MinBitpool, f.MaxBitpool)
	}
	return f, nil
}

// Marshal encodes the element including the media and codec type octets.
func (f SBCFormat) Marshal() []byte {
	return []byte{
		MediaTypeAudio << 4,
		CodecTypeSBC,
		f.SamplingFrequency<<4 | f.ChannelMode&0x0F,
		f.BlockLength<<4 | (f.Subbands&0x03)<<2 | f.AllocationMethod&0x03,
		f.MinBitpool,
		f.MaxBitpool,
	}
}

// String returns a compact description of the format.
func (f SBCFormat) String() string {
	return fmt.Sprintf("freq=0x%X mode=0x%X blocks=0x%X subbands=0x%X alloc=0x%X bitpool=[%d,%d]",
		f.SamplingFrequency, f.ChannelMode, f.BlockLength, f.Subbands, f.AllocationMethod, f.MinBitpool, f.MaxBitpool)
}

var frequencyBits = []struct {
	bit uint8
	hz  int
}{
	{SamplingFrequency16000, 16000},
	{SamplingFrequency32000, 32000},
	{SamplingFrequency44100, 44100},
	{SamplingFrequency48000, 48000},
}

// SampleRate returns the rate of a single-bit sampling frequency, or 0.
func SampleRate(bit uint8) int {
	for _, f := range frequencyBits {
		if f.bit == bit {
			return f.hz
		}
	}
	return 0
}

// pickFrequency returns the supported bucket for a preferred rate: an exact
// match, else the first bucket below the range, the last above it, or the
// nearer edge of the interval containing it.
func pickFrequency(preferred uint32, supported uint8) (uint8, bool) {
	type bucket struct {
		bit uint8
		hz  int
	}
	var buckets []bucket
	for _, f := range frequencyBits {
		if supported&f.bit != 0 {
			buckets = append(buckets, bucket{f.bit, f.hz})
		}
	}
	if len(buckets) == 0 || preferred == 0 {
		return 0, false
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].hz < buckets[j].hz })

	rate := int(preferred)
	if rate <= buckets[0].hz {
		return buckets[0].bit, true
	}
	last := buckets[len(buckets)-1]
	if rate >= last.hz {
		return last.bit, true
	}
	for i := 0; i < len(buckets)-1; i++ {
		lo, hi := buckets[i], buckets[i+1]
		if rate >= lo.hz && rate < hi.hz {
			if rate-lo.hz <= hi.hz-rate {
				return lo.bit, true
			}
			return hi.bit, true
		}
	}
	return last.bit, true
}

func pickChannelMode(channels ChannelConfig, supported uint8) (uint8, bool) {
	var order []uint8
	switch channels {
	case ChannelsMono:
		order = []uint8{ChannelModeMono}
	case ChannelsStereo:
		order = []uint8{ChannelModeJointStereo, ChannelModeStereo, ChannelModeDualChannel}
	default:
		return 0, false
	}
	for _, bit := range order {
		if supported&bit != 0 {
			return bit, true
		}
	}
	return 0, false
}

// pickFirst returns the first bit of order present in supported, or fallback.
func pickFirst(supported uint8, fallback uint8, order ...uint8) uint8 {
	for _, bit := range order {
		if supported&bit != 0 {
			return bit
		}
	}
	return fallback
}

// params converts a negotiated format into encoder parameters.
func (f SBCFormat) params(bitpool uint8) sbc.Params {
	p := sbc.Params{
		Frequency:  sbc.Freq44100,
		Mode:       sbc.ModeJointStereo,
		Allocation: sbc.AllocationLoudness,
		Subbands:   8,
		Blocks:     16,
		Bitpool:    bitpool,
	}
	switch f.SamplingFrequency {
	case SamplingFrequency48000:
		p.Frequency = sbc.Freq48000
	case SamplingFrequency32000:
		p.Frequency = sbc.Freq32000
	case SamplingFrequency16000:
		p.Frequency = sbc.Freq16000
	}
	switch f.ChannelMode {
	case ChannelModeStereo:
		p.Mode = sbc.ModeStereo
	case ChannelModeDualChannel:
		p.Mode = sbc.ModeDualChannel
	case ChannelModeMono:
		p.Mode = sbc.ModeMono
	}
	if f.AllocationMethod == AllocationSNR {
		p.Allocation = sbc.AllocationSNR
	}
	if f.Subbands == Subbands4 {
		p.Subbands = 4
	}
	switch f.BlockLength {
	case BlockLength12:
		p.Blocks = 12
	case BlockLength8:
		p.Blocks = 8
	case BlockLength4:
		p.Blocks = 4
	}
	return p
}
