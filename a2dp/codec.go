package a2dp

import (
	"encoding/binary"
	"fmt"
)

// CodecKind tags the Codec variant.
type CodecKind uint8

const (
	// CodecUnsupported records a codec type the sink cannot negotiate.
	CodecUnsupported CodecKind = iota
	// CodecSBC is the mandatory SBC codec.
	CodecSBC
)

// Codec is the media codec advertised by a remote endpoint. Exactly one of
// SBC or Raw is set, according to Kind.
type Codec struct {
	Kind CodecKind
	Type uint8
	SBC  *SBCCodec
	Raw  []byte
}

// NewCodec builds the variant for a media codec capability.
//
// Parameters:
//   - element: the MEDIA_CODEC capability, starting with the media and
//     codec type octets
//
// Returns:
//   - Codec: an SBC variant, or an unsupported one holding the raw element
//   - error: ErrMalformedCapability for short, non-audio or invalid SBC
//     elements
func NewCodec(element []byte) (Codec, error) {
	if len(element) < minCodecElementSize {
		return Codec{}, fmt.Errorf("%w: codec element of %d bytes", ErrMalformedCapability, len(element))
	}
	if element[0]>>4 != MediaTypeAudio {
		return Codec{}, fmt.Errorf("%w: media type 0x%02X is not audio", ErrMalformedCapability, element[0]>>4)
	}

	codecType := element[1]
	if codecType == CodecTypeSBC {
		c, err := NewSBCCodec(element)
		if err != nil {
			return Codec{}, err
		}
		return Codec{Kind: CodecSBC, Type: codecType, SBC: c}, nil
	}
	return Codec{
		Kind: CodecUnsupported,
		Type: codecType,
		Raw:  append([]byte(nil), element...),
	}, nil
}

// Name returns the codec name.
func (c Codec) Name() string {
	switch c.Type {
	case CodecTypeSBC:
		return "SBC"
	case CodecTypeMPEG12:
		return "MPEG-1,2"
	case CodecTypeMPEG24AAC:
		return "MPEG-2,4 AAC"
	case CodecTypeATRAC:
		return "ATRAC"
	case CodecTypeNonA2DP:
		return "vendor"
	default:
		return fmt.Sprintf("codec(0x%02X)", c.Type)
	}
}

// Supported reports whether the variant can be negotiated.
func (c Codec) Supported() bool {
	return c.Kind == CodecSBC && c.SBC != nil
}

// Configure negotiates the codec for the given settings.
func (c Codec) Configure(settings CodecSettings) error {
	if !c.Supported() {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, c.Name())
	}
	return c.SBC.Configure(settings)
}

// Configuration returns the negotiated settings.
func (c Codec) Configuration() CodecSettings {
	if !c.Supported() {
		return CodecSettings{}
	}
	return c.SBC.Configuration()
}

// StreamFormat returns the PCM format the codec expects.
func (c Codec) StreamFormat() StreamFormat {
	if !c.Supported() {
		return StreamFormat{}
	}
	return c.SBC.StreamFormat()
}

// SerializeConfiguration returns the media codec element to configure.
func (c Codec) SerializeConfiguration() ([]byte, error) {
	if !c.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, c.Name())
	}
	return c.SBC.SerializeConfiguration(), nil
}

// Encode packs PCM into one media payload.
//
// Parameters:
//   - in: interleaved 16-bit PCM
//   - out: destination for the encoded frames
//
// Returns:
//   - consumed: PCM bytes taken from in, a whole number of frames
//   - produced: bytes written to out; both are zero for an unsupported
//     variant
func (c Codec) Encode(in, out []byte) (consumed, produced int) {
	if !c.Supported() {
		return 0, 0
	}
	return c.SBC.Encode(in, out)
}

// Decode is not implemented for any variant.
func (c Codec) Decode(in, out []byte) (int, int, error) {
	if !c.Supported() {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedCodec, c.Name())
	}
	return c.SBC.Decode(in, out)
}

// ClockRate returns the RTP clock rate.
func (c Codec) ClockRate() uint32 {
	if !c.Supported() {
		return 0
	}
	return c.SBC.ClockRate()
}

// Channels returns the PCM channel count.
func (c Codec) Channels() uint8 {
	if !c.Supported() {
		return 0
	}
	return c.SBC.Channels()
}

// BitRate returns the encoded bit rate.
func (c Codec) BitRate() uint32 {
	if !c.Supported() {
		return 0
	}
	return c.SBC.BitRate()
}

// RawFrameSize returns the PCM bytes per codec frame.
func (c Codec) RawFrameSize() int {
	if !c.Supported() {
		return 0
	}
	return c.SBC.RawFrameSize()
}

// EncodedFrameSize returns the bytes per encoded frame.
func (c Codec) EncodedFrameSize() int {
	if !c.Supported() {
		return 0
	}
	return c.SBC.EncodedFrameSize()
}

// FrameDuration returns the frame duration in microseconds.
func (c Codec) FrameDuration() uint32 {
	if !c.Supported() {
		return 0
	}
	return c.SBC.FrameDuration()
}

// ContentProtectionType identifies a content protection scheme.
type ContentProtectionType uint16

const (
	ContentProtectionNone  ContentProtectionType = 0x0000
	ContentProtectionDTCP  ContentProtectionType = 0x0001
	ContentProtectionSCMST ContentProtectionType = 0x0002
)

// String returns the scheme name.
func (t ContentProtectionType) String() string {
	switch t {
	case ContentProtectionNone:
		return "none"
	case ContentProtectionDTCP:
		return "DTCP"
	case ContentProtectionSCMST:
		return "SCMS-T"
	default:
		return fmt.Sprintf("cp(0x%04X)", uint16(t))
	}
}

// ContentProtection records a remote's content protection capability. It is
// parsed and can be echoed back, but no protection is ever applied.
type ContentProtection struct {
	Type ContentProtectionType
	Data []byte
}

// ParseContentProtection parses a content protection element whose first
// two octets hold the little endian scheme identifier.
func ParseContentProtection(b []byte) (*ContentProtection, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: content protection of %d bytes", ErrMalformedCapability, len(b))
	}
	return &ContentProtection{
		Type: ContentProtectionType(binary.LittleEndian.Uint16(b)),
		Data: append([]byte(nil), b[2:]...),
	}, nil
}

// SerializeConfiguration returns the element for SET_CONFIGURATION.
func (cp *ContentProtection) SerializeConfiguration() []byte {
	out := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(cp.Data)), uint16(cp.Type))
	return append(out, cp.Data...)
}
