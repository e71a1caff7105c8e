package a2dp

import (
	"fmt"
	"sync"

	"github.com/opd-ai/a2dpsink/sbc"
	"github.com/sirupsen/logrus"
)

// MaxFramesPerPacket caps the SBC frames carried by one media packet; the
// count shares a four bit field of the payload header.
const MaxFramesPerPacket = 15

// frameEncoder is the part of sbc.Encoder used by SBCCodec.
type frameEncoder interface {
	Reset(p sbc.Params) error
	Encode(pcm, out []byte) (read, written int, err error)
	CodeSize() int
	FrameLength() int
	FrameDuration() uint32
}

// SBCCodec negotiates an SBC configuration against a remote capability and
// encodes PCM into media payloads for it.
type SBCCodec struct {
	mu sync.RWMutex

	supported        SBCFormat
	actuals          SBCFormat
	preferredProfile QualityProfile
	profile          QualityProfile
	configured       bool

	encoder       frameEncoder
	bitpool       uint8
	bitRate       uint32
	sampleRate    uint32
	channels      uint8
	inFrameSize   int
	outFrameSize  int
	frameDuration uint32
}

// NewSBCCodec parses the remote's media codec capability.
func NewSBCCodec(capability []byte) (*SBCCodec, error) {
	supported, err := ParseSBCFormat(capability)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewSBCCodec",
		"supported": supported.String(),
	}).Debug("Parsed SBC capability")

	return &SBCCodec{
		supported:        supported,
		actuals:          defaultSBCFormat(),
		preferredProfile: DefaultProfile,
		profile:          DefaultProfile,
	}, nil
}

// Supported returns the remote's capability.
func (c *SBCCodec) Supported() SBCFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supported
}

// Negotiated returns the configuration chosen by the last Configure.
func (c *SBCCodec) Negotiated() SBCFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actuals
}

// SetPreferredProfile sets the profile used when settings carry none.
func (c *SBCCodec) SetPreferredProfile(p QualityProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preferredProfile = p
}

// Configure picks the SBC parameters for the requested settings and
// prepares the encoder.
//
// A requested ProfileCompatible is treated as ProfileLQ; the compatible
// rung is reached only through the preferred profile.
//
// Parameters:
//   - settings: sample rate and channels to match, and an optional profile
//     overriding the preferred one
//
// Returns:
//   - error: ErrBadRequest when the settings are incomplete or the
//     remote cannot match them
func (c *SBCCodec) Configure(settings CodecSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"function": "SBCCodec.Configure",
		"settings": settings.String(),
	})

	profile := c.preferredProfile
	if settings.Profile != nil {
		profile = *settings.Profile
		if profile == ProfileCompatible {
			profile = ProfileLQ
		}
	}

	if settings.SampleRate == 0 || settings.Channels == "" {
		logger.Warn("Sample rate and channels are required")
		return fmt.Errorf("%w: sample rate and channels are required", ErrBadRequest)
	}
	freq, ok := pickFrequency(settings.SampleRate, c.supported.SamplingFrequency)
	if !ok {
		logger.Warn("No supported sampling frequency")
		return fmt.Errorf("%w: sample rate %d", ErrBadRequest, settings.SampleRate)
	}
	mode, ok := pickChannelMode(settings.Channels, c.supported.ChannelMode)
	if !ok {
		logger.Warn("No supported channel mode")
		return fmt.Errorf("%w: channels %s", ErrBadRequest, settings.Channels)
	}

	mode, bitpool, profile := c.pickBitpool(profile, freq, mode)

	actuals := SBCFormat{
		SamplingFrequency: freq,
		ChannelMode:       mode,
		BlockLength:       pickFirst(c.supported.BlockLength, BlockLength16, BlockLength16, BlockLength12, BlockLength8, BlockLength4),
		Subbands:          pickFirst(c.supported.Subbands, Subbands8, Subbands8, Subbands4),
		AllocationMethod:  pickFirst(c.supported.AllocationMethod, AllocationLoudness, AllocationLoudness, AllocationSNR),
		MinBitpool:        c.supported.MinBitpool,
	}
	if actuals.MinBitpool < MinBitpool {
		actuals.MinBitpool = MinBitpool
	}

	params := actuals.params(bitpool)
	if limit := sbc.MaxBitpool(params.Mode, params.Subbands); bitpool > limit {
		bitpool = limit
	}
	if bitpool > c.supported.MaxBitpool {
		bitpool = c.supported.MaxBitpool
	}
	if bitpool < actuals.MinBitpool {
		bitpool = actuals.MinBitpool
	}
	actuals.MaxBitpool = bitpool
	params.Bitpool = bitpool

	if c.encoder == nil {
		enc, err := sbc.NewEncoder(params)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		c.encoder = enc
	} else if err := c.encoder.Reset(params); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	c.actuals = actuals
	c.profile = profile
	c.bitpool = bitpool
	c.sampleRate = uint32(SampleRate(freq))
	c.channels = uint8(params.Channels())
	c.bitRate = params.BitRate()
	c.inFrameSize = c.encoder.CodeSize()
	c.outFrameSize = c.encoder.FrameLength()
	c.frameDuration = c.encoder.FrameDuration()
	c.configured = true

	logger.WithFields(logrus.Fields{
		"profile":        profile.String(),
		"negotiated":     actuals.String(),
		"bitrate":        c.bitRate,
		"in_frame_size":  c.inFrameSize,
		"out_frame_size": c.outFrameSize,
		"frame_duration": c.frameDuration,
	}).Info("SBC configured")
	return nil
}

// pickBitpool walks the quality ladder from the requested profile down,
// dropping a rung whenever its bitpool exceeds the remote maximum. XQ uses
// bitpool 38, or 76 for stereo; when the remote cannot reach 76 a stereo XQ
// stream moves to dual channel at 38 if the remote supports it.
func (c *SBCCodec) pickBitpool(profile QualityProfile, freq, mode uint8) (uint8, uint8, QualityProfile) {
	supMax := c.supported.MaxBitpool
	mono := mode == ChannelModeMono
	is48k := freq == SamplingFrequency48000

	if profile == ProfileXQ {
		switch {
		case supMax < 38:
			profile = ProfileHQ
		case mono:
			return mode, 38, profile
		case supMax >= 76:
			return mode, 76, profile
		case c.supported.ChannelMode&ChannelModeDualChannel != 0:
			return ChannelModeDualChannel, 38, profile
		default:
			profile = ProfileHQ
		}
	}

	var bitpool uint8
	if profile == ProfileHQ {
		bitpool = pick(mono, 31, 53)
		if is48k {
			bitpool = pick(mono, 29, 51)
		}
		if bitpool > supMax {
			profile = ProfileMQ
		}
	}
	if profile == ProfileMQ {
		bitpool = pick(mono, 19, 35)
		if is48k {
			bitpool = pick(mono, 18, 33)
		}
		if bitpool > supMax {
			profile = ProfileLQ
		}
	}
	if profile == ProfileLQ {
		bitpool = pick(mono, 15, 29)
		if bitpool > supMax {
			profile = ProfileCompatible
		}
	}
	if profile == ProfileCompatible {
		bitpool = supMax
	}
	return mode, bitpool, profile
}

func pick(mono bool, monoValue, stereoValue uint8) uint8 {
	if mono {
		return monoValue
	}
	return stereoValue
}

// Configuration reports the negotiated settings.
func (c *SBCCodec) Configuration() CodecSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.configured {
		return CodecSettings{}
	}
	channels := ChannelsStereo
	if c.actuals.ChannelMode == ChannelModeMono {
		channels = ChannelsMono
	}
	return CodecSettings{SampleRate: c.sampleRate, Channels: channels}.WithProfile(c.profile)
}

// StreamFormat describes the PCM the encoder expects.
func (c *SBCCodec) StreamFormat() StreamFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := StreamFormat{SampleRate: c.sampleRate, Channels: c.channels, Resolution: 16}
	if c.frameDuration > 0 {
		f.FrameRate = uint16(1000000 / c.frameDuration)
	}
	return f
}

// SerializeConfiguration returns the negotiated element for SET_CONFIGURATION.
func (c *SBCCodec) SerializeConfiguration() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actuals.Marshal()
}

// Encode packs as many whole SBC frames as fit into out, behind a one byte
// header carrying the frame count. It returns the PCM bytes consumed and the
// bytes written to out. An encoder failure ends the packet early; produced
// frames are kept and nothing is written when no frame was produced.
func (c *SBCCodec) Encode(in, out []byte) (consumed, produced int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.configured || len(out) < 1 {
		return 0, 0
	}

	written := 1
	frames := 0
	for frames < MaxFramesPerPacket &&
		consumed+c.inFrameSize <= len(in) &&
		len(out)-written >= c.outFrameSize {
		n, w, err := c.encoder.Encode(in[consumed:], out[written:])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SBCCodec.Encode",
				"frames":   frames,
				"error":    err.Error(),
			}).Error("SBC encoding failed")
			break
		}
		consumed += n
		written += w
		frames++
	}

	if frames == 0 {
		return consumed, 0
	}
	out[0] = uint8(frames) & 0x0F
	return consumed, written
}

// Decode is not supported; the sink role never receives SBC.
func (c *SBCCodec) Decode(in, out []byte) (int, int, error) {
	return 0, 0, ErrNotImplemented
}

// Configured reports whether Configure has succeeded.
func (c *SBCCodec) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configured
}

// Profile returns the profile actually applied.
func (c *SBCCodec) Profile() QualityProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// Bitpool returns the negotiated bitpool.
func (c *SBCCodec) Bitpool() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bitpool
}

// BitRate returns the encoded bit rate in bits per second.
func (c *SBCCodec) BitRate() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bitRate
}

// ClockRate returns the sample rate, which is also the RTP clock rate.
func (c *SBCCodec) ClockRate() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampleRate
}

// Channels returns the PCM channel count.
func (c *SBCCodec) Channels() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels
}

// RawFrameSize returns the PCM bytes per SBC frame.
func (c *SBCCodec) RawFrameSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inFrameSize
}

// EncodedFrameSize returns the bytes of one encoded SBC frame.
func (c *SBCCodec) EncodedFrameSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outFrameSize
}

// FrameDuration returns the duration of one frame in microseconds.
func (c *SBCCodec) FrameDuration() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frameDuration
}
