package a2dp

import (
	"errors"
	"testing"

	"github.com/opd-ai/a2dpsink/sbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullCapability advertises every SBC option with the given bitpool range.
func fullCapability(minBitpool, maxBitpool uint8) []byte {
	return []byte{0x00, 0x00, 0xFF, 0xFF, minBitpool, maxBitpool}
}

func TestParseSBCFormat(t *testing.T) {
	f, err := ParseSBCFormat([]byte{0x00, 0x00, 0x21, 0xFF, 0x02, 0x35})
	require.NoError(t, err)

	assert.Equal(t, SamplingFrequency44100, f.SamplingFrequency)
	assert.Equal(t, ChannelModeJointStereo, f.ChannelMode)
	assert.Equal(t, uint8(0x0F), f.BlockLength)
	assert.Equal(t, uint8(0x03), f.Subbands)
	assert.Equal(t, uint8(0x03), f.AllocationMethod)
	assert.Equal(t, uint8(2), f.MinBitpool)
	assert.Equal(t, uint8(0x35), f.MaxBitpool)

	assert.Equal(t, []byte{0x00, 0x00, 0x21, 0xFF, 0x02, 0x35}, f.Marshal())
}

func TestParseSBCFormatBitpoolBounds(t *testing.T) {
	tests := []struct {
		name    string
		min     uint8
		max     uint8
		wantMin uint8
		wantMax uint8
		wantErr bool
	}{
		{"within range", 10, 40, 10, 40, false},
		{"min clamped up", 0, 40, 2, 40, false},
		{"max clamped down", 2, 255, 2, 250, false},
		{"equal limits", 30, 30, 30, 30, false},
		{"inverted", 40, 30, 0, 0, true},
		{"max below floor", 0, 1, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseSBCFormat(fullCapability(tt.min, tt.max))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedCapability)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMin, f.MinBitpool)
			assert.Equal(t, tt.wantMax, f.MaxBitpool)
		})
	}
}

func TestParseSBCFormatRejects(t *testing.T) {
	tests := []struct {
		name    string
		element []byte
	}{
		{"short", []byte{0x00, 0x00, 0xFF, 0xFF, 0x02}},
		{"video", []byte{0x10, 0x00, 0xFF, 0xFF, 0x02, 0x35}},
		{"aac", []byte{0x00, 0x02, 0xFF, 0xFF, 0x02, 0x35}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSBCFormat(tt.element)
			assert.ErrorIs(t, err, ErrMalformedCapability)
		})
	}
}

func TestConfigureQualityLadder(t *testing.T) {
	tests := []struct {
		name        string
		capability  []byte
		profile     QualityProfile
		sampleRate  uint32
		channels    ChannelConfig
		wantBitpool uint8
		wantMode    uint8
		wantProfile QualityProfile
	}{
		{"mq mono 44.1k", fullCapability(2, 53), ProfileMQ, 44100, ChannelsMono, 19, ChannelModeMono, ProfileMQ},
		{"mq stereo 44.1k", fullCapability(2, 53), ProfileMQ, 44100, ChannelsStereo, 35, ChannelModeJointStereo, ProfileMQ},
		{"mq stereo 48k", fullCapability(2, 53), ProfileMQ, 48000, ChannelsStereo, 33, ChannelModeJointStereo, ProfileMQ},
		{"mq mono 48k", fullCapability(2, 53), ProfileMQ, 48000, ChannelsMono, 18, ChannelModeMono, ProfileMQ},
		{"hq stereo 44.1k", fullCapability(2, 53), ProfileHQ, 44100, ChannelsStereo, 53, ChannelModeJointStereo, ProfileHQ},
		{"hq stereo 48k", fullCapability(2, 53), ProfileHQ, 48000, ChannelsStereo, 51, ChannelModeJointStereo, ProfileHQ},
		{"hq mono 48k", fullCapability(2, 53), ProfileHQ, 48000, ChannelsMono, 29, ChannelModeMono, ProfileHQ},
		{"lq stereo", fullCapability(2, 53), ProfileLQ, 44100, ChannelsStereo, 29, ChannelModeJointStereo, ProfileLQ},
		{"lq mono", fullCapability(2, 53), ProfileLQ, 44100, ChannelsMono, 15, ChannelModeMono, ProfileLQ},
		{"compatible requested means lq", fullCapability(2, 53), ProfileCompatible, 44100, ChannelsStereo, 29, ChannelModeJointStereo, ProfileLQ},
		{"xq stereo with headroom", fullCapability(2, 80), ProfileXQ, 44100, ChannelsStereo, 76, ChannelModeJointStereo, ProfileXQ},
		{"xq falls back to dual", fullCapability(2, 53), ProfileXQ, 44100, ChannelsStereo, 38, ChannelModeDualChannel, ProfileXQ},
		{"xq mono", fullCapability(2, 53), ProfileXQ, 44100, ChannelsMono, 38, ChannelModeMono, ProfileXQ},
		{"xq below 38 walks down to mq", fullCapability(2, 35), ProfileXQ, 44100, ChannelsStereo, 35, ChannelModeJointStereo, ProfileMQ},
		{"xq without dual is hq", []byte{0x00, 0x00, 0xFB, 0xFF, 0x02, 0x40}, ProfileXQ, 44100, ChannelsStereo, 53, ChannelModeJointStereo, ProfileHQ},
		{"hq above remote max drops to mq", fullCapability(2, 40), ProfileHQ, 44100, ChannelsStereo, 35, ChannelModeJointStereo, ProfileMQ},
		{"hq mono with max 30 drops to mq", fullCapability(2, 30), ProfileHQ, 44100, ChannelsMono, 19, ChannelModeMono, ProfileMQ},
		{"lq above remote max is compatible", fullCapability(2, 20), ProfileLQ, 44100, ChannelsStereo, 20, ChannelModeJointStereo, ProfileCompatible},
		{"lq raised to remote min", fullCapability(32, 53), ProfileLQ, 44100, ChannelsStereo, 32, ChannelModeJointStereo, ProfileLQ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewSBCCodec(tt.capability)
			require.NoError(t, err)

			settings := CodecSettings{SampleRate: tt.sampleRate, Channels: tt.channels}.WithProfile(tt.profile)
			require.NoError(t, codec.Configure(settings))

			assert.Equal(t, tt.wantBitpool, codec.Bitpool())
			assert.Equal(t, tt.wantMode, codec.Negotiated().ChannelMode)
			assert.Equal(t, tt.wantBitpool, codec.Negotiated().MaxBitpool)
			assert.Equal(t, tt.wantProfile, codec.Profile())
		})
	}
}

func TestConfigurePreferredCompatible(t *testing.T) {
	codec, err := NewSBCCodec(fullCapability(2, 45))
	require.NoError(t, err)
	codec.SetPreferredProfile(ProfileCompatible)

	require.NoError(t, codec.Configure(CodecSettings{SampleRate: 44100, Channels: ChannelsStereo}))
	assert.Equal(t, uint8(45), codec.Bitpool())
	assert.Equal(t, ProfileCompatible, codec.Profile())
}

func TestConfigureDefaultsToHQ(t *testing.T) {
	codec, err := NewSBCCodec(fullCapability(2, 53))
	require.NoError(t, err)

	require.NoError(t, codec.Configure(CodecSettings{SampleRate: 44100, Channels: ChannelsStereo}))
	assert.Equal(t, ProfileHQ, codec.Profile())
	assert.Equal(t, uint8(53), codec.Bitpool())

	neg := codec.Negotiated()
	assert.Equal(t, BlockLength16, neg.BlockLength)
	assert.Equal(t, Subbands8, neg.Subbands)
	assert.Equal(t, AllocationLoudness, neg.AllocationMethod)
	assert.Equal(t, uint32(44100), codec.ClockRate())
	assert.Equal(t, uint8(2), codec.Channels())
	assert.Equal(t, 512, codec.RawFrameSize())
	assert.Equal(t, 119, codec.EncodedFrameSize())

	cfg := codec.Configuration()
	require.NotNil(t, cfg.Profile)
	assert.Equal(t, ProfileHQ, *cfg.Profile)
	assert.Equal(t, uint32(44100), cfg.SampleRate)
	assert.Equal(t, ChannelsStereo, cfg.Channels)
}

func TestConfigureBitpoolWithinRemoteRange(t *testing.T) {
	profiles := []QualityProfile{ProfileCompatible, ProfileLQ, ProfileMQ, ProfileHQ, ProfileXQ}
	maxes := []uint8{2, 10, 19, 29, 35, 38, 53, 76, 120, 250}

	for _, max := range maxes {
		for _, profile := range profiles {
			for _, channels := range []ChannelConfig{ChannelsMono, ChannelsStereo} {
				codec, err := NewSBCCodec(fullCapability(2, max))
				require.NoError(t, err)
				settings := CodecSettings{SampleRate: 48000, Channels: channels}.WithProfile(profile)
				require.NoError(t, codec.Configure(settings))

				bp := codec.Bitpool()
				assert.LessOrEqual(t, bp, max, "max %d profile %s %s", max, profile, channels)
				assert.GreaterOrEqual(t, bp, uint8(MinBitpool), "max %d profile %s %s", max, profile, channels)
			}
		}
	}
}

func TestConfigureFrequencySelection(t *testing.T) {
	// 44.1 kHz and 48 kHz only.
	capability := []byte{0x00, 0x00, 0x31, 0xFF, 0x02, 0x35}
	tests := []struct {
		preferred uint32
		want      uint8
	}{
		{8000, SamplingFrequency44100},
		{44100, SamplingFrequency44100},
		{46000, SamplingFrequency44100},
		{46100, SamplingFrequency48000},
		{48000, SamplingFrequency48000},
		{96000, SamplingFrequency48000},
	}

	for _, tt := range tests {
		codec, err := NewSBCCodec(capability)
		require.NoError(t, err)
		require.NoError(t, codec.Configure(CodecSettings{SampleRate: tt.preferred, Channels: ChannelsStereo}))
		assert.Equal(t, tt.want, codec.Negotiated().SamplingFrequency, "preferred %d", tt.preferred)
	}
}

func TestConfigureChannelFallback(t *testing.T) {
	// Stereo and dual only.
	codec, err := NewSBCCodec([]byte{0x00, 0x00, 0xF6, 0xFF, 0x02, 0x35})
	require.NoError(t, err)
	require.NoError(t, codec.Configure(CodecSettings{SampleRate: 44100, Channels: ChannelsStereo}))
	assert.Equal(t, ChannelModeStereo, codec.Negotiated().ChannelMode)

	err = codec.Configure(CodecSettings{SampleRate: 44100, Channels: ChannelsMono})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestConfigureBadRequest(t *testing.T) {
	tests := []struct {
		name     string
		settings CodecSettings
	}{
		{"no sample rate", CodecSettings{Channels: ChannelsStereo}},
		{"no channels", CodecSettings{SampleRate: 44100}},
		{"unknown channels", CodecSettings{SampleRate: 44100, Channels: "surround"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewSBCCodec(fullCapability(2, 53))
			require.NoError(t, err)
			assert.ErrorIs(t, codec.Configure(tt.settings), ErrBadRequest)
			assert.False(t, codec.Configured())
		})
	}

	codec, err := NewSBCCodec([]byte{0x00, 0x00, 0x0F, 0xFF, 0x02, 0x35})
	require.NoError(t, err)
	assert.ErrorIs(t, codec.Configure(CodecSettings{SampleRate: 44100, Channels: ChannelsStereo}), ErrBadRequest)
}

func TestSerializeConfigurationRoundTrip(t *testing.T) {
	codec, err := NewSBCCodec(fullCapability(2, 53))
	require.NoError(t, err)
	require.NoError(t, codec.Configure(CodecSettings{SampleRate: 48000, Channels: ChannelsMono}.WithProfile(ProfileMQ)))

	element := codec.SerializeConfiguration()
	parsed, err := ParseSBCFormat(element)
	require.NoError(t, err)
	assert.Equal(t, codec.Negotiated(), parsed)
	assert.Equal(t, SamplingFrequency48000, parsed.SamplingFrequency)
	assert.Equal(t, ChannelModeMono, parsed.ChannelMode)
	assert.Equal(t, uint8(18), parsed.MaxBitpool)
}

func configuredCodec(t *testing.T) *SBCCodec {
	t.Helper()
	codec, err := NewSBCCodec(fullCapability(2, 53))
	require.NoError(t, err)
	require.NoError(t, codec.Configure(CodecSettings{SampleRate: 44100, Channels: ChannelsStereo}))
	return codec
}

func TestEncodeCapsFramesPerPacket(t *testing.T) {
	codec := configuredCodec(t)
	in := make([]byte, 16*codec.RawFrameSize())
	out := make([]byte, 4096)

	consumed, produced := codec.Encode(in, out)
	assert.Equal(t, 15*codec.RawFrameSize(), consumed)
	assert.Equal(t, 1+15*codec.EncodedFrameSize(), produced)
	assert.Equal(t, uint8(15), out[0]&0x0F)

	_, err := sbc.ParseFrameHeader(out[1 : 1+codec.EncodedFrameSize()])
	assert.NoError(t, err)
}

func TestEncodeLimitedByOutput(t *testing.T) {
	codec := configuredCodec(t)
	in := make([]byte, 10*codec.RawFrameSize())
	out := make([]byte, 672)

	consumed, produced := codec.Encode(in, out)
	frames := (672 - 1) / codec.EncodedFrameSize()
	assert.Equal(t, frames*codec.RawFrameSize(), consumed)
	assert.Equal(t, 1+frames*codec.EncodedFrameSize(), produced)
	assert.Equal(t, uint8(frames), out[0])
}

func TestEncodeShortInput(t *testing.T) {
	codec := configuredCodec(t)
	consumed, produced := codec.Encode(make([]byte, codec.RawFrameSize()-1), make([]byte, 672))
	assert.Zero(t, consumed)
	assert.Zero(t, produced)
}

func TestEncodeUnconfigured(t *testing.T) {
	codec, err := NewSBCCodec(fullCapability(2, 53))
	require.NoError(t, err)
	consumed, produced := codec.Encode(make([]byte, 4096), make([]byte, 672))
	assert.Zero(t, consumed)
	assert.Zero(t, produced)
}

type failingEncoder struct {
	inSize  int
	outSize int
	failAt  int
	calls   int
}

func (f *failingEncoder) Reset(sbc.Params) error { return nil }
func (f *failingEncoder) CodeSize() int          { return f.inSize }
func (f *failingEncoder) FrameLength() int       { return f.outSize }
func (f *failingEncoder) FrameDuration() uint32  { return 0 }

func (f *failingEncoder) Encode(pcm, out []byte) (int, int, error) {
	f.calls++
	if f.calls > f.failAt {
		return 0, 0, errors.New("encoder failure")
	}
	return f.inSize, f.outSize, nil
}

func TestEncodeFailureKeepsProducedFrames(t *testing.T) {
	codec := configuredCodec(t)
	codec.encoder = &failingEncoder{inSize: codec.RawFrameSize(), outSize: codec.EncodedFrameSize(), failAt: 2}

	out := make([]byte, 4096)
	consumed, produced := codec.Encode(make([]byte, 8*codec.RawFrameSize()), out)
	assert.Equal(t, 2*codec.RawFrameSize(), consumed)
	assert.Equal(t, 1+2*codec.EncodedFrameSize(), produced)
	assert.Equal(t, uint8(2), out[0])
}

func TestEncodeFailureOnFirstFrame(t *testing.T) {
	codec := configuredCodec(t)
	codec.encoder = &failingEncoder{inSize: codec.RawFrameSize(), outSize: codec.EncodedFrameSize(), failAt: 0}

	consumed, produced := codec.Encode(make([]byte, 8*codec.RawFrameSize()), make([]byte, 4096))
	assert.Zero(t, consumed)
	assert.Zero(t, produced)
}

func TestDecodeNotImplemented(t *testing.T) {
	codec := configuredCodec(t)
	_, _, err := codec.Decode(nil, nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestQualityProfileText(t *testing.T) {
	for _, p := range []QualityProfile{ProfileCompatible, ProfileLQ, ProfileMQ, ProfileHQ, ProfileXQ} {
		text, err := p.MarshalText()
		require.NoError(t, err)
		var back QualityProfile
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, p, back)
	}

	var p QualityProfile
	require.NoError(t, p.UnmarshalText([]byte("XQ")))
	assert.Equal(t, ProfileXQ, p)
	assert.Error(t, p.UnmarshalText([]byte("ultra")))
}

func TestStreamFormatSettings(t *testing.T) {
	s := StreamFormat{SampleRate: 48000, Channels: 1, Resolution: 16}.Settings()
	assert.Equal(t, uint32(48000), s.SampleRate)
	assert.Equal(t, ChannelsMono, s.Channels)
	assert.Nil(t, s.Profile)

	assert.Equal(t, ChannelsStereo, StreamFormat{Channels: 2}.Settings().Channels)
	assert.Equal(t, 2, ChannelsStereo.Count())
}
