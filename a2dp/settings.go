package a2dp

import (
	"fmt"
	"strings"
)

// QualityProfile selects the target bitpool of the SBC negotiator.
type QualityProfile uint8

const (
	// ProfileCompatible uses the largest bitpool the remote accepts.
	ProfileCompatible QualityProfile = iota
	// ProfileLQ is the low quality preset (bitpool 29, 15 for mono).
	ProfileLQ
	// ProfileMQ is the middle quality preset.
	ProfileMQ
	// ProfileHQ is the high quality preset and the default.
	ProfileHQ
	// ProfileXQ doubles the bitpool where the remote allows it.
	ProfileXQ
)

// DefaultProfile is used when settings carry no explicit profile.
const DefaultProfile = ProfileHQ

var profileNames = map[QualityProfile]string{
	ProfileCompatible: "compatible",
	ProfileLQ:         "lq",
	ProfileMQ:         "mq",
	ProfileHQ:         "hq",
	ProfileXQ:         "xq",
}

// String returns the lower case profile name.
func (p QualityProfile) String() string {
	if name, ok := profileNames[p]; ok {
		return name
	}
	return fmt.Sprintf("QualityProfile(%d)", uint8(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p QualityProfile) MarshalText() ([]byte, error) {
	name, ok := profileNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown quality profile %d", uint8(p))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *QualityProfile) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for profile, name := range profileNames {
		if name == s {
			*p = profile
			return nil
		}
	}
	return fmt.Errorf("unknown quality profile %q", string(text))
}

// ChannelConfig is the requested channel layout.
type ChannelConfig string

const (
	ChannelsMono   ChannelConfig = "mono"
	ChannelsStereo ChannelConfig = "stereo"
)

// ChannelsFor maps a channel count onto a layout: 1 is mono, anything else
// stereo.
func ChannelsFor(n int) ChannelConfig {
	if n == 1 {
		return ChannelsMono
	}
	return ChannelsStereo
}

// Count returns the number of PCM channels of the layout.
func (c ChannelConfig) Count() int {
	if c == ChannelsMono {
		return 1
	}
	return 2
}

// CodecSettings is the preference record exchanged with the negotiator and
// persisted per device.
type CodecSettings struct {
	Profile    *QualityProfile `json:"profile,omitempty"`
	SampleRate uint32          `json:"samplerate,omitempty"`
	Channels   ChannelConfig   `json:"channels,omitempty"`
}

// WithProfile returns a copy of s with the profile set.
func (s CodecSettings) WithProfile(p QualityProfile) CodecSettings {
	s.Profile = &p
	return s
}

// String renders the settings for logging.
func (s CodecSettings) String() string {
	profile := "default"
	if s.Profile != nil {
		profile = s.Profile.String()
	}
	return fmt.Sprintf("profile=%s samplerate=%d channels=%s", profile, s.SampleRate, s.Channels)
}

// StreamFormat describes the PCM the application will write.
type StreamFormat struct {
	SampleRate uint32 `json:"samplerate"`
	Channels   uint8  `json:"channels"`
	Resolution uint8  `json:"resolution"`
	FrameRate  uint16 `json:"framerate"`
}

// Settings converts the format to codec preferences without a profile.
func (f StreamFormat) Settings() CodecSettings {
	return CodecSettings{
		SampleRate: f.SampleRate,
		Channels:   ChannelsFor(int(f.Channels)),
	}
}
