// Package a2dp implements the source side of the Advanced Audio Distribution
// Profile on top of package avdtp.
//
// A SignallingSession owns the AVDTP signalling channel to one device.
// Discover returns the free audio sink endpoints the device exposes, each as
// a StreamEndpoint that carries the remote's media codec capability.
//
// Codec negotiation picks SBC parameters from the remote capability and a
// QualityProfile:
//
//	codec := endpoint.Codec()
//	settings := a2dp.CodecSettings{SampleRate: 44100, Channels: a2dp.ChannelsStereo}
//	if err := endpoint.Configure(ctx, settings.WithProfile(a2dp.ProfileHQ), false); err != nil {
//		return err
//	}
//	consumed, produced := codec.Encode(pcm, payload)
//
// Only SBC is negotiated. Other codecs are recorded as CodecUnsupported so
// callers can report what the device offered.
package a2dp
