// Package a2dpsink streams PCM audio to Bluetooth A2DP sinks such as
// headphones and speakers.
//
// A SinkSession follows one remote device. Once the device is connected
// and bonded the session finds its audio sink service over SDP, discovers
// an AVDTP stream endpoint offering SBC and reports CONNECTED. The
// application then opens a stream for its PCM format, starts it, and
// writes 16-bit little endian PCM into a shared buffer that the playback
// pump drains at wall-clock pace into RTP media packets.
//
// # Getting Started
//
//	opts := a2dpsink.NewOptions()
//	opts.Store = a2dpsink.NewMemoryStore()
//
//	session, err := a2dpsink.NewSinkSession(device, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session.OnStateChanged(func(s a2dpsink.State) {
//	    log.Printf("sink is %s", s)
//	})
//	if err := session.Assign(nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Once the session reports CONNECTED:
//	ring := player.NewRingBuffer(4096, 8)
//	format := a2dp.StreamFormat{SampleRate: 44100, Channels: 2, Resolution: 16}
//	if err := session.Open(ctx, ring, format); err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	io.Copy(ring, pcm)
//	ring.Close()
//
// # States
//
// A session moves through UNASSIGNED, DISCONNECTED, CONNECTED, READY and
// STREAMING. A device that is connected but not bonded leaves the session
// in CONNECTED_RESTRICTED; one without a usable SBC sink endpoint leaves it
// in CONNECTED_BAD_DEVICE. A device disconnect always returns the session
// to DISCONNECTED without further signalling.
//
// # Subpackages
//
// The protocol layers live in their own packages: l2cap for the sockets,
// sdp for service discovery, avdtp for signalling, a2dp for endpoints and
// codec negotiation, sbc for the encoder, rtp for media packets and player
// for the pacing loop.
package a2dpsink
