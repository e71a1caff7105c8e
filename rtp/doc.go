// Package rtp carries SBC frames to the remote sink as RTP media packets.
//
// A TransportSession borrows the negotiated codec while a stream is open.
// Every Transmit call encodes as many frames as fit in one L2CAP packet,
// prefixes them with the RTP header (payload type 96, fixed SSRC) and
// advances the timestamp by the number of samples per channel consumed:
//
//	ts := rtp.NewTransportSession(1, l2cap.DefaultMTU)
//	if err := ts.Connect(conn, codec); err != nil {
//		return err
//	}
//	consumed, err := ts.Transmit(pcm)
package rtp
