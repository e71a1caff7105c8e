// Package player paces PCM from a shared buffer into the RTP transport.
//
// The producer side writes PCM into a ReceiveBuffer; a PlaybackPump is
// its only reader. Each Play starts one goroutine that keeps enough PCM
// for a full packet in a local buffer, hands it to the transport and
// sleeps whenever the stream runs ahead of the wall clock. When the
// producer stalls the pump re-anchors its clock instead of failing, and
// after Stop it plays out what it holds and exits.
package player
