package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

const (
	// PayloadType is the dynamic payload type used for A2DP media.
	PayloadType = 96

	// DefaultPacketTimeout bounds the write of one media packet.
	DefaultPacketTimeout = 100 * time.Millisecond

	// DefaultCloseTimeout bounds Disconnect.
	DefaultCloseTimeout = 5000 * time.Millisecond

	// bytesPerSample is fixed; the sink only accepts 16-bit PCM.
	bytesPerSample = 2
)

// Encoder is the part of a negotiated codec the transport borrows while
// a stream is open. a2dp.Codec satisfies it.
type Encoder interface {
	Encode(in, out []byte) (consumed, produced int)
	ClockRate() uint32
	Channels() uint8
	RawFrameSize() int
	EncodedFrameSize() int
}

// Statistics summarises the packets sent since Connect.
type Statistics struct {
	PacketsSent  uint64
	PayloadBytes uint64
	SendErrors   uint64
	Resets       uint64
}

// TransportSession sends encoded PCM as RTP media packets over the AVDTP
// media channel.
//
// Each packet carries a pion/rtp header with payload type 96 followed by
// as many codec frames as fit in the channel MTU. Sequence and timestamp
// are only advanced by Transmit, which must be called from a single
// goroutine.
type TransportSession struct {
	mu sync.RWMutex

	ssrc          uint8
	mtu           int
	packetTimeout time.Duration
	closeTimeout  time.Duration
	timeProvider  l2cap.TimeProvider

	conn    net.Conn
	codec   Encoder
	scratch []byte

	sequence  uint16
	timestamp atomic.Uint32

	stats Statistics
}

// NewTransportSession creates an unconnected transport.
//
// Parameters:
//   - ssrc: synchronisation source written into every packet header
//   - mtu: upper bound on the packet size; 0 selects l2cap.DefaultMTU
//
// Returns:
//   - *TransportSession: transport waiting for Connect
func NewTransportSession(ssrc uint8, mtu int) *TransportSession {
	if mtu <= 0 {
		mtu = l2cap.DefaultMTU
	}
	return &TransportSession{
		ssrc:          ssrc,
		mtu:           mtu,
		packetTimeout: DefaultPacketTimeout,
		closeTimeout:  DefaultCloseTimeout,
	}
}

// SetTimeProvider sets the time source used for write deadlines.
func (s *TransportSession) SetTimeProvider(tp l2cap.TimeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeProvider = tp
}

// Connect attaches the media channel and the codec feeding it, and resets
// the RTP clock.
//
// The packet size is the smaller of the configured MTU and the channel's
// outgoing MTU.
//
// Parameters:
//   - conn: the AVDTP media channel
//   - codec: the negotiated codec that encodes the PCM
//
// Returns:
//   - error: when either argument is missing
func (s *TransportSession) Connect(conn net.Conn, codec Encoder) error {
	if conn == nil || codec == nil {
		return fmt.Errorf("rtp: connect needs a channel and a codec")
	}

	mtu := s.mtu
	if channelMTU := l2cap.SendMTU(conn); channelMTU < mtu {
		mtu = channelMTU
	}

	s.mu.Lock()
	s.conn = conn
	s.codec = codec
	s.scratch = make([]byte, mtu)
	s.stats = Statistics{}
	s.mu.Unlock()

	s.Reset()

	logrus.WithFields(logrus.Fields{
		"function":   "TransportSession.Connect",
		"ssrc":       s.ssrc,
		"mtu":        mtu,
		"clock_rate": codec.ClockRate(),
		"channels":   codec.Channels(),
	}).Info("RTP transport connected")
	return nil
}

// Disconnect releases the codec and closes the channel within the close
// timeout. It is a no-op when not connected.
func (s *TransportSession) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.codec = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- conn.Close() }()

	timer := time.NewTimer(s.closeTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "TransportSession.Disconnect",
				"error":    err.Error(),
			}).Warn("Failed to close RTP transport")
			return err
		}
		logrus.WithField("function", "TransportSession.Disconnect").Debug("RTP transport closed")
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}

// IsOpen reports whether a channel is attached.
func (s *TransportSession) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// Reset restarts the timestamp at zero and picks a random sequence start.
func (s *TransportSession) Reset() {
	var seed [2]byte
	seq := uint16(time.Now().UnixNano())
	if _, err := rand.Read(seed[:]); err == nil {
		seq = binary.BigEndian.Uint16(seed[:])
	}

	s.mu.Lock()
	s.sequence = seq
	s.stats.Resets++
	s.mu.Unlock()
	s.timestamp.Store(0)
}

// Timestamp returns the RTP timestamp of the next packet.
func (s *TransportSession) Timestamp() uint32 {
	return s.timestamp.Load()
}

// Sequence returns the sequence number of the next packet.
func (s *TransportSession) Sequence() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

// ClockRate is the timestamp clock, equal to the sampling frequency.
func (s *TransportSession) ClockRate() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.codec == nil {
		return 0
	}
	return s.codec.ClockRate()
}

// Channels returns the channel count of the attached codec.
func (s *TransportSession) Channels() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.codec == nil {
		return 0
	}
	return s.codec.Channels()
}

// BytesPerSample is the PCM sample width accepted by Transmit.
func (s *TransportSession) BytesPerSample() int {
	return bytesPerSample
}

// MinFrameSize is the PCM needed for a single codec frame.
func (s *TransportSession) MinFrameSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.codec == nil {
		return 0
	}
	return s.codec.RawFrameSize()
}

// PreferredFrameSize is the PCM that fills one packet.
func (s *TransportSession) PreferredFrameSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.codec == nil {
		return 0
	}
	raw, encoded := s.codec.RawFrameSize(), s.codec.EncodedFrameSize()
	if encoded == 0 {
		return raw
	}
	frames := (len(s.scratch) - headerSize()) / encoded
	if frames < 1 {
		frames = 1
	}
	return frames * raw
}

// Statistics returns the counters since Connect.
func (s *TransportSession) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Transmit encodes as much of pcm as fits in one packet and sends it.
//
// The timestamp advances by the samples consumed per channel and the
// sequence by one whenever anything was consumed, even when the write
// itself fails.
//
// Parameters:
//   - pcm: interleaved 16-bit PCM, at least one codec frame for anything
//     to be sent
//
// Returns:
//   - int: PCM bytes consumed
//   - error: ErrNotConnected without a channel, ErrEncodeFailed when a
//     whole frame could not be encoded, ErrSendFailed when the write failed
func (s *TransportSession) Transmit(pcm []byte) (int, error) {
	s.mu.RLock()
	conn, codec, scratch := s.conn, s.codec, s.scratch
	seq := s.sequence
	tp := s.timeProvider
	s.mu.RUnlock()

	if conn == nil || codec == nil {
		return 0, ErrNotConnected
	}

	header := rtp.Header{
		Version:        2,
		PayloadType:    PayloadType,
		SequenceNumber: seq,
		Timestamp:      s.timestamp.Load(),
		SSRC:           uint32(s.ssrc),
	}
	hdrLen := header.MarshalSize()

	consumed, produced := codec.Encode(pcm, scratch[hdrLen:])
	if consumed == 0 {
		if len(pcm) >= codec.RawFrameSize() {
			return 0, ErrEncodeFailed
		}
		return 0, nil
	}
	if _, err := header.MarshalTo(scratch); err != nil {
		return 0, fmt.Errorf("marshal RTP header: %w", err)
	}

	var sendErr error
	conn.SetWriteDeadline(l2cap.GetTimeProvider(tp).Now().Add(s.packetTimeout))
	if _, err := conn.Write(scratch[:hdrLen+produced]); err != nil {
		sendErr = fmt.Errorf("%w: %w", ErrSendFailed, err)
		logrus.WithFields(logrus.Fields{
			"function": "TransportSession.Transmit",
			"sequence": seq,
			"error":    err.Error(),
		}).Warn("Failed to send media packet")
	}

	s.timestamp.Add(uint32(consumed / (int(codec.Channels()) * bytesPerSample)))

	s.mu.Lock()
	s.sequence = seq + 1
	if sendErr != nil {
		s.stats.SendErrors++
	} else {
		s.stats.PacketsSent++
		s.stats.PayloadBytes += uint64(produced)
	}
	s.mu.Unlock()

	return consumed, sendErr
}

// IsTimeout reports whether err is a write deadline expiry, which the
// caller may treat as a dropped packet rather than a link failure.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func headerSize() int {
	return (&rtp.Header{}).MarshalSize()
}
