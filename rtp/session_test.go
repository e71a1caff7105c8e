package rtp

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder packs whole raw frames into fixed-size encoded frames.
type fakeEncoder struct {
	raw, encoded int
	channels     uint8
	fail         bool
}

func (e *fakeEncoder) Encode(in, out []byte) (int, int) {
	if e.fail || len(out) < 1 {
		return 0, 0
	}
	frames := 0
	for frames < 15 && (frames+1)*e.raw <= len(in) && 1+(frames+1)*e.encoded <= len(out) {
		frames++
	}
	if frames == 0 {
		return 0, 0
	}
	out[0] = uint8(frames)
	return frames * e.raw, 1 + frames*e.encoded
}

func (e *fakeEncoder) ClockRate() uint32     { return 44100 }
func (e *fakeEncoder) Channels() uint8       { return e.channels }
func (e *fakeEncoder) RawFrameSize() int     { return e.raw }
func (e *fakeEncoder) EncodedFrameSize() int { return e.encoded }

func stereoEncoder() *fakeEncoder {
	return &fakeEncoder{raw: 512, encoded: 119, channels: 2}
}

// collector reads packets from the far end of a pipe.
type collector struct {
	mu      sync.Mutex
	packets []rtp.Packet
	done    chan struct{}
}

func collect(conn net.Conn) *collector {
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		buf := make([]byte, 2048)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			var p rtp.Packet
			if err := p.Unmarshal(append([]byte(nil), buf[:n]...)); err != nil {
				return
			}
			c.mu.Lock()
			c.packets = append(c.packets, p)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *collector) all() []rtp.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]rtp.Packet(nil), c.packets...)
}

func connected(t *testing.T, enc Encoder) (*TransportSession, *collector, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	s := NewTransportSession(7, 0)
	require.NoError(t, s.Connect(local, enc))
	c := collect(remote)
	t.Cleanup(func() {
		s.Disconnect()
		remote.Close()
	})
	return s, c, remote
}

func TestTransmitAdvancesTimestampAndSequence(t *testing.T) {
	s, c, _ := connected(t, stereoEncoder())
	start := s.Sequence()
	assert.Equal(t, uint32(0), s.Timestamp())

	consumed, err := s.Transmit(make([]byte, 4*512))
	require.NoError(t, err)
	assert.Equal(t, 4*512, consumed)
	assert.Equal(t, uint32(4*512/(2*2)), s.Timestamp())
	assert.Equal(t, start+1, s.Sequence())

	consumed, err = s.Transmit(make([]byte, 512+100))
	require.NoError(t, err)
	assert.Equal(t, 512, consumed)
	assert.Equal(t, uint32(5*512/4), s.Timestamp())

	require.NoError(t, s.Disconnect())
	<-c.done

	packets := c.all()
	require.Len(t, packets, 2)
	first := packets[0]
	assert.Equal(t, uint8(2), first.Version)
	assert.Equal(t, uint8(PayloadType), first.PayloadType)
	assert.Equal(t, uint32(7), first.SSRC)
	assert.Equal(t, start, first.SequenceNumber)
	assert.Equal(t, uint32(0), first.Timestamp)
	assert.Equal(t, uint8(4), first.Payload[0], "frame count header")
	assert.Len(t, first.Payload, 1+4*119)

	assert.Equal(t, start+1, packets[1].SequenceNumber)
	assert.Equal(t, uint32(512), packets[1].Timestamp)
}

func TestTransmitSequenceWraps(t *testing.T) {
	s, _, _ := connected(t, stereoEncoder())
	s.sequence = 0xFFFF

	_, err := s.Transmit(make([]byte, 512))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), s.Sequence())

	_, err = s.Transmit(make([]byte, 512))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), s.Sequence())
}

func TestTransmitTimestampWraps(t *testing.T) {
	s, _, _ := connected(t, stereoEncoder())
	s.timestamp.Store(0xFFFFFF80)

	_, err := s.Transmit(make([]byte, 512))
	require.NoError(t, err)
	// 512 bytes of stereo PCM are 128 samples per channel.
	assert.Equal(t, uint32(0), s.Timestamp())
}

func TestTransmitPacketFitsMTU(t *testing.T) {
	s, c, _ := connected(t, stereoEncoder())
	assert.Equal(t, 5*512, s.PreferredFrameSize())
	assert.Equal(t, 512, s.MinFrameSize())

	consumed, err := s.Transmit(make([]byte, 20*512))
	require.NoError(t, err)
	assert.Equal(t, 5*512, consumed)

	require.NoError(t, s.Disconnect())
	<-c.done
	packets := c.all()
	require.Len(t, packets, 1)
	raw, err := packets[0].Marshal()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), 672)
}

func TestTransmitNothingToSend(t *testing.T) {
	s, _, _ := connected(t, stereoEncoder())
	seq := s.Sequence()

	consumed, err := s.Transmit(make([]byte, 100))
	assert.NoError(t, err)
	assert.Zero(t, consumed)
	assert.Equal(t, seq, s.Sequence())
	assert.Zero(t, s.Timestamp())
}

func TestTransmitEncodeFailure(t *testing.T) {
	enc := stereoEncoder()
	enc.fail = true
	s, _, _ := connected(t, enc)
	seq := s.Sequence()

	consumed, err := s.Transmit(make([]byte, 2048))
	assert.ErrorIs(t, err, ErrEncodeFailed)
	assert.Zero(t, consumed)
	assert.Equal(t, seq, s.Sequence())
}

func TestTransmitSendFailureStillAdvances(t *testing.T) {
	s, _, remote := connected(t, stereoEncoder())
	remote.Close()
	seq := s.Sequence()

	consumed, err := s.Transmit(make([]byte, 512))
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 512, consumed)
	assert.Equal(t, seq+1, s.Sequence())
	assert.Equal(t, uint32(128), s.Timestamp())
	assert.Equal(t, uint64(1), s.Statistics().SendErrors)
	assert.False(t, IsTimeout(err))
}

func TestTransmitNotConnected(t *testing.T) {
	s := NewTransportSession(1, 0)
	_, err := s.Transmit(make([]byte, 512))
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.False(t, s.IsOpen())
	assert.NoError(t, s.Disconnect())
	assert.Zero(t, s.ClockRate())
}

func TestConnectResetsStatistics(t *testing.T) {
	s, _, _ := connected(t, stereoEncoder())
	_, err := s.Transmit(make([]byte, 512))
	require.NoError(t, err)

	stats := s.Statistics()
	assert.Equal(t, uint64(1), stats.PacketsSent)
	assert.Equal(t, uint64(1+119), stats.PayloadBytes)
	assert.Equal(t, uint64(1), stats.Resets)
	assert.Equal(t, uint32(44100), s.ClockRate())
	assert.Equal(t, uint8(2), s.Channels())
	assert.Equal(t, 2, s.BytesPerSample())
}
