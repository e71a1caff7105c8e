package a2dp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/opd-ai/a2dpsink/avdtp"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRemote = l2cap.BDAddr{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}

func capsFor(seid uint8) []byte {
	codec := append([]byte{uint8(avdtp.CategoryMediaCodec), 6}, fullCapability(2, 53)...)
	if seid == 4 {
		return codec
	}
	return append([]byte{uint8(avdtp.CategoryMediaTransport), 0}, codec...)
}

// serveRemote answers DISCOVER and GET_CAPABILITIES like a headset with a
// mix of endpoints. Only SEID 1 is a free, usable audio sink.
func serveRemote(conn net.Conn) {
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		h, payload, err := avdtp.ParseHeader(buf[:n])
		if err != nil {
			continue
		}
		reply := avdtp.Message{Label: h.Label, Type: avdtp.MessageAccept, Signal: h.Signal}
		switch h.Signal {
		case avdtp.SignalDiscover:
			// seid<<2|inUse<<1, media<<4|tsep<<3
			reply.Payload = []byte{
				0x04, 0x08, // 1: audio sink
				0x08, 0x00, // 2: audio source
				0x0E, 0x08, // 3: audio sink in use
				0x10, 0x08, // 4: audio sink without transport
				0x14, 0x18, // 5: video sink
			}
		case avdtp.SignalGetCapabilities:
			reply.Payload = capsFor(payload[0] >> 2)
		}
		if _, err := conn.Write(reply.Marshal()); err != nil {
			return
		}
	}
}

type pipeDialer struct {
	mu    sync.Mutex
	dials []*l2cap.Addr
	fail  error
}

func (d *pipeDialer) DialContext(_ context.Context, _, remote *l2cap.Addr) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	d.dials = append(d.dials, remote)
	local, peer := net.Pipe()
	go serveRemote(peer)
	return local, nil
}

func TestSignallingSessionDiscover(t *testing.T) {
	dialer := &pipeDialer{}
	s := NewSignallingSession(dialer, l2cap.BDAddr{}, 1, Timeouts{}, nil)
	t.Cleanup(func() { s.Disconnect() })

	require.NoError(t, s.Connect(context.Background(), testRemote, 0))
	assert.True(t, s.IsConnected())
	require.Len(t, dialer.dials, 1)
	assert.Equal(t, uint16(l2cap.PSMAVDTP), dialer.dials[0].PSM)
	assert.Equal(t, testRemote, dialer.dials[0].BDAddr)

	endpoints, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, uint8(1), endpoints[0].SEID())
	assert.Equal(t, uint8(1), endpoints[0].IntSEID())
	require.NotNil(t, endpoints[0].Codec())
	assert.True(t, endpoints[0].Codec().Supported())
}

func TestSignallingSessionNotConnected(t *testing.T) {
	s := NewSignallingSession(&pipeDialer{}, l2cap.BDAddr{}, 1, Timeouts{}, nil)

	_, err := s.Discover(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.OpenTransport(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, s.Disconnect())
}

func TestSignallingSessionConnectFailure(t *testing.T) {
	dialErr := errors.New("host is down")
	s := NewSignallingSession(&pipeDialer{fail: dialErr}, l2cap.BDAddr{}, 1, Timeouts{}, nil)

	err := s.Connect(context.Background(), testRemote, 0)
	assert.ErrorIs(t, err, dialErr)
	assert.False(t, s.IsConnected())
}

func TestSignallingSessionTransportAndDisconnect(t *testing.T) {
	dialer := &pipeDialer{}
	s := NewSignallingSession(dialer, l2cap.BDAddr{}, 1, Timeouts{}, nil)

	require.NoError(t, s.Connect(context.Background(), testRemote, 0))
	require.NoError(t, s.Connect(context.Background(), testRemote, 0))
	assert.Len(t, dialer.dials, 1, "reconnecting to the same device reuses the channel")

	conn, err := s.OpenTransport(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	assert.Len(t, dialer.dials, 2)

	require.NoError(t, s.Disconnect())
	assert.False(t, s.IsConnected())
	assert.NoError(t, s.Disconnect())
}

func TestSignallingSessionAdvertisedPSM(t *testing.T) {
	const psm = 0x1001
	dialer := &pipeDialer{}
	s := NewSignallingSession(dialer, l2cap.BDAddr{}, 1, Timeouts{}, nil)
	t.Cleanup(func() { s.Disconnect() })

	require.NoError(t, s.Connect(context.Background(), testRemote, psm))
	assert.Equal(t, uint16(psm), s.PSM())

	conn, err := s.OpenTransport(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.Len(t, dialer.dials, 2)
	for _, addr := range dialer.dials {
		assert.Equal(t, uint16(psm), addr.PSM)
	}

	require.NoError(t, s.Connect(context.Background(), testRemote, l2cap.PSMAVDTP))
	assert.Len(t, dialer.dials, 3, "a different PSM needs a new channel")
	assert.Equal(t, uint16(l2cap.PSMAVDTP), dialer.dials[2].PSM)
}

func TestSignallingSessionDefaultDialer(t *testing.T) {
	s := NewSignallingSession(nil, l2cap.BDAddr{}, 1, Timeouts{}, nil)
	assert.IsType(t, &l2cap.SocketDialer{}, s.dialer)
}

func TestTimeoutsDefaults(t *testing.T) {
	d := Timeouts{}.withDefaults()
	assert.Equal(t, DefaultOpenTimeout, d.Open)
	assert.Equal(t, DefaultCloseTimeout, d.Close)
	assert.Equal(t, DefaultDiscoverTimeout, d.Discover)
	assert.Equal(t, avdtp.DefaultCommandTimeout, d.Command)
}
