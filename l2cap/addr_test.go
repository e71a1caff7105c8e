package l2cap

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBDAddr(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BDAddr
		wantErr bool
	}{
		{"colon separated", "00:1A:7D:DA:71:13", BDAddr{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}, false},
		{"lower case with dashes", " 00-1a-7d-da-71-13 ", BDAddr{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}, false},
		{"too short", "00:1A:7D:DA:71", BDAddr{}, true},
		{"bad hex", "00:1A:7D:DA:71:ZZ", BDAddr{}, true},
		{"long octet", "00:1A:7D:DA:71:133", BDAddr{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBDAddr(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAddress)
				var opErr *OpError
				assert.True(t, errors.As(err, &opErr))
				assert.Equal(t, "parse", opErr.Op)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddrString(t *testing.T) {
	bd := BDAddr{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}
	addr := NewAddr(bd, PSMAVDTP)

	assert.Equal(t, "l2cap", addr.Network())
	assert.Equal(t, "00:1A:7D:DA:71:13/25", addr.String())
	assert.False(t, bd.IsZero())
	assert.True(t, BDAddr{}.IsZero())

	var nilAddr *Addr
	assert.Equal(t, "<nil>", nilAddr.String())
}

func TestOpError(t *testing.T) {
	err := newOpError("read", "00:00:00:00:00:01/25", ErrTimeout)
	assert.Equal(t, "l2cap read 00:00:00:00:00:01/25: operation timed out", err.Error())
	assert.True(t, err.Timeout())
	assert.False(t, err.Temporary())
	assert.ErrorIs(t, err, ErrTimeout)

	var netErr net.Error = err
	assert.True(t, netErr.Timeout())

	noAddr := newOpError("dial", "", ErrUnsupported)
	assert.Equal(t, "l2cap dial: L2CAP sockets are not supported on this platform", noAddr.Error())
	assert.False(t, noAddr.Timeout())
}

func TestSendMTU(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	assert.Equal(t, DefaultMTU, SendMTU(a))
	assert.Equal(t, 895, SendMTU(mtuPipe{Conn: a, mtu: 895}))
	assert.Equal(t, DefaultMTU, SendMTU(mtuPipe{Conn: a, mtu: 0}))
}

type mtuPipe struct {
	net.Conn
	mtu int
}

func (m mtuPipe) SendMTU() int { return m.mtu }

func TestDialerFunc(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	var gotRemote *Addr
	d := DialerFunc(func(ctx context.Context, local, remote *Addr) (net.Conn, error) {
		gotRemote = remote
		return a, nil
	})

	remote := NewAddr(BDAddr{1, 2, 3, 4, 5, 6}, PSMSDP)
	conn, err := d.DialContext(context.Background(), nil, remote)
	require.NoError(t, err)
	assert.Equal(t, a, conn)
	assert.Equal(t, remote, gotRemote)
	conn.Close()
}
