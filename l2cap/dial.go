package l2cap

import (
	"context"
	"net"
	"time"
)

// Dialer opens L2CAP channels. Sessions take a Dialer so tests can hand
// out in-memory connections instead of kernel sockets.
type Dialer interface {
	DialContext(ctx context.Context, local, remote *Addr) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, local, remote *Addr) (net.Conn, error)

// DialContext calls f.
func (f DialerFunc) DialContext(ctx context.Context, local, remote *Addr) (net.Conn, error) {
	return f(ctx, local, remote)
}

// SocketDialer dials SOCK_SEQPACKET L2CAP sockets.
type SocketDialer struct {
	// Flushable marks outgoing packets as automatically flushable, which
	// suits media channels where late audio is worthless.
	Flushable bool
}

// Dial connects to remote using a default SocketDialer.
func Dial(ctx context.Context, local, remote *Addr) (net.Conn, error) {
	return (&SocketDialer{}).DialContext(ctx, local, remote)
}

// DialTimeout connects with a timeout. If timeout is 0, no timeout is applied.
func DialTimeout(local, remote *Addr, timeout time.Duration) (net.Conn, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return Dial(ctx, local, remote)
}

// MTUConn is implemented by channels that know their negotiated MTU.
type MTUConn interface {
	SendMTU() int
}

// SendMTU returns the outgoing MTU of conn, or DefaultMTU if unknown.
func SendMTU(conn net.Conn) int {
	if c, ok := conn.(MTUConn); ok {
		if mtu := c.SendMTU(); mtu > 0 {
			return mtu
		}
	}
	return DefaultMTU
}
