//go:build !linux

package l2cap

import (
	"context"
	"net"
)

// DialContext always fails: only Linux exposes BlueZ L2CAP sockets.
func (d *SocketDialer) DialContext(ctx context.Context, local, remote *Addr) (net.Conn, error) {
	addr := ""
	if remote != nil {
		addr = remote.String()
	}
	return nil, newOpError("dial", addr, ErrUnsupported)
}
