//go:build linux

package l2cap

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Socket options from <bluetooth/bluetooth.h>
const (
	solBluetooth = 274
	btFlushable  = 8
	btSndMTU     = 12
	btRcvMTU     = 13
)

// Conn is a connected SOCK_SEQPACKET L2CAP channel. Every Read returns
// exactly one L2CAP packet and every Write sends one.
type Conn struct {
	file    *os.File
	local   *Addr
	remote  *Addr
	sendMTU int
	recvMTU int

	closeOnce sync.Once
	closeErr  error
}

// DialContext opens a non-blocking socket, binds it to local (when given)
// and waits for the connection to complete or ctx to expire.
func (d *SocketDialer) DialContext(ctx context.Context, local, remote *Addr) (net.Conn, error) {
	if remote == nil {
		return nil, newOpError("dial", "", ErrInvalidAddress)
	}
	addr := remote.String()

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, newOpError("socket", addr, err)
	}

	if local != nil && !local.BDAddr.IsZero() {
		if err := unix.Bind(fd, &unix.SockaddrL2{Addr: local.BDAddr}); err != nil {
			unix.Close(fd)
			return nil, newOpError("bind", local.String(), err)
		}
	}

	if d.Flushable {
		if err := unix.SetsockoptInt(fd, solBluetooth, btFlushable, 1); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SocketDialer.DialContext",
				"remote":   addr,
				"error":    err.Error(),
			}).Warn("Failed to mark channel flushable")
		}
	}

	err = unix.Connect(fd, &unix.SockaddrL2{PSM: remote.PSM, Addr: remote.BDAddr})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		unix.Close(fd)
		return nil, newOpError("dial", addr, err)
	}

	file := os.NewFile(uintptr(fd), "l2cap:"+addr)
	if err := waitConnected(ctx, file); err != nil {
		file.Close()
		return nil, newOpError("dial", addr, err)
	}

	c := &Conn{
		file:    file,
		remote:  remote,
		sendMTU: DefaultMTU,
		recvMTU: DefaultMTU,
	}
	if v, err := unix.GetsockoptInt(fd, solBluetooth, btSndMTU); err == nil && v > 0 {
		c.sendMTU = v
	}
	if v, err := unix.GetsockoptInt(fd, solBluetooth, btRcvMTU); err == nil && v > 0 {
		c.recvMTU = v
	}
	if sa, err := unix.Getsockname(fd); err == nil {
		if l2, ok := sa.(*unix.SockaddrL2); ok {
			c.local = NewAddr(l2.Addr, l2.PSM)
		}
	}
	if c.local == nil {
		c.local = &Addr{}
		if local != nil {
			c.local.BDAddr = local.BDAddr
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "SocketDialer.DialContext",
		"local":    c.local.String(),
		"remote":   addr,
		"send_mtu": c.sendMTU,
		"recv_mtu": c.recvMTU,
	}).Debug("L2CAP channel connected")

	return c, nil
}

// waitConnected blocks until the in-progress connect on file finishes.
// The socket only becomes writable once connected, so the first callback
// always waits and later ones read SO_ERROR.
func waitConnected(ctx context.Context, file *os.File) error {
	raw, err := file.SyscallConn()
	if err != nil {
		return err
	}

	if dl, ok := ctx.Deadline(); ok {
		file.SetWriteDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		file.SetWriteDeadline(time.Unix(1, 0))
	})
	defer stop()
	defer file.SetWriteDeadline(time.Time{})

	var connectErr error
	first := true
	werr := raw.Write(func(fd uintptr) bool {
		if first {
			first = false
			return false
		}
		soerr, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			connectErr = err
			return true
		}
		switch unix.Errno(soerr) {
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			return false
		case 0:
			return true
		default:
			connectErr = unix.Errno(soerr)
			return true
		}
	})
	if werr != nil {
		if errors.Is(werr, os.ErrDeadlineExceeded) {
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			return ErrTimeout
		}
		return werr
	}
	return connectErr
}

// Read reads one packet.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.file.Read(b)
	if err != nil {
		return n, c.wrap("read", err)
	}
	return n, nil
}

// Write sends b as one packet.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.file.Write(b)
	if err != nil {
		return n, c.wrap("write", err)
	}
	return n, nil
}

// Close closes the channel. Subsequent calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.file.Close()
	})
	return c.closeErr
}

// LocalAddr returns the local endpoint.
func (c *Conn) LocalAddr() net.Addr {
	return c.local
}

// RemoteAddr returns the remote endpoint.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// SetDeadline sets both read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.file.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.file.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.file.SetWriteDeadline(t)
}

// SendMTU returns the negotiated outgoing MTU.
func (c *Conn) SendMTU() int {
	return c.sendMTU
}

// RecvMTU returns the negotiated incoming MTU.
func (c *Conn) RecvMTU() int {
	return c.recvMTU
}

func (c *Conn) wrap(op string, err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return newOpError(op, c.remote.String(), ErrTimeout)
	case errors.Is(err, os.ErrClosed):
		return newOpError(op, c.remote.String(), ErrConnectionClosed)
	default:
		return newOpError(op, c.remote.String(), err)
	}
}
