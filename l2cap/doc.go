// Package l2cap provides Go standard library networking interfaces for
// Bluetooth L2CAP channels.
//
// Channels are SOCK_SEQPACKET sockets, so a connected *Conn preserves packet
// boundaries: each Read returns one L2CAP SDU. Higher layers (SDP, AVDTP
// signalling, the RTP media channel) depend only on net.Conn and the Dialer
// interface, which lets tests substitute net.Pipe.
//
// Example usage:
//
//	remote, err := l2cap.ParseBDAddr("00:1A:7D:DA:71:13")
//	if err != nil {
//		return err
//	}
//	conn, err := l2cap.DialTimeout(nil, l2cap.NewAddr(remote, l2cap.PSMAVDTP), 2*time.Second)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
package l2cap
