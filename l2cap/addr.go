package l2cap

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Well-known PSMs used by the audio sink.
const (
	// PSMSDP is the Service Discovery Protocol channel.
	PSMSDP uint16 = 0x0001
	// PSMAVDTP is the AVDTP signalling and media channel.
	PSMAVDTP uint16 = 0x0019
)

// DefaultMTU is the L2CAP minimum MTU every BR/EDR device must accept.
const DefaultMTU = 672

// BDAddr is a Bluetooth device address in display order, most significant
// octet first.
type BDAddr [6]byte

// ParseBDAddr parses "AA:BB:CC:DD:EE:FF" (also accepting '-' separators).
func ParseBDAddr(s string) (BDAddr, error) {
	var addr BDAddr
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return addr, &OpError{Op: "parse", Addr: s, Err: ErrInvalidAddress}
	}
	for i, part := range parts {
		if len(part) != 2 {
			return addr, &OpError{Op: "parse", Addr: s, Err: ErrInvalidAddress}
		}
		b, err := hex.DecodeString(part)
		if err != nil {
			return addr, &OpError{Op: "parse", Addr: s, Err: ErrInvalidAddress}
		}
		addr[i] = b[0]
	}
	return addr, nil
}

// String returns the colon separated form of the address.
func (a BDAddr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is 00:00:00:00:00:00 (BDADDR_ANY).
func (a BDAddr) IsZero() bool {
	return a == BDAddr{}
}

// Addr implements net.Addr for an L2CAP channel endpoint.
type Addr struct {
	BDAddr BDAddr
	PSM    uint16
}

// NewAddr creates an L2CAP address.
func NewAddr(bdaddr BDAddr, psm uint16) *Addr {
	return &Addr{BDAddr: bdaddr, PSM: psm}
}

// Network returns "l2cap".
func (a *Addr) Network() string {
	return "l2cap"
}

// String returns the device address followed by the PSM.
func (a *Addr) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%d", a.BDAddr, a.PSM)
}
