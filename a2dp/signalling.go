package a2dp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/a2dpsink/avdtp"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/sirupsen/logrus"
)

// Default signalling timeouts.
const (
	DefaultOpenTimeout     = 2000 * time.Millisecond
	DefaultCloseTimeout    = 5000 * time.Millisecond
	DefaultDiscoverTimeout = 2000 * time.Millisecond
)

// Timeouts bounds the signalling operations. Zero fields take the defaults.
type Timeouts struct {
	Open     time.Duration
	Close    time.Duration
	Discover time.Duration
	Command  time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Open <= 0 {
		t.Open = DefaultOpenTimeout
	}
	if t.Close <= 0 {
		t.Close = DefaultCloseTimeout
	}
	if t.Discover <= 0 {
		t.Discover = DefaultDiscoverTimeout
	}
	if t.Command <= 0 {
		t.Command = avdtp.DefaultCommandTimeout
	}
	return t
}

// SignallingSession owns the AVDTP signalling channel to one remote device
// and the stream endpoints discovered on it.
type SignallingSession struct {
	mu sync.Mutex

	dialer   l2cap.Dialer
	local    l2cap.BDAddr
	remote   l2cap.BDAddr
	psm      uint16
	intSEID  uint8
	timeouts Timeouts
	notify   StatusFunc

	client *avdtp.Client
}

// NewSignallingSession prepares a session; nothing is dialled until Connect.
//
// Parameters:
//   - dialer: opens the L2CAP channels; nil selects an l2cap.SocketDialer
//   - local: adapter address to bind, or the zero address to let the
//     adapter pick
//   - intSEID: local endpoint identifier sent in SET_CONFIGURATION
//   - timeouts: operation bounds; zero fields take the defaults
//   - notify: receives the status of every discovered endpoint, may be nil
//
// Returns:
//   - *SignallingSession: session waiting for Connect
func NewSignallingSession(dialer l2cap.Dialer, local l2cap.BDAddr, intSEID uint8, timeouts Timeouts, notify StatusFunc) *SignallingSession {
	if dialer == nil {
		dialer = &l2cap.SocketDialer{}
	}
	return &SignallingSession{
		dialer:   dialer,
		local:    local,
		intSEID:  intSEID,
		timeouts: timeouts.withDefaults(),
		notify:   notify,
	}
}

func (s *SignallingSession) localAddr(psm uint16) *l2cap.Addr {
	if s.local.IsZero() {
		return nil
	}
	return l2cap.NewAddr(s.local, psm)
}

// Connect opens the signalling channel to remote.
//
// Parameters:
//   - ctx: bounds the dial together with the open timeout
//   - remote: the device address
//   - psm: the L2CAP PSM advertised by the sink's service record, or 0 for
//     l2cap.PSMAVDTP
//
// Returns an error if the channel cannot be opened. A live channel to the
// same remote and PSM is reused; any other live channel is closed first.
// The media channel opened later by OpenTransport uses the same PSM.
func (s *SignallingSession) Connect(ctx context.Context, remote l2cap.BDAddr, psm uint16) error {
	if psm == 0 {
		psm = l2cap.PSMAVDTP
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"function": "SignallingSession.Connect",
		"remote":   remote.String(),
		"psm":      psm,
	})

	if s.client != nil && !s.client.IsClosed() {
		if s.remote == remote && s.psm == psm {
			return nil
		}
		s.client.Close()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Open)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, s.localAddr(psm), l2cap.NewAddr(remote, psm))
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Signalling channel failed")
		return fmt.Errorf("connect signalling to %s: %w", remote, err)
	}

	client := avdtp.NewClient(conn)
	client.SetCommandTimeout(s.timeouts.Command)
	s.client = client
	s.remote = remote
	s.psm = psm
	logger.Info("Signalling channel connected")
	return nil
}

// IsConnected reports whether the signalling channel is open.
func (s *SignallingSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && !s.client.IsClosed()
}

// Remote returns the address passed to the last Connect.
func (s *SignallingSession) Remote() l2cap.BDAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// PSM returns the PSM of the signalling channel, 0 before the first
// Connect.
func (s *SignallingSession) PSM() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.psm
}

func (s *SignallingSession) activeClient() (*avdtp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.client.IsClosed() {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// Discover lists the free audio sink endpoints of the remote and fetches
// their capabilities.
//
// Endpoints that are in use, not audio sinks, or without a media transport
// are dropped, as are those whose capabilities cannot be read.
//
// Parameters:
//   - ctx: bounds the exchange together with the discover timeout
//
// Returns:
//   - []*StreamEndpoint: usable endpoints in discovery order, never nil
//     on success
//   - error: ErrNotConnected, or the DISCOVER failure
func (s *SignallingSession) Discover(ctx context.Context) ([]*StreamEndpoint, error) {
	client, err := s.activeClient()
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "SignallingSession.Discover",
		"remote":   s.Remote().String(),
	})

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Discover)
	defer cancel()

	infos, err := client.Discover(ctx)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Discovery failed")
		return nil, err
	}

	endpoints := make([]*StreamEndpoint, 0, len(infos))
	for _, info := range infos {
		entry := logger.WithFields(logrus.Fields{
			"seid":   info.SEID,
			"media":  info.MediaType.String(),
			"type":   info.Type.String(),
			"in_use": info.InUse,
		})
		if info.MediaType != avdtp.MediaAudio || info.Type != avdtp.EndpointSink {
			entry.Debug("Skipping endpoint")
			continue
		}
		if info.InUse {
			entry.Info("Skipping endpoint in use")
			continue
		}

		caps, err := client.GetCapabilities(ctx, info.SEID)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("Capabilities unavailable")
			continue
		}
		ep := NewStreamEndpoint(client, info, caps, s.intSEID, s.notify)
		if !ep.Usable() {
			continue
		}
		endpoints = append(endpoints, ep)
	}

	logger.WithField("endpoints", len(endpoints)).Info("Discovery complete")
	return endpoints, nil
}

// OpenTransport dials the media channel once a stream is open.
//
// Parameters:
//   - ctx: bounds the dial together with the open timeout
//
// Returns the media channel, or ErrNotConnected when there is no
// signalling channel. Media and signalling share the remote and PSM of the
// last Connect; the media channel is the second one on that PSM.
func (s *SignallingSession) OpenTransport(ctx context.Context) (net.Conn, error) {
	if _, err := s.activeClient(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	remote, psm := s.remote, s.psm
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Open)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, s.localAddr(psm), l2cap.NewAddr(remote, psm))
	if err != nil {
		return nil, fmt.Errorf("open media transport to %s: %w", remote, err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "SignallingSession.OpenTransport",
		"remote":   remote.String(),
		"psm":      psm,
		"mtu":      l2cap.SendMTU(conn),
	}).Info("Media transport connected")
	return conn, nil
}

// Disconnect closes the signalling channel. It is idempotent and gives up
// waiting after the close timeout.
func (s *SignallingSession) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	timer := time.NewTimer(s.timeouts.Close)
	defer timer.Stop()

	select {
	case err := <-done:
		logrus.WithFields(logrus.Fields{
			"function": "SignallingSession.Disconnect",
			"remote":   s.Remote().String(),
		}).Info("Signalling channel closed")
		return err
	case <-timer.C:
		return fmt.Errorf("disconnect %s: %w", s.Remote(), avdtp.ErrTimeout)
	}
}
