package sdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/sirupsen/logrus"
)

// Default discovery timeouts.
const (
	DefaultOpenTimeout     = 2000 * time.Millisecond
	DefaultCloseTimeout    = 5000 * time.Millisecond
	DefaultDiscoverTimeout = 5000 * time.Millisecond
)

// Timeouts bounds the discovery operations. Zero fields take the defaults.
type Timeouts struct {
	Open     time.Duration
	Close    time.Duration
	Discover time.Duration
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
	return t
}

// ServiceDiscovery finds the audio sink services of a remote device.
type ServiceDiscovery struct {
	mu sync.Mutex

	dialer   l2cap.Dialer
	local    l2cap.BDAddr
	remote   l2cap.BDAddr
	timeouts Timeouts
	client   *Client
}

// NewServiceDiscovery prepares discovery; nothing is dialled until Connect.
func NewServiceDiscovery(dialer l2cap.Dialer, local l2cap.BDAddr, timeouts Timeouts) *ServiceDiscovery {
	if dialer == nil {
		dialer = &l2cap.SocketDialer{}
	}
	return &ServiceDiscovery{
		dialer:   dialer,
		local:    local,
		timeouts: timeouts.withDefaults(),
	}
}

// Connect opens the SDP channel to remote.
func (d *ServiceDiscovery) Connect(ctx context.Context, remote l2cap.BDAddr) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil && !d.client.IsClosed() {
		d.client.Close()
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Open)
	defer cancel()

	var local *l2cap.Addr
	if !d.local.IsZero() {
		local = l2cap.NewAddr(d.local, l2cap.PSMSDP)
	}
	conn, err := d.dialer.DialContext(ctx, local, l2cap.NewAddr(remote, l2cap.PSMSDP))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ServiceDiscovery.Connect",
			"remote":   remote.String(),
			"error":    err.Error(),
		}).Warn("Failed to open SDP channel")
		return fmt.Errorf("connect SDP to %s: %w", remote, err)
	}

	client := NewClient(conn)
	client.SetTimeout(d.timeouts.Discover)
	d.client = client
	d.remote = remote
	logrus.WithFields(logrus.Fields{
		"function": "ServiceDiscovery.Connect",
		"remote":   remote.String(),
	}).Debug("SDP channel open")
	return nil
}

// Discover searches for Audio Sink services and returns the records that
// list the Audio Sink class. An empty result means the device is no sink.
func (d *ServiceDiscovery) Discover(ctx context.Context) ([]AudioServiceRecord, error) {
	d.mu.Lock()
	client := d.client
	remote := d.remote
	d.mu.Unlock()

	if client == nil || client.IsClosed() {
		return nil, ErrNotConnected
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "ServiceDiscovery.Discover",
		"remote":   remote.String(),
	})

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Discover)
	defer cancel()

	records, err := client.ServiceSearchAttribute(ctx, []uuid.UUID{UUIDAudioSink}, []AttributeRange{AllAttributes})
	if err != nil {
		logger.WithField("error", err.Error()).Error("SDP service discovery failed")
		return nil, err
	}

	services := make([]AudioServiceRecord, 0, len(records))
	for _, r := range records {
		if !r.HasClassID(UUIDAudioSink) {
			continue
		}
		service := NewAudioServiceRecord(r)
		logger.WithField("service", service.String()).Debug("Audio service found")
		services = append(services, service)
	}
	if len(services) == 0 {
		logger.Info("Not an A2DP audio sink device")
	}
	return services, nil
}

// Disconnect closes the channel. It is idempotent and gives up waiting
// after the close timeout.
func (d *ServiceDiscovery) Disconnect() error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	timer := time.NewTimer(d.timeouts.Close)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTimeout
	}
}
