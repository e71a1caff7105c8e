package avdtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/sirupsen/logrus"
)

// DefaultCommandTimeout bounds a single command/response exchange.
const DefaultCommandTimeout = 1000 * time.Millisecond

// EndpointInfo is one entry of a DISCOVER response.
type EndpointInfo struct {
	SEID      uint8
	InUse     bool
	MediaType MediaType
	Type      EndpointType
}

// Client issues AVDTP commands over a signalling channel. Commands are
// serialised: at most one is in flight at a time.
type Client struct {
	conn           net.Conn
	commandTimeout time.Duration
	timeProvider   l2cap.TimeProvider

	mu        sync.Mutex
	label     uint8
	assembler assembler
	readBuf   []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps a connected signalling channel.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:           conn,
		commandTimeout: DefaultCommandTimeout,
		readBuf:        make([]byte, 4096),
		closed:         make(chan struct{}),
	}
}

// SetCommandTimeout overrides DefaultCommandTimeout.
func (c *Client) SetCommandTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.commandTimeout = d
	}
}

// SetTimeProvider sets the time source used for deadlines.
func (c *Client) SetTimeProvider(tp l2cap.TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeProvider = tp
}

// Close closes the underlying channel. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Discover lists the remote stream endpoints.
func (c *Client) Discover(ctx context.Context) ([]EndpointInfo, error) {
	payload, err := c.exchange(ctx, SignalDiscover, nil)
	if err != nil {
		return nil, err
	}
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: discover response of %d bytes", ErrMalformedPacket, len(payload))
	}

	endpoints := make([]EndpointInfo, 0, len(payload)/2)
	for i := 0; i < len(payload); i += 2 {
		endpoints = append(endpoints, EndpointInfo{
			SEID:      payload[i] >> 2,
			InUse:     payload[i]&0x02 != 0,
			MediaType: MediaType(payload[i+1] >> 4),
			Type:      EndpointType((payload[i+1] >> 3) & 0x01),
		})
	}
	return endpoints, nil
}

// GetCapabilities fetches the service capabilities of a remote endpoint.
func (c *Client) GetCapabilities(ctx context.Context, seid uint8) (Capabilities, error) {
	payload, err := c.exchange(ctx, SignalGetCapabilities, []byte{seid << 2})
	if err != nil {
		return nil, err
	}
	return ParseCapabilities(payload)
}

// SetConfiguration configures the remote (ACP) endpoint for use with the
// local (INT) endpoint.
func (c *Client) SetConfiguration(ctx context.Context, acpSEID, intSEID uint8, caps Capabilities) error {
	body, err := caps.Marshal()
	if err != nil {
		return err
	}
	_, err = c.exchange(ctx, SignalSetConfiguration, append([]byte{acpSEID << 2, intSEID << 2}, body...))
	return err
}

// GetConfiguration reads back the configuration accepted by the remote.
func (c *Client) GetConfiguration(ctx context.Context, seid uint8) (Capabilities, error) {
	payload, err := c.exchange(ctx, SignalGetConfiguration, []byte{seid << 2})
	if err != nil {
		return nil, err
	}
	return ParseCapabilities(payload)
}

// Open opens a configured stream.
func (c *Client) Open(ctx context.Context, seid uint8) error {
	_, err := c.exchange(ctx, SignalOpen, []byte{seid << 2})
	return err
}

// Start starts streaming on an open stream.
func (c *Client) Start(ctx context.Context, seid uint8) error {
	_, err := c.exchange(ctx, SignalStart, []byte{seid << 2})
	return err
}

// Suspend suspends a streaming stream.
func (c *Client) Suspend(ctx context.Context, seid uint8) error {
	_, err := c.exchange(ctx, SignalSuspend, []byte{seid << 2})
	return err
}

// CloseStream releases a stream. Named to keep Close for the channel.
func (c *Client) CloseStream(ctx context.Context, seid uint8) error {
	_, err := c.exchange(ctx, SignalClose, []byte{seid << 2})
	return err
}

// Abort resets a stream regardless of its state.
func (c *Client) Abort(ctx context.Context, seid uint8) error {
	_, err := c.exchange(ctx, SignalAbort, []byte{seid << 2})
	return err
}

func (c *Client) nextLabel() uint8 {
	c.label = (c.label + 1) & 0x0F
	return c.label
}

// exchange sends one command and waits for its response, answering any
// command the remote sends meanwhile with a general reject.
func (c *Client) exchange(ctx context.Context, signal SignalID, payload []byte) ([]byte, error) {
	if c.IsClosed() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	label := c.nextLabel()
	ctxDeadline, hasDeadline := ctx.Deadline()
	deadline := l2cap.Deadline(c.timeProvider, c.commandTimeout, ctxDeadline, hasDeadline)

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	logger := logrus.WithFields(logrus.Fields{
		"function": "Client.exchange",
		"signal":   signal.String(),
		"label":    label,
	})

	packet := Message{Label: label, Type: MessageCommand, Signal: signal, Payload: payload}.Marshal()
	c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.Write(packet); err != nil {
		return nil, c.ioError(ctx, signal, err)
	}
	logger.Debug("Command sent")

	for {
		c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(c.readBuf)
		if err != nil {
			return nil, c.ioError(ctx, signal, err)
		}

		msg, err := c.assembler.feed(c.readBuf[:n])
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Dropping malformed packet")
			continue
		}
		if msg == nil {
			continue
		}

		if msg.Type == MessageCommand {
			c.rejectIncoming(*msg, deadline)
			continue
		}
		if msg.Label != label || msg.Signal != signal {
			logger.WithFields(logrus.Fields{
				"got_signal": msg.Signal.String(),
				"got_label":  msg.Label,
			}).Debug("Dropping unexpected response")
			continue
		}

		switch msg.Type {
		case MessageAccept:
			logger.Debug("Command accepted")
			return msg.Payload, nil
		case MessageGeneralReject:
			logger.Warn("Command general-rejected")
			return nil, &RejectError{Signal: signal, General: true}
		default:
			rej := parseReject(signal, msg.Payload)
			logger.WithField("code", rej.Code.String()).Warn("Command rejected")
			return nil, rej
		}
	}
}

// rejectIncoming answers a remote-initiated command; the sink never acts as
// acceptor on this channel.
func (c *Client) rejectIncoming(msg Message, deadline time.Time) {
	logrus.WithFields(logrus.Fields{
		"function": "Client.rejectIncoming",
		"signal":   msg.Signal.String(),
		"label":    msg.Label,
	}).Info("Rejecting remote command")

	reply := Message{Label: msg.Label, Type: MessageGeneralReject, Signal: msg.Signal}.Marshal()
	c.conn.SetWriteDeadline(deadline)
	c.conn.Write(reply)
}

func (c *Client) ioError(ctx context.Context, signal SignalID, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("avdtp %s: %w", signal, ctxErr)
	}
	if c.IsClosed() {
		return fmt.Errorf("avdtp %s: %w", signal, ErrClosed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("avdtp %s: %w", signal, ErrTimeout)
	}
	return fmt.Errorf("avdtp %s: %w", signal, err)
}
