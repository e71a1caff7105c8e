package sdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/sirupsen/logrus"
)

// DefaultRequestTimeout bounds one request/response round trip.
const DefaultRequestTimeout = 5000 * time.Millisecond

// maxContinuations bounds the requests of a single search.
const maxContinuations = 64

// Client issues SDP requests over a connected channel.
type Client struct {
	conn         net.Conn
	timeout      time.Duration
	timeProvider l2cap.TimeProvider
	maxBytes     uint16

	mu      sync.Mutex
	tid     uint16
	readBuf []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps a channel connected to PSM 1.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:     conn,
		timeout:  DefaultRequestTimeout,
		maxBytes: defaultMaximumAttributeByteCount,
		readBuf:  make([]byte, 1<<16),
		closed:   make(chan struct{}),
	}
}

// SetTimeout overrides DefaultRequestTimeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.timeout = d
	}
}

// SetTimeProvider sets the time source used for deadlines.
func (c *Client) SetTimeProvider(tp l2cap.TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeProvider = tp
}

// SetMaximumAttributeByteCount limits the attribute bytes per response.
func (c *Client) SetMaximumAttributeByteCount(n uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= 7 {
		c.maxBytes = n
	}
}

// Close closes the channel. It is safe to call more than once.
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

// ServiceSearchAttribute finds the records matching every UUID of pattern
// and returns the requested attributes, following continuation state until
// the server has sent everything.
func (c *Client) ServiceSearchAttribute(ctx context.Context, pattern []uuid.UUID, ranges []AttributeRange) ([]Record, error) {
	if c.IsClosed() {
		return nil, ErrClosed
	}
	if len(ranges) == 0 {
		ranges = []AttributeRange{AllAttributes}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"function": "Client.ServiceSearchAttribute",
		"pattern":  len(pattern),
	})

	var lists []byte
	var continuation []byte
	for i := 0; ; i++ {
		if i == maxContinuations {
			return nil, ErrContinuationLoop
		}
		params, err := serviceSearchAttributeRequest(pattern, ranges, c.maxBytes, continuation)
		if err != nil {
			return nil, err
		}
		resp, err := c.exchange(ctx, PDUServiceSearchAttributeRequest, params)
		if err != nil {
			return nil, err
		}
		if resp.ID == PDUErrorResponse {
			err := parseErrorResponse(resp.Parameters)
			logger.WithField("error", err.Error()).Warn("Search rejected")
			return nil, err
		}
		if resp.ID != PDUServiceSearchAttributeResponse {
			return nil, fmt.Errorf("%w: unexpected PDU 0x%02X", ErrMalformedPDU, uint8(resp.ID))
		}

		fragment, cont, err := parseAttributeResponse(resp.Parameters)
		if err != nil {
			return nil, err
		}
		lists = append(lists, fragment...)
		if len(cont) == 0 {
			break
		}
		continuation = append(continuation[:0], cont...)
		logger.WithField("continuation", len(cont)).Debug("Requesting continuation")
	}

	records, err := parseRecords(lists)
	if err != nil {
		return nil, err
	}
	logger.WithField("records", len(records)).Debug("Search complete")
	return records, nil
}

// exchange sends one request and waits for the response carrying the same
// transaction id. Responses to earlier transactions are dropped.
func (c *Client) exchange(ctx context.Context, id PDUID, params []byte) (PDU, error) {
	c.tid++
	tid := c.tid
	ctxDeadline, hasDeadline := ctx.Deadline()
	deadline := l2cap.Deadline(c.timeProvider, c.timeout, ctxDeadline, hasDeadline)

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.Write(PDU{ID: id, TransactionID: tid, Parameters: params}.Marshal()); err != nil {
		return PDU{}, c.ioError(ctx, err)
	}

	for {
		c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(c.readBuf)
		if err != nil {
			return PDU{}, c.ioError(ctx, err)
		}
		resp, err := ParsePDU(c.readBuf[:n])
		if err != nil {
			return PDU{}, err
		}
		if resp.TransactionID != tid {
			logrus.WithFields(logrus.Fields{
				"function": "Client.exchange",
				"want":     tid,
				"got":      resp.TransactionID,
			}).Debug("Dropping stale response")
			continue
		}
		resp.Parameters = append([]byte(nil), resp.Parameters...)
		return resp, nil
	}
}

func (c *Client) ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("sdp: %w", ctxErr)
	}
	if c.IsClosed() {
		return ErrClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("sdp: %w", err)
}
