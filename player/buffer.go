package player

import (
	"context"
	"sync"
	"time"
)

// ReceiveBuffer is the consumer side of the shared audio buffer. A reader
// calls RequestConsume, copies BytesWritten bytes from Buffer and then
// acknowledges with Consumed.
type ReceiveBuffer interface {
	IsValid() bool
	// Size is the largest chunk a single consume can return.
	Size() int
	RequestConsume(timeout time.Duration) error
	BytesWritten() int
	Buffer() []byte
	Consumed() error
}

// RingBuffer is an in-process ReceiveBuffer made of fixed-size slots.
// Writers block while every slot is waiting to be consumed.
type RingBuffer struct {
	size int
	free chan []byte
	full chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	current []byte
}

// NewRingBuffer allocates slots chunks of size bytes each.
func NewRingBuffer(size, slots int) *RingBuffer {
	if size < 0 {
		size = 0
	}
	if slots < 1 {
		slots = 1
	}
	r := &RingBuffer{
		size:   size,
		free:   make(chan []byte, slots),
		full:   make(chan []byte, slots),
		closed: make(chan struct{}),
	}
	for i := 0; i < slots; i++ {
		r.free <- make([]byte, size)
	}
	return r
}

// IsValid reports whether the buffer can carry data.
func (r *RingBuffer) IsValid() bool {
	return r != nil && r.size > 0
}

// Size returns the slot size.
func (r *RingBuffer) Size() int {
	return r.size
}

// Write copies p into free slots, blocking while none is free. It
// implements io.Writer so a decoder can be copied straight into it.
func (r *RingBuffer) Write(p []byte) (int, error) {
	return r.WriteContext(context.Background(), p)
}

// WriteContext is Write with cancellation.
func (r *RingBuffer) WriteContext(ctx context.Context, p []byte) (int, error) {
	if !r.IsValid() {
		return 0, ErrBufferUnavailable
	}
	written := 0
	for written < len(p) {
		var slot []byte
		select {
		case slot = <-r.free:
		case <-r.closed:
			return written, ErrClosed
		case <-ctx.Done():
			return written, ctx.Err()
		}
		n := copy(slot[:r.size], p[written:])
		r.full <- slot[:n]
		written += n
	}
	return written, nil
}

// Close marks the end of the stream. Data already written can still be
// consumed; after that RequestConsume returns ErrClosed.
func (r *RingBuffer) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

// RequestConsume waits up to timeout for a written slot.
func (r *RingBuffer) RequestConsume(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return ErrIllegalState
	}

	select {
	case r.current = <-r.full:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r.current = <-r.full:
		return nil
	case <-r.closed:
		select {
		case r.current = <-r.full:
			return nil
		default:
			return ErrClosed
		}
	case <-timer.C:
		return ErrTimeout
	}
}

// BytesWritten returns the length of the slot being consumed.
func (r *RingBuffer) BytesWritten() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.current)
}

// Buffer returns the slot being consumed.
func (r *RingBuffer) Buffer() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Consumed hands the slot back to the writer.
func (r *RingBuffer) Consumed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrIllegalState
	}
	r.free <- r.current[:cap(r.current)]
	r.current = nil
	return nil
}
