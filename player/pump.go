package player

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/sirupsen/logrus"
)

const (
	// WriteAheadThreshold is how far the stream may run ahead of the wall
	// clock before the pump sleeps.
	WriteAheadThreshold = 10 * time.Millisecond

	// ReadTimeout bounds each wait for the producer.
	ReadTimeout = 100 * time.Millisecond
)

// Transport is what the pump drives. *rtp.TransportSession satisfies it.
type Transport interface {
	IsOpen() bool
	Reset()
	Timestamp() uint32
	ClockRate() uint32
	Channels() uint8
	BytesPerSample() int
	MinFrameSize() int
	PreferredFrameSize() int
	Transmit(pcm []byte) (int, error)
}

// Statistics counts pump activity since the pump was created.
type Statistics struct {
	BytesRead      uint64
	BytesSent      uint64
	Underruns      uint64
	SkippedFrames  uint64
	TransmitErrors uint64
}

// PlaybackPump drains a ReceiveBuffer into a Transport at wall-clock pace.
type PlaybackPump struct {
	transport    Transport
	buffer       ReceiveBuffer
	timeProvider l2cap.TimeProvider

	minFrameSize       int
	maxFrameSize       int
	preferredFrameSize int
	local              []byte

	// Owned by the playback goroutine.
	cursor    int
	available int
	startTime time.Time

	buffered atomic.Int64
	eos      atomic.Bool

	mu      sync.Mutex
	offset  uint32 // ms
	latency uint32 // samples
	running bool
	done    chan struct{}
	stats   Statistics
}

// NewPlaybackPump sizes the local buffer from the transport's frame sizes
// and the shared buffer's chunk size. The transport must already carry a
// configured codec.
func NewPlaybackPump(transport Transport, buffer ReceiveBuffer, tp l2cap.TimeProvider) (*PlaybackPump, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "NewPlaybackPump",
	})

	minSize, preferred := transport.MinFrameSize(), transport.PreferredFrameSize()
	if minSize <= 0 || preferred < minSize {
		return nil, fmt.Errorf("%w: frame sizes %d/%d", ErrIllegalState, minSize, preferred)
	}
	if buffer == nil || !buffer.IsValid() || buffer.Size() <= 0 {
		logger.Error("Shared buffer not available")
		return nil, ErrBufferUnavailable
	}

	maxSize := buffer.Size()
	multiplier := (2*preferred)/maxSize + 1
	if multiplier*maxSize < preferred+maxSize {
		// A chunk far larger than a packet still needs room for one more
		// read on top of a partial packet.
		multiplier = 2
	}

	p := &PlaybackPump{
		transport:          transport,
		buffer:             buffer,
		timeProvider:       l2cap.GetTimeProvider(tp),
		minFrameSize:       minSize,
		maxFrameSize:       maxSize,
		preferredFrameSize: preferred,
		local:              make([]byte, multiplier*maxSize),
	}

	logger.WithFields(logrus.Fields{
		"min_frame":       minSize,
		"preferred_frame": preferred,
		"max_frame":       maxSize,
		"buffer_size":     len(p.local),
	}).Debug("Playback pump created")
	return p, nil
}

// IsValid reports whether both ends of the pump are usable.
func (p *PlaybackPump) IsValid() bool {
	return p.buffer.IsValid() && p.transport.IsOpen()
}

// Play resets the RTP clock and starts the playback goroutine. Calling
// Play while already playing does nothing.
func (p *PlaybackPump) Play() error {
	if !p.IsValid() {
		logrus.WithField("function", "PlaybackPump.Play").Error("Transport channel is not open")
		return ErrIllegalState
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	p.transport.Reset()
	p.cursor = 0
	p.available = 0
	p.buffered.Store(0)
	p.startTime = p.timeProvider.Now()
	p.eos.Store(false)
	p.running = true
	p.done = make(chan struct{})

	go p.run(p.done)

	logrus.WithField("function", "PlaybackPump.Play").Info("Playback started")
	return nil
}

// Stop signals end of stream and waits until the goroutine has played out
// the local buffer and exited. It returns ErrIllegalState when the pump is
// not playing, which includes a pump that already parked at the end of
// the stream.
func (p *PlaybackPump) Stop() error {
	p.mu.Lock()
	running, done := p.running, p.done
	p.mu.Unlock()

	if !running {
		return ErrIllegalState
	}

	p.eos.Store(true)
	<-done
	logrus.WithField("function", "PlaybackPump.Stop").Info("Playback stopped")
	return nil
}

// IsPlaying reports whether the playback goroutine is running.
func (p *PlaybackPump) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Time returns the playback position in milliseconds.
func (p *PlaybackPump) Time() (uint32, error) {
	if !p.IsValid() {
		return 0, ErrIllegalState
	}
	p.mu.Lock()
	offset := p.offset
	p.mu.Unlock()
	return offset + p.playTime(), nil
}

// SetTime sets the position that playback time counts from.
func (p *PlaybackPump) SetTime(ms uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = ms
}

// SetLatency sets the extra device latency reported by Delay.
func (p *PlaybackPump) SetLatency(ms uint16) {
	samples := uint64(p.transport.ClockRate()) * uint64(p.transport.Channels()) * uint64(ms) / 1000

	p.mu.Lock()
	p.latency = uint32(samples)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "PlaybackPump.SetLatency",
		"ms":       ms,
		"samples":  samples,
	}).Info("Latency adjusted")
}

// Delay returns the samples between the producer and the remote speaker:
// the configured latency plus whatever the pump still holds.
func (p *PlaybackPump) Delay() (uint32, error) {
	if !p.IsValid() {
		return 0, ErrIllegalState
	}
	p.mu.Lock()
	latency := p.latency
	p.mu.Unlock()
	return latency + uint32(p.buffered.Load())/uint32(p.transport.BytesPerSample()), nil
}

// Statistics returns the pump counters.
func (p *PlaybackPump) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *PlaybackPump) run(done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(done)
	}()

	for !p.step() {
	}
	logrus.WithField("function", "PlaybackPump.run").Debug("End of stream, playback parked")
}

// playTime is the stream position in milliseconds since the last reset.
func (p *PlaybackPump) playTime() uint32 {
	clock := p.transport.ClockRate()
	if clock == 0 {
		return 0
	}
	return uint32(1000 * uint64(p.transport.Timestamp()) / uint64(clock))
}

// step runs one iteration of the playback loop and reports whether the
// goroutine should park.
func (p *PlaybackPump) step() bool {
	if p.available < p.minFrameSize && !p.eos.Load() {
		p.replenish()
	}

	transmitted := 0
	if p.transport.IsOpen() {
		playTime := time.Duration(p.playTime()) * time.Millisecond
		elapsed := p.timeProvider.Now().Sub(p.startTime)
		if playTime > WriteAheadThreshold && playTime-WriteAheadThreshold > elapsed {
			p.timeProvider.Sleep(playTime - elapsed)
		}

		if p.available >= p.minFrameSize {
			transmitted = p.transmit()
		}
	} else {
		logrus.WithField("function", "PlaybackPump.step").Error("Bluetooth transport link failure, terminating audio stream")
		p.eos.Store(true)
	}

	p.buffered.Store(int64(p.available))
	return transmitted == 0 && p.eos.Load()
}

func (p *PlaybackPump) transmit() int {
	n, err := p.transport.Transmit(p.local[p.cursor : p.cursor+p.available])
	if err != nil {
		p.mu.Lock()
		p.stats.TransmitErrors++
		p.mu.Unlock()
		if n == 0 {
			// The codec could not encode the head of the buffer; drop one
			// frame so the stream keeps moving.
			n = p.minFrameSize
			p.mu.Lock()
			p.stats.SkippedFrames++
			p.mu.Unlock()
		}
		logrus.WithFields(logrus.Fields{
			"function": "PlaybackPump.transmit",
			"error":    err.Error(),
		}).Warn("Transmit failed")
	}

	p.cursor += n
	p.available -= n

	p.mu.Lock()
	p.stats.BytesSent += uint64(n)
	p.mu.Unlock()
	return n
}

// replenish moves the unsent tail to the front of the local buffer and
// reads from the producer until a packet's worth is available. It never
// reads more than the local buffer can hold.
func (p *PlaybackPump) replenish() {
	if p.cursor > 0 {
		copy(p.local, p.local[p.cursor:p.cursor+p.available])
		p.cursor = 0
	}

	for p.available < p.preferredFrameSize && p.available+p.maxFrameSize <= len(p.local) {
		n, err := p.read(p.local[p.available : p.available+p.maxFrameSize])
		p.available += n

		if n == 0 {
			if errors.Is(err, ErrClosed) || errors.Is(err, ErrBufferUnavailable) {
				p.eos.Store(true)
			}
			if p.available < p.minFrameSize {
				p.resync()
			}
			break
		}
	}
}

// resync handles a stalled producer: the elapsed stream time moves into
// the offset and both clocks restart from now.
func (p *PlaybackPump) resync() {
	played := p.playTime()

	p.mu.Lock()
	p.offset += played
	if played > 0 {
		p.stats.Underruns++
	}
	p.mu.Unlock()

	p.startTime = p.timeProvider.Now()
	p.transport.Reset()

	if played > 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "PlaybackPump.resync",
			"played_ms": played,
		}).Debug("Buffer underrun, resynchronising")
	}
}

func (p *PlaybackPump) read(dst []byte) (int, error) {
	if !p.buffer.IsValid() {
		return 0, ErrBufferUnavailable
	}
	if err := p.buffer.RequestConsume(ReadTimeout); err != nil {
		return 0, err
	}

	src := p.buffer.Buffer()
	if written := p.buffer.BytesWritten(); written < len(src) {
		src = src[:written]
	}
	n := copy(dst, src)
	if err := p.buffer.Consumed(); err != nil {
		return n, err
	}

	p.mu.Lock()
	p.stats.BytesRead += uint64(n)
	p.mu.Unlock()
	return n, nil
}
