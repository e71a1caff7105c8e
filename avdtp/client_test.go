package avdtp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteHandler receives each message the client sends and returns the raw
// packets to write back.
type remoteHandler func(msg Message) [][]byte

type fakeRemote struct {
	mu       sync.Mutex
	received []Message
}

func (f *fakeRemote) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.received...)
}

func newTestClient(t *testing.T, handler remoteHandler) (*Client, *fakeRemote) {
	t.Helper()
	local, remote := net.Pipe()
	client := NewClient(local)
	fake := &fakeRemote{}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := remote.Read(buf)
			if err != nil {
				return
			}
			h, payload, err := ParseHeader(buf[:n])
			if err != nil {
				continue
			}
			msg := Message{Label: h.Label, Type: h.MessageType, Signal: h.Signal, Payload: append([]byte(nil), payload...)}
			fake.mu.Lock()
			fake.received = append(fake.received, msg)
			fake.mu.Unlock()
			for _, out := range handler(msg) {
				if _, err := remote.Write(out); err != nil {
					return
				}
			}
		}
	}()

	t.Cleanup(func() {
		client.Close()
		remote.Close()
	})
	return client, fake
}

func accept(msg Message, payload ...byte) [][]byte {
	return [][]byte{Message{Label: msg.Label, Type: MessageAccept, Signal: msg.Signal, Payload: payload}.Marshal()}
}

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		wire   []byte
	}{
		{"single command", Header{Label: 3, PacketType: PacketSingle, MessageType: MessageCommand, Signal: SignalDiscover}, []byte{0x30, 0x01}},
		{"single accept", Header{Label: 15, PacketType: PacketSingle, MessageType: MessageAccept, Signal: SignalSuspend}, []byte{0xF2, 0x09}},
		{"start", Header{Label: 1, PacketType: PacketStart, MessageType: MessageAccept, Signal: SignalGetCapabilities, Packets: 3}, []byte{0x16, 0x03, 0x02}},
		{"end", Header{Label: 1, PacketType: PacketEnd, MessageType: MessageAccept}, []byte{0x1E}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.header.Marshal())
			got, rest, err := ParseHeader(tt.wire)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.header, got)
		})
	}

	_, _, err := ParseHeader(nil)
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, _, err = ParseHeader([]byte{0x30})
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, _, err = ParseHeader([]byte{0x14, 0x02})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestHeaderMasksReservedSignalBits(t *testing.T) {
	h, _, err := ParseHeader([]byte{0x00, 0xC7})
	require.NoError(t, err)
	assert.Equal(t, SignalStart, h.Signal)
}

func TestAssemblerFragments(t *testing.T) {
	var a assembler

	msg, err := a.feed([]byte{0x26, 0x03, 0x02, 0x01, 0x00})
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = a.feed([]byte{0x2A, 0x07, 0x06})
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = a.feed([]byte{0x2E, 0x00, 0x00, 0x21, 0xFF, 0x02, 0x35})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, uint8(2), msg.Label)
	assert.Equal(t, MessageAccept, msg.Type)
	assert.Equal(t, SignalGetCapabilities, msg.Signal)
	assert.Equal(t, []byte{0x01, 0x00, 0x07, 0x06, 0x00, 0x00, 0x21, 0xFF, 0x02, 0x35}, msg.Payload)

	_, err = a.feed([]byte{0x2E, 0x00})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestParseCapabilities(t *testing.T) {
	raw := []byte{
		0x01, 0x00,
		0x07, 0x06, 0x00, 0x00, 0x21, 0xFF, 0x02, 0x35,
		0x04, 0x02, 0x02, 0x00,
		0x07, 0x01, 0xAA,
	}
	caps, err := ParseCapabilities(raw)
	require.NoError(t, err)
	require.Len(t, caps, 3)

	assert.True(t, caps.Has(CategoryMediaTransport))
	mt, _ := caps.Get(CategoryMediaTransport)
	assert.Empty(t, mt)

	mc, ok := caps.Get(CategoryMediaCodec)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x00, 0x21, 0xFF, 0x02, 0x35}, mc, "first occurrence wins")

	cp, ok := caps.Get(CategoryContentProtection)
	require.True(t, ok)
	assert.Equal(t, []byte{0x02, 0x00}, cp)

	assert.False(t, caps.Has(CategoryRecovery))

	out, err := caps.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw[:14], out)
}

func TestParseCapabilitiesMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"lone category", []byte{0x01}},
		{"short data", []byte{0x07, 0x06, 0x00, 0x00}},
		{"zero category", []byte{0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCapabilities(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedCapability)
		})
	}

	caps, err := ParseCapabilities(nil)
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestClientDiscover(t *testing.T) {
	client, fake := newTestClient(t, func(msg Message) [][]byte {
		// SEID 1 audio sink, SEID 2 in-use audio source
		return accept(msg, 0x04, 0x08, 0x0A, 0x00)
	})

	endpoints, err := client.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []EndpointInfo{
		{SEID: 1, InUse: false, MediaType: MediaAudio, Type: EndpointSink},
		{SEID: 2, InUse: true, MediaType: MediaAudio, Type: EndpointSource},
	}, endpoints)

	sent := fake.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, MessageCommand, sent[0].Type)
	assert.Equal(t, SignalDiscover, sent[0].Signal)
	assert.Empty(t, sent[0].Payload)
}

func TestClientCommandsEncodeSEID(t *testing.T) {
	client, fake := newTestClient(t, func(msg Message) [][]byte {
		return accept(msg)
	})
	ctx := context.Background()

	caps := Capabilities{
		{Category: CategoryMediaTransport},
		{Category: CategoryMediaCodec, Data: []byte{0x00, 0x00, 0x21, 0x15, 0x02, 0x35}},
	}
	require.NoError(t, client.SetConfiguration(ctx, 1, 3, caps))
	require.NoError(t, client.Open(ctx, 1))
	require.NoError(t, client.Start(ctx, 1))
	require.NoError(t, client.Suspend(ctx, 1))
	require.NoError(t, client.CloseStream(ctx, 1))
	require.NoError(t, client.Abort(ctx, 1))

	sent := fake.messages()
	require.Len(t, sent, 6)
	assert.Equal(t, SignalSetConfiguration, sent[0].Signal)
	assert.Equal(t, []byte{0x04, 0x0C, 0x01, 0x00, 0x07, 0x06, 0x00, 0x00, 0x21, 0x15, 0x02, 0x35}, sent[0].Payload)

	wantSignals := []SignalID{SignalOpen, SignalStart, SignalSuspend, SignalClose, SignalAbort}
	for i, sig := range wantSignals {
		assert.Equal(t, sig, sent[i+1].Signal)
		assert.Equal(t, []byte{0x04}, sent[i+1].Payload)
	}

	labels := map[uint8]bool{}
	for _, m := range sent {
		labels[m.Label] = true
	}
	assert.Len(t, labels, 6, "each command uses a fresh transaction label")
}

func TestClientGetConfiguration(t *testing.T) {
	client, _ := newTestClient(t, func(msg Message) [][]byte {
		return accept(msg, 0x01, 0x00, 0x07, 0x06, 0x00, 0x00, 0x21, 0x15, 0x02, 0x35)
	})

	caps, err := client.GetConfiguration(context.Background(), 1)
	require.NoError(t, err)
	mc, ok := caps.Get(CategoryMediaCodec)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x00, 0x21, 0x15, 0x02, 0x35}, mc)
}

func TestClientReject(t *testing.T) {
	client, _ := newTestClient(t, func(msg Message) [][]byte {
		switch msg.Signal {
		case SignalSetConfiguration:
			return [][]byte{Message{Label: msg.Label, Type: MessageReject, Signal: msg.Signal,
				Payload: []byte{byte(CategoryMediaCodec), byte(ErrorUnsupportedConfiguration)}}.Marshal()}
		case SignalOpen:
			return [][]byte{Message{Label: msg.Label, Type: MessageReject, Signal: msg.Signal,
				Payload: []byte{byte(ErrorBadState)}}.Marshal()}
		default:
			return [][]byte{Message{Label: msg.Label, Type: MessageGeneralReject, Signal: msg.Signal}.Marshal()}
		}
	})
	ctx := context.Background()

	err := client.SetConfiguration(ctx, 1, 1, Capabilities{{Category: CategoryMediaTransport}})
	var rej *RejectError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, ErrorUnsupportedConfiguration, rej.Code)
	assert.Equal(t, CategoryMediaCodec, rej.Category)
	assert.Contains(t, rej.Error(), "UNSUPPORTED_CONFIGURATION")

	err = client.Open(ctx, 1)
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, ErrorBadState, rej.Code)
	assert.False(t, rej.General)

	err = client.Start(ctx, 1)
	require.True(t, errors.As(err, &rej))
	assert.True(t, rej.General)
}

func TestClientTimeout(t *testing.T) {
	client, _ := newTestClient(t, func(msg Message) [][]byte {
		return nil
	})
	client.SetCommandTimeout(50 * time.Millisecond)

	start := time.Now()
	err := client.Open(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientContextCancel(t *testing.T) {
	client, _ := newTestClient(t, func(msg Message) [][]byte {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := client.Open(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientRejectsIncomingCommands(t *testing.T) {
	var pending Message
	client, fake := newTestClient(t, func(msg Message) [][]byte {
		switch msg.Type {
		case MessageCommand:
			pending = msg
			// the remote starts its own transaction before answering
			return [][]byte{Message{Label: 9, Type: MessageCommand, Signal: SignalDiscover}.Marshal()}
		case MessageGeneralReject:
			return accept(pending)
		}
		return nil
	})

	require.NoError(t, client.Start(context.Background(), 2))

	sent := fake.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, MessageGeneralReject, sent[1].Type)
	assert.Equal(t, uint8(9), sent[1].Label)
	assert.Equal(t, SignalDiscover, sent[1].Signal)
}

func TestClientDropsMismatchedResponses(t *testing.T) {
	client, _ := newTestClient(t, func(msg Message) [][]byte {
		stale := Message{Label: (msg.Label + 5) & 0x0F, Type: MessageAccept, Signal: msg.Signal}.Marshal()
		other := Message{Label: msg.Label, Type: MessageAccept, Signal: SignalAbort}.Marshal()
		return append([][]byte{stale, other}, accept(msg, 0x04, 0x08)...)
	})

	endpoints, err := client.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, endpoints, 1)
}

func TestClientClosed(t *testing.T) {
	client, _ := newTestClient(t, func(msg Message) [][]byte { return nil })

	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())
	assert.NoError(t, client.Close())

	_, err := client.Discover(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
