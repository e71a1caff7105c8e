package sdp

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sinkRecord(features uint16) Record {
	return Record{Attributes: map[uint16]Element{
		AttrServiceRecordHandle: Uint32(0x00010001),
		AttrServiceClassIDList:  Sequence(UUIDElement(UUIDAudioSink)),
		AttrProtocolDescriptorList: Sequence(
			Sequence(UUIDElement(UUIDL2CAP), Uint16(l2cap.PSMAVDTP)),
			Sequence(UUIDElement(UUIDAVDTP), Uint16(0x0103)),
		),
		AttrProfileDescriptorList: Sequence(
			Sequence(UUIDElement(UUIDAdvancedAudioDistribution), Uint16(0x0103)),
		),
		AttrSupportedFeatures: Uint16(features),
	}}
}

func TestElementEncoding(t *testing.T) {
	tests := []struct {
		name string
		e    Element
		want []byte
	}{
		{"uint16", Uint16(0x0019), []byte{0x09, 0x00, 0x19}},
		{"uint32", Uint32(0x0000FFFF), []byte{0x0A, 0x00, 0x00, 0xFF, 0xFF}},
		{"uuid16", UUIDElement(UUIDAudioSink), []byte{0x19, 0x11, 0x0B}},
		{"text", Text("sink"), []byte{0x25, 0x04, 's', 'i', 'n', 'k'}},
		{"sequence", Sequence(UUIDElement(UUIDAudioSink)), []byte{0x35, 0x03, 0x19, 0x11, 0x0B}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.e.Marshal()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, rest, err := ParseElement(got)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.e.Type, back.Type)
		})
	}
}

func TestParseElementUUIDWidths(t *testing.T) {
	long := append([]byte{0x1C}, UUIDAudioSink[:]...)
	for _, raw := range [][]byte{
		{0x19, 0x11, 0x0B},
		{0x1A, 0x00, 0x00, 0x11, 0x0B},
		long,
	} {
		e, _, err := ParseElement(raw)
		require.NoError(t, err)
		assert.Equal(t, UUIDAudioSink, e.UUID)
	}

	custom := uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	raw, err := UUIDElement(custom).Marshal()
	require.NoError(t, err)
	assert.Len(t, raw, 17)
}

func TestParseElementSignedAndLongSequence(t *testing.T) {
	e, _, err := ParseElement([]byte{0x10, 0xFE})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), e.Int)

	items := make([]Element, 100)
	for i := range items {
		items[i] = Uint16(uint16(i))
	}
	raw, err := Sequence(items...).Marshal()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x36), raw[0], "sequence over 255 bytes uses a 16-bit length")

	back, _, err := ParseElement(raw)
	require.NoError(t, err)
	assert.Len(t, back.Items, 100)
}

func TestParseElementMalformed(t *testing.T) {
	for _, raw := range [][]byte{
		{},
		{0x09, 0x00},
		{0x35, 0x05, 0x09, 0x00},
		{0x35},
		{0x19, 0x11},
		{0x4D, 0x00},
	} {
		_, _, err := ParseElement(raw)
		assert.ErrorIs(t, err, ErrMalformedElement, "input % X", raw)
	}
}

func TestAudioServiceRecordFromRecord(t *testing.T) {
	a := NewAudioServiceRecord(sinkRecord(0x0003))
	assert.Equal(t, ServiceSink, a.Type)
	assert.True(t, a.IsSink())
	assert.Equal(t, uint16(25), a.PSM)
	assert.Equal(t, uint16(0x0103), a.AVDTPVersion)
	assert.Equal(t, uint16(0x0103), a.A2DPVersion)
	assert.Equal(t, FeatureHeadphone|FeatureSpeaker, a.Features)

	source := sinkRecord(0x0001)
	source.Attributes[AttrServiceClassIDList] = Sequence(UUIDElement(UUIDAudioSource))
	s := NewAudioServiceRecord(source)
	assert.Equal(t, ServiceSource, s.Type)
	assert.Equal(t, FeaturePlayer, s.Features)

	noProfile := sinkRecord(0)
	delete(noProfile.Attributes, AttrProfileDescriptorList)
	assert.Equal(t, ServiceOther, NewAudioServiceRecord(noProfile).Type)

	noAVDTP := sinkRecord(0)
	noAVDTP.Attributes[AttrProtocolDescriptorList] = Sequence(Sequence(UUIDElement(UUIDL2CAP), Uint16(25)))
	assert.Equal(t, ServiceOther, NewAudioServiceRecord(noAVDTP).Type)
}

func TestAudioServiceRecordJSON(t *testing.T) {
	a := NewAudioServiceRecord(sinkRecord(0x0001))
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sink","psm":25,"avdtp":259,"a2dp":259,"features":["headphone"]}`, string(data))

	back, err := ParseAudioServiceRecord(data)
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func TestParseAudioServiceRecordRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing psm", `{"type":"sink"}`},
		{"bad type", `{"type":"speaker","psm":25}`},
		{"psm zero", `{"type":"sink","psm":0}`},
		{"unknown feature", `{"type":"sink","psm":25,"features":["subwoofer"]}`},
		{"extra field", `{"type":"sink","psm":25,"name":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAudioServiceRecord([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

// fakeServer answers ServiceSearchAttribute requests with the given
// attribute lists split into fragments of at most chunk bytes.
type fakeServer struct {
	mu       sync.Mutex
	lists    []byte
	chunk    int
	requests [][]byte
	errCode  ErrorCode
}

func (s *fakeServer) serve(conn net.Conn) {
	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		req, err := ParsePDU(buf[:n])
		if err != nil {
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, append([]byte(nil), req.Parameters...))
		s.mu.Unlock()

		if s.errCode != 0 {
			resp := PDU{ID: PDUErrorResponse, TransactionID: req.TransactionID,
				Parameters: binary.BigEndian.AppendUint16(nil, uint16(s.errCode))}
			conn.Write(resp.Marshal())
			continue
		}

		// The continuation state is the offset to resume from.
		offset := 0
		if p := req.Parameters; len(p) >= 2 && p[len(p)-2] == 1 {
			offset = int(p[len(p)-1])
		}

		end := offset + s.chunk
		var cont []byte
		if end < len(s.lists) {
			cont = []byte{uint8(end)}
		} else {
			end = len(s.lists)
		}
		fragment := s.lists[offset:end]
		params := binary.BigEndian.AppendUint16(nil, uint16(len(fragment)))
		params = append(params, fragment...)
		params = append(params, uint8(len(cont)))
		params = append(params, cont...)
		conn.Write(PDU{ID: PDUServiceSearchAttributeResponse, TransactionID: req.TransactionID, Parameters: params}.Marshal())
	}
}

func (s *fakeServer) dialer() l2cap.Dialer {
	return l2cap.DialerFunc(func(ctx context.Context, local, remote *l2cap.Addr) (net.Conn, error) {
		a, b := net.Pipe()
		go s.serve(b)
		return a, nil
	})
}

func attributeLists(t *testing.T, records ...Record) []byte {
	t.Helper()
	items := make([]Element, 0, len(records))
	for _, r := range records {
		items = append(items, r.Element())
	}
	raw, err := Sequence(items...).Marshal()
	require.NoError(t, err)
	return raw
}

var testRemote = l2cap.BDAddr{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13}

func TestServiceDiscoveryWithContinuation(t *testing.T) {
	other := Record{Attributes: map[uint16]Element{
		AttrServiceClassIDList: Sequence(UUIDElement(ShortUUID(0x1108))),
	}}
	server := &fakeServer{lists: attributeLists(t, sinkRecord(0x0001), other), chunk: 24}
	require.Greater(t, len(server.lists), 48, "response must need several fragments")

	d := NewServiceDiscovery(server.dialer(), l2cap.BDAddr{}, Timeouts{})
	require.NoError(t, d.Connect(context.Background(), testRemote))
	defer d.Disconnect()

	services, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, ServiceSink, services[0].Type)
	assert.Equal(t, uint16(25), services[0].PSM)

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Greater(t, len(server.requests), 2)
	first := server.requests[0]
	assert.Equal(t, []byte{0x35, 0x03, 0x19, 0x11, 0x0B}, first[:5], "search pattern is the Audio Sink class")
	assert.Equal(t, uint8(0), first[len(first)-1], "first request has no continuation")
	second := server.requests[1]
	assert.Equal(t, []byte{0x01, 24}, second[len(second)-2:])
}

func TestServiceDiscoveryErrorResponse(t *testing.T) {
	server := &fakeServer{errCode: ErrorInvalidSyntax}
	d := NewServiceDiscovery(server.dialer(), l2cap.BDAddr{}, Timeouts{})
	require.NoError(t, d.Connect(context.Background(), testRemote))
	defer d.Disconnect()

	_, err := d.Discover(context.Background())
	var resp *ErrorResponse
	require.ErrorAs(t, err, &resp)
	assert.Equal(t, ErrorInvalidSyntax, resp.Code)
}

func TestServiceDiscoveryEmpty(t *testing.T) {
	server := &fakeServer{lists: attributeLists(t), chunk: 64}
	d := NewServiceDiscovery(server.dialer(), l2cap.BDAddr{}, Timeouts{})
	require.NoError(t, d.Connect(context.Background(), testRemote))
	defer d.Disconnect()

	services, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestServiceDiscoveryNotConnected(t *testing.T) {
	d := NewServiceDiscovery((&fakeServer{}).dialer(), l2cap.BDAddr{}, Timeouts{})
	_, err := d.Discover(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, d.Disconnect())
}

func TestServiceDiscoveryDefaultDialer(t *testing.T) {
	d := NewServiceDiscovery(nil, l2cap.BDAddr{}, Timeouts{})
	assert.IsType(t, &l2cap.SocketDialer{}, d.dialer)
}

func TestAttributeRangeEncoding(t *testing.T) {
	params, err := serviceSearchAttributeRequest([]uuid.UUID{UUIDAudioSink}, []AttributeRange{AllAttributes}, 0x0400, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x35, 0x03, 0x19, 0x11, 0x0B,
		0x04, 0x00,
		0x35, 0x05, 0x0A, 0x00, 0x00, 0xFF, 0xFF,
		0x00,
	}, params)
}
