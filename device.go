package a2dpsink

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/opd-ai/a2dpsink/a2dp"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/opd-ai/a2dpsink/sdp"
)

// Device is the remote Bluetooth device a session is bound to. Connection
// and bonding are managed elsewhere; the session only observes them.
type Device interface {
	RemoteAddress() l2cap.BDAddr
	LocalAddress() l2cap.BDAddr
	IsConnected() bool
	IsBonded() bool
	// Callback registers fn to be called whenever the connection or
	// bonding state changes. A nil fn unregisters. An error means the
	// device is already observed by another owner.
	Callback(fn func()) error
}

// DeviceKind is the audio device type derived from the advertised sink
// features.
type DeviceKind uint8

const (
	DeviceUnknown DeviceKind = iota
	DeviceHeadphone
	DeviceSpeaker
	DeviceRecorder
	DeviceAmplifier
)

// String returns the lower case kind name.
func (k DeviceKind) String() string {
	switch k {
	case DeviceHeadphone:
		return "headphone"
	case DeviceSpeaker:
		return "speaker"
	case DeviceRecorder:
		return "recorder"
	case DeviceAmplifier:
		return "amplifier"
	default:
		return "unknown"
	}
}

// DeviceKindFor picks the kind of a sink from its features. When several
// are advertised, headphone wins over speaker, recorder and amplifier in
// that order.
func DeviceKindFor(f sdp.Features) DeviceKind {
	switch {
	case f&sdp.FeatureHeadphone != 0:
		return DeviceHeadphone
	case f&sdp.FeatureSpeaker != 0:
		return DeviceSpeaker
	case f&sdp.FeatureRecorder != 0:
		return DeviceRecorder
	case f&sdp.FeatureAmplifier != 0:
		return DeviceAmplifier
	default:
		return DeviceUnknown
	}
}

// DeviceSettings is what the session remembers about a device between
// connections.
type DeviceSettings struct {
	Service sdp.AudioServiceRecord `json:"service"`
	Codec   a2dp.CodecSettings     `json:"codec"`
}

// Marshal encodes the settings as JSON.
func (d DeviceSettings) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// ParseDeviceSettings decodes persisted settings. The service record is
// validated against its schema.
func ParseDeviceSettings(data []byte) (DeviceSettings, error) {
	var raw struct {
		Service json.RawMessage    `json:"service"`
		Codec   a2dp.CodecSettings `json:"codec"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return DeviceSettings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if len(raw.Service) == 0 {
		return DeviceSettings{}, fmt.Errorf("%w: no service record", ErrInvalidSettings)
	}
	service, err := sdp.ParseAudioServiceRecord(raw.Service)
	if err != nil {
		return DeviceSettings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return DeviceSettings{Service: service, Codec: raw.Codec}, nil
}

// SettingsStore persists encoded DeviceSettings per remote device.
type SettingsStore interface {
	Save(remote l2cap.BDAddr, data []byte) error
	// Load returns ErrNotFound when nothing is stored for remote.
	Load(remote l2cap.BDAddr) ([]byte, error)
}

// MemoryStore is a SettingsStore kept in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[l2cap.BDAddr][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[l2cap.BDAddr][]byte)}
}

// Save stores a copy of data.
func (m *MemoryStore) Save(remote l2cap.BDAddr, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[remote] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the stored data.
func (m *MemoryStore) Load(remote l2cap.BDAddr) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[remote]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, remote)
	}
	return append([]byte(nil), data...), nil
}
