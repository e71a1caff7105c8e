package sdp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// BaseUUID is the Bluetooth base UUID onto which 16 and 32-bit UUIDs map.
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// Well-known protocol and service class UUIDs.
var (
	UUIDL2CAP                     = ShortUUID(0x0100)
	UUIDAVDTP                     = ShortUUID(0x0019)
	UUIDAudioSource               = ShortUUID(0x110A)
	UUIDAudioSink                 = ShortUUID(0x110B)
	UUIDAdvancedAudioDistribution = ShortUUID(0x110D)
	UUIDPublicBrowseGroup         = ShortUUID(0x1002)
)

// ShortUUID expands a 16 or 32-bit UUID onto the base UUID.
func ShortUUID(v uint32) uuid.UUID {
	u := BaseUUID
	binary.BigEndian.PutUint32(u[:4], v)
	return u
}

// Short returns the 16 or 32-bit alias of u when it derives from the base
// UUID.
func Short(u uuid.UUID) (uint32, bool) {
	if !bytes.Equal(u[4:], BaseUUID[4:]) {
		return 0, false
	}
	return binary.BigEndian.Uint32(u[:4]), true
}

func uuidFromBytes(data []byte) (uuid.UUID, error) {
	switch len(data) {
	case 2:
		return ShortUUID(uint32(binary.BigEndian.Uint16(data))), nil
	case 4:
		return ShortUUID(binary.BigEndian.Uint32(data)), nil
	case 16:
		return uuid.FromBytes(data)
	default:
		return uuid.Nil, fmt.Errorf("%w: UUID of %d bytes", ErrMalformedElement, len(data))
	}
}

// uuidBytes returns the shortest encoding of u.
func uuidBytes(u uuid.UUID) []byte {
	if v, ok := Short(u); ok {
		if v <= 0xFFFF {
			return binary.BigEndian.AppendUint16(nil, uint16(v))
		}
		return binary.BigEndian.AppendUint32(nil, v)
	}
	return append([]byte(nil), u[:]...)
}
