package avdtp

import (
	"fmt"
)

// Category is a service capability category.
type Category uint8

const (
	CategoryMediaTransport    Category = 0x01
	CategoryReporting         Category = 0x02
	CategoryRecovery          Category = 0x03
	CategoryContentProtection Category = 0x04
	CategoryHeaderCompression Category = 0x05
	CategoryMultiplexing      Category = 0x06
	CategoryMediaCodec        Category = 0x07
	CategoryDelayReporting    Category = 0x08
)

// String returns the string representation of Category.
func (c Category) String() string {
	switch c {
	case CategoryMediaTransport:
		return "MEDIA_TRANSPORT"
	case CategoryReporting:
		return "REPORTING"
	case CategoryRecovery:
		return "RECOVERY"
	case CategoryContentProtection:
		return "CONTENT_PROTECTION"
	case CategoryHeaderCompression:
		return "HEADER_COMPRESSION"
	case CategoryMultiplexing:
		return "MULTIPLEXING"
	case CategoryMediaCodec:
		return "MEDIA_CODEC"
	case CategoryDelayReporting:
		return "DELAY_REPORTING"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(c))
	}
}

// Capability is one (category, data) service capability.
type Capability struct {
	Category Category
	Data     []byte
}

// Capabilities is an ordered set of service capabilities, at most one per
// category.
type Capabilities []Capability

// ParseCapabilities decodes a sequence of capability TLVs. A truncated
// element fails the whole parse; a repeated category keeps the first
// occurrence.
func ParseCapabilities(b []byte) (Capabilities, error) {
	caps := Capabilities{}
	for off := 0; off < len(b); {
		if len(b)-off < 2 {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrMalformedCapability, len(b)-off, off)
		}
		category := Category(b[off])
		length := int(b[off+1])
		off += 2
		if len(b)-off < length {
			return nil, fmt.Errorf("%w: %s declares %d bytes, %d left", ErrMalformedCapability, category, length, len(b)-off)
		}
		if category == 0 {
			return nil, fmt.Errorf("%w: category 0 at offset %d", ErrMalformedCapability, off-2)
		}
		if _, dup := caps.Get(category); !dup {
			caps = append(caps, Capability{Category: category, Data: append([]byte{}, b[off:off+length]...)})
		}
		off += length
	}
	return caps, nil
}

// Get returns the data of the capability in the given category.
func (c Capabilities) Get(category Category) ([]byte, bool) {
	for _, entry := range c {
		if entry.Category == category {
			return entry.Data, true
		}
	}
	return nil, false
}

// Has reports whether the category is present.
func (c Capabilities) Has(category Category) bool {
	_, ok := c.Get(category)
	return ok
}

// Marshal encodes the capabilities as TLVs in order.
func (c Capabilities) Marshal() ([]byte, error) {
	var out []byte
	for _, entry := range c {
		if len(entry.Data) > 0xFF {
			return nil, fmt.Errorf("%w: %s data is %d bytes", ErrMalformedCapability, entry.Category, len(entry.Data))
		}
		out = append(out, uint8(entry.Category), uint8(len(entry.Data)))
		out = append(out, entry.Data...)
	}
	return out, nil
}
