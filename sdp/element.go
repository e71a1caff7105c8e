package sdp

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ElementType is the type descriptor of a data element.
type ElementType uint8

const (
	TypeNil         ElementType = 0
	TypeUint        ElementType = 1
	TypeInt         ElementType = 2
	TypeUUID        ElementType = 3
	TypeText        ElementType = 4
	TypeBool        ElementType = 5
	TypeSequence    ElementType = 6
	TypeAlternative ElementType = 7
	TypeURL         ElementType = 8
)

// String returns the string representation of ElementType.
func (t ElementType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeUint:
		return "uint"
	case TypeInt:
		return "int"
	case TypeUUID:
		return "uuid"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeSequence:
		return "sequence"
	case TypeAlternative:
		return "alternative"
	case TypeURL:
		return "url"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// Element is a decoded SDP data element. Which value field is meaningful
// depends on Type; Size records the width in bytes of integer values.
type Element struct {
	Type  ElementType
	Size  int
	Uint  uint64
	Int   int64
	Bool  bool
	UUID  uuid.UUID
	Bytes []byte
	Items []Element
}

// Uint8 returns an unsigned 8-bit element.
func Uint8(v uint8) Element { return Element{Type: TypeUint, Size: 1, Uint: uint64(v)} }

// Uint16 returns an unsigned 16-bit element.
func Uint16(v uint16) Element { return Element{Type: TypeUint, Size: 2, Uint: uint64(v)} }

// Uint32 returns an unsigned 32-bit element.
func Uint32(v uint32) Element { return Element{Type: TypeUint, Size: 4, Uint: uint64(v)} }

// UUIDElement returns a UUID element.
func UUIDElement(u uuid.UUID) Element { return Element{Type: TypeUUID, UUID: u} }

// Text returns a text string element.
func Text(s string) Element { return Element{Type: TypeText, Bytes: []byte(s)} }

// Sequence returns a data element sequence.
func Sequence(items ...Element) Element { return Element{Type: TypeSequence, Items: items} }

// Uint16Value returns the value of an unsigned element of at most 16 bits.
func (e Element) Uint16Value() (uint16, bool) {
	if e.Type != TypeUint || e.Size > 2 {
		return 0, false
	}
	return uint16(e.Uint), true
}

var sizeIndexBytes = [5]int{1, 2, 4, 8, 16}

// ParseElement decodes one data element and returns the remaining bytes.
func ParseElement(b []byte) (Element, []byte, error) {
	if len(b) < 1 {
		return Element{}, nil, fmt.Errorf("%w: empty input", ErrMalformedElement)
	}
	typ := ElementType(b[0] >> 3)
	sizeIndex := b[0] & 0x07
	b = b[1:]

	var size int
	switch {
	case typ == TypeNil:
		size = 0
	case sizeIndex <= 4:
		size = sizeIndexBytes[sizeIndex]
	default:
		n := 1 << (sizeIndex - 5)
		if len(b) < n {
			return Element{}, nil, fmt.Errorf("%w: truncated length field", ErrMalformedElement)
		}
		switch n {
		case 1:
			size = int(b[0])
		case 2:
			size = int(binary.BigEndian.Uint16(b))
		case 4:
			size = int(binary.BigEndian.Uint32(b))
		}
		b = b[n:]
	}
	if size < 0 || len(b) < size {
		return Element{}, nil, fmt.Errorf("%w: %s of %d bytes, %d left", ErrMalformedElement, typ, size, len(b))
	}
	data, rest := b[:size], b[size:]

	e := Element{Type: typ, Size: size}
	switch typ {
	case TypeNil:
	case TypeUint, TypeInt:
		if size > 8 {
			// 128-bit integers are carried as raw bytes.
			e.Bytes = append([]byte(nil), data...)
			break
		}
		var v uint64
		for _, c := range data {
			v = v<<8 | uint64(c)
		}
		e.Uint = v
		if typ == TypeInt {
			shift := uint(64 - 8*size)
			e.Int = int64(v<<shift) >> shift
		}
	case TypeUUID:
		u, err := uuidFromBytes(data)
		if err != nil {
			return Element{}, nil, err
		}
		e.UUID = u
	case TypeText, TypeURL:
		e.Bytes = append([]byte(nil), data...)
	case TypeBool:
		if size != 1 {
			return Element{}, nil, fmt.Errorf("%w: bool of %d bytes", ErrMalformedElement, size)
		}
		e.Bool = data[0] != 0
	case TypeSequence, TypeAlternative:
		for len(data) > 0 {
			item, remaining, err := ParseElement(data)
			if err != nil {
				return Element{}, nil, err
			}
			e.Items = append(e.Items, item)
			data = remaining
		}
	default:
		return Element{}, nil, fmt.Errorf("%w: reserved type %d", ErrMalformedElement, uint8(typ))
	}
	return e, rest, nil
}

// Marshal encodes the element.
func (e Element) Marshal() ([]byte, error) {
	return e.AppendTo(nil)
}

// AppendTo appends the encoded element to b.
func (e Element) AppendTo(b []byte) ([]byte, error) {
	switch e.Type {
	case TypeNil:
		return append(b, 0x00), nil
	case TypeUint, TypeInt:
		index, ok := fixedSizeIndex(e.Size)
		if !ok || e.Size > 8 {
			return nil, fmt.Errorf("%w: integer of %d bytes", ErrMalformedElement, e.Size)
		}
		v := e.Uint
		if e.Type == TypeInt {
			v = uint64(e.Int)
		}
		b = append(b, uint8(e.Type)<<3|index)
		for i := e.Size - 1; i >= 0; i-- {
			b = append(b, uint8(v>>(8*i)))
		}
		return b, nil
	case TypeUUID:
		data := uuidBytes(e.UUID)
		index, _ := fixedSizeIndex(len(data))
		b = append(b, uint8(TypeUUID)<<3|index)
		return append(b, data...), nil
	case TypeBool:
		v := uint8(0)
		if e.Bool {
			v = 1
		}
		return append(b, uint8(TypeBool)<<3, v), nil
	case TypeText, TypeURL:
		return appendVariable(b, e.Type, e.Bytes), nil
	case TypeSequence, TypeAlternative:
		var body []byte
		for _, item := range e.Items {
			var err error
			if body, err = item.AppendTo(body); err != nil {
				return nil, err
			}
		}
		return appendVariable(b, e.Type, body), nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", ErrMalformedElement, e.Type)
	}
}

func fixedSizeIndex(size int) (uint8, bool) {
	for i, n := range sizeIndexBytes {
		if n == size {
			return uint8(i), true
		}
	}
	return 0, false
}

func appendVariable(b []byte, typ ElementType, data []byte) []byte {
	switch {
	case len(data) <= 0xFF:
		b = append(b, uint8(typ)<<3|5, uint8(len(data)))
	case len(data) <= 0xFFFF:
		b = append(b, uint8(typ)<<3|6)
		b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	default:
		b = append(b, uint8(typ)<<3|7)
		b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	}
	return append(b, data...)
}
