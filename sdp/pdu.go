package sdp

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// PDUID identifies an SDP PDU.
type PDUID uint8

const (
	PDUErrorResponse                  PDUID = 0x01
	PDUServiceSearchRequest           PDUID = 0x02
	PDUServiceSearchResponse          PDUID = 0x03
	PDUServiceAttributeRequest        PDUID = 0x04
	PDUServiceAttributeResponse       PDUID = 0x05
	PDUServiceSearchAttributeRequest  PDUID = 0x06
	PDUServiceSearchAttributeResponse PDUID = 0x07
)

const (
	pduHeaderSize        = 5
	maxContinuationState = 16

	defaultMaximumAttributeByteCount uint16 = 0xFFFF
)

// PDU is one SDP protocol data unit.
type PDU struct {
	ID            PDUID
	TransactionID uint16
	Parameters    []byte
}

// Marshal encodes the PDU header and parameters.
func (p PDU) Marshal() []byte {
	b := make([]byte, pduHeaderSize, pduHeaderSize+len(p.Parameters))
	b[0] = uint8(p.ID)
	binary.BigEndian.PutUint16(b[1:3], p.TransactionID)
	binary.BigEndian.PutUint16(b[3:5], uint16(len(p.Parameters)))
	return append(b, p.Parameters...)
}

// ParsePDU decodes a PDU, checking the declared parameter length.
func ParsePDU(b []byte) (PDU, error) {
	if len(b) < pduHeaderSize {
		return PDU{}, fmt.Errorf("%w: %d bytes", ErrMalformedPDU, len(b))
	}
	length := int(binary.BigEndian.Uint16(b[3:5]))
	if len(b)-pduHeaderSize < length {
		return PDU{}, fmt.Errorf("%w: declares %d parameter bytes, has %d", ErrMalformedPDU, length, len(b)-pduHeaderSize)
	}
	return PDU{
		ID:            PDUID(b[0]),
		TransactionID: binary.BigEndian.Uint16(b[1:3]),
		Parameters:    b[pduHeaderSize : pduHeaderSize+length],
	}, nil
}

// AttributeRange is an inclusive range of attribute identifiers.
type AttributeRange struct {
	Start uint16
	End   uint16
}

// AllAttributes requests every attribute of a record.
var AllAttributes = AttributeRange{Start: 0x0000, End: 0xFFFF}

func (r AttributeRange) element() Element {
	if r.Start == r.End {
		return Uint16(r.Start)
	}
	return Uint32(uint32(r.Start)<<16 | uint32(r.End))
}

// serviceSearchAttributeRequest builds the parameters of a
// ServiceSearchAttributeRequest.
func serviceSearchAttributeRequest(pattern []uuid.UUID, ranges []AttributeRange, maxBytes uint16, continuation []byte) ([]byte, error) {
	uuids := make([]Element, 0, len(pattern))
	for _, u := range pattern {
		uuids = append(uuids, UUIDElement(u))
	}
	params, err := Sequence(uuids...).Marshal()
	if err != nil {
		return nil, err
	}
	params = binary.BigEndian.AppendUint16(params, maxBytes)

	attrs := make([]Element, 0, len(ranges))
	for _, r := range ranges {
		attrs = append(attrs, r.element())
	}
	if params, err = Sequence(attrs...).AppendTo(params); err != nil {
		return nil, err
	}
	params = append(params, uint8(len(continuation)))
	return append(params, continuation...), nil
}

// parseAttributeResponse splits ServiceSearchAttributeResponse parameters
// into the attribute list fragment and the continuation state.
func parseAttributeResponse(params []byte) (fragment, continuation []byte, err error) {
	if len(params) < 3 {
		return nil, nil, fmt.Errorf("%w: attribute response of %d bytes", ErrMalformedPDU, len(params))
	}
	count := int(binary.BigEndian.Uint16(params))
	if len(params) < 2+count+1 {
		return nil, nil, fmt.Errorf("%w: attribute byte count %d exceeds response", ErrMalformedPDU, count)
	}
	fragment = params[2 : 2+count]
	contLen := int(params[2+count])
	rest := params[3+count:]
	if contLen > maxContinuationState || len(rest) < contLen {
		return nil, nil, fmt.Errorf("%w: continuation state of %d bytes", ErrMalformedPDU, contLen)
	}
	return fragment, rest[:contLen], nil
}

func parseErrorResponse(params []byte) error {
	if len(params) < 2 {
		return fmt.Errorf("%w: error response of %d bytes", ErrMalformedPDU, len(params))
	}
	return &ErrorResponse{Code: ErrorCode(binary.BigEndian.Uint16(params))}
}
