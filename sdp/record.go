package sdp

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Universal attribute identifiers used by the audio profiles.
const (
	AttrServiceRecordHandle    uint16 = 0x0000
	AttrServiceClassIDList     uint16 = 0x0001
	AttrProtocolDescriptorList uint16 = 0x0004
	AttrBrowseGroupList        uint16 = 0x0005
	AttrProfileDescriptorList  uint16 = 0x0009
	AttrServiceName            uint16 = 0x0100
	AttrSupportedFeatures      uint16 = 0x0311
)

// Record is one service record returned by a search.
type Record struct {
	Attributes map[uint16]Element
}

// parseRecords decodes the AttributeLists of a ServiceSearchAttribute
// response: a sequence of records, each a sequence of (id, value) pairs.
func parseRecords(b []byte) ([]Record, error) {
	if len(b) == 0 {
		return nil, nil
	}
	lists, rest, err := ParseElement(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 || lists.Type != TypeSequence {
		return nil, fmt.Errorf("%w: attribute lists are not a single sequence", ErrMalformedPDU)
	}

	records := make([]Record, 0, len(lists.Items))
	for _, list := range lists.Items {
		r, err := parseRecord(list)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func parseRecord(list Element) (Record, error) {
	if list.Type != TypeSequence || len(list.Items)%2 != 0 {
		return Record{}, fmt.Errorf("%w: attribute list of %d items", ErrMalformedPDU, len(list.Items))
	}
	r := Record{Attributes: make(map[uint16]Element, len(list.Items)/2)}
	for i := 0; i < len(list.Items); i += 2 {
		id, ok := list.Items[i].Uint16Value()
		if !ok {
			return Record{}, fmt.Errorf("%w: attribute id of type %s", ErrMalformedPDU, list.Items[i].Type)
		}
		r.Attributes[id] = list.Items[i+1]
	}
	return r, nil
}

// Element encodes the record as an attribute list, ordered by id.
func (r Record) Element() Element {
	ids := make([]int, 0, len(r.Attributes))
	for id := range r.Attributes {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	items := make([]Element, 0, 2*len(ids))
	for _, id := range ids {
		items = append(items, Uint16(uint16(id)), r.Attributes[uint16(id)])
	}
	return Sequence(items...)
}

// Attribute returns the value of an attribute.
func (r Record) Attribute(id uint16) (Element, bool) {
	e, ok := r.Attributes[id]
	return e, ok
}

// ServiceClassIDs returns the ServiceClassIDList.
func (r Record) ServiceClassIDs() []uuid.UUID {
	list, ok := r.Attributes[AttrServiceClassIDList]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Type == TypeUUID {
			ids = append(ids, item.UUID)
		}
	}
	return ids
}

// HasClassID reports whether the record lists the service class.
func (r Record) HasClassID(class uuid.UUID) bool {
	for _, id := range r.ServiceClassIDs() {
		if id == class {
			return true
		}
	}
	return false
}

// Protocol returns the parameters following the protocol UUID in the
// ProtocolDescriptorList.
func (r Record) Protocol(protocol uuid.UUID) ([]Element, bool) {
	return descriptorParams(r.Attributes[AttrProtocolDescriptorList], protocol)
}

// ProfileVersion returns the version listed for a profile in the
// BluetoothProfileDescriptorList.
func (r Record) ProfileVersion(profile uuid.UUID) (uint16, bool) {
	params, ok := descriptorParams(r.Attributes[AttrProfileDescriptorList], profile)
	if !ok || len(params) == 0 {
		return 0, false
	}
	return params[0].Uint16Value()
}

func descriptorParams(list Element, id uuid.UUID) ([]Element, bool) {
	if list.Type != TypeSequence {
		return nil, false
	}
	for _, descriptor := range list.Items {
		if descriptor.Type != TypeSequence || len(descriptor.Items) == 0 {
			continue
		}
		head := descriptor.Items[0]
		if head.Type == TypeUUID && head.UUID == id {
			return descriptor.Items[1:], true
		}
	}
	return nil, false
}
