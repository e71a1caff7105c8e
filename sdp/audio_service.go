package sdp

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ServiceType classifies an audio service record.
type ServiceType uint8

const (
	ServiceUnknown ServiceType = iota
	ServiceSource
	ServiceSink
	ServiceOther
)

var serviceTypeNames = [...]string{"unknown", "source", "sink", "other"}

// String returns the lower case type name.
func (t ServiceType) String() string {
	if int(t) < len(serviceTypeNames) {
		return serviceTypeNames[t]
	}
	return fmt.Sprintf("ServiceType(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t ServiceType) MarshalText() ([]byte, error) {
	if int(t) >= len(serviceTypeNames) {
		return nil, fmt.Errorf("unknown service type %d", uint8(t))
	}
	return []byte(serviceTypeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ServiceType) UnmarshalText(text []byte) error {
	for i, name := range serviceTypeNames {
		if name == string(text) {
			*t = ServiceType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown service type %q", string(text))
}

// Features is the supported features bitmask. Sink features occupy the low
// nibble as advertised; source features are shifted into the high nibble so
// both share one namespace.
type Features uint16

const (
	FeatureHeadphone Features = 1 << iota
	FeatureSpeaker
	FeatureRecorder
	FeatureAmplifier
	FeaturePlayer
	FeatureMicrophone
	FeatureTuner
	FeatureMixer
)

var featureNames = []struct {
	flag Features
	name string
}{
	{FeatureHeadphone, "headphone"},
	{FeatureSpeaker, "speaker"},
	{FeatureRecorder, "recorder"},
	{FeatureAmplifier, "amplifier"},
	{FeaturePlayer, "player"},
	{FeatureMicrophone, "microphone"},
	{FeatureTuner, "tuner"},
	{FeatureMixer, "mixer"},
}

// featuresFor maps the advertised SupportedFeatures value into Features.
func featuresFor(t ServiceType, raw uint16) Features {
	if t == ServiceSink {
		return Features(raw & 0x0F)
	}
	return Features(raw&0x0F) << 4
}

// Names returns the names of the set flags.
func (f Features) Names() []string {
	names := []string{}
	for _, entry := range featureNames {
		if f&entry.flag != 0 {
			names = append(names, entry.name)
		}
	}
	return names
}

// String joins the flag names.
func (f Features) String() string {
	return strings.Join(f.Names(), "|")
}

// MarshalJSON encodes the flags as a list of names.
func (f Features) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Names())
}

// UnmarshalJSON decodes a list of flag names.
func (f *Features) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out Features
	for _, name := range names {
		found := false
		for _, entry := range featureNames {
			if entry.name == name {
				out |= entry.flag
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown feature %q", name)
		}
	}
	*f = out
	return nil
}

// AudioServiceRecord is what the sink needs to know about a remote audio
// service: where to connect and which versions it speaks.
type AudioServiceRecord struct {
	Type         ServiceType `json:"type"`
	PSM          uint16      `json:"psm"`
	AVDTPVersion uint16      `json:"avdtp"`
	A2DPVersion  uint16      `json:"a2dp"`
	Features     Features    `json:"features"`
}

// NewAudioServiceRecord interprets an SDP record. The type stays
// ServiceOther unless the record carries the A2DP profile descriptor, an
// L2CAP PSM, an AVDTP version and an audio service class.
func NewAudioServiceRecord(r Record) AudioServiceRecord {
	a := AudioServiceRecord{Type: ServiceOther}

	version, ok := r.ProfileVersion(UUIDAdvancedAudioDistribution)
	if !ok {
		return a
	}
	a.A2DPVersion = version

	l2cap, ok := r.Protocol(UUIDL2CAP)
	if !ok || len(l2cap) == 0 {
		return a
	}
	if a.PSM, ok = l2cap[0].Uint16Value(); !ok {
		return a
	}

	avdtp, ok := r.Protocol(UUIDAVDTP)
	if !ok {
		return a
	}
	if len(avdtp) > 0 {
		a.AVDTPVersion, _ = avdtp[0].Uint16Value()
	}

	switch {
	case r.HasClassID(UUIDAudioSink):
		a.Type = ServiceSink
	case r.HasClassID(UUIDAudioSource):
		a.Type = ServiceSource
	}

	if e, ok := r.Attribute(AttrSupportedFeatures); ok {
		if raw, ok := e.Uint16Value(); ok {
			a.Features = featuresFor(a.Type, raw)
		}
	}
	return a
}

// IsSink reports whether the record describes an audio sink.
func (a AudioServiceRecord) IsSink() bool {
	return a.Type == ServiceSink
}

// String renders the record for logging.
func (a AudioServiceRecord) String() string {
	return fmt.Sprintf("%s psm=%d avdtp=%d.%d a2dp=%d.%d features=%s", a.Type, a.PSM,
		a.AVDTPVersion>>8, a.AVDTPVersion&0xFF, a.A2DPVersion>>8, a.A2DPVersion&0xFF, a.Features)
}

//go:embed schema/audio_service_record.schema.json
var audioServiceRecordSchema []byte

const audioServiceRecordSchemaURL = "audio_service_record.schema.json"

var (
	recordSchemaOnce sync.Once
	recordSchema     *jsonschema.Schema
	recordSchemaErr  error
)

func compiledRecordSchema() (*jsonschema.Schema, error) {
	recordSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(audioServiceRecordSchemaURL, bytes.NewReader(audioServiceRecordSchema)); err != nil {
			recordSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		recordSchema, recordSchemaErr = compiler.Compile(audioServiceRecordSchemaURL)
	})
	return recordSchema, recordSchemaErr
}

// ParseAudioServiceRecord decodes a persisted record after validating it
// against the embedded JSON schema.
func ParseAudioServiceRecord(data []byte) (AudioServiceRecord, error) {
	schema, err := compiledRecordSchema()
	if err != nil {
		return AudioServiceRecord{}, fmt.Errorf("compile schema: %w", err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return AudioServiceRecord{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := schema.Validate(payload); err != nil {
		return AudioServiceRecord{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	var a AudioServiceRecord
	if err := json.Unmarshal(data, &a); err != nil {
		return AudioServiceRecord{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return a, nil
}
