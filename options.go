package a2dpsink

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/a2dpsink/a2dp"
	"github.com/opd-ai/a2dpsink/avdtp"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/opd-ai/a2dpsink/sdp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
)

// MaxLatency is the largest extra latency, in milliseconds, SetLatency
// accepts.
const MaxLatency = 10000

// TimeoutOptions holds the protocol timeouts in milliseconds.
type TimeoutOptions struct {
	Command          uint32 `json:"command"`
	Open             uint32 `json:"open"`
	Close            uint32 `json:"close"`
	Discover         uint32 `json:"discover"`
	ServiceDiscovery uint32 `json:"service_discovery"`
}

func ms(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (t TimeoutOptions) signalling() a2dp.Timeouts {
	return a2dp.Timeouts{
		Open:     ms(t.Open),
		Close:    ms(t.Close),
		Discover: ms(t.Discover),
		Command:  ms(t.Command),
	}
}

func (t TimeoutOptions) serviceDiscovery() sdp.Timeouts {
	return sdp.Timeouts{
		Open:     ms(t.Open),
		Close:    ms(t.Close),
		Discover: ms(t.ServiceDiscovery),
	}
}

// Options configures a SinkSession.
type Options struct {
	// LocalSEID is the SEID this sink announces as initiator.
	LocalSEID uint8 `json:"seid"`
	// Latency is the extra device latency in milliseconds added to Delay.
	Latency int16 `json:"latency"`
	// HostLatency is the latency of the local controller in milliseconds.
	// Latency may go as low as -HostLatency.
	HostLatency uint16 `json:"host_latency"`
	// Codec holds the codec preferences. SampleRate and Channels are
	// replaced by the stream format passed to Open.
	Codec             a2dp.CodecSettings `json:"codec"`
	ContentProtection bool               `json:"content_protection"`
	MTU               uint16             `json:"mtu"`
	SSRC              uint8              `json:"ssrc"`
	// Flushable marks the media channel flushable so stale packets can be
	// dropped by the controller.
	Flushable bool           `json:"flushable"`
	Timeouts  TimeoutOptions `json:"timeouts"`

	// Dialer opens L2CAP channels. Nil dials real sockets.
	Dialer l2cap.Dialer `json:"-"`
	// TimeProvider drives pacing and deadlines. Nil uses the wall clock.
	TimeProvider l2cap.TimeProvider `json:"-"`
	// Store persists discovered service records and codec settings. Nil
	// disables persistence.
	Store SettingsStore `json:"-"`
}

// NewOptions returns the default options.
func NewOptions() *Options {
	profile := a2dp.DefaultProfile
	return &Options{
		LocalSEID: 1,
		Codec:     a2dp.CodecSettings{Profile: &profile},
		MTU:       l2cap.DefaultMTU,
		SSRC:      1,
		Timeouts: TimeoutOptions{
			Command:          uint32(avdtp.DefaultCommandTimeout / time.Millisecond),
			Open:             uint32(a2dp.DefaultOpenTimeout / time.Millisecond),
			Close:            uint32(a2dp.DefaultCloseTimeout / time.Millisecond),
			Discover:         uint32(a2dp.DefaultDiscoverTimeout / time.Millisecond),
			ServiceDiscovery: uint32(sdp.DefaultDiscoverTimeout / time.Millisecond),
		},
	}
}

func (o *Options) dialer() l2cap.Dialer {
	if o.Dialer != nil {
		return o.Dialer
	}
	return &l2cap.SocketDialer{Flushable: o.Flushable}
}

//go:embed schema/options.schema.json
var optionsSchema []byte

const optionsSchemaURL = "options.schema.json"

var (
	optionsSchemaOnce sync.Once
	compiledOptions   *jsonschema.Schema
	optionsSchemaErr  error
)

func compiledOptionsSchema() (*jsonschema.Schema, error) {
	optionsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(optionsSchemaURL, bytes.NewReader(optionsSchema)); err != nil {
			optionsSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledOptions, optionsSchemaErr = compiler.Compile(optionsSchemaURL)
	})
	return compiledOptions, optionsSchemaErr
}

// LoadOptions decodes JSON options over the defaults after validating them
// against the embedded schema. Fields absent from data keep their defaults.
func LoadOptions(data []byte) (*Options, error) {
	schema, err := compiledOptionsSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	opts := NewOptions()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if int(opts.Latency) < -int(opts.HostLatency) {
		return nil, fmt.Errorf("%w: latency %d below host latency -%d", ErrInvalidOptions, opts.Latency, opts.HostLatency)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadOptions",
		"seid":     opts.LocalSEID,
		"codec":    opts.Codec.String(),
		"mtu":      opts.MTU,
	}).Debug("Options loaded")
	return opts, nil
}
