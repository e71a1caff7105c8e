package a2dp

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/a2dpsink/avdtp"
	"github.com/sirupsen/logrus"
)

// Commander issues the stream commands of one signalling channel.
// *avdtp.Client implements it.
type Commander interface {
	SetConfiguration(ctx context.Context, acpSEID, intSEID uint8, caps avdtp.Capabilities) error
	GetConfiguration(ctx context.Context, seid uint8) (avdtp.Capabilities, error)
	Open(ctx context.Context, seid uint8) error
	Start(ctx context.Context, seid uint8) error
	Suspend(ctx context.Context, seid uint8) error
	CloseStream(ctx context.Context, seid uint8) error
	Abort(ctx context.Context, seid uint8) error
}

// EndpointStatus is the stream state reported after a successful command.
type EndpointStatus uint8

const (
	EndpointConfigured EndpointStatus = iota + 1
	EndpointOpen
	EndpointStreaming
)

// String returns the status name.
func (s EndpointStatus) String() string {
	switch s {
	case EndpointConfigured:
		return "CONFIGURED"
	case EndpointOpen:
		return "OPEN"
	case EndpointStreaming:
		return "STREAMING"
	default:
		return fmt.Sprintf("EndpointStatus(%d)", uint8(s))
	}
}

// StatusFunc receives endpoint status notifications.
type StatusFunc func(seid uint8, status EndpointStatus)

// StreamEndpoint is a remote sink endpoint found by discovery. It owns the
// codec negotiated for it and drives the stream lifecycle through the
// signalling channel it was discovered on.
type StreamEndpoint struct {
	mu sync.Mutex

	cmd     Commander
	info    avdtp.EndpointInfo
	intSEID uint8
	caps    avdtp.Capabilities
	notify  StatusFunc

	transport bool
	codec     *Codec
	cp        *ContentProtection
	cpEnabled bool
}

// NewStreamEndpoint creates the endpoint and interprets its capabilities.
//
// Parameters:
//   - cmd: the signalling channel the endpoint was discovered on
//   - info: the DISCOVER record of the endpoint
//   - caps: its GET_CAPABILITIES answer
//   - intSEID: the local endpoint identifier
//   - notify: receives a status after every successful command, may be nil
//
// Returns:
//   - *StreamEndpoint: the endpoint; check Usable and Codec before use
func NewStreamEndpoint(cmd Commander, info avdtp.EndpointInfo, caps avdtp.Capabilities, intSEID uint8, notify StatusFunc) *StreamEndpoint {
	e := &StreamEndpoint{
		cmd:     cmd,
		info:    info,
		intSEID: intSEID,
		caps:    caps,
		notify:  notify,
	}
	e.parseCapabilities()
	return e
}

// parseCapabilities interprets every category before reporting problems,
// so a malformed codec element does not hide the content protection
// capability next to it.
func (e *StreamEndpoint) parseCapabilities() {
	logger := logrus.WithFields(logrus.Fields{
		"function": "StreamEndpoint.parseCapabilities",
		"seid":     e.info.SEID,
	})

	e.transport = e.caps.Has(avdtp.CategoryMediaTransport)

	if data, ok := e.caps.Get(avdtp.CategoryContentProtection); ok {
		cp, err := ParseContentProtection(data)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Ignoring content protection capability")
		} else {
			e.cp = cp
			logger.WithField("type", cp.Type.String()).Debug("Content protection advertised")
		}
	}

	var codecErr error
	if element, ok := e.caps.Get(avdtp.CategoryMediaCodec); !ok {
		codecErr = fmt.Errorf("%w: no media codec capability", ErrMalformedCapability)
	} else if codec, err := NewCodec(element); err != nil {
		codecErr = err
	} else {
		e.codec = &codec
	}

	if !e.transport {
		logger.Warn("Endpoint lacks media transport capability")
	}
	if codecErr != nil {
		logger.WithField("error", codecErr.Error()).Warn("Endpoint lacks a usable media codec capability")
		return
	}
	if !e.codec.Supported() {
		logger.WithField("codec", e.codec.Name()).Info("Codec not supported")
	}
}

// SEID returns the remote endpoint identifier.
func (e *StreamEndpoint) SEID() uint8 { return e.info.SEID }

// IntSEID returns the local endpoint identifier used with it.
func (e *StreamEndpoint) IntSEID() uint8 { return e.intSEID }

// Info returns the discovery record.
func (e *StreamEndpoint) Info() avdtp.EndpointInfo { return e.info }

// Capabilities returns the raw service capabilities.
func (e *StreamEndpoint) Capabilities() avdtp.Capabilities { return e.caps }

// Usable reports whether the endpoint advertised a media transport.
func (e *StreamEndpoint) Usable() bool { return e.transport }

// Codec returns the codec, or nil when none was advertised.
func (e *StreamEndpoint) Codec() *Codec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.codec
}

// ContentProtection returns the advertised protection, or nil.
func (e *StreamEndpoint) ContentProtection() *ContentProtection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cp
}

// ContentProtectionEnabled reports whether the last Configure requested
// content protection.
func (e *StreamEndpoint) ContentProtectionEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cpEnabled
}

// Configure negotiates the codec for settings, sends SET_CONFIGURATION and
// verifies the result with GET_CONFIGURATION.
//
// The capability list carries MEDIA_TRANSPORT, then CONTENT_PROTECTION
// when requested and advertised, then MEDIA_CODEC. Nothing is sent when
// negotiation fails.
//
// Parameters:
//   - ctx: bounds both commands
//   - settings: requested sample rate, channels and quality profile
//   - enableCP: request the advertised content protection scheme
//
// Returns:
//   - error: ErrNoCodec, a negotiation error such as ErrBadRequest,
//     ErrCommandFailed wrapping the rejection, or ErrConfigurationMismatch
func (e *StreamEndpoint) Configure(ctx context.Context, settings CodecSettings, enableCP bool) error {
	e.mu.Lock()
	codec := e.codec
	cp := e.cp
	e.cpEnabled = enableCP
	e.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"function": "StreamEndpoint.Configure",
		"seid":     e.info.SEID,
		"settings": settings.String(),
	})

	if codec == nil {
		return ErrNoCodec
	}
	if err := codec.Configure(settings); err != nil {
		logger.WithField("error", err.Error()).Warn("Codec negotiation failed")
		return err
	}
	element, err := codec.SerializeConfiguration()
	if err != nil {
		return err
	}

	caps := avdtp.Capabilities{{Category: avdtp.CategoryMediaTransport, Data: []byte{}}}
	if cp != nil && enableCP {
		caps = append(caps, avdtp.Capability{Category: avdtp.CategoryContentProtection, Data: cp.SerializeConfiguration()})
	}
	caps = append(caps, avdtp.Capability{Category: avdtp.CategoryMediaCodec, Data: element})

	if err := e.cmd.SetConfiguration(ctx, e.info.SEID, e.intSEID, caps); err != nil {
		logger.WithField("error", err.Error()).Error("SET_CONFIGURATION failed")
		return e.commandError("set configuration", err)
	}
	logger.Debug("SET_CONFIGURATION accepted")

	return e.verifyConfiguration(ctx, element)
}

// verifyConfiguration reads the configuration back and checks the codec
// element matches what was sent.
func (e *StreamEndpoint) verifyConfiguration(ctx context.Context, sent []byte) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "StreamEndpoint.verifyConfiguration",
		"seid":     e.info.SEID,
	})

	caps, err := e.cmd.GetConfiguration(ctx, e.info.SEID)
	if err != nil {
		logger.WithField("error", err.Error()).Error("GET_CONFIGURATION failed")
		return e.commandError("get configuration", err)
	}

	element, ok := caps.Get(avdtp.CategoryMediaCodec)
	if !ok {
		return fmt.Errorf("%w: no media codec in configuration", ErrConfigurationMismatch)
	}
	got, err := ParseSBCFormat(element)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigurationMismatch, err)
	}
	want, _ := ParseSBCFormat(sent)
	if got.SamplingFrequency != want.SamplingFrequency ||
		got.ChannelMode != want.ChannelMode ||
		got.BlockLength != want.BlockLength ||
		got.Subbands != want.Subbands ||
		got.AllocationMethod != want.AllocationMethod {
		logger.WithFields(logrus.Fields{
			"sent":     want.String(),
			"received": got.String(),
		}).Warn("Configuration mismatch")
		return fmt.Errorf("%w: %s", ErrConfigurationMismatch, got)
	}

	if data, ok := caps.Get(avdtp.CategoryContentProtection); ok {
		if cp, err := ParseContentProtection(data); err == nil {
			logger.WithField("type", cp.Type.String()).Debug("Content protection configured")
		}
	}

	e.report(EndpointConfigured)
	return nil
}

// Open opens the configured stream.
func (e *StreamEndpoint) Open(ctx context.Context) error {
	if err := e.cmd.Open(ctx, e.info.SEID); err != nil {
		return e.commandError("open", err)
	}
	e.report(EndpointOpen)
	return nil
}

// Start starts streaming.
func (e *StreamEndpoint) Start(ctx context.Context) error {
	if err := e.cmd.Start(ctx, e.info.SEID); err != nil {
		return e.commandError("start", err)
	}
	e.report(EndpointStreaming)
	return nil
}

// Stop suspends streaming; the stream stays open.
func (e *StreamEndpoint) Stop(ctx context.Context) error {
	if err := e.cmd.Suspend(ctx, e.info.SEID); err != nil {
		return e.commandError("suspend", err)
	}
	e.report(EndpointOpen)
	return nil
}

// Close releases the stream; the endpoint stays configured.
func (e *StreamEndpoint) Close(ctx context.Context) error {
	if err := e.cmd.CloseStream(ctx, e.info.SEID); err != nil {
		return e.commandError("close", err)
	}
	e.report(EndpointConfigured)
	return nil
}

// Abort resets the stream on the remote.
func (e *StreamEndpoint) Abort(ctx context.Context) error {
	if err := e.cmd.Abort(ctx, e.info.SEID); err != nil {
		return e.commandError("abort", err)
	}
	return nil
}

func (e *StreamEndpoint) report(status EndpointStatus) {
	logrus.WithFields(logrus.Fields{
		"function": "StreamEndpoint.report",
		"seid":     e.info.SEID,
		"status":   status.String(),
	}).Debug("Endpoint status")
	if e.notify != nil {
		e.notify(e.info.SEID, status)
	}
}

func (e *StreamEndpoint) commandError(op string, err error) error {
	return fmt.Errorf("%w: SEID %d %s: %w", ErrCommandFailed, e.info.SEID, op, err)
}
