package a2dpsink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/a2dpsink/a2dp"
	"github.com/opd-ai/a2dpsink/player"
	"github.com/opd-ai/a2dpsink/rtp"
	"github.com/opd-ai/a2dpsink/sdp"
	"github.com/sirupsen/logrus"
)

// CodecProperties describes the codec of the connected endpoint.
type CodecProperties struct {
	Name     string             `json:"name"`
	Settings a2dp.CodecSettings `json:"settings"`
}

// StreamProperties describes the negotiated stream.
type StreamProperties struct {
	BitRate    uint32 `json:"bitrate"`
	SampleRate uint32 `json:"samplerate"`
	Channels   uint8  `json:"channels"`
	Resolution uint8  `json:"resolution"`
}

// ContentProtectionProperties describes the protection scheme the remote
// advertised and whether it was requested.
type ContentProtectionProperties struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// Statistics combines the transport and playback counters of the open
// stream.
type Statistics struct {
	Transport rtp.Statistics    `json:"transport"`
	Playback  player.Statistics `json:"playback"`
}

// SinkSession streams PCM from a shared buffer to the audio sink of one
// remote device. It follows the device's connection state, discovers the
// sink's service and SBC endpoint, and drives the stream through
// Open, Start, Stop and Close.
type SinkSession struct {
	id     uuid.UUID
	device Device
	opts   Options

	discovery  *sdp.ServiceDiscovery
	signalling *a2dp.SignallingSession
	transport  *rtp.TransportSession
	jobs       *jobSlot

	// opMu serialises protocol operations and may be held across socket
	// exchanges. mu guards the fields below and is never held that long.
	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	service   *sdp.AudioServiceRecord
	kind      DeviceKind
	endpoint  *a2dp.StreamEndpoint
	pump      *player.PlaybackPump
	codec     a2dp.CodecSettings
	latency   int16
	onState   func(State)
	ctx       context.Context
	cancelCtx context.CancelFunc
}

// NewSinkSession creates an unassigned session for device. A nil opts
// uses NewOptions.
func NewSinkSession(device Device, opts *Options) (*SinkSession, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: no device", ErrBadRequest)
	}
	if opts == nil {
		opts = NewOptions()
	}

	s := &SinkSession{
		id:      uuid.New(),
		device:  device,
		opts:    *opts,
		jobs:    newJobSlot("device-update"),
		state:   StateUnassigned,
		codec:   opts.Codec,
		latency: opts.Latency,
	}
	dialer := s.opts.dialer()
	local := device.LocalAddress()
	s.discovery = sdp.NewServiceDiscovery(dialer, local, s.opts.Timeouts.serviceDiscovery())
	s.signalling = a2dp.NewSignallingSession(dialer, local, s.opts.LocalSEID, s.opts.Timeouts.signalling(), s.onEndpointStatus)
	s.transport = rtp.NewTransportSession(s.opts.SSRC, int(s.opts.MTU))
	s.transport.SetTimeProvider(s.opts.TimeProvider)

	s.logger("NewSinkSession").Debug("Sink session created")
	return s, nil
}

func (s *SinkSession) logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  s.id.String(),
		"remote":   s.device.RemoteAddress().String(),
	})
}

// ID returns the session identifier used in log lines.
func (s *SinkSession) ID() uuid.UUID {
	return s.id
}

// State returns the current state.
func (s *SinkSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChanged sets the function called after every state change. It
// runs synchronously on the goroutine that caused the change, possibly
// while an operation is in progress, so it must not call back into the
// session.
func (s *SinkSession) OnStateChanged(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

func (s *SinkSession) setState(state State) {
	s.mu.Lock()
	prev := s.state
	if prev == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	fn := s.onState
	s.mu.Unlock()

	s.logger("SinkSession.setState").WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   state.String(),
	}).Info("Sink state changed")

	if fn != nil {
		fn(state)
	}
}

// Assign binds the session to its device and starts following the
// device's connection state. A non-nil record is trusted as the device's
// sink service and skips SDP discovery; otherwise a record stored for the
// device is used when present.
func (s *SinkSession) Assign(record *sdp.AudioServiceRecord) error {
	if state := s.State(); state != StateUnassigned {
		return fmt.Errorf("%w: assign in state %s", ErrIllegalState, state)
	}
	if err := s.device.Callback(s.DeviceUpdated); err != nil {
		return fmt.Errorf("%w: device callback: %w", ErrUnavailable, err)
	}

	stored, haveStored := s.loadSettings()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	switch {
	case record != nil:
		service := *record
		s.service = &service
	case haveStored:
		s.service = &stored.Service
	}
	if haveStored && stored.Codec.Profile != nil {
		s.codec.Profile = stored.Codec.Profile
	}
	if s.service != nil {
		s.kind = DeviceKindFor(s.service.Features)
	}
	s.ctx, s.cancelCtx = ctx, cancel
	s.mu.Unlock()

	s.setState(StateDisconnected)
	if s.device.IsConnected() {
		s.DeviceUpdated()
	}
	return nil
}

// Revoke releases the device: the callback is unregistered, pending
// device work is cancelled and every channel is closed.
func (s *SinkSession) Revoke() error {
	s.mu.Lock()
	if s.state == StateUnassigned {
		s.mu.Unlock()
		return fmt.Errorf("%w: not assigned", ErrIllegalState)
	}
	cancel := s.cancelCtx
	s.mu.Unlock()

	if err := s.device.Callback(nil); err != nil {
		s.logger("SinkSession.Revoke").WithField("error", err.Error()).Warn("Failed to unregister device callback")
	}
	cancel()
	s.jobs.Wait()

	s.teardown()
	s.setState(StateUnassigned)
	return nil
}

// DeviceUpdated is the device callback. The work runs on the session's
// job slot; updates arriving while it runs collapse into one rerun.
func (s *SinkSession) DeviceUpdated() {
	s.mu.Lock()
	ctx := s.ctx
	assigned := s.state != StateUnassigned
	s.mu.Unlock()

	if !assigned || ctx == nil {
		return
	}
	s.jobs.Submit(func() { s.handleDeviceUpdate(ctx) })
}

// WaitIdle blocks until no device update is being handled.
func (s *SinkSession) WaitIdle() {
	s.jobs.Wait()
}

func (s *SinkSession) handleDeviceUpdate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if !s.device.IsConnected() {
		if s.State() != StateDisconnected {
			s.logger("SinkSession.handleDeviceUpdate").Info("Device disconnected")
			s.teardown()
			s.setState(StateDisconnected)
		}
		return
	}

	if !s.device.IsBonded() {
		if s.State() != StateConnectedRestricted {
			s.logger("SinkSession.handleDeviceUpdate").Warn("Device is not bonded, access restricted")
			s.teardown()
			s.setState(StateConnectedRestricted)
		}
		return
	}

	switch s.State() {
	case StateDisconnected, StateConnectedRestricted:
		s.connect(ctx)
	}
}

// connect finds the sink service and its SBC endpoint.
func (s *SinkSession) connect(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	logger := s.logger("SinkSession.connect")

	s.mu.Lock()
	known := s.service
	s.mu.Unlock()

	var service sdp.AudioServiceRecord
	if known != nil && known.IsSink() {
		service = *known
		logger.WithField("service", service.String()).Debug("Using known service record")
	} else {
		found, err := s.discoverService(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithField("error", err.Error()).Warn("No audio sink service")
			s.setState(StateConnectedBadDevice)
			return
		}
		service = found
	}

	endpoint, err := s.discoverEndpoint(ctx, service.PSM)
	if err != nil {
		s.signalling.Disconnect()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("error", err.Error()).Warn("No usable stream endpoint")
		s.setState(StateConnectedBadDevice)
		return
	}

	s.mu.Lock()
	s.service = &service
	s.kind = DeviceKindFor(service.Features)
	s.endpoint = endpoint
	s.mu.Unlock()
	s.persist()

	logger.WithFields(logrus.Fields{
		"service": service.String(),
		"kind":    DeviceKindFor(service.Features).String(),
		"seid":    endpoint.SEID(),
	}).Info("Audio sink connected")
	s.setState(StateConnected)
}

func (s *SinkSession) discoverService(ctx context.Context) (sdp.AudioServiceRecord, error) {
	if err := s.discovery.Connect(ctx, s.device.RemoteAddress()); err != nil {
		return sdp.AudioServiceRecord{}, err
	}
	defer s.discovery.Disconnect()

	services, err := s.discovery.Discover(ctx)
	if err != nil {
		return sdp.AudioServiceRecord{}, err
	}
	if len(services) == 0 {
		return sdp.AudioServiceRecord{}, ErrBadDevice
	}
	if len(services) > 1 {
		s.logger("SinkSession.discoverService").WithField("services", len(services)).
			Info("More than one audio sink service, using the first")
	}
	return services[0], nil
}

// discoverEndpoint connects signalling on the PSM the sink service
// advertised and picks the first endpoint with a supported codec.
func (s *SinkSession) discoverEndpoint(ctx context.Context, psm uint16) (*a2dp.StreamEndpoint, error) {
	if err := s.signalling.Connect(ctx, s.device.RemoteAddress(), psm); err != nil {
		return nil, err
	}
	endpoints, err := s.signalling.Discover(ctx)
	if err != nil {
		return nil, err
	}

	logger := s.logger("SinkSession.discoverEndpoint")
	for _, ep := range endpoints {
		codec := ep.Codec()
		if codec == nil {
			continue
		}
		if !codec.Supported() {
			logger.WithFields(logrus.Fields{
				"seid":  ep.SEID(),
				"codec": codec.Name(),
			}).Debug("Skipping endpoint with unsupported codec")
			continue
		}
		if cp := ep.ContentProtection(); cp != nil {
			logger.WithFields(logrus.Fields{
				"seid":               ep.SEID(),
				"content_protection": cp.Type.String(),
			}).Debug("Endpoint offers content protection")
		}
		return ep, nil
	}
	return nil, fmt.Errorf("%w: no SBC endpoint among %d", ErrBadDevice, len(endpoints))
}

// onEndpointStatus follows the remote stream back to CONNECTED once it is
// closed. READY and STREAMING are published by Open, Start and Stop after
// the local side of the stream is in place as well.
func (s *SinkSession) onEndpointStatus(seid uint8, status a2dp.EndpointStatus) {
	if status == a2dp.EndpointConfigured {
		s.setState(StateConnected)
	}
}

// teardown drops every channel without talking to the remote.
func (s *SinkSession) teardown() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	pump := s.pump
	s.pump = nil
	s.endpoint = nil
	s.mu.Unlock()

	logger := s.logger("SinkSession.teardown")
	// With the transport gone the pump parks on its next iteration.
	if err := s.transport.Disconnect(); err != nil {
		logger.WithField("error", err.Error()).Debug("Transport disconnect")
	}
	if pump != nil {
		pump.Stop()
	}
	if err := s.signalling.Disconnect(); err != nil {
		logger.WithField("error", err.Error()).Debug("Signalling disconnect")
	}
	if err := s.discovery.Disconnect(); err != nil {
		logger.WithField("error", err.Error()).Debug("Discovery disconnect")
	}
}

// Open configures the endpoint for format, opens the stream and the media
// transport, and prepares a playback pump reading from buffer. The session
// must be CONNECTED. It becomes READY only once the transport and pump are
// in place; if either fails, the stream is closed again and the session
// stays CONNECTED.
func (s *SinkSession) Open(ctx context.Context, buffer player.ReceiveBuffer, format a2dp.StreamFormat) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	ep, state, prefs := s.endpoint, s.state, s.codec
	s.mu.Unlock()

	switch {
	case state == StateReady || state == StateStreaming:
		return fmt.Errorf("%w: stream already open", ErrUnavailable)
	case ep == nil || state != StateConnected:
		return fmt.Errorf("%w: open in state %s", ErrIllegalState, state)
	case buffer == nil || !buffer.IsValid():
		return fmt.Errorf("%w: %w", ErrBadRequest, player.ErrBufferUnavailable)
	case format.Resolution != 0 && format.Resolution != 16:
		return fmt.Errorf("%w: %d bit samples", ErrBadRequest, format.Resolution)
	}

	logger := s.logger("SinkSession.Open")

	settings := format.Settings()
	settings.Profile = prefs.Profile
	if err := ep.Configure(ctx, settings, s.opts.ContentProtection); err != nil {
		if errors.Is(err, a2dp.ErrBadRequest) {
			return fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return fmt.Errorf("configure endpoint: %w", err)
	}
	if err := ep.Open(ctx); err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	pump, err := s.openTransport(ctx, ep, buffer)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Media transport failed")
		s.closeEndpoint(ctx, ep)
		return err
	}

	s.mu.Lock()
	s.pump = pump
	latency := s.latency
	s.mu.Unlock()
	pump.SetLatency(s.deviceLatency(latency))

	logger.WithFields(logrus.Fields{
		"codec": ep.Codec().Configuration().String(),
	}).Info("Stream open")
	s.setState(StateReady)
	return nil
}

func (s *SinkSession) openTransport(ctx context.Context, ep *a2dp.StreamEndpoint, buffer player.ReceiveBuffer) (*player.PlaybackPump, error) {
	conn, err := s.signalling.OpenTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpeningFailed, err)
	}
	if err := s.transport.Connect(conn, *ep.Codec()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpeningFailed, err)
	}
	pump, err := player.NewPlaybackPump(s.transport, buffer, s.opts.TimeProvider)
	if err != nil {
		s.transport.Disconnect()
		return nil, fmt.Errorf("%w: %w", ErrOpeningFailed, err)
	}
	return pump, nil
}

// closeEndpoint closes the stream, aborting it when the remote refuses.
func (s *SinkSession) closeEndpoint(ctx context.Context, ep *a2dp.StreamEndpoint) error {
	err := ep.Close(ctx)
	if err == nil {
		return nil
	}
	logger := s.logger("SinkSession.closeEndpoint")
	logger.WithField("error", err.Error()).Warn("Close refused, aborting stream")
	if abortErr := ep.Abort(ctx); abortErr != nil {
		logger.WithField("error", abortErr.Error()).Warn("Abort failed")
	}
	s.setState(StateConnected)
	return err
}

// Start starts the remote stream and the playback pump, and moves the
// session to STREAMING. Starting a streaming session does nothing. When
// the pump cannot play, the remote stream is suspended again and the
// session stays READY.
func (s *SinkSession) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	ep, pump, state := s.endpoint, s.pump, s.state
	s.mu.Unlock()

	if state == StateStreaming {
		return nil
	}
	if state != StateReady || ep == nil || pump == nil {
		return fmt.Errorf("%w: start in state %s", ErrIllegalState, state)
	}

	if err := ep.Start(ctx); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	if err := pump.Play(); err != nil {
		if stopErr := ep.Stop(ctx); stopErr != nil {
			s.logger("SinkSession.Start").WithField("error", stopErr.Error()).Warn("Failed to suspend after playback error")
		}
		return fmt.Errorf("start playback: %w", err)
	}
	s.setState(StateStreaming)
	return nil
}

// Stop plays out what the pump holds and suspends the stream, which stays
// open, and moves the session back to READY. Stopping a READY session does
// nothing. When the remote refuses to suspend, the session stays STREAMING
// and Stop may be retried.
func (s *SinkSession) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	ep, pump, state := s.endpoint, s.pump, s.state
	s.mu.Unlock()

	if state == StateReady {
		return nil
	}
	if state != StateStreaming || ep == nil || pump == nil {
		return fmt.Errorf("%w: stop in state %s", ErrIllegalState, state)
	}

	pump.Stop()
	if err := ep.Stop(ctx); err != nil {
		return fmt.Errorf("suspend stream: %w", err)
	}
	s.setState(StateReady)
	return nil
}

// Close stops playback, closes the stream and disconnects the media
// transport. The endpoint stays configured and the session returns to
// CONNECTED.
func (s *SinkSession) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	ep, pump, state := s.endpoint, s.pump, s.state
	s.mu.Unlock()

	if (state != StateReady && state != StateStreaming) || ep == nil || pump == nil {
		return fmt.Errorf("%w: close in state %s", ErrIllegalState, state)
	}

	pump.Stop()

	var errs []error
	if err := s.closeEndpoint(ctx, ep); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := s.transport.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect transport: %w", err))
	}

	s.mu.Lock()
	s.pump = nil
	s.mu.Unlock()

	s.logger("SinkSession.Close").WithField("statistics", s.transport.Statistics()).Info("Stream closed")
	return errors.Join(errs...)
}

func (s *SinkSession) activePump() (*player.PlaybackPump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pump == nil {
		return nil, fmt.Errorf("%w: no open stream", ErrIllegalState)
	}
	return s.pump, nil
}

// IsPlaying reports whether the playback pump is running. It turns false
// once the producer closes the buffer and everything has been sent.
func (s *SinkSession) IsPlaying() bool {
	pump, err := s.activePump()
	return err == nil && pump.IsPlaying()
}

// Time returns the playback position in milliseconds.
func (s *SinkSession) Time() (uint32, error) {
	pump, err := s.activePump()
	if err != nil {
		return 0, err
	}
	ms, err := pump.Time()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIllegalState, err)
	}
	return ms, nil
}

// SetTime sets the playback position, in milliseconds, that Time counts
// from.
func (s *SinkSession) SetTime(ms uint32) error {
	pump, err := s.activePump()
	if err != nil {
		return err
	}
	pump.SetTime(ms)
	return nil
}

// Latency returns the extra device latency in milliseconds.
func (s *SinkSession) Latency() int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// SetLatency sets the extra device latency. It may be negative down to
// minus the host latency, and at most MaxLatency.
func (s *SinkSession) SetLatency(ms int16) error {
	if int(ms) < -int(s.opts.HostLatency) || int(ms) > MaxLatency {
		return fmt.Errorf("%w: latency %d ms outside [-%d, %d]", ErrBadRequest, ms, s.opts.HostLatency, MaxLatency)
	}

	s.mu.Lock()
	s.latency = ms
	pump := s.pump
	s.mu.Unlock()

	if pump != nil {
		pump.SetLatency(s.deviceLatency(ms))
	}
	return nil
}

func (s *SinkSession) deviceLatency(ms int16) uint16 {
	total := int(s.opts.HostLatency) + int(ms)
	if total < 0 {
		return 0
	}
	return uint16(total)
}

// Delay returns the samples between the producer and the remote speaker.
func (s *SinkSession) Delay() (uint32, error) {
	pump, err := s.activePump()
	if err != nil {
		return 0, err
	}
	delay, err := pump.Delay()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIllegalState, err)
	}
	return delay, nil
}

func (s *SinkSession) activeCodec() (*a2dp.StreamEndpoint, *a2dp.Codec, error) {
	s.mu.Lock()
	ep := s.endpoint
	s.mu.Unlock()
	if ep == nil {
		return nil, nil, fmt.Errorf("%w: no endpoint", ErrIllegalState)
	}
	codec := ep.Codec()
	if codec == nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrIllegalState, a2dp.ErrNoCodec)
	}
	return ep, codec, nil
}

// Codec describes the endpoint's codec and its negotiated settings.
func (s *SinkSession) Codec() (CodecProperties, error) {
	_, codec, err := s.activeCodec()
	if err != nil {
		return CodecProperties{}, err
	}
	return CodecProperties{Name: codec.Name(), Settings: codec.Configuration()}, nil
}

// Stream describes the negotiated stream format.
func (s *SinkSession) Stream() (StreamProperties, error) {
	_, codec, err := s.activeCodec()
	if err != nil {
		return StreamProperties{}, err
	}
	format := codec.StreamFormat()
	return StreamProperties{
		BitRate:    codec.BitRate(),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Resolution: format.Resolution,
	}, nil
}

// ContentProtection describes the protection scheme of the endpoint. It
// returns ErrUnavailable when the remote advertised none.
func (s *SinkSession) ContentProtection() (ContentProtectionProperties, error) {
	ep, _, err := s.activeCodec()
	if err != nil {
		return ContentProtectionProperties{}, err
	}
	cp := ep.ContentProtection()
	if cp == nil {
		return ContentProtectionProperties{}, fmt.Errorf("%w: no content protection", ErrUnavailable)
	}
	return ContentProtectionProperties{Type: cp.Type.String(), Enabled: ep.ContentProtectionEnabled()}, nil
}

// Service returns the sink service record, if one is known.
func (s *SinkSession) Service() (sdp.AudioServiceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil {
		return sdp.AudioServiceRecord{}, false
	}
	return *s.service, true
}

// Kind returns the device kind derived from the sink service.
func (s *SinkSession) Kind() DeviceKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// SetProfile changes the quality profile requested on the next Open and
// stores it with the device settings.
func (s *SinkSession) SetProfile(profile a2dp.QualityProfile) {
	s.mu.Lock()
	s.codec = s.codec.WithProfile(profile)
	s.mu.Unlock()
	s.persist()
}

// Statistics returns the counters of the open stream.
func (s *SinkSession) Statistics() (Statistics, error) {
	pump, err := s.activePump()
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{Transport: s.transport.Statistics(), Playback: pump.Statistics()}, nil
}

func (s *SinkSession) loadSettings() (DeviceSettings, bool) {
	if s.opts.Store == nil {
		return DeviceSettings{}, false
	}
	logger := s.logger("SinkSession.loadSettings")

	data, err := s.opts.Store.Load(s.device.RemoteAddress())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithField("error", err.Error()).Warn("Failed to load device settings")
		}
		return DeviceSettings{}, false
	}
	settings, err := ParseDeviceSettings(data)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Ignoring stored device settings")
		return DeviceSettings{}, false
	}
	logger.WithField("service", settings.Service.String()).Debug("Device settings loaded")
	return settings, true
}

func (s *SinkSession) persist() {
	if s.opts.Store == nil {
		return
	}

	s.mu.Lock()
	service := s.service
	codec := s.codec
	s.mu.Unlock()
	if service == nil {
		return
	}

	logger := s.logger("SinkSession.persist")
	data, err := DeviceSettings{Service: *service, Codec: codec}.Marshal()
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Failed to encode device settings")
		return
	}
	if err := s.opts.Store.Save(s.device.RemoteAddress(), data); err != nil {
		logger.WithField("error", err.Error()).Warn("Failed to save device settings")
	}
}
