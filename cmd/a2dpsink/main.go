// Package main plays an MP3 file on a Bluetooth A2DP sink.
//
// The device must already be paired and connected by the host's Bluetooth
// stack; the tool only opens the SDP, AVDTP signalling and media channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/opd-ai/a2dpsink"
	"github.com/opd-ai/a2dpsink/a2dp"
	"github.com/opd-ai/a2dpsink/l2cap"
	"github.com/opd-ai/a2dpsink/player"
	"github.com/opd-ai/a2dpsink/sdp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	remote         string
	local          string
	input          string
	configFile     string
	recordFile     string
	profile        string
	connectTimeout time.Duration
	chunkSize      int
	chunks         int
	logLevel       string
	jsonLogs       bool
}

func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.remote, "device", "", "Bluetooth address of the sink (required)")
	flag.StringVar(&config.local, "adapter", "", "Bluetooth address of the local adapter (default: any)")
	flag.StringVar(&config.configFile, "config", "", "JSON options file")
	flag.StringVar(&config.recordFile, "record", "", "JSON audio service record; skips SDP discovery")
	flag.StringVar(&config.profile, "profile", "", "SBC quality profile (compatible, lq, mq, hq, xq)")
	flag.DurationVar(&config.connectTimeout, "connect-timeout", 15*time.Second, "How long to wait for the sink")
	flag.IntVar(&config.chunkSize, "chunk-size", 4096, "Shared buffer chunk size in bytes")
	flag.IntVar(&config.chunks, "chunks", 8, "Number of shared buffer chunks")
	flag.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&config.jsonLogs, "json", false, "Log in JSON")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -device XX:XX:XX:XX:XX:XX [options] file.mp3\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	config.input = flag.Arg(0)
	return config
}

func validateCLIConfig(config *CLIConfig) error {
	if config.remote == "" {
		return fmt.Errorf("a device address is required")
	}
	if config.input == "" {
		return fmt.Errorf("an MP3 file is required")
	}
	if config.chunkSize <= 0 || config.chunks <= 0 {
		return fmt.Errorf("chunk size and count must be positive")
	}
	if config.connectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

func configureLogging(config *CLIConfig) error {
	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if config.jsonLogs {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// hostDevice is a device the host stack has already paired and connected.
type hostDevice struct {
	remote, local l2cap.BDAddr
	callback      func()
}

func (d *hostDevice) RemoteAddress() l2cap.BDAddr { return d.remote }
func (d *hostDevice) LocalAddress() l2cap.BDAddr  { return d.local }
func (d *hostDevice) IsConnected() bool           { return true }
func (d *hostDevice) IsBonded() bool              { return true }

func (d *hostDevice) Callback(fn func()) error {
	d.callback = fn
	return nil
}

func loadOptions(config *CLIConfig) (*a2dpsink.Options, error) {
	opts := a2dpsink.NewOptions()
	if config.configFile != "" {
		data, err := os.ReadFile(config.configFile)
		if err != nil {
			return nil, err
		}
		if opts, err = a2dpsink.LoadOptions(data); err != nil {
			return nil, err
		}
	}
	if config.profile != "" {
		var profile a2dp.QualityProfile
		if err := profile.UnmarshalText([]byte(config.profile)); err != nil {
			return nil, err
		}
		opts.Codec = opts.Codec.WithProfile(profile)
	}
	return opts, nil
}

func loadRecord(path string) (*sdp.AudioServiceRecord, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	record, err := sdp.ParseAudioServiceRecord(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// waitConnected blocks until the session settles after Assign.
func waitConnected(ctx context.Context, states <-chan a2dpsink.State, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case state := <-states:
			switch state {
			case a2dpsink.StateConnected:
				return nil
			case a2dpsink.StateConnectedBadDevice:
				return a2dpsink.ErrBadDevice
			case a2dpsink.StateConnectedRestricted:
				return fmt.Errorf("%w: device is not bonded", a2dpsink.ErrUnavailable)
			}
		case <-timer.C:
			return fmt.Errorf("no audio sink after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// contextWriter lets io.Copy give up when playback ends.
type contextWriter struct {
	ctx  context.Context
	ring *player.RingBuffer
}

func (w contextWriter) Write(p []byte) (int, error) {
	return w.ring.WriteContext(w.ctx, p)
}

func run(ctx context.Context, config *CLIConfig) error {
	logger := logrus.WithField("function", "run")

	remote, err := l2cap.ParseBDAddr(config.remote)
	if err != nil {
		return err
	}
	var local l2cap.BDAddr
	if config.local != "" {
		if local, err = l2cap.ParseBDAddr(config.local); err != nil {
			return err
		}
	}
	opts, err := loadOptions(config)
	if err != nil {
		return err
	}
	opts.Store = a2dpsink.NewMemoryStore()
	record, err := loadRecord(config.recordFile)
	if err != nil {
		return err
	}

	f, err := os.Open(config.input)
	if err != nil {
		return err
	}
	defer f.Close()
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", config.input, err)
	}

	session, err := a2dpsink.NewSinkSession(&hostDevice{remote: remote, local: local}, opts)
	if err != nil {
		return err
	}
	states := make(chan a2dpsink.State, 16)
	session.OnStateChanged(func(s a2dpsink.State) {
		select {
		case states <- s:
		default:
		}
	})

	if err := session.Assign(record); err != nil {
		return err
	}
	defer session.Revoke()
	if err := waitConnected(ctx, states, config.connectTimeout); err != nil {
		return err
	}

	ring := player.NewRingBuffer(config.chunkSize, config.chunks)
	// go-mp3 always decodes to 16-bit stereo.
	format := a2dp.StreamFormat{SampleRate: uint32(decoder.SampleRate()), Channels: 2, Resolution: 16}
	if err := session.Open(ctx, ring, format); err != nil {
		return err
	}
	defer session.Close(context.Background())

	if stream, err := session.Stream(); err == nil {
		logger.WithFields(logrus.Fields{
			"samplerate": stream.SampleRate,
			"channels":   stream.Channels,
			"bitrate":    stream.BitRate,
			"kind":       session.Kind().String(),
		}).Info("Streaming")
	}
	if err := session.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	playCtx, stopProducer := context.WithCancel(gctx)
	defer stopProducer()

	g.Go(func() error {
		defer ring.Close()
		_, err := io.Copy(contextWriter{ctx: playCtx, ring: ring}, decoder)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer stopProducer()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if !session.IsPlaying() {
					return nil
				}
				ms, _ := session.Time()
				delay, _ := session.Delay()
				logger.WithFields(logrus.Fields{
					"position_ms":   ms,
					"delay_samples": delay,
				}).Debug("Playing")
			}
		}
	})

	err = g.Wait()
	if stats, statsErr := session.Statistics(); statsErr == nil {
		logger.WithFields(logrus.Fields{
			"packets":   stats.Transport.PacketsSent,
			"underruns": stats.Playback.Underruns,
			"errors":    stats.Transport.SendErrors,
		}).Info("Playback finished")
	}
	if stopErr := session.Stop(context.Background()); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func main() {
	config := parseCLIFlags()
	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}
	if err := configureLogging(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, config); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Playback failed")
		os.Exit(1)
	}
}
