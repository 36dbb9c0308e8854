package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/jivewave/internal/audio"
	"github.com/linuxmatters/jivewave/internal/broadcast"
	"github.com/linuxmatters/jivewave/internal/cli"
	"github.com/linuxmatters/jivewave/internal/features"
	"github.com/linuxmatters/jivewave/internal/logging"
	"github.com/linuxmatters/jivewave/internal/mains"
	"github.com/linuxmatters/jivewave/internal/spectrum"
	"github.com/linuxmatters/jivewave/internal/ui"
	"github.com/sirupsen/logrus"
)

var (
	version = "0.0.1"
)

// CLI defines the command-line interface
type CLI struct {
	Version  bool            `short:"v" help:"Show version information"`
	Config   kong.ConfigFlag `short:"c" help:"Load flag defaults from a JSON file"`
	Fast     bool            `help:"Analyse as fast as possible instead of at playback speed" group:"source"`
	Duration time.Duration   `help:"Stop after this much audio (0 runs to the end of the source)" group:"source"`
	DemoBPM  float64         `name:"demo-bpm" default:"120" help:"Tempo of the demo signal used when no file is given" group:"source"`
	Rate     int             `default:"44100" help:"Engine sample rate in Hz; sources are resampled to it" group:"engine"`
	FFTSize  int             `name:"fft-size" default:"2048" help:"FFT size in samples (even)" group:"engine"`
	Hop      int             `default:"735" help:"Samples between analysis frames" group:"engine"`
	Interval time.Duration   `default:"10ms" help:"Minimum spacing between emitted snapshots" group:"engine"`
	Detail   string          `short:"d" default:"standard" enum:"basic,standard,full" help:"Feature detail level (basic, standard, full)" group:"engine"`
	Profile  string          `short:"p" default:"responsive" enum:"smooth,responsive,punchy,sustained" help:"Amplitude envelope profile" group:"envelope"`
	Hum      string          `default:"off" help:"Mains hum notch: off, auto, 50 or 60" group:"engine"`

	AdaptiveAttack bool      `default:"true" negatable:"" help:"Speed up the envelope attack on transients and beats (--no-adaptive-attack disables)" group:"envelope"`
	AdaptiveDecay  bool      `default:"true" negatable:"" help:"Slow the envelope decay on sustained material (--no-adaptive-decay disables)" group:"envelope"`
	EnvelopeRates  []float64 `name:"envelope-rates" sep:"," placeholder:"A,D,M,H" help:"Override the profile with attack, decay, momentum and peak hold" group:"envelope"`

	Listen   string          `short:"l" default:"127.0.0.1:8080" help:"WebSocket broadcast address; empty disables broadcasting" group:"broadcast"`
	Headless bool            `help:"Disable the terminal dashboard" group:"output"`
	Logs     bool            `help:"Save a session report (<name>-jivewave.log)" group:"output"`
	Debug    string          `type:"path" help:"Write a JSON debug log to this file" group:"output"`
	File     string          `arg:"" name:"file" help:"Audio file to analyse (wav, mp3, ogg); omit for the demo signal" type:"existingfile" optional:""`
}

func main() {
	cliArgs := &CLI{}
	kong.Parse(cliArgs,
		kong.Name("jivewave"),
		kong.Description("Real-time audio feature engine for visualisers"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON),
		kong.ExplicitGroups([]kong.Group{
			{Key: "source", Title: "Source"},
			{Key: "engine", Title: "Engine"},
			{Key: "envelope", Title: "Envelope"},
			{Key: "broadcast", Title: "Broadcast"},
			{Key: "output", Title: "Output"},
		}),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	// Handle version flag
	if cliArgs.Version {
		cli.WriteBanner(os.Stdout, version)
		os.Exit(0)
	}

	if err := run(cliArgs); err != nil {
		cli.WriteError(os.Stderr, err)
		os.Exit(1)
	}
}

// engineConfig maps the flags onto a processor configuration.
func engineConfig(c *CLI) (*features.Config, error) {
	cfg := features.DefaultConfig()
	cfg.SampleRate = float64(c.Rate)
	cfg.UpdateInterval = c.Interval

	detail, err := features.ParseDetailLevel(c.Detail)
	if err != nil {
		return nil, err
	}
	cfg.DetailLevel = detail

	profile, err := features.ParseEnvelopeProfile(c.Profile)
	if err != nil {
		return nil, err
	}
	cfg.EnvelopeProfile = profile
	cfg.AdaptiveAttack = c.AdaptiveAttack
	cfg.AdaptiveDecay = c.AdaptiveDecay

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// closeInto runs closer and records its failure in *errp unless an earlier
// error is already there.
func closeInto(errp *error, closer func() error, what string) {
	if cerr := closer(); cerr != nil && *errp == nil {
		*errp = fmt.Errorf("failed to close %s: %w", what, cerr)
	}
}

// openSource returns the file reader or the demo synth, plus what is known
// about its length.
func openSource(c *CLI) (audio.Source, *audio.Metadata, func() error, error) {
	if c.File == "" {
		opts := audio.DefaultSynthOptions(c.Rate)
		opts.BPM = c.DemoBPM
		synth, err := audio.NewSynth(opts)
		if err != nil {
			return nil, nil, nil, err
		}
		return synth, nil, func() error { return nil }, nil
	}

	reader, meta, err := audio.OpenAudioFile(c.File, c.Rate)
	if err != nil {
		return nil, nil, nil, err
	}
	return reader, meta, reader.Close, nil
}

func run(c *CLI) (err error) {
	cfg, err := engineConfig(c)
	if err != nil {
		return err
	}
	hum, err := mains.Resolve(c.Hum)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal, so without a debug file the logger
	// stays quiet; headless runs log to stderr.
	logger := logging.Discard()
	closeLog := func() error { return nil }
	if c.Debug != "" || c.Headless {
		logger, closeLog, err = logging.NewLogger(c.Debug, c.Debug != "")
		if err != nil {
			return err
		}
	}
	defer closeInto(&err, closeLog, "debug log")
	ui.SetLogger(logger)

	src, meta, closeSrc, err := openSource(c)
	if err != nil {
		return err
	}
	defer closeInto(&err, closeSrc, "audio source")

	sourceName := "demo signal"
	if c.File != "" {
		sourceName = c.File
	}

	fanout := broadcast.NewFanout()
	sess, err := newSession(cfg, spectrum.Options{
		SampleRate:   cfg.SampleRate,
		FFTSize:      c.FFTSize,
		Hop:          c.Hop,
		HumFrequency: hum,
	}, fanout, logger)
	if err != nil {
		return err
	}
	if err := sess.configureEnvelope(c.EnvelopeRates); err != nil {
		return err
	}
	sess.realtime = !c.Fast
	if c.Duration > 0 {
		sess.maxSamples = int64(c.Duration.Seconds() * float64(c.Rate))
	}
	if meta != nil && meta.Duration > 0 {
		sess.totalSamples = int64(meta.Duration * float64(c.Rate))
	}
	if sess.maxSamples > 0 && (sess.totalSamples == 0 || sess.maxSamples < sess.totalSamples) {
		sess.totalSamples = sess.maxSamples
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Broadcast server
	serverDone := make(chan error, 1)
	var server *broadcast.Server
	if c.Listen != "" {
		server = broadcast.NewServer(c.Listen, fanout, logger)
		sess.clients = server.Clients
		go func() { serverDone <- server.Run(ctx) }()
	} else {
		serverDone <- nil
	}

	logger.WithFields(logrus.Fields{
		"source":  sourceName,
		"rate":    c.Rate,
		"detail":  cfg.DetailLevel.String(),
		"profile": cfg.EnvelopeProfile.String(),
		"hum":     hum,
	}).Info("Starting analysis")

	var program *tea.Program
	if !c.Headless {
		model := ui.NewModel(sourceName)
		sess.updates = model.Updates
		sess.controls = model.Controls
		program = tea.NewProgram(model, tea.WithAltScreen())
	} else {
		cli.WriteBanner(os.Stdout, version)
		cli.WriteField(os.Stdout, "Source", sourceName)
		cli.WriteField(os.Stdout, "Rate", strconv.Itoa(c.Rate)+" Hz")
		cli.WriteField(os.Stdout, "Envelope", cfg.EnvelopeProfile.String())
		if c.Listen != "" {
			cli.WriteField(os.Stdout, "Listen", "ws://"+c.Listen+"/ws")
		}
	}

	// Producer
	startTime := time.Now()
	producerDone := make(chan error, 1)
	go func() {
		if program != nil {
			start := ui.SourceStartMsg{
				Name:           sourceName,
				SampleRate:     c.Rate,
				Listen:         c.Listen,
				Profile:        cfg.EnvelopeProfile,
				AdaptiveAttack: cfg.AdaptiveAttack,
				AdaptiveDecay:  cfg.AdaptiveDecay,
			}
			if meta != nil {
				start.Channels = meta.Channels
				start.Duration = meta.Duration
			}
			program.Send(start)
		}

		err := sess.run(ctx, src)

		reportPath := ""
		if c.Logs {
			reportPath, err = writeReport(c, cfg, meta, hum, sess, startTime, err)
		}
		if err != nil {
			logger.WithError(err).Error("Analysis failed")
		}
		if program != nil {
			program.Send(ui.SourceCompleteMsg{
				Frames:     sess.analyzer.Frames(),
				ReportPath: reportPath,
				Error:      err,
			})
		}
		producerDone <- err
	}()

	var runErr error
	if program != nil {
		if _, err := program.Run(); err != nil {
			runErr = fmt.Errorf("UI error: %w", err)
		}
		// Quitting the dashboard stops the producer
		cancel()
		if err := <-producerDone; err != nil && runErr == nil {
			runErr = err
		}
	} else {
		runErr = <-producerDone
		cli.WriteField(os.Stdout, "Frames", strconv.FormatUint(sess.analyzer.Frames(), 10))
		cli.WriteField(os.Stdout, "Snapshots", strconv.Itoa(sess.stats.Snapshots))
	}

	cancel()
	fanout.Close()
	if err := <-serverDone; err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// writeReport generates the session report, keeping runErr unless the report
// itself fails.
func writeReport(c *CLI, cfg *features.Config, meta *audio.Metadata, hum int, sess *session, start time.Time, runErr error) (string, error) {
	diag := sess.proc.Diagnostics()
	path, err := logging.GenerateReport(logging.ReportData{
		SourcePath:   c.File,
		StartTime:    start,
		EndTime:      time.Now(),
		Config:       cfg,
		Metadata:     meta,
		FFTSize:      c.FFTSize,
		Hop:          c.Hop,
		HumFrequency: hum,
		Frames:       sess.analyzer.Frames(),
		Offered:      sess.fanout.Offered(),
		Dropped:      sess.fanout.Dropped(),
		Stats:        sess.stats,
		Diagnostics:  &diag,
	})
	if err != nil {
		return "", errors.Join(runErr, fmt.Errorf("failed to generate report: %w", err))
	}
	if c.Headless {
		cli.WriteField(os.Stdout, "Report", filepath.Clean(path))
	}
	return path, runErr
}
