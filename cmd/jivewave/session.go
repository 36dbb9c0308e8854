package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/jivewave/internal/audio"
	"github.com/linuxmatters/jivewave/internal/broadcast"
	"github.com/linuxmatters/jivewave/internal/features"
	"github.com/linuxmatters/jivewave/internal/logging"
	"github.com/linuxmatters/jivewave/internal/spectrum"
	"github.com/linuxmatters/jivewave/internal/ui"
	"github.com/sirupsen/logrus"
)

// session owns the producer side of a run: it reads the source, frames it
// into spectra, runs the feature processor and hands each emitted snapshot
// to the broadcaster, the dashboard and the report statistics. Everything
// here runs on one goroutine.
type session struct {
	analyzer *spectrum.Analyzer
	proc     *features.Processor
	fanout   *broadcast.Fanout
	stats    *logging.SessionStats
	log      *logrus.Logger

	updates  chan tea.Msg            // Dashboard feed, nil when headless
	controls chan ui.EnvelopeControl // Envelope changes from the dashboard, nil when headless
	clients  func() int
	realtime bool

	totalSamples int64 // For progress; 0 when unknown
	maxSamples   int64 // Stop after this many samples; 0 for no limit

	read int64
}

func newSession(cfg *features.Config, opts spectrum.Options, fanout *broadcast.Fanout, logger *logrus.Logger) (*session, error) {
	analyzer, err := spectrum.NewAnalyzer(opts)
	if err != nil {
		return nil, err
	}
	proc, err := features.NewProcessor(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &session{
		analyzer: analyzer,
		proc:     proc,
		fanout:   fanout,
		stats:    logging.NewSessionStats(),
		log:      logger,
		clients:  func() int { return 0 },
	}, nil
}

// run consumes src until it ends, the sample limit is hit or ctx is
// cancelled. Cancellation is not an error.
func (s *session) run(ctx context.Context, src audio.Source) error {
	rate := float64(src.SampleRate())
	buf := make([]float64, max(int(s.analyzer.FrameInterval()*rate), 64))
	start := time.Now()

	var pace *time.Timer
	if s.realtime {
		pace = time.NewTimer(0)
		defer pace.Stop()
	}

	for ctx.Err() == nil {
		s.applyControls()

		chunk := buf
		if s.maxSamples > 0 {
			remaining := s.maxSamples - s.read
			if remaining <= 0 {
				break
			}
			if remaining < int64(len(chunk)) {
				chunk = chunk[:remaining]
			}
		}

		n, err := src.Read(chunk)
		if n > 0 {
			s.analyzer.Process(chunk[:n], s.handleFrame)
			s.read += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}

		if pace != nil {
			due := start.Add(time.Duration(float64(s.read) / rate * float64(time.Second)))
			if wait := time.Until(due); wait > 0 {
				pace.Reset(wait)
				select {
				case <-ctx.Done():
				case <-pace.C:
				}
			}
		}
	}

	if snap, ok := s.proc.TakePending(); ok {
		s.emit(snap)
	}
	s.log.WithFields(logrus.Fields{
		"frames":    s.analyzer.Frames(),
		"snapshots": s.stats.Snapshots,
		"samples":   s.read,
	}).Info("Source finished")
	return nil
}

// applyControls retunes the envelope with any changes the dashboard sent.
// It runs between chunks, on the goroutine that owns the processor.
func (s *session) applyControls() {
	for {
		select {
		case c := <-s.controls:
			s.proc.SetEnvelopeProfile(c.Profile)
			s.proc.SetAdaptiveEnvelope(c.AdaptiveAttack, c.AdaptiveDecay)
			s.log.WithFields(logrus.Fields{
				"profile":         c.Profile.String(),
				"adaptive_attack": c.AdaptiveAttack,
				"adaptive_decay":  c.AdaptiveDecay,
			}).Info("Envelope retuned")
		default:
			return
		}
	}
}

// configureEnvelope overrides the profile's rates with attack, decay,
// momentum and peak hold, in that order.
func (s *session) configureEnvelope(rates []float64) error {
	if len(rates) == 0 {
		return nil
	}
	if len(rates) != 4 {
		return fmt.Errorf("envelope rates need 4 values (attack, decay, momentum, peak hold), got %d", len(rates))
	}
	s.proc.ConfigureEnvelope(rates[0], rates[1], rates[2], rates[3])
	return nil
}

func (s *session) handleFrame(f features.Frame) {
	if snap, ok := s.proc.Update(f); ok {
		s.emit(snap)
	}
}

func (s *session) emit(snap features.Snapshot) {
	s.stats.Observe(snap)
	s.fanout.Offer(snap)

	if s.updates == nil {
		return
	}
	progress := -1.0
	if s.totalSamples > 0 {
		progress = min(float64(s.read)/float64(s.totalSamples), 1)
	}
	select {
	case s.updates <- ui.SnapshotMsg{
		Snapshot: snap,
		Frames:   s.analyzer.Frames(),
		Progress: progress,
		Clients:  s.clients(),
		Dropped:  s.fanout.Dropped(),
		Tracking: s.proc.Diagnostics(),
	}:
	default:
		// The terminal is behind; it will catch up with a later snapshot
	}
}
