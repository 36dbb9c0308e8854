// Package ui provides the Bubbletea terminal dashboard for jivewave
package ui

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/jivewave/internal/features"
	"github.com/sirupsen/logrus"
)

// debug receives UI diagnostics; it discards them until SetLogger is called.
var debug = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// SetLogger routes UI diagnostics to logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		debug = logger
	}
}

// Status is the state of the audio source
type Status int

const (
	StatusWaiting Status = iota
	StatusRunning
	StatusComplete
	StatusError
)

// Model is the Bubbletea model for the live dashboard
type Model struct {
	// Source
	SourceName string
	SampleRate int
	Channels   int
	Duration   float64
	Listen     string
	Status     Status

	// Latest state from the producer
	Latest      features.Snapshot
	HasSnapshot bool
	Frames      uint64
	Snapshots   uint64
	Progress    float64
	Clients     int
	Dropped     uint64
	Tracking    features.Diagnostics

	// Envelope settings, changed from the keyboard
	Profile        features.EnvelopeProfile
	AdaptiveAttack bool
	AdaptiveDecay  bool

	// Session-wide extremes for the meters
	PeakAmplitude float64
	MaxBPM        float64

	// Completion
	ReportPath string
	Err        error

	// Global state
	StartTime time.Time
	Done      bool

	// Channel for receiving updates from the producer. The producer drops
	// snapshots when it is full rather than wait for the terminal.
	Updates chan tea.Msg

	// Envelope changes for the producer; a full channel drops the change
	Controls chan EnvelopeControl

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a dashboard for the named source
func NewModel(sourceName string) Model {
	return Model{
		SourceName: sourceName,
		Status:     StatusWaiting,
		Progress:   -1,
		StartTime:  time.Now(),
		Updates:    make(chan tea.Msg, 16),
		Controls:   make(chan EnvelopeControl, 4),

		Profile:        features.ProfileResponsive,
		AdaptiveAttack: true,
		AdaptiveDecay:  true,
	}
}

// Init starts listening for producer updates
func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.Updates)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p":
			m.Profile = (m.Profile + 1) % (features.ProfileSustained + 1)
			m.sendControl()
		case "a":
			on := !(m.AdaptiveAttack && m.AdaptiveDecay)
			m.AdaptiveAttack, m.AdaptiveDecay = on, on
			m.sendControl()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		debug.WithFields(logrus.Fields{"width": m.Width, "height": m.Height}).Debug("Window resized")

	case SourceStartMsg:
		debug.WithFields(logrus.Fields{"source": msg.Name, "rate": msg.SampleRate}).Debug("Source started")
		m.SourceName = msg.Name
		m.SampleRate = msg.SampleRate
		m.Channels = msg.Channels
		m.Duration = msg.Duration
		m.Listen = msg.Listen
		m.Profile = msg.Profile
		m.AdaptiveAttack = msg.AdaptiveAttack
		m.AdaptiveDecay = msg.AdaptiveDecay
		m.Status = StatusRunning
		m.StartTime = time.Now()

	case SnapshotMsg:
		m = applySnapshot(m, msg)
		return m, waitForUpdate(m.Updates)

	case SourceCompleteMsg:
		debug.WithFields(logrus.Fields{"frames": msg.Frames, "error": msg.Error}).Debug("Source complete")
		m.Frames = msg.Frames
		m.ReportPath = msg.ReportPath
		m.Err = msg.Error
		m.Status = StatusComplete
		if msg.Error != nil {
			m.Status = StatusError
		}
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.Done {
		return renderCompletionSummary(m)
	}
	if m.Width == 0 || !m.HasSnapshot {
		return fmt.Sprintf("Waiting for audio from %s...\n", m.SourceName)
	}
	return renderDashboard(m)
}

// applySnapshot folds a SnapshotMsg into the model
func applySnapshot(m Model, msg SnapshotMsg) Model {
	m.Latest = msg.Snapshot
	m.HasSnapshot = true
	m.Snapshots++
	m.Frames = msg.Frames
	m.Progress = msg.Progress
	m.Clients = msg.Clients
	m.Dropped = msg.Dropped
	m.Tracking = msg.Tracking
	if m.Status == StatusWaiting {
		m.Status = StatusRunning
	}

	if msg.Snapshot.RawAmplitude > m.PeakAmplitude {
		m.PeakAmplitude = msg.Snapshot.RawAmplitude
	}
	if bpm := msg.Snapshot.BPS * 60; bpm > m.MaxBPM {
		m.MaxBPM = bpm
	}
	return m
}

// sendControl hands the current envelope settings to the producer
func (m Model) sendControl() {
	ctl := EnvelopeControl{Profile: m.Profile, AdaptiveAttack: m.AdaptiveAttack, AdaptiveDecay: m.AdaptiveDecay}
	select {
	case m.Controls <- ctl:
		debug.WithFields(logrus.Fields{
			"profile":         ctl.Profile.String(),
			"adaptive_attack": ctl.AdaptiveAttack,
			"adaptive_decay":  ctl.AdaptiveDecay,
		}).Debug("Envelope change requested")
	default:
		debug.Warn("Envelope change dropped, producer is busy")
	}
}

// waitForUpdate creates a command that waits for the next producer message
func waitForUpdate(updates chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}
