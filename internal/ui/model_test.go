package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/jivewave/internal/features"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	got, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return got
}

func TestModelLifecycle(t *testing.T) {
	m := NewModel("track.wav")
	if !strings.Contains(m.View(), "Waiting for audio") {
		t.Errorf("initial View() = %q", m.View())
	}

	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = update(t, m, SourceStartMsg{Name: "/music/track.wav", SampleRate: 44100, Listen: "127.0.0.1:8080"})
	if m.Status != StatusRunning {
		t.Errorf("Status after start = %v, want running", m.Status)
	}

	snap := features.Snapshot{Low: 0.5, Kick: 1, BPS: 2, RawAmplitude: 0.3, BeatIntensity: 0.9}
	snap.Chromagram[9] = 1
	m = update(t, m, SnapshotMsg{Snapshot: snap, Frames: 10, Progress: 0.25, Clients: 2})
	m = update(t, m, SnapshotMsg{Snapshot: features.Snapshot{RawAmplitude: 0.1, BPS: 1}, Frames: 20, Progress: 0.5})

	if m.Snapshots != 2 || m.Frames != 20 {
		t.Errorf("Snapshots/Frames = %d/%d, want 2/20", m.Snapshots, m.Frames)
	}
	if m.PeakAmplitude != 0.3 || m.MaxBPM != 120 {
		t.Errorf("PeakAmplitude/MaxBPM = %v/%v, want 0.3/120", m.PeakAmplitude, m.MaxBPM)
	}

	view := m.View()
	for _, want := range []string{"Jivewave", "track.wav", "ws://127.0.0.1:8080/ws", "kick", "50%"} {
		if !strings.Contains(view, want) {
			t.Errorf("dashboard missing %q:\n%s", want, view)
		}
	}

	next, cmd := m.Update(SourceCompleteMsg{Frames: 30, ReportPath: "track-jivewave.log"})
	m = next.(Model)
	if !m.Done || m.Status != StatusComplete || cmd == nil {
		t.Errorf("after completion Done=%v Status=%v cmd=%v", m.Done, m.Status, cmd)
	}
	if !strings.Contains(m.View(), "track-jivewave.log") {
		t.Errorf("summary should name the report:\n%s", m.View())
	}
}

func TestModelError(t *testing.T) {
	m := NewModel("broken.mp3")
	m = update(t, m, SourceCompleteMsg{Error: errors.New("decode failed")})
	if m.Status != StatusError {
		t.Errorf("Status = %v, want error", m.Status)
	}
	if !strings.Contains(m.View(), "decode failed") {
		t.Errorf("View() should show the error:\n%s", m.View())
	}
}

func TestModelQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		_, cmd := NewModel("x").Update(key)
		if cmd == nil {
			t.Errorf("key %q returned no command, want quit", key.String())
			continue
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %q did not quit", key.String())
		}
	}
}

func TestRenderMeterAndProgress(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "░░░░ 0.00"},
		{0.5, "██░░ 0.50"},
		{2, "████ 1.00"},
		{-1, "░░░░ 0.00"},
	}
	for _, tt := range tests {
		if got := renderMeter(tt.v, 4); got != tt.want {
			t.Errorf("renderMeter(%v, 4) = %q, want %q", tt.v, got, tt.want)
		}
	}
	if got := renderProgressBar(0.75, 4); got != "███░ 75%" {
		t.Errorf("renderProgressBar(0.75, 4) = %q", got)
	}
}

func TestRenderSpectrum(t *testing.T) {
	var s features.Snapshot
	for i := range s.QuantizedBands {
		s.QuantizedBands[i] = 255
	}
	for i := range s.FrequencyGridMap {
		s.FrequencyGridMap[i] = 1
	}
	out := renderSpectrum(s)
	if !strings.Contains(out, strings.Repeat("█", features.QuantizedBandCount)) {
		t.Errorf("full bands should render %d solid blocks:\n%s", features.QuantizedBandCount, out)
	}
	if got := glyphFor(0); got != " " {
		t.Errorf("glyphFor(0) = %q, want blank", got)
	}
}

func TestModelEnvelopeKeys(t *testing.T) {
	tests := []struct {
		name string
		keys string
		want EnvelopeControl
	}{
		{"next profile", "p", EnvelopeControl{Profile: features.ProfilePunchy, AdaptiveAttack: true, AdaptiveDecay: true}},
		{"profile wraps", "ppp", EnvelopeControl{Profile: features.ProfileSmooth, AdaptiveAttack: true, AdaptiveDecay: true}},
		{"adaptive off", "a", EnvelopeControl{Profile: features.ProfileResponsive}},
		{"adaptive back on", "aa", EnvelopeControl{Profile: features.ProfileResponsive, AdaptiveAttack: true, AdaptiveDecay: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel("x")
			for _, r := range tt.keys {
				m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
			}
			if got := len(m.Controls); got != len(tt.keys) {
				t.Fatalf("Controls holds %d messages after %q, want %d", got, tt.keys, len(tt.keys))
			}
			var got EnvelopeControl
			for len(m.Controls) > 0 {
				got = <-m.Controls
			}
			if got != tt.want {
				t.Errorf("last control after %q = %+v, want %+v", tt.keys, got, tt.want)
			}
		})
	}
}

func TestModelEnvelopeKeysNeverBlock(t *testing.T) {
	m := NewModel("x")
	for range cap(m.Controls) + 3 {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	}
	if got := len(m.Controls); got != cap(m.Controls) {
		t.Errorf("Controls holds %d messages, want a full buffer of %d", got, cap(m.Controls))
	}
}

func TestRenderTracking(t *testing.T) {
	m := NewModel("x")
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 60})
	m = update(t, m, SourceStartMsg{Name: "x", Profile: features.ProfileSustained, AdaptiveAttack: true})

	var d features.Diagnostics
	d.Gain[features.Kick] = 2.5
	d.VelocityMin[features.Kick] = -0.4
	d.VelocityMax[features.Kick] = 0.75
	d.Envelope = features.ProfileSustained.Params()
	d.SmoothedAmplitude = 0.42
	d.AmplitudeVelocity = -1.5
	m = update(t, m, SnapshotMsg{Tracking: d})

	out := renderTracking(m)
	for _, want := range []string{
		"2.50",
		"-0.40..+0.75",
		"envelope " + features.ProfileSustained.String(),
		"adaptive attack",
		"amplitude 0.42 (-1.50/s)",
		"p: next profile",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("renderTracking() missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(m.View(), "p: next profile") {
		t.Errorf("dashboard should include the tracking panel:\n%s", m.View())
	}
}
