package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/jivewave/internal/audio"
	"github.com/linuxmatters/jivewave/internal/features"
)

func TestReportPath(t *testing.T) {
	tests := []struct {
		name string
		data ReportData
		want string
	}{
		{"beside source", ReportData{SourcePath: "/music/track.mp3"}, "/music/track-jivewave.log"},
		{"output dir", ReportData{SourcePath: "/music/track.wav", OutputDir: "/tmp/logs"}, "/tmp/logs/track-jivewave.log"},
		{"demo", ReportData{}, "demo-jivewave.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReportPath(tt.data); got != filepath.FromSlash(tt.want) {
				t.Errorf("ReportPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func sampleReport() ReportData {
	cfg := features.DefaultConfig()
	st := NewSessionStats()
	for i := 0; i < 100; i++ {
		s := features.Snapshot{
			Low:              float64(i%10) / 10,
			RawAmplitude:     0.5,
			BPS:              2,
			LastBeatTime:     float64(i / 25),
			SpectralCentroid: 0.05,
			SpectralFlux:     0.02,
		}
		s.Chromagram[4] = 1
		st.Observe(s)
	}
	diag := features.Diagnostics{
		Envelope:       features.ProfileResponsive.Params(),
		AdaptiveAttack: true,
	}
	diag.Gain[features.Kick] = 2.5
	diag.VelocityMin[features.Kick] = -0.4
	diag.VelocityMax[features.Kick] = 0.75

	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return ReportData{
		SourcePath:   "/music/track.wav",
		StartTime:    start,
		EndTime:      start.Add(10 * time.Second),
		Config:       cfg,
		Metadata:     &audio.Metadata{Duration: 90, SampleRate: 44100, Channels: 2, Format: "wav", BitDepth: 16},
		FFTSize:      2048,
		Hop:          735,
		HumFrequency: 50,
		Frames:       6000,
		Offered:      100,
		Stats:        st,
		Diagnostics:  &diag,
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"Jivewave Session Report",
		"Source: track.wav",
		"Format: wav, 44100 Hz, stereo, 16-bit",
		"Duration: 1m 30s",
		"Frames:       6000",
		"Snapshots:    100",
		"Speed:        10.0x real-time",
		"FFT size:         2048 (hop 735, 21.53 Hz per bin)",
		"Detail level:     standard",
		"Hum notch:        50 Hz",
		"Feature Summary",
		"Vocal likelihood",
		"Spectral centroid",
		"warm, full-bodied",
		"Peak raw amplitude: -6.0 dB (spectral RMS)",
		"gentle movement",
		"Adaptive Tracking",
		"Envelope: attack 0.25, decay 0.12, momentum 0.60, peak hold 0.05s",
		"Adaptive: attack on, decay off",
		"Beats detected: 3",
		"Tempo:          120.0 BPM",
		"Dominant pitch: E",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteReportDemoWithoutStats(t *testing.T) {
	var buf bytes.Buffer
	start := time.Now()
	WriteReport(&buf, ReportData{StartTime: start, EndTime: start})
	out := buf.String()

	if !strings.Contains(out, "Source: demo signal") {
		t.Errorf("report should name the demo source:\n%s", out)
	}
	if strings.Contains(out, "Feature Summary") {
		t.Errorf("report without stats should skip the feature table:\n%s", out)
	}
}

func TestGenerateReport(t *testing.T) {
	data := sampleReport()
	data.OutputDir = t.TempDir()

	path, err := GenerateReport(data)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if filepath.Base(path) != "track-jivewave.log" {
		t.Errorf("report path = %q", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !strings.HasPrefix(string(content), "Jivewave Session Report") {
		t.Errorf("report starts with %q", string(content[:min(len(content), 40)]))
	}

	data.OutputDir = filepath.Join(data.OutputDir, "missing", "dir")
	if _, err := GenerateReport(data); err == nil {
		t.Error("GenerateReport() into a missing directory returned no error")
	}
}

func TestInterpretations(t *testing.T) {
	if got := interpretCentroid(300); got != "very dark, bass-heavy" {
		t.Errorf("interpretCentroid(300) = %q", got)
	}
	if got := interpretTempo(128); got != "dance" {
		t.Errorf("interpretTempo(128) = %q", got)
	}
	if got := interpretTempo(0); got != "" {
		t.Errorf("interpretTempo(0) = %q", got)
	}
	fluxTests := []struct {
		flux float64
		want string
	}{
		{0.0001, "static"},
		{0.009, "static"},
		{0.02, "gentle movement"},
		{0.1, "rhythmic"},
		{0.9, "very busy, transient-heavy"},
	}
	for _, tt := range fluxTests {
		if got := interpretFlux(tt.flux); got != tt.want {
			t.Errorf("interpretFlux(%v) = %q, want %q", tt.flux, got, tt.want)
		}
	}
}

func TestWriteReportTracking(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, sampleReport())
	out := buf.String()

	section := out[strings.Index(out, "Adaptive Tracking"):]
	for _, want := range []string{"Gain", "Vel Min", "Vel Max"} {
		if !strings.Contains(section, want) {
			t.Errorf("tracking table missing header %q:\n%s", want, section)
		}
	}
	var kick, vocal string
	for _, line := range strings.Split(section, "\n") {
		switch {
		case strings.HasPrefix(line, "Kick "):
			kick = line
		case strings.HasPrefix(line, "Vocal likelihood "):
			vocal = line
		}
	}
	if fields := strings.Fields(kick); len(fields) != 4 || fields[1] != "2.50" || fields[2] != "-0.400" || fields[3] != "0.750" {
		t.Errorf("kick row = %q, want gain 2.50 and velocity -0.400 to 0.750", kick)
	}
	if fields := strings.Fields(vocal); len(fields) != 5 || fields[3] != MissingValue || fields[4] != MissingValue {
		t.Errorf("vocal row = %q, want no velocity range", vocal)
	}
}
