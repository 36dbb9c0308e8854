// Package logging handles generation of session reports for analysed audio

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/jivewave/internal/audio"
	"github.com/linuxmatters/jivewave/internal/features"
)

// ============================================================================
// Interpretation Functions
// ============================================================================

// interpretCentroid describes spectral "brightness" from the centre of
// gravity of the spectrum in Hz.
func interpretCentroid(hz float64) string {
	switch {
	case hz < 500:
		return "very dark, bass-heavy"
	case hz < 1500:
		return "warm, full-bodied"
	case hz < 2500:
		return "balanced"
	case hz < 4000:
		return "present, forward"
	case hz < 6000:
		return "bright, crisp"
	default:
		return "very bright, noisy"
	}
}

// interpretTempo gives a rough genre feel for a tempo in BPM.
func interpretTempo(bpm float64) string {
	switch {
	case bpm <= 0:
		return ""
	case bpm < 80:
		return "slow"
	case bpm < 110:
		return "moderate"
	case bpm < 135:
		return "dance"
	case bpm < 160:
		return "fast"
	default:
		return "very fast (or double-time detection)"
	}
}

// interpretFlux describes how busy the spectrum was on average. The lowest
// step matches the beat detector's flux threshold.
func interpretFlux(flux float64) string {
	switch {
	case flux < 0.01:
		return "static"
	case flux < 0.05:
		return "gentle movement"
	case flux < 0.3:
		return "rhythmic"
	default:
		return "very busy, transient-heavy"
	}
}

func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// ReportData contains all the information needed to generate a session report
type ReportData struct {
	SourcePath   string // Input file, or "" for the demo signal
	OutputDir    string // Defaults to the source's directory, or the working directory
	StartTime    time.Time
	EndTime      time.Time
	Config       *features.Config
	Metadata     *audio.Metadata // nil for the demo signal
	FFTSize      int
	Hop          int
	HumFrequency int
	Frames       uint64
	Offered      uint64 // Snapshots handed to the broadcaster
	Dropped      uint64 // Per-client deliveries skipped
	Stats        *SessionStats
	Diagnostics  *features.Diagnostics // Tracker state at the end of the run
}

// ReportPath is where GenerateReport writes: <name>-jivewave.log.
func ReportPath(data ReportData) string {
	name := "demo"
	dir := data.OutputDir
	if data.SourcePath != "" {
		base := filepath.Base(data.SourcePath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
		if dir == "" {
			dir = filepath.Dir(data.SourcePath)
		}
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name+"-jivewave.log")
}

// GenerateReport writes a session report and returns its path.
//
// Report structure:
// 1. Header - source and timestamp
// 2. Session Summary - timings, frames and snapshots
// 3. Engine Configuration
// 4. Feature Summary - Min/Mean/Max/Std Dev table
// 5. Rhythm - beats, tempo and the dominant pitch class
// 6. Adaptive Tracking - final gains, velocity ranges and envelope state
func GenerateReport(data ReportData) (string, error) {
	path := ReportPath(data)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	WriteReport(f, data)
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write log file: %w", err)
	}
	return path, nil
}

// WriteReport renders the report to w.
func WriteReport(w io.Writer, data ReportData) {
	writeReportHeader(w, data)
	writeSessionSummary(w, data)
	if data.Config != nil {
		writeEngineConfig(w, data)
	}
	if data.Stats != nil {
		writeFeatureTable(w, data)
		writeRhythm(w, data.Stats)
	}
	if data.Diagnostics != nil {
		writeTracking(w, data.Diagnostics)
	}
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "Jivewave Session Report")
	fmt.Fprintln(w, "=======================")
	if data.SourcePath != "" {
		fmt.Fprintf(w, "Source: %s\n", filepath.Base(data.SourcePath))
	} else {
		fmt.Fprintln(w, "Source: demo signal")
	}
	fmt.Fprintf(w, "Finished: %s\n", data.EndTime.Format("2006-01-02 15:04:05 MST"))
	if m := data.Metadata; m != nil {
		fmt.Fprintf(w, "Format: %s, %d Hz, %s", m.Format, m.SampleRate, channelName(m.Channels))
		if m.BitDepth > 0 {
			fmt.Fprintf(w, ", %d-bit", m.BitDepth)
		}
		fmt.Fprintln(w)
		if m.Duration > 0 {
			fmt.Fprintf(w, "Duration: %s\n", formatDuration(m.DurationOf()))
		}
	}
	fmt.Fprintln(w)
}

func writeSessionSummary(w io.Writer, data ReportData) {
	writeSection(w, "Session Summary")

	total := data.EndTime.Sub(data.StartTime)
	fmt.Fprintf(w, "Wall time:    %s\n", formatDuration(total))
	fmt.Fprintf(w, "Frames:       %d\n", data.Frames)
	if data.Stats != nil {
		fmt.Fprintf(w, "Snapshots:    %d\n", data.Stats.Snapshots)
	}
	fmt.Fprintf(w, "Broadcast:    %d offered, %d dropped\n", data.Offered, data.Dropped)

	if data.Config != nil && data.Hop > 0 && total > 0 {
		audioSecs := float64(data.Frames) * float64(data.Hop) / data.Config.SampleRate
		fmt.Fprintf(w, "Speed:        %.1fx real-time\n", audioSecs/total.Seconds())
	}
	fmt.Fprintln(w)
}

func writeEngineConfig(w io.Writer, data ReportData) {
	cfg := data.Config
	writeSection(w, "Engine Configuration")
	fmt.Fprintf(w, "Sample rate:      %.0f Hz\n", cfg.SampleRate)
	if data.FFTSize > 0 {
		fmt.Fprintf(w, "FFT size:         %d (hop %d, %s per bin)\n",
			data.FFTSize, data.Hop, formatMetricWithUnit(cfg.SampleRate/float64(data.FFTSize), 2, "Hz"))
	}
	fmt.Fprintf(w, "Update interval:  %s\n", cfg.UpdateInterval)
	fmt.Fprintf(w, "Detail level:     %s\n", cfg.DetailLevel)
	fmt.Fprintf(w, "Envelope profile: %s (adaptive attack %v, adaptive decay %v)\n",
		cfg.EnvelopeProfile, cfg.AdaptiveAttack, cfg.AdaptiveDecay)
	if data.HumFrequency > 0 {
		fmt.Fprintf(w, "Hum notch:        %d Hz\n", data.HumFrequency)
	} else {
		fmt.Fprintln(w, "Hum notch:        off")
	}
	fmt.Fprintln(w)
}

func writeFeatureTable(w io.Writer, data ReportData) {
	st := data.Stats
	writeSection(w, "Feature Summary")

	table := NewMetricTable()
	for _, b := range features.Bands() {
		table.AddSummaryRow(bandLabel(b), st.Band(b), 1, 3, "", "")
	}

	nyquist := data.Config.SampleRate / 2
	centroid := st.Centroid()
	interp := ""
	if centroid.Count > 0 {
		interp = interpretCentroid(centroid.Mean * nyquist)
	}
	table.AddSummaryRow("Spectral centroid", centroid, nyquist, 0, "Hz", interp)

	flux := st.Flux()
	interp = ""
	if flux.Count > 0 {
		interp = interpretFlux(flux.Mean)
	}
	table.AddSummaryRow("Spectral flux", flux, 1, 4, "", interp)
	table.AddSummaryRow("Onset strength", st.Onset(), 1, 3, "", "")

	fmt.Fprint(w, table.String())
	if raw := st.Band(features.RawAmplitude); raw.Count > 0 {
		fmt.Fprintf(w, "\nPeak raw amplitude: %s dB (spectral RMS)\n", formatMetricPeak(raw.Max, 1))
	}
	fmt.Fprintln(w)
}

func writeRhythm(w io.Writer, st *SessionStats) {
	writeSection(w, "Rhythm")
	fmt.Fprintf(w, "Beats detected: %d\n", st.Beats)

	tempo := st.Tempo()
	if tempo.Count > 0 {
		fmt.Fprintf(w, "Tempo:          %s BPM (range %s to %s) %s\n",
			formatMetric(tempo.Mean, 1), formatMetric(tempo.Min, 1), formatMetric(tempo.Max, 1),
			interpretTempo(tempo.Mean))
	} else {
		fmt.Fprintln(w, "Tempo:          none detected")
	}
	if pc := st.DominantPitchClass(); pc != "" {
		fmt.Fprintf(w, "Dominant pitch: %s\n", pc)
	}
	fmt.Fprintln(w)
}

func writeTracking(w io.Writer, d *features.Diagnostics) {
	writeSection(w, "Adaptive Tracking")

	table := NewTrackingTable()
	for _, b := range features.Bands() {
		lo, hi := d.VelocityRange(b)
		velocity := []string{MissingValue, MissingValue}
		if int(b) <= int(features.Hihat) {
			velocity = []string{formatMetric(lo, 3), formatMetric(hi, 3)}
		}
		table.AddRow(bandLabel(b), append([]string{formatMetric(d.Gain[b], 2)}, velocity...), "", "")
	}
	fmt.Fprint(w, table.String())

	e := d.Envelope
	fmt.Fprintf(w, "\nEnvelope: attack %s, decay %s, momentum %s, peak hold %ss\n",
		formatMetric(e.Attack, 2), formatMetric(e.Decay, 2), formatMetric(e.Momentum, 2), formatMetric(e.PeakHold, 2))
	fmt.Fprintf(w, "Adaptive: attack %s, decay %s\n", onOff(d.AdaptiveAttack), onOff(d.AdaptiveDecay))
	fmt.Fprintf(w, "Amplitude: %s (velocity %s/s), fade %s\n",
		formatMetric(d.SmoothedAmplitude, 3), formatMetric(d.AmplitudeVelocity, 3), formatMetric(d.Fade, 3))
	fmt.Fprintln(w)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// bandLabel returns a human-readable band name
func bandLabel(b features.Band) string {
	switch b {
	case features.RawAmplitude:
		return "Raw amplitude"
	case features.Vocal:
		return "Vocal likelihood"
	}
	name := b.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// channelName returns a human-readable channel name
func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}
