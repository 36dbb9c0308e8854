package ui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/jivewave/internal/features"
)

const (
	boxWidth   = 64
	meterWidth = 36
)

var (
	accentColor = lipgloss.Color("#A40000")
	mutedColor  = lipgloss.Color("#888888")
	warmColor   = lipgloss.Color("#FFA500")
	okColor     = lipgloss.Color("#00AA00")

	pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
)

// renderDashboard renders the live view
func renderDashboard(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")
	b.WriteString(renderBands(m.Latest))
	b.WriteString("\n")
	b.WriteString(renderRhythm(m.Latest, m.Tracking.Fade))
	b.WriteString("\n")
	b.WriteString(renderChroma(m.Latest))
	b.WriteString("\n")
	b.WriteString(renderSpectrum(m.Latest))
	b.WriteString("\n")
	b.WriteString(renderTracking(m))
	b.WriteString("\n")
	b.WriteString(renderFooter(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accentColor).
		Render("Jivewave 🕺 - Live Audio Features")

	source := filepath.Base(m.SourceName)
	if m.SampleRate > 0 {
		source += fmt.Sprintf(" | %d Hz", m.SampleRate)
	}
	if m.Listen != "" {
		source += " | ws://" + m.Listen + "/ws"
	}
	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render(source)

	return title + "\n" + subtitle
}

// renderBands renders one meter per band
func renderBands(s features.Snapshot) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Width(boxWidth)

	var content strings.Builder
	for _, band := range []features.Band{
		features.Low, features.Mid, features.High,
		features.Kick, features.Snare, features.Hihat,
		features.Vocal, features.Amplitude,
	} {
		content.WriteString(fmt.Sprintf("%-10s %s\n", band.String(), renderMeter(s.BandValue(band), meterWidth)))
	}
	content.WriteString(fmt.Sprintf("%-10s %s", "balance",
		fmt.Sprintf("low/mid %.2f  mid/high %.2f", s.LowMidBalance, s.MidHighBalance)))

	return box.Render(content.String())
}

// renderRhythm renders the beat tracker state
func renderRhythm(s features.Snapshot, fade float64) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(warmColor).
		Padding(0, 1).
		Width(boxWidth)

	beat := lipgloss.NewStyle().Foreground(mutedColor).Render("○")
	if s.BeatIntensity > 0.5 {
		beat = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Render("●")
	}

	var content strings.Builder
	content.WriteString(fmt.Sprintf("%s Tempo: %5.1f BPM | Beats in window: %d\n", beat, s.BPS*60, len(s.BeatTimes)))
	content.WriteString(fmt.Sprintf("%-10s %s\n", "phase", renderMeter(s.BeatPhase, meterWidth)))
	content.WriteString(fmt.Sprintf("%-10s %s\n", "intensity", renderMeter(s.BeatIntensity, meterWidth)))
	content.WriteString(fmt.Sprintf("%-10s %s\n", "onset", renderMeter(s.OnsetStrength, meterWidth)))
	content.WriteString(fmt.Sprintf("%-10s %s", "fade", renderMeter(fade, meterWidth)))

	return box.Render(content.String())
}

// chromaGlyphs shade a pitch class by strength
var chromaGlyphs = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderChroma renders the twelve pitch classes as a bar row
func renderChroma(s features.Snapshot) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(boxWidth)

	var bars, names strings.Builder
	for i, v := range s.Chromagram {
		bars.WriteString(fmt.Sprintf("%-3s", strings.Repeat(glyphFor(v), 2)))
		names.WriteString(fmt.Sprintf("%-3s", pitchClasses[i]))
	}
	centroid := fmt.Sprintf("centroid %.3f | flux %.4f", s.SpectralCentroid, s.SpectralFlux)
	return box.Render(bars.String() + "\n" + names.String() + "\n" + centroid)
}

// renderSpectrum renders the quantized bands as a bar row and the frequency
// grid as a heat strip of its column averages
func renderSpectrum(s features.Snapshot) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(boxWidth)

	var bands strings.Builder
	for _, q := range s.QuantizedBands {
		bands.WriteString(glyphFor(float64(q) / 255))
	}

	var grid strings.Builder
	for col := 0; col < features.GridSize; col++ {
		sum := 0.0
		for row := 0; row < features.GridSize; row++ {
			sum += s.FrequencyGridMap[row*features.GridSize+col]
		}
		grid.WriteString(strings.Repeat(glyphFor(sum/features.GridSize), 2))
	}

	return box.Render("bands " + bands.String() + "\ngrid  " + grid.String())
}

// glyphFor picks the block glyph for a unit value
func glyphFor(v float64) string {
	return chromaGlyphs[int(math.Round(clampUnit(v)*float64(len(chromaGlyphs)-1)))]
}

// renderTracking renders per-band gain and velocity range and the envelope
// settings the keyboard controls
func renderTracking(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(boxWidth)

	d := m.Tracking
	var content strings.Builder
	content.WriteString(fmt.Sprintf("%-10s %6s %16s\n", "", "gain", "velocity"))
	for _, band := range features.Bands() {
		lo, hi := d.VelocityRange(band)
		velocity := "-"
		if lo != 0 || hi != 0 {
			velocity = fmt.Sprintf("%+.2f..%+.2f", lo, hi)
		}
		content.WriteString(fmt.Sprintf("%-10s %6.2f %16s\n", band.String(), d.Gain[band], velocity))
	}

	e := d.Envelope
	adaptive := "off"
	switch {
	case m.AdaptiveAttack && m.AdaptiveDecay:
		adaptive = "on"
	case m.AdaptiveAttack:
		adaptive = "attack"
	case m.AdaptiveDecay:
		adaptive = "decay"
	}
	content.WriteString(fmt.Sprintf("envelope %s (a %.2f d %.2f m %.2f h %.2f)\n",
		m.Profile, e.Attack, e.Decay, e.Momentum, e.PeakHold))
	content.WriteString(fmt.Sprintf("adaptive %s | amplitude %.2f (%+.2f/s)\n",
		adaptive, d.SmoothedAmplitude, d.AmplitudeVelocity))
	content.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render("p: next profile | a: toggle adaptive"))

	return box.Render(content.String())
}

// renderFooter renders session counters and source progress
func renderFooter(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(boxWidth)

	elapsed := time.Since(m.StartTime).Seconds()
	var content strings.Builder
	if m.Progress >= 0 {
		content.WriteString(renderProgressBar(m.Progress, 40))
		content.WriteString("\n")
	}
	content.WriteString(fmt.Sprintf("⏱  %.1fs | Frames: %d | Snapshots: %d\n", elapsed, m.Frames, m.Snapshots))
	content.WriteString(fmt.Sprintf("📡 Clients: %d | Dropped: %d | q to quit", m.Clients, m.Dropped))

	return box.Render(content.String())
}

// renderMeter renders a unit value as a bar with its numeric value
func renderMeter(v float64, width int) string {
	v = clampUnit(v)
	filled := int(v * float64(width))
	return fmt.Sprintf("%s%s %.2f", strings.Repeat("█", filled), strings.Repeat("░", width-filled), v)
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	progress = clampUnit(progress)
	filled := int(progress * float64(width))
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	percentage := int(progress * 100)

	return fmt.Sprintf("%s %d%%", bar, percentage)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

// renderCompletionSummary renders the final summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	if m.Err != nil {
		header := lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Render("✗ Stopped with an error")
		b.WriteString(header)
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("   Error: %v\n", m.Err))
		return b.String()
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(okColor).
		Render("✨ Analysis Complete!")
	b.WriteString(header)
	b.WriteString("\n\n")

	icon := lipgloss.NewStyle().Foreground(okColor).Render("✓")
	b.WriteString(fmt.Sprintf(" %s %s\n", icon, filepath.Base(m.SourceName)))
	b.WriteString(fmt.Sprintf("   Frames: %d | Snapshots: %d | Peak tempo: %.1f BPM\n", m.Frames, m.Snapshots, m.MaxBPM))
	if m.ReportPath != "" {
		b.WriteString(fmt.Sprintf("   Report: %s\n", m.ReportPath))
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", boxWidth))
	b.WriteString("\n")

	return b.String()
}
