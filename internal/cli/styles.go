package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette shared by the help screen and the headless console output. Each
// colour has a light-terminal variant so the banner stays readable on both.
var (
	beatColor    = lipgloss.AdaptiveColor{Light: "#8B0000", Dark: "#E0303A"} // Kick red
	bandColor    = lipgloss.AdaptiveColor{Light: "#B35C00", Dark: "#FFA500"} // Section headings
	signalColor  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#3CC43C"} // Flags
	socketColor  = lipgloss.AdaptiveColor{Light: "#006B6B", Dark: "#22B8B8"} // Arguments and URLs
	quietColor   = lipgloss.AdaptiveColor{Light: "#6A6A6A", Dark: "#8A8A8A"}
	readingColor = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F2F2F2"}
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(beatColor)

	fieldKeyStyle = lipgloss.NewStyle().
			Foreground(quietColor).
			Width(fieldKeyWidth)

	fieldValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(readingColor)

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(beatColor)
)

// fieldKeyWidth fits the longest console label plus its colon.
const fieldKeyWidth = 11

// WriteBanner writes the product name and version, followed by a blank line.
func WriteBanner(w io.Writer, version string) {
	fmt.Fprintf(w, "%s %s\n\n", bannerStyle.Render("Jivewave 🕺"), fieldValueStyle.Render("v"+version))
}

// WriteField writes one aligned "key: value" line of the headless console.
func WriteField(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s%s\n", fieldKeyStyle.Render(key+":"), fieldValueStyle.Render(value))
}

// WriteError reports a fatal error.
func WriteError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", failStyle.Render("jivewave:"), err)
}
