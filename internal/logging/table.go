// Package logging writes session reports and the debug log for a jivewave run.
// This file contains the table formatting used by the report's feature
// summary (Min, Mean, Max, Std Dev per feature).

package logging

import (
	"fmt"
	"math"
	"strings"
)

// MetricRow represents a single row in a summary table.
// Values are pre-formatted strings to allow for mixed formatting (decimals, scientific notation).
type MetricRow struct {
	Label          string   // Row label, e.g., "Low band"
	Values         []string // One value per column
	Unit           string   // Unit suffix, e.g., "Hz", "" for unitless
	Interpretation string   // Optional interpretation text (only shown if non-empty)
}

// MetricTable formats aligned columns of feature statistics.
type MetricTable struct {
	Headers []string
	Rows    []MetricRow
}

// String renders the table with aligned columns.
// - Labels are left-aligned
// - Numeric values are right-aligned within their column
// - Units are appended after the last value column
// - Interpretation column only shown if any row has one
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	hasInterpretation := false
	labelWidth := 0
	unitWidth := 0
	for _, row := range t.Rows {
		if row.Interpretation != "" {
			hasInterpretation = true
		}
		labelWidth = max(labelWidth, len(row.Label))
		unitWidth = max(unitWidth, len(row.Unit))
	}

	valueWidths := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		valueWidths[i] = len(header)
	}
	for _, row := range t.Rows {
		for i, val := range row.Values {
			if i < len(valueWidths) && len(val) > valueWidths[i] {
				valueWidths[i] = len(val)
			}
		}
	}

	var sb strings.Builder
	// Trailing padding is noise in a log file
	writeLine := func(line string) {
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")
	}

	var line strings.Builder
	line.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, header := range t.Headers {
		line.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], header))
	}
	if unitWidth > 0 {
		line.WriteString(strings.Repeat(" ", unitWidth+1))
	}
	if hasInterpretation {
		line.WriteString("Interpretation")
	}
	writeLine(line.String())

	for _, row := range t.Rows {
		line.Reset()
		line.WriteString(fmt.Sprintf("%-*s  ", labelWidth, row.Label))

		for i := range t.Headers {
			val := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			line.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], val))
		}

		if unitWidth > 0 {
			line.WriteString(fmt.Sprintf("%-*s ", unitWidth, row.Unit))
		}
		if hasInterpretation {
			line.WriteString(row.Interpretation)
		}
		writeLine(line.String())
	}

	return sb.String()
}

// =============================================================================
// Metric Formatting Helpers
// =============================================================================

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// DigitalSilenceThreshold is the dBFS level below which a level is reported
// as silence.
const DigitalSilenceThreshold = -120.0

// formatMetric formats a numeric value with appropriate precision.
// Handles:
// - Regular floats: formatted to specified decimal places
// - Very small values (< 0.0001): scientific notation
// - NaN/Inf: returns MissingValue
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricWithUnit combines value and unit for display.
func formatMetricWithUnit(value float64, decimals int, unit string) string {
	formatted := formatMetric(value, decimals)
	if formatted == MissingValue || unit == "" {
		return formatted
	}
	return formatted + " " + unit
}

// formatMetricPeak formats a linear magnitude in dB. Zero shows "< -120".
func formatMetricPeak(value float64, decimals int) string {
	if math.IsNaN(value) {
		return MissingValue
	}
	if value <= 0 {
		return "< -120"
	}
	dB := 20.0 * math.Log10(value)
	if dB < DigitalSilenceThreshold {
		return "< -120"
	}
	return fmt.Sprintf("%.*f", decimals, dB)
}

// =============================================================================
// Table Builder Helpers
// =============================================================================

// NewMetricTable creates a MetricTable with the summary statistic headers.
func NewMetricTable() *MetricTable {
	return &MetricTable{
		Headers: []string{"Min", "Mean", "Max", "Std Dev"},
		Rows:    make([]MetricRow, 0),
	}
}

// NewTrackingTable creates a MetricTable for per-band adaptive gain and the
// recent velocity range.
func NewTrackingTable() *MetricTable {
	return &MetricTable{
		Headers: []string{"Gain", "Vel Min", "Vel Max"},
		Rows:    make([]MetricRow, 0),
	}
}

// AddRow adds a row to the table with pre-formatted values.
func (t *MetricTable) AddRow(label string, values []string, unit string, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
	})
}

// AddSummaryRow adds a row from a Summary, scaling every value by scale
// first (1 for unit features, a frequency for normalised ones).
func (t *MetricTable) AddSummaryRow(label string, s Summary, scale float64, decimals int, unit string, interpretation string) {
	if s.Count == 0 {
		t.AddRow(label, nil, unit, interpretation)
		return
	}
	t.AddRow(label, []string{
		formatMetric(s.Min*scale, decimals),
		formatMetric(s.Mean*scale, decimals),
		formatMetric(s.Max*scale, decimals),
		formatMetric(s.StdDev*scale, decimals),
	}, unit, interpretation)
}
