package ui

import (
	"github.com/linuxmatters/jivewave/internal/features"
)

// SnapshotMsg carries the latest emitted snapshot from the producer
type SnapshotMsg struct {
	Snapshot features.Snapshot
	Frames   uint64
	Progress float64 // 0.0 to 1.0, negative when the source has no known length
	Clients  int
	Dropped  uint64
	Tracking features.Diagnostics // Gains, velocity ranges and envelope state
}

// SourceStartMsg indicates the audio source is open
type SourceStartMsg struct {
	Name       string
	SampleRate int
	Channels   int
	Duration   float64 // seconds, 0 when unknown
	Listen     string  // Broadcast address, "" when broadcasting is off

	Profile        features.EnvelopeProfile
	AdaptiveAttack bool
	AdaptiveDecay  bool
}

// SourceCompleteMsg indicates the source has ended or failed
type SourceCompleteMsg struct {
	Frames     uint64
	ReportPath string
	Error      error
}

// EnvelopeControl asks the producer to retune the amplitude envelope. The
// dashboard sends it when the profile or adaptive keys are pressed.
type EnvelopeControl struct {
	Profile        features.EnvelopeProfile
	AdaptiveAttack bool
	AdaptiveDecay  bool
}
