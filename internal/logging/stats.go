package logging

import (
	"math"

	"github.com/linuxmatters/jivewave/internal/features"
	"gonum.org/v1/gonum/stat"
)

// maxSamples bounds the values kept per metric. When full, every other value
// is discarded and the keep interval doubles, so long sessions stay evenly
// sampled in constant memory.
const maxSamples = 4096

// Summary describes one metric over a session.
type Summary struct {
	Count  int
	Min    float64
	Mean   float64
	Max    float64
	StdDev float64
}

// series keeps exact extremes and a decimated sample for the moments.
type series struct {
	seen     int
	min, max float64
	stride   int
	samples  []float64
}

func (s *series) add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if s.seen == 0 {
		s.min, s.max, s.stride = v, v, 1
	}
	s.min = math.Min(s.min, v)
	s.max = math.Max(s.max, v)
	if s.seen%s.stride == 0 {
		if len(s.samples) == maxSamples {
			kept := s.samples[:0]
			for i := 0; i < len(s.samples); i += 2 {
				kept = append(kept, s.samples[i])
			}
			s.samples = kept
			s.stride *= 2
		}
		if s.seen%s.stride == 0 {
			s.samples = append(s.samples, v)
		}
	}
	s.seen++
}

func (s *series) summary() Summary {
	if s.seen == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(s.samples, nil)
	return Summary{Count: s.seen, Min: s.min, Mean: mean, Max: s.max, StdDev: std}
}

// SessionStats accumulates snapshot features for the session report. It is
// not safe for concurrent use.
type SessionStats struct {
	Snapshots int
	Beats     int

	lastBeat float64
	bands    [features.Vocal + 1]series
	bpm      series
	centroid series
	flux     series
	onset    series
	chroma   [12]float64
}

// NewSessionStats returns empty statistics.
func NewSessionStats() *SessionStats {
	return &SessionStats{lastBeat: math.Inf(-1)}
}

// Observe adds one emitted snapshot.
func (st *SessionStats) Observe(s features.Snapshot) {
	st.Snapshots++
	for _, b := range features.Bands() {
		st.bands[b].add(s.BandValue(b))
	}
	if s.LastBeatTime > st.lastBeat && s.LastBeatTime > 0 {
		st.Beats++
		st.lastBeat = s.LastBeatTime
	}
	if s.BPS > 0 {
		st.bpm.add(s.BPS * 60)
	}
	st.centroid.add(s.SpectralCentroid)
	st.flux.add(s.SpectralFlux)
	st.onset.add(s.OnsetStrength)
	for i, v := range s.Chromagram {
		st.chroma[i] += v
	}
}

// Band summarises one band's normalised value.
func (st *SessionStats) Band(b features.Band) Summary {
	if b < 0 || int(b) >= len(st.bands) {
		return Summary{}
	}
	return st.bands[b].summary()
}

// Tempo summarises the estimated tempo in beats per minute while a tempo
// was detected.
func (st *SessionStats) Tempo() Summary { return st.bpm.summary() }

// Centroid summarises the normalised spectral centroid.
func (st *SessionStats) Centroid() Summary { return st.centroid.summary() }

// Flux summarises spectral flux.
func (st *SessionStats) Flux() Summary { return st.flux.summary() }

// Onset summarises onset strength.
func (st *SessionStats) Onset() Summary { return st.onset.summary() }

// pitchClasses names the chromagram bins starting at C.
var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// DominantPitchClass is the pitch class with the most accumulated chroma
// energy, or "" when nothing was heard.
func (st *SessionStats) DominantPitchClass() string {
	best, bestVal := -1, 0.0
	for i, v := range st.chroma {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	if best < 0 {
		return ""
	}
	return pitchClasses[best]
}
