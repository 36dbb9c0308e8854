package audio

import (
	"fmt"
	"io"
	"math"
	"time"
)

// SynthOptions configures the demo signal.
type SynthOptions struct {
	SampleRate int
	BPM        float64       // Kick drum tempo; 0 disables the kick
	BassFreq   float64       // Sustained bass tone in Hz; 0 disables it
	HiHat      bool          // Noise bursts on the off-beats
	Duration   time.Duration // 0 runs forever
	Seed       uint32
}

// DefaultSynthOptions is a 120 BPM four-on-the-floor pattern.
func DefaultSynthOptions(sampleRate int) SynthOptions {
	return SynthOptions{
		SampleRate: sampleRate,
		BPM:        120,
		BassFreq:   55,
		HiHat:      true,
		Seed:       12345,
	}
}

const (
	kickLength  = 0.12 // seconds
	kickStart   = 150.0
	kickEnd     = 50.0
	kickLevel   = 0.8
	bassLevel   = 0.15
	hihatLength = 0.03
	hihatLevel  = 0.2
)

// Synth generates a deterministic drum pattern, used when no file is given
// and by tests that need beats at known times.
type Synth struct {
	opts  SynthOptions
	total int64 // 0 for endless
	pos   int64

	beatLen   float64 // samples per beat
	kickPhase float64
	bassPhase float64
	rng       uint32
}

// NewSynth validates opts and returns a generator.
func NewSynth(opts SynthOptions) (*Synth, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("synth sample rate %d must be positive", opts.SampleRate)
	}
	if opts.BPM < 0 || math.IsNaN(opts.BPM) || math.IsInf(opts.BPM, 0) {
		return nil, fmt.Errorf("synth BPM %v must be a finite, non-negative number", opts.BPM)
	}
	s := &Synth{opts: opts, rng: opts.Seed}
	if opts.Duration > 0 {
		s.total = int64(opts.Duration.Seconds() * float64(opts.SampleRate))
	}
	if opts.BPM > 0 {
		s.beatLen = float64(opts.SampleRate) * 60 / opts.BPM
	}
	return s, nil
}

// SampleRate is the output rate of Read.
func (s *Synth) SampleRate() int { return s.opts.SampleRate }

// BeatTimes lists the kick onsets in seconds up to limit.
func (s *Synth) BeatTimes(limit float64) []float64 {
	if s.beatLen == 0 {
		return nil
	}
	interval := 60 / s.opts.BPM
	var times []float64
	for t := 0.0; t <= limit; t += interval {
		times = append(times, t)
	}
	return times
}

// Read fills dst and returns io.EOF once Duration has elapsed.
func (s *Synth) Read(dst []float64) (int, error) {
	rate := float64(s.opts.SampleRate)
	n := 0
	for ; n < len(dst); n++ {
		if s.total > 0 && s.pos >= s.total {
			break
		}
		var v float64

		if s.beatLen > 0 {
			inBeat := math.Mod(float64(s.pos), s.beatLen) / rate
			if inBeat < kickLength {
				// Pitch sweeps down while the level decays
				freq := kickEnd + (kickStart-kickEnd)*math.Exp(-inBeat*30)
				s.kickPhase += 2 * math.Pi * freq / rate
				v += kickLevel * math.Exp(-inBeat*25) * math.Sin(s.kickPhase)
			} else {
				s.kickPhase = 0
			}

			if s.opts.HiHat {
				offBeat := math.Mod(float64(s.pos)+s.beatLen/2, s.beatLen) / rate
				if offBeat < hihatLength {
					v += hihatLevel * math.Exp(-offBeat*120) * s.noise()
				}
			}
		}

		if s.opts.BassFreq > 0 {
			s.bassPhase = math.Mod(s.bassPhase+2*math.Pi*s.opts.BassFreq/rate, 2*math.Pi)
			v += bassLevel * math.Sin(s.bassPhase)
		}

		dst[n] = math.Max(-1, math.Min(1, v))
		s.pos++
	}

	if n == 0 && s.total > 0 && s.pos >= s.total {
		return 0, io.EOF
	}
	return n, nil
}

// noise is a linear congruential generator in [-1, 1].
func (s *Synth) noise() float64 {
	s.rng = s.rng*1664525 + 1013904223
	return float64(s.rng)/float64(math.MaxUint32)*2 - 1
}
