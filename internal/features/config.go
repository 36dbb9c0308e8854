// Package features turns a stream of FFT magnitude frames into smoothed,
// visualisation-oriented feature snapshots.
//
// A Processor is owned by exactly one goroutine. Every call to Update does a
// bounded amount of work proportional to the frame length, performs no I/O
// and never blocks, so it is safe to drive from an audio callback.
package features

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DetailLevel selects which of the expensive derived fields are computed.
// Fields that are skipped stay zero-filled; the Snapshot schema never changes.
type DetailLevel int

const (
	DetailBasic    DetailLevel = iota // No frequency grid, no spectrogram
	DetailStandard                    // Frequency grid, no spectrogram
	DetailFull                        // Everything, including the rolling spectrogram
)

var detailLevelNames = [...]string{"basic", "standard", "full"}

func (d DetailLevel) String() string {
	if d < DetailBasic || d > DetailFull {
		return fmt.Sprintf("DetailLevel(%d)", int(d))
	}
	return detailLevelNames[d]
}

// ParseDetailLevel accepts "basic", "standard" or "full" (case-insensitive).
func ParseDetailLevel(s string) (DetailLevel, error) {
	for i, name := range detailLevelNames {
		if strings.EqualFold(s, name) {
			return DetailLevel(i), nil
		}
	}
	return DetailBasic, fmt.Errorf("unknown detail level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d DetailLevel) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DetailLevel) UnmarshalText(text []byte) error {
	level, err := ParseDetailLevel(string(text))
	if err != nil {
		return err
	}
	*d = level
	return nil
}

// EnvelopeProfile is a named preset for the amplitude envelope.
type EnvelopeProfile int

const (
	ProfileSmooth     EnvelopeProfile = iota // Ambient and chill material
	ProfileResponsive                        // Balanced default
	ProfilePunchy                            // Fast attack for electronic and dance
	ProfileSustained                         // Slow movement for classical and orchestral
)

var profileNames = [...]string{"smooth", "responsive", "punchy", "sustained"}

// EnvelopeParams are the four values a profile overwrites on the envelope.
type EnvelopeParams struct {
	Attack   float64 // Fraction of the gap closed per frame while rising
	Decay    float64 // Fraction of the gap closed per frame while falling
	Momentum float64 // Scales every change, adding inertia
	PeakHold float64 // Seconds a detected peak suppresses decay
}

var profileParams = [...]EnvelopeParams{
	ProfileSmooth:     {Attack: 0.08, Decay: 0.03, Momentum: 0.9, PeakHold: 0.15},
	ProfileResponsive: {Attack: 0.25, Decay: 0.12, Momentum: 0.6, PeakHold: 0.05},
	ProfilePunchy:     {Attack: 0.4, Decay: 0.08, Momentum: 0.4, PeakHold: 0.08},
	ProfileSustained:  {Attack: 0.12, Decay: 0.02, Momentum: 0.95, PeakHold: 0.25},
}

func (p EnvelopeProfile) String() string {
	if p < ProfileSmooth || p > ProfileSustained {
		return fmt.Sprintf("EnvelopeProfile(%d)", int(p))
	}
	return profileNames[p]
}

// Params returns the preset tuple for the profile. Unknown profiles fall back
// to Responsive.
func (p EnvelopeProfile) Params() EnvelopeParams {
	if p < ProfileSmooth || p > ProfileSustained {
		return profileParams[ProfileResponsive]
	}
	return profileParams[p]
}

// ParseEnvelopeProfile accepts a profile name (case-insensitive).
func ParseEnvelopeProfile(s string) (EnvelopeProfile, error) {
	for i, name := range profileNames {
		if strings.EqualFold(s, name) {
			return EnvelopeProfile(i), nil
		}
	}
	return ProfileResponsive, fmt.Errorf("unknown envelope profile %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p EnvelopeProfile) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *EnvelopeProfile) UnmarshalText(text []byte) error {
	profile, err := ParseEnvelopeProfile(string(text))
	if err != nil {
		return err
	}
	*p = profile
	return nil
}

// Band identifies one tracked metric. The first six are spectral bands with
// a full normalisation pipeline; the rest only carry dynamic-range state.
type Band int

const (
	Low Band = iota
	Mid
	High
	Kick
	Snare
	Hihat
	Amplitude
	RawAmplitude
	Vocal

	bandCount
)

// spectralBands is the number of bands measured directly from the spectrum.
const spectralBands = int(Hihat) + 1

var bandNames = [...]string{"low", "mid", "high", "kick", "snare", "hihat", "amplitude", "raw_amplitude", "vocal"}

func (b Band) String() string {
	if b < Low || b >= bandCount {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandNames[b]
}

// Bands lists every Band in declaration order.
func Bands() []Band {
	out := make([]Band, bandCount)
	for i := range out {
		out[i] = Band(i)
	}
	return out
}

// FrequencyRange is a closed-open interval in Hz.
type FrequencyRange struct {
	Min float64
	Max float64
}

// BeatParams tune the beat detector.
type BeatParams struct {
	Alpha         float64 // Weight kept by the kick/snare/hihat running averages
	Threshold     float64 // Combined ratio a frame must exceed
	MinInterval   float64 // Seconds between beats
	DecayRate     float64 // Intensity decay per second since the last beat
	BPSSmoothing  float64 // Weight given to the instantaneous BPS estimate
	FluxThreshold float64 // Spectral flux a beat frame must exceed
	TimeWindow    float64 // Seconds a beat timestamp stays in the ring
	MinIntensity  float64 // Floor for beat intensity
	KickWeight    float64
	SnareWeight   float64
	HihatWeight   float64
}

// VocalParams tune the vocal likelihood estimate.
type VocalParams struct {
	Range             FrequencyRange
	HarmonicWeight    float64
	VarianceWeight    float64
	MidWeight         float64
	HarmonicThreshold float64
	HarmonicCount     int
	MaxVariance       float64
	VarianceWindow    int // Most recent mid samples used for the variance term
}

// GainParams tune the diagnostic adaptive gain kept per band.
type GainParams struct {
	TargetMin  float64
	TargetMax  float64
	AdjustRate float64
	MinGain    float64
	MaxGain    float64
}

// EnvelopeTuning holds the fixed envelope constants that profiles do not touch.
type EnvelopeTuning struct {
	PeakDetectionThreshold   float64
	TransientBoostFactor     float64
	TransientDecay           float64
	AdaptiveAttackMultiplier float64
	AdaptiveDecayMultiplier  float64
	SilenceThreshold         float64
}

// Config is constructed once at startup and copied into the Processor.
// Nothing in it is mutated while frames are being processed.
type Config struct {
	SampleRate      float64       // Hz; the frame length N implies fft_size = 2N
	UpdateInterval  time.Duration // Minimum spacing between emitted snapshots; 0 emits every frame
	DetailLevel     DetailLevel
	EnvelopeProfile EnvelopeProfile
	AdaptiveAttack  bool
	AdaptiveDecay   bool

	// BandRanges and HistorySizes are indexed by Band.
	BandRanges   [spectralBands]FrequencyRange
	HistorySizes [bandCount]int

	ActivityThreshold float64 // Smoothed amplitude above which audio counts as active
	NoiseFloor        float64 // Denominator floor for ratios

	Beat     BeatParams
	Vocal    VocalParams
	Gain     GainParams
	Envelope EnvelopeTuning
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() *Config {
	return &Config{
		SampleRate:      44100,
		UpdateInterval:  10 * time.Millisecond,
		DetailLevel:     DetailStandard,
		EnvelopeProfile: ProfileResponsive,
		AdaptiveAttack:  true,
		AdaptiveDecay:   true,

		BandRanges: [spectralBands]FrequencyRange{
			Low:   {20, 250},
			Mid:   {250, 4000},
			High:  {4000, 20000},
			Kick:  {40, 100},
			Snare: {120, 500},
			Hihat: {2000, 10000},
		},
		HistorySizes: [bandCount]int{
			Low:          24,
			Mid:          24,
			High:         24,
			Kick:         12,
			Snare:        12,
			Hihat:        12,
			Amplitude:    12,
			RawAmplitude: 12,
			Vocal:        12,
		},

		ActivityThreshold: 0.01,
		NoiseFloor:        1e-8,

		Beat: BeatParams{
			Alpha:         0.8,
			Threshold:     1.2,
			MinInterval:   0.2,
			DecayRate:     0.5,
			BPSSmoothing:  0.2,
			FluxThreshold: 0.01,
			TimeWindow:    1.0,
			MinIntensity:  0.01,
			KickWeight:    0.6,
			SnareWeight:   0.3,
			HihatWeight:   0.1,
		},
		Vocal: VocalParams{
			Range:             FrequencyRange{200, 6000},
			HarmonicWeight:    0.4,
			VarianceWeight:    0.2,
			MidWeight:         0.4,
			HarmonicThreshold: 0.1,
			HarmonicCount:     5,
			MaxVariance:       0.1,
			VarianceWindow:    5,
		},
		Gain: GainParams{
			TargetMin:  0.1,
			TargetMax:  0.9,
			AdjustRate: 0.01,
			MinGain:    0.1,
			MaxGain:    10,
		},
		Envelope: EnvelopeTuning{
			PeakDetectionThreshold:   1.1,
			TransientBoostFactor:     0.3,
			TransientDecay:           0.85,
			AdaptiveAttackMultiplier: 0.5,
			AdaptiveDecayMultiplier:  0.3,
			SilenceThreshold:         0.05,
		},
	}
}

// ErrInvalidConfig is wrapped by every error Validate returns.
var ErrInvalidConfig = errors.New("invalid feature config")

// Validate reports the first problem that would make the processor misbehave.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if !(c.SampleRate > 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidConfig, c.SampleRate)
	}
	if c.UpdateInterval < 0 {
		return fmt.Errorf("%w: update interval must not be negative, got %v", ErrInvalidConfig, c.UpdateInterval)
	}
	if c.DetailLevel < DetailBasic || c.DetailLevel > DetailFull {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.DetailLevel)
	}
	if c.EnvelopeProfile < ProfileSmooth || c.EnvelopeProfile > ProfileSustained {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.EnvelopeProfile)
	}
	for b, r := range c.BandRanges {
		if !(r.Min >= 0 && r.Max > r.Min) {
			return fmt.Errorf("%w: %v range %v-%v Hz", ErrInvalidConfig, Band(b), r.Min, r.Max)
		}
	}
	for b, size := range c.HistorySizes {
		if size < 1 {
			return fmt.Errorf("%w: %v history size %d", ErrInvalidConfig, Band(b), size)
		}
	}
	if c.Vocal.VarianceWindow < 1 {
		return fmt.Errorf("%w: vocal variance window %d", ErrInvalidConfig, c.Vocal.VarianceWindow)
	}
	if !(c.Vocal.Range.Max > c.Vocal.Range.Min) {
		return fmt.Errorf("%w: vocal range %v-%v Hz", ErrInvalidConfig, c.Vocal.Range.Min, c.Vocal.Range.Max)
	}
	return nil
}
